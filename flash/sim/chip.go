package sim

import (
	"fmt"

	"github.com/google/btree"
	"github.com/phf/go-queue/queue"
	"github.com/pkg/errors"
	"github.com/thesues/dandy-go/flash"
	"github.com/thesues/dandy-go/internalerror"
	"github.com/thesues/dandy-go/util"
)

const PAGE_SIZE = 256

type page struct {
	index uint64
	data  []byte
}

func (p page) Less(than btree.Item) bool {
	return p.index < than.(page).index
}

//Transaction is one chip select cycle as seen by the chip
type Transaction struct {
	Opcode     byte
	Address    uint64
	HasAddress bool
	TxLen      int
	RxLen      int
}

func (t Transaction) String() string {
	if t.HasAddress {
		return fmt.Sprintf("%#02x@%#x tx:%d rx:%d", t.Opcode, t.Address, t.TxLen, t.RxLen)
	}
	return fmt.Sprintf("%#02x tx:%d rx:%d", t.Opcode, t.TxLen, t.RxLen)
}

//Chip simulates a SPI NOR flash chip behind flash.Transport.
//Erased memory reads as 0xFF and only written pages are stored.
type Chip struct {
	profile Profile
	pages   *btree.BTree

	wel      bool
	busy     int
	locked   bool
	status   byte
	selected bool

	out    []byte
	rxDone int

	trace  *queue.Queue
	counts map[byte]int

	failAfter int
	failErr   error
}

func New(profile Profile) *Chip {
	if profile.AddressBytes != 3 && profile.AddressBytes != 4 {
		panic("sim: address length must be 3 or 4")
	}
	return &Chip{
		profile: profile,
		pages:   btree.New(32),
		locked:  profile.LockedAtReset,
		trace:   queue.New(),
		counts:  make(map[byte]int),
	}
}

func (chip *Chip) Profile() Profile {
	return chip.profile
}

//FailNext makes the nth transport call from now fail with err (n >= 1)
func (chip *Chip) FailNext(n int, err error) {
	chip.failAfter = n
	chip.failErr = err
}

func (chip *Chip) injected() error {
	if chip.failAfter == 0 {
		return nil
	}
	chip.failAfter--
	if chip.failAfter == 0 {
		err := chip.failErr
		if err == nil {
			err = internalerror.DeviceError
		}
		return errors.Wrap(err, "sim: injected failure")
	}
	return nil
}

func (chip *Chip) Select() error {
	if err := chip.injected(); err != nil {
		return err
	}
	if chip.selected {
		return errors.Wrap(internalerror.DeviceError, "sim: chip already selected")
	}
	chip.selected = true
	chip.out = chip.out[:0]
	chip.rxDone = 0
	return nil
}

func (chip *Chip) Exchange(tx []byte, rx []byte) error {
	if err := chip.injected(); err != nil {
		return err
	}
	if !chip.selected {
		return errors.Wrap(internalerror.DeviceError, "sim: exchange without chip select")
	}
	chip.out = append(chip.out, tx...)
	if len(rx) > 0 {
		chip.respond(rx)
		chip.rxDone += len(rx)
	}
	return nil
}

//Deselect ends the cycle and runs the collected command. An injected
//failure still releases the chip but drops the command.
func (chip *Chip) Deselect() error {
	if !chip.selected {
		return errors.Wrap(internalerror.DeviceError, "sim: deselect without chip select")
	}
	chip.selected = false
	if err := chip.injected(); err != nil {
		return err
	}
	if len(chip.out) == 0 {
		return nil
	}
	chip.record()
	chip.execute()
	return nil
}

func (chip *Chip) hasAddress(op byte) bool {
	if op == chip.profile.Ops.Read || op == chip.profile.Ops.PageProgram {
		return true
	}
	_, ok := chip.profile.EraseOps[op]
	return ok
}

func (chip *Chip) address() (uint64, bool) {
	n := chip.profile.AddressBytes
	if len(chip.out) < 1+n {
		return 0, false
	}
	if n == 3 {
		return uint64(util.GetUINT24(chip.out[1:4])), true
	}
	return uint64(util.GetUINT32(chip.out[1:5])), true
}

func (chip *Chip) record() {
	op := chip.out[0]
	t := Transaction{Opcode: op, TxLen: len(chip.out), RxLen: chip.rxDone}
	if chip.hasAddress(op) {
		t.Address, t.HasAddress = chip.address()
	}
	chip.trace.PushBack(t)
	chip.counts[op]++
}

func (chip *Chip) statusByte() byte {
	s := chip.status &^ (flash.STATUS_BUSY | flash.STATUS_WEL)
	if chip.busy > 0 {
		s |= flash.STATUS_BUSY
	}
	if chip.wel {
		s |= flash.STATUS_WEL
	}
	return s
}

func (chip *Chip) respond(rx []byte) {
	op := chip.out[0]
	switch {
	case op == chip.profile.Ops.ReadStatus:
		s := chip.statusByte()
		if chip.busy > 0 {
			chip.busy--
		}
		for i := range rx {
			rx[i] = s
		}
	case op == chip.profile.Ops.ReadID:
		for i := range rx {
			if j := chip.rxDone + i; j < len(chip.profile.ID) {
				rx[i] = chip.profile.ID[j]
			} else {
				rx[i] = 0xFF
			}
		}
	case chip.profile.ReadConfigOp != 0 && op == chip.profile.ReadConfigOp:
		for i := range rx {
			rx[i] = chip.profile.ConfigReg
		}
	case op == chip.profile.Ops.Read && chip.busy == 0:
		addr, ok := chip.address()
		if !ok {
			util.Fill(rx, 0xFF)
			return
		}
		chip.readAt(rx, (addr+uint64(chip.rxDone))%chip.profile.Size)
	default:
		util.Fill(rx, 0xFF)
	}
}

func (chip *Chip) readAt(dst []byte, addr uint64) {
	for i := range dst {
		a := (addr + uint64(i)) % chip.profile.Size
		dst[i] = chip.byteAt(a)
	}
}

func (chip *Chip) byteAt(addr uint64) byte {
	item := chip.pages.Get(page{index: addr / PAGE_SIZE})
	if item == nil {
		return 0xFF
	}
	return item.(page).data[addr%PAGE_SIZE]
}

func (chip *Chip) programByte(addr uint64, b byte) {
	key := page{index: addr / PAGE_SIZE}
	var p page
	if item := chip.pages.Get(key); item != nil {
		p = item.(page)
	} else {
		p = page{index: key.index, data: make([]byte, PAGE_SIZE)}
		util.Fill(p.data, 0xFF)
		chip.pages.ReplaceOrInsert(p)
	}
	p.data[addr%PAGE_SIZE] &= b
}

func (chip *Chip) eraseRange(addr uint64, size uint64) {
	var victims []btree.Item
	chip.pages.AscendRange(page{index: addr / PAGE_SIZE}, page{index: (addr + size) / PAGE_SIZE}, func(i btree.Item) bool {
		victims = append(victims, i)
		return true
	})
	for _, v := range victims {
		chip.pages.Delete(v)
	}
}

//execute applies the command collected during the last chip select cycle
func (chip *Chip) execute() {
	op := chip.out[0]
	ops := chip.profile.Ops
	if chip.busy > 0 && op != ops.ReadStatus {
		//commands other than status reads are ignored while busy
		return
	}
	switch {
	case op == ops.WriteEnable:
		chip.wel = true
	case op == ops.WriteDisable:
		chip.wel = false
	case op == ops.PageProgram:
		if !chip.wel {
			return
		}
		chip.wel = false
		addr, ok := chip.address()
		if !ok {
			return
		}
		chip.busy = chip.profile.BusyPolls
		if chip.locked {
			return
		}
		data := chip.out[1+chip.profile.AddressBytes:]
		if len(data) > PAGE_SIZE {
			data = data[len(data)-PAGE_SIZE:]
		}
		base := addr &^ (PAGE_SIZE - 1)
		for i, b := range data {
			//wraps inside the page
			a := base + (addr+uint64(i))%PAGE_SIZE
			chip.programByte(a%chip.profile.Size, b)
		}
	case op == ops.ChipErase:
		if !chip.wel {
			return
		}
		chip.wel = false
		chip.busy = chip.profile.BusyPolls
		if !chip.locked {
			chip.pages = btree.New(32)
		}
	case chip.profile.UnlockOp != 0 && op == chip.profile.UnlockOp:
		if !chip.wel {
			return
		}
		chip.wel = false
		chip.locked = false
	case chip.profile.WriteStatusOp != 0 && op == chip.profile.WriteStatusOp:
		if !chip.wel || len(chip.out) < 2 {
			return
		}
		chip.wel = false
		chip.status = chip.out[1] &^ (flash.STATUS_BUSY | flash.STATUS_WEL)
		chip.busy = chip.profile.BusyPolls
	default:
		sizeOf, ok := chip.profile.EraseOps[op]
		if !ok || !chip.wel {
			return
		}
		chip.wel = false
		addr, ok := chip.address()
		if !ok {
			return
		}
		chip.busy = chip.profile.BusyPolls
		if chip.locked {
			return
		}
		addr %= chip.profile.Size
		n := sizeOf(chip.profile.Size, addr)
		begin := addr &^ (n - 1)
		chip.eraseRange(begin, n)
	}
}

//Trace drains the recorded transactions, oldest first
func (chip *Chip) Trace() []Transaction {
	ts := make([]Transaction, 0, chip.trace.Len())
	for chip.trace.Len() > 0 {
		ts = append(ts, chip.trace.PopFront().(Transaction))
	}
	return ts
}

//Count returns how many transactions used op
func (chip *Chip) Count(op byte) int {
	return chip.counts[op]
}

func (chip *Chip) ResetCounts() {
	chip.counts = make(map[byte]int)
	chip.trace.Init()
}

func (chip *Chip) Locked() bool {
	return chip.locked
}

func (chip *Chip) WriteEnabled() bool {
	return chip.wel
}

//Peek reads memory directly, bypassing the SPI protocol
func (chip *Chip) Peek(dst []byte, addr uint64) {
	chip.readAt(dst, addr)
}

//Poke stores raw bytes, bypassing the SPI protocol and NOR semantics
func (chip *Chip) Poke(src []byte, addr uint64) {
	for i, b := range src {
		a := (addr + uint64(i)) % chip.profile.Size
		chip.eraseByte(a)
		chip.programByte(a, b)
	}
}

func (chip *Chip) eraseByte(addr uint64) {
	if item := chip.pages.Get(page{index: addr / PAGE_SIZE}); item != nil {
		item.(page).data[addr%PAGE_SIZE] = 0xFF
	}
}

//Pages is the number of stored (non erased) pages
func (chip *Chip) Pages() int {
	return chip.pages.Len()
}

package is25

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/thesues/dandy-go/block"
	"github.com/thesues/dandy-go/blockdev"
	"github.com/thesues/dandy-go/flash"
	"github.com/thesues/dandy-go/internalerror"
)

const (
	CMD_4NORD  = 0x13
	CMD_4PP    = 0x12
	CMD_WREN   = 0x06
	CMD_WRDI   = 0x04
	CMD_WRSR   = 0x01
	CMD_RDSR   = 0x05
	CMD_4SER   = 0x21
	CMD_4BER32 = 0x5C
	CMD_4BER64 = 0xDC
	CMD_CER    = 0xC7
	CMD_RDJDID = 0x9F
)

var Parts = []flash.Part{
	{ID: flash.JedecID{0x9D, 0x60, 0x16}, Name: "IS25LP032A", Size: 4 * block.MiB},
	{ID: flash.JedecID{0x9D, 0x60, 0x17}, Name: "IS25LP064A", Size: 8 * block.MiB},
	{ID: flash.JedecID{0x9D, 0x60, 0x18}, Name: "IS25LP128A", Size: 16 * block.MiB},
	{ID: flash.JedecID{0x9D, 0x60, 0x19}, Name: "IS25LP256D", Size: 32 * block.MiB},
	{ID: flash.JedecID{0x9D, 0x70, 0x19}, Name: "IS25WP256D", Size: 32 * block.MiB},
	{ID: flash.JedecID{0x9D, 0x60, 0x1A}, Name: "IS25LP512M", Size: 64 * block.MiB},
	{ID: flash.JedecID{0x9D, 0x70, 0x1A}, Name: "IS25WP512M", Size: 64 * block.MiB},
}

type eraseInfo struct {
	cmd  byte
	size block.Size
}

//largest first
var eraseInfos = []eraseInfo{
	{CMD_4BER64, block.SIZE_64KB},
	{CMD_4BER32, block.SIZE_32KB},
	{CMD_4SER, block.SIZE_4KB},
}

var opcodes = flash.Opcodes{
	Read:         CMD_4NORD,
	PageProgram:  CMD_4PP,
	WriteEnable:  CMD_WREN,
	WriteDisable: CMD_WRDI,
	ReadStatus:   CMD_RDSR,
	ReadID:       CMD_RDJDID,
	ChipErase:    CMD_CER,
}

//Device drives an ISSI IS25 serial flash using the 4 byte address commands
type Device struct {
	bus  *flash.Bus
	part flash.Part
	id   flash.JedecID
}

func New(transport flash.Transport, config flash.Config) *Device {
	return &Device{
		bus: flash.NewBus(transport, 4, opcodes, config),
	}
}

func (dev *Device) Init() error {
	id, err := dev.bus.ReadID()
	if err != nil {
		return err
	}
	dev.id = id
	part, ok := flash.LookupPart(Parts, id)
	if !ok {
		logrus.WithField("id", id.String()).Warn("is25: unknown JEDEC id")
		return errors.Wrapf(internalerror.DeviceError, "is25: unknown JEDEC id %s", id)
	}
	dev.part = part
	logrus.Debugf("is25: found %s, %d bytes", part.Name, part.Size)
	return nil
}

func (dev *Device) Deinit() error {
	return dev.bus.WriteDisable()
}

func (dev *Device) Read(dst []byte, addr uint64) error {
	blockdev.AssertRead(dev, addr, uint64(len(dst)))
	return dev.bus.Read(dst, addr)
}

func (dev *Device) Program(src []byte, addr uint64) error {
	blockdev.AssertProgram(dev, addr, uint64(len(src)))
	return dev.bus.Program(src, addr)
}

func pickErase(addr uint64, size uint64) eraseInfo {
	for _, info := range eraseInfos {
		if size >= info.size.AsU64() && info.size.IsAligned(addr) {
			return info
		}
	}
	panic("is25: no erase command fits")
}

//Erase greedily picks the largest aligned command that fits the rest
func (dev *Device) Erase(addr uint64, size uint64) error {
	blockdev.AssertErase(dev, addr, size)
	for size > 0 {
		info := pickErase(addr, size)
		logrus.Debugf("is25: erase %#02x at %#x size %d", info.cmd, addr, info.size)
		if err := dev.bus.EraseCommand(info.cmd, addr); err != nil {
			return errors.Wrapf(err, "is25: erase at %#x", addr)
		}
		addr += info.size.AsU64()
		size -= info.size.AsU64()
	}
	return nil
}

func (dev *Device) ChipErase() error {
	return dev.bus.ChipErase()
}

func (dev *Device) ReadStatusRegister() (byte, error) {
	return dev.bus.ReadStatus()
}

//WriteStatusRegister writes the block protect and QE bits
func (dev *Device) WriteStatusRegister(status byte) error {
	if err := dev.bus.WriteEnable(); err != nil {
		return err
	}
	if err := dev.bus.DoCommandNoAddress(CMD_WRSR, []byte{status}, nil); err != nil {
		return err
	}
	return dev.bus.WaitForCommandCompletion()
}

func (dev *Device) ReadSize() uint64 {
	return 1
}

func (dev *Device) ProgramSize() uint64 {
	return 1
}

func (dev *Device) EraseSize() uint64 {
	return block.SIZE_4KB.AsU64()
}

func (dev *Device) Size() uint64 {
	return dev.part.Size
}

func (dev *Device) Type() string {
	return "IS25"
}

func (dev *Device) DeviceType() string {
	return dev.part.Name
}

func (dev *Device) ID() flash.JedecID {
	return dev.id
}

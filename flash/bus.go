package flash

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/thesues/dandy-go/internalerror"
	"github.com/thesues/dandy-go/util"
)

//Bus frames NOR flash commands on a Transport: one opcode byte, an optional
//big endian address of 3 or 4 bytes, then data.
type Bus struct {
	transport Transport
	addrBytes int
	ops       Opcodes
	config    Config
	//data bytes per cycle the transport allows, 0 for no cap
	maxData int
}

func NewBus(transport Transport, addrBytes int, ops Opcodes, config Config) *Bus {
	if addrBytes != 3 && addrBytes != 4 {
		panic(fmt.Sprintf("flash: unsupported address length %d", addrBytes))
	}
	bus := &Bus{
		transport: transport,
		addrBytes: addrBytes,
		ops:       ops,
		config:    config,
	}
	if l, ok := transport.(Limits); ok {
		if n := l.MaxTxSize(); n > 0 {
			if n <= 1+addrBytes {
				panic(fmt.Sprintf("flash: transport limit %d leaves no room for data", n))
			}
			bus.maxData = n - 1 - addrBytes
		}
	}
	return bus
}

func (bus *Bus) AddressBytes() int {
	return bus.addrBytes
}

func (bus *Bus) transaction(header []byte, tx []byte, rx []byte) (err error) {
	if err = bus.transport.Select(); err != nil {
		return errors.Wrapf(err, "select for %#02x", header[0])
	}
	defer func() {
		if derr := bus.transport.Deselect(); derr != nil && err == nil {
			err = errors.Wrapf(derr, "deselect after %#02x", header[0])
		}
	}()

	if err = bus.transport.Exchange(header, nil); err != nil {
		return errors.Wrapf(err, "command %#02x", header[0])
	}
	if len(tx) > 0 || len(rx) > 0 {
		if err = bus.transport.Exchange(tx, rx); err != nil {
			return errors.Wrapf(err, "data phase of %#02x", header[0])
		}
	}
	return nil
}

func (bus *Bus) DoCommand(cmd byte, addr uint64, tx []byte, rx []byte) error {
	header := make([]byte, 1+bus.addrBytes)
	header[0] = cmd
	if bus.addrBytes == 3 {
		if addr > 0xFFFFFF {
			panic(fmt.Sprintf("flash: address %#x does not fit in 3 bytes", addr))
		}
		util.PutUINT24(header[1:], uint32(addr))
	} else {
		if addr > 0xFFFFFFFF {
			panic(fmt.Sprintf("flash: address %#x does not fit in 4 bytes", addr))
		}
		util.PutUINT32(header[1:], uint32(addr))
	}
	return bus.transaction(header, tx, rx)
}

func (bus *Bus) DoCommandNoAddress(cmd byte, tx []byte, rx []byte) error {
	return bus.transaction([]byte{cmd}, tx, rx)
}

func (bus *Bus) ReadID() (JedecID, error) {
	var id JedecID
	if err := bus.DoCommandNoAddress(bus.ops.ReadID, nil, id[:]); err != nil {
		return id, err
	}
	return id, nil
}

func (bus *Bus) ReadStatus() (byte, error) {
	var status [1]byte
	if err := bus.DoCommandNoAddress(bus.ops.ReadStatus, nil, status[:]); err != nil {
		return 0, err
	}
	return status[0], nil
}

//WriteEnable sets the write enable latch and checks that it stuck.
//A latch that stays clear means the chip is write protected.
func (bus *Bus) WriteEnable() error {
	if err := bus.DoCommandNoAddress(bus.ops.WriteEnable, nil, nil); err != nil {
		return err
	}
	status, err := bus.ReadStatus()
	if err != nil {
		return err
	}
	if status&STATUS_WEL == 0 {
		return errors.Wrapf(internalerror.AccessDenied, "write enable latch not set, status %#02x", status)
	}
	return nil
}

func (bus *Bus) WriteDisable() error {
	return bus.DoCommandNoAddress(bus.ops.WriteDisable, nil, nil)
}

//WaitForCommandCompletion polls the status register until BUSY clears
func (bus *Bus) WaitForCommandCompletion() error {
	limit := bus.config.maxPolls()
	for polls := 0; limit < 0 || polls < limit; polls++ {
		status, err := bus.ReadStatus()
		if err != nil {
			return err
		}
		if status&STATUS_BUSY == 0 {
			return nil
		}
		if bus.config.PollInterval > 0 {
			time.Sleep(bus.config.PollInterval)
		}
	}
	logrus.Warnf("flash: chip still busy after %d polls", limit)
	return errors.Wrapf(internalerror.DeviceTimeout, "busy after %d polls", limit)
}

//chunk caps n to what one cycle of the transport can carry
func (bus *Bus) chunk(n uint64) uint64 {
	if bus.maxData == 0 {
		return n
	}
	return util.Min(n, uint64(bus.maxData))
}

//Read issues as many read commands as the transport limit needs
func (bus *Bus) Read(dst []byte, addr uint64) error {
	for len(dst) > 0 {
		n := bus.chunk(uint64(len(dst)))
		if err := bus.DoCommand(bus.ops.Read, addr, nil, dst[:n]); err != nil {
			return err
		}
		dst = dst[n:]
		addr += n
	}
	return nil
}

//Program splits src into page program commands. A chunk never crosses a
//page boundary, so the chip never wraps inside a page, and never exceeds
//the transport limit.
func (bus *Bus) Program(src []byte, addr uint64) error {
	pageSize := uint64(bus.config.pageSize())
	for len(src) > 0 {
		toProgram := pageSize - addr%pageSize
		if toProgram > uint64(len(src)) {
			toProgram = uint64(len(src))
		}
		toProgram = bus.chunk(toProgram)
		if err := bus.WriteEnable(); err != nil {
			return err
		}
		if err := bus.DoCommand(bus.ops.PageProgram, addr, src[:toProgram], nil); err != nil {
			return err
		}
		if err := bus.WaitForCommandCompletion(); err != nil {
			return err
		}
		src = src[toProgram:]
		addr += toProgram
	}
	return nil
}

//EraseCommand issues one sector or block erase at addr and waits for it
func (bus *Bus) EraseCommand(cmd byte, addr uint64) error {
	if err := bus.WriteEnable(); err != nil {
		return err
	}
	if err := bus.DoCommand(cmd, addr, nil, nil); err != nil {
		return err
	}
	return bus.WaitForCommandCompletion()
}

func (bus *Bus) ChipErase() error {
	if err := bus.WriteEnable(); err != nil {
		return err
	}
	if err := bus.DoCommandNoAddress(bus.ops.ChipErase, nil, nil); err != nil {
		return err
	}
	return bus.WaitForCommandCompletion()
}

package sst26

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/thesues/dandy-go/address"
	"github.com/thesues/dandy-go/block"
	"github.com/thesues/dandy-go/blockdev"
	"github.com/thesues/dandy-go/flash"
	"github.com/thesues/dandy-go/internalerror"
)

const (
	CMD_RDSR     = 0x05
	CMD_RDCR     = 0x35
	CMD_READ     = 0x03
	CMD_JEDEC_ID = 0x9F
	CMD_WREN     = 0x06
	CMD_WRDI     = 0x04
	CMD_SE       = 0x20
	CMD_BE       = 0xD8
	CMD_CE       = 0xC7
	CMD_PP       = 0x02
	CMD_ULBPR    = 0x98
)

var Parts = []flash.Part{
	{ID: flash.JedecID{0xBF, 0x26, 0x01}, Name: "SST26VF016", Size: 2 * block.MiB},
	{ID: flash.JedecID{0xBF, 0x26, 0x02}, Name: "SST26VF032", Size: 4 * block.MiB},
	{ID: flash.JedecID{0xBF, 0x26, 0x43}, Name: "SST26VF064", Size: 8 * block.MiB},
}

var opcodes = flash.Opcodes{
	Read:         CMD_READ,
	PageProgram:  CMD_PP,
	WriteEnable:  CMD_WREN,
	WriteDisable: CMD_WRDI,
	ReadStatus:   CMD_RDSR,
	ReadID:       CMD_JEDEC_ID,
	ChipErase:    CMD_CE,
}

//Device drives a Microchip SST26 serial flash with 3 byte addresses.
//Size and the granularities are zero until Init succeeds.
type Device struct {
	bus  *flash.Bus
	part flash.Part
	id   flash.JedecID
}

func New(transport flash.Transport, config flash.Config) *Device {
	return &Device{
		bus: flash.NewBus(transport, 3, opcodes, config),
	}
}

//Init probes the JEDEC id, then lifts the global block protection that the
//chip sets at power on. Nothing can be erased or programmed before that.
func (dev *Device) Init() error {
	id, err := dev.bus.ReadID()
	if err != nil {
		return err
	}
	dev.id = id
	part, ok := flash.LookupPart(Parts, id)
	if !ok {
		logrus.WithField("id", id.String()).Warn("sst26: unknown JEDEC id")
		return errors.Wrapf(internalerror.DeviceError, "sst26: unknown JEDEC id %s", id)
	}
	dev.part = part
	logrus.Debugf("sst26: found %s, %d bytes", part.Name, part.Size)
	return dev.UnlockGlobalBlockProtection()
}

func (dev *Device) UnlockGlobalBlockProtection() error {
	if err := dev.bus.WriteEnable(); err != nil {
		return err
	}
	if err := dev.bus.DoCommandNoAddress(CMD_ULBPR, nil, nil); err != nil {
		return err
	}
	return dev.bus.WaitForCommandCompletion()
}

func (dev *Device) Deinit() error {
	if err := dev.bus.WriteDisable(); err != nil {
		return err
	}
	status, err := dev.bus.ReadStatus()
	if err != nil {
		return err
	}
	if status&flash.STATUS_WEL != 0 {
		return errors.Wrapf(internalerror.DeviceError, "sst26: write enable latch still set, status %#02x", status)
	}
	return nil
}

func (dev *Device) Read(dst []byte, addr uint64) error {
	blockdev.AssertRead(dev, addr, uint64(len(dst)))
	return dev.bus.Read(dst, addr)
}

func (dev *Device) Program(src []byte, addr uint64) error {
	blockdev.AssertProgram(dev, addr, uint64(len(src)))
	return dev.bus.Program(src, addr)
}

//Erase uses a block erase wherever the block at addr fits the remaining
//request, 4K sector erases otherwise.
func (dev *Device) Erase(addr uint64, size uint64) error {
	blockdev.AssertErase(dev, addr, size)
	for size > 0 {
		blockSize := dev.BlockEraseSize(addr)
		cmd := byte(CMD_SE)
		eraseSize := block.SIZE_4KB.AsU64()
		if size >= blockSize && addr%blockSize == 0 {
			cmd = CMD_BE
			eraseSize = blockSize
		}
		logrus.Debugf("sst26: erase %#02x at %#x size %d", cmd, addr, eraseSize)
		if err := dev.bus.EraseCommand(cmd, addr); err != nil {
			return errors.Wrapf(err, "sst26: erase at %#x", addr)
		}
		addr += eraseSize
		size -= eraseSize
	}
	return nil
}

//BlockEraseSize is the size of the block containing addr, see the memory
//organization table of the datasheet.
func (dev *Device) BlockEraseSize(addr uint64) uint64 {
	size := dev.part.Size
	if addr >= size {
		panic("sst26: address outside the device")
	}
	switch {
	case addr < 32*block.KiB:
		return block.SIZE_8KB.AsU64()
	case addr < 64*block.KiB:
		return block.SIZE_32KB.AsU64()
	case address.Within(address.Address(addr), address.Address(size-64*block.KiB), address.Address(size-32*block.KiB)):
		return block.SIZE_32KB.AsU64()
	case address.Within(address.Address(addr), address.Address(size-32*block.KiB), address.Address(size)):
		return block.SIZE_8KB.AsU64()
	}
	return block.SIZE_64KB.AsU64()
}

func (dev *Device) ChipErase() error {
	return dev.bus.ChipErase()
}

func (dev *Device) ReadStatusRegister() (byte, error) {
	return dev.bus.ReadStatus()
}

func (dev *Device) ReadConfigurationRegister() (byte, error) {
	var reg [1]byte
	if err := dev.bus.DoCommandNoAddress(CMD_RDCR, nil, reg[:]); err != nil {
		return 0, err
	}
	return reg[0], nil
}

func (dev *Device) ReadSize() uint64 {
	if dev.part.Size == 0 {
		return 0
	}
	return 1
}

func (dev *Device) ProgramSize() uint64 {
	if dev.part.Size == 0 {
		return 0
	}
	return 1
}

//EraseSize is the smallest erase unit. Block erases are only used
//internally where the larger block fits.
func (dev *Device) EraseSize() uint64 {
	if dev.part.Size == 0 {
		return 0
	}
	return block.SIZE_4KB.AsU64()
}

func (dev *Device) Size() uint64 {
	return dev.part.Size
}

func (dev *Device) Type() string {
	return "SST26"
}

//DeviceType is the part name, empty before Init
func (dev *Device) DeviceType() string {
	return dev.part.Name
}

//ID is the last probed JEDEC id
func (dev *Device) ID() flash.JedecID {
	return dev.id
}

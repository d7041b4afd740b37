package sim

import (
	"github.com/thesues/dandy-go/block"
	"github.com/thesues/dandy-go/flash"
)

//command set shared by both modelled families
const (
	CMD_WRSR  = 0x01
	CMD_PP    = 0x02
	CMD_READ  = 0x03
	CMD_WRDI  = 0x04
	CMD_RDSR  = 0x05
	CMD_WREN  = 0x06
	CMD_4PP   = 0x12
	CMD_4READ = 0x13
	CMD_SE    = 0x20
	CMD_4SE   = 0x21
	CMD_RDCR  = 0x35
	CMD_4BE32 = 0x5C
	CMD_ULBPR = 0x98
	CMD_RDID  = 0x9F
	CMD_CE    = 0xC7
	CMD_BE    = 0xD8
	CMD_4BE64 = 0xDC
)

//Profile describes the chip being simulated
type Profile struct {
	Name         string
	ID           flash.JedecID
	Size         uint64
	AddressBytes int
	Ops          flash.Opcodes

	//EraseOps maps an erase opcode to the size it erases at addr
	EraseOps map[byte]func(size uint64, addr uint64) uint64

	//UnlockOp clears the block protection that is set at reset when
	//LockedAtReset is true. Zero if the chip has no such command.
	UnlockOp      byte
	LockedAtReset bool

	//WriteStatusOp writes the status register, zero if unsupported
	WriteStatusOp byte
	//ReadConfigOp reads the configuration register, zero if unsupported
	ReadConfigOp byte
	ConfigReg    byte

	//BusyPolls is how many status reads report BUSY after a program or erase
	BusyPolls int
}

func fixed(n block.Size) func(uint64, uint64) uint64 {
	return func(uint64, uint64) uint64 { return n.AsU64() }
}

//sst26BlockSize follows the SST26 memory map: 8K blocks in the outer 32K,
//32K blocks in the next 32K on both ends, 64K blocks in between.
func sst26BlockSize(size uint64, addr uint64) uint64 {
	switch {
	case addr < 32*block.KiB || addr >= size-32*block.KiB:
		return block.SIZE_8KB.AsU64()
	case addr < 64*block.KiB || addr >= size-64*block.KiB:
		return block.SIZE_32KB.AsU64()
	}
	return block.SIZE_64KB.AsU64()
}

func SST26(id flash.JedecID, size uint64) Profile {
	return Profile{
		Name:         "SST26",
		ID:           id,
		Size:         size,
		AddressBytes: 3,
		Ops: flash.Opcodes{
			Read:         CMD_READ,
			PageProgram:  CMD_PP,
			WriteEnable:  CMD_WREN,
			WriteDisable: CMD_WRDI,
			ReadStatus:   CMD_RDSR,
			ReadID:       CMD_RDID,
			ChipErase:    CMD_CE,
		},
		EraseOps: map[byte]func(uint64, uint64) uint64{
			CMD_SE: fixed(block.SIZE_4KB),
			CMD_BE: sst26BlockSize,
		},
		UnlockOp:      CMD_ULBPR,
		LockedAtReset: true,
		ReadConfigOp:  CMD_RDCR,
		ConfigReg:     0x08,
		BusyPolls:     2,
	}
}

//SST26VF064 is an 8MiB SST26 part
func SST26VF064() Profile {
	return SST26(flash.JedecID{0xBF, 0x26, 0x43}, 8*block.MiB)
}

func IS25(id flash.JedecID, size uint64) Profile {
	return Profile{
		Name:         "IS25",
		ID:           id,
		Size:         size,
		AddressBytes: 4,
		Ops: flash.Opcodes{
			Read:         CMD_4READ,
			PageProgram:  CMD_4PP,
			WriteEnable:  CMD_WREN,
			WriteDisable: CMD_WRDI,
			ReadStatus:   CMD_RDSR,
			ReadID:       CMD_RDID,
			ChipErase:    CMD_CE,
		},
		EraseOps: map[byte]func(uint64, uint64) uint64{
			CMD_4SE:   fixed(block.SIZE_4KB),
			CMD_4BE32: fixed(block.SIZE_32KB),
			CMD_4BE64: fixed(block.SIZE_64KB),
		},
		WriteStatusOp: CMD_WRSR,
		BusyPolls:     2,
	}
}

//IS25LP128A is a 16MiB IS25 part
func IS25LP128A() Profile {
	return IS25(flash.JedecID{0x9D, 0x60, 0x18}, 16*block.MiB)
}

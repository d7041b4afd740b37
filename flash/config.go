package flash

import "time"

const (
	//a page program command never crosses this boundary
	MAX_PAGE_SIZE = 256

	DefaultMaxPolls = 1 << 24
)

const (
	STATUS_BUSY byte = 0x01
	STATUS_WEL  byte = 0x02
)

type Config struct {
	//MaxPolls bounds busy polling. Zero means DefaultMaxPolls,
	//negative means poll until the chip is ready.
	MaxPolls int
	//PollInterval is slept between two status reads
	PollInterval time.Duration
	//PageSize is the largest program chunk, at most MAX_PAGE_SIZE
	PageSize int
}

func (c Config) maxPolls() int {
	if c.MaxPolls == 0 {
		return DefaultMaxPolls
	}
	return c.MaxPolls
}

func (c Config) pageSize() int {
	if c.PageSize <= 0 || c.PageSize > MAX_PAGE_SIZE {
		return MAX_PAGE_SIZE
	}
	return c.PageSize
}

//Opcodes used by the generic command sequences of Bus
type Opcodes struct {
	Read         byte
	PageProgram  byte
	WriteEnable  byte
	WriteDisable byte
	ReadStatus   byte
	ReadID       byte
	ChipErase    byte
}

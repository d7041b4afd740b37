package blockdev

import (
	"github.com/pkg/errors"
	"github.com/thesues/dandy-go/block"
	"github.com/thesues/dandy-go/internalerror"
	"github.com/thesues/dandy-go/util"
)

const ERASED_BYTE byte = 0xFF

//MemoryDevice keeps the whole device in RAM and behaves like NOR flash:
//erase sets bytes to 0xFF and program can only clear bits.
type MemoryDevice struct {
	vec       []byte
	eraseSize block.Size
}

func NewMemoryDevice(size uint64, eraseSize block.Size) (*MemoryDevice, error) {
	if eraseSize == 0 || !eraseSize.IsAligned(size) {
		return nil, errors.Wrapf(internalerror.InvalidInput, "size %d is not aligned to %d", size, eraseSize)
	}
	vec := make([]byte, size)
	util.Fill(vec, ERASED_BYTE)
	return &MemoryDevice{vec: vec, eraseSize: eraseSize}, nil
}

func NewMemoryDeviceFromVec(vec []byte, eraseSize block.Size) (*MemoryDevice, error) {
	if eraseSize == 0 || !eraseSize.IsAligned(uint64(len(vec))) {
		return nil, internalerror.InvalidInput
	}
	return &MemoryDevice{vec: vec, eraseSize: eraseSize}, nil
}

func (memory *MemoryDevice) Init() error {
	return nil
}

func (memory *MemoryDevice) Deinit() error {
	return nil
}

func (memory *MemoryDevice) Read(dst []byte, addr uint64) error {
	AssertRead(memory, addr, uint64(len(dst)))
	copy(dst, memory.vec[addr:])
	return nil
}

func (memory *MemoryDevice) Program(src []byte, addr uint64) error {
	AssertProgram(memory, addr, uint64(len(src)))
	target := memory.vec[addr : addr+uint64(len(src))]
	for i := range src {
		target[i] &= src[i]
	}
	return nil
}

func (memory *MemoryDevice) Erase(addr uint64, size uint64) error {
	AssertErase(memory, addr, size)
	util.Fill(memory.vec[addr:addr+size], ERASED_BYTE)
	return nil
}

func (memory *MemoryDevice) ReadSize() uint64 {
	return 1
}

func (memory *MemoryDevice) ProgramSize() uint64 {
	return 1
}

func (memory *MemoryDevice) EraseSize() uint64 {
	return memory.eraseSize.AsU64()
}

func (memory *MemoryDevice) Size() uint64 {
	return uint64(len(memory.vec))
}

func (memory *MemoryDevice) Type() string {
	return "MemoryDevice"
}

//for local test
func (memory *MemoryDevice) AsBytes() []byte {
	return memory.vec
}

package blockdev

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/thesues/dandy-go/internalerror"
)

//BlockDevice is byte addressable storage that can only be reset in
//erase-size units. Program requires the target to have been erased.
//
//Read, Program and Erase panic when the request is outside the device or
//not aligned to the corresponding granularity; these are caller bugs.
//Transport or device failures are returned as errors.
//
//A BlockDevice is not safe for concurrent use.
type BlockDevice interface {
	Init() error
	Deinit() error
	Read(dst []byte, addr uint64) error
	Program(src []byte, addr uint64) error
	Erase(addr uint64, size uint64) error
	ReadSize() uint64
	ProgramSize() uint64
	EraseSize() uint64
	Size() uint64
	Type() string
}

func isValid(bd BlockDevice, unit uint64, addr uint64, size uint64) bool {
	if unit == 0 {
		return false
	}
	return addr%unit == 0 &&
		size%unit == 0 &&
		addr+size >= addr &&
		addr+size <= bd.Size()
}

func IsValidRead(bd BlockDevice, addr uint64, size uint64) bool {
	return isValid(bd, bd.ReadSize(), addr, size)
}

func IsValidProgram(bd BlockDevice, addr uint64, size uint64) bool {
	return isValid(bd, bd.ProgramSize(), addr, size)
}

func IsValidErase(bd BlockDevice, addr uint64, size uint64) bool {
	return isValid(bd, bd.EraseSize(), addr, size)
}

//AssertRead panics if the read request violates the device contract
func AssertRead(bd BlockDevice, addr uint64, size uint64) {
	if !IsValidRead(bd, addr, size) {
		panic(fmt.Sprintf("%s: invalid read addr:%#x size:%d", bd.Type(), addr, size))
	}
}

func AssertProgram(bd BlockDevice, addr uint64, size uint64) {
	if !IsValidProgram(bd, addr, size) {
		panic(fmt.Sprintf("%s: invalid program addr:%#x size:%d", bd.Type(), addr, size))
	}
}

func AssertErase(bd BlockDevice, addr uint64, size uint64) {
	if !IsValidErase(bd, addr, size) {
		panic(fmt.Sprintf("%s: invalid erase addr:%#x size:%d", bd.Type(), addr, size))
	}
}

//ConvertToOffset resolves a seek request against a window of the given size
//and returns the absolute position inside it.
func ConvertToOffset(position uint64, size uint64, offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(position) + offset
	case io.SeekEnd:
		abs = int64(size) + offset
	default:
		return 0, errors.Wrapf(internalerror.InvalidInput, "invalid whence %d", whence)
	}
	if abs < 0 || abs > int64(size) {
		return 0, errors.Wrapf(internalerror.OutOfRange, "seek position %d is outside [0, %d]", abs, size)
	}
	return abs, nil
}

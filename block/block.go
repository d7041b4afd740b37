package block

import (
	"github.com/pkg/errors"
	"github.com/thesues/dandy-go/internalerror"
)

const (
	KiB uint64 = 1024
	MiB uint64 = 1024 * KiB

	SIZE_4KB  = Size(4 * KiB)
	SIZE_8KB  = Size(8 * KiB)
	SIZE_32KB = Size(32 * KiB)
	SIZE_64KB = Size(64 * KiB)
)

//Size is an erase granularity. It is always a power of two.
type Size uint64

func NewSize(bs uint64) (Size, error) {
	if bs == 0 {
		return 0, errors.Wrap(internalerror.InvalidInput, "erase size is zero")
	}

	if bs&(bs-1) != 0 {
		return 0, errors.Wrapf(internalerror.InvalidInput, "erase size %d is not a power of two", bs)
	}

	return Size(bs), nil
}

func (bs Size) CeilAlign(position uint64) uint64 {
	block_size := uint64(bs)
	return (position + block_size - 1) / block_size * block_size
}

func (bs Size) FloorAlign(postion uint64) uint64 {
	block_size := uint64(bs)
	return postion / block_size * block_size
}

func (bs Size) IsAligned(position uint64) bool {
	return position&(uint64(bs)-1) == 0
}

func (bs Size) AsU64() uint64 {
	return uint64(bs)
}

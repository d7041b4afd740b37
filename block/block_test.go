package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/thesues/dandy-go/internalerror"
)

func TestNewSize(t *testing.T) {
	bs, err := NewSize(4096)
	assert.Nil(t, err)
	assert.Equal(t, SIZE_4KB, bs)

	_, err = NewSize(0)
	assert.True(t, internalerror.Is(err, internalerror.InvalidInput))

	_, err = NewSize(3000)
	assert.True(t, internalerror.Is(err, internalerror.InvalidInput))
}

func TestBlockCeilAlign(t *testing.T) {
	bs := SIZE_4KB
	assert.Equal(t, uint64(4096), bs.CeilAlign(10))
	assert.Equal(t, uint64(8192), bs.CeilAlign(4097))
	assert.Equal(t, uint64(4096), bs.CeilAlign(4096))
	assert.Equal(t, uint64(0), bs.CeilAlign(0))
}

func TestBlockFloorAlign(t *testing.T) {
	bs := SIZE_4KB
	assert.Equal(t, uint64(0), bs.FloorAlign(10))
	assert.Equal(t, uint64(0x1000), bs.FloorAlign(0x1002))
	assert.Equal(t, uint64(8192), bs.FloorAlign(8192))
}

func TestBlockIsAligned(t *testing.T) {
	bs := SIZE_64KB
	assert.Equal(t, true, bs.IsAligned(0))
	assert.Equal(t, true, bs.IsAligned(0x10000))
	assert.Equal(t, true, bs.IsAligned(0x30000))
	assert.Equal(t, false, bs.IsAligned(0x8000))
	assert.Equal(t, false, bs.IsAligned(0x10001))
}

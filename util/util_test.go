package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_putUint24(t *testing.T) {
	var buf [3]byte
	PutUINT24(buf[:], 0xAB123456)
	assert.Equal(t, []byte{0x12, 0x34, 0x56}, buf[:])
	assert.Equal(t, uint32(0x123456), GetUINT24(buf[:]))

	assert.Panics(t, func() { PutUINT24(make([]byte, 4), 0) })
}

func Test_putUint32(t *testing.T) {
	var buf [4]byte
	PutUINT32(buf[:], 0x01FF1002)
	assert.Equal(t, []byte{0x01, 0xFF, 0x10, 0x02}, buf[:])
	assert.Equal(t, uint32(0x01FF1002), GetUINT32(buf[:]))
}

func TestMinFill(t *testing.T) {
	assert.Equal(t, uint64(3), Min(3, 5))
	assert.Equal(t, uint64(3), Min(5, 3))

	buf := make([]byte, 4)
	Fill(buf, 0xFF)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, buf)
}

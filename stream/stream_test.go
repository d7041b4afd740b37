package stream

import (
	"bytes"
	"io"
	"io/ioutil"
	"syscall"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/thesues/dandy-go/block"
	"github.com/thesues/dandy-go/blockdev"
	"github.com/thesues/dandy-go/flash"
	"github.com/thesues/dandy-go/flash/sim"
	"github.com/thesues/dandy-go/flash/sst26"
	"github.com/thesues/dandy-go/internalerror"
)

type countingDevice struct {
	blockdev.BlockDevice
	reads    int
	programs int
	lastRead int
	fail     bool
}

func (c *countingDevice) Read(dst []byte, addr uint64) error {
	c.reads++
	c.lastRead = len(dst)
	if c.fail {
		return errors.Wrap(internalerror.DeviceError, "counting")
	}
	return c.BlockDevice.Read(dst, addr)
}

func (c *countingDevice) Program(src []byte, addr uint64) error {
	c.programs++
	if c.fail {
		return errors.Wrap(internalerror.DeviceError, "counting")
	}
	return c.BlockDevice.Program(src, addr)
}

func newPatterned(t *testing.T) *countingDevice {
	mem, err := blockdev.NewMemoryDevice(16*block.KiB, block.SIZE_4KB)
	assert.Nil(t, err)
	for i := range mem.AsBytes() {
		mem.AsBytes()[i] = byte(i)
	}
	return &countingDevice{BlockDevice: mem}
}

func TestInputStreamReadAhead(t *testing.T) {
	dev := newPatterned(t)
	in := NewInputStream(dev, 0x100, 100, 32)

	buf := make([]byte, 10)
	n, err := in.Read(buf)
	assert.Nil(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, buf)
	assert.Equal(t, 1, dev.reads)

	//served from the cache
	n, err = in.Read(buf)
	assert.Nil(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, 1, dev.reads)

	all, err := ioutil.ReadAll(in)
	assert.Nil(t, err)
	assert.Equal(t, 80, len(all))
	//the last refill is clamped to the window
	assert.Equal(t, 4, dev.reads)
	assert.Equal(t, 100-96, dev.lastRead)

	_, err = in.ReadByte()
	assert.Equal(t, io.EOF, err)
	n, err = in.Read(buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
	//the end of the window is not an io error
	assert.Equal(t, -int(syscall.ENODATA), internalerror.Errno(err))
}

func TestInputStreamSeekInvalidates(t *testing.T) {
	dev := newPatterned(t)
	in := NewInputStream(dev, 0, 1000, 64)

	b, err := in.ReadByte()
	assert.Nil(t, err)
	assert.Equal(t, byte(0), b)
	assert.Equal(t, 1, dev.reads)

	//same position, still refetched
	pos, err := in.Seek(0, io.SeekCurrent)
	assert.Nil(t, err)
	assert.Equal(t, int64(1), pos)
	b, _ = in.ReadByte()
	assert.Equal(t, byte(1), b)
	assert.Equal(t, 2, dev.reads)

	pos, err = in.Seek(-10, io.SeekEnd)
	assert.Nil(t, err)
	assert.Equal(t, int64(990), pos)
	b, _ = in.ReadByte()
	assert.Equal(t, byte(990%256), b)
	assert.Equal(t, 3, dev.reads)
	assert.Equal(t, 10, dev.lastRead)

	_, err = in.Seek(1001, io.SeekStart)
	assert.True(t, internalerror.Is(err, internalerror.OutOfRange))
	assert.Equal(t, uint64(991), in.Position())

	_, err = in.Seek(1000, io.SeekStart)
	assert.Nil(t, err)
	_, err = in.ReadByte()
	assert.Equal(t, io.EOF, err)
}

func TestInputStreamOverChip(t *testing.T) {
	chip := sim.New(sim.SST26VF064())
	chip.Poke([]byte("0123456789"), 0x2000)
	dev := sst26.New(chip, flash.Config{})
	assert.Nil(t, dev.Init())
	chip.ResetCounts()

	in := NewInputStream(dev, 0x2000, 10, DefaultCacheSize)
	buf := make([]byte, 4)
	in.Read(buf)
	assert.Equal(t, []byte("0123"), buf)
	assert.Equal(t, 1, chip.Count(sst26.CMD_READ))

	//inside the cached range, still a new device read
	in.Seek(1, io.SeekStart)
	in.Read(buf)
	assert.Equal(t, []byte("1234"), buf)
	assert.Equal(t, 2, chip.Count(sst26.CMD_READ))
}

func TestInputStreamErrors(t *testing.T) {
	dev := newPatterned(t)
	dev.fail = true
	in := NewInputStream(dev, 0, 10, 4)
	n, err := in.Read(make([]byte, 4))
	assert.Equal(t, 0, n)
	assert.True(t, internalerror.Is(err, internalerror.DeviceError))
	assert.Equal(t, -5, internalerror.Errno(err))

	_, err = in.Write([]byte{1})
	assert.True(t, internalerror.Is(err, internalerror.NotSupported))

	assert.Panics(t, func() { NewInputStream(dev, 0, 0, 4) })
	assert.Panics(t, func() { NewInputStream(dev, 0, 10, 0) })
	assert.Panics(t, func() { NewInputStream(dev, 16*block.KiB-5, 10, 4) })
}

func TestOutputStreamClamp(t *testing.T) {
	mem, err := blockdev.NewMemoryDevice(16*block.KiB, block.SIZE_4KB)
	assert.Nil(t, err)
	dev := &countingDevice{BlockDevice: mem}
	out := NewOutputStream(dev, 0x1000, 8)

	n, err := out.Write([]byte("abc"))
	assert.Nil(t, err)
	assert.Equal(t, 3, n)

	n, err = out.Write([]byte("defghijk"))
	assert.Equal(t, io.ErrShortWrite, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, uint64(8), out.Position())
	assert.Equal(t, 2, dev.programs)
	assert.Equal(t, []byte("abcdefgh"), mem.AsBytes()[0x1000:0x1008])
	//nothing past the window
	assert.Equal(t, byte(0xFF), mem.AsBytes()[0x1008])

	n, err = out.Write([]byte("x"))
	assert.Equal(t, 0, n)
	assert.Equal(t, io.ErrShortWrite, err)
	assert.Equal(t, -int(syscall.ERANGE), internalerror.Errno(err))
	assert.Equal(t, 2, dev.programs)

	_, err = out.Seek(2, io.SeekStart)
	assert.Nil(t, err)
	_, err = out.Read(make([]byte, 1))
	assert.True(t, internalerror.Is(err, internalerror.NotSupported))
}

func TestOutputStreamError(t *testing.T) {
	dev := newPatterned(t)
	dev.fail = true
	out := NewOutputStream(dev, 0, 100)
	n, err := out.Write(bytes.Repeat([]byte{0}, 10))
	assert.Equal(t, 0, n)
	assert.True(t, internalerror.Is(err, internalerror.DeviceError))
	assert.Equal(t, -int(syscall.EIO), internalerror.Errno(err))
	assert.Equal(t, uint64(0), out.Position())
}

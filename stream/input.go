package stream

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/thesues/dandy-go/blockdev"
	"github.com/thesues/dandy-go/internalerror"
)

const DefaultCacheSize = 1024

//InputStream reads the window [begin, begin+size) of a device through a
//read-ahead cache. Positions are relative to the window.
type InputStream struct {
	dev   blockdev.BlockDevice
	begin uint64
	size  uint64
	pos   uint64

	cache       []byte
	cacheLen    int
	cacheCursor int
	cacheValid  bool
}

func checkWindow(dev blockdev.BlockDevice, begin uint64, size uint64) {
	if size == 0 {
		panic("stream: empty window")
	}
	if begin+size < begin || begin+size > dev.Size() {
		panic(fmt.Sprintf("stream: window %#x+%d is outside %s", begin, size, dev.Type()))
	}
}

//NewInputStream panics on an empty window or a zero cacheSize. The cache
//never grows beyond the window.
func NewInputStream(dev blockdev.BlockDevice, begin uint64, size uint64, cacheSize int) *InputStream {
	checkWindow(dev, begin, size)
	if cacheSize <= 0 {
		panic("stream: cache size must be positive")
	}
	if uint64(cacheSize) > size {
		cacheSize = int(size)
	}
	return &InputStream{
		dev:   dev,
		begin: begin,
		size:  size,
		cache: make([]byte, cacheSize),
	}
}

func (in *InputStream) fill() error {
	n := uint64(len(in.cache))
	if remain := in.size - in.pos; remain < n {
		n = remain
	}
	if err := in.dev.Read(in.cache[:n], in.begin+in.pos); err != nil {
		in.cacheValid = false
		return errors.Wrapf(err, "stream: read %#x+%d", in.begin+in.pos, n)
	}
	in.cacheLen = int(n)
	in.cacheCursor = 0
	in.cacheValid = true
	return nil
}

//ReadByte returns io.EOF at the end of the window, which Errno reports as -ENODATA
func (in *InputStream) ReadByte() (byte, error) {
	if in.pos >= in.size {
		return 0, io.EOF
	}
	if !in.cacheValid || in.cacheCursor >= in.cacheLen {
		if err := in.fill(); err != nil {
			return 0, err
		}
	}
	b := in.cache[in.cacheCursor]
	in.cacheCursor++
	in.pos++
	return b, nil
}

func (in *InputStream) Read(p []byte) (n int, err error) {
	for n < len(p) {
		var b byte
		if b, err = in.ReadByte(); err != nil {
			if err == io.EOF && n > 0 {
				err = nil
			}
			return
		}
		p[n] = b
		n++
	}
	return
}

func (in *InputStream) Write(p []byte) (int, error) {
	return 0, errors.Wrap(internalerror.NotSupported, "input stream is read only")
}

//Seek always drops the cache, even if the position does not change
func (in *InputStream) Seek(offset int64, whence int) (int64, error) {
	abs, err := blockdev.ConvertToOffset(in.pos, in.size, offset, whence)
	if err != nil {
		return int64(in.pos), err
	}
	in.pos = uint64(abs)
	in.cacheValid = false
	return abs, nil
}

func (in *InputStream) Position() uint64 {
	return in.pos
}

func (in *InputStream) Size() uint64 {
	return in.size
}

package stream

import (
	"io"

	"github.com/pkg/errors"
	"github.com/thesues/dandy-go/blockdev"
	"github.com/thesues/dandy-go/internalerror"
)

//OutputStream programs the window [begin, begin+size) of a device.
//Nothing is buffered and nothing is erased: the window must already be erased.
type OutputStream struct {
	dev   blockdev.BlockDevice
	begin uint64
	size  uint64
	pos   uint64
}

func NewOutputStream(dev blockdev.BlockDevice, begin uint64, size uint64) *OutputStream {
	checkWindow(dev, begin, size)
	return &OutputStream{
		dev:   dev,
		begin: begin,
		size:  size,
	}
}

//Write is clamped to the window. A clamped write returns the bytes actually
//programmed together with io.ErrShortWrite, which Errno reports as -ERANGE.
func (out *OutputStream) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := uint64(len(p))
	if remain := out.size - out.pos; remain < n {
		n = remain
	}
	if n > 0 {
		if err := out.dev.Program(p[:n], out.begin+out.pos); err != nil {
			return 0, errors.Wrapf(err, "stream: program %#x+%d", out.begin+out.pos, n)
		}
		out.pos += n
	}
	if n < uint64(len(p)) {
		return int(n), io.ErrShortWrite
	}
	return int(n), nil
}

func (out *OutputStream) Read(p []byte) (int, error) {
	return 0, errors.Wrap(internalerror.NotSupported, "output stream is write only")
}

func (out *OutputStream) Seek(offset int64, whence int) (int64, error) {
	abs, err := blockdev.ConvertToOffset(out.pos, out.size, offset, whence)
	if err != nil {
		return int64(out.pos), err
	}
	out.pos = uint64(abs)
	return abs, nil
}

func (out *OutputStream) Position() uint64 {
	return out.pos
}

func (out *OutputStream) Size() uint64 {
	return out.size
}

package blockdev

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/thesues/dandy-go/block"
	"github.com/thesues/dandy-go/internalerror"
	"github.com/thesues/dandy-go/util"
)

//FileDevice is a NOR flash image backed by a regular file.
//The file starts with a header region followed by the device contents.
type FileDevice struct {
	file       *os.File
	header     *ImageHeader
	dataOffset uint64
}

//CreateImage creates a new image at path, fully erased.
//An existing file is not overwritten.
func CreateImage(path string, capacity uint64, eraseSize block.Size) (*FileDevice, error) {
	if eraseSize == 0 || capacity == 0 || !eraseSize.IsAligned(capacity) {
		return nil, errors.Wrapf(internalerror.InvalidInput, "capacity %d is not aligned to %d", capacity, eraseSize)
	}
	header, err := NewImageHeader(capacity, eraseSize)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create image %s", path)
	}
	if err = lockFileWithExclusiveLock(f); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "failed to lock image %s", path)
	}

	dev := &FileDevice{
		file:       f,
		header:     header,
		dataOffset: header.RegionSize(),
	}

	var buf bytes.Buffer
	if err = header.WriteHeaderRegionTo(&buf); err != nil {
		dev.Close()
		return nil, err
	}
	if _, err = f.WriteAt(buf.Bytes(), 0); err != nil {
		dev.Close()
		return nil, errors.Wrap(err, "failed to write image header")
	}
	if err = dev.Erase(0, capacity); err != nil {
		dev.Close()
		return nil, err
	}
	return dev, nil
}

func OpenImage(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open image %s", path)
	}
	if err = lockFileWithExclusiveLock(f); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "failed to lock image %s", path)
	}

	header, err := ReadFrom(f)
	if err != nil {
		unlockFile(f)
		f.Close()
		return nil, err
	}

	var metadata os.FileInfo
	if metadata, err = f.Stat(); err != nil {
		unlockFile(f)
		f.Close()
		return nil, errors.Wrap(err, "failed to get metadata")
	}
	if uint64(metadata.Size()) < header.ImageSize() {
		unlockFile(f)
		f.Close()
		return nil, errors.Wrapf(internalerror.InvalidInput, "image %s is truncated: %d < %d",
			path, metadata.Size(), header.ImageSize())
	}

	return &FileDevice{
		file:       f,
		header:     header,
		dataOffset: header.RegionSize(),
	}, nil
}

func (dev *FileDevice) Header() ImageHeader {
	return *dev.header
}

func (dev *FileDevice) Sync() error {
	return dev.file.Sync()
}

func (dev *FileDevice) Close() error {
	unlockFile(dev.file)
	return dev.file.Close()
}

func (dev *FileDevice) Init() error {
	return nil
}

func (dev *FileDevice) Deinit() error {
	return dev.Sync()
}

func (dev *FileDevice) Read(dst []byte, addr uint64) error {
	AssertRead(dev, addr, uint64(len(dst)))
	if _, err := dev.file.ReadAt(dst, int64(dev.dataOffset+addr)); err != nil && err != io.EOF {
		return errors.Wrapf(internalerror.DeviceError, "image read at %#x: %v", addr, err)
	}
	return nil
}

func (dev *FileDevice) Program(src []byte, addr uint64) error {
	AssertProgram(dev, addr, uint64(len(src)))
	current := make([]byte, len(src))
	if err := dev.Read(current, addr); err != nil {
		return err
	}
	for i := range src {
		current[i] &= src[i]
	}
	if _, err := dev.file.WriteAt(current, int64(dev.dataOffset+addr)); err != nil {
		return errors.Wrapf(internalerror.DeviceError, "image program at %#x: %v", addr, err)
	}
	return nil
}

func (dev *FileDevice) Erase(addr uint64, size uint64) error {
	AssertErase(dev, addr, size)
	eraseSize := dev.header.EraseSize.AsU64()
	erased := make([]byte, eraseSize)
	util.Fill(erased, ERASED_BYTE)
	for off := uint64(0); off < size; off += eraseSize {
		if _, err := dev.file.WriteAt(erased, int64(dev.dataOffset+addr+off)); err != nil {
			return errors.Wrapf(internalerror.DeviceError, "image erase at %#x: %v", addr+off, err)
		}
	}
	return nil
}

func (dev *FileDevice) ReadSize() uint64 {
	return 1
}

func (dev *FileDevice) ProgramSize() uint64 {
	return 1
}

func (dev *FileDevice) EraseSize() uint64 {
	return dev.header.EraseSize.AsU64()
}

func (dev *FileDevice) Size() uint64 {
	return dev.header.Capacity
}

func (dev *FileDevice) Type() string {
	return "FileDevice"
}

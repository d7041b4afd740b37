package blockdev

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/thesues/dandy-go/block"
	"github.com/thesues/dandy-go/internalerror"
)

func TestImageHeader(t *testing.T) {
	header, err := NewImageHeader(64*block.KiB, block.SIZE_4KB)
	assert.Nil(t, err)
	assert.Equal(t, uint64(4096), header.RegionSize())
	assert.Equal(t, uint64(4096+64*block.KiB), header.ImageSize())
	assert.Equal(t, byte(4), header.UUID.Bytes()[6]>>4)

	tempfile, err := ioutil.TempFile("", "dandy-header")
	assert.Nil(t, err)
	defer os.Remove(tempfile.Name())
	defer tempfile.Close()

	assert.Nil(t, header.WriteHeaderRegionTo(tempfile))
	_, err = tempfile.Seek(0, 0)
	assert.Nil(t, err)

	other, err := ReadFrom(tempfile)
	assert.Nil(t, err)
	assert.Equal(t, *header, *other)
}

func TestImageHeaderBadMagic(t *testing.T) {
	tempfile, err := ioutil.TempFile("", "dandy-header")
	assert.Nil(t, err)
	defer os.Remove(tempfile.Name())
	defer tempfile.Close()

	tempfile.Write([]byte("nope and more"))
	tempfile.Seek(0, 0)
	_, err = ReadFrom(tempfile)
	assert.True(t, internalerror.Is(err, internalerror.InvalidInput))
}

func TestFileDevice(t *testing.T) {
	dir, err := ioutil.TempDir("", "dandy-image")
	assert.Nil(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "flash.img")

	dev, err := CreateImage(path, 32*block.KiB, block.SIZE_4KB)
	assert.Nil(t, err)
	assert.Equal(t, uint64(32*block.KiB), dev.Size())
	assert.Equal(t, uint64(4096), dev.EraseSize())

	buf := make([]byte, 3)
	assert.Nil(t, dev.Read(buf, 32*block.KiB-3))
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF}, buf)

	assert.Nil(t, dev.Program([]byte{0xF0, 0x0F, 0x00}, 10))
	assert.Nil(t, dev.Program([]byte{0x3C, 0x3C, 0xFF}, 10))
	assert.Nil(t, Replace(dev, []byte("HELLO"), 0x1002))
	id := dev.Header().UUID
	assert.Nil(t, dev.Close())

	//creating twice fails
	_, err = CreateImage(path, 32*block.KiB, block.SIZE_4KB)
	assert.NotNil(t, err)

	dev, err = OpenImage(path)
	assert.Nil(t, err)
	defer dev.Close()
	assert.Equal(t, id, dev.Header().UUID)

	assert.Nil(t, dev.Read(buf, 10))
	assert.Equal(t, []byte{0x30, 0x0C, 0x00}, buf)
	hello := make([]byte, 5)
	assert.Nil(t, dev.Read(hello, 0x1002))
	assert.Equal(t, []byte("HELLO"), hello)

	assert.Nil(t, dev.Erase(0, 4096))
	assert.Nil(t, dev.Read(buf, 10))
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF}, buf)
}

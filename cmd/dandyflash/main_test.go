package main

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/thesues/dandy-go/block"
	"github.com/thesues/dandy-go/blockdev"
	"github.com/thesues/dandy-go/internalerror"
)

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in  string
		out uint64
	}{
		{"0", 0},
		{"4096", 4096},
		{"0x1000", 0x1000},
		{"4KiB", 4096},
		{"8MiB", 8 << 20},
		{"1kB", 1000},
	}
	for _, c := range cases {
		n, err := parseNumber(c.in)
		assert.Nil(t, err, c.in)
		assert.Equal(t, c.out, n, c.in)
	}

	for _, in := range []string{"", "foo", "0xZZ"} {
		_, err := parseNumber(in)
		assert.True(t, internalerror.Is(err, internalerror.InvalidInput), in)
	}
}

func TestCompare(t *testing.T) {
	diff, first := compare([]byte("HELLO"), []byte("HELLO"))
	assert.Equal(t, 0, diff)
	assert.Equal(t, -1, first)

	diff, first = compare([]byte("HELLO"), []byte("HEXLX"))
	assert.Equal(t, 2, diff)
	assert.Equal(t, 2, first)
}

func TestOpenSimSession(t *testing.T) {
	s, err := openSession(options{transport: "sim", chip: "sst26", base: 0x10000000})
	assert.Nil(t, err)
	defer s.Close()

	info := s.info()
	assert.Equal(t, "SST26", info.Type)
	assert.Equal(t, "SST26VF064", info.Part)
	assert.Equal(t, "BF 26 43", info.JedecID)
	assert.Equal(t, 8*block.MiB, info.Size)
	assert.Equal(t, uint64(0x10000000), info.Base)

	regions := s.regions()
	assert.Equal(t, 1, len(regions))
	assert.Equal(t, uint64(0x10000000), regions[0].Virtual)
	assert.Equal(t, 8*block.MiB, regions[0].Size)

	loc, err := s.locate(0x10001002, 5)
	assert.Nil(t, err)
	assert.Equal(t, uint64(0x1002), loc.Physical)
	assert.Nil(t, blockdev.Replace(loc.Device, []byte("HELLO"), loc.Physical))

	buf := make([]byte, 7)
	loc, err = s.locate(0x10001001, 7)
	assert.Nil(t, err)
	assert.Nil(t, loc.Device.Read(buf, loc.Physical))
	assert.Equal(t, []byte("\xffHELLO\xff"), buf)

	_, err = s.locate(0x1000, 1)
	assert.True(t, internalerror.Is(err, internalerror.OutOfRange))
	_, err = s.locate(0x10000000+8*block.MiB-1, 2)
	assert.True(t, internalerror.Is(err, internalerror.OutOfRange))
}

func TestOpenIS25SimSession(t *testing.T) {
	s, err := openSession(options{transport: "sim", chip: "is25"})
	assert.Nil(t, err)
	defer s.Close()
	info := s.info()
	assert.Equal(t, "IS25", info.Type)
	assert.Equal(t, 16*block.MiB, info.Size)
	assert.Equal(t, 4*block.KiB, info.EraseSize)
}

func TestOpenImageSession(t *testing.T) {
	dir, err := ioutil.TempDir("", "dandyflash")
	assert.Nil(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "flash.img")

	dev, err := blockdev.CreateImage(path, 64*block.KiB, block.SIZE_4KB)
	assert.Nil(t, err)
	assert.Nil(t, dev.Close())

	s, err := openSession(options{transport: "image", image: path})
	assert.Nil(t, err)
	info := s.info()
	assert.Equal(t, "FileDevice", info.Type)
	assert.Equal(t, "", info.Part)
	assert.Equal(t, 64*block.KiB, info.Size)

	loc, err := s.locate(0x100, 3)
	assert.Nil(t, err)
	assert.Nil(t, blockdev.Replace(loc.Device, []byte("abc"), loc.Physical))
	assert.Nil(t, s.Close())

	//the image is locked while a session holds it
	s, err = openSession(options{transport: "image", image: path})
	assert.Nil(t, err)
	_, err = openSession(options{transport: "image", image: path})
	assert.NotNil(t, err)

	buf := make([]byte, 3)
	loc, _ = s.locate(0x100, 3)
	assert.Nil(t, loc.Device.Read(buf, loc.Physical))
	assert.True(t, bytes.Equal([]byte("abc"), buf))
	assert.Nil(t, s.Close())
}

func TestOpenSessionErrors(t *testing.T) {
	_, err := openSession(options{transport: "usb", chip: "sst26"})
	assert.True(t, internalerror.Is(err, internalerror.InvalidInput))

	_, err = openSession(options{transport: "sim", chip: "w25"})
	assert.True(t, internalerror.Is(err, internalerror.InvalidInput))

	_, err = openSession(options{transport: "sim", chip: "sst26", base: 0xFFFF0000})
	assert.True(t, internalerror.Is(err, internalerror.InvalidInput))

	_, err = openSession(options{transport: "image", image: "/nonexistent/flash.img"})
	assert.NotNil(t, err)
	assert.True(t, os.IsNotExist(errors.Cause(err)))
}

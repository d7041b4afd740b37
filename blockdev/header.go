package blockdev

import (
	"crypto/rand"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/thesues/dandy-go/block"
	"github.com/thesues/dandy-go/internalerror"
)

var (
	MAGIC_NUMBER = [4]byte{'d', 'f', 'l', 's'}
)

/*
       0                   1                   2                   3
       0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
      |                         Magic Number                          |
      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
      |        Header Size            |      Major Version            |
      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
      |        Minor Version          |      Erase Size (high)        |
      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
      |      Erase Size (low)         |                               |
      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+                               |
      |                     Instance UUID (128 bit)                   |
      |                                                               |
      |                               +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
      |                               |                               |
      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+                               |
      |                     Capacity (64 bit)                         |
      |                               +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
      |                               |    Padding (Variable)
      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
*/

const (
	MAJOR_VERSION uint16 = 1
	MINOR_VERSION uint16 = 0

	HEADER_SIZE uint16 = 2 /* major_version */ +
		2 /* minor_version */ +
		4 /* erase_size */ +
		16 /* UUID */ +
		8 /* capacity */
	FULL_HEADER_SIZE uint16 = 4 + 2 + HEADER_SIZE
)

type ImageHeader struct {
	MajorVersion uint16
	MinorVersion uint16
	EraseSize    block.Size
	UUID         uuid.UUID
	Capacity     uint64
}

func NewImageHeader(capacity uint64, eraseSize block.Size) (*ImageHeader, error) {
	id, err := newInstanceID()
	if err != nil {
		return nil, err
	}
	return &ImageHeader{
		MajorVersion: MAJOR_VERSION,
		MinorVersion: MINOR_VERSION,
		EraseSize:    eraseSize,
		UUID:         id,
		Capacity:     capacity,
	}, nil
}

//random (version 4) uuid
func newInstanceID() (uuid.UUID, error) {
	var raw [16]byte
	if _, err := io.ReadFull(rand.Reader, raw[:]); err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to generate instance id")
	}
	raw[6] = (raw[6] & 0x0f) | 0x40
	raw[8] = (raw[8] & 0x3f) | 0x80
	return uuid.FromBytes(raw[:])
}

func ReadFrom(reader io.Reader) (*ImageHeader, error) {

	//magic number
	var magicNumber [4]byte
	if _, err := io.ReadFull(reader, magicNumber[:]); err != nil {
		return nil, errors.Wrap(internalerror.InvalidInput, "read magic number")
	} else if magicNumber != MAGIC_NUMBER {
		return nil, errors.Wrapf(internalerror.InvalidInput, "bad magic number %q", magicNumber[:])
	}

	//header size
	var headerSize uint16
	if err := binary.Read(reader, binary.BigEndian, &headerSize); err != nil {
		return nil, internalerror.InvalidInput
	} else if headerSize != HEADER_SIZE {
		return nil, errors.Wrapf(internalerror.InvalidInput, "header size %d", headerSize)
	}

	reader = io.LimitReader(reader, int64(headerSize))

	var majorVersion uint16
	if err := binary.Read(reader, binary.BigEndian, &majorVersion); err != nil {
		return nil, internalerror.InvalidInput
	} else if majorVersion != MAJOR_VERSION {
		return nil, errors.Wrapf(internalerror.InvalidInput, "major version %d", majorVersion)
	}

	var minorVersion uint16
	if err := binary.Read(reader, binary.BigEndian, &minorVersion); err != nil {
		return nil, internalerror.InvalidInput
	}

	var es uint32
	var eraseSize block.Size
	if err := binary.Read(reader, binary.BigEndian, &es); err != nil {
		return nil, internalerror.InvalidInput
	} else if eraseSize, err = block.NewSize(uint64(es)); err != nil {
		return nil, err
	}

	// UUID
	var uuidBuf [16]byte
	if _, err := io.ReadFull(reader, uuidBuf[:]); err != nil {
		return nil, internalerror.InvalidInput
	}
	imageUUID, err := uuid.FromBytes(uuidBuf[:])
	if err != nil {
		return nil, internalerror.InvalidInput
	}

	var capacity uint64
	if err := binary.Read(reader, binary.BigEndian, &capacity); err != nil {
		return nil, internalerror.InvalidInput
	}
	if !eraseSize.IsAligned(capacity) {
		return nil, errors.Wrapf(internalerror.InvalidInput, "capacity %d is not aligned to %d", capacity, eraseSize)
	}

	return &ImageHeader{
		MajorVersion: majorVersion,
		MinorVersion: minorVersion,
		EraseSize:    eraseSize,
		UUID:         imageUUID,
		Capacity:     capacity,
	}, nil
}

func (self *ImageHeader) WriteTo(writer io.Writer) (err error) {
	//MAGIC NUMBER
	if _, err = writer.Write(MAGIC_NUMBER[:]); err != nil {
		return err
	}
	if err = binary.Write(writer, binary.BigEndian, HEADER_SIZE); err != nil {
		return err
	}
	if err = binary.Write(writer, binary.BigEndian, self.MajorVersion); err != nil {
		return err
	}
	if err = binary.Write(writer, binary.BigEndian, self.MinorVersion); err != nil {
		return err
	}
	if err = binary.Write(writer, binary.BigEndian, uint32(self.EraseSize)); err != nil {
		return err
	}
	if _, err = writer.Write(self.UUID.Bytes()); err != nil {
		return err
	}
	return binary.Write(writer, binary.BigEndian, self.Capacity)
}

//RegionSize is the on-disk size of the header, one erase block at least
func (self *ImageHeader) RegionSize() uint64 {
	return self.EraseSize.CeilAlign(uint64(FULL_HEADER_SIZE))
}

//ImageSize is the size of the whole image file
func (self *ImageHeader) ImageSize() uint64 {
	return self.RegionSize() + self.Capacity
}

func (self *ImageHeader) WriteHeaderRegionTo(writer io.Writer) (err error) {
	if err = self.WriteTo(writer); err != nil {
		return
	}

	padding := make([]byte, self.RegionSize()-uint64(FULL_HEADER_SIZE))
	_, err = writer.Write(padding)
	return
}

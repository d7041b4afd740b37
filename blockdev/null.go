package blockdev

import (
	"math"

	"github.com/pkg/errors"
	"github.com/thesues/dandy-go/internalerror"
)

//NullOutputDevice accepts any program and keeps nothing.
//Reading from it always fails.
type NullOutputDevice struct{}

func (NullOutputDevice) Init() error   { return nil }
func (NullOutputDevice) Deinit() error { return nil }

func (NullOutputDevice) Read(dst []byte, addr uint64) error {
	return errors.Wrap(internalerror.DeviceError, "null device can not be read")
}

func (NullOutputDevice) Program(src []byte, addr uint64) error { return nil }
func (NullOutputDevice) Erase(addr uint64, size uint64) error  { return nil }
func (NullOutputDevice) ReadSize() uint64                      { return 1 }
func (NullOutputDevice) ProgramSize() uint64                   { return 1 }
func (NullOutputDevice) EraseSize() uint64                     { return 1 }
func (NullOutputDevice) Size() uint64                          { return math.MaxUint32 }
func (NullOutputDevice) Type() string                          { return "NullOutputDevice" }

package internalerror

import (
	"errors"
	"io"
	"syscall"

	pkgerrors "github.com/pkg/errors"
)

var (
	DeviceError   = errors.New("Device error")
	OutOfRange    = errors.New("Out of range")
	NoData        = errors.New("No data")
	AccessDenied  = errors.New("Access denied")
	NotSupported  = errors.New("Operation not supported")
	DeviceTimeout = errors.New("Device timeout")
	InvalidInput  = errors.New("Invalid input")
)

var errnos = map[error]syscall.Errno{
	DeviceError:   syscall.EIO,
	OutOfRange:    syscall.ERANGE,
	NoData:        syscall.ENODATA,
	AccessDenied:  syscall.EACCES,
	NotSupported:  syscall.ENOSYS,
	DeviceTimeout: syscall.ETIMEDOUT,
	InvalidInput:  syscall.EINVAL,
	//end of a stream window and a write clamped to it
	io.EOF:           syscall.ENODATA,
	io.ErrShortWrite: syscall.ERANGE,
}

//Errno maps err to a negative POSIX code, 0 for nil.
//Errors without a known cause are reported as -EIO.
func Errno(err error) int {
	if err == nil {
		return 0
	}
	cause := pkgerrors.Cause(err)
	if e, ok := errnos[cause]; ok {
		return -int(e)
	}
	if e, ok := cause.(syscall.Errno); ok {
		return -int(e)
	}
	return -int(syscall.EIO)
}

//Is reports whether the cause of err is target.
func Is(err error, target error) bool {
	return pkgerrors.Cause(err) == target
}

//go:build linux || darwin || freebsd || netbsd || openbsd

package blockdev

import (
	"os"

	"golang.org/x/sys/unix"
)

func lockFileWithExclusiveLock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package blockdev

import (
	"os"
)

func lockFileWithExclusiveLock(f *os.File) error {
	return nil
}

func unlockFile(f *os.File) error {
	return nil
}

//go:build windows

package fsutil

import "syscall"

// errNotSameDevice is ERROR_NOT_SAME_DEVICE, Windows' analogue of EXDEV.
const errNotSameDevice = syscall.Errno(17)

func syscallEXDEV() error {
	return errNotSameDevice
}

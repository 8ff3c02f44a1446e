//go:build !windows

package fsutil

import "syscall"

// syscallEXDEV returns the platform's cross-device-link error.
func syscallEXDEV() error {
	return syscall.EXDEV
}

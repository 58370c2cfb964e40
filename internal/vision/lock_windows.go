//go:build windows

package vision

import (
	"errors"
	"syscall"
)

const (
	errSharingViolation syscall.Errno = 32
	errLockViolation    syscall.Errno = 33
)

func isLocked(err error) bool {
	return errors.Is(err, errSharingViolation) ||
		errors.Is(err, errLockViolation) ||
		errors.Is(err, syscall.ERROR_ACCESS_DENIED)
}

//go:build !windows

package vision

import (
	"errors"
	"syscall"
)

// isLocked reports errors a file being written by another process can produce.
func isLocked(err error) bool {
	return errors.Is(err, syscall.EACCES) ||
		errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.ETXTBSY) ||
		errors.Is(err, syscall.EAGAIN)
}

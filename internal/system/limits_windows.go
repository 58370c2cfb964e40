//go:build windows

package system

import "go.uber.org/zap"

// InitResourceLimits is a no-op on Windows, which has no RLIMIT_NOFILE.
func InitResourceLimits(log *zap.Logger) {}

//go:build !windows

package system

import (
	"syscall"

	"go.uber.org/zap"
)

// InitResourceLimits raises the open file limit; ffmpeg pipes and frame files add up on long videos.
func InitResourceLimits(log *zap.Logger) {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Warn("could not read open file limit", zap.Error(err))
		return
	}

	if rLimit.Cur >= 2048 {
		return
	}
	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Warn("could not raise open file limit", zap.Error(err))
		return
	}
	log.Debug("open file limit raised", zap.Uint64("limit", uint64(rLimit.Cur)))
}

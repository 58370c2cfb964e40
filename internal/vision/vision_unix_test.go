//go:build !windows

package vision

import (
	"context"
	"io/fs"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/videonarrator/internal/frames"
	"github.com/ivlev/videonarrator/internal/retry"
)

func TestDescribeRetriesLockedFrame(t *testing.T) {
	dir := writeFrames(t, 2)
	orig := readFile
	defer func() { readFile = orig }()

	attempts := map[string]int{}
	readFile = func(name string) ([]byte, error) {
		attempts[filepath.Base(name)]++
		if filepath.Base(name) == frames.FileName(0) && attempts[filepath.Base(name)] < 3 {
			return nil, &fs.PathError{Op: "open", Path: name, Err: syscall.EACCES}
		}
		return orig(name)
	}

	d := &fakeDescriber{}
	text, err := newTestPipeline(t, d).Describe(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, "frame 1 frame 2", text)
	assert.Equal(t, 3, attempts[frames.FileName(0)])
	assert.Equal(t, 1, attempts[frames.FileName(60)])
}

func TestDescribeBoundedLockRetrySkipsFrame(t *testing.T) {
	dir := writeFrames(t, 2)
	orig := readFile
	defer func() { readFile = orig }()
	readFile = func(name string) ([]byte, error) {
		if filepath.Base(name) == frames.FileName(0) {
			return nil, &fs.PathError{Op: "open", Path: name, Err: syscall.EBUSY}
		}
		return orig(name)
	}

	d := &fakeDescriber{}
	p := newTestPipeline(t, d)
	p.ReadRetry = retry.Fixed(4, 0)

	text, err := p.Describe(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "frame 1", text)
	assert.Len(t, d.calls, 1, "locked frame never reaches the service")
}

func TestIsLocked(t *testing.T) {
	assert.True(t, isLocked(&fs.PathError{Err: syscall.EACCES}))
	assert.True(t, isLocked(syscall.EBUSY))
	assert.False(t, isLocked(syscall.ENOENT))
}

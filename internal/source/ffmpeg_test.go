package source

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawFrames(w, h, n int) []byte {
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		buf.Write(bytes.Repeat([]byte{byte(i), 0, 0, 255}, w*h))
	}
	return buf.Bytes()
}

func TestRawSourceReadsAllFrames(t *testing.T) {
	src := newRawSource(bytes.NewReader(rawFrames(4, 2, 3)), 4, 2, 25)
	waited := false
	src.wait = func() error { waited = true; return nil }

	var reds []uint8
	for {
		img, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		reds = append(reds, img.(*image.RGBA).Pix[0])
	}

	assert.Equal(t, []uint8{0, 1, 2}, reds)
	assert.True(t, waited)
	assert.Equal(t, 25.0, src.FPS())
	assert.NoError(t, src.Close())
}

func TestRawSourceTruncatedFrame(t *testing.T) {
	data := rawFrames(4, 2, 2)
	src := newRawSource(bytes.NewReader(data[:len(data)-5]), 4, 2, 25)

	_, err := src.Next()
	require.NoError(t, err)
	_, err = src.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestRawSourceDecoderFailure(t *testing.T) {
	boom := errors.New("ffmpeg exited 1")
	src := newRawSource(bytes.NewReader(nil), 4, 2, 25)
	src.wait = func() error { return boom }

	_, err := src.Next()
	assert.ErrorIs(t, err, boom)
}

func TestRawSourceCloseKillsUnfinishedDecoder(t *testing.T) {
	src := newRawSource(bytes.NewReader(rawFrames(2, 2, 5)), 2, 2, 30)
	killed := 0
	src.kill = func() { killed++ }

	_, err := src.Next()
	require.NoError(t, err)
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	assert.Equal(t, 1, killed)

	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFFmpegOpen(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}

	video := filepath.Join(t.TempDir(), "test.mp4")
	gen := exec.Command("ffmpeg", "-v", "error", "-f", "lavfi", "-i", "testsrc=size=320x240:rate=10",
		"-t", "2", "-pix_fmt", "yuv420p", video)
	out, err := gen.CombinedOutput()
	require.NoError(t, err, string(out))

	src, err := FFmpeg{}.Open(context.Background(), video)
	require.NoError(t, err)
	defer src.Close()

	assert.InDelta(t, 10.0, src.FPS(), 0.01)

	count := 0
	for {
		img, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 320, 240), img.Bounds())
		count++
	}
	assert.Equal(t, 20, count)
}

func TestFFmpegOpenMissingFile(t *testing.T) {
	_, err := FFmpeg{}.Open(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"))
	assert.Error(t, err)
}

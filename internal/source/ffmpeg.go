package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/ivlev/videonarrator/internal/system"
)

// FFmpeg opens videos by probing them with ffprobe and decoding the first
// video stream to raw RGBA through an ffmpeg pipe.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
}

func (f FFmpeg) Open(ctx context.Context, path string) (VideoSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	info, err := system.ProbeVideo(ctx, f.FFprobePath, path)
	if err != nil {
		return nil, err
	}

	bin := f.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}
	// -noautorotate keeps the output size equal to the probed stream size.
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-nostdin",
		"-noautorotate",
		"-i", path,
		"-map", "0:v:0",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-vsync", "0",
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}

	src := newRawSource(stdout, info.Width, info.Height, info.FPS)
	src.wait = func() error {
		if err := cmd.Wait(); err != nil {
			return fmt.Errorf("ffmpeg decode error: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil
	}
	src.kill = func() {
		_ = stdout.Close()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
	return src, nil
}

// rawSource reads fixed-size RGBA frames from a byte stream.
type rawSource struct {
	r     *bufio.Reader
	frame *image.RGBA
	fps   float64
	read  int

	wait func() error
	kill func()
	done bool
}

func newRawSource(r io.Reader, width, height int, fps float64) *rawSource {
	frame := image.NewRGBA(image.Rect(0, 0, width, height))
	return &rawSource{
		r:     bufio.NewReaderSize(r, len(frame.Pix)),
		frame: frame,
		fps:   fps,
	}
}

func (s *rawSource) FPS() float64 { return s.fps }

func (s *rawSource) Next() (image.Image, error) {
	if s.done {
		return nil, io.EOF
	}

	_, err := io.ReadFull(s.r, s.frame.Pix)
	switch {
	case err == nil:
		s.read++
		return s.frame, nil
	case errors.Is(err, io.EOF):
		s.done = true
		if s.wait != nil {
			if werr := s.wait(); werr != nil {
				return nil, werr
			}
		}
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
		if s.wait != nil {
			if werr := s.wait(); werr != nil {
				return nil, fmt.Errorf("truncated frame %d: %w", s.read, werr)
			}
		}
		return nil, fmt.Errorf("truncated frame %d: %w", s.read, err)
	default:
		return nil, fmt.Errorf("read frame %d: %w", s.read, err)
	}
}

// Close stops the decoder if the stream was not read to the end.
func (s *rawSource) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	if s.kill != nil {
		s.kill()
	}
	return nil
}

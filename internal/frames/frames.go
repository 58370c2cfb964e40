package frames

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/ivlev/videonarrator/internal/metrics"
	"github.com/ivlev/videonarrator/internal/source"
	"github.com/ivlev/videonarrator/internal/system"
)

var (
	ErrSourceUnavailable = errors.New("video source unavailable")
	ErrFrameDecode       = errors.New("frame decode failed")
)

const (
	DefaultMaxDimension = 250
	DefaultJPEGQuality  = 95
)

// Frame is one sampled image written to the frame directory.
type Frame struct {
	Index int
	// SourceOffset is the position of the frame in the decoded stream.
	SourceOffset int
	Path         string
}

// FileName encodes the source offset zero-padded, so lexical order is temporal order.
func FileName(offset int) string {
	return fmt.Sprintf("frame_%08d.jpg", offset)
}

type Extractor struct {
	Source       source.Opener
	MaxDimension int
	Quality      int
	Logger       *zap.Logger
}

func NewExtractor(src source.Opener, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{
		Source:       src,
		MaxDimension: DefaultMaxDimension,
		Quality:      DefaultJPEGQuality,
		Logger:       log,
	}
}

// Step converts an interval in seconds to a stride in source frames.
func Step(fps, intervalSeconds float64) int {
	step := int(math.Round(fps * intervalSeconds))
	if step < 1 {
		step = 1
	}
	return step
}

// Extract samples one frame every intervalSeconds of videoPath into outputDir.
//
// outputDir is emptied first. On a decode error the frames already written
// are returned together with an error wrapping ErrFrameDecode.
func (e *Extractor) Extract(ctx context.Context, videoPath, outputDir string, intervalSeconds float64) ([]Frame, error) {
	log := e.Logger.With(zap.String("video", videoPath))

	if err := ClearDir(outputDir); err != nil {
		return nil, fmt.Errorf("prepare frame directory: %w", err)
	}
	log.Info("frames will be saved", zap.String("dir", outputDir))

	src, err := e.Source.Open(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, videoPath, err)
	}
	defer src.Close()

	step := Step(src.FPS(), intervalSeconds)
	log.Debug("sampling", zap.Float64("fps", src.FPS()), zap.Int("step", step))

	var frames []Frame
	for frameCount := 0; ; frameCount++ {
		if err := ctx.Err(); err != nil {
			return frames, err
		}

		img, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Error("frame extraction aborted", zap.Int("frame", frameCount), zap.Error(err))
			return frames, fmt.Errorf("%w at frame %d: %v", ErrFrameDecode, frameCount, err)
		}
		if frameCount%step != 0 {
			continue
		}

		path := filepath.Join(outputDir, FileName(frameCount))
		if err := e.writeFrame(img, path); err != nil {
			log.Error("frame extraction aborted", zap.Int("frame", frameCount), zap.Error(err))
			return frames, fmt.Errorf("%w at frame %d: %v", ErrFrameDecode, frameCount, err)
		}
		frames = append(frames, Frame{Index: len(frames), SourceOffset: frameCount, Path: path})
		metrics.FramesExtractedTotal.Inc()
		log.Info("frame saved", zap.Int("frame", frameCount))
	}

	log.Info("frame extraction finished", zap.Int("count", len(frames)))
	return frames, nil
}

func (e *Extractor) writeFrame(img image.Image, path string) error {
	dst := Normalize(img, e.MaxDimension)
	defer system.PutImage(dst)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, dst, &jpeg.Options{Quality: e.Quality}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// TargetSize scales w×h so that the larger side equals maxDim.
func TargetSize(w, h, maxDim int) (int, int) {
	if w >= h {
		nh := int(math.Round(float64(h) * float64(maxDim) / float64(w)))
		return maxDim, max(nh, 1)
	}
	nw := int(math.Round(float64(w) * float64(maxDim) / float64(h)))
	return max(nw, 1), maxDim
}

// Normalize resizes img with Catmull-Rom resampling into a pooled RGBA buffer;
// the caller returns it with system.PutImage.
func Normalize(img image.Image, maxDim int) *image.RGBA {
	b := img.Bounds()
	w, h := TargetSize(b.Dx(), b.Dy(), maxDim)
	dst := system.GetImage(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// ClearDir removes everything inside dir, creating dir if it is missing.
func ClearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return os.MkdirAll(dir, 0755)
}

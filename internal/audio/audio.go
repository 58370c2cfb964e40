package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ivlev/videonarrator/internal/metrics"
	"github.com/ivlev/videonarrator/internal/retry"
)

// ErrMergeTool is wrapped by Merge when the manifest or the concatenation fails.
var ErrMergeTool = errors.New("audio: merge tool failed")

// ManifestName is the concat list written next to the merged output.
const ManifestName = "concat.txt"

// Swapped in tests to simulate files held open by another process.
var removeFile = os.Remove

// Concatenator joins the files listed in manifest into output without re-encoding.
type Concatenator interface {
	Concat(ctx context.Context, manifest, output string) error
}

// FFmpegConcatenator runs the ffmpeg concat demuxer with stream copy.
type FFmpegConcatenator struct {
	Binary string
}

// Concat returns ffmpeg's combined output in the error on failure.
func (c FFmpegConcatenator) Concat(ctx context.Context, manifest, output string) error {
	bin := c.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin, "-y",
		"-f", "concat", "-safe", "0", "-i", manifest,
		"-c", "copy", output,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg concat error: %v, output: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Assembler merges speech segments into one file and cleans up after itself.
type Assembler struct {
	Concat  Concatenator
	Cleanup retry.Policy
	Logger  *zap.Logger
}

// NewAssembler deletes with 3 attempts 500ms apart.
func NewAssembler(c Concatenator, log *zap.Logger) *Assembler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Assembler{
		Concat:  c,
		Cleanup: retry.Fixed(3, 500*time.Millisecond),
		Logger:  log,
	}
}

// Merge concatenates segments, in order, into output and returns its path.
// On success the manifest and the segments are removed; a failed removal is
// only logged. On failure everything is left on disk.
func (a *Assembler) Merge(ctx context.Context, segments []string, output string) (string, error) {
	if len(segments) == 0 {
		return "", fmt.Errorf("%w: no segments to merge", ErrMergeTool)
	}

	manifest := filepath.Join(filepath.Dir(output), ManifestName)
	if err := writeManifest(manifest, segments); err != nil {
		metrics.MergesTotal.WithLabelValues(metrics.StatusFailed).Inc()
		a.Logger.Error("could not write concat manifest", zap.String("manifest", manifest), zap.Error(err))
		return "", fmt.Errorf("%w: write concat manifest: %v", ErrMergeTool, err)
	}

	if err := a.Concat.Concat(ctx, manifest, output); err != nil {
		a.Logger.Error("audio merge failed", zap.String("manifest", manifest), zap.Error(err))
		metrics.MergesTotal.WithLabelValues(metrics.StatusFailed).Inc()
		return "", fmt.Errorf("%w: %v", ErrMergeTool, err)
	}
	metrics.MergesTotal.WithLabelValues(metrics.StatusOK).Inc()

	a.remove(ctx, manifest)
	for _, seg := range segments {
		a.remove(ctx, seg)
	}
	return output, nil
}

// remove deletes path under the cleanup policy; an already missing file counts as removed.
func (a *Assembler) remove(ctx context.Context, path string) {
	err := a.Cleanup.Do(ctx, func() error {
		err := removeFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}, nil)
	if err != nil {
		a.Logger.Warn("could not delete temporary file", zap.String("path", path), zap.Error(err))
	}
}

// writeManifest writes one `file '<abs path>'` line per segment.
func writeManifest(path string, segments []string) error {
	var b strings.Builder
	for _, seg := range segments {
		abs, err := filepath.Abs(seg)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "file '%s'\n", quote(abs))
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}

// quote escapes single quotes for the concat demuxer's quoted strings.
func quote(s string) string {
	return strings.ReplaceAll(s, "'", `'\''`)
}

package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ivlev/videonarrator/internal/frames"
	"github.com/ivlev/videonarrator/internal/metrics"
	"github.com/ivlev/videonarrator/internal/retry"
	"github.com/ivlev/videonarrator/internal/script"
)

// ErrFrameRead marks a frame file that could not be read for a reason other
// than a transient lock. It aborts the run.
var ErrFrameRead = errors.New("frame read failed")

// Swapped in tests to simulate locked files.
var readFile = os.ReadFile

// Swapped in tests to observe the throttle.
var wait = retry.Wait

// Request is one call to the vision service: the persona as system prompt,
// the descriptions so far, and the new frame with its instruction.
type Request struct {
	Persona     string
	History     script.Script
	ImageBase64 string
	Instruction string
	MaxTokens   int
}

type Describer interface {
	Describe(ctx context.Context, req Request) (string, error)
}

type Pipeline struct {
	Describer   Describer
	Persona     string
	Instruction string
	MaxTokens   int
	// FrameDelay throttles calls after each successful description.
	FrameDelay time.Duration
	ReadRetry  retry.Policy
	Logger     *zap.Logger
}

func NewPipeline(d Describer, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		Describer:   d,
		Instruction: "Describe this image",
		MaxTokens:   1200,
		FrameDelay:  5 * time.Second,
		ReadRetry:   retry.Fixed(0, 100*time.Millisecond),
		Logger:      log,
	}
}

// Describe narrates every frame in frameDir in name order and returns the
// descriptions joined by single spaces. Frames the service fails on are
// skipped; only unreadable frame files stop the run.
func (p *Pipeline) Describe(ctx context.Context, frameDir string) (string, error) {
	paths, err := frames.List(frameDir)
	if err != nil {
		return "", fmt.Errorf("%w: list %s: %v", ErrFrameRead, frameDir, err)
	}
	p.Logger.Info("frames found for analysis", zap.Int("count", len(paths)))

	var history script.Script
	for i, path := range paths {
		log := p.Logger.With(zap.String("frame", filepath.Base(path)), zap.Int("n", i+1), zap.Int("of", len(paths)))

		encoded, err := p.encode(ctx, path)
		if errors.Is(err, retry.ErrExhausted) {
			log.Warn("frame still locked, skipping", zap.Error(err))
			metrics.DescriptionsTotal.WithLabelValues(metrics.StatusSkipped).Inc()
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return history.Narration(), ctx.Err()
			}
			log.Error("frame unreadable", zap.Error(err))
			return history.Narration(), fmt.Errorf("%w: %s: %v", ErrFrameRead, path, err)
		}

		log.Info("analyzing frame")
		text, err := p.Describer.Describe(ctx, Request{
			Persona:     p.Persona,
			History:     history,
			ImageBase64: encoded,
			Instruction: p.Instruction,
			MaxTokens:   p.MaxTokens,
		})
		if err != nil {
			if ctx.Err() != nil {
				return history.Narration(), ctx.Err()
			}
			log.Error("description failed", zap.Error(err))
			metrics.DescriptionsTotal.WithLabelValues(metrics.StatusFailed).Inc()
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			log.Warn("no description returned")
			metrics.DescriptionsTotal.WithLabelValues(metrics.StatusEmpty).Inc()
			continue
		}

		log.Info("description", zap.String("text", text))
		history = history.Append(script.Turn{Role: script.RoleAssistant, Text: text})
		metrics.DescriptionsTotal.WithLabelValues(metrics.StatusOK).Inc()

		if i < len(paths)-1 {
			if err := wait(ctx, p.FrameDelay); err != nil {
				return history.Narration(), err
			}
		}
	}

	return history.Narration(), nil
}

// encode reads a frame as base64, polling while another process holds it.
func (p *Pipeline) encode(ctx context.Context, path string) (string, error) {
	var data []byte
	err := p.ReadRetry.Do(ctx, func() error {
		var err error
		data, err = readFile(path)
		return err
	}, isLocked)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

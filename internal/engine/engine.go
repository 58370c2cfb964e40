package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ivlev/videonarrator/internal/audio"
	"github.com/ivlev/videonarrator/internal/config"
	"github.com/ivlev/videonarrator/internal/frames"
	"github.com/ivlev/videonarrator/internal/metrics"
)

type FrameExtractor interface {
	Extract(ctx context.Context, videoPath, outputDir string, intervalSeconds float64) ([]frames.Frame, error)
}

type Narrator interface {
	Describe(ctx context.Context, frameDir string) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice, outputDir string) (string, error)
}

// Request describes one run. Zero fields fall back to the project config.
type Request struct {
	VideoPath       string
	IntervalSeconds float64
	Voice           string
}

// Report summarizes a finished run.
type Report struct {
	RunID     string
	Frames    int
	Narration string
	AudioPath string
	Stages    map[string]time.Duration
}

type Project struct {
	Config    *config.Config
	Extractor FrameExtractor
	Narrator  Narrator
	Speech    Synthesizer
	Logger    *zap.Logger

	mu     sync.Mutex
	latest string
}

func NewProject(cfg *config.Config, ext FrameExtractor, n Narrator, s Synthesizer, log *zap.Logger) *Project {
	if log == nil {
		log = zap.NewNop()
	}
	return &Project{
		Config:    cfg,
		Extractor: ext,
		Narrator:  n,
		Speech:    s,
		Logger:    log,
	}
}

// LatestAudioPath returns the artifact of the last completed run, or "" when
// that run produced none.
func (p *Project) LatestAudioPath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

func (p *Project) setLatest(path string) {
	p.mu.Lock()
	p.latest = path
	p.mu.Unlock()
}

// Run narrates videoPath with the configured interval and voice.
func (p *Project) Run(ctx context.Context, videoPath string) (string, error) {
	rep, err := p.Execute(ctx, Request{VideoPath: videoPath})
	return rep.AudioPath, err
}

// Execute extracts frames, describes them and synthesizes the narration.
// An unopenable video or an unreadable frame aborts the run. Failures on
// single frames or chunks, and a failed merge, leave AudioPath empty at worst.
func (p *Project) Execute(ctx context.Context, req Request) (Report, error) {
	rep := Report{RunID: uuid.NewString(), Stages: make(map[string]time.Duration)}
	if req.IntervalSeconds <= 0 {
		req.IntervalSeconds = p.Config.IntervalSeconds
	}
	if req.Voice == "" {
		req.Voice = p.Config.Voice
	}

	tracer := otel.Tracer("engine")
	ctx, span := tracer.Start(ctx, "Project.Run", trace.WithAttributes(
		attribute.String("run.id", rep.RunID),
		attribute.String("run.video", req.VideoPath),
	))
	defer span.End()

	log := p.Logger.With(zap.String("run_id", rep.RunID))
	log.Info("narration run started",
		zap.String("video", req.VideoPath),
		zap.Float64("interval", req.IntervalSeconds),
		zap.String("voice", req.Voice),
	)
	started := time.Now()

	err := p.stage(ctx, &rep, "extract", func(ctx context.Context) error {
		extracted, err := p.Extractor.Extract(ctx, req.VideoPath, p.Config.FramesDir, req.IntervalSeconds)
		rep.Frames = len(extracted)
		if errors.Is(err, frames.ErrFrameDecode) {
			log.Warn("frame extraction stopped early, narrating frames written so far",
				zap.Int("frames", len(extracted)), zap.Error(err))
			return nil
		}
		return err
	})
	if err != nil {
		return p.fail(span, log, rep, fmt.Errorf("extract frames: %w", err))
	}
	log.Info("frames extracted", zap.Int("frames", rep.Frames), zap.String("dir", p.Config.FramesDir))

	err = p.stage(ctx, &rep, "describe", func(ctx context.Context) error {
		text, err := p.Narrator.Describe(ctx, p.Config.FramesDir)
		rep.Narration = text
		return err
	})
	if err != nil {
		return p.fail(span, log, rep, fmt.Errorf("describe frames: %w", err))
	}
	log.Info("narration written", zap.Int("chars", len(rep.Narration)))

	err = p.stage(ctx, &rep, "synthesize", func(ctx context.Context) error {
		path, err := p.Speech.Synthesize(ctx, rep.Narration, req.Voice, p.Config.NarrationDir)
		if errors.Is(err, audio.ErrMergeTool) {
			log.Error("audio merge failed, no final narration", zap.Error(err))
			return nil
		}
		rep.AudioPath = path
		return err
	})
	if err != nil {
		return p.fail(span, log, rep, fmt.Errorf("synthesize speech: %w", err))
	}

	p.setLatest(rep.AudioPath)
	span.SetAttributes(attribute.String("run.audio", rep.AudioPath))
	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(started).Seconds())

	fields := []zap.Field{zap.Duration("total", time.Since(started))}
	for name, d := range rep.Stages {
		fields = append(fields, zap.Duration(name, d))
	}
	if rep.AudioPath == "" {
		log.Warn("run finished without audio", fields...)
	} else {
		log.Info("run finished", append(fields, zap.String("audio", rep.AudioPath))...)
	}
	return rep, nil
}

func (p *Project) stage(ctx context.Context, rep *Report, name string, fn func(context.Context) error) error {
	ctx, span := otel.Tracer("engine").Start(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)
	rep.Stages[name] = d
	metrics.StageDuration.WithLabelValues(name).Observe(d.Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (p *Project) fail(span trace.Span, log *zap.Logger, rep Report, err error) (Report, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	log.Error("narration run aborted", zap.Error(err))
	return rep, err
}

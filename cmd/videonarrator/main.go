package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/videonarrator/internal/audio"
	"github.com/ivlev/videonarrator/internal/config"
	"github.com/ivlev/videonarrator/internal/engine"
	"github.com/ivlev/videonarrator/internal/frames"
	"github.com/ivlev/videonarrator/internal/logger"
	"github.com/ivlev/videonarrator/internal/metrics"
	"github.com/ivlev/videonarrator/internal/provider"
	"github.com/ivlev/videonarrator/internal/retry"
	"github.com/ivlev/videonarrator/internal/source"
	"github.com/ivlev/videonarrator/internal/speech"
	"github.com/ivlev/videonarrator/internal/system"
	"github.com/ivlev/videonarrator/internal/tracing"
	"github.com/ivlev/videonarrator/internal/vision"
)

const defaultInputDir = "input/video"

func main() {
	configPtr := flag.String("config", "", "Path to a YAML config file")
	inputPtr := flag.String("input", "", "Video to narrate (default: newest file in input/video/)")
	intervalPtr := flag.Float64("interval", 0, "Seconds between sampled frames")
	voicePtr := flag.String("voice", "", "Voice: alloy, echo, fable, onyx, nova, shimmer")
	framesPtr := flag.String("frames-dir", "", "Directory for sampled frames (cleared on every run)")
	outPtr := flag.String("out", "", "Directory for narration audio")
	delayPtr := flag.Duration("frame-delay", 0, "Pause after each described frame")
	metricsPtr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	levelPtr := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	// .env is optional.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPtr)
	fatalOnErr(err, "load config")

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.InputPath = *inputPtr
		case "interval":
			cfg.IntervalSeconds = *intervalPtr
		case "voice":
			cfg.Voice = *voicePtr
		case "frames-dir":
			cfg.FramesDir = *framesPtr
		case "out":
			cfg.NarrationDir = *outPtr
		case "frame-delay":
			cfg.FrameDelay = *delayPtr
		case "metrics-addr":
			cfg.MetricsAddr = *metricsPtr
		case "log-level":
			cfg.LogLevel = *levelPtr
		}
	})
	fatalOnErr(cfg.Validate(), "validate config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	system.InitResourceLimits(log)
	system.HostReport(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEndpoint != "" {
		tp, err := tracing.InitTracer(ctx, cfg.TracingEndpoint)
		if err != nil {
			log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				tp.Shutdown(shutdownCtx)
			}()
		}
	}

	for _, d := range []string{defaultInputDir, cfg.NarrationDir} {
		os.MkdirAll(d, 0755)
	}

	if cfg.InputPath == "" {
		latest, err := system.FindLatestVideo(defaultInputDir)
		if err != nil {
			log.Fatal("no input video, put one in "+defaultInputDir+"/ or pass -input", zap.Error(err))
		}
		cfg.InputPath = latest
		log.Info("selected newest video", zap.String("path", latest))
	}

	project, err := buildProject(cfg, log)
	fatalOnErr(err, "build pipeline")

	g, gctx := errgroup.WithContext(ctx)
	runCtx, finish := context.WithCancel(gctx)
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			serveMetrics(runCtx, cfg.MetricsAddr, log)
			return nil
		})
	}
	g.Go(func() error {
		defer finish()
		_, err := project.Run(runCtx, cfg.InputPath)
		return err
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, frames.ErrSourceUnavailable) {
			log.Error("cannot open video", zap.String("path", cfg.InputPath), zap.Error(err))
		} else {
			log.Error("narration failed", zap.Error(err))
		}
		os.Exit(1)
	}

	if out := project.LatestAudioPath(); out != "" {
		log.Info("narration ready", zap.String("path", out))
	} else {
		log.Warn("no narration audio was produced")
	}
}

func buildProject(cfg *config.Config, log *zap.Logger) (*engine.Project, error) {
	client, err := provider.NewOpenAI(provider.Options{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		VisionModel: cfg.VisionModel,
		SpeechModel: cfg.SpeechModel,
	})
	if err != nil {
		return nil, err
	}

	ext := frames.NewExtractor(source.FFmpeg{FFmpegPath: cfg.FFmpegPath, FFprobePath: cfg.FFprobePath}, log.Named("frames"))
	ext.MaxDimension = cfg.MaxDimension
	ext.Quality = cfg.JPEGQuality

	pipe := vision.NewPipeline(client, log.Named("vision"))
	pipe.Persona = cfg.Persona
	pipe.Instruction = cfg.Instruction
	pipe.MaxTokens = cfg.MaxTokens
	pipe.FrameDelay = cfg.FrameDelay
	pipe.ReadRetry = retry.Fixed(cfg.LockRetryMax, cfg.LockRetryDelay)

	asm := audio.NewAssembler(audio.FFmpegConcatenator{Binary: cfg.FFmpegPath}, log.Named("audio"))
	asm.Cleanup = retry.Fixed(cfg.CleanupAttempts, cfg.CleanupDelay)

	syn := speech.NewSynthesizer(client, asm, log.Named("speech"))

	return engine.NewProject(cfg, ext, pipe, syn, log), nil
}

// serveMetrics runs the metrics endpoint until ctx is done. Failures are
// logged only; the narration run does not depend on it.
func serveMetrics(ctx context.Context, addr string, log *zap.Logger) {
	if err := metrics.Serve(ctx, addr, log); err != nil {
		log.Warn("metrics server stopped, continuing without metrics", zap.String("addr", addr), zap.Error(err))
	}
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %s: %v\n", msg, err)
		os.Exit(1)
	}
}

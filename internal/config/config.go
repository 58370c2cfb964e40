package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingAPIKey is returned by Validate when no service credential was supplied.
	ErrMissingAPIKey = errors.New("config: OPENAI_API_KEY is not set")
	// ErrInvalid wraps every other validation failure.
	ErrInvalid = errors.New("config: invalid value")
)

const DefaultPersona = `You are Sir David Attenborough. Narrate the picture of the human as if it is a nature documentary.
Make it snarky and funny. Don't repeat yourself. Make it short. If I do anything remotely interesting, make a big deal about it!`

const DefaultInstruction = "Describe this image"

type Config struct {
	InputPath    string `yaml:"input" env:"NARRATOR_INPUT"`
	FramesDir    string `yaml:"frames_dir" env:"NARRATOR_FRAMES_DIR"`
	NarrationDir string `yaml:"narration_dir" env:"NARRATOR_NARRATION_DIR"`

	IntervalSeconds float64 `yaml:"interval" env:"NARRATOR_INTERVAL"`
	MaxDimension    int     `yaml:"max_dimension" env:"NARRATOR_MAX_DIMENSION"`
	JPEGQuality     int     `yaml:"jpeg_quality" env:"NARRATOR_JPEG_QUALITY"`

	Persona     string        `yaml:"persona" env:"NARRATOR_PERSONA"`
	Instruction string        `yaml:"instruction" env:"NARRATOR_INSTRUCTION"`
	VisionModel string        `yaml:"vision_model" env:"NARRATOR_VISION_MODEL"`
	MaxTokens   int           `yaml:"max_tokens" env:"NARRATOR_MAX_TOKENS"`
	FrameDelay  time.Duration `yaml:"frame_delay" env:"NARRATOR_FRAME_DELAY"`

	// LockRetryMax of 0 keeps polling a locked frame until it becomes readable.
	LockRetryMax   int           `yaml:"lock_retry_max" env:"NARRATOR_LOCK_RETRY_MAX"`
	LockRetryDelay time.Duration `yaml:"lock_retry_delay" env:"NARRATOR_LOCK_RETRY_DELAY"`

	Voice       string `yaml:"voice" env:"NARRATOR_VOICE"`
	SpeechModel string `yaml:"speech_model" env:"NARRATOR_SPEECH_MODEL"`

	CleanupAttempts int           `yaml:"cleanup_attempts" env:"NARRATOR_CLEANUP_ATTEMPTS"`
	CleanupDelay    time.Duration `yaml:"cleanup_delay" env:"NARRATOR_CLEANUP_DELAY"`

	APIKey  string `yaml:"-" env:"OPENAI_API_KEY"`
	BaseURL string `yaml:"base_url" env:"OPENAI_BASE_URL"`

	FFmpegPath  string `yaml:"ffmpeg" env:"NARRATOR_FFMPEG"`
	FFprobePath string `yaml:"ffprobe" env:"NARRATOR_FFPROBE"`

	LogLevel        string `yaml:"log_level" env:"NARRATOR_LOG_LEVEL"`
	MetricsAddr     string `yaml:"metrics_addr" env:"NARRATOR_METRICS_ADDR"`
	TracingEndpoint string `yaml:"tracing_endpoint" env:"NARRATOR_TRACING_ENDPOINT"`
}

// Default returns the stock settings: 2s sampling, 250px frames, gpt-4o and tts-1.
func Default() *Config {
	return &Config{
		FramesDir:       "video_frames",
		NarrationDir:    "narration",
		IntervalSeconds: 2,
		MaxDimension:    250,
		JPEGQuality:     95,
		Persona:         DefaultPersona,
		Instruction:     DefaultInstruction,
		VisionModel:     "gpt-4o",
		MaxTokens:       1200,
		FrameDelay:      5 * time.Second,
		LockRetryMax:    0,
		LockRetryDelay:  100 * time.Millisecond,
		Voice:           "alloy",
		SpeechModel:     "tts-1",
		CleanupAttempts: 3,
		CleanupDelay:    500 * time.Millisecond,
		FFmpegPath:      "ffmpeg",
		FFprobePath:     "ffprobe",
		LogLevel:        "info",
	}
}

// Load builds a Config from defaults, an optional YAML file and the environment,
// in that order of precedence (later wins). An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// No envDefault tags: unset variables leave file/default values untouched.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if c.IntervalSeconds <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %v", ErrInvalid, c.IntervalSeconds)
	}
	if c.MaxDimension <= 0 {
		return fmt.Errorf("%w: max_dimension must be positive, got %d", ErrInvalid, c.MaxDimension)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("%w: jpeg_quality must be in 1..100, got %d", ErrInvalid, c.JPEGQuality)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive, got %d", ErrInvalid, c.MaxTokens)
	}
	if c.LockRetryMax < 0 || c.CleanupAttempts < 1 {
		return fmt.Errorf("%w: retry counts out of range", ErrInvalid)
	}
	if c.FramesDir == "" || c.NarrationDir == "" {
		return fmt.Errorf("%w: frames_dir and narration_dir are required", ErrInvalid)
	}
	if c.FramesDir == c.NarrationDir {
		return fmt.Errorf("%w: frames_dir is cleared on every run and must differ from narration_dir", ErrInvalid)
	}
	return nil
}

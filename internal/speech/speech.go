package speech

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ivlev/videonarrator/internal/metrics"
)

// MaxChunkLength is the longest input the speech service accepts, in characters.
const MaxChunkLength = 4096

const timestampLayout = "20060102_150405"

// Swapped in tests to simulate a full disk.
var writeFile = os.WriteFile

type Speaker interface {
	Speak(ctx context.Context, text string, voice Voice) ([]byte, error)
}

// Merger joins ordered segment files into output and returns its path.
type Merger interface {
	Merge(ctx context.Context, segments []string, output string) (string, error)
}

// Segment is the audio file produced for one chunk.
type Segment struct {
	Seq   int
	Path  string
	Chunk Chunk
}

type Synthesizer struct {
	Speaker     Speaker
	Merger      Merger
	ChunkLength int
	Logger      *zap.Logger

	now func() time.Time
}

func NewSynthesizer(sp Speaker, m Merger, log *zap.Logger) *Synthesizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Synthesizer{
		Speaker:     sp,
		Merger:      m,
		ChunkLength: MaxChunkLength,
		Logger:      log,
		now:         time.Now,
	}
}

// Synthesize turns text into one audio file in outputDir and returns its path.
// It returns "" when text is empty or no chunk could be synthesized. A chunk
// that fails is logged and left out; a failed merge is returned as an error.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voiceName, outputDir string) (string, error) {
	if text == "" {
		s.Logger.Info("no narration text, skipping speech")
		return "", nil
	}

	voice, ok := ResolveVoice(voiceName)
	if !ok {
		s.Logger.Warn("unknown voice, using default", zap.String("voice", voiceName), zap.String("default", string(DefaultVoice)))
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("create narration directory: %w", err)
	}

	chunks := Split(text, s.ChunkLength)
	var segments []Segment
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		seg, ok := s.synthesizeChunk(ctx, chunk, voice, outputDir, len(chunks))
		if ok {
			segments = append(segments, seg)
		}
	}
	s.Logger.Info("speech chunks done", zap.Int("segments", len(segments)), zap.Int("chunks", len(chunks)))

	switch len(segments) {
	case 0:
		s.Logger.Warn("no audio was generated")
		return "", nil
	case 1:
		s.Logger.Info("final audio saved", zap.String("path", segments[0].Path))
		return segments[0].Path, nil
	}

	paths := make([]string, len(segments))
	for i, seg := range segments {
		paths[i] = seg.Path
	}
	final := filepath.Join(outputDir, fmt.Sprintf("final_narration_%s.mp3", s.now().Format(timestampLayout)))
	s.Logger.Info("merging segments", zap.Int("count", len(paths)), zap.String("path", final))

	out, err := s.Merger.Merge(ctx, paths, final)
	if err != nil {
		return "", err
	}
	s.Logger.Info("final audio saved", zap.String("path", out))
	return out, nil
}

func (s *Synthesizer) synthesizeChunk(ctx context.Context, chunk Chunk, voice Voice, outputDir string, total int) (Segment, bool) {
	log := s.Logger.With(zap.Int("chunk", chunk.Seq), zap.Int("of", total))
	log.Info("generating audio segment")

	audio, err := s.Speaker.Speak(ctx, chunk.Text, voice)
	if err != nil {
		log.Error("speech synthesis failed", zap.Error(err))
		metrics.SpeechChunksTotal.WithLabelValues(metrics.StatusFailed).Inc()
		return Segment{}, false
	}

	path := filepath.Join(outputDir, fmt.Sprintf("speech_%d_%s.mp3", chunk.Seq, s.now().Format(timestampLayout)))
	if _, err := os.Stat(path); err == nil {
		log.Info("segment already exists, not overwriting", zap.String("path", path))
		metrics.SpeechChunksTotal.WithLabelValues(metrics.StatusSkipped).Inc()
		return Segment{Seq: chunk.Seq, Path: path, Chunk: chunk}, true
	}

	if err := writeFile(path, audio, 0644); err != nil {
		log.Error("could not save segment", zap.String("path", path), zap.Error(err))
		metrics.SpeechChunksTotal.WithLabelValues(metrics.StatusFailed).Inc()
		return Segment{}, false
	}
	log.Info("audio saved", zap.String("path", path), zap.Int("bytes", len(audio)))
	metrics.SpeechChunksTotal.WithLabelValues(metrics.StatusOK).Inc()
	return Segment{Seq: chunk.Seq, Path: path, Chunk: chunk}, true
}

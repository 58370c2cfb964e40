package speech

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSpeaker struct {
	fail   map[int]bool
	texts  []string
	voices []Voice
}

func (f *fakeSpeaker) Speak(ctx context.Context, text string, voice Voice) ([]byte, error) {
	f.texts = append(f.texts, text)
	f.voices = append(f.voices, voice)
	if f.fail[len(f.texts)] {
		return nil, errors.New("429 too many requests")
	}
	return []byte("ID3" + text[:1]), nil
}

type fakeMerger struct {
	segments []string
	output   string
	err      error
}

func (f *fakeMerger) Merge(ctx context.Context, segments []string, output string) (string, error) {
	f.segments = segments
	f.output = output
	if f.err != nil {
		return "", f.err
	}
	return output, nil
}

var fixedNow = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

func newTestSynthesizer(t *testing.T, sp Speaker, m Merger) *Synthesizer {
	s := NewSynthesizer(sp, m, zaptest.NewLogger(t))
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []int
	}{
		{"empty", "", 4096, nil},
		{"short", "hello", 4096, []int{5}},
		{"exact", strings.Repeat("a", 4096), 4096, []int{4096}},
		{"one over", strings.Repeat("a", 4097), 4096, []int{4096, 1}},
		{"9000", strings.Repeat("a", 9000), 4096, []int{4096, 4096, 808}},
		{"small limit", "abcdefg", 3, []int{3, 3, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Split(tt.text, tt.limit)
			require.Len(t, chunks, len(tt.want))

			var joined strings.Builder
			for i, c := range chunks {
				assert.Equal(t, i+1, c.Seq)
				assert.Equal(t, tt.want[i], utf8.RuneCountInString(c.Text))
				joined.WriteString(c.Text)
			}
			assert.Equal(t, tt.text, joined.String())
		})
	}
}

func TestSplitKeepsRunesWhole(t *testing.T) {
	text := strings.Repeat("é", 10)
	chunks := Split(text, 4)

	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c.Text))
	}
	assert.Equal(t, "éé", chunks[2].Text)
}

func TestResolveVoice(t *testing.T) {
	v, ok := ResolveVoice("Nova")
	assert.True(t, ok)
	assert.Equal(t, VoiceNova, v)

	v, ok = ResolveVoice("darth")
	assert.False(t, ok)
	assert.Equal(t, VoiceAlloy, v)

	v, ok = ResolveVoice("")
	assert.False(t, ok)
	assert.Equal(t, DefaultVoice, v)
}

func TestSynthesizeEmptyText(t *testing.T) {
	sp := &fakeSpeaker{}
	path, err := newTestSynthesizer(t, sp, &fakeMerger{}).Synthesize(context.Background(), "", "alloy", t.TempDir())

	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Empty(t, sp.texts)
}

func TestSynthesizeSingleChunk(t *testing.T) {
	dir := t.TempDir()
	sp := &fakeSpeaker{}
	m := &fakeMerger{}

	path, err := newTestSynthesizer(t, sp, m).Synthesize(context.Background(), "a short narration", "echo", dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "speech_1_20240309_140507.mp3"), path)
	assert.FileExists(t, path)
	assert.Equal(t, []Voice{VoiceEcho}, sp.voices)
	assert.Nil(t, m.segments, "one segment is not merged")
}

func TestSynthesizeMergesInOrder(t *testing.T) {
	dir := t.TempDir()
	sp := &fakeSpeaker{}
	m := &fakeMerger{}
	text := strings.Repeat("a", 4096) + strings.Repeat("b", 4096) + strings.Repeat("c", 808)

	path, err := newTestSynthesizer(t, sp, m).Synthesize(context.Background(), text, "alloy", dir)
	require.NoError(t, err)

	want := filepath.Join(dir, "final_narration_20240309_140507.mp3")
	assert.Equal(t, want, path)
	assert.Equal(t, want, m.output)
	assert.Equal(t, []string{
		filepath.Join(dir, "speech_1_20240309_140507.mp3"),
		filepath.Join(dir, "speech_2_20240309_140507.mp3"),
		filepath.Join(dir, "speech_3_20240309_140507.mp3"),
	}, m.segments)
	require.Len(t, sp.texts, 3)
	assert.Len(t, sp.texts[2], 808)
}

func TestSynthesizeSkipsFailedChunk(t *testing.T) {
	dir := t.TempDir()
	sp := &fakeSpeaker{fail: map[int]bool{2: true}}
	m := &fakeMerger{}
	text := strings.Repeat("a", 4096) + strings.Repeat("b", 4096) + "c"

	_, err := newTestSynthesizer(t, sp, m).Synthesize(context.Background(), text, "alloy", dir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "speech_1_20240309_140507.mp3"),
		filepath.Join(dir, "speech_3_20240309_140507.mp3"),
	}, m.segments)
}

func TestSynthesizeAllChunksFail(t *testing.T) {
	sp := &fakeSpeaker{fail: map[int]bool{1: true}}
	path, err := newTestSynthesizer(t, sp, &fakeMerger{}).Synthesize(context.Background(), "hello", "alloy", t.TempDir())

	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestSynthesizeUnknownVoiceFallsBack(t *testing.T) {
	sp := &fakeSpeaker{}
	_, err := newTestSynthesizer(t, sp, &fakeMerger{}).Synthesize(context.Background(), "hello", "robot", t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, []Voice{VoiceAlloy}, sp.voices)
}

func TestSynthesizeKeepsExistingSegment(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "speech_1_20240309_140507.mp3")
	require.NoError(t, os.WriteFile(existing, []byte("earlier"), 0644))

	path, err := newTestSynthesizer(t, &fakeSpeaker{}, &fakeMerger{}).Synthesize(context.Background(), "hello", "alloy", dir)
	require.NoError(t, err)

	assert.Equal(t, existing, path)
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "earlier", string(data))
}

func TestSynthesizeSkipsUnwritableSegment(t *testing.T) {
	orig := writeFile
	t.Cleanup(func() { writeFile = orig })
	writes := 0
	writeFile = func(name string, data []byte, perm os.FileMode) error {
		writes++
		if writes == 1 {
			return errors.New("no space left on device")
		}
		return orig(name, data, perm)
	}

	dir := t.TempDir()
	text := strings.Repeat("a", 4096) + "b"
	path, err := newTestSynthesizer(t, &fakeSpeaker{}, &fakeMerger{}).Synthesize(context.Background(), text, "alloy", dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "speech_2_20240309_140507.mp3"), path)
	assert.NoFileExists(t, filepath.Join(dir, "speech_1_20240309_140507.mp3"))
}

func TestSynthesizeReturnsMergeError(t *testing.T) {
	mergeErr := errors.New("merge tool failed")
	m := &fakeMerger{err: mergeErr}
	text := strings.Repeat("a", 5000)

	path, err := newTestSynthesizer(t, &fakeSpeaker{}, m).Synthesize(context.Background(), text, "alloy", t.TempDir())

	assert.ErrorIs(t, err, mergeErr)
	assert.Empty(t, path)
	assert.Len(t, m.segments, 2)
}

func TestSynthesizeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sp := &fakeSpeaker{}
	_, err := newTestSynthesizer(t, sp, &fakeMerger{}).Synthesize(ctx, "hello", "alloy", t.TempDir())

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sp.texts)
}

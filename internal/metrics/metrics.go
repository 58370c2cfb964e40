package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "narrator_frames_extracted_total",
		Help: "Frames sampled from videos and written to the frame directory",
	})

	DescriptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "narrator_descriptions_total",
		Help: "Vision description calls per frame, by outcome",
	}, []string{"status"})

	SpeechChunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "narrator_speech_chunks_total",
		Help: "Text-to-speech chunks, by outcome",
	}, []string{"status"})

	MergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "narrator_merges_total",
		Help: "Audio segment merges, by outcome",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "narrator_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	}, []string{"stage"})
)

// Outcome labels shared by the counters above.
const (
	StatusOK      = "ok"
	StatusEmpty   = "empty"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

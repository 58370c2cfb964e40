package system

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

var VideoExtensions = []string{".mp4", ".mov", ".mkv", ".avi", ".webm", ".m4v"}

// FindLatestVideo returns the most recently modified video file in dir.
func FindLatestVideo(dir string) (string, error) {
	return findLatest(dir, VideoExtensions)
}

// findLatest picks the newest regular file in dir by modification time.
func findLatest(dir string, extensions []string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !hasExtension(f.Name(), extensions) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("no video files found in %s", dir)
	}
	return latestFile, nil
}

// hasExtension matches case-insensitively.
func hasExtension(name string, extensions []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// VideoInfo is what ffprobe reports for the first video stream.
type VideoInfo struct {
	Width  int
	Height int
	FPS    float64
	// Frames is 0 when the container does not record a frame count.
	Frames int
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
}

// ProbeVideo reads dimensions and frame rate of the first video stream.
func ProbeVideo(ctx context.Context, ffprobe, path string) (VideoInfo, error) {
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,nb_frames",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return VideoInfo{}, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(string(ee.Stderr)))
		}
		return VideoInfo{}, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbe(out)
}

// parseProbe decodes `ffprobe -of json` output for the first stream.
func parseProbe(out []byte) (VideoInfo, error) {
	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return VideoInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return VideoInfo{}, fmt.Errorf("no video stream")
	}

	s := probe.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return VideoInfo{}, fmt.Errorf("invalid video size %dx%d", s.Width, s.Height)
	}

	fps := parseRate(s.AvgFrameRate)
	if fps <= 0 {
		fps = parseRate(s.RFrameRate)
	}
	if fps <= 0 {
		return VideoInfo{}, fmt.Errorf("unknown frame rate (r=%q avg=%q)", s.RFrameRate, s.AvgFrameRate)
	}

	frames, _ := strconv.Atoi(s.NbFrames)
	return VideoInfo{Width: s.Width, Height: s.Height, FPS: fps, Frames: frames}, nil
}

// parseRate understands ffprobe rationals such as "30000/1001".
func parseRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// HostReport logs CPU and memory so slow runs can be told apart from small machines.
func HostReport(log *zap.Logger) {
	fields := []zap.Field{}
	if n, err := cpu.Counts(true); err == nil {
		fields = append(fields, zap.Int("cpus", n))
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		fields = append(fields,
			zap.Uint64("mem_total_mb", vm.Total/1024/1024),
			zap.Uint64("mem_available_mb", vm.Available/1024/1024),
		)
	}
	log.Info("host", fields...)
}

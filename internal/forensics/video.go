package forensics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"
)

const (
	msgFFmpegMissing       = "ffmpeg is not available on the server."
	msgDurationUnavailable = "Video duration unavailable; cannot sample frames reliably."
	msgExtractionFailed    = "Frame extraction failed."
)

// SampleTimestamps returns frameCount interior timestamps evenly spaced over
// duration. The start and end of the clip are never sampled.
func SampleTimestamps(duration float64, frameCount int) []float64 {
	if duration <= 0 || frameCount <= 0 {
		return nil
	}
	step := duration / float64(frameCount+1)
	ts := make([]float64, frameCount)
	for i := range ts {
		ts[i] = step * float64(i+1)
	}
	return ts
}

// AnalyzeVideo samples the configured number of frames from the video at path.
// durationHint is used when positive and finite; otherwise ffprobe is
// consulted.
func (a *Analyzer) AnalyzeVideo(ctx context.Context, path string, durationHint float64) *VideoResult {
	return a.AnalyzeVideoFrames(ctx, path, durationHint, a.opts.FrameCount)
}

// AnalyzeVideoFrames extracts frameCount frames and runs error-level analysis
// on each. Per-frame failures are recorded as ERROR markers and skipped; only
// a missing ffmpeg or an unknown duration yields NOT_AVAILABLE.
//
// Cancelling ctx stops sampling before the next timestamp. Markers already
// recorded are kept.
func (a *Analyzer) AnalyzeVideoFrames(ctx context.Context, path string, durationHint float64, frameCount int) *VideoResult {
	if ctx == nil {
		ctx = context.Background()
	}
	if frameCount <= 0 {
		frameCount = DefaultFrameCount
	}

	if !a.tools.Available(ToolFFmpeg) {
		return notAvailable(msgFFmpegMissing)
	}

	duration := durationHint
	if !validDuration(duration) {
		probed, ok := a.ProbeDuration(ctx, path)
		if !ok {
			return notAvailable(msgDurationUnavailable)
		}
		duration = probed
	}

	outDir, err := a.newRunDir("video_frames_")
	if err != nil {
		return notAvailable(fmt.Sprintf("Artifact directory unavailable: %v", err))
	}

	log := a.logger.With(slog.String("video", path))
	res := &VideoResult{
		FrameThumbnails: []string{},
		FrameScores:     []float64{},
		FlaggedFrames:   []FlaggedFrame{},
		TimelineMarkers: []TimelineMarker{},
	}
	var candidates []FlaggedFrame

	for idx, ts := range SampleTimestamps(duration, frameCount) {
		if err := ctx.Err(); err != nil {
			log.Warn("frame sampling interrupted", slog.Int("index", idx), slog.Any("error", err))
			break
		}

		framePath := filepath.Join(outDir, fmt.Sprintf("frame_%02d.jpg", idx))
		cmd := a.tools.Run(ctx, a.opts.FrameTimeout, ToolFFmpeg,
			"-ss", fmt.Sprintf("%.2f", ts),
			"-i", path,
			"-frames:v", "1",
			"-q:v", "2",
			framePath,
			"-y",
		)
		if cmd.Failed() || !fileExists(framePath) {
			note := msgExtractionFailed
			if cmd.Stderr != "" {
				note = truncate(cmd.Stderr, MaxMarkerNoteLen)
			}
			log.Debug("frame extraction failed",
				slog.Int("index", idx),
				slog.Float64("time_s", ts),
				slog.Int("exit_code", cmd.ExitCode),
				slog.Bool("timed_out", cmd.TimedOut),
			)
			res.TimelineMarkers = append(res.TimelineMarkers, TimelineMarker{
				TimeS:  ts,
				Status: MarkerError,
				Note:   note,
			})
			continue
		}

		heatmapPath := filepath.Join(outDir, fmt.Sprintf("frame_%02d_ela.png", idx))
		ela := a.analyzeImage(framePath, heatmapPath)
		score := ela.MeanDiff
		if !ela.OK() {
			heatmapPath = ""
		}

		res.FrameThumbnails = append(res.FrameThumbnails, framePath)
		res.FrameScores = append(res.FrameScores, score)
		res.TimelineMarkers = append(res.TimelineMarkers, TimelineMarker{
			TimeS:         ts,
			Status:        MarkerOK,
			Score:         &score,
			HeatmapPath:   heatmapPath,
			ThumbnailPath: framePath,
		})

		if score >= a.opts.AnomalyThreshold {
			candidates = append(candidates, FlaggedFrame{
				Index:         idx,
				TimeS:         ts,
				Score:         score,
				ThumbnailPath: framePath,
				HeatmapPath:   heatmapPath,
			})
		}
	}

	res.FlaggedFrames = topFrames(candidates, DefaultMaxFlagged)

	avg := mean(res.FrameScores)
	res.Status = Classify(avg, a.opts.AnomalyThreshold)
	res.Summary = fmt.Sprintf("Average ELA score across sampled frames: %.1f", avg)

	log.Info("video forensics complete",
		slog.Int("sampled", len(res.TimelineMarkers)),
		slog.Int("extracted", len(res.FrameScores)),
		slog.Float64("avg_score", avg),
		slog.String("status", string(res.Status)),
	)
	return res
}

// topFrames orders frames by descending score, keeping sampling order on
// ties, and returns at most limit of them.
func topFrames(frames []FlaggedFrame, limit int) []FlaggedFrame {
	sorted := make([]FlaggedFrame, len(frames))
	copy(sorted, frames)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func notAvailable(explanation string) *VideoResult {
	return &VideoResult{
		Status:          StatusNotAvailable,
		Explanation:     explanation,
		FrameThumbnails: []string{},
		FrameScores:     []float64{},
		FlaggedFrames:   []FlaggedFrame{},
		TimelineMarkers: []TimelineMarker{},
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

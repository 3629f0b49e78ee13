// Package forensics provides visual forensics for media files: error-level
// analysis of still images and frame sampling for video.
package forensics

import "time"

// Status is the outcome class of a visual forensics run.
type Status string

const (
	StatusClear        Status = "CLEAR"
	StatusSuspicious   Status = "SUSPICIOUS"
	StatusError        Status = "ERROR"
	StatusNotAvailable Status = "NOT_AVAILABLE"
)

// MarkerStatus is the outcome of a single frame extraction attempt.
type MarkerStatus string

const (
	MarkerOK    MarkerStatus = "OK"
	MarkerError MarkerStatus = "ERROR"
)

// Default analysis parameters.
const (
	DefaultJPEGQuality      = 85
	DefaultAmplification    = 10
	DefaultAnomalyThreshold = 25.0
	DefaultFrameCount       = 12
	DefaultMaxFlagged       = 3
	MaxMarkerNoteLen        = 200
)

// ImageResult is the error-level analysis verdict for one image.
type ImageResult struct {
	Status                Status  `json:"status"`
	HeatmapPath           string  `json:"heatmap_path,omitempty"`
	HeatmapSummary        string  `json:"heatmap_summary,omitempty"`
	SuspiciousRegionsNote string  `json:"suspicious_regions_note,omitempty"`
	MeanDiff              float64 `json:"mean_diff"`
	Explanation           string  `json:"explanation,omitempty"`
}

// OK reports whether the analysis itself completed.
func (r *ImageResult) OK() bool {
	return r.Status == StatusClear || r.Status == StatusSuspicious
}

// FlaggedFrame is a sampled frame whose score crossed the anomaly threshold.
type FlaggedFrame struct {
	Index         int     `json:"index"`
	TimeS         float64 `json:"time_s"`
	Score         float64 `json:"score"`
	ThumbnailPath string  `json:"thumbnail_path"`
	HeatmapPath   string  `json:"heatmap_path,omitempty"`
}

// TimelineMarker records one frame sampling attempt.
type TimelineMarker struct {
	TimeS         float64      `json:"time_s"`
	Status        MarkerStatus `json:"status"`
	Score         *float64     `json:"score,omitempty"`
	HeatmapPath   string       `json:"heatmap_path,omitempty"`
	ThumbnailPath string       `json:"thumbnail_path,omitempty"`
	Note          string       `json:"note,omitempty"`
}

// VideoResult is the aggregate verdict over sampled video frames.
type VideoResult struct {
	Status          Status           `json:"status"`
	FrameThumbnails []string         `json:"frame_thumbnails"`
	FrameScores     []float64        `json:"frame_scores"`
	FlaggedFrames   []FlaggedFrame   `json:"flagged_frames"`
	TimelineMarkers []TimelineMarker `json:"timeline_markers"`
	Summary         string           `json:"summary,omitempty"`
	Explanation     string           `json:"explanation,omitempty"`
}

// Options tunes the analyzers. Zero values fall back to the defaults.
type Options struct {
	// ArtifactDir is the root under which per-call artifact directories are created.
	ArtifactDir string

	JPEGQuality      int
	Amplification    int
	AnomalyThreshold float64

	// FrameCount is the number of interior timestamps sampled from a video.
	FrameCount int

	ProbeTimeout time.Duration
	FrameTimeout time.Duration
}

// DefaultOptions returns the stock tuning rooted at artifactDir.
func DefaultOptions(artifactDir string) Options {
	return Options{
		ArtifactDir:      artifactDir,
		JPEGQuality:      DefaultJPEGQuality,
		Amplification:    DefaultAmplification,
		AnomalyThreshold: DefaultAnomalyThreshold,
		FrameCount:       DefaultFrameCount,
		ProbeTimeout:     DefaultProbeTimeout,
		FrameTimeout:     DefaultFrameTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.JPEGQuality <= 0 || o.JPEGQuality > 100 {
		o.JPEGQuality = DefaultJPEGQuality
	}
	if o.Amplification <= 0 {
		o.Amplification = DefaultAmplification
	}
	if o.AnomalyThreshold <= 0 {
		o.AnomalyThreshold = DefaultAnomalyThreshold
	}
	if o.FrameCount <= 0 {
		o.FrameCount = DefaultFrameCount
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = DefaultProbeTimeout
	}
	if o.FrameTimeout <= 0 {
		o.FrameTimeout = DefaultFrameTimeout
	}
	return o
}

// Classify maps a mean difference to CLEAR or SUSPICIOUS.
func Classify(meanDiff, threshold float64) Status {
	if meanDiff >= threshold {
		return StatusSuspicious
	}
	return StatusClear
}

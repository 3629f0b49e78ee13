// Package pipeline orchestrates a full media analysis: media detection,
// visual forensics, container checks, provenance summary and signal fusion.
package pipeline

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"truthsig/internal/forensics"
	"truthsig/internal/fusion"
	"truthsig/internal/metrics"
	"truthsig/internal/watcher"
)

// Analysis is the complete record of one analyzed file.
type Analysis struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Filename  string    `json:"filename"`
	MediaType MediaType `json:"media_type"`
	Bytes     int64     `json:"bytes"`
	SHA256    string    `json:"sha256"`

	ProvenanceState      fusion.ProvenanceState       `json:"provenance_state"`
	ProvenanceSummary    string                       `json:"summary,omitempty"`
	C2PA                 map[string]any               `json:"c2pa,omitempty"`
	C2PASummary          fusion.C2PASummary           `json:"c2pa_summary"`
	FFprobe              *forensics.ContainerProbe    `json:"ffprobe,omitempty"`
	AIDisclosure         *fusion.AIDisclosure         `json:"ai_disclosure,omitempty"`
	Transformations      *fusion.TransformationHints  `json:"transformations,omitempty"`
	MetadataConsistency  *fusion.MetadataConsistency  `json:"metadata_consistency,omitempty"`
	MetadataCompleteness *fusion.MetadataCompleteness `json:"metadata_completeness,omitempty"`
	ContainerAnomalies   *fusion.ContainerAnomalies   `json:"container_anomalies"`
	Forensics            Visual                       `json:"forensics"`

	fusion.TrustAssessment

	OneLineRationale string `json:"one_line_rationale"`
	LatencyMs        int64  `json:"latency_ms"`
}

// Analyzer runs analyses. It holds no per-call state and is safe for
// concurrent use.
type Analyzer struct {
	forensics *forensics.Analyzer
	engine    *fusion.Engine
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewAnalyzer wires an analyzer. Nil forensics and engine use the stock
// configuration, nil metrics are not recorded and a nil logger discards
// output.
func NewAnalyzer(fa *forensics.Analyzer, engine *fusion.Engine, m *metrics.Metrics, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if fa == nil {
		fa = forensics.NewAnalyzer(forensics.DefaultOptions(""), nil, logger)
	}
	if engine == nil {
		engine = fusion.NewEngine()
	}
	return &Analyzer{
		forensics: fa,
		engine:    engine,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Engine returns the fusion engine in use.
func (a *Analyzer) Engine() *fusion.Engine {
	return a.engine
}

// Analyze runs the full pipeline over path. filename is the display name
// recorded in the result; it defaults to the base of path. Only failures to
// read the file are returned as errors; every analysis-level problem is
// reported through status fields.
func (a *Analyzer) Analyze(ctx context.Context, path, filename string, ext *ExternalSignals) (*Analysis, error) {
	start := a.now()

	info, err := os.Stat(path)
	if err != nil {
		a.recordError()
		return nil, fmt.Errorf("stat media: %w", err)
	}
	if info.IsDir() {
		a.recordError()
		return nil, fmt.Errorf("stat media: %s is a directory", path)
	}
	digest, size, err := watcher.HashFile(path)
	if err != nil {
		a.recordError()
		return nil, fmt.Errorf("hash media: %w", err)
	}
	if filename == "" {
		filename = info.Name()
	}
	if ext == nil {
		ext = &ExternalSignals{}
	}

	mediaType := DetectMediaType(path)
	log := a.logger.With("file", filename, "media_type", mediaType)

	var probe *forensics.ContainerProbe
	visual := Visual{Type: mediaType}
	switch mediaType {
	case MediaImage:
		visual.Image = a.forensics.AnalyzeImage(path, "")
	case MediaVideo:
		probe = a.forensics.ProbeContainer(ctx, path)
		duration, _ := probe.DurationSeconds()
		visual.Video = a.forensics.AnalyzeVideo(ctx, path, duration)
	default:
		visual.Unsupported = &Unsupported{
			Status:      forensics.StatusNotAvailable,
			Explanation: MsgUnsupportedMedia,
		}
	}

	container := ContainerAnomalies(probe)
	inputs := ext.Inputs(container, visual.FusionInput())
	assessment := a.engine.Fuse(inputs)

	analysis := &Analysis{
		ID:                   uuid.NewString(),
		CreatedAt:            start.UTC(),
		Filename:             filename,
		MediaType:            mediaType,
		Bytes:                size,
		SHA256:               hex.EncodeToString(digest[:]),
		ProvenanceState:      ext.ProvenanceState,
		ProvenanceSummary:    ext.ProvenanceSummary,
		C2PA:                 ext.C2PA,
		C2PASummary:          *inputs.C2PASummary,
		FFprobe:              probe,
		AIDisclosure:         ext.AIDisclosure,
		Transformations:      ext.TransformationHints,
		MetadataConsistency:  ext.MetadataConsistency,
		MetadataCompleteness: ext.MetadataCompleteness,
		ContainerAnomalies:   container,
		Forensics:            visual,
		TrustAssessment:      *assessment,
		OneLineRationale:     assessment.Rationale(),
	}
	elapsed := a.now().Sub(start)
	analysis.LatencyMs = elapsed.Milliseconds()

	a.record(analysis, elapsed)
	log.Info("analysis complete",
		"id", analysis.ID,
		"trust_score", analysis.TrustScore,
		"label", analysis.Label,
		"forensics_status", visual.Status(),
		"latency_ms", analysis.LatencyMs,
	)
	return analysis, nil
}

func (a *Analyzer) record(an *Analysis, elapsed time.Duration) {
	if a.metrics == nil {
		return
	}
	a.metrics.RecordForensics(string(an.MediaType), string(an.Forensics.Status()))
	if v := an.Forensics.Video; v != nil {
		failed := len(v.TimelineMarkers) - len(v.FrameScores)
		a.metrics.RecordFrameExtractions(len(v.FrameScores), failed)
	}
	a.metrics.RecordAnalysis(string(an.MediaType), string(an.Label), an.TrustScore, elapsed)
}

func (a *Analyzer) recordError() {
	if a.metrics != nil {
		a.metrics.RecordError()
	}
}

package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truthsig/internal/forensics"
	"truthsig/internal/fusion"
)

func TestAnalyze_Image(t *testing.T) {
	a, m := newTestAnalyzer(t, newStubToolchain())
	path := writeImage(t, t.TempDir(), "photo.png")

	an, err := a.Analyze(context.Background(), path, "", nil)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	sum := sha256.Sum256(data)

	_, err = uuid.Parse(an.ID)
	assert.NoError(t, err)
	assert.Equal(t, "photo.png", an.Filename)
	assert.Equal(t, MediaImage, an.MediaType)
	assert.Equal(t, int64(len(data)), an.Bytes)
	assert.Equal(t, hex.EncodeToString(sum[:]), an.SHA256)
	assert.Nil(t, an.FFprobe)

	require.NotNil(t, an.Forensics.Image)
	assert.Equal(t, forensics.StatusClear, an.Forensics.Image.Status)
	assert.FileExists(t, an.Forensics.Image.HeatmapPath)
	assert.Equal(t, fusion.ContainerNotAvailable, an.ContainerAnomalies.Status)

	// prior 50, no provenance -5, clear visuals +4
	assert.Equal(t, 49, an.TrustScore)
	assert.Equal(t, fusion.LabelLow, an.Label)
	assert.Equal(t, fusion.C2PAUnknown, an.C2PASummary.Validation)
	assert.True(t, strings.HasPrefix(an.OneLineRationale,
		fmt.Sprintf("%s trust (%d/100): ", an.Label, an.TrustScore)))

	sig, ok := an.Signal("container.anomalies")
	require.True(t, ok)
	assert.Equal(t, fusion.SignalNotAvailable, sig.Status)
	assert.Equal(t, NoteProbeUnavailable, sig.Explanation)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("image", "LOW")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ForensicsStatusTotal.WithLabelValues("image", "CLEAR")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ErrorsTotal))
}

func TestAnalyze_ImageWithSignals(t *testing.T) {
	a, _ := newTestAnalyzer(t, newStubToolchain())
	path := writeImage(t, t.TempDir(), "photo.png")

	data, err := os.ReadFile("../schema/testdata/external-signals.json")
	require.NoError(t, err)
	ext, err := ParseSignals(nil, data)
	require.NoError(t, err)

	an, err := a.Analyze(context.Background(), path, "upload.png", ext)
	require.NoError(t, err)

	assert.Equal(t, "upload.png", an.Filename)
	assert.Equal(t, fusion.ProvenanceAbsent, an.ProvenanceState)
	assert.Equal(t, fusion.C2PAUnavailable, an.C2PASummary.Validation)
	// 50 -5 provenance +4 completeness +6 consistency +2 no AI +3 native capture +4 clear
	assert.Equal(t, 64, an.TrustScore)
	assert.Equal(t, fusion.LabelMedium, an.Label)

	_, ok := an.Signal("transform.reencode")
	assert.False(t, ok)
}

func TestAnalyze_Video(t *testing.T) {
	tools := newStubToolchain(forensics.ToolFFmpeg, forensics.ToolFFprobe)
	a, m := newTestAnalyzer(t, tools)
	path := writeFile(t, t.TempDir(), "clip.mp4", mp4Header)

	an, err := a.Analyze(context.Background(), path, "", nil)
	require.NoError(t, err)

	assert.Equal(t, MediaVideo, an.MediaType)
	require.NotNil(t, an.FFprobe)
	assert.Equal(t, forensics.ProbeOK, an.FFprobe.Status)
	assert.Equal(t, fusion.ContainerOK, an.ContainerAnomalies.Status)

	v := an.Forensics.Video
	require.NotNil(t, v)
	assert.Equal(t, forensics.StatusClear, v.Status)
	assert.Len(t, v.FrameScores, forensics.DefaultFrameCount)
	assert.Len(t, v.TimelineMarkers, forensics.DefaultFrameCount)
	assert.Empty(t, v.FlaggedFrames)

	// probed duration is passed through, so only the container probe runs
	assert.Equal(t, 1, tools.callCount(forensics.ToolFFprobe))
	assert.Equal(t, forensics.DefaultFrameCount, tools.callCount(forensics.ToolFFmpeg))

	// 50 -5 provenance +2 container +4 clear
	assert.Equal(t, 51, an.TrustScore)
	assert.Equal(t, fusion.LabelMedium, an.Label)

	assert.Equal(t, float64(forensics.DefaultFrameCount), testutil.ToFloat64(m.FrameExtractionsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("video", "MEDIUM")))
}

func TestAnalyze_VideoWithoutFFmpeg(t *testing.T) {
	a, _ := newTestAnalyzer(t, newStubToolchain(forensics.ToolFFprobe))
	path := writeFile(t, t.TempDir(), "clip.mp4", mp4Header)

	an, err := a.Analyze(context.Background(), path, "", nil)
	require.NoError(t, err)

	require.NotNil(t, an.Forensics.Video)
	assert.Equal(t, forensics.StatusNotAvailable, an.Forensics.Video.Status)
	assert.NotEmpty(t, an.Forensics.Video.Explanation)

	sig, ok := an.Signal("visual.forensics")
	require.True(t, ok)
	assert.Equal(t, fusion.SignalNotAvailable, sig.Status)
	assert.Equal(t, an.Forensics.Video.Explanation, sig.Explanation)

	// 50 -5 provenance +2 container
	assert.Equal(t, 47, an.TrustScore)
}

func TestAnalyze_UnsupportedMedia(t *testing.T) {
	a, _ := newTestAnalyzer(t, newStubToolchain())
	path := writeFile(t, t.TempDir(), "notes.txt", []byte("just some notes"))

	an, err := a.Analyze(context.Background(), path, "", nil)
	require.NoError(t, err)

	assert.Equal(t, MediaUnknown, an.MediaType)
	require.NotNil(t, an.Forensics.Unsupported)
	assert.Equal(t, forensics.StatusNotAvailable, an.Forensics.Status())

	sig, ok := an.Signal("visual.forensics")
	require.True(t, ok)
	assert.Equal(t, MsgUnsupportedMedia, sig.Explanation)
	assert.Equal(t, 45, an.TrustScore)
	assert.Equal(t, fusion.LabelLow, an.Label)
}

func TestAnalyze_Errors(t *testing.T) {
	a, m := newTestAnalyzer(t, newStubToolchain())
	dir := t.TempDir()

	_, err := a.Analyze(context.Background(), dir+"/missing.png", "", nil)
	assert.Error(t, err)

	_, err = a.Analyze(context.Background(), dir, "", nil)
	assert.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ErrorsTotal))
}

func TestAnalysis_JSON(t *testing.T) {
	a, _ := newTestAnalyzer(t, newStubToolchain())
	path := writeImage(t, t.TempDir(), "photo.png")

	an, err := a.Analyze(context.Background(), path, "", nil)
	require.NoError(t, err)

	data, err := json.Marshal(an)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{
		"id", "filename", "media_type", "sha256", "trust_score", "label",
		"top_reasons", "signals", "forensics", "container_anomalies", "one_line_rationale",
	} {
		assert.Contains(t, fields, key)
	}

	var back Analysis
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, an.TrustScore, back.TrustScore)
	assert.Equal(t, an.Forensics.Status(), back.Forensics.Status())
	assert.Len(t, back.Signals, len(an.Signals))
}

func TestNewAnalyzer_Defaults(t *testing.T) {
	a := NewAnalyzer(nil, nil, nil, nil)
	require.NotNil(t, a.Engine())
	assert.Equal(t, fusion.DefaultConfig(), a.Engine().Config())
}

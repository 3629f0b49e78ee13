package forensics

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Probe status values reported by ProbeContainer.
const (
	ProbeOK             = "ok"
	ProbeMissingFFprobe = "missing_ffprobe"
	ProbeError          = "error"
	ProbeParseError     = "parse_error"
)

// ContainerProbe is the subset of ffprobe's JSON output used for container
// checks.
type ContainerProbe struct {
	Status  string         `json:"_status"`
	Format  ProbeFormat    `json:"format"`
	Streams []ProbeStream  `json:"streams"`
	Stderr  string         `json:"stderr,omitempty"`
	Raw     map[string]any `json:"-"`
}

// ProbeFormat is ffprobe's "format" section.
type ProbeFormat struct {
	FormatName string `json:"format_name,omitempty"`
	Duration   string `json:"duration,omitempty"`
	Size       string `json:"size,omitempty"`
	BitRate    string `json:"bit_rate,omitempty"`
}

// ProbeStream is one entry of ffprobe's "streams" section.
type ProbeStream struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// validDuration reports whether d can drive frame sampling: positive and
// finite. NaN fails the comparison.
func validDuration(d float64) bool {
	return d > 0 && !math.IsInf(d, 0)
}

// DurationSeconds parses the container duration. ok is false when missing or
// not a positive finite number.
func (p *ContainerProbe) DurationSeconds() (float64, bool) {
	if p == nil || p.Format.Duration == "" {
		return 0, false
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(p.Format.Duration), 64)
	if err != nil || !validDuration(d) {
		return 0, false
	}
	return d, true
}

// ProbeDuration asks ffprobe for the container duration in seconds. ok is
// false unless the answer is a positive finite number.
func (a *Analyzer) ProbeDuration(ctx context.Context, path string) (float64, bool) {
	if !a.tools.Available(ToolFFprobe) {
		return 0, false
	}
	res := a.tools.Run(ctx, a.opts.ProbeTimeout, ToolFFprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out := strings.TrimSpace(res.Stdout)
	if res.Failed() || out == "" {
		return 0, false
	}
	d, err := strconv.ParseFloat(out, 64)
	if err != nil || !validDuration(d) {
		return 0, false
	}
	return d, true
}

// ProbeContainer runs ffprobe over the container's format and streams.
// Failures are reported through Status rather than an error.
func (a *Analyzer) ProbeContainer(ctx context.Context, path string) *ContainerProbe {
	if !a.tools.Available(ToolFFprobe) {
		return &ContainerProbe{Status: ProbeMissingFFprobe}
	}
	res := a.tools.Run(ctx, a.opts.ProbeTimeout, ToolFFprobe,
		"-v", "error",
		"-show_format",
		"-show_streams",
		"-of", "json",
		path,
	)
	if res.Failed() {
		return &ContainerProbe{Status: ProbeError, Stderr: truncate(res.Stderr, MaxMarkerNoteLen)}
	}

	probe := &ContainerProbe{}
	if err := json.Unmarshal([]byte(res.Stdout), probe); err != nil {
		return &ContainerProbe{Status: ProbeParseError, Stderr: truncate(err.Error(), MaxMarkerNoteLen)}
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(res.Stdout), &raw); err == nil {
		probe.Raw = raw
	}
	probe.Status = ProbeOK
	return probe
}

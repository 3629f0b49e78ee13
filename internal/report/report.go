// Package report renders analyses for terminals, Markdown documents and
// machine consumers.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"truthsig/internal/forensics"
	"truthsig/internal/fusion"
	"truthsig/internal/pipeline"
	"truthsig/internal/store"
)

// Format selects the output rendering.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ErrUnknownFormat is returned by ParseFormat for unsupported names.
var ErrUnknownFormat = errors.New("unknown report format")

const (
	ruleWidth   = 72
	barWidth    = 20
	explainWrap = 60
)

// ParseFormat resolves a user supplied format name. The empty string selects
// text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Write renders an analysis in the requested format.
func Write(w io.Writer, f Format, an *pipeline.Analysis) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, an)
	case FormatMarkdown:
		PrintMarkdown(w, an)
		return nil
	case FormatText, "":
		PrintReport(w, an)
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// PrintReport writes a formatted analysis to w.
func PrintReport(w io.Writer, an *pipeline.Analysis) {
	if an == nil {
		fmt.Fprintln(w, "No analysis available")
		return
	}

	fmt.Fprintln(w, strings.Repeat("=", ruleWidth))
	fmt.Fprintln(w, "                        MEDIA TRUST ANALYSIS")
	fmt.Fprintln(w, strings.Repeat("=", ruleWidth))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "File:           %s\n", an.Filename)
	fmt.Fprintf(w, "Media Type:     %s\n", an.MediaType)
	fmt.Fprintf(w, "Size:           %d bytes\n", an.Bytes)
	fmt.Fprintf(w, "SHA-256:        %s\n", an.SHA256)
	if !an.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Analyzed:       %s\n", an.CreatedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Latency:        %d ms\n", an.LatencyMs)
	fmt.Fprintln(w)

	printAssessmentBody(w, &an.TrustAssessment)

	section(w, "VISUAL FORENSICS")
	printVisual(w, an.Forensics)

	if ca := an.ContainerAnomalies; ca != nil {
		section(w, "CONTAINER")
		fmt.Fprintf(w, "Status:         %s\n", ca.Status)
		for _, n := range ca.Notes {
			fmt.Fprintf(w, "  - %s\n", n)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, strings.Repeat("=", ruleWidth))
	fmt.Fprintf(w, "RATIONALE: %s\n", an.OneLineRationale)
	fmt.Fprintln(w, strings.Repeat("=", ruleWidth))
}

// PrintAssessment writes a bare fusion verdict, as produced by fusing
// externally supplied signals, in the requested format.
func PrintAssessment(w io.Writer, f Format, a *fusion.TrustAssessment) error {
	if a == nil {
		return errors.New("no assessment")
	}
	switch f {
	case FormatJSON:
		return WriteJSON(w, a)
	case FormatMarkdown:
		fmt.Fprintf(w, "**Trust:** %s (%d/100)\n\n", a.Label, a.TrustScore)
		writeMarkdownReasons(w, a.TopReasons)
		fmt.Fprintln(w, signalTable(a.Signals).RenderMarkdown())
		fmt.Fprintf(w, "\n_%s_\n", a.Rationale())
		return nil
	}
	printAssessmentBody(w, a)
	fmt.Fprintln(w, a.Rationale())
	return nil
}

func printAssessmentBody(w io.Writer, a *fusion.TrustAssessment) {
	fmt.Fprintf(w, "Trust Score:    %d/100  %s\n", a.TrustScore, FormatMetricBar(float64(a.TrustScore), 0, 100, barWidth))
	fmt.Fprintf(w, "Label:          %s\n", a.Label)
	fmt.Fprintf(w, "Provenance:     %s\n", provenanceLine(a.ProvenanceFlags))
	fmt.Fprintln(w)

	section(w, "TOP REASONS")
	if len(a.TopReasons) == 0 {
		fmt.Fprintln(w, "No dominant signals detected.")
	}
	for i, r := range a.TopReasons {
		fmt.Fprintf(w, "%d. %s\n", i+1, r)
	}
	fmt.Fprintln(w)

	section(w, "SIGNALS")
	tw := signalTable(a.Signals)
	tw.SetStyle(table.StyleLight)
	fmt.Fprintln(w, tw.Render())
	fmt.Fprintln(w)
}

func printVisual(w io.Writer, v pipeline.Visual) {
	fmt.Fprintf(w, "Status:         %s\n", v.Status())
	if s := v.Summary(); s != "" {
		fmt.Fprintf(w, "Summary:        %s\n", s)
	}
	if e := v.Explanation(); e != "" {
		fmt.Fprintf(w, "Explanation:    %s\n", e)
	}

	switch {
	case v.Image != nil:
		if v.Image.HeatmapPath != "" {
			fmt.Fprintf(w, "Heatmap:        %s\n", v.Image.HeatmapPath)
		}
		if v.Image.SuspiciousRegionsNote != "" {
			fmt.Fprintf(w, "Note:           %s\n", v.Image.SuspiciousRegionsNote)
		}
	case v.Video != nil:
		fmt.Fprintf(w, "Frames:         %d sampled, %d extracted\n",
			len(v.Video.TimelineMarkers), len(v.Video.FrameScores))
		if len(v.Video.TimelineMarkers) > 0 {
			fmt.Fprintln(w)
			tw := timelineTable(v.Video)
			tw.SetStyle(table.StyleLight)
			fmt.Fprintln(w, tw.Render())
		}
	}
	fmt.Fprintln(w)
}

// PrintMarkdown writes the analysis as a Markdown document.
func PrintMarkdown(w io.Writer, an *pipeline.Analysis) {
	if an == nil {
		fmt.Fprintln(w, "_No analysis available._")
		return
	}

	fmt.Fprintf(w, "# Media trust analysis: %s\n\n", an.Filename)
	fmt.Fprintf(w, "- **Trust:** %s (%d/100)\n", an.Label, an.TrustScore)
	fmt.Fprintf(w, "- **Media type:** %s\n", an.MediaType)
	fmt.Fprintf(w, "- **SHA-256:** `%s`\n", an.SHA256)
	fmt.Fprintf(w, "- **Provenance:** %s\n\n", provenanceLine(an.ProvenanceFlags))

	fmt.Fprintln(w, "## Top reasons")
	fmt.Fprintln(w)
	writeMarkdownReasons(w, an.TopReasons)

	fmt.Fprintln(w, "## Signals")
	fmt.Fprintln(w)
	fmt.Fprintln(w, signalTable(an.Signals).RenderMarkdown())
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Visual forensics")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Status: **%s**", an.Forensics.Status())
	if s := an.Forensics.Summary(); s != "" {
		fmt.Fprintf(w, ". %s", s)
	}
	if e := an.Forensics.Explanation(); e != "" {
		fmt.Fprintf(w, ". %s", e)
	}
	fmt.Fprintln(w)
	if v := an.Forensics.Video; v != nil && len(v.TimelineMarkers) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, timelineTable(v).RenderMarkdown())
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "> %s\n", an.OneLineRationale)
}

func writeMarkdownReasons(w io.Writer, reasons []string) {
	if len(reasons) == 0 {
		fmt.Fprintln(w, "No dominant signals detected.")
		fmt.Fprintln(w)
		return
	}
	for _, r := range reasons {
		fmt.Fprintf(w, "- %s\n", r)
	}
	fmt.Fprintln(w)
}

// PrintHistory lists archived analyses, newest first as given.
func PrintHistory(w io.Writer, f Format, records []store.AnalysisRecord) error {
	if f == FormatJSON {
		rows := make([]historyRow, len(records))
		for i, r := range records {
			rows[i] = newHistoryRow(r)
		}
		return WriteJSON(w, rows)
	}

	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"ID", "Analyzed", "File", "Type", "Score", "Label", "Provenance"})
	for _, r := range records {
		tw.AppendRow(table.Row{
			ShortID(r.ID),
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			Truncate(r.Filename, 32),
			r.MediaType,
			r.TrustScore,
			r.Label,
			r.ProvenanceState,
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 5, Align: text.AlignRight}})
	if f == FormatMarkdown {
		fmt.Fprintln(w, tw.RenderMarkdown())
		return nil
	}
	tw.SetStyle(table.StyleLight)
	tw.AppendFooter(table.Row{"", "", "", "", len(records), "analyses", ""})
	fmt.Fprintln(w, tw.Render())
	return nil
}

type historyRow struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	Filename        string    `json:"filename"`
	SHA256          string    `json:"sha256"`
	MediaType       string    `json:"media_type"`
	Bytes           int64     `json:"bytes"`
	TrustScore      int       `json:"trust_score"`
	Label           string    `json:"label"`
	ProvenanceState string    `json:"provenance_state"`
}

func newHistoryRow(r store.AnalysisRecord) historyRow {
	return historyRow{
		ID:              r.ID,
		CreatedAt:       r.CreatedAt,
		Filename:        r.Filename,
		SHA256:          r.SHA256,
		MediaType:       r.MediaType,
		Bytes:           r.Bytes,
		TrustScore:      r.TrustScore,
		Label:           r.Label,
		ProvenanceState: r.ProvenanceState,
	}
}

func signalTable(signals []fusion.Signal) table.Writer {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"", "Signal", "Value", "Weight", "Status", "Explanation"})
	for _, s := range signals {
		tw.AppendRow(table.Row{
			severityMarker(s.Severity),
			s.Label,
			s.Value,
			fmt.Sprintf("%+g", s.Weight),
			s.Status,
			s.Explanation,
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 6, WidthMax: explainWrap},
	})
	return tw
}

func timelineTable(v *forensics.VideoResult) table.Writer {
	flagged := make(map[float64]bool, len(v.FlaggedFrames))
	for _, f := range v.FlaggedFrames {
		flagged[f.TimeS] = true
	}

	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Time (s)", "Status", "ELA Score", "Flagged", "Note"})
	for _, m := range v.TimelineMarkers {
		score := "-"
		if m.Score != nil {
			score = fmt.Sprintf("%.1f", *m.Score)
		}
		mark := ""
		if flagged[m.TimeS] {
			mark = "yes"
		}
		tw.AppendRow(table.Row{fmt.Sprintf("%.2f", m.TimeS), m.Status, score, mark, Truncate(m.Note, 48)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	return tw
}

func section(w io.Writer, title string) {
	fmt.Fprintln(w, strings.Repeat("-", ruleWidth))
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("-", ruleWidth))
	fmt.Fprintln(w)
}

func provenanceLine(p fusion.ProvenanceFlags) string {
	state := string(p.State)
	if state == "" {
		state = string(fusion.ProvenanceAbsent)
	}
	switch {
	case p.Broken:
		return state + " (chain broken)"
	case p.Valid:
		return state + " (verified)"
	case p.Present:
		return state + " (present)"
	}
	return state
}

// FormatMetricBar produces an ASCII bar for value within [min, max].
func FormatMetricBar(value, min, max float64, width int) string {
	if width <= 0 {
		return ""
	}
	if max <= min {
		return strings.Repeat("-", width)
	}

	normalized := (value - min) / (max - min)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	filled := int(normalized * float64(width))
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

// ShortID returns the first block of a UUID for compact listings.
func ShortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return Truncate(id, 8)
}

// Truncate shortens s to maxLen bytes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// severityMarker returns a visual marker for severity levels.
func severityMarker(s fusion.Severity) string {
	switch s {
	case fusion.SeverityHigh:
		return "!!!"
	case fusion.SeverityMedium:
		return " ! "
	case fusion.SeverityPositive:
		return " + "
	case fusion.SeverityInfo:
		return " i "
	default:
		return "   "
	}
}

// Package store provides the SQLite-backed archive of media analyses.
package store

import "time"

// AnalysisRecord is one archived analysis. Payload holds the full analysis as
// JSON; the other columns are denormalized for listing and lookup.
type AnalysisRecord struct {
	ID              string
	CreatedAt       time.Time
	Filename        string
	SHA256          string
	MediaType       string
	Bytes           int64
	TrustScore      int
	Label           string
	ProvenanceState string
	Payload         []byte
	PayloadHash     [32]byte
}

// EventType classifies an audit event.
type EventType string

const (
	// EventScanCreated records a completed analysis.
	EventScanCreated EventType = "SCAN_CREATED"
	// EventScanFailed records an analysis that could not be completed.
	EventScanFailed EventType = "SCAN_FAILED"
)

// Event is an audit row describing what happened to an analysis.
type Event struct {
	ID              int64
	Type            EventType
	AnalysisID      string
	TimestampNs     int64
	LatencyMs       int64
	TrustScore      *int
	ProvenanceState string
	Detail          string
}

// LabelCount is the number of archived analyses carrying a label.
type LabelCount struct {
	Label string
	Count int
}

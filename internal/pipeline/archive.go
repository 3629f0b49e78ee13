package pipeline

import (
	"encoding/json"
	"fmt"

	"truthsig/internal/store"
)

// Record converts the analysis into an archive row. The payload is the full
// analysis JSON.
func (a *Analysis) Record() (*store.AnalysisRecord, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode analysis: %w", err)
	}
	return &store.AnalysisRecord{
		ID:              a.ID,
		CreatedAt:       a.CreatedAt,
		Filename:        a.Filename,
		SHA256:          a.SHA256,
		MediaType:       string(a.MediaType),
		Bytes:           a.Bytes,
		TrustScore:      a.TrustScore,
		Label:           string(a.Label),
		ProvenanceState: string(a.ProvenanceState),
		Payload:         payload,
	}, nil
}

// Archive stores the analysis and its SCAN_CREATED event atomically.
func Archive(st *store.Store, a *Analysis) error {
	rec, err := a.Record()
	if err != nil {
		return err
	}
	score := a.TrustScore
	return st.SaveAnalysisWithEvent(rec, &store.Event{
		Type:            store.EventScanCreated,
		AnalysisID:      a.ID,
		TimestampNs:     a.CreatedAt.UnixNano(),
		LatencyMs:       a.LatencyMs,
		TrustScore:      &score,
		ProvenanceState: string(a.ProvenanceState),
	})
}

// ArchiveFailure records a file that could not be analyzed.
func ArchiveFailure(st *store.Store, path string, cause error) error {
	_, err := st.InsertEvent(&store.Event{
		Type:   store.EventScanFailed,
		Detail: fmt.Sprintf("%s: %v", path, cause),
	})
	return err
}

// LoadArchived decodes the payload of an archived analysis.
func LoadArchived(rec *store.AnalysisRecord) (*Analysis, error) {
	var a Analysis
	if err := json.Unmarshal(rec.Payload, &a); err != nil {
		return nil, fmt.Errorf("decode archived analysis %s: %w", rec.ID, err)
	}
	return &a, nil
}

package store

import (
	"bytes"
	"crypto/sha256"
	"fmt"
)

// VerifyRecordIntegrity checks that a record's payload matches its stored hash.
func VerifyRecordIntegrity(r *AnalysisRecord) error {
	computed := sha256.Sum256(r.Payload)
	if !bytes.Equal(computed[:], r.PayloadHash[:]) {
		return fmt.Errorf("payload hash mismatch for analysis %s: computed %x, expected %x",
			r.ID, computed, r.PayloadHash)
	}
	return nil
}

// VerifyAllAnalyses re-hashes every archived payload and returns the ids of
// records whose payload no longer matches.
func (s *Store) VerifyAllAnalyses() ([]string, error) {
	records, err := s.ListAnalyses(0)
	if err != nil {
		return nil, err
	}

	var corrupted []string
	for i := range records {
		if err := VerifyRecordIntegrity(&records[i]); err != nil {
			corrupted = append(corrupted, records[i].ID)
		}
	}
	return corrupted, nil
}

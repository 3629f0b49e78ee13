package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"truthsig/internal/fusion"
	"truthsig/internal/schema"
)

// ExternalSignals is the bundle produced by the metadata and provenance
// extraction collaborators. Every field is optional.
type ExternalSignals struct {
	ProvenanceState      fusion.ProvenanceState       `json:"provenance_state,omitempty"`
	ProvenanceSummary    string                       `json:"provenance_summary,omitempty"`
	C2PA                 map[string]any               `json:"c2pa,omitempty"`
	MetadataCompleteness *fusion.MetadataCompleteness `json:"metadata_completeness,omitempty"`
	MetadataConsistency  *fusion.MetadataConsistency  `json:"metadata_consistency,omitempty"`
	AIDisclosure         *fusion.AIDisclosure         `json:"ai_disclosure,omitempty"`
	TransformationHints  *fusion.TransformationHints  `json:"transformation_hints,omitempty"`
}

// ParseSignals validates data against the external signals schema and
// decodes it.
func ParseSignals(v *schema.Validator, data []byte) (*ExternalSignals, error) {
	if v != nil {
		if err := v.Validate(schema.ExternalSignals, data); err != nil {
			return nil, fmt.Errorf("validate signals: %w", err)
		}
	}
	var sig ExternalSignals
	if err := json.Unmarshal(data, &sig); err != nil {
		return nil, fmt.Errorf("decode signals: %w", err)
	}
	return &sig, nil
}

// LoadSignals reads and parses a signals file.
func LoadSignals(v *schema.Validator, path string) (*ExternalSignals, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signals: %w", err)
	}
	return ParseSignals(v, data)
}

// Inputs assembles fusion inputs from the external signals plus the locally
// computed container and visual verdicts. Either verdict may be nil.
func (s *ExternalSignals) Inputs(container *fusion.ContainerAnomalies, visual *fusion.VisualForensics) fusion.Inputs {
	if s == nil {
		s = &ExternalSignals{}
	}
	c2pa := SummarizeC2PA(s.C2PA)
	return fusion.Inputs{
		ProvenanceState:      s.ProvenanceState,
		C2PASummary:          &c2pa,
		MetadataCompleteness: s.MetadataCompleteness,
		MetadataConsistency:  s.MetadataConsistency,
		AIDisclosure:         s.AIDisclosure,
		TransformationHints:  s.TransformationHints,
		ContainerAnomalies:   container,
		VisualForensics:      visual,
	}
}

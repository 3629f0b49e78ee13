package pipeline

import (
	"encoding/json"
	"strings"

	"truthsig/internal/fusion"
)

// C2PA extraction status values reported by the extraction collaborator.
const (
	C2PAMissingTool = "missing_c2patool"
	C2PAError       = "error"
	C2PAParseError  = "parse_error"
)

// SummarizeC2PA condenses a raw content credential extraction into the
// fields the fusion engine consumes. Validation is a keyword scan of the
// serialized manifest; failure words win over success words.
func SummarizeC2PA(raw map[string]any) fusion.C2PASummary {
	if len(raw) == 0 {
		return fusion.C2PASummary{Present: false, Validation: fusion.C2PAUnknown}
	}

	status, _ := raw["_status"].(string)
	switch status {
	case C2PAMissingTool, C2PAError, C2PAParseError:
		return fusion.C2PASummary{Present: false, Validation: fusion.C2PAUnavailable, Status: status}
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return fusion.C2PASummary{Present: false, Validation: fusion.C2PAUnknown, Status: status}
	}
	text := strings.ToLower(string(data))

	summary := fusion.C2PASummary{
		Present:    strings.Contains(text, "manifest") || strings.Contains(text, "c2pa"),
		Validation: fusion.C2PAUnknown,
		Status:     status,
	}
	if containsAny(text, "valid", "verified", "passed") {
		summary.Validation = fusion.C2PAValid
	}
	if containsAny(text, "invalid", "failed", "broken") {
		summary.Validation = fusion.C2PAFailed
	}
	summary.Signer, _ = raw["signer"].(string)
	summary.Issuer, _ = raw["issuer"].(string)
	return summary
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

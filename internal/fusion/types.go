// Package fusion combines provenance, metadata and visual forensics signals
// into a single explainable trust score.
package fusion

import "encoding/json"

// Severity grades how strongly a signal bears on trust.
type Severity string

const (
	SeverityPositive Severity = "POSITIVE"
	SeverityInfo     Severity = "INFO"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
)

// SignalStatus is the check outcome carried by a signal.
type SignalStatus string

const (
	SignalOK           SignalStatus = "OK"
	SignalWarn         SignalStatus = "WARN"
	SignalFail         SignalStatus = "FAIL"
	SignalNotAvailable SignalStatus = "NOT_AVAILABLE"
)

// Label is the coarse trust bucket derived from the score.
type Label string

const (
	LabelHigh   Label = "HIGH"
	LabelMedium Label = "MEDIUM"
	LabelLow    Label = "LOW"
)

// ProvenanceState is the upstream verdict on the content credential manifest.
// Any value other than the two named states means absent or unknown.
type ProvenanceState string

const (
	ProvenanceVerifiedOriginal ProvenanceState = "VERIFIED_ORIGINAL"
	ProvenanceAlteredOrBroken  ProvenanceState = "ALTERED_OR_BROKEN_PROVENANCE"
	ProvenanceAbsent           ProvenanceState = "NO_PROVENANCE"
)

// C2PAValidation is the validation verdict of a content credential manifest.
type C2PAValidation string

const (
	C2PAValid       C2PAValidation = "VALID"
	C2PAFailed      C2PAValidation = "FAILED"
	C2PAUnknown     C2PAValidation = "UNKNOWN"
	C2PAUnavailable C2PAValidation = "UNAVAILABLE"
)

// ConsistencyStatus reports whether metadata fields agree with each other.
type ConsistencyStatus string

const (
	Consistent            ConsistencyStatus = "CONSISTENT"
	InconsistentOrMissing ConsistencyStatus = "INCONSISTENT_OR_MISSING"
)

// AIDeclared reports AI-generation markers found in metadata.
type AIDeclared string

const (
	AIPossible AIDeclared = "POSSIBLE"
	AINo       AIDeclared = "NO"
	AIUnknown  AIDeclared = "UNKNOWN"
)

// Likelihood is a coarse HIGH/LOW estimate.
type Likelihood string

const (
	LikelihoodHigh Likelihood = "HIGH"
	LikelihoodLow  Likelihood = "LOW"
)

// Possibility marks a hint that may apply.
type Possibility string

const (
	Possible Possibility = "POSSIBLE"
	Unknown  Possibility = "UNKNOWN"
)

// ContainerStatus is the verdict of the container structure checks.
type ContainerStatus string

const (
	ContainerAnomaly      ContainerStatus = "ANOMALY"
	ContainerOK           ContainerStatus = "OK"
	ContainerNotAvailable ContainerStatus = "NOT_AVAILABLE"
)

// VisualStatus is the verdict handed over from visual forensics.
type VisualStatus string

const (
	VisualClear        VisualStatus = "CLEAR"
	VisualSuspicious   VisualStatus = "SUSPICIOUS"
	VisualNotAvailable VisualStatus = "NOT_AVAILABLE"
	VisualError        VisualStatus = "ERROR"
)

// Signal is one weighted, explained observation.
type Signal struct {
	Key         string          `json:"key"`
	Label       string          `json:"label"`
	Value       string          `json:"value"`
	Severity    Severity        `json:"severity"`
	Weight      float64         `json:"weight"`
	Evidence    json.RawMessage `json:"evidence,omitempty"`
	Explanation string          `json:"explanation"`
	Status      SignalStatus    `json:"status"`
}

// ProvenanceFlags is the provenance state expanded into booleans.
type ProvenanceFlags struct {
	Present bool            `json:"present"`
	Valid   bool            `json:"valid"`
	Broken  bool            `json:"broken"`
	State   ProvenanceState `json:"state"`
}

// TrustAssessment is the fused verdict.
type TrustAssessment struct {
	TrustScore      int             `json:"trust_score"`
	Label           Label           `json:"label"`
	TopReasons      []string        `json:"top_reasons"`
	Signals         []Signal        `json:"signals"`
	ProvenanceFlags ProvenanceFlags `json:"provenance_flags"`
}

// C2PASummary condenses the content credential extraction.
type C2PASummary struct {
	Present    bool           `json:"present"`
	Validation C2PAValidation `json:"validation"`
	Signer     string         `json:"signer,omitempty"`
	Issuer     string         `json:"issuer,omitempty"`
	Status     string         `json:"status,omitempty"`
}

// MetadataCompleteness scores how many capture fields are present (0–3).
type MetadataCompleteness struct {
	Score *int     `json:"score_0_to_3"`
	Notes []string `json:"notes,omitempty"`
}

// MetadataConsistency is the metadata cross-check verdict.
type MetadataConsistency struct {
	Status ConsistencyStatus `json:"status"`
	Notes  []string          `json:"notes,omitempty"`
}

// AIDisclosure reports AI markers in metadata.
type AIDisclosure struct {
	Declared AIDeclared `json:"declared"`
	Markers  []string   `json:"markers,omitempty"`
}

// TransformationHints describe signs of screenshots or re-encoding.
type TransformationHints struct {
	ScreenshotLikelihood Likelihood  `json:"screenshot_likelihood,omitempty"`
	ForwardedOrReencoded Possibility `json:"forwarded_or_reencoded,omitempty"`
	Notes                []string    `json:"notes,omitempty"`
}

// ContainerAnomalies is the container structure verdict.
type ContainerAnomalies struct {
	Status    ContainerStatus `json:"status"`
	Notes     []string        `json:"notes,omitempty"`
	Anomalies []string        `json:"anomalies,omitempty"`
}

// VisualForensics is the visual verdict. Evidence, when set, is attached to the
// signal verbatim; otherwise the record itself is.
type VisualForensics struct {
	Status      VisualStatus    `json:"status"`
	Summary     string          `json:"summary,omitempty"`
	Explanation string          `json:"explanation,omitempty"`
	Evidence    json.RawMessage `json:"evidence,omitempty"`
}

// Inputs gathers every signal source. All pointer fields are optional; a nil
// source contributes no signal.
type Inputs struct {
	ProvenanceState      ProvenanceState       `json:"provenance_state"`
	C2PASummary          *C2PASummary          `json:"c2pa_summary,omitempty"`
	MetadataCompleteness *MetadataCompleteness `json:"metadata_completeness,omitempty"`
	MetadataConsistency  *MetadataConsistency  `json:"metadata_consistency,omitempty"`
	AIDisclosure         *AIDisclosure         `json:"ai_disclosure,omitempty"`
	TransformationHints  *TransformationHints  `json:"transformation_hints,omitempty"`
	ContainerAnomalies   *ContainerAnomalies   `json:"container_anomalies,omitempty"`
	VisualForensics      *VisualForensics      `json:"visual_forensics,omitempty"`
}

package fusion

// Weights is the per-category contribution table. The defaults are
// product-tuned; override them through configuration rather than code.
type Weights struct {
	ProvenanceVerified float64 `toml:"provenance_verified" json:"provenance_verified" yaml:"provenance_verified"`
	ProvenanceBroken   float64 `toml:"provenance_broken" json:"provenance_broken" yaml:"provenance_broken"`
	ProvenanceAbsent   float64 `toml:"provenance_absent" json:"provenance_absent" yaml:"provenance_absent"`

	// Completeness contributes (score - CompletenessBaseline) * CompletenessPerPoint.
	CompletenessPerPoint float64 `toml:"completeness_per_point" json:"completeness_per_point" yaml:"completeness_per_point"`
	CompletenessBaseline int     `toml:"completeness_baseline" json:"completeness_baseline" yaml:"completeness_baseline"`

	MetadataConsistent   float64 `toml:"metadata_consistent" json:"metadata_consistent" yaml:"metadata_consistent"`
	MetadataInconsistent float64 `toml:"metadata_inconsistent" json:"metadata_inconsistent" yaml:"metadata_inconsistent"`

	AIPossible float64 `toml:"ai_possible" json:"ai_possible" yaml:"ai_possible"`
	AINo       float64 `toml:"ai_no" json:"ai_no" yaml:"ai_no"`

	ScreenshotHigh float64 `toml:"screenshot_high" json:"screenshot_high" yaml:"screenshot_high"`
	ScreenshotLow  float64 `toml:"screenshot_low" json:"screenshot_low" yaml:"screenshot_low"`
	Reencoded      float64 `toml:"reencoded" json:"reencoded" yaml:"reencoded"`

	ContainerAnomaly      float64 `toml:"container_anomaly" json:"container_anomaly" yaml:"container_anomaly"`
	ContainerOK           float64 `toml:"container_ok" json:"container_ok" yaml:"container_ok"`
	ContainerNotAvailable float64 `toml:"container_not_available" json:"container_not_available" yaml:"container_not_available"`

	VisualSuspicious   float64 `toml:"visual_suspicious" json:"visual_suspicious" yaml:"visual_suspicious"`
	VisualClear        float64 `toml:"visual_clear" json:"visual_clear" yaml:"visual_clear"`
	VisualNotAvailable float64 `toml:"visual_not_available" json:"visual_not_available" yaml:"visual_not_available"`
}

// DefaultWeights returns the stock weight table.
func DefaultWeights() Weights {
	return Weights{
		ProvenanceVerified: 25,
		ProvenanceBroken:   -30,
		ProvenanceAbsent:   -5,

		CompletenessPerPoint: 4,
		CompletenessBaseline: 1,

		MetadataConsistent:   6,
		MetadataInconsistent: -8,

		AIPossible: -10,
		AINo:       2,

		ScreenshotHigh: -8,
		ScreenshotLow:  3,
		Reencoded:      -6,

		ContainerAnomaly:      -7,
		ContainerOK:           2,
		ContainerNotAvailable: 0,

		VisualSuspicious:   -18,
		VisualClear:        4,
		VisualNotAvailable: 0,
	}
}

// Config tunes the engine.
type Config struct {
	// Prior is the neutral starting score.
	Prior float64 `toml:"prior" json:"prior" yaml:"prior"`

	// HighThreshold and MediumThreshold are inclusive lower bounds for the labels.
	HighThreshold   int `toml:"high_threshold" json:"high_threshold" yaml:"high_threshold"`
	MediumThreshold int `toml:"medium_threshold" json:"medium_threshold" yaml:"medium_threshold"`

	// MaxReasons caps TopReasons.
	MaxReasons int `toml:"max_reasons" json:"max_reasons" yaml:"max_reasons"`

	Weights Weights `toml:"weights" json:"weights" yaml:"weights"`
}

// DefaultConfig returns the stock engine configuration.
func DefaultConfig() Config {
	return Config{
		Prior:           50,
		HighThreshold:   75,
		MediumThreshold: 50,
		MaxReasons:      3,
		Weights:         DefaultWeights(),
	}
}

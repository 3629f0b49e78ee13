package fusion

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Engine fuses signals into a TrustAssessment. It is stateless apart from its
// configuration and safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine with the stock configuration.
func NewEngine() *Engine {
	return &Engine{cfg: DefaultConfig()}
}

// NewEngineWithConfig creates an engine with custom configuration. Unset
// label thresholds and MaxReasons take their DefaultConfig values.
func NewEngineWithConfig(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.HighThreshold <= 0 {
		// A zero high threshold would label every score HIGH.
		cfg.HighThreshold = def.HighThreshold
		if cfg.MediumThreshold <= 0 {
			cfg.MediumThreshold = def.MediumThreshold
		}
	}
	if cfg.MediumThreshold > cfg.HighThreshold {
		cfg.MediumThreshold = cfg.HighThreshold
	}
	if cfg.MaxReasons <= 0 {
		cfg.MaxReasons = def.MaxReasons
	}
	return &Engine{cfg: cfg}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Fuse scores the inputs. Every present category appends one signal (two for
// transformation hints when both screenshot and re-encode hints apply) and
// adds its weight to the prior. Fuse never fails.
func (e *Engine) Fuse(in Inputs) *TrustAssessment {
	w := e.cfg.Weights
	f := &fuser{score: e.cfg.Prior}

	flags := ProvenanceFlags{State: in.ProvenanceState}
	c2pa := evidenceOf(in.C2PASummary)

	switch in.ProvenanceState {
	case ProvenanceVerifiedOriginal:
		flags.Present, flags.Valid = true, true
		f.add(Signal{
			Key:         "provenance.verified",
			Label:       "Provenance verified",
			Value:       string(in.ProvenanceState),
			Severity:    SeverityPositive,
			Weight:      w.ProvenanceVerified,
			Evidence:    c2pa,
			Explanation: "C2PA provenance was present and verified, increasing trust.",
			Status:      SignalOK,
		})
	case ProvenanceAlteredOrBroken:
		flags.Present, flags.Broken = true, true
		f.add(Signal{
			Key:         "provenance.broken",
			Label:       "Broken or altered provenance",
			Value:       string(in.ProvenanceState),
			Severity:    SeverityHigh,
			Weight:      w.ProvenanceBroken,
			Evidence:    c2pa,
			Explanation: "C2PA provenance was present but indicates a broken or altered trust chain.",
			Status:      SignalFail,
		})
	default:
		f.add(Signal{
			Key:         "provenance.absent",
			Label:       "No cryptographic provenance",
			Value:       string(in.ProvenanceState),
			Severity:    SeverityInfo,
			Weight:      w.ProvenanceAbsent,
			Evidence:    c2pa,
			Explanation: "No C2PA manifest was detected; absence does not imply manipulation.",
			Status:      SignalWarn,
		})
	}

	if mc := in.MetadataCompleteness; mc != nil && mc.Score != nil {
		score := clampInt(*mc.Score, 0, 3)
		status := SignalOK
		if score < 2 {
			status = SignalWarn
		}
		f.add(Signal{
			Key:         "metadata.completeness",
			Label:       "Metadata completeness",
			Value:       strconv.Itoa(score),
			Severity:    SeverityInfo,
			Weight:      float64(score-w.CompletenessBaseline) * w.CompletenessPerPoint,
			Evidence:    evidenceOf(mc),
			Explanation: "Metadata completeness influences visibility into capture context.",
			Status:      status,
		})
	}

	if mc := in.MetadataConsistency; mc != nil {
		switch mc.Status {
		case Consistent:
			f.add(Signal{
				Key:         "metadata.consistency",
				Label:       "Metadata consistency",
				Value:       string(mc.Status),
				Severity:    SeverityPositive,
				Weight:      w.MetadataConsistent,
				Evidence:    evidenceOf(mc),
				Explanation: "Metadata fields are internally consistent.",
				Status:      SignalOK,
			})
		case InconsistentOrMissing:
			f.add(Signal{
				Key:         "metadata.consistency",
				Label:       "Metadata inconsistencies or gaps",
				Value:       string(mc.Status),
				Severity:    SeverityMedium,
				Weight:      w.MetadataInconsistent,
				Evidence:    evidenceOf(mc),
				Explanation: "Metadata inconsistencies or missing device identifiers reduce confidence.",
				Status:      SignalWarn,
			})
		}
	}

	if ai := in.AIDisclosure; ai != nil {
		switch ai.Declared {
		case AIPossible:
			f.add(Signal{
				Key:         "ai.disclosure",
				Label:       "Possible AI disclosure",
				Value:       string(ai.Declared),
				Severity:    SeverityMedium,
				Weight:      w.AIPossible,
				Evidence:    evidenceOf(ai),
				Explanation: "Metadata includes AI-related markers; this may indicate generated or edited content.",
				Status:      SignalWarn,
			})
		case AINo:
			f.add(Signal{
				Key:         "ai.disclosure",
				Label:       "No AI disclosure markers",
				Value:       string(ai.Declared),
				Severity:    SeverityInfo,
				Weight:      w.AINo,
				Evidence:    evidenceOf(ai),
				Explanation: "No AI markers were found in available metadata.",
				Status:      SignalOK,
			})
		}
	}

	if th := in.TransformationHints; th != nil {
		switch th.ScreenshotLikelihood {
		case LikelihoodHigh:
			f.add(Signal{
				Key:         "transform.screenshot",
				Label:       "Screenshot likelihood high",
				Value:       string(th.ScreenshotLikelihood),
				Severity:    SeverityMedium,
				Weight:      w.ScreenshotHigh,
				Evidence:    evidenceOf(th),
				Explanation: "Signals suggest screen capture or export, which can strip provenance.",
				Status:      SignalWarn,
			})
		case LikelihoodLow:
			f.add(Signal{
				Key:         "transform.screenshot",
				Label:       "Screenshot likelihood low",
				Value:       string(th.ScreenshotLikelihood),
				Severity:    SeverityInfo,
				Weight:      w.ScreenshotLow,
				Evidence:    evidenceOf(th),
				Explanation: "Device metadata suggests native capture rather than screenshot.",
				Status:      SignalOK,
			})
		}

		if th.ForwardedOrReencoded == Possible {
			notes := th.Notes
			if notes == nil {
				notes = []string{}
			}
			f.add(Signal{
				Key:         "transform.reencode",
				Label:       "Possible re-encoding",
				Value:       string(th.ForwardedOrReencoded),
				Severity:    SeverityMedium,
				Weight:      w.Reencoded,
				Evidence:    evidenceOf(notes),
				Explanation: "Container metadata suggests re-encoding or forwarding.",
				Status:      SignalWarn,
			})
		}
	}

	if ca := in.ContainerAnomalies; ca != nil {
		switch ca.Status {
		case ContainerAnomaly:
			f.add(Signal{
				Key:         "container.anomalies",
				Label:       "Container anomalies",
				Value:       string(ca.Status),
				Severity:    SeverityMedium,
				Weight:      w.ContainerAnomaly,
				Evidence:    evidenceOf(ca),
				Explanation: "Container or stream structure shows anomalies.",
				Status:      SignalWarn,
			})
		case ContainerOK:
			f.add(Signal{
				Key:         "container.anomalies",
				Label:       "Container structure normal",
				Value:       string(ca.Status),
				Severity:    SeverityInfo,
				Weight:      w.ContainerOK,
				Evidence:    evidenceOf(ca),
				Explanation: "No notable container anomalies detected.",
				Status:      SignalOK,
			})
		case ContainerNotAvailable:
			f.add(Signal{
				Key:         "container.anomalies",
				Label:       "Container checks unavailable",
				Value:       string(ca.Status),
				Severity:    SeverityInfo,
				Weight:      w.ContainerNotAvailable,
				Evidence:    evidenceOf(ca),
				Explanation: firstNonEmpty(strings.Join(ca.Notes, " "), "Container checks unavailable."),
				Status:      SignalNotAvailable,
			})
		}
	}

	if vf := in.VisualForensics; vf != nil {
		evidence := vf.Evidence
		if len(evidence) == 0 {
			evidence = evidenceOf(vf)
		}
		switch vf.Status {
		case VisualSuspicious:
			f.add(Signal{
				Key:         "visual.forensics",
				Label:       "Visual anomaly signals",
				Value:       string(vf.Status),
				Severity:    SeverityHigh,
				Weight:      w.VisualSuspicious,
				Evidence:    evidence,
				Explanation: "Visual forensics detected elevated anomaly scores.",
				Status:      SignalWarn,
			})
		case VisualClear:
			f.add(Signal{
				Key:         "visual.forensics",
				Label:       "No strong visual anomalies",
				Value:       string(vf.Status),
				Severity:    SeverityInfo,
				Weight:      w.VisualClear,
				Evidence:    evidence,
				Explanation: "Visual forensics did not detect strong anomalies.",
				Status:      SignalOK,
			})
		case VisualNotAvailable:
			f.add(Signal{
				Key:         "visual.forensics",
				Label:       "Visual forensics unavailable",
				Value:       string(vf.Status),
				Severity:    SeverityInfo,
				Weight:      w.VisualNotAvailable,
				Evidence:    evidence,
				Explanation: firstNonEmpty(vf.Explanation, "Visual forensics unavailable."),
				Status:      SignalNotAvailable,
			})
		}
	}

	score := ClampScore(f.score)
	return &TrustAssessment{
		TrustScore:      score,
		Label:           e.LabelFor(score),
		TopReasons:      TopReasons(f.signals, e.cfg.MaxReasons),
		Signals:         f.signals,
		ProvenanceFlags: flags,
	}
}

// LabelFor maps a score to its label using the configured thresholds.
func (e *Engine) LabelFor(score int) Label {
	switch {
	case score >= e.cfg.HighThreshold:
		return LabelHigh
	case score >= e.cfg.MediumThreshold:
		return LabelMedium
	default:
		return LabelLow
	}
}

// ClampScore bounds a raw score to [0, 100] and rounds half to even.
func ClampScore(score float64) int {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return int(math.RoundToEven(score))
}

// TopReasons returns up to limit explanations ranked by absolute weight.
// Signals of equal weight keep their generation order.
func TopReasons(signals []Signal, limit int) []string {
	ranked := make([]Signal, len(signals))
	copy(ranked, signals)
	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].Weight) > math.Abs(ranked[j].Weight)
	})

	reasons := make([]string, 0, limit)
	for _, s := range ranked {
		if len(reasons) >= limit {
			break
		}
		if r := firstNonEmpty(s.Explanation, s.Label); r != "" {
			reasons = append(reasons, r)
		}
	}
	return reasons
}

// Rationale renders a one-line summary of the assessment.
func (a *TrustAssessment) Rationale() string {
	reason := "No dominant signals detected."
	if len(a.TopReasons) > 0 {
		reason = a.TopReasons[0]
	}
	return fmt.Sprintf("%s trust (%d/100): %s", a.Label, a.TrustScore, reason)
}

// Signal returns the first signal with the given key.
func (a *TrustAssessment) Signal(key string) (Signal, bool) {
	for _, s := range a.Signals {
		if s.Key == key {
			return s, true
		}
	}
	return Signal{}, false
}

type fuser struct {
	score   float64
	signals []Signal
}

func (f *fuser) add(s Signal) {
	f.signals = append(f.signals, s)
	f.score += s.Weight
}

// evidenceOf serializes v for attachment to a signal. Nil pointers yield no
// evidence.
func evidenceOf(v any) json.RawMessage {
	switch t := v.(type) {
	case nil:
		return nil
	case *C2PASummary:
		if t == nil {
			return nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

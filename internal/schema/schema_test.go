package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truthsig/internal/fusion"
)

func TestSchemaValidation(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	cases := []struct {
		name     Name
		instance string
	}{
		{ExternalSignals, "external-signals.json"},
		{TrustAssessment, "trust-assessment.json"},
		{VisualForensics, "visual-forensics.json"},
	}

	for _, tc := range cases {
		t.Run(string(tc.name), func(t *testing.T) {
			data, err := os.ReadFile(filepath.Join("testdata", tc.instance))
			require.NoError(t, err)
			assert.NoError(t, v.Validate(tc.name, data))
		})
	}
}

func TestSchemaValidation_Rejects(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	cases := []struct {
		desc     string
		name     Name
		instance string
	}{
		{"completeness above range", ExternalSignals, `{"metadata_completeness": {"score_0_to_3": 7}}`},
		{"unknown consistency", ExternalSignals, `{"metadata_consistency": {"status": "MAYBE"}}`},
		{"score above 100", TrustAssessment, `{"trust_score": 101, "label": "HIGH", "top_reasons": [], "signals": [], "provenance_flags": {"present": false, "valid": false, "broken": false, "state": ""}}`},
		{"too many reasons", TrustAssessment, `{"trust_score": 50, "label": "MEDIUM", "top_reasons": ["a","b","c","d"], "signals": [], "provenance_flags": {"present": false, "valid": false, "broken": false, "state": ""}}`},
		{"missing flags", TrustAssessment, `{"trust_score": 50, "label": "MEDIUM", "top_reasons": [], "signals": []}`},
		{"negative mean diff", VisualForensics, `{"type": "image", "results": {"status": "CLEAR", "mean_diff": -1}}`},
		{"bad marker status", VisualForensics, `{"type": "video", "results": {"status": "CLEAR", "timeline_markers": [{"time_s": 1, "status": "SKIPPED"}]}}`},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Error(t, v.Validate(tc.name, []byte(tc.instance)))
		})
	}
}

func TestValidateValue_FusionOutput(t *testing.T) {
	v, err := Default()
	require.NoError(t, err)

	score := 2
	a := fusion.NewEngine().Fuse(fusion.Inputs{
		ProvenanceState:      fusion.ProvenanceAlteredOrBroken,
		C2PASummary:          &fusion.C2PASummary{Present: true, Validation: fusion.C2PAFailed},
		MetadataCompleteness: &fusion.MetadataCompleteness{Score: &score},
		TransformationHints:  &fusion.TransformationHints{ScreenshotLikelihood: fusion.LikelihoodHigh, ForwardedOrReencoded: fusion.Possible},
		VisualForensics:      &fusion.VisualForensics{Status: fusion.VisualSuspicious},
	})

	assert.NoError(t, v.ValidateValue(TrustAssessment, a))
}

func TestValidate_UnknownSchema(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	err = v.Validate("nope", []byte(`{}`))
	assert.True(t, errors.Is(err, ErrUnknownSchema))

	_, err = Source("nope")
	assert.True(t, errors.Is(err, ErrUnknownSchema))
}

func TestValidate_MalformedJSON(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	assert.Error(t, v.Validate(ExternalSignals, []byte(`{"provenance_state":`)))
}

func TestSource(t *testing.T) {
	for _, name := range Names {
		data, err := Source(name)
		require.NoError(t, err)
		assert.Contains(t, string(data), "2020-12")
	}
}

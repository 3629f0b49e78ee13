package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAnalysis(t *testing.T) {
	m := New()

	m.RecordAnalysis("image", "HIGH", 82, 150*time.Millisecond)
	m.RecordAnalysis("image", "HIGH", 90, 100*time.Millisecond)
	m.RecordAnalysis("video", "LOW", 31, 4*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("image", "HIGH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("video", "LOW")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.AnalysesTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.TrustScore))
}

func TestRecordFrameExtractions(t *testing.T) {
	m := New()

	m.RecordFrameExtractions(9, 3)
	m.RecordFrameExtractions(0, 2)

	assert.Equal(t, 9.0, testutil.ToFloat64(m.FrameExtractionsTotal.WithLabelValues("ok")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.FrameExtractionsTotal.WithLabelValues("error")))
}

func TestRecordForensicsAndErrors(t *testing.T) {
	m := New()

	m.RecordForensics("video", "NOT_AVAILABLE")
	m.RecordError()
	m.RecordError()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ForensicsStatusTotal.WithLabelValues("video", "NOT_AVAILABLE")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ErrorsTotal))
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()

	a.RecordError()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.ErrorsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ErrorsTotal))
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordAnalysis("image", "MEDIUM", 55, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `truthsig_analyses_total{label="MEDIUM",media_type="image"} 1`), body)
	assert.Contains(t, body, "truthsig_analysis_duration_seconds_bucket")
}

func TestDefault(t *testing.T) {
	assert.Same(t, Default(), Default())
}

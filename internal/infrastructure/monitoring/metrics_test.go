package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSegmentBegun(true)
	m.RecordSegmentBegun(false)
	m.RecordSubsegmentBegun()
	m.RecordEmitted()
	m.RecordStreamed(3)
	m.RecordDropped(DropNotSampled, 1)
	m.RecordDropped(DropQueueFull, 0)
	m.RecordEntityMissing("end_segment")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SegmentsBegun.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SegmentsBegun.WithLabelValues("false")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DocumentsStreamed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SegmentsDropped.WithLabelValues(DropNotSampled)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SegmentsDropped.WithLabelValues(DropQueueFull)))

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.SegmentsBegun)
	assert.Equal(t, int64(1), snap.SubsegmentsBegun)
	assert.Equal(t, int64(1), snap.SegmentsEmitted)
	assert.Equal(t, int64(3), snap.DocumentsStreamed)
	assert.Equal(t, int64(1), snap.SegmentsDropped)
	assert.Equal(t, int64(1), snap.EntityMissing)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSegmentBegun(true)
		m.RecordSubsegmentBegun()
		m.RecordEmitted()
		m.RecordStreamed(1)
		m.RecordDropped(DropEmitError, 1)
		m.RecordEntityMissing("x")
		m.RecordSamplingDecision("", "1")
		m.RecordEmit("udp", time.Millisecond, errors.New("x"))
		m.SetQueueDepth(1)
		m.RecordHTTPRequest("GET", "/", "200", time.Millisecond)
		NewTimer(m, "udp").Stop(nil)
	})
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestTimerRecordsErrors(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	NewTimer(m, "http").Stop(nil)
	NewTimer(m, "http").Stop(errors.New("refused"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmitErrors.WithLabelValues("http")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.EmitDuration), "one series per emitter")
}

func TestSamplingDecisionDefaultsRule(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordSamplingDecision("", "0")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SamplingDecisions.WithLabelValues("none", "0")))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(prometheus.NewRegistry())

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/users/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/users/1", "/users/2", "/nope"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/users/:id", "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}

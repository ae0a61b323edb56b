package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons for SegmentsDropped.
const (
	DropNotSampled = "not_sampled"
	DropQueueFull  = "queue_full"
	DropEmitError  = "emit_error"
	DropTooLarge   = "too_large"
)

// Metrics holds the recorder's Prometheus metrics. All methods are safe on a
// nil receiver so components can run without metrics.
type Metrics struct {
	// Recorder metrics
	SegmentsBegun     *prometheus.CounterVec
	SubsegmentsBegun  prometheus.Counter
	SegmentsEmitted   prometheus.Counter
	SegmentsDropped   *prometheus.CounterVec
	DocumentsStreamed prometheus.Counter
	EntityMissing     *prometheus.CounterVec

	// Sampling metrics
	SamplingDecisions *prometheus.CounterVec

	// Emitter metrics
	EmitDuration *prometheus.HistogramVec
	EmitErrors   *prometheus.CounterVec
	QueueDepth   prometheus.Gauge

	// HTTP metrics for the serving process
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds running totals for the JSON stats endpoint and tests.
type Snapshot struct {
	SegmentsBegun     int64   `json:"segments_begun"`
	SubsegmentsBegun  int64   `json:"subsegments_begun"`
	SegmentsEmitted   int64   `json:"segments_emitted"`
	SegmentsDropped   int64   `json:"segments_dropped"`
	DocumentsStreamed int64   `json:"documents_streamed"`
	EntityMissing     int64   `json:"entity_missing"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// NewMetrics registers the recorder metrics with reg. Tests pass a fresh
// prometheus.NewRegistry(); servers pass prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		startTime: time.Now(),

		SegmentsBegun: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "segtrace_segments_begun_total",
				Help: "Segments begun, by sampling decision",
			},
			[]string{"sampled"},
		),
		SubsegmentsBegun: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "segtrace_subsegments_begun_total",
				Help: "Subsegments begun",
			},
		),
		SegmentsEmitted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "segtrace_segments_emitted_total",
				Help: "Complete segment trees handed to the emitter",
			},
		),
		SegmentsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "segtrace_segments_dropped_total",
				Help: "Segment documents not delivered, by reason",
			},
			[]string{"reason"},
		),
		DocumentsStreamed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "segtrace_documents_streamed_total",
				Help: "Completed subsegment documents streamed ahead of their segment",
			},
		),
		EntityMissing: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "segtrace_entity_missing_total",
				Help: "Operations that found no entity in the trace context",
			},
			[]string{"operation"},
		),

		SamplingDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "segtrace_sampling_decisions_total",
				Help: "Sampling decisions, by rule and outcome",
			},
			[]string{"rule", "decision"},
		),

		EmitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "segtrace_emit_duration_seconds",
				Help:    "Time to hand documents to the transport",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"emitter"},
		),
		EmitErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "segtrace_emit_errors_total",
				Help: "Transport errors while emitting",
			},
			[]string{"emitter"},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "segtrace_emit_queue_depth",
				Help: "Batches waiting in the async emitter",
			},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "segtrace_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "segtrace_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "segtrace_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}

	return m
}

// RunUptime updates the uptime gauge every second until stop is closed.
func (m *Metrics) RunUptime(stop <-chan struct{}) {
	if m == nil {
		return
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.Uptime.Set(time.Since(m.startTime).Seconds())
		}
	}
}

// RecordSegmentBegun counts a new segment.
func (m *Metrics) RecordSegmentBegun(sampled bool) {
	if m == nil {
		return
	}
	label := "false"
	if sampled {
		label = "true"
	}
	m.SegmentsBegun.WithLabelValues(label).Inc()
	m.update(func(s *Snapshot) { s.SegmentsBegun++ })
}

// RecordSubsegmentBegun counts a new subsegment.
func (m *Metrics) RecordSubsegmentBegun() {
	if m == nil {
		return
	}
	m.SubsegmentsBegun.Inc()
	m.update(func(s *Snapshot) { s.SubsegmentsBegun++ })
}

// RecordEmitted counts a segment tree handed to the emitter.
func (m *Metrics) RecordEmitted() {
	if m == nil {
		return
	}
	m.SegmentsEmitted.Inc()
	m.update(func(s *Snapshot) { s.SegmentsEmitted++ })
}

// RecordStreamed counts subsegment documents emitted ahead of their segment.
func (m *Metrics) RecordStreamed(n int) {
	if m == nil || n == 0 {
		return
	}
	m.DocumentsStreamed.Add(float64(n))
	m.update(func(s *Snapshot) { s.DocumentsStreamed += int64(n) })
}

// RecordDropped counts n documents dropped for reason.
func (m *Metrics) RecordDropped(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.SegmentsDropped.WithLabelValues(reason).Add(float64(n))
	m.update(func(s *Snapshot) { s.SegmentsDropped += int64(n) })
}

// RecordEntityMissing counts an operation that found no current entity.
func (m *Metrics) RecordEntityMissing(operation string) {
	if m == nil {
		return
	}
	m.EntityMissing.WithLabelValues(operation).Inc()
	m.update(func(s *Snapshot) { s.EntityMissing++ })
}

// RecordSamplingDecision counts a sampling outcome.
func (m *Metrics) RecordSamplingDecision(rule, decision string) {
	if m == nil {
		return
	}
	if rule == "" {
		rule = "none"
	}
	m.SamplingDecisions.WithLabelValues(rule, decision).Inc()
}

// RecordEmit observes a transport call.
func (m *Metrics) RecordEmit(emitter string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.EmitDuration.WithLabelValues(emitter).Observe(duration.Seconds())
	if err != nil {
		m.EmitErrors.WithLabelValues(emitter).Inc()
	}
}

// SetQueueDepth reports the async emitter backlog.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// RecordHTTPRequest records a request served by this process.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Snapshot returns a copy of the running totals.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}

func (m *Metrics) update(fn func(*Snapshot)) {
	m.mu.Lock()
	fn(&m.snapshot)
	m.mu.Unlock()
}

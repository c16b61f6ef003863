package core

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports operation outcomes and latencies as
// Prometheus collectors.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the recorder's collectors with reg. A
// nil registerer leaves the collectors unregistered.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	rec := &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crmcore",
			Subsystem: "service",
			Name:      "operations_total",
			Help:      "Service operations by name and result.",
		}, []string{"operation", "result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crmcore",
			Subsystem: "service",
			Name:      "operation_duration_seconds",
			Help:      "Latency of service operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		return rec, nil
	}
	for _, c := range []prometheus.Collector{rec.operations, rec.durations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Observe records a service operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	result := "error"
	if success {
		result = "success"
	}
	r.operations.WithLabelValues(operation, result).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// Collectors exposes the underlying collectors for tests and custom registries.
func (r *PrometheusMetricsRecorder) Collectors() (*prometheus.CounterVec, *prometheus.HistogramVec) {
	return r.operations, r.durations
}

// JSONTraceEntry is one finished span.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer writes finished spans as JSON lines and keeps the most
// recent ones in memory.
type JSONTraceTracer struct {
	mu      sync.Mutex
	enc     *json.Encoder
	keep    int
	entries []JSONTraceEntry
	now     func() time.Time
}

const defaultTraceRetention = 1024

// NewJSONTracer constructs a tracer writing to w, which may be nil.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{keep: defaultTraceRetention, now: func() time.Time { return time.Now().UTC() }}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Entries returns a copy of the retained spans, oldest first.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONTraceEntry(nil), t.entries...)
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, operation: operation, started: t.now()}
}

func (t *JSONTraceTracer) finish(entry JSONTraceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
	if over := len(t.entries) - t.keep; over > 0 {
		t.entries = append(t.entries[:0:0], t.entries[over:]...)
	}
	if t.enc != nil {
		_ = t.enc.Encode(entry)
	}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
	once      sync.Once
}

func (s *jsonTraceSpan) End(err error) {
	s.once.Do(func() {
		ended := s.tracer.now()
		entry := JSONTraceEntry{
			Operation:  s.operation,
			Status:     "success",
			DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
			StartedAt:  s.started,
			EndedAt:    ended,
		}
		if err != nil {
			entry.Status = "error"
			entry.Error = err.Error()
		}
		s.tracer.finish(entry)
	})
}

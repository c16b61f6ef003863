package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crmcore/internal/notify"
	"crmcore/pkg/domain"
)

var testNow = time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stubClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	entries []logEntry
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) add(level, msg string, args []any) {
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *captureLogger) count(level string) int {
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	for _, record := range c.ended {
		if record.op == op && (record.err == nil) == success {
			return true
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type captureNotifier struct {
	events []notify.Event
	ctxs   []context.Context
}

func (n *captureNotifier) Publish(ctx context.Context, events ...notify.Event) {
	n.ctxs = append(n.ctxs, ctx)
	n.events = append(n.events, events...)
}

var (
	alice  = domain.Principal{UserID: "user-alice", Email: "alice@example.com"}
	nobody = domain.Principal{}
)

func newTestService(t *testing.T, opts ...Option) (*Service, *stubClock) {
	t.Helper()
	clock := &stubClock{now: testNow}
	svc := NewInMemoryService(nil, append([]Option{WithClock(clock)}, opts...)...)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, clock
}

func mustCreateLead(t *testing.T, svc *Service, lead domain.Lead) domain.Lead {
	t.Helper()
	if lead.FirstName == "" {
		lead.FirstName = "Grace"
	}
	if lead.LastName == "" {
		lead.LastName = "Hopper"
	}
	created, _, err := svc.CreateLead(context.Background(), alice, lead)
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	return created
}

func mustCreateDeal(t *testing.T, svc *Service, leadID string, status domain.DealStatus) domain.Deal {
	t.Helper()
	created, _, err := svc.CreateDeal(context.Background(), alice, domain.Deal{LeadID: leadID, Title: "Renewal", Status: status, Amount: 1200, Probability: 40})
	if err != nil {
		t.Fatalf("create deal: %v", err)
	}
	return created
}

func auditFor(t *testing.T, svc *Service, entity domain.EntityType, id string) []domain.AuditLogEntry {
	t.Helper()
	entries, err := svc.AuditTrail(context.Background(), entity, id)
	if err != nil {
		t.Fatalf("audit trail: %v", err)
	}
	return entries
}

func countAction(entries []domain.AuditLogEntry, action domain.Action) int {
	n := 0
	for _, e := range entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

func expectKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
}

func strPtr(v string) *string { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func mustChangePayload[T any](t *testing.T, value T) domain.ChangePayload {
	t.Helper()
	payload, err := domain.NewChangePayloadFromValue(value)
	if err != nil {
		t.Fatalf("build change payload: %v", err)
	}
	return payload
}

package core

import (
	"context"
	"time"

	"crmcore/internal/notify"
)

// Logger captures the structured logging surface used by the service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies the current time for derived-view windows.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into a Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// MetricsRecorder observes the outcome and latency of service operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// Notifier receives record-changed events after a transaction commits.
type Notifier interface {
	Publish(ctx context.Context, events ...notify.Event)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for operation outcomes and cascade failures.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock. For services built by NewInMemoryService the
// clock also stamps record timestamps.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the span factory.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithNotifier sets the sink for post-commit change events.
func WithNotifier(notifier Notifier) Option {
	return func(s *Service) { s.notifier = notifier }
}

// WithStrictCascade makes a failed deal-to-lead cascade roll back the deal
// write. By default the deal write commits and the failure is returned as a
// domain.CascadeError alongside the updated deal.
func WithStrictCascade(strict bool) Option {
	return func(s *Service) { s.strictCascade = strict }
}

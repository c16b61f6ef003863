// Package core implements the CRM pipeline service: validated mutations of
// leads, deals, interactions, tasks and campaigns, the deal-to-lead outcome
// cascade, and the audit trail written atomically with every tracked change.
package core

import (
	"context"
	"errors"
	"time"

	"crmcore/internal/infra/persistence/memory"
	"crmcore/internal/notify"
	"crmcore/pkg/domain"
)

// Service exposes transactional CRM operations. Every write takes the acting
// principal explicitly; there is no ambient session.
type Service struct {
	store         domain.PersistentStore
	logger        Logger
	clock         Clock
	metrics       MetricsRecorder
	tracer        Tracer
	notifier      Notifier
	strictCascade bool
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	svc := &Service{
		store:   store,
		logger:  noopLogger{},
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// NewInMemoryService creates a service over a fresh in-memory store. A nil
// engine selects NewDefaultRulesEngine.
func NewInMemoryService(engine *domain.RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	svc := NewService(nil, opts...)
	svc.store = memory.NewStore(engine, memory.WithClock(svc.clock.Now))
	return svc
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// StrictCascade reports whether failed deal-to-lead cascades roll back the
// deal write.
func (s *Service) StrictCascade() bool {
	return s.strictCascade
}

// Close releases the underlying store.
func (s *Service) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// run wraps an operation with tracing, metrics and outcome logging.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	err := fn(ctx)
	s.metrics.Observe(ctx, op, err == nil, time.Since(started))
	span.End(err)
	switch {
	case err == nil:
		s.logger.Debug("core operation completed", "operation", op)
	case errors.Is(err, domain.ErrCascade):
		s.logger.Warn("cascade failed after primary write committed", "operation", op, "error", err)
	default:
		s.logger.Error("core operation failed", "operation", op, "error", err)
	}
	return err
}

// transact runs fn inside one store transaction. Changes recorded through the
// unit of work are audited in the same transaction and published after commit.
func (s *Service) transact(ctx context.Context, principal domain.Principal, fn func(*unitOfWork) error) (domain.Result, error) {
	var uow *unitOfWork
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		uow = &unitOfWork{tx: tx, principal: principal}
		return fn(uow)
	})
	if err != nil {
		return res, err
	}
	s.publish(context.WithoutCancel(ctx), principal, uow.changes)
	return res, nil
}

func (s *Service) publish(ctx context.Context, principal domain.Principal, changes []domain.Change) {
	if s.notifier == nil || len(changes) == 0 {
		return
	}
	events := make([]notify.Event, 0, len(changes))
	for _, change := range changes {
		events = append(events, notify.NewEvent(change.Entity, change.RecordID, change.Action, principal.UserID))
	}
	s.notifier.Publish(ctx, events...)
}

// view runs fn against a read-only snapshot of committed state.
func (s *Service) view(ctx context.Context, fn func(domain.TransactionView) error) error {
	return s.store.View(ctx, fn)
}

func ownerFor(entity domain.EntityType, principal domain.Principal, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if principal.Anonymous() {
		return "", domain.ValidationError{Entity: entity, Field: "owner_id", Message: "required when no principal is attributable"}
	}
	return principal.UserID, nil
}

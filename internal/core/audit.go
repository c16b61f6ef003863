package core

import (
	"context"
	"time"

	"crmcore/pkg/domain"
)

// unitOfWork carries the transaction and the acting principal through one
// service operation and collects the changes it produced.
type unitOfWork struct {
	tx        domain.Transaction
	principal domain.Principal
	changes   []domain.Change
}

// record pipes write results into the audit log. Tracked changes get exactly
// one entry each; untracked ones are only kept for notification.
func (u *unitOfWork) record(changes ...domain.Change) error {
	for _, change := range changes {
		if change.Entity.Tracked() {
			if _, err := u.tx.AppendAudit(auditEntryFor(u.principal, change)); err != nil {
				return err
			}
		}
		u.changes = append(u.changes, change)
	}
	return nil
}

func auditEntryFor(principal domain.Principal, change domain.Change) domain.AuditLogEntry {
	entry := domain.AuditLogEntry{
		TableName: change.Entity,
		RecordID:  change.RecordID,
		Action:    change.Action,
		Before:    change.Before,
		After:     change.After,
	}
	if !principal.Anonymous() {
		uid := principal.UserID
		entry.UserID = &uid
	}
	return entry
}

// AuditFilter narrows ListAuditEntries. Zero fields match everything.
type AuditFilter struct {
	Entity   domain.EntityType `json:"table_name,omitempty"`
	RecordID string            `json:"record_id,omitempty"`
	UserID   string            `json:"user_id,omitempty"`
	Action   domain.Action     `json:"action,omitempty"`
	Since    time.Time         `json:"since,omitzero"`
	Until    time.Time         `json:"until,omitzero"`
	Limit    int               `json:"limit,omitempty"`
}

// Match reports whether the entry satisfies the filter.
func (f AuditFilter) Match(entry domain.AuditLogEntry) bool {
	if f.Entity != "" && entry.TableName != f.Entity {
		return false
	}
	if f.RecordID != "" && entry.RecordID != f.RecordID {
		return false
	}
	if f.UserID != "" && (entry.UserID == nil || *entry.UserID != f.UserID) {
		return false
	}
	if f.Action != "" && entry.Action != f.Action {
		return false
	}
	if !f.Since.IsZero() && entry.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !entry.CreatedAt.Before(f.Until) {
		return false
	}
	return true
}

// ListAuditEntries returns matching audit entries in append order.
func (s *Service) ListAuditEntries(ctx context.Context, filter AuditFilter) ([]domain.AuditLogEntry, error) {
	var out []domain.AuditLogEntry
	err := s.run(ctx, "list_audit_entries", func(ctx context.Context) error {
		return s.view(ctx, func(v domain.TransactionView) error {
			for _, entry := range v.ListAuditEntries() {
				if !filter.Match(entry) {
					continue
				}
				out = append(out, entry)
				if filter.Limit > 0 && len(out) == filter.Limit {
					break
				}
			}
			return nil
		})
	})
	return out, err
}

// AuditTrail returns the full history of one record, oldest first.
func (s *Service) AuditTrail(ctx context.Context, entity domain.EntityType, recordID string) ([]domain.AuditLogEntry, error) {
	if !entity.Tracked() {
		return nil, domain.ValidationError{Entity: entity, Field: "table_name", Message: "entity is not audited"}
	}
	return s.ListAuditEntries(ctx, AuditFilter{Entity: entity, RecordID: recordID})
}

// Package notify carries record-changed events from committed transactions to
// in-process subscribers.
package notify

import (
	"time"

	"github.com/google/uuid"

	"crmcore/pkg/domain"
)

// Event announces that a record changed in a committed transaction.
type Event struct {
	ID         string            `json:"id"`
	Entity     domain.EntityType `json:"entity"`
	RecordID   string            `json:"record_id"`
	Action     domain.Action     `json:"action"`
	UserID     string            `json:"user_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// NewEvent stamps a fresh event id and the current UTC time.
func NewEvent(entity domain.EntityType, recordID string, action domain.Action, userID string) Event {
	return Event{
		ID:         uuid.NewString(),
		Entity:     entity,
		RecordID:   recordID,
		Action:     action,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	}
}

package core

import (
	"fmt"
	"math"
	"strings"
	"time"

	"crmcore/pkg/domain"
)

func required(entity domain.EntityType, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return domain.ValidationError{Entity: entity, Field: field, Message: "required"}
	}
	return nil
}

func nonNegative(entity domain.EntityType, field string, value float64) error {
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return domain.ValidationError{Entity: entity, Field: field, Message: "must be a finite, non-negative amount"}
	}
	return nil
}

func outOfDomain(entity domain.EntityType, field string, value any) error {
	return domain.ValidationError{Entity: entity, Field: field, Message: fmt.Sprintf("unknown value %q", value)}
}

func validateLead(l domain.Lead) error {
	if err := required(domain.EntityLead, "first_name", l.FirstName); err != nil {
		return err
	}
	if err := required(domain.EntityLead, "last_name", l.LastName); err != nil {
		return err
	}
	if l.Status != "" && !l.Status.Valid() {
		return outOfDomain(domain.EntityLead, "status", l.Status)
	}
	if l.Email != "" && !strings.Contains(l.Email, "@") {
		return domain.ValidationError{Entity: domain.EntityLead, Field: "email", Message: "malformed address"}
	}
	if l.EstimatedValue != nil {
		if err := nonNegative(domain.EntityLead, "estimated_value", *l.EstimatedValue); err != nil {
			return err
		}
	}
	return nil
}

func validateDeal(d domain.Deal) error {
	if err := required(domain.EntityDeal, "lead_id", d.LeadID); err != nil {
		return err
	}
	if err := required(domain.EntityDeal, "title", d.Title); err != nil {
		return err
	}
	if d.Status != "" && !d.Status.Valid() {
		return outOfDomain(domain.EntityDeal, "status", d.Status)
	}
	if err := nonNegative(domain.EntityDeal, "amount", d.Amount); err != nil {
		return err
	}
	if d.Probability < 0 || d.Probability > 100 {
		return domain.ValidationError{Entity: domain.EntityDeal, Field: "probability", Message: "must be between 0 and 100"}
	}
	return nil
}

func validateInteraction(i domain.Interaction) error {
	if err := required(domain.EntityInteraction, "lead_id", i.LeadID); err != nil {
		return err
	}
	if !i.Kind.Valid() {
		return outOfDomain(domain.EntityInteraction, "kind", i.Kind)
	}
	return nil
}

func validateTask(t domain.Task) error {
	if err := required(domain.EntityTask, "title", t.Title); err != nil {
		return err
	}
	if t.Status != "" && !t.Status.Valid() {
		return outOfDomain(domain.EntityTask, "status", t.Status)
	}
	if t.Priority != "" && !t.Priority.Valid() {
		return outOfDomain(domain.EntityTask, "priority", t.Priority)
	}
	return nil
}

func validateCampaign(c domain.Campaign) error {
	if err := required(domain.EntityCampaign, "name", c.Name); err != nil {
		return err
	}
	if c.Status != "" && !c.Status.Valid() {
		return outOfDomain(domain.EntityCampaign, "status", c.Status)
	}
	if err := nonNegative(domain.EntityCampaign, "budget", c.Budget); err != nil {
		return err
	}
	if c.LeadsCount < 0 || c.ConversionsCount < 0 {
		return domain.ValidationError{Entity: domain.EntityCampaign, Message: "counters must not be negative"}
	}
	if c.StartsOn != nil && c.EndsOn != nil && c.EndsOn.Before(*c.StartsOn) {
		return domain.ValidationError{Entity: domain.EntityCampaign, Field: "ends_on", Message: "before starts_on"}
	}
	return nil
}

func validateLeadSource(src domain.LeadSource) error {
	return required(domain.EntityLeadSource, "name", src.Name)
}

// stampTaskCompletion keeps completed_at in step with the status.
func stampTaskCompletion(t *domain.Task, now time.Time) {
	if t.Status == domain.TaskStatusCompleted {
		if t.CompletedAt == nil {
			stamp := now
			t.CompletedAt = &stamp
		}
		return
	}
	t.CompletedAt = nil
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func copyTimePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// completedInteractionEdit reports the first non-scheduling field that differs
// between two versions of an interaction.
func completedInteractionEdit(before, after domain.Interaction) (string, bool) {
	switch {
	case before.LeadID != after.LeadID:
		return "lead_id", true
	case before.Kind != after.Kind:
		return "kind", true
	case before.Subject != after.Subject:
		return "subject", true
	case before.Body != after.Body:
		return "body", true
	case !timePtrEqual(before.CompletedAt, after.CompletedAt):
		return "completed_at", true
	default:
		return "", false
	}
}

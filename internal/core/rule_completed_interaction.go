package core

import (
	"context"
	"fmt"

	"crmcore/pkg/domain"
)

// NewCompletedInteractionRule blocks edits to completed interactions other
// than rescheduling.
func NewCompletedInteractionRule() domain.Rule {
	return completedInteractionRule{}
}

type completedInteractionRule struct{}

func (completedInteractionRule) Name() string { return "completed_interaction" }

func (completedInteractionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityInteraction || change.Action != domain.ActionUpdate {
			continue
		}
		before, ok := domain.DecodeChangePayload[domain.Interaction](change.Before)
		if !ok || before.CompletedAt == nil {
			continue
		}
		after, ok := domain.DecodeChangePayload[domain.Interaction](change.After)
		if !ok {
			continue
		}
		if field, edited := completedInteractionEdit(before, after); edited {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "completed_interaction",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("interaction %s is completed; %s cannot change", after.ID, field),
				Entity:   domain.EntityInteraction,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}

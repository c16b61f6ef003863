package core

import (
	"context"
	"fmt"
	"math"

	"crmcore/pkg/domain"
)

// NewDealBoundsRule returns the rule keeping deal amounts non-negative and
// probabilities within 0..100.
func NewDealBoundsRule() domain.Rule {
	return dealBoundsRule{}
}

type dealBoundsRule struct{}

func (dealBoundsRule) Name() string { return "deal_bounds" }

func (dealBoundsRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityDeal {
			continue
		}
		deal, ok := domain.DecodeChangePayload[domain.Deal](change.After)
		if !ok {
			continue
		}
		if deal.Amount < 0 || math.IsNaN(deal.Amount) || math.IsInf(deal.Amount, 0) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "deal_bounds",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("deal %s has invalid amount %v", deal.ID, deal.Amount),
				Entity:   domain.EntityDeal,
				EntityID: deal.ID,
			})
		}
		if deal.Probability < 0 || deal.Probability > 100 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "deal_bounds",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("deal %s probability %d outside 0..100", deal.ID, deal.Probability),
				Entity:   domain.EntityDeal,
				EntityID: deal.ID,
			})
		}
	}
	return res, nil
}

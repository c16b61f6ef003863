package core

import (
	"errors"

	"crmcore/pkg/domain"
)

// propagateDealOutcome forces the parent lead to won or lost when change moves
// a deal into a terminal status. Creations, unchanged statuses and
// non-terminal targets do nothing. A missing or soft-deleted lead, like a
// failed lead update, is returned as a domain.CascadeError.
func propagateDealOutcome(u *unitOfWork, change domain.Change) error {
	if change.Entity != domain.EntityDeal || change.Action != domain.ActionUpdate {
		return nil
	}
	before, ok := domain.DecodeChangePayload[domain.Deal](change.Before)
	if !ok {
		return nil
	}
	after, ok := domain.DecodeChangePayload[domain.Deal](change.After)
	if !ok || before.Status == after.Status {
		return nil
	}
	outcome, terminal := after.Status.LeadOutcome()
	if !terminal {
		return nil
	}
	if _, err := activeLead(u.tx.Snapshot(), after.LeadID); err != nil {
		return domain.CascadeError{DealID: after.ID, LeadID: after.LeadID, Err: err}
	}
	_, leadChange, err := u.tx.UpdateLead(after.LeadID, func(l *domain.Lead) error {
		l.Status = outcome
		return nil
	})
	if err != nil {
		return domain.CascadeError{DealID: after.ID, LeadID: after.LeadID, Err: err}
	}
	if err := u.record(leadChange); err != nil {
		return domain.CascadeError{DealID: after.ID, LeadID: after.LeadID, Err: err}
	}
	return nil
}

// cascade applies propagateDealOutcome under the configured failure policy. It
// returns a non-nil fatal error only when the transaction must roll back; a
// tolerated cascade failure is returned separately.
func (s *Service) cascade(u *unitOfWork, change domain.Change) (tolerated error, fatal error) {
	err := propagateDealOutcome(u, change)
	if err == nil {
		return nil, nil
	}
	if s.strictCascade || !errors.Is(err, domain.ErrCascade) {
		return nil, err
	}
	return err, nil
}

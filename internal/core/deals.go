package core

import (
	"context"

	"crmcore/pkg/domain"
)

// DealFilter narrows ListDeals.
type DealFilter struct {
	LeadID  string
	OwnerID string
	Status  domain.DealStatus
}

func (f DealFilter) match(d domain.Deal) bool {
	if f.LeadID != "" && d.LeadID != f.LeadID {
		return false
	}
	if f.OwnerID != "" && d.OwnerID != f.OwnerID {
		return false
	}
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	return true
}

// CreateDeal persists a deal on an active lead. Creating a deal that is
// already closed does not touch the lead.
func (s *Service) CreateDeal(ctx context.Context, principal domain.Principal, deal domain.Deal) (domain.Deal, domain.Result, error) {
	var created domain.Deal
	var res domain.Result
	err := s.run(ctx, "create_deal", func(ctx context.Context) error {
		if err := validateDeal(deal); err != nil {
			return err
		}
		owner, err := ownerFor(domain.EntityDeal, principal, deal.OwnerID)
		if err != nil {
			return err
		}
		deal.OwnerID = owner
		res, err = s.transact(ctx, principal, func(u *unitOfWork) error {
			if _, err := activeLead(u.tx.Snapshot(), deal.LeadID); err != nil {
				return err
			}
			var change domain.Change
			var err error
			created, change, err = u.tx.CreateDeal(deal)
			if err != nil {
				return err
			}
			return u.record(change)
		})
		return err
	})
	return created, res, err
}

// UpdateDeal applies mutator and cascades a terminal status change to the lead.
// When the cascade fails and strict cascading is off, the updated deal is
// returned together with a domain.CascadeError.
func (s *Service) UpdateDeal(ctx context.Context, principal domain.Principal, id string, mutator func(*domain.Deal) error) (domain.Deal, domain.Result, error) {
	return s.updateDeal(ctx, "update_deal", principal, id, func(d *domain.Deal) error {
		if err := mutator(d); err != nil {
			return err
		}
		return validateDeal(*d)
	})
}

// UpdateDealStatus sets the deal status. Moving into closed_won or closed_lost
// from a different status forces the lead to won or lost.
func (s *Service) UpdateDealStatus(ctx context.Context, principal domain.Principal, id string, status domain.DealStatus) (domain.Deal, domain.Result, error) {
	if !status.Valid() {
		err := outOfDomain(domain.EntityDeal, "status", status)
		return domain.Deal{}, domain.Result{}, s.run(ctx, "update_deal_status", func(context.Context) error { return err })
	}
	return s.updateDeal(ctx, "update_deal_status", principal, id, func(d *domain.Deal) error {
		d.Status = status
		return nil
	})
}

func (s *Service) updateDeal(ctx context.Context, op string, principal domain.Principal, id string, mutator func(*domain.Deal) error) (domain.Deal, domain.Result, error) {
	var updated domain.Deal
	var res domain.Result
	err := s.run(ctx, op, func(ctx context.Context) error {
		var cascadeErr error
		var err error
		res, err = s.transact(ctx, principal, func(u *unitOfWork) error {
			var change domain.Change
			var err error
			updated, change, err = u.tx.UpdateDeal(id, mutator)
			if err != nil {
				return err
			}
			if err := u.record(change); err != nil {
				return err
			}
			tolerated, fatal := s.cascade(u, change)
			if fatal != nil {
				return fatal
			}
			cascadeErr = tolerated
			return nil
		})
		if err != nil {
			return err
		}
		return cascadeErr
	})
	return updated, res, err
}

// DeleteDeal removes a deal; tasks referencing it keep their lead link.
func (s *Service) DeleteDeal(ctx context.Context, principal domain.Principal, id string) (domain.Result, error) {
	var res domain.Result
	err := s.run(ctx, "delete_deal", func(ctx context.Context) error {
		var err error
		res, err = s.transact(ctx, principal, func(u *unitOfWork) error {
			changes, err := u.tx.DeleteDeal(id)
			if err != nil {
				return err
			}
			return u.record(changes...)
		})
		return err
	})
	return res, err
}

// GetDeal returns a deal by id.
func (s *Service) GetDeal(ctx context.Context, id string) (domain.Deal, error) {
	var deal domain.Deal
	err := s.run(ctx, "get_deal", func(ctx context.Context) error {
		return s.view(ctx, func(v domain.TransactionView) error {
			found, ok := v.FindDeal(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityDeal, ID: id}
			}
			deal = found
			return nil
		})
	})
	return deal, err
}

// ListDeals returns deals matching filter in creation order.
func (s *Service) ListDeals(ctx context.Context, filter DealFilter) ([]domain.Deal, error) {
	var out []domain.Deal
	err := s.run(ctx, "list_deals", func(ctx context.Context) error {
		return s.view(ctx, func(v domain.TransactionView) error {
			for _, deal := range v.ListDeals() {
				if filter.match(deal) {
					out = append(out, deal)
				}
			}
			return nil
		})
	})
	return out, err
}

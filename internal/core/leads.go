package core

import (
	"context"
	"strings"

	"crmcore/pkg/domain"
)

// LeadFilter narrows ListLeads. Soft-deleted leads are hidden unless
// IncludeDeleted is set.
type LeadFilter struct {
	OwnerID        string
	Status         domain.LeadStatus
	SourceID       string
	Tag            string
	Search         string
	IncludeDeleted bool
}

func (f LeadFilter) match(l domain.Lead) bool {
	if l.Deleted() && !f.IncludeDeleted {
		return false
	}
	if f.OwnerID != "" && l.OwnerID != f.OwnerID {
		return false
	}
	if f.Status != "" && l.Status != f.Status {
		return false
	}
	if f.SourceID != "" && (l.SourceID == nil || *l.SourceID != f.SourceID) {
		return false
	}
	if f.Tag != "" && !containsTag(l.Tags, f.Tag) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		hay := strings.ToLower(strings.Join([]string{l.FirstName, l.LastName, l.Email, l.Company}, " "))
		if !strings.Contains(hay, needle) {
			return false
		}
	}
	return true
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// activeLead resolves a lead that is not soft-deleted.
func activeLead(view domain.TransactionView, id string) (domain.Lead, error) {
	lead, ok := view.FindLead(id)
	if !ok || lead.Deleted() {
		return domain.Lead{}, domain.NotFoundError{Entity: domain.EntityLead, ID: id}
	}
	return lead, nil
}

// CreateLead persists a new lead with status new unless one is given.
func (s *Service) CreateLead(ctx context.Context, principal domain.Principal, lead domain.Lead) (domain.Lead, domain.Result, error) {
	var created domain.Lead
	var res domain.Result
	err := s.run(ctx, "create_lead", func(ctx context.Context) error {
		if err := validateLead(lead); err != nil {
			return err
		}
		owner, err := ownerFor(domain.EntityLead, principal, lead.OwnerID)
		if err != nil {
			return err
		}
		lead.OwnerID = owner
		res, err = s.transact(ctx, principal, func(u *unitOfWork) error {
			var change domain.Change
			var err error
			created, change, err = u.tx.CreateLead(lead)
			if err != nil {
				return err
			}
			return u.record(change)
		})
		return err
	})
	return created, res, err
}

// UpdateLead applies mutator to an active lead and re-validates the result.
func (s *Service) UpdateLead(ctx context.Context, principal domain.Principal, id string, mutator func(*domain.Lead) error) (domain.Lead, domain.Result, error) {
	return s.updateLead(ctx, "update_lead", principal, id, func(l *domain.Lead) error {
		if err := mutator(l); err != nil {
			return err
		}
		return validateLead(*l)
	})
}

// UpdateLeadStatus sets the lead status. Any status in the domain may follow any other.
func (s *Service) UpdateLeadStatus(ctx context.Context, principal domain.Principal, id string, status domain.LeadStatus) (domain.Lead, domain.Result, error) {
	if !status.Valid() {
		err := outOfDomain(domain.EntityLead, "status", status)
		return domain.Lead{}, domain.Result{}, s.run(ctx, "update_lead_status", func(context.Context) error { return err })
	}
	return s.updateLead(ctx, "update_lead_status", principal, id, func(l *domain.Lead) error {
		l.Status = status
		return nil
	})
}

func (s *Service) updateLead(ctx context.Context, op string, principal domain.Principal, id string, mutator func(*domain.Lead) error) (domain.Lead, domain.Result, error) {
	var updated domain.Lead
	var res domain.Result
	err := s.run(ctx, op, func(ctx context.Context) error {
		var err error
		res, err = s.transact(ctx, principal, func(u *unitOfWork) error {
			if _, err := activeLead(u.tx.Snapshot(), id); err != nil {
				return err
			}
			var change domain.Change
			var err error
			updated, change, err = u.tx.UpdateLead(id, mutator)
			if err != nil {
				return err
			}
			return u.record(change)
		})
		return err
	})
	return updated, res, err
}

// SoftDeleteLead marks a lead deleted. The write is audited as an update.
func (s *Service) SoftDeleteLead(ctx context.Context, principal domain.Principal, id string) (domain.Lead, domain.Result, error) {
	var deleted domain.Lead
	var res domain.Result
	err := s.run(ctx, "soft_delete_lead", func(ctx context.Context) error {
		var err error
		res, err = s.transact(ctx, principal, func(u *unitOfWork) error {
			if _, err := activeLead(u.tx.Snapshot(), id); err != nil {
				return err
			}
			var change domain.Change
			var err error
			deleted, change, err = u.tx.SoftDeleteLead(id)
			if err != nil {
				return err
			}
			return u.record(change)
		})
		return err
	})
	return deleted, res, err
}

// RestoreLead clears the soft-delete marker of a deleted lead.
func (s *Service) RestoreLead(ctx context.Context, principal domain.Principal, id string) (domain.Lead, domain.Result, error) {
	var restored domain.Lead
	var res domain.Result
	err := s.run(ctx, "restore_lead", func(ctx context.Context) error {
		var err error
		res, err = s.transact(ctx, principal, func(u *unitOfWork) error {
			lead, ok := u.tx.Snapshot().FindLead(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityLead, ID: id}
			}
			if !lead.Deleted() {
				return domain.ValidationError{Entity: domain.EntityLead, Field: "deleted_at", Message: "lead is not deleted"}
			}
			var change domain.Change
			var err error
			restored, change, err = u.tx.RestoreLead(id)
			if err != nil {
				return err
			}
			return u.record(change)
		})
		return err
	})
	return restored, res, err
}

// DeleteLead hard-deletes a lead with its interactions, deals, tasks and
// campaign memberships. Every removed tracked record is audited.
func (s *Service) DeleteLead(ctx context.Context, principal domain.Principal, id string) (domain.Result, error) {
	var res domain.Result
	err := s.run(ctx, "delete_lead", func(ctx context.Context) error {
		var err error
		res, err = s.transact(ctx, principal, func(u *unitOfWork) error {
			changes, err := u.tx.DeleteLead(id)
			if err != nil {
				return err
			}
			return u.record(changes...)
		})
		return err
	})
	return res, err
}

// GetLead returns a lead, including soft-deleted ones.
func (s *Service) GetLead(ctx context.Context, id string) (domain.Lead, error) {
	var lead domain.Lead
	err := s.run(ctx, "get_lead", func(ctx context.Context) error {
		return s.view(ctx, func(v domain.TransactionView) error {
			found, ok := v.FindLead(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityLead, ID: id}
			}
			lead = found
			return nil
		})
	})
	return lead, err
}

// ListLeads returns leads matching filter in creation order.
func (s *Service) ListLeads(ctx context.Context, filter LeadFilter) ([]domain.Lead, error) {
	var out []domain.Lead
	err := s.run(ctx, "list_leads", func(ctx context.Context) error {
		return s.view(ctx, func(v domain.TransactionView) error {
			for _, lead := range v.ListLeads() {
				if filter.match(lead) {
					out = append(out, lead)
				}
			}
			return nil
		})
	})
	return out, err
}

package core

import (
	"context"

	"crmcore/pkg/domain"
)

// CreateInteraction logs a contact event against an active lead.
func (s *Service) CreateInteraction(ctx context.Context, principal domain.Principal, interaction domain.Interaction) (domain.Interaction, domain.Result, error) {
	var created domain.Interaction
	var res domain.Result
	err := s.run(ctx, "create_interaction", func(ctx context.Context) error {
		if err := validateInteraction(interaction); err != nil {
			return err
		}
		owner, err := ownerFor(domain.EntityInteraction, principal, interaction.OwnerID)
		if err != nil {
			return err
		}
		interaction.OwnerID = owner
		res, err = s.transact(ctx, principal, func(u *unitOfWork) error {
			if _, err := activeLead(u.tx.Snapshot(), interaction.LeadID); err != nil {
				return err
			}
			var change domain.Change
			var err error
			created, change, err = u.tx.CreateInteraction(interaction)
			if err != nil {
				return err
			}
			return u.record(change)
		})
		return err
	})
	return created, res, err
}

// UpdateInteraction applies mutator. Once an interaction is completed only its
// scheduled_at may change.
func (s *Service) UpdateInteraction(ctx context.Context, principal domain.Principal, id string, mutator func(*domain.Interaction) error) (domain.Interaction, domain.Result, error) {
	var updated domain.Interaction
	var res domain.Result
	err := s.run(ctx, "update_interaction", func(ctx context.Context) error {
		var err error
		res, err = s.transact(ctx, principal, func(u *unitOfWork) error {
			var change domain.Change
			var err error
			updated, change, err = u.tx.UpdateInteraction(id, func(i *domain.Interaction) error {
				before := *i
				before.ScheduledAt = copyTimePtr(i.ScheduledAt)
				before.CompletedAt = copyTimePtr(i.CompletedAt)
				if err := mutator(i); err != nil {
					return err
				}
				if err := validateInteraction(*i); err != nil {
					return err
				}
				if before.CompletedAt != nil {
					if field, edited := completedInteractionEdit(before, *i); edited {
						return domain.ValidationError{Entity: domain.EntityInteraction, Field: field, Message: "completed interactions only accept scheduling changes"}
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			return u.record(change)
		})
		return err
	})
	return updated, res, err
}

// DeleteInteraction removes an interaction.
func (s *Service) DeleteInteraction(ctx context.Context, principal domain.Principal, id string) (domain.Result, error) {
	var res domain.Result
	err := s.run(ctx, "delete_interaction", func(ctx context.Context) error {
		var err error
		res, err = s.transact(ctx, principal, func(u *unitOfWork) error {
			change, err := u.tx.DeleteInteraction(id)
			if err != nil {
				return err
			}
			return u.record(change)
		})
		return err
	})
	return res, err
}

// ListInteractions returns the interactions of a lead, oldest first. An empty
// leadID lists every interaction.
func (s *Service) ListInteractions(ctx context.Context, leadID string) ([]domain.Interaction, error) {
	var out []domain.Interaction
	err := s.run(ctx, "list_interactions", func(ctx context.Context) error {
		return s.view(ctx, func(v domain.TransactionView) error {
			for _, interaction := range v.ListInteractions() {
				if leadID == "" || interaction.LeadID == leadID {
					out = append(out, interaction)
				}
			}
			return nil
		})
	})
	return out, err
}

package core

import (
	"context"

	"crmcore/pkg/domain"
)

// CreateCampaign persists a campaign in draft unless a status is given.
func (s *Service) CreateCampaign(ctx context.Context, principal domain.Principal, campaign domain.Campaign) (domain.Campaign, domain.Result, error) {
	var created domain.Campaign
	var res domain.Result
	err := s.run(ctx, "create_campaign", func(ctx context.Context) error {
		if err := validateCampaign(campaign); err != nil {
			return err
		}
		owner, err := ownerFor(domain.EntityCampaign, principal, campaign.OwnerID)
		if err != nil {
			return err
		}
		campaign.OwnerID = owner
		res, err = s.transact(ctx, principal, func(u *unitOfWork) error {
			var change domain.Change
			var err error
			created, change, err = u.tx.CreateCampaign(campaign)
			if err != nil {
				return err
			}
			return u.record(change)
		})
		return err
	})
	return created, res, err
}

// UpdateCampaign applies mutator and re-validates the campaign.
func (s *Service) UpdateCampaign(ctx context.Context, principal domain.Principal, id string, mutator func(*domain.Campaign) error) (domain.Campaign, domain.Result, error) {
	var updated domain.Campaign
	var res domain.Result
	err := s.run(ctx, "update_campaign", func(ctx context.Context) error {
		var err error
		res, err = s.transact(ctx, principal, func(u *unitOfWork) error {
			var change domain.Change
			var err error
			updated, change, err = u.tx.UpdateCampaign(id, func(c *domain.Campaign) error {
				if err := mutator(c); err != nil {
					return err
				}
				return validateCampaign(*c)
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

// DeleteCampaign removes a campaign and its lead memberships.
func (s *Service) DeleteCampaign(ctx context.Context, principal domain.Principal, id string) (domain.Result, error) {
	var res domain.Result
	err := s.run(ctx, "delete_campaign", func(ctx context.Context) error {
		var err error
		res, err = s.transact(ctx, principal, func(u *unitOfWork) error {
			change, err := u.tx.DeleteCampaign(id)
			if err != nil {
				return err
			}
			return u.record(change)
		})
		return err
	})
	return res, err
}

// AddLeadToCampaign links an active lead to a campaign. A second link of the
// same pair fails with a domain.ConflictError.
func (s *Service) AddLeadToCampaign(ctx context.Context, principal domain.Principal, campaignID, leadID string) (domain.CampaignLead, domain.Result, error) {
	var link domain.CampaignLead
	var res domain.Result
	err := s.run(ctx, "add_lead_to_campaign", func(ctx context.Context) error {
		if err := required(domain.EntityCampaignLead, "campaign_id", campaignID); err != nil {
			return err
		}
		if err := required(domain.EntityCampaignLead, "lead_id", leadID); err != nil {
			return err
		}
		var err error
		res, err = s.transact(ctx, principal, func(u *unitOfWork) error {
			lead, err := activeLead(u.tx.Snapshot(), leadID)
			if err != nil {
				return err
			}
			owner := principal.UserID
			if owner == "" {
				owner = lead.OwnerID
			}
			var change domain.Change
			link, change, err = u.tx.AddCampaignLead(domain.CampaignLead{OwnerID: owner, CampaignID: campaignID, LeadID: leadID})
			if err != nil {
				return err
			}
			return u.record(change)
		})
		return err
	})
	return link, res, err
}

// RemoveLeadFromCampaign deletes a campaign membership.
func (s *Service) RemoveLeadFromCampaign(ctx context.Context, principal domain.Principal, campaignID, leadID string) (domain.Result, error) {
	var res domain.Result
	err := s.run(ctx, "remove_lead_from_campaign", func(ctx context.Context) error {
		var err error
		res, err = s.transact(ctx, principal, func(u *unitOfWork) error {
			change, err := u.tx.RemoveCampaignLead(campaignID, leadID)
			if err != nil {
				return err
			}
			return u.record(change)
		})
		return err
	})
	return res, err
}

// GetCampaign returns a campaign by id.
func (s *Service) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	var campaign domain.Campaign
	err := s.run(ctx, "get_campaign", func(ctx context.Context) error {
		return s.view(ctx, func(v domain.TransactionView) error {
			found, ok := v.FindCampaign(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityCampaign, ID: id}
			}
			campaign = found
			return nil
		})
	})
	return campaign, err
}

// ListCampaigns returns every campaign in creation order.
func (s *Service) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	var out []domain.Campaign
	err := s.run(ctx, "list_campaigns", func(ctx context.Context) error {
		return s.view(ctx, func(v domain.TransactionView) error {
			out = v.ListCampaigns()
			return nil
		})
	})
	return out, err
}

// CampaignLeads returns the leads linked to a campaign in link order.
func (s *Service) CampaignLeads(ctx context.Context, campaignID string) ([]domain.Lead, error) {
	var out []domain.Lead
	err := s.run(ctx, "campaign_leads", func(ctx context.Context) error {
		return s.view(ctx, func(v domain.TransactionView) error {
			if _, ok := v.FindCampaign(campaignID); !ok {
				return domain.NotFoundError{Entity: domain.EntityCampaign, ID: campaignID}
			}
			for _, link := range v.ListCampaignLeads() {
				if link.CampaignID != campaignID {
					continue
				}
				if lead, ok := v.FindLead(link.LeadID); ok {
					out = append(out, lead)
				}
			}
			return nil
		})
	})
	return out, err
}

// CreateLeadSource registers a lead source. Names are unique per owner.
func (s *Service) CreateLeadSource(ctx context.Context, principal domain.Principal, src domain.LeadSource) (domain.LeadSource, domain.Result, error) {
	var created domain.LeadSource
	var res domain.Result
	err := s.run(ctx, "create_lead_source", func(ctx context.Context) error {
		if err := validateLeadSource(src); err != nil {
			return err
		}
		owner, err := ownerFor(domain.EntityLeadSource, principal, src.OwnerID)
		if err != nil {
			return err
		}
		src.OwnerID = owner
		res, err = s.transact(ctx, principal, func(u *unitOfWork) error {
			var change domain.Change
			var err error
			created, change, err = u.tx.CreateLeadSource(src)
			if err != nil {
				return err
			}
			return u.record(change)
		})
		return err
	})
	return created, res, err
}

// DeleteLeadSource removes a source and detaches it from its leads.
func (s *Service) DeleteLeadSource(ctx context.Context, principal domain.Principal, id string) (domain.Result, error) {
	var res domain.Result
	err := s.run(ctx, "delete_lead_source", func(ctx context.Context) error {
		var err error
		res, err = s.transact(ctx, principal, func(u *unitOfWork) error {
			changes, err := u.tx.DeleteLeadSource(id)
			if err != nil {
				return err
			}
			return u.record(changes...)
		})
		return err
	})
	return res, err
}

// ListLeadSources returns every lead source in creation order.
func (s *Service) ListLeadSources(ctx context.Context) ([]domain.LeadSource, error) {
	var out []domain.LeadSource
	err := s.run(ctx, "list_lead_sources", func(ctx context.Context) error {
		return s.view(ctx, func(v domain.TransactionView) error {
			out = v.ListLeadSources()
			return nil
		})
	})
	return out, err
}

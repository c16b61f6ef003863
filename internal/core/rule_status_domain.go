package core

import (
	"context"
	"fmt"

	"crmcore/pkg/domain"
)

// StatusDomainRule blocks writes that leave a record with a status outside
// its enumerated domain. Any in-domain value may follow any other.
func StatusDomainRule() domain.Rule {
	return statusDomainRule{}
}

type statusDomainRule struct{}

type statusDomain struct {
	label     string
	extractor func(payload domain.ChangePayload) (id string, status string, valid bool, ok bool)
}

var statusDomains = map[domain.EntityType]statusDomain{
	domain.EntityLead: {
		label: "lead",
		extractor: func(payload domain.ChangePayload) (string, string, bool, bool) {
			lead, ok := domain.DecodeChangePayload[domain.Lead](payload)
			if !ok {
				return "", "", false, false
			}
			return lead.ID, string(lead.Status), lead.Status.Valid(), true
		},
	},
	domain.EntityDeal: {
		label: "deal",
		extractor: func(payload domain.ChangePayload) (string, string, bool, bool) {
			deal, ok := domain.DecodeChangePayload[domain.Deal](payload)
			if !ok {
				return "", "", false, false
			}
			return deal.ID, string(deal.Status), deal.Status.Valid(), true
		},
	},
	domain.EntityTask: {
		label: "task",
		extractor: func(payload domain.ChangePayload) (string, string, bool, bool) {
			task, ok := domain.DecodeChangePayload[domain.Task](payload)
			if !ok {
				return "", "", false, false
			}
			return task.ID, string(task.Status), task.Status.Valid() && task.Priority.Valid(), true
		},
	},
	domain.EntityCampaign: {
		label: "campaign",
		extractor: func(payload domain.ChangePayload) (string, string, bool, bool) {
			campaign, ok := domain.DecodeChangePayload[domain.Campaign](payload)
			if !ok {
				return "", "", false, false
			}
			return campaign.ID, string(campaign.Status), campaign.Status.Valid(), true
		},
	},
	domain.EntityInteraction: {
		label: "interaction",
		extractor: func(payload domain.ChangePayload) (string, string, bool, bool) {
			interaction, ok := domain.DecodeChangePayload[domain.Interaction](payload)
			if !ok {
				return "", "", false, false
			}
			return interaction.ID, string(interaction.Kind), interaction.Kind.Valid(), true
		},
	},
}

func (statusDomainRule) Name() string { return "status_domain" }

func (statusDomainRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		sd, ok := statusDomains[change.Entity]
		if !ok {
			continue
		}
		id, status, valid, ok := sd.extractor(change.After)
		if !ok || valid {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "status_domain",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("%s %s is set to invalid value %s", sd.label, id, status),
			Entity:   change.Entity,
			EntityID: id,
		})
	}
	return res, nil
}

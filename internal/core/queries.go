package core

import (
	"context"
	"sort"
	"time"

	"crmcore/pkg/domain"
)

// LeadDetail is a lead together with counts of its related records.
type LeadDetail struct {
	Lead              domain.Lead `json:"lead"`
	InteractionsCount int         `json:"interactions_count"`
	DealsCount        int         `json:"deals_count"`
	TasksCount        int         `json:"tasks_count"`
	OpenTasksCount    int         `json:"open_tasks_count"`
	TotalDealAmount   float64     `json:"total_deal_amount"`
}

// PipelineStage summarises the deals in one status.
type PipelineStage struct {
	Status             domain.DealStatus `json:"status"`
	Count              int               `json:"count"`
	TotalAmount        float64           `json:"total_amount"`
	AverageProbability float64           `json:"average_probability"`
}

// CampaignMetric pairs a campaign with its conversion rate.
type CampaignMetric struct {
	Campaign       domain.Campaign `json:"campaign"`
	ConversionRate float64         `json:"conversion_rate"`
}

// SourcePerformance reports how the leads of one source convert.
type SourcePerformance struct {
	Source         domain.LeadSource `json:"source"`
	Leads          int               `json:"leads"`
	WonLeads       int               `json:"won_leads"`
	ConversionRate float64           `json:"conversion_rate"`
}

// ConversionRate returns conversions/total*100, or 0 when total is not positive.
func ConversionRate(conversions, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(conversions) / float64(total) * 100
}

// CampaignConversionRate computes the conversion metric of a campaign.
func CampaignConversionRate(c domain.Campaign) float64 {
	return ConversionRate(c.ConversionsCount, c.LeadsCount)
}

// LeadDetail returns a lead with counts of its interactions, deals and tasks.
func (s *Service) LeadDetail(ctx context.Context, id string) (LeadDetail, error) {
	var detail LeadDetail
	err := s.run(ctx, "lead_detail", func(ctx context.Context) error {
		return s.view(ctx, func(v domain.TransactionView) error {
			lead, ok := v.FindLead(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityLead, ID: id}
			}
			detail = LeadDetail{Lead: lead}
			for _, i := range v.ListInteractions() {
				if i.LeadID == id {
					detail.InteractionsCount++
				}
			}
			for _, d := range v.ListDeals() {
				if d.LeadID == id {
					detail.DealsCount++
					detail.TotalDealAmount += d.Amount
				}
			}
			for _, t := range v.ListTasks() {
				if t.LeadID == nil || *t.LeadID != id {
					continue
				}
				detail.TasksCount++
				if t.Status == domain.TaskStatusOpen || t.Status == domain.TaskStatusInProgress {
					detail.OpenTasksCount++
				}
			}
			return nil
		})
	})
	return detail, err
}

// DealPipelineSummary groups deals by status in pipeline order. Statuses
// without deals are omitted.
func (s *Service) DealPipelineSummary(ctx context.Context) ([]PipelineStage, error) {
	var out []PipelineStage
	err := s.run(ctx, "deal_pipeline_summary", func(ctx context.Context) error {
		return s.view(ctx, func(v domain.TransactionView) error {
			stages := make(map[domain.DealStatus]*PipelineStage)
			probability := make(map[domain.DealStatus]int)
			for _, d := range v.ListDeals() {
				stage, ok := stages[d.Status]
				if !ok {
					stage = &PipelineStage{Status: d.Status}
					stages[d.Status] = stage
				}
				stage.Count++
				stage.TotalAmount += d.Amount
				probability[d.Status] += d.Probability
			}
			for _, status := range domain.DealStatuses {
				stage, ok := stages[status]
				if !ok {
					continue
				}
				stage.AverageProbability = float64(probability[status]) / float64(stage.Count)
				out = append(out, *stage)
			}
			return nil
		})
	})
	return out, err
}

// CampaignMetrics returns every campaign with its conversion rate.
func (s *Service) CampaignMetrics(ctx context.Context) ([]CampaignMetric, error) {
	var out []CampaignMetric
	err := s.run(ctx, "campaign_metrics", func(ctx context.Context) error {
		return s.view(ctx, func(v domain.TransactionView) error {
			for _, c := range v.ListCampaigns() {
				out = append(out, CampaignMetric{Campaign: c, ConversionRate: CampaignConversionRate(c)})
			}
			return nil
		})
	})
	return out, err
}

// CampaignMetric returns the conversion metric of one campaign.
func (s *Service) CampaignMetric(ctx context.Context, id string) (CampaignMetric, error) {
	var metric CampaignMetric
	err := s.run(ctx, "campaign_metric", func(ctx context.Context) error {
		return s.view(ctx, func(v domain.TransactionView) error {
			c, ok := v.FindCampaign(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityCampaign, ID: id}
			}
			metric = CampaignMetric{Campaign: c, ConversionRate: CampaignConversionRate(c)}
			return nil
		})
	})
	return metric, err
}

// UpcomingTasks returns tasks due between now and now+days that are neither
// completed nor cancelled, earliest first and higher priority first on ties.
func (s *Service) UpcomingTasks(ctx context.Context, days int) ([]domain.Task, error) {
	var out []domain.Task
	err := s.run(ctx, "upcoming_tasks", func(ctx context.Context) error {
		if days < 0 {
			return domain.ValidationError{Entity: domain.EntityTask, Field: "days", Message: "must not be negative"}
		}
		now := s.clock.Now()
		horizon := now.Add(time.Duration(days) * 24 * time.Hour)
		return s.view(ctx, func(v domain.TransactionView) error {
			for _, t := range v.ListTasks() {
				if t.DueDate == nil || t.Status == domain.TaskStatusCompleted || t.Status == domain.TaskStatusCancelled {
					continue
				}
				if t.DueDate.Before(now) || t.DueDate.After(horizon) {
					continue
				}
				out = append(out, t)
			}
			sort.SliceStable(out, func(i, j int) bool {
				if !out[i].DueDate.Equal(*out[j].DueDate) {
					return out[i].DueDate.Before(*out[j].DueDate)
				}
				return out[i].Priority.Rank() > out[j].Priority.Rank()
			})
			return nil
		})
	})
	return out, err
}

// LeadSourcePerformance reports lead counts and won-lead conversion per
// source. Soft-deleted leads are not counted.
func (s *Service) LeadSourcePerformance(ctx context.Context) ([]SourcePerformance, error) {
	var out []SourcePerformance
	err := s.run(ctx, "lead_source_performance", func(ctx context.Context) error {
		return s.view(ctx, func(v domain.TransactionView) error {
			type tally struct{ leads, won int }
			counts := make(map[string]*tally)
			for _, l := range v.ListLeads() {
				if l.SourceID == nil || l.Deleted() {
					continue
				}
				c, ok := counts[*l.SourceID]
				if !ok {
					c = &tally{}
					counts[*l.SourceID] = c
				}
				c.leads++
				if l.Status == domain.LeadStatusWon {
					c.won++
				}
			}
			for _, src := range v.ListLeadSources() {
				perf := SourcePerformance{Source: src}
				if c, ok := counts[src.ID]; ok {
					perf.Leads = c.leads
					perf.WonLeads = c.won
				}
				perf.ConversionRate = ConversionRate(perf.WonLeads, perf.Leads)
				out = append(out, perf)
			}
			return nil
		})
	})
	return out, err
}

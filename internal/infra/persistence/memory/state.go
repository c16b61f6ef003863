package memory

import (
	"sort"
	"time"

	"crmcore/pkg/domain"
)

type memoryState struct {
	leads         map[string]domain.Lead
	interactions  map[string]domain.Interaction
	deals         map[string]domain.Deal
	tasks         map[string]domain.Task
	campaigns     map[string]domain.Campaign
	campaignLeads map[string]domain.CampaignLead
	sources       map[string]domain.LeadSource
	audit         []domain.AuditLogEntry
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Leads         map[string]domain.Lead         `json:"leads"`
	Interactions  map[string]domain.Interaction  `json:"interactions"`
	Deals         map[string]domain.Deal         `json:"deals"`
	Tasks         map[string]domain.Task         `json:"tasks"`
	Campaigns     map[string]domain.Campaign     `json:"campaigns"`
	CampaignLeads map[string]domain.CampaignLead `json:"campaign_leads"`
	LeadSources   map[string]domain.LeadSource   `json:"lead_sources"`
	AuditLog      []domain.AuditLogEntry         `json:"audit_log"`
}

func newMemoryState() memoryState {
	return memoryState{
		leads:         make(map[string]domain.Lead),
		interactions:  make(map[string]domain.Interaction),
		deals:         make(map[string]domain.Deal),
		tasks:         make(map[string]domain.Task),
		campaigns:     make(map[string]domain.Campaign),
		campaignLeads: make(map[string]domain.CampaignLead),
		sources:       make(map[string]domain.LeadSource),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.leads {
		cloned.leads[k] = cloneLead(v)
	}
	for k, v := range s.interactions {
		cloned.interactions[k] = cloneInteraction(v)
	}
	for k, v := range s.deals {
		cloned.deals[k] = cloneDeal(v)
	}
	for k, v := range s.tasks {
		cloned.tasks[k] = cloneTask(v)
	}
	for k, v := range s.campaigns {
		cloned.campaigns[k] = cloneCampaign(v)
	}
	for k, v := range s.campaignLeads {
		cloned.campaignLeads[k] = v
	}
	for k, v := range s.sources {
		cloned.sources[k] = v
	}
	// Audit entries are immutable; sharing them between states is safe.
	cloned.audit = append([]domain.AuditLogEntry(nil), s.audit...)
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	return Snapshot{
		Leads:         cloned.leads,
		Interactions:  cloned.interactions,
		Deals:         cloned.deals,
		Tasks:         cloned.tasks,
		Campaigns:     cloned.campaigns,
		CampaignLeads: cloned.campaignLeads,
		LeadSources:   cloned.sources,
		AuditLog:      cloned.audit,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{
		leads:         s.Leads,
		interactions:  s.Interactions,
		deals:         s.Deals,
		tasks:         s.Tasks,
		campaigns:     s.Campaigns,
		campaignLeads: s.CampaignLeads,
		sources:       s.LeadSources,
		audit:         s.AuditLog,
	}
	return state.clone()
}

// migrateSnapshot normalizes a snapshot loaded from durable storage: missing
// buckets become empty and references that can no longer resolve are cleared.
// Deals whose lead is missing are kept so the inconsistency stays visible.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Leads == nil {
		snapshot.Leads = map[string]domain.Lead{}
	}
	if snapshot.Interactions == nil {
		snapshot.Interactions = map[string]domain.Interaction{}
	}
	if snapshot.Deals == nil {
		snapshot.Deals = map[string]domain.Deal{}
	}
	if snapshot.Tasks == nil {
		snapshot.Tasks = map[string]domain.Task{}
	}
	if snapshot.Campaigns == nil {
		snapshot.Campaigns = map[string]domain.Campaign{}
	}
	if snapshot.CampaignLeads == nil {
		snapshot.CampaignLeads = map[string]domain.CampaignLead{}
	}
	if snapshot.LeadSources == nil {
		snapshot.LeadSources = map[string]domain.LeadSource{}
	}

	for id, lead := range snapshot.Leads {
		if lead.SourceID != nil {
			if _, ok := snapshot.LeadSources[*lead.SourceID]; !ok {
				lead.SourceID = nil
				snapshot.Leads[id] = lead
			}
		}
	}
	for id, task := range snapshot.Tasks {
		if task.DealID != nil {
			if _, ok := snapshot.Deals[*task.DealID]; !ok {
				task.DealID = nil
				snapshot.Tasks[id] = task
			}
		}
	}
	for id, link := range snapshot.CampaignLeads {
		_, campaignOK := snapshot.Campaigns[link.CampaignID]
		_, leadOK := snapshot.Leads[link.LeadID]
		if !campaignOK || !leadOK {
			delete(snapshot.CampaignLeads, id)
		}
	}
	return snapshot
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneLead(l domain.Lead) domain.Lead {
	cp := l
	cp.SourceID = clonePtr(l.SourceID)
	cp.EstimatedValue = clonePtr(l.EstimatedValue)
	cp.DeletedAt = clonePtr(l.DeletedAt)
	if l.Tags != nil {
		cp.Tags = append([]string(nil), l.Tags...)
	}
	return cp
}

func cloneInteraction(i domain.Interaction) domain.Interaction {
	cp := i
	cp.ScheduledAt = clonePtr(i.ScheduledAt)
	cp.CompletedAt = clonePtr(i.CompletedAt)
	return cp
}

func cloneDeal(d domain.Deal) domain.Deal {
	cp := d
	cp.ExpectedCloseDate = clonePtr(d.ExpectedCloseDate)
	return cp
}

func cloneTask(t domain.Task) domain.Task {
	cp := t
	cp.LeadID = clonePtr(t.LeadID)
	cp.DealID = clonePtr(t.DealID)
	cp.DueDate = clonePtr(t.DueDate)
	cp.CompletedAt = clonePtr(t.CompletedAt)
	return cp
}

func cloneCampaign(c domain.Campaign) domain.Campaign {
	cp := c
	cp.StartsOn = clonePtr(c.StartsOn)
	cp.EndsOn = clonePtr(c.EndsOn)
	return cp
}

// sortedValues returns map values ordered by creation time, then id.
func sortedValues[T any](m map[string]T, created func(T) time.Time, clone func(T) T) []T {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := created(m[keys[i]]), created(m[keys[j]])
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return keys[i] < keys[j]
	})
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, clone(m[k]))
	}
	return out
}

func identity[T any](v T) T { return v }

func leadCreated(l domain.Lead) time.Time               { return l.CreatedAt }
func interactionCreated(i domain.Interaction) time.Time { return i.CreatedAt }
func dealCreated(d domain.Deal) time.Time               { return d.CreatedAt }
func taskCreated(t domain.Task) time.Time               { return t.CreatedAt }
func campaignCreated(c domain.Campaign) time.Time       { return c.CreatedAt }
func campaignLeadAdded(c domain.CampaignLead) time.Time { return c.AddedAt }
func sourceCreated(s domain.LeadSource) time.Time       { return s.CreatedAt }

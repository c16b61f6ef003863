package domain

import (
	"context"
	"time"
)

// Transaction exposes the mutations a persistence implementation must support
// within an atomic scope. Every mutation of a record returns the Change it
// produced so callers can pipe it into the audit and cascade steps.
type Transaction interface {
	Snapshot() TransactionView
	Now() time.Time

	CreateLead(Lead) (Lead, Change, error)
	UpdateLead(id string, mutator func(*Lead) error) (Lead, Change, error)
	// SoftDeleteLead stamps DeletedAt and records an update change.
	SoftDeleteLead(id string) (Lead, Change, error)
	// RestoreLead clears DeletedAt and records a restore change.
	RestoreLead(id string) (Lead, Change, error)
	// DeleteLead hard-deletes a lead and everything referencing it. The
	// returned changes list dependent deletions before the lead itself.
	DeleteLead(id string) ([]Change, error)

	CreateInteraction(Interaction) (Interaction, Change, error)
	UpdateInteraction(id string, mutator func(*Interaction) error) (Interaction, Change, error)
	DeleteInteraction(id string) (Change, error)

	CreateDeal(Deal) (Deal, Change, error)
	UpdateDeal(id string, mutator func(*Deal) error) (Deal, Change, error)
	DeleteDeal(id string) ([]Change, error)

	CreateTask(Task) (Task, Change, error)
	UpdateTask(id string, mutator func(*Task) error) (Task, Change, error)
	DeleteTask(id string) (Change, error)

	CreateCampaign(Campaign) (Campaign, Change, error)
	UpdateCampaign(id string, mutator func(*Campaign) error) (Campaign, Change, error)
	DeleteCampaign(id string) (Change, error)

	AddCampaignLead(CampaignLead) (CampaignLead, Change, error)
	RemoveCampaignLead(campaignID, leadID string) (Change, error)

	CreateLeadSource(LeadSource) (LeadSource, Change, error)
	// DeleteLeadSource removes a source and clears it from referencing leads;
	// the lead updates are returned after the source deletion.
	DeleteLeadSource(id string) ([]Change, error)

	AppendAudit(AuditLogEntry) (AuditLogEntry, error)
}

// TransactionView provides read-only access to snapshot data for rules and queries.
type TransactionView interface {
	ListLeads() []Lead
	FindLead(id string) (Lead, bool)
	ListInteractions() []Interaction
	FindInteraction(id string) (Interaction, bool)
	ListDeals() []Deal
	FindDeal(id string) (Deal, bool)
	ListTasks() []Task
	FindTask(id string) (Task, bool)
	ListCampaigns() []Campaign
	FindCampaign(id string) (Campaign, bool)
	ListCampaignLeads() []CampaignLead
	ListLeadSources() []LeadSource
	FindLeadSource(id string) (LeadSource, bool)
	ListAuditEntries() []AuditLogEntry
}

// PersistentStore is a minimal abstraction over durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	RulesEngine() *RulesEngine
	Close() error
}

// Package domain defines the persistent CRM entities, status domains, change
// records, and rule evaluation primitives used by crmcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records, audit table names
// and persistence buckets.
const (
	// EntityLead identifies a lead record.
	EntityLead EntityType = "leads"
	// EntityInteraction identifies a logged contact event.
	EntityInteraction EntityType = "interactions"
	// EntityDeal identifies a sales opportunity.
	EntityDeal EntityType = "deals"
	// EntityTask identifies an action item.
	EntityTask EntityType = "tasks"
	// EntityCampaign identifies a marketing campaign.
	EntityCampaign EntityType = "campaigns"
	// EntityCampaignLead identifies a campaign/lead junction row.
	EntityCampaignLead EntityType = "campaign_leads"
	// EntityLeadSource identifies a lead source.
	EntityLeadSource EntityType = "lead_sources"
)

// Tracked reports whether mutations of the entity type are captured in the audit log.
func (e EntityType) Tracked() bool {
	switch e {
	case EntityLead, EntityInteraction, EntityDeal, EntityTask, EntityCampaign:
		return true
	default:
		return false
	}
}

// Base contains the common identity and ownership fields.
type Base struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lead is a prospective customer moving through the qualification pipeline.
type Lead struct {
	Base
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Email          string     `json:"email,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	Company        string     `json:"company,omitempty"`
	JobTitle       string     `json:"job_title,omitempty"`
	Status         LeadStatus `json:"status"`
	SourceID       *string    `json:"source_id,omitempty"`
	EstimatedValue *float64   `json:"estimated_value,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the lead carries a soft-delete marker.
func (l Lead) Deleted() bool { return l.DeletedAt != nil }

// Interaction is a logged contact event tied to exactly one lead.
type Interaction struct {
	Base
	LeadID      string          `json:"lead_id"`
	Kind        InteractionKind `json:"kind"`
	Subject     string          `json:"subject,omitempty"`
	Body        string          `json:"body,omitempty"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Deal is a sales opportunity tied to exactly one lead.
type Deal struct {
	Base
	LeadID            string     `json:"lead_id"`
	Title             string     `json:"title"`
	Status            DealStatus `json:"status"`
	Amount            float64    `json:"amount"`
	Currency          string     `json:"currency,omitempty"`
	Probability       int        `json:"probability"`
	ExpectedCloseDate *time.Time `json:"expected_close_date,omitempty"`
}

// Task is an action item optionally linked to a lead and/or a deal.
type Task struct {
	Base
	LeadID      *string      `json:"lead_id,omitempty"`
	DealID      *string      `json:"deal_id,omitempty"`
	AssigneeID  string       `json:"assignee_id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Campaign is a marketing effort associated with many leads. Counters are
// maintained by external processes.
type Campaign struct {
	Base
	Name             string         `json:"name"`
	Channel          string         `json:"channel,omitempty"`
	Status           CampaignStatus `json:"status"`
	Budget           float64        `json:"budget"`
	StartsOn         *time.Time     `json:"starts_on,omitempty"`
	EndsOn           *time.Time     `json:"ends_on,omitempty"`
	LeadsCount       int            `json:"leads_count"`
	ConversionsCount int            `json:"conversions_count"`
}

// CampaignLead links a lead to a campaign.
type CampaignLead struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	CampaignID string    `json:"campaign_id"`
	LeadID     string    `json:"lead_id"`
	AddedAt    time.Time `json:"added_at"`
}

// LeadSource names the channel a lead arrived through. Names are unique per owner.
type LeadSource struct {
	Base
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Principal is the identity a write is attributed to.
type Principal struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// Anonymous reports whether no user is attributable.
func (p Principal) Anonymous() bool { return p.UserID == "" }

// Change describes a mutation applied to an entity during a transaction. It is
// the tagged write result returned by every Transaction mutation.
type Change struct {
	Entity   EntityType
	Action   Action
	RecordID string
	Before   ChangePayload
	After    ChangePayload
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate the operations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	// ActionDelete indicates an entity was removed.
	ActionDelete Action = "delete"
	// ActionRestore indicates a soft-deleted entity was restored.
	ActionRestore Action = "restore"
)

// AuditLogEntry is the immutable record of one mutation of a tracked entity.
type AuditLogEntry struct {
	ID        string        `json:"id"`
	UserID    *string       `json:"user_id"`
	TableName EntityType    `json:"table_name"`
	RecordID  string        `json:"record_id"`
	Action    Action        `json:"action"`
	Before    ChangePayload `json:"before_state"`
	After     ChangePayload `json:"after_state"`
	CreatedAt time.Time     `json:"created_at"`
}

// Matches reports whether the entry describes the provided change.
func (e AuditLogEntry) Matches(change Change) bool {
	return e.TableName == change.Entity && e.RecordID == change.RecordID && e.Action == change.Action
}

// Severity controls how rule violations affect a transaction.
type Severity string

// Rule severities.
const (
	SeverityBlock Severity = "block"
	SeverityWarn  Severity = "warn"
	SeverityLog   Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string     `json:"rule"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Entity   EntityType `json:"entity"`
	EntityID string     `json:"entity_id"`
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation `json:"violations,omitempty"`
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

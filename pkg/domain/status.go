package domain

// LeadStatus enumerates the lead qualification pipeline.
type LeadStatus string

// Lead statuses. Any value may follow any other.
const (
	LeadStatusNew         LeadStatus = "new"
	LeadStatusContacted   LeadStatus = "contacted"
	LeadStatusQualified   LeadStatus = "qualified"
	LeadStatusProposal    LeadStatus = "proposal"
	LeadStatusNegotiation LeadStatus = "negotiation"
	LeadStatusWon         LeadStatus = "won"
	LeadStatusLost        LeadStatus = "lost"
	LeadStatusArchived    LeadStatus = "archived"
)

// LeadStatuses lists the lead status domain in pipeline order.
var LeadStatuses = []LeadStatus{
	LeadStatusNew,
	LeadStatusContacted,
	LeadStatusQualified,
	LeadStatusProposal,
	LeadStatusNegotiation,
	LeadStatusWon,
	LeadStatusLost,
	LeadStatusArchived,
}

// Valid reports whether the status belongs to the lead domain.
func (s LeadStatus) Valid() bool { return contains(LeadStatuses, s) }

// DealStatus enumerates the deal closing pipeline.
type DealStatus string

// Deal statuses.
const (
	DealStatusProspecting   DealStatus = "prospecting"
	DealStatusQualification DealStatus = "qualification"
	DealStatusProposal      DealStatus = "proposal"
	DealStatusNegotiation   DealStatus = "negotiation"
	DealStatusClosedWon     DealStatus = "closed_won"
	DealStatusClosedLost    DealStatus = "closed_lost"
)

// DealStatuses lists the deal status domain in pipeline order.
var DealStatuses = []DealStatus{
	DealStatusProspecting,
	DealStatusQualification,
	DealStatusProposal,
	DealStatusNegotiation,
	DealStatusClosedWon,
	DealStatusClosedLost,
}

// Valid reports whether the status belongs to the deal domain.
func (s DealStatus) Valid() bool { return contains(DealStatuses, s) }

// Terminal reports whether the status ends the deal pipeline.
func (s DealStatus) Terminal() bool {
	return s == DealStatusClosedWon || s == DealStatusClosedLost
}

// LeadOutcome maps a terminal deal status onto the lead status it forces.
func (s DealStatus) LeadOutcome() (LeadStatus, bool) {
	switch s {
	case DealStatusClosedWon:
		return LeadStatusWon, true
	case DealStatusClosedLost:
		return LeadStatusLost, true
	default:
		return "", false
	}
}

// TaskStatus enumerates task workflow states.
type TaskStatus string

// Task statuses.
const (
	TaskStatusOpen       TaskStatus = "open"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// TaskStatuses lists the task status domain.
var TaskStatuses = []TaskStatus{TaskStatusOpen, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled}

// Valid reports whether the status belongs to the task domain.
func (s TaskStatus) Valid() bool { return contains(TaskStatuses, s) }

// TaskPriority ranks tasks; higher ranks sort first in upcoming views.
type TaskPriority string

// Task priorities.
const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityUrgent TaskPriority = "urgent"
)

// TaskPriorities lists the priority domain from lowest to highest.
var TaskPriorities = []TaskPriority{TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent}

// Valid reports whether the priority belongs to the domain.
func (p TaskPriority) Valid() bool { return contains(TaskPriorities, p) }

// Rank returns the ordinal of the priority, -1 when unknown.
func (p TaskPriority) Rank() int {
	for i, v := range TaskPriorities {
		if v == p {
			return i
		}
	}
	return -1
}

// CampaignStatus enumerates campaign states.
type CampaignStatus string

// Campaign statuses.
const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// CampaignStatuses lists the campaign status domain.
var CampaignStatuses = []CampaignStatus{CampaignStatusDraft, CampaignStatusActive, CampaignStatusPaused, CampaignStatusCompleted}

// Valid reports whether the status belongs to the campaign domain.
func (s CampaignStatus) Valid() bool { return contains(CampaignStatuses, s) }

// InteractionKind enumerates logged contact event types.
type InteractionKind string

// Interaction kinds.
const (
	InteractionCall          InteractionKind = "call"
	InteractionEmail         InteractionKind = "email"
	InteractionMeeting       InteractionKind = "meeting"
	InteractionMessage       InteractionKind = "message"
	InteractionNote          InteractionKind = "note"
	InteractionTaskCompleted InteractionKind = "task_completed"
)

// InteractionKinds lists the interaction kind domain.
var InteractionKinds = []InteractionKind{
	InteractionCall,
	InteractionEmail,
	InteractionMeeting,
	InteractionMessage,
	InteractionNote,
	InteractionTaskCompleted,
}

// Valid reports whether the kind belongs to the domain.
func (k InteractionKind) Valid() bool { return contains(InteractionKinds, k) }

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

package httpapi

import (
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"crmcore/pkg/domain"
)

var registerOnce sync.Once

// registerValidators teaches gin's validator the status vocabularies and to
// report fields by their JSON or query names.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return f.Name
		})
		vocab := map[string]func(string) bool{
			"lead_status":      func(s string) bool { return domain.LeadStatus(s).Valid() },
			"deal_status":      func(s string) bool { return domain.DealStatus(s).Valid() },
			"task_status":      func(s string) bool { return domain.TaskStatus(s).Valid() },
			"task_priority":    func(s string) bool { return domain.TaskPriority(s).Valid() },
			"campaign_status":  func(s string) bool { return domain.CampaignStatus(s).Valid() },
			"interaction_kind": func(s string) bool { return domain.InteractionKind(s).Valid() },
			"audited_table":    func(s string) bool { return domain.EntityType(s).Tracked() },
		}
		for tag, valid := range vocab {
			_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
				return valid(fl.Field().String())
			})
		}
	})
}

type leadRequest struct {
	OwnerID        string   `json:"owner_id"`
	FirstName      string   `json:"first_name" binding:"required"`
	LastName       string   `json:"last_name" binding:"required"`
	Email          string   `json:"email" binding:"omitempty,email"`
	Phone          string   `json:"phone"`
	Company        string   `json:"company"`
	JobTitle       string   `json:"job_title"`
	Status         string   `json:"status" binding:"omitempty,lead_status"`
	SourceID       *string  `json:"source_id"`
	EstimatedValue *float64 `json:"estimated_value" binding:"omitempty,gte=0"`
	Notes          string   `json:"notes"`
	Tags           []string `json:"tags" binding:"omitempty,dive,required"`
}

func (r leadRequest) lead() domain.Lead {
	return domain.Lead{
		Base:           domain.Base{OwnerID: r.OwnerID},
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		Email:          r.Email,
		Phone:          r.Phone,
		Company:        r.Company,
		JobTitle:       r.JobTitle,
		Status:         domain.LeadStatus(r.Status),
		SourceID:       r.SourceID,
		EstimatedValue: r.EstimatedValue,
		Notes:          r.Notes,
		Tags:           r.Tags,
	}
}

type leadPatch struct {
	FirstName      *string   `json:"first_name" binding:"omitempty,min=1"`
	LastName       *string   `json:"last_name" binding:"omitempty,min=1"`
	Email          *string   `json:"email" binding:"omitempty,email"`
	Phone          *string   `json:"phone"`
	Company        *string   `json:"company"`
	JobTitle       *string   `json:"job_title"`
	SourceID       *string   `json:"source_id"`
	EstimatedValue *float64  `json:"estimated_value" binding:"omitempty,gte=0"`
	Notes          *string   `json:"notes"`
	Tags           *[]string `json:"tags"`
}

func (p leadPatch) apply(l *domain.Lead) error {
	setString(&l.FirstName, p.FirstName)
	setString(&l.LastName, p.LastName)
	setString(&l.Email, p.Email)
	setString(&l.Phone, p.Phone)
	setString(&l.Company, p.Company)
	setString(&l.JobTitle, p.JobTitle)
	setString(&l.Notes, p.Notes)
	if p.SourceID != nil {
		if *p.SourceID == "" {
			l.SourceID = nil
		} else {
			id := *p.SourceID
			l.SourceID = &id
		}
	}
	if p.EstimatedValue != nil {
		v := *p.EstimatedValue
		l.EstimatedValue = &v
	}
	if p.Tags != nil {
		l.Tags = append([]string(nil), (*p.Tags)...)
	}
	return nil
}

type leadStatusRequest struct {
	Status string `json:"status" binding:"required,lead_status"`
}

type dealStatusRequest struct {
	Status string `json:"status" binding:"required,deal_status"`
}

type taskStatusRequest struct {
	Status string `json:"status" binding:"required,task_status"`
}

type dealRequest struct {
	OwnerID           string     `json:"owner_id"`
	LeadID            string     `json:"lead_id" binding:"required"`
	Title             string     `json:"title" binding:"required"`
	Status            string     `json:"status" binding:"omitempty,deal_status"`
	Amount            float64    `json:"amount" binding:"gte=0"`
	Currency          string     `json:"currency" binding:"omitempty,len=3"`
	Probability       int        `json:"probability" binding:"gte=0,lte=100"`
	ExpectedCloseDate *time.Time `json:"expected_close_date"`
}

func (r dealRequest) deal() domain.Deal {
	return domain.Deal{
		Base:              domain.Base{OwnerID: r.OwnerID},
		LeadID:            r.LeadID,
		Title:             r.Title,
		Status:            domain.DealStatus(r.Status),
		Amount:            r.Amount,
		Currency:          r.Currency,
		Probability:       r.Probability,
		ExpectedCloseDate: r.ExpectedCloseDate,
	}
}

type dealPatch struct {
	Title             *string    `json:"title" binding:"omitempty,min=1"`
	Status            *string    `json:"status" binding:"omitempty,deal_status"`
	Amount            *float64   `json:"amount" binding:"omitempty,gte=0"`
	Currency          *string    `json:"currency" binding:"omitempty,len=3"`
	Probability       *int       `json:"probability" binding:"omitempty,gte=0,lte=100"`
	ExpectedCloseDate *time.Time `json:"expected_close_date"`
}

func (p dealPatch) apply(d *domain.Deal) error {
	setString(&d.Title, p.Title)
	setString(&d.Currency, p.Currency)
	if p.Status != nil {
		d.Status = domain.DealStatus(*p.Status)
	}
	if p.Amount != nil {
		d.Amount = *p.Amount
	}
	if p.Probability != nil {
		d.Probability = *p.Probability
	}
	if p.ExpectedCloseDate != nil {
		at := *p.ExpectedCloseDate
		d.ExpectedCloseDate = &at
	}
	return nil
}

type interactionRequest struct {
	OwnerID     string     `json:"owner_id"`
	LeadID      string     `json:"lead_id" binding:"required"`
	Kind        string     `json:"kind" binding:"required,interaction_kind"`
	Subject     string     `json:"subject"`
	Body        string     `json:"body"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

func (r interactionRequest) interaction() domain.Interaction {
	return domain.Interaction{
		Base:        domain.Base{OwnerID: r.OwnerID},
		LeadID:      r.LeadID,
		Kind:        domain.InteractionKind(r.Kind),
		Subject:     r.Subject,
		Body:        r.Body,
		ScheduledAt: r.ScheduledAt,
		CompletedAt: r.CompletedAt,
	}
}

type interactionPatch struct {
	Kind        *string    `json:"kind" binding:"omitempty,interaction_kind"`
	Subject     *string    `json:"subject"`
	Body        *string    `json:"body"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

func (p interactionPatch) apply(i *domain.Interaction) error {
	if p.Kind != nil {
		i.Kind = domain.InteractionKind(*p.Kind)
	}
	setString(&i.Subject, p.Subject)
	setString(&i.Body, p.Body)
	if p.ScheduledAt != nil {
		at := *p.ScheduledAt
		i.ScheduledAt = &at
	}
	if p.CompletedAt != nil {
		at := *p.CompletedAt
		i.CompletedAt = &at
	}
	return nil
}

type taskRequest struct {
	OwnerID     string     `json:"owner_id"`
	LeadID      *string    `json:"lead_id"`
	DealID      *string    `json:"deal_id"`
	AssigneeID  string     `json:"assignee_id"`
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Status      string     `json:"status" binding:"omitempty,task_status"`
	Priority    string     `json:"priority" binding:"omitempty,task_priority"`
	DueDate     *time.Time `json:"due_date"`
}

func (r taskRequest) task() domain.Task {
	return domain.Task{
		Base:        domain.Base{OwnerID: r.OwnerID},
		LeadID:      r.LeadID,
		DealID:      r.DealID,
		AssigneeID:  r.AssigneeID,
		Title:       r.Title,
		Description: r.Description,
		Status:      domain.TaskStatus(r.Status),
		Priority:    domain.TaskPriority(r.Priority),
		DueDate:     r.DueDate,
	}
}

type taskPatch struct {
	AssigneeID  *string    `json:"assignee_id" binding:"omitempty,min=1"`
	Title       *string    `json:"title" binding:"omitempty,min=1"`
	Description *string    `json:"description"`
	Status      *string    `json:"status" binding:"omitempty,task_status"`
	Priority    *string    `json:"priority" binding:"omitempty,task_priority"`
	DueDate     *time.Time `json:"due_date"`
	ClearDue    bool       `json:"clear_due_date"`
}

func (p taskPatch) apply(t *domain.Task) error {
	setString(&t.AssigneeID, p.AssigneeID)
	setString(&t.Title, p.Title)
	setString(&t.Description, p.Description)
	if p.Status != nil {
		t.Status = domain.TaskStatus(*p.Status)
	}
	if p.Priority != nil {
		t.Priority = domain.TaskPriority(*p.Priority)
	}
	switch {
	case p.ClearDue:
		t.DueDate = nil
	case p.DueDate != nil:
		due := *p.DueDate
		t.DueDate = &due
	}
	return nil
}

type campaignRequest struct {
	OwnerID  string     `json:"owner_id"`
	Name     string     `json:"name" binding:"required"`
	Channel  string     `json:"channel"`
	Status   string     `json:"status" binding:"omitempty,campaign_status"`
	Budget   float64    `json:"budget" binding:"gte=0"`
	StartsOn *time.Time `json:"starts_on"`
	EndsOn   *time.Time `json:"ends_on"`
}

func (r campaignRequest) campaign() domain.Campaign {
	return domain.Campaign{
		Base:     domain.Base{OwnerID: r.OwnerID},
		Name:     r.Name,
		Channel:  r.Channel,
		Status:   domain.CampaignStatus(r.Status),
		Budget:   r.Budget,
		StartsOn: r.StartsOn,
		EndsOn:   r.EndsOn,
	}
}

type campaignPatch struct {
	Name             *string    `json:"name" binding:"omitempty,min=1"`
	Channel          *string    `json:"channel"`
	Status           *string    `json:"status" binding:"omitempty,campaign_status"`
	Budget           *float64   `json:"budget" binding:"omitempty,gte=0"`
	StartsOn         *time.Time `json:"starts_on"`
	EndsOn           *time.Time `json:"ends_on"`
	LeadsCount       *int       `json:"leads_count" binding:"omitempty,gte=0"`
	ConversionsCount *int       `json:"conversions_count" binding:"omitempty,gte=0"`
}

func (p campaignPatch) apply(c *domain.Campaign) error {
	setString(&c.Name, p.Name)
	setString(&c.Channel, p.Channel)
	if p.Status != nil {
		c.Status = domain.CampaignStatus(*p.Status)
	}
	if p.Budget != nil {
		c.Budget = *p.Budget
	}
	if p.StartsOn != nil {
		at := *p.StartsOn
		c.StartsOn = &at
	}
	if p.EndsOn != nil {
		at := *p.EndsOn
		c.EndsOn = &at
	}
	if p.LeadsCount != nil {
		c.LeadsCount = *p.LeadsCount
	}
	if p.ConversionsCount != nil {
		c.ConversionsCount = *p.ConversionsCount
	}
	return nil
}

type leadSourceRequest struct {
	OwnerID     string `json:"owner_id"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type exportRequest struct {
	Format   string     `json:"format" binding:"omitempty,oneof=jsonl csv"`
	Table    string     `json:"table_name" binding:"omitempty,audited_table"`
	RecordID string     `json:"record_id"`
	UserID   string     `json:"user_id"`
	Action   string     `json:"action" binding:"omitempty,oneof=create update delete restore"`
	Since    *time.Time `json:"since"`
	Until    *time.Time `json:"until"`
	Limit    int        `json:"limit" binding:"gte=0"`
}

type leadQuery struct {
	OwnerID        string `form:"owner_id"`
	Status         string `form:"status" binding:"omitempty,lead_status"`
	SourceID       string `form:"source_id"`
	Tag            string `form:"tag"`
	Search         string `form:"q"`
	IncludeDeleted bool   `form:"include_deleted"`
}

type dealQuery struct {
	LeadID  string `form:"lead_id"`
	OwnerID string `form:"owner_id"`
	Status  string `form:"status" binding:"omitempty,deal_status"`
}

type taskQuery struct {
	LeadID     string `form:"lead_id"`
	DealID     string `form:"deal_id"`
	AssigneeID string `form:"assignee_id"`
	Status     string `form:"status" binding:"omitempty,task_status"`
}

type auditQuery struct {
	Table    string    `form:"table_name" binding:"omitempty,audited_table"`
	RecordID string    `form:"record_id"`
	UserID   string    `form:"user_id"`
	Action   string    `form:"action" binding:"omitempty,oneof=create update delete restore"`
	Since    time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Until    time.Time `form:"until" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit    int       `form:"limit" binding:"gte=0"`
}

type upcomingQuery struct {
	Days *int `form:"days" binding:"omitempty,gte=0"`
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

package httpapi

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmcore/internal/core"
	"crmcore/internal/infra/persistence/memory"
	"crmcore/pkg/domain"
)

func TestLeadLifecycle(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	lead := h.createLead("Ada")
	assert.Equal(t, domain.LeadStatusNew, lead.Status)

	rec := h.do(http.MethodPatch, "/api/v1/leads/"+lead.ID, gin.H{"company": "Analytical Engines", "tags": []string{"vip"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Analytical Engines", decode[domain.Lead](t, rec).Data.Company)

	rec = h.do(http.MethodPatch, "/api/v1/leads/"+lead.ID+"/status", gin.H{"status": "contacted"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.LeadStatusContacted, decode[domain.Lead](t, rec).Data.Status)

	rec = h.do(http.MethodGet, "/api/v1/leads?tag=vip", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Lead](t, rec).Data, 1)

	rec = h.do(http.MethodDelete, "/api/v1/leads/"+lead.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotNil(t, decode[domain.Lead](t, rec).Data.DeletedAt)

	assert.Empty(t, decode[[]domain.Lead](t, h.do(http.MethodGet, "/api/v1/leads", nil)).Data)
	assert.Len(t, decode[[]domain.Lead](t, h.do(http.MethodGet, "/api/v1/leads?include_deleted=true", nil)).Data, 1)

	rec = h.do(http.MethodPost, "/api/v1/leads/"+lead.ID+"/restore", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Nil(t, decode[domain.Lead](t, rec).Data.DeletedAt)

	rec = h.do(http.MethodPost, "/api/v1/leads/"+lead.ID+"/restore", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	trail := decode[[]domain.AuditLogEntry](t, h.do(http.MethodGet, "/api/v1/audit/leads/"+lead.ID, nil)).Data
	actions := make([]domain.Action, 0, len(trail))
	for _, entry := range trail {
		actions = append(actions, entry.Action)
	}
	assert.ElementsMatch(t, []domain.Action{
		domain.ActionCreate, domain.ActionUpdate, domain.ActionUpdate, domain.ActionUpdate, domain.ActionRestore,
	}, actions)
}

func TestHardDeleteRemovesLeadAndDeals(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	lead := h.createLead("Grace")
	deal := h.createDeal(lead.ID)

	rec := h.do(http.MethodDelete, "/api/v1/leads/"+lead.ID+"?hard=true", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/v1/leads/"+lead.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/v1/deals/"+deal.ID, nil).Code)
}

func TestLeadValidationErrors(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	rec := h.do(http.MethodPost, "/api/v1/leads", gin.H{"last_name": "Nameless", "status": "dormant"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[any](t, rec)
	assert.Equal(t, "request validation failed", body.Error)
	assert.ElementsMatch(t, []fieldError{
		{Field: "first_name", Rule: "required"},
		{Field: "status", Rule: "lead_status"},
	}, body.Fields)

	rec = h.do(http.MethodGet, "/api/v1/leads?status=dormant", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/leads/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodPatch, "/api/v1/leads/missing/status", gin.H{"status": "won"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLeadDetailCountsRelatedRecords(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	lead := h.createLead("Ada")
	h.createDeal(lead.ID)
	rec := h.do(http.MethodPost, "/api/v1/tasks", gin.H{"title": "Call back", "lead_id": lead.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/v1/leads/"+lead.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[core.LeadDetail](t, rec).Data
	assert.Equal(t, lead.ID, detail.Lead.ID)
	assert.Equal(t, 1, detail.DealsCount)
	assert.Equal(t, 1, detail.TasksCount)
	assert.Equal(t, 1, detail.OpenTasksCount)
	assert.InDelta(t, 1200, detail.TotalDealAmount, 0.001)
}

func TestClosingDealWinsLead(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	lead := h.createLead("Ada")
	deal := h.createDeal(lead.ID)

	rec := h.do(http.MethodPatch, "/api/v1/deals/"+deal.ID+"/status", gin.H{"status": "closed_won"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[domain.Deal](t, rec)
	assert.Equal(t, domain.DealStatusClosedWon, body.Data.Status)
	assert.Empty(t, body.Warning)

	rec = h.do(http.MethodGet, "/api/v1/leads/"+lead.ID, nil)
	assert.Equal(t, domain.LeadStatusWon, decode[core.LeadDetail](t, rec).Data.Lead.Status)
}

func TestDealRequestValidation(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	lead := h.createLead("Ada")

	rec := h.do(http.MethodPost, "/api/v1/deals", gin.H{"lead_id": lead.ID, "title": "Too sure", "probability": 150})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[any](t, rec).Fields, fieldError{Field: "probability", Rule: "lte"})

	rec = h.do(http.MethodPost, "/api/v1/deals", gin.H{"lead_id": "missing", "title": "Orphan"})
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPatch, "/api/v1/deals/missing/status", gin.H{"status": "won"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func orphanDeal(t *testing.T, h *harness) domain.Deal {
	t.Helper()
	store, ok := h.svc.Store().(*memory.Store)
	require.True(t, ok, "memory store expected, got %T", h.svc.Store())
	deal := domain.Deal{
		Base:   domain.Base{ID: "deal-orphan", OwnerID: "alice", CreatedAt: testNow, UpdatedAt: testNow},
		LeadID: "lead-gone",
		Title:  "Legacy",
		Status: domain.DealStatusNegotiation,
	}
	store.ImportState(memory.Snapshot{Deals: map[string]domain.Deal{deal.ID: deal}})
	return deal
}

func TestCascadeFailureIsReportedAsWarning(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	deal := orphanDeal(t, h)

	rec := h.do(http.MethodPatch, "/api/v1/deals/"+deal.ID+"/status", gin.H{"status": "closed_won"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[domain.Deal](t, rec)
	assert.Equal(t, domain.DealStatusClosedWon, body.Data.Status)
	assert.Contains(t, body.Warning, "lead-gone")
}

func TestStrictCascadeFailureConflicts(t *testing.T) {
	h := newHarness(t, Config{}, []core.Option{core.WithStrictCascade(true)})
	deal := orphanDeal(t, h)

	rec := h.do(http.MethodPatch, "/api/v1/deals/"+deal.ID+"/status", gin.H{"status": "closed_won"})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/v1/deals/"+deal.ID, nil)
	assert.Equal(t, domain.DealStatusNegotiation, decode[domain.Deal](t, rec).Data.Status)
}

func TestPipelineReportGroupsDeals(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	lead := h.createLead("Ada")
	h.createDeal(lead.ID)
	h.createDeal(lead.ID)

	rec := h.do(http.MethodGet, "/api/v1/reports/pipeline", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var prospecting *core.PipelineStage
	for _, stage := range decode[[]core.PipelineStage](t, rec).Data {
		if stage.Status == domain.DealStatusProspecting {
			prospecting = &stage
		}
	}
	require.NotNil(t, prospecting)
	assert.Equal(t, 2, prospecting.Count)
	assert.InDelta(t, 2400, prospecting.TotalAmount, 0.001)
}

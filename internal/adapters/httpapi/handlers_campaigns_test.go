package httpapi

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmcore/internal/core"
	"crmcore/pkg/domain"
)

func TestCampaignMembership(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	lead := h.createLead("Ada")

	rec := h.do(http.MethodPost, "/api/v1/campaigns", gin.H{"name": "Spring webinar", "channel": "email", "budget": 500})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	campaign := decode[domain.Campaign](t, rec).Data
	assert.Equal(t, domain.CampaignStatusDraft, campaign.Status)

	path := "/api/v1/campaigns/" + campaign.ID + "/leads/" + lead.ID
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, path, nil).Code)
	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, path, nil).Code)

	rec = h.do(http.MethodGet, "/api/v1/campaigns/"+campaign.ID+"/leads", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	members := decode[[]domain.Lead](t, rec).Data
	require.Len(t, members, 1)
	assert.Equal(t, lead.ID, members[0].ID)

	rec = h.do(http.MethodPatch, "/api/v1/campaigns/"+campaign.ID, gin.H{"status": "active", "leads_count": 4, "conversions_count": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/v1/campaigns/"+campaign.ID+"/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	metric := decode[core.CampaignMetric](t, rec).Data
	assert.Equal(t, domain.CampaignStatusActive, metric.Campaign.Status)
	assert.InDelta(t, 25, metric.ConversionRate, 0.001)

	rec = h.do(http.MethodGet, "/api/v1/reports/campaigns", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.CampaignMetric](t, rec).Data, 1)

	require.Equal(t, http.StatusOK, h.do(http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, path, nil).Code)

	require.Equal(t, http.StatusOK, h.do(http.MethodDelete, "/api/v1/campaigns/"+campaign.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/v1/campaigns/"+campaign.ID, nil).Code)
}

func TestCampaignRequestValidation(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	rec := h.do(http.MethodPost, "/api/v1/campaigns", gin.H{"name": "Bad", "status": "sleeping", "budget": -1})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.ElementsMatch(t, []fieldError{
		{Field: "status", Rule: "campaign_status"},
		{Field: "budget", Rule: "gte"},
	}, decode[any](t, rec).Fields)
}

func TestLeadSourcesAndPerformance(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	rec := h.do(http.MethodPost, "/api/v1/lead-sources", gin.H{"name": "Referral"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	src := decode[domain.LeadSource](t, rec).Data

	for _, name := range []string{"Ada", "Grace"} {
		rec = h.do(http.MethodPost, "/api/v1/leads", gin.H{"first_name": name, "last_name": "T", "source_id": src.ID})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	leads := decode[[]domain.Lead](t, h.do(http.MethodGet, "/api/v1/leads?source_id="+src.ID, nil)).Data
	require.Len(t, leads, 2)
	rec = h.do(http.MethodPatch, "/api/v1/leads/"+leads[0].ID+"/status", gin.H{"status": "won"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/v1/reports/lead-sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	perf := decode[[]core.SourcePerformance](t, rec).Data
	require.Len(t, perf, 1)
	assert.Equal(t, 2, perf[0].Leads)
	assert.Equal(t, 1, perf[0].WonLeads)
	assert.InDelta(t, 50, perf[0].ConversionRate, 0.001)

	assert.Len(t, decode[[]domain.LeadSource](t, h.do(http.MethodGet, "/api/v1/lead-sources", nil)).Data, 1)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/api/v1/lead-sources/missing", nil).Code)
}

package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crmcore/pkg/domain"
)

func (s *Server) listCampaigns(c *gin.Context) {
	campaigns, err := s.svc.ListCampaigns(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": nonNil(campaigns)})
}

func (s *Server) createCampaign(c *gin.Context) {
	var req campaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	campaign, res, err := s.svc.CreateCampaign(c.Request.Context(), principalFrom(c), req.campaign())
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, campaign, res)
}

func (s *Server) getCampaign(c *gin.Context) {
	campaign, err := s.svc.GetCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": campaign})
}

func (s *Server) updateCampaign(c *gin.Context) {
	var patch campaignPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		bindError(c, err)
		return
	}
	campaign, res, err := s.svc.UpdateCampaign(c.Request.Context(), principalFrom(c), c.Param("id"), patch.apply)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, campaign, res)
}

func (s *Server) deleteCampaign(c *gin.Context) {
	res, err := s.svc.DeleteCampaign(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": c.Param("id"), "deleted": true}, res)
}

func (s *Server) campaignLeads(c *gin.Context) {
	leads, err := s.svc.CampaignLeads(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": nonNil(leads)})
}

func (s *Server) addCampaignLead(c *gin.Context) {
	link, res, err := s.svc.AddLeadToCampaign(c.Request.Context(), principalFrom(c), c.Param("id"), c.Param("leadID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, link, res)
}

func (s *Server) removeCampaignLead(c *gin.Context) {
	res, err := s.svc.RemoveLeadFromCampaign(c.Request.Context(), principalFrom(c), c.Param("id"), c.Param("leadID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"campaign_id": c.Param("id"), "lead_id": c.Param("leadID"), "deleted": true}, res)
}

func (s *Server) campaignMetric(c *gin.Context) {
	metric, err := s.svc.CampaignMetric(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": metric})
}

func (s *Server) listLeadSources(c *gin.Context) {
	sources, err := s.svc.ListLeadSources(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": nonNil(sources)})
}

func (s *Server) createLeadSource(c *gin.Context) {
	var req leadSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	src, res, err := s.svc.CreateLeadSource(c.Request.Context(), principalFrom(c), domain.LeadSource{
		Base:        domain.Base{OwnerID: req.OwnerID},
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, src, res)
}

func (s *Server) deleteLeadSource(c *gin.Context) {
	res, err := s.svc.DeleteLeadSource(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": c.Param("id"), "deleted": true}, res)
}

package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"crmcore/internal/core"
	"crmcore/pkg/domain"
)

func (s *Server) listLeads(c *gin.Context) {
	var q leadQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	leads, err := s.svc.ListLeads(c.Request.Context(), core.LeadFilter{
		OwnerID:        q.OwnerID,
		Status:         domain.LeadStatus(q.Status),
		SourceID:       q.SourceID,
		Tag:            q.Tag,
		Search:         q.Search,
		IncludeDeleted: q.IncludeDeleted,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": nonNil(leads)})
}

func (s *Server) createLead(c *gin.Context) {
	var req leadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	lead, res, err := s.svc.CreateLead(c.Request.Context(), principalFrom(c), req.lead())
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, lead, res)
}

func (s *Server) leadDetail(c *gin.Context) {
	detail, err := s.svc.LeadDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": detail})
}

func (s *Server) updateLead(c *gin.Context) {
	var patch leadPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		bindError(c, err)
		return
	}
	lead, res, err := s.svc.UpdateLead(c.Request.Context(), principalFrom(c), c.Param("id"), patch.apply)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, lead, res)
}

func (s *Server) updateLeadStatus(c *gin.Context) {
	var req leadStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	lead, res, err := s.svc.UpdateLeadStatus(c.Request.Context(), principalFrom(c), c.Param("id"), domain.LeadStatus(req.Status))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, lead, res)
}

// deleteLead soft-deletes unless ?hard=true asks for removal with dependents.
func (s *Server) deleteLead(c *gin.Context) {
	hard, _ := strconv.ParseBool(c.Query("hard"))
	if hard {
		res, err := s.svc.DeleteLead(c.Request.Context(), principalFrom(c), c.Param("id"))
		if err != nil {
			s.fail(c, err)
			return
		}
		respond(c, http.StatusOK, gin.H{"id": c.Param("id"), "deleted": true}, res)
		return
	}
	lead, res, err := s.svc.SoftDeleteLead(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, lead, res)
}

func (s *Server) restoreLead(c *gin.Context) {
	lead, res, err := s.svc.RestoreLead(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, lead, res)
}

func (s *Server) listDeals(c *gin.Context) {
	var q dealQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	deals, err := s.svc.ListDeals(c.Request.Context(), core.DealFilter{LeadID: q.LeadID, OwnerID: q.OwnerID, Status: domain.DealStatus(q.Status)})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": nonNil(deals)})
}

func (s *Server) createDeal(c *gin.Context) {
	var req dealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	deal, res, err := s.svc.CreateDeal(c.Request.Context(), principalFrom(c), req.deal())
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, deal, res)
}

func (s *Server) getDeal(c *gin.Context) {
	deal, err := s.svc.GetDeal(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": deal})
}

func (s *Server) updateDeal(c *gin.Context) {
	var patch dealPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		bindError(c, err)
		return
	}
	deal, res, err := s.svc.UpdateDeal(c.Request.Context(), principalFrom(c), c.Param("id"), patch.apply)
	s.dealWritten(c, deal, res, err)
}

func (s *Server) updateDealStatus(c *gin.Context) {
	var req dealStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	deal, res, err := s.svc.UpdateDealStatus(c.Request.Context(), principalFrom(c), c.Param("id"), domain.DealStatus(req.Status))
	s.dealWritten(c, deal, res, err)
}

// dealWritten reports a tolerated cascade failure as a warning next to the
// committed deal.
func (s *Server) dealWritten(c *gin.Context, deal domain.Deal, res domain.Result, err error) {
	switch {
	case err == nil:
		respond(c, http.StatusOK, deal, res)
	case errors.Is(err, domain.ErrCascade) && !s.svc.StrictCascade():
		body := gin.H{"data": deal, "warning": err.Error()}
		if len(res.Violations) > 0 {
			body["violations"] = res.Violations
		}
		c.JSON(http.StatusOK, body)
	default:
		s.fail(c, err)
	}
}

func (s *Server) deleteDeal(c *gin.Context) {
	res, err := s.svc.DeleteDeal(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": c.Param("id"), "deleted": true}, res)
}

// nonNil keeps empty collections rendering as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

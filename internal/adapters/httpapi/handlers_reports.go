package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"crmcore/internal/adapters/auditexport"
	"crmcore/internal/core"
	"crmcore/internal/notify"
	"crmcore/pkg/domain"
)

// DefaultUpcomingDays is the window used when /reports/upcoming-tasks has no
// days parameter.
const DefaultUpcomingDays = 7

// streamDedupeSize bounds the event ids each event stream remembers.
const streamDedupeSize = 1024

func (s *Server) pipelineReport(c *gin.Context) {
	stages, err := s.svc.DealPipelineSummary(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": nonNil(stages)})
}

func (s *Server) upcomingTasksReport(c *gin.Context) {
	var q upcomingQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	days := DefaultUpcomingDays
	if q.Days != nil {
		days = *q.Days
	}
	tasks, err := s.svc.UpcomingTasks(c.Request.Context(), days)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": nonNil(tasks), "days": days})
}

func (s *Server) leadSourceReport(c *gin.Context) {
	perf, err := s.svc.LeadSourcePerformance(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": nonNil(perf)})
}

func (s *Server) campaignReport(c *gin.Context) {
	metrics, err := s.svc.CampaignMetrics(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": nonNil(metrics)})
}

func (s *Server) listAudit(c *gin.Context) {
	var q auditQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	entries, err := s.svc.ListAuditEntries(c.Request.Context(), core.AuditFilter{
		Entity:   domain.EntityType(q.Table),
		RecordID: q.RecordID,
		UserID:   q.UserID,
		Action:   domain.Action(q.Action),
		Since:    q.Since,
		Until:    q.Until,
		Limit:    q.Limit,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": nonNil(entries)})
}

func (s *Server) auditTrail(c *gin.Context) {
	entries, err := s.svc.AuditTrail(c.Request.Context(), domain.EntityType(c.Param("table")), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": nonNil(entries)})
}

func (s *Server) createExport(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	filter := core.AuditFilter{
		Entity:   domain.EntityType(req.Table),
		RecordID: req.RecordID,
		UserID:   req.UserID,
		Action:   domain.Action(req.Action),
		Limit:    req.Limit,
	}
	if req.Since != nil {
		filter.Since = *req.Since
	}
	if req.Until != nil {
		filter.Until = *req.Until
	}
	job, err := s.exports.Enqueue(c.Request.Context(), auditexport.Request{
		Filter:      filter,
		Format:      auditexport.Format(req.Format),
		RequestedBy: principalFrom(c).UserID,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Location", "/api/v1/audit/exports/"+job.ID)
	c.JSON(http.StatusAccepted, gin.H{"data": job})
}

func (s *Server) listExports(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": nonNil(s.exports.Jobs())})
}

func (s *Server) getExport(c *gin.Context) {
	job, ok := s.exports.Job(c.Param("id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "export " + c.Param("id") + " not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": job})
}

// streamEvents relays committed change events as server-sent events until the
// client disconnects. ?entity= narrows the stream to one table. Redelivered
// event ids are sent once.
func (s *Server) streamEvents(c *gin.Context) {
	seen, err := notify.NewDeduper(streamDedupeSize)
	if err != nil {
		s.fail(c, err)
		return
	}
	entity := domain.EntityType(c.Query("entity"))
	events, cancel := s.events.Subscribe(0, func(e notify.Event) bool {
		return entity == "" || e.Entity == entity
	})
	defer cancel()
	c.Header("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			if !seen.First(event) {
				return true
			}
			c.SSEvent(string(event.Action), event)
			return true
		}
	})
}

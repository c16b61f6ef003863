package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crmcore/internal/core"
	"crmcore/pkg/domain"
)

func (s *Server) leadInteractions(c *gin.Context) {
	if _, err := s.svc.GetLead(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	s.writeInteractions(c, c.Param("id"))
}

func (s *Server) listInteractions(c *gin.Context) {
	s.writeInteractions(c, c.Query("lead_id"))
}

func (s *Server) writeInteractions(c *gin.Context, leadID string) {
	items, err := s.svc.ListInteractions(c.Request.Context(), leadID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": nonNil(items)})
}

func (s *Server) createInteraction(c *gin.Context) {
	var req interactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	item, res, err := s.svc.CreateInteraction(c.Request.Context(), principalFrom(c), req.interaction())
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, item, res)
}

func (s *Server) updateInteraction(c *gin.Context) {
	var patch interactionPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		bindError(c, err)
		return
	}
	item, res, err := s.svc.UpdateInteraction(c.Request.Context(), principalFrom(c), c.Param("id"), patch.apply)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, item, res)
}

func (s *Server) deleteInteraction(c *gin.Context) {
	res, err := s.svc.DeleteInteraction(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": c.Param("id"), "deleted": true}, res)
}

func (s *Server) listTasks(c *gin.Context) {
	var q taskQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	tasks, err := s.svc.ListTasks(c.Request.Context(), core.TaskFilter{
		LeadID:     q.LeadID,
		DealID:     q.DealID,
		AssigneeID: q.AssigneeID,
		Status:     domain.TaskStatus(q.Status),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": nonNil(tasks)})
}

func (s *Server) createTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	task, res, err := s.svc.CreateTask(c.Request.Context(), principalFrom(c), req.task())
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, task, res)
}

func (s *Server) getTask(c *gin.Context) {
	task, err := s.svc.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": task})
}

func (s *Server) updateTask(c *gin.Context) {
	var patch taskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		bindError(c, err)
		return
	}
	task, res, err := s.svc.UpdateTask(c.Request.Context(), principalFrom(c), c.Param("id"), patch.apply)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, task, res)
}

func (s *Server) updateTaskStatus(c *gin.Context) {
	var req taskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	task, res, err := s.svc.UpdateTaskStatus(c.Request.Context(), principalFrom(c), c.Param("id"), domain.TaskStatus(req.Status))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, task, res)
}

func (s *Server) deleteTask(c *gin.Context) {
	res, err := s.svc.DeleteTask(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": c.Param("id"), "deleted": true}, res)
}

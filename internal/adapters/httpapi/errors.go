package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"crmcore/internal/adapters/auditexport"
	"crmcore/pkg/domain"
)

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// bindError answers a request whose body or query did not bind.
func bindError(c *gin.Context, err error) {
	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) {
		fields := make([]fieldError, 0, len(invalid))
		for _, fe := range invalid {
			fields = append(fields, fieldError{Field: fe.Field(), Rule: fe.Tag()})
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "request validation failed", "fields": fields})
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrCascade):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, auditexport.ErrQueueFull), errors.Is(err, auditexport.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}
	var blocked domain.RuleViolationError
	if errors.As(err, &blocked) {
		body["violations"] = blocked.Result.Violations
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
		body["error"] = "internal error"
	}
	c.AbortWithStatusJSON(status, body)
}

// respond writes data with any non-blocking rule violations the write raised.
func respond(c *gin.Context, status int, data any, res domain.Result) {
	body := gin.H{"data": data}
	if len(res.Violations) > 0 {
		body["violations"] = res.Violations
	}
	c.JSON(status, body)
}

// Package httpapi exposes the CRM service over JSON/HTTP using gin.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crmcore/docs/openapi"
	"crmcore/internal/adapters/auditexport"
	"crmcore/internal/core"
	"crmcore/internal/notify"
)

// Config controls authentication and cross-origin access.
type Config struct {
	// JWTSecret verifies HS256 bearer tokens. Tokens are issued elsewhere.
	JWTSecret string
	// AllowAnonymous lets requests without a bearer token through; their
	// writes are attributed to no user.
	AllowAnonymous bool
	// CORSOrigins lists allowed browser origins. Empty disables CORS headers.
	CORSOrigins []string
}

// Server owns the gin engine and the collaborators handlers call into.
type Server struct {
	cfg      Config
	svc      *core.Service
	exports  *auditexport.Worker
	events   *notify.Broker
	gatherer prometheus.Gatherer
	logger   core.Logger
	engine   *gin.Engine
}

// Option customises a Server.
type Option func(*Server)

// WithExports enables the audit export endpoints.
func WithExports(worker *auditexport.Worker) Option {
	return func(s *Server) { s.exports = worker }
}

// WithEvents enables the change event stream.
func WithEvents(broker *notify.Broker) Option {
	return func(s *Server) { s.events = broker }
}

// WithMetricsGatherer serves gatherer at /metrics.
func WithMetricsGatherer(gatherer prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = gatherer }
}

// WithLogger logs one line per request.
func WithLogger(logger core.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds the router. A JWT secret is required unless anonymous access is
// allowed.
func New(svc *core.Service, cfg Config, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, errors.New("httpapi: service required")
	}
	if cfg.JWTSecret == "" && !cfg.AllowAnonymous {
		return nil, errors.New("httpapi: jwt secret required when anonymous access is disabled")
	}
	s := &Server{cfg: cfg, svc: svc, logger: nopLogger{}}
	for _, opt := range opts {
		opt(s)
	}
	registerValidators()
	s.engine = s.routes()
	return s, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.cfg.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", s.health)
	r.GET("/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", openapi.Spec())
	})
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api/v1")
	api.Use(AuthMiddleware([]byte(s.cfg.JWTSecret), s.cfg.AllowAnonymous))
	{
		leads := api.Group("/leads")
		leads.GET("", s.listLeads)
		leads.POST("", s.createLead)
		leads.GET("/:id", s.leadDetail)
		leads.PATCH("/:id", s.updateLead)
		leads.PATCH("/:id/status", s.updateLeadStatus)
		leads.DELETE("/:id", s.deleteLead)
		leads.POST("/:id/restore", s.restoreLead)
		leads.GET("/:id/interactions", s.leadInteractions)

		deals := api.Group("/deals")
		deals.GET("", s.listDeals)
		deals.POST("", s.createDeal)
		deals.GET("/:id", s.getDeal)
		deals.PATCH("/:id", s.updateDeal)
		deals.PATCH("/:id/status", s.updateDealStatus)
		deals.DELETE("/:id", s.deleteDeal)

		interactions := api.Group("/interactions")
		interactions.GET("", s.listInteractions)
		interactions.POST("", s.createInteraction)
		interactions.PATCH("/:id", s.updateInteraction)
		interactions.DELETE("/:id", s.deleteInteraction)

		tasks := api.Group("/tasks")
		tasks.GET("", s.listTasks)
		tasks.POST("", s.createTask)
		tasks.GET("/:id", s.getTask)
		tasks.PATCH("/:id", s.updateTask)
		tasks.PATCH("/:id/status", s.updateTaskStatus)
		tasks.DELETE("/:id", s.deleteTask)

		campaigns := api.Group("/campaigns")
		campaigns.GET("", s.listCampaigns)
		campaigns.POST("", s.createCampaign)
		campaigns.GET("/:id", s.getCampaign)
		campaigns.PATCH("/:id", s.updateCampaign)
		campaigns.DELETE("/:id", s.deleteCampaign)
		campaigns.GET("/:id/leads", s.campaignLeads)
		campaigns.POST("/:id/leads/:leadID", s.addCampaignLead)
		campaigns.DELETE("/:id/leads/:leadID", s.removeCampaignLead)
		campaigns.GET("/:id/metrics", s.campaignMetric)

		sources := api.Group("/lead-sources")
		sources.GET("", s.listLeadSources)
		sources.POST("", s.createLeadSource)
		sources.DELETE("/:id", s.deleteLeadSource)

		reports := api.Group("/reports")
		reports.GET("/pipeline", s.pipelineReport)
		reports.GET("/upcoming-tasks", s.upcomingTasksReport)
		reports.GET("/lead-sources", s.leadSourceReport)
		reports.GET("/campaigns", s.campaignReport)

		audit := api.Group("/audit")
		audit.GET("", s.listAudit)
		if s.exports != nil {
			audit.POST("/exports", s.createExport)
			audit.GET("/exports", s.listExports)
			audit.GET("/exports/:id", s.getExport)
		}
		audit.GET("/:table/:id", s.auditTrail)

		if s.events != nil {
			api.GET("/events", s.streamEvents)
		}
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(started),
		)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

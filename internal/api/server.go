// Package api exposes the read-only status HTTP API: the latest normalized
// snapshot per provider, provider capabilities, health and Prometheus
// metrics. It never serves credential material; errors cross the boundary
// already redacted.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/usagedeck/usagedeck/internal/config"
	"github.com/usagedeck/usagedeck/internal/logging"
	"github.com/usagedeck/usagedeck/internal/metrics"
	"github.com/usagedeck/usagedeck/internal/monitor"
	"github.com/usagedeck/usagedeck/internal/provider"
	"github.com/usagedeck/usagedeck/internal/redact"
	"github.com/usagedeck/usagedeck/internal/usage"
)

// StatusSource provides the latest per-provider results, implemented by the
// monitor.
type StatusSource interface {
	Latest(provider string) (monitor.Result, bool)
	LatestAll(providers []config.ProviderConfig) []monitor.Result
}

// Server represents the HTTP status API server
type Server struct {
	router    *gin.Engine
	providers []config.ProviderConfig
	source    StatusSource
	metrics   *metrics.Metrics
	logger    *logging.Logger
	redactor  *redact.Redactor
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// NewServer creates a new status API server
func NewServer(providers []config.ProviderConfig, source StatusSource, m *metrics.Metrics, logger *logging.Logger, redactor *redact.Redactor) *Server {
	gin.SetMode(gin.ReleaseMode)

	if m == nil {
		m = metrics.NewMetrics("usagedeck")
	}
	if logger == nil {
		logger = logging.NewLogger()
	}
	if redactor == nil {
		redactor = redact.New()
	}

	server := &Server{
		router:    gin.New(),
		providers: providers,
		source:    source,
		metrics:   m,
		logger:    logger,
		redactor:  redactor,
	}
	server.router.HandleMethodNotAllowed = true
	server.router.Use(gin.Recovery())
	server.router.Use(metrics.Middleware(m, logger))
	server.router.Use(loggingMiddleware(logger))

	server.setupRoutes()
	return server
}

// loggingMiddleware provides structured logging for all requests
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = logging.NewCorrelationID()
		}
		ctx := logging.ContextWithCorrelation(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		logger.InfoWithContext(ctx, "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_seconds", time.Since(start).Seconds(),
		)
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/status", s.handleStatus)
		v1.GET("/status/:provider", s.handleProviderStatus)
		v1.GET("/providers", s.handleProviders)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// providerStatus is the wire form of one provider's latest state.
type providerStatus struct {
	Provider string          `json:"provider"`
	Snapshot *usage.Snapshot `json:"snapshot,omitempty"`
	Error    string          `json:"error,omitempty"`
	Attempts []attemptStatus `json:"attempts,omitempty"`
}

type attemptStatus struct {
	Source  string `json:"source"`
	Outcome string `json:"outcome"`
}

func (s *Server) toStatus(res monitor.Result) providerStatus {
	status := providerStatus{
		Provider: res.Provider,
		Snapshot: res.Snapshot,
	}
	if res.Err != nil {
		status.Error = s.redactor.RedactError(res.Err)
	}
	for _, a := range res.Attempts {
		status.Attempts = append(status.Attempts, attemptStatus{
			Source:  string(a.Source),
			Outcome: string(a.Outcome),
		})
	}
	return status
}

func (s *Server) handleStatus(c *gin.Context) {
	results := s.source.LatestAll(s.providers)
	out := make([]providerStatus, 0, len(results))
	for _, res := range results {
		out = append(out, s.toStatus(res))
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

func (s *Server) handleProviderStatus(c *gin.Context) {
	key := c.Param("provider")
	res, ok := s.source.Latest(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data for provider " + key})
		return
	}
	c.JSON(http.StatusOK, s.toStatus(res))
}

// handleProviders lists registered adapters and their capabilities.
func (s *Server) handleProviders(c *gin.Context) {
	type providerInfo struct {
		Key         string   `json:"key"`
		DisplayName string   `json:"display_name"`
		Sources     []string `json:"sources"`
	}

	out := make([]providerInfo, 0)
	for _, p := range provider.All() {
		info := providerInfo{
			Key:         p.Identity().Key,
			DisplayName: p.Identity().DisplayName,
		}
		for _, src := range p.Sources() {
			info.Sources = append(info.Sources, string(src))
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

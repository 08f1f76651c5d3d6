package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/shelfscan/aggregate"
	"github.com/use-agent/shelfscan/api/handler"
	"github.com/use-agent/shelfscan/api/middleware"
	"github.com/use-agent/shelfscan/audit"
	"github.com/use-agent/shelfscan/config"
	"github.com/use-agent/shelfscan/metrics"
	"github.com/use-agent/shelfscan/models"
	"github.com/use-agent/shelfscan/webhook"
)

// Deps are the components served by the router. Store, Notifier and Pool may
// be nil.
type Deps struct {
	Audit      audit.AuditFunc
	Runner     *audit.Runner
	Aggregator *aggregate.Aggregator
	Store      handler.RecordStore
	Notifier   *webhook.Notifier
	Pool       handler.PoolReporter
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics stay outside auth so probes and scrapers always work.
func NewRouter(d Deps, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/metrics", metrics.MetricsHandler())

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(d.Pool, d.Store != nil, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/audit", handler.Audit(d.Audit, d.Store))

	protected.POST("/batch", handler.PostBatch(d.Runner, d.Store, d.Notifier, cfg.Audit.MaxBatchSize))
	protected.GET("/batch/:id", handler.GetBatch())

	mode := models.ModeDomain
	if cfg.Aggregate.CategoryWeighted {
		mode = models.ModeCategoryWeighted
	}
	protected.POST("/aggregate", handler.Aggregate(d.Aggregator, d.Store, mode))

	if d.Store != nil {
		protected.GET("/records", handler.ListRecords(d.Store))
		protected.GET("/records/lookup", handler.GetRecord(d.Store))
		protected.GET("/domains", handler.ListDomains(d.Store))
		protected.GET("/trends", handler.RatingTrends(d.Store))
	}

	return r
}

package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/shelfscan/models"
)

// PoolReporter exposes render pool statistics. *scraper.Scraper implements it.
type PoolReporter interface {
	Stats() models.PoolStats
}

// Health returns a handler for GET /api/v1/health.
//
// Reports pool utilisation and degrades status when > 80% of pages are
// active. pool is nil when the render fallback is disabled.
func Health(pool PoolReporter, storeEnabled bool, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := models.HealthResponse{
			Status:  "healthy",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Store:   storeEnabled,
			Version: "0.1.0",
		}
		if pool != nil {
			stats := pool.Stats()
			resp.PoolStats = &stats
			if stats.MaxPages > 0 && stats.ActivePages > int(float64(stats.MaxPages)*0.8) {
				resp.Status = "degraded"
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/siteforge/siteforge/capture"
	"github.com/siteforge/siteforge/models"
)

// Health returns a handler for GET /health.
//
// Reports session pool utilisation and degrades status when > 80% of
// sessions are active.
func Health(cap *capture.Capturer, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := cap.Stats()

		status := "healthy"
		if stats.MaxSessions > 0 && stats.ActiveSessions > int(float64(stats.MaxSessions)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:   status,
			Uptime:   time.Since(startTime).Round(time.Second).String(),
			Sessions: stats,
			Version:  "0.1.0",
		})
	}
}

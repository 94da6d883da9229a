package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/siteforge/siteforge/api/handler"
	"github.com/siteforge/siteforge/api/middleware"
	"github.com/siteforge/siteforge/capture"
	"github.com/siteforge/siteforge/config"
	"github.com/siteforge/siteforge/detect"
	"github.com/siteforge/siteforge/pipeline"
	"github.com/siteforge/siteforge/store"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if keys configured) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(cap *capture.Capturer, s *store.Store, runner *pipeline.Runner, det *detect.Detector, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	// Health — no auth required.
	r.GET("/health", handler.Health(cap, startTime))

	protected := r.Group("/api")
	if len(cfg.Auth.APIKeys) > 0 {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Clone jobs
	protected.POST("/capture", handler.Capture(s, runner))

	// Project records
	protected.GET("/projects", handler.ListProjects(s))
	protected.GET("/projects/:id", handler.GetProject(s))
	protected.POST("/projects/:id/archive", handler.ArchiveProject(s))
	protected.POST("/projects/:id/unarchive", handler.UnarchiveProject(s))
	protected.POST("/projects/:id/cancel", handler.CancelJob(s, runner))
	protected.DELETE("/projects/:id", handler.DeleteProject(s))

	// Targeted probes
	protected.POST("/detect-wordpress", handler.DetectWordPress(cap, det))
	protected.POST("/get-style", handler.GetStyle(cap))
	protected.POST("/is-visible", handler.IsVisible(cap))

	return r
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/siteforge/siteforge/models"
	"github.com/siteforge/siteforge/pipeline"
	"github.com/siteforge/siteforge/store"
)

// Capture returns a handler for POST /api/capture.
//
// The call is asynchronous: it validates the request, creates the project
// record, launches the clone job and returns 202 immediately. Callers poll
// GET /api/projects/:id for progress and results.
func Capture(s *store.Store, runner *pipeline.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CaptureRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		p := s.Create(req.URL, req.Options())
		if err := runner.Submit(p.ID); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, p)
	}
}

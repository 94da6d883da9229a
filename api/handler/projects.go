package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/siteforge/siteforge/models"
	"github.com/siteforge/siteforge/pipeline"
	"github.com/siteforge/siteforge/store"
)

// ListProjects returns a handler for GET /api/projects. Deleted projects
// are excluded; archived projects are included with their flag set.
func ListProjects(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"projects": s.List()})
	}
}

// GetProject returns a handler for GET /api/projects/:id, the polling
// surface for running jobs.
func GetProject(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := s.Get(c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// ArchiveProject returns a handler for POST /api/projects/:id/archive.
func ArchiveProject(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.Archive(c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"archived": true})
	}
}

// UnarchiveProject returns a handler for POST /api/projects/:id/unarchive.
func UnarchiveProject(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.Unarchive(c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"archived": false})
	}
}

// DeleteProject returns a handler for DELETE /api/projects/:id. The store
// rejects deletion while a job is running; callers cancel first.
func DeleteProject(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.Delete(c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}

// CancelJob returns a handler for POST /api/projects/:id/cancel. Stops the
// running clone job; the project ends up failed with a cancelled reason.
func CancelJob(s *store.Store, runner *pipeline.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := s.Get(c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		if !runner.Cancel(c.Param("id")) {
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   models.ErrCodeConflict,
				Message: "no active job for this project",
			})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"cancelling": true})
	}
}

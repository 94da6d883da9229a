package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/siteforge/siteforge/capture"
	"github.com/siteforge/siteforge/models"
)

// GetStyle returns a handler for POST /api/get-style. Navigates a pooled
// browser session to the target and reads the computed style of the first
// element matching the selector.
func GetStyle(cap *capture.Capturer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.StyleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		styles, err := cap.ComputedStyle(c.Request.Context(), req.URL, req.Selector)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.StyleResponse{
			URL:      req.URL,
			Selector: req.Selector,
			Styles:   styles,
		})
	}
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/siteforge/siteforge/capture"
	"github.com/siteforge/siteforge/models"
)

// IsVisible returns a handler for POST /api/is-visible. Reports whether
// the first element matching the selector renders visibly, with its
// bounding box when it does.
func IsVisible(cap *capture.Capturer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.VisibleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		visible, box, err := cap.IsVisible(c.Request.Context(), req.URL, req.Selector)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.VisibleResponse{
			URL:      req.URL,
			Selector: req.Selector,
			Visible:  visible,
			Box:      box,
		})
	}
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/siteforge/siteforge/capture"
	"github.com/siteforge/siteforge/detect"
	"github.com/siteforge/siteforge/models"
)

// DetectWordPress returns a handler for POST /api/detect-wordpress.
//
// A single static fetch feeds the detector; no browser session is spent.
// Sites that only reveal their stack after JS rendering should go through
// a full capture instead.
func DetectWordPress(cap *capture.Capturer, det *detect.Detector) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.DetectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		raw, err := cap.FetchRaw(c.Request.Context(), req.URL)
		if err != nil {
			respondError(c, err)
			return
		}

		profile := det.DetectWordPress(raw.Headers, string(raw.Body))
		c.JSON(http.StatusOK, models.DetectResponse{
			URL:          req.URL,
			IsWordPress:  profile.IsWordPress,
			Version:      profile.Version,
			Theme:        profile.Theme,
			Plugins:      profile.Plugins,
			Technologies: profile.Technologies,
		})
	}
}

package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/siteforge/siteforge/models"
	"github.com/siteforge/siteforge/store"
)

// respondError maps an error to the right HTTP status code and writes the
// structured JSON error body.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   models.ErrCodeNotFound,
			Message: "project not found",
		})
		return
	case errors.Is(err, store.ErrActiveJob):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   models.ErrCodeConflict,
			Message: "a job is active for this project",
		})
		return
	case errors.Is(err, store.ErrDeleted):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   models.ErrCodeNotFound,
			Message: "project is deleted",
		})
		return
	}

	var ce *models.CloneError
	if !errors.As(err, &ce) {
		ce = models.NewCloneError(models.ErrCodeInternal, err.Error(), err)
	}
	c.JSON(statusFor(ce.Code), models.ErrorResponse{
		Error:   ce.Code,
		Message: ce.Message,
	})
}

// statusFor translates error taxonomy codes to HTTP status codes.
func statusFor(code string) int {
	switch code {
	case models.ErrCodeValidation:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeConflict:
		return http.StatusConflict // 409
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeNetwork:
		return http.StatusBadGateway // 502
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	default:
		return http.StatusInternalServerError // 500
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   models.ErrCodeValidation,
		Message: err.Error(),
	})
}

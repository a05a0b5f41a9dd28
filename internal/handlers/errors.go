package handlers

import (
	"errors"
	"net/http"

	"github.com/ArowuTest/uptime-rewards-backend/internal/services"
	"github.com/ArowuTest/uptime-rewards-backend/internal/utils"
	"github.com/gin-gonic/gin"
)

// errorStatus maps engine error kinds onto HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrClockSkew):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError records err for the request logger and writes the error body
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	c.JSON(status, gin.H{"error": message})
}

// retryUnavailable retries fn while storage reports itself unavailable
func retryUnavailable(c *gin.Context, policy utils.Backoff, fn func() error) error {
	return utils.Retry(c.Request.Context(), policy, func(err error) bool {
		return errors.Is(err, services.ErrStorageUnavailable)
	}, fn)
}

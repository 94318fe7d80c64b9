package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mfriedrich/ocrtrack/internal/domain"
)

// HealthHandler handles health check endpoints
type HealthHandler struct{}

// NewHealthHandler creates a new health handler
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Health returns the health status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// statusFor maps domain errors onto HTTP status codes. Upstream trouble is a
// gateway problem, not a client one.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrRemoteUnavailable), errors.Is(err, domain.ErrAuthFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

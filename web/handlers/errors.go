package handlers

import (
	"net/http"

	apperrors "answer-engine/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondWithError logs the technical error and returns a user-friendly message
func respondWithError(c *gin.Context, statusCode int, technicalError error, userMessage string, logger *zap.Logger, fields ...zap.Field) {
	if logger != nil {
		fields = append(fields, zap.Error(technicalError))
		logger.Error("Request failed", fields...)
	}
	c.JSON(statusCode, gin.H{"error": userMessage})
}

// respondWithClientError returns a client error (no logging needed for validation errors)
func respondWithClientError(c *gin.Context, statusCode int, userMessage string) {
	c.JSON(statusCode, gin.H{"error": userMessage})
}

// statusFromError maps domain sentinel errors to HTTP status codes.
func statusFromError(err error) int {
	switch {
	case apperrors.IsInvalidInput(err):
		return http.StatusBadRequest
	case apperrors.IsNotFound(err):
		return http.StatusNotFound
	case apperrors.IsForbidden(err):
		return http.StatusForbidden
	case apperrors.IsUsageLimit(err):
		return http.StatusTooManyRequests
	case apperrors.IsGenerationFailure(err):
		return http.StatusBadGateway
	case apperrors.IsServiceUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// isClientError reports whether the mapped status is the caller's fault and
// needs no server-side error logging.
func isClientError(status int) bool {
	return status >= 400 && status < 500
}

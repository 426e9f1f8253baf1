package handler

import (
	"errors"
	"net/http"

	"backoffice/internal/bubble"
	"backoffice/internal/logger"
	"backoffice/internal/repository"
	"backoffice/internal/service"
	"backoffice/internal/storage"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Roles accepted by the write and job routes. Read routes accept any valid token.
var (
	writeRoles = []string{"admin", "manager", "finance"}
	jobRoles   = []string{"admin", "manager"}
)

// statusFor maps service sentinels to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, storage.ErrNotFound), errors.Is(err, bubble.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrUnknownEntity),
		errors.Is(err, storage.ErrInvalidName), errors.Is(err, bubble.ErrEmptyIDList), errors.Is(err, bubble.ErrMissingIDColumn):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAnalyzerUnavailable), errors.Is(err, bubble.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, bubble.ErrUnauthorized):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context(), nil).Error("Request failed", zap.Error(err))
	}
	c.JSON(code, response.Error(code, err.Error()))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, msg))
}

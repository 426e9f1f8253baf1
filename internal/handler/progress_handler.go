package handler

import (
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/progress"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProgressHandler upgrades /ws connections that follow one job session
type ProgressHandler struct {
	hub    *progress.Hub
	auth   *middleware.Auth
	logger *zap.Logger
}

func NewProgressHandler(hub *progress.Hub, auth *middleware.Auth, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{hub: hub, auth: auth, logger: logger.Named("ws")}
}

func (h *ProgressHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ws", h.ServeWS)
}

// ServeWS authenticates with the token query parameter since browsers cannot set headers on websocket requests
func (h *ProgressHandler) ServeWS(c *gin.Context) {
	session := c.Query("session")
	if session == "" {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	if _, err := h.auth.ParseToken(c.Query("token")); err != nil {
		h.logger.Debug("WebSocket connection rejected", zap.Error(err))
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	if err := h.hub.ServeWS(c.Writer, c.Request, session); err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
	}
}

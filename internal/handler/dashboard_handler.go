package handler

import (
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/service"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type DashboardHandler struct {
	dashboardService service.DashboardService
	auth             *middleware.Auth
}

func NewDashboardHandler(dashboardService service.DashboardService, auth *middleware.Auth) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboardService, auth: auth}
}

func (h *DashboardHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/dashboard", h.auth.RequireRole(), h.GetDashboard)
}

// @Summary      Get dashboard summary
// @Description  Invoice counts and totals by status, submitted queue counts, verified payments by month and the last run of each job
// @Tags         dashboard
// @Produce      json
// @Success      200 {object} response.Response{data=model.DashboardSummary}
// @Failure      401 {object} response.Response "Unauthorized"
// @Failure      500 {object} response.Response "Internal server error"
// @Security     BearerAuth
// @Router       /api/dashboard [get]
func (h *DashboardHandler) GetDashboard(c *gin.Context) {
	summary, err := h.dashboardService.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, summary))
}

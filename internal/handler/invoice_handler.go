package handler

import (
	"context"
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type InvoiceHandler struct {
	invoiceService service.InvoiceService
	statusService  service.InvoiceStatusService
	auditService   service.AuditService
	auth           *middleware.Auth
	jobs           *JobRunner
}

func NewInvoiceHandler(
	invoiceService service.InvoiceService,
	statusService service.InvoiceStatusService,
	auditService service.AuditService,
	auth *middleware.Auth,
	jobs *JobRunner,
) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
		statusService:  statusService,
		auditService:   auditService,
		auth:           auth,
		jobs:           jobs,
	}
}

func (h *InvoiceHandler) RegisterRoutes(router *gin.RouterGroup) {
	invoices := router.Group("/api/invoices")
	{
		invoices.GET("", h.auth.RequireRole(), h.ListInvoices)
		invoices.POST("/recompute-status", h.auth.RequireRole(jobRoles...), h.RecomputeStatuses)
		invoices.POST("/recompute-percentages", h.auth.RequireRole(jobRoles...), h.RecomputePercentages)
		invoices.GET("/:id", h.auth.RequireRole(), h.GetInvoice)
		invoices.GET("/:id/history", h.auth.RequireRole(), h.GetInvoiceHistory)
		invoices.POST("/:id/payments", h.auth.RequireRole(writeRoles...), h.LinkPayment)
		invoices.DELETE("/:id", h.auth.RequireRole(writeRoles...), h.DeleteInvoice)
	}
}

// ListInvoices returns a paginated list of invoices
// @Summary      List invoices
// @Description  Lists invoices newest first. Deleted invoices only appear when status=deleted.
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        status    query     string  false  "Filter by status (draft, DEPOSIT, FULLY PAID, SEDA APPROVED, deleted)"
// @Param        agent     query     string  false  "Filter by linked agent id"
// @Param        customer  query     string  false  "Filter by linked customer id"
// @Param        search    query     string  false  "Partial invoice number"
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        limit     query     int     false  "Number of items per page (default 20)"
// @Success      200       {object}  response.Response{data=object}
// @Failure      500       {object}  response.Response
// @Router       /api/invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	p := pagination.Parse(c)
	filter := service.InvoiceFilter{
		Status:   c.Query("status"),
		Agent:    c.Query("agent"),
		Customer: c.Query("customer"),
		Search:   c.Query("search"),
		Page:     p.Page,
		Limit:    p.Limit,
	}

	invoices, total, err := h.invoiceService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Body("invoices", invoices, total)))
}

// GetInvoice returns one invoice with items, linked payments and SEDA summary
// @Summary      Get invoice
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice bubble id"
// @Success      200  {object}  response.Response{data=service.InvoiceDetailResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	detail, err := h.invoiceService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, detail))
}

// GetInvoiceHistory returns the audit trail of an invoice
// @Summary      Invoice history
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice bubble id"
// @Success      200  {object}  response.Response{data=service.HistoryResponse}
// @Router       /api/invoices/{id}/history [get]
func (h *InvoiceHandler) GetInvoiceHistory(c *gin.Context) {
	history, err := h.auditService.History(c.Request.Context(), model.EntityInvoice, c.Param("id"), "")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, history))
}

// LinkPayment appends a payment to the invoice and recomputes its status
// @Summary      Link payment to invoice
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                      true  "Invoice bubble id"
// @Param        payload  body      service.LinkPaymentRequest  true  "Payment to link"
// @Success      200      {object}  response.Response{data=service.InvoiceDetailResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/invoices/{id}/payments [post]
func (h *InvoiceHandler) LinkPayment(c *gin.Context) {
	var req service.LinkPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	detail, err := h.invoiceService.LinkPayment(c.Request.Context(), c.Param("id"), req.PaymentID, middleware.Actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, detail))
}

// DeleteInvoice soft-deletes an invoice
// @Summary      Delete invoice
// @Description  Marks the invoice deleted. It is then left out of lists and recomputes.
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice bubble id"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/invoices/{id} [delete]
func (h *InvoiceHandler) DeleteInvoice(c *gin.Context) {
	inv, err := h.invoiceService.SoftDelete(c.Request.Context(), c.Param("id"), middleware.Actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, inv))
}

// RecomputeStatuses re-derives every invoice status from its linked payments
// @Summary      Recompute invoice statuses
// @Tags         jobs
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      JobRequest  false  "Session id and async flag"
// @Success      200      {object}  response.JobResult{results=service.RecomputeResult}
// @Success      202      {object}  response.JobResult
// @Failure      500      {object}  response.JobResult
// @Router       /api/invoices/recompute-status [post]
func (h *InvoiceHandler) RecomputeStatuses(c *gin.Context) {
	var req JobRequest
	if err := bindOptional(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, response.JobFailure(err))
		return
	}
	actor := middleware.Actor(c)
	h.jobs.Run(c, "recompute_status", req.options(), req, func(ctx context.Context) (interface{}, error) {
		return h.statusService.RecomputeStatuses(ctx, actor)
	})
}

// RecomputePercentages rewrites the paid percentage of every invoice
// @Summary      Recompute payment percentages
// @Tags         jobs
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      JobRequest  false  "Session id and async flag"
// @Success      200      {object}  response.JobResult{results=service.PercentResult}
// @Success      202      {object}  response.JobResult
// @Failure      500      {object}  response.JobResult
// @Router       /api/invoices/recompute-percentages [post]
func (h *InvoiceHandler) RecomputePercentages(c *gin.Context) {
	var req JobRequest
	if err := bindOptional(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, response.JobFailure(err))
		return
	}
	h.jobs.Run(c, "recompute_percentages", req.options(), req, func(ctx context.Context) (interface{}, error) {
		return h.statusService.RecomputePercentages(ctx)
	})
}

package handler

import (
	"context"
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	paymentService service.PaymentService
	auth           *middleware.Auth
	jobs           *JobRunner
}

func NewPaymentHandler(paymentService service.PaymentService, auth *middleware.Auth, jobs *JobRunner) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService, auth: auth, jobs: jobs}
}

func (h *PaymentHandler) RegisterRoutes(router *gin.RouterGroup) {
	payments := router.Group("/api/payments")
	{
		payments.POST("/reconcile", h.auth.RequireRole(jobRoles...), h.Reconcile)

		submitted := payments.Group("/submitted")
		submitted.GET("", h.auth.RequireRole(), h.ListSubmitted)
		submitted.GET("/:id", h.auth.RequireRole(), h.GetSubmitted)
		submitted.GET("/:id/history", h.auth.RequireRole(), h.history(service.SourceSubmitted))
		submitted.PATCH("/:id", h.auth.RequireRole(writeRoles...), h.UpdateSubmitted)
		submitted.POST("/:id/verify", h.auth.RequireRole(writeRoles...), h.VerifyPayment)
		submitted.POST("/:id/delete", h.auth.RequireRole(writeRoles...), h.DeleteSubmitted)
		submitted.POST("/:id/restore", h.auth.RequireRole(writeRoles...), h.RestoreSubmitted)
		submitted.POST("/:id/analyze", h.auth.RequireRole(writeRoles...), h.AnalyzeReceipt)

		verified := payments.Group("/verified")
		verified.GET("", h.auth.RequireRole(), h.ListVerified)
		verified.GET("/:id", h.auth.RequireRole(), h.GetVerified)
		verified.GET("/:id/history", h.auth.RequireRole(), h.history(service.SourceVerified))
	}
}

func paymentFilter(c *gin.Context, p pagination.Params) service.PaymentFilter {
	return service.PaymentFilter{
		Status:  c.Query("status"),
		Agent:   c.Query("agent"),
		Invoice: c.Query("invoice"),
		Page:    p.Page,
		Limit:   p.Limit,
	}
}

// ListSubmitted returns the submitted payment queue
// @Summary      List submitted payments
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        status   query     string  false  "pending, verified or deleted"
// @Param        agent    query     string  false  "Filter by linked agent id"
// @Param        invoice  query     string  false  "Filter by linked invoice id"
// @Param        page     query     int     false  "Page number (default 1)"
// @Param        limit    query     int     false  "Number of items per page (default 20)"
// @Success      200      {object}  response.Response{data=object}
// @Router       /api/payments/submitted [get]
func (h *PaymentHandler) ListSubmitted(c *gin.Context) {
	p := pagination.Parse(c)
	items, total, err := h.paymentService.ListSubmitted(c.Request.Context(), paymentFilter(c, p))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Body("payments", items, total)))
}

// ListVerified returns verified payments
// @Summary      List verified payments
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        agent    query     string  false  "Filter by linked agent id"
// @Param        invoice  query     string  false  "Filter by linked invoice id"
// @Param        page     query     int     false  "Page number (default 1)"
// @Param        limit    query     int     false  "Number of items per page (default 20)"
// @Success      200      {object}  response.Response{data=object}
// @Router       /api/payments/verified [get]
func (h *PaymentHandler) ListVerified(c *gin.Context) {
	p := pagination.Parse(c)
	items, total, err := h.paymentService.ListVerified(c.Request.Context(), paymentFilter(c, p))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Body("payments", items, total)))
}

// GetSubmitted returns one submitted payment
// @Summary      Get submitted payment
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Submitted payment bubble id"
// @Success      200  {object}  response.Response{data=service.PaymentResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/payments/submitted/{id} [get]
func (h *PaymentHandler) GetSubmitted(c *gin.Context) {
	res, err := h.paymentService.GetSubmitted(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// GetVerified returns one verified payment
// @Summary      Get verified payment
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Payment bubble id"
// @Success      200  {object}  response.Response{data=service.PaymentResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/payments/verified/{id} [get]
func (h *PaymentHandler) GetVerified(c *gin.Context) {
	res, err := h.paymentService.GetVerified(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// VerifyPayment promotes a pending submission to a verified payment
// @Summary      Verify submitted payment
// @Description  Copies the submission into payments, links it to its invoice and recomputes the invoice status
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Submitted payment bubble id"
// @Success      200  {object}  response.Response{data=service.PaymentResponse}
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/payments/submitted/{id}/verify [post]
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	res, err := h.paymentService.VerifyPayment(c.Request.Context(), c.Param("id"), middleware.Actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// DeleteSubmitted soft-deletes a pending submission
// @Summary      Delete submitted payment
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Submitted payment bubble id"
// @Success      200  {object}  response.Response{data=service.PaymentResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/payments/submitted/{id}/delete [post]
func (h *PaymentHandler) DeleteSubmitted(c *gin.Context) {
	res, err := h.paymentService.DeleteSubmitted(c.Request.Context(), c.Param("id"), middleware.Actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// RestoreSubmitted moves a deleted submission back to pending
// @Summary      Restore submitted payment
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Submitted payment bubble id"
// @Success      200  {object}  response.Response{data=service.PaymentResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/payments/submitted/{id}/restore [post]
func (h *PaymentHandler) RestoreSubmitted(c *gin.Context) {
	res, err := h.paymentService.RestoreSubmitted(c.Request.Context(), c.Param("id"), middleware.Actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// UpdateSubmitted edits fields of a pending submission
// @Summary      Update submitted payment
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                          true  "Submitted payment bubble id"
// @Param        payload  body      service.UpdateSubmittedRequest  true  "Changed fields only"
// @Success      200      {object}  response.Response{data=service.PaymentResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/payments/submitted/{id} [patch]
func (h *PaymentHandler) UpdateSubmitted(c *gin.Context) {
	var req service.UpdateSubmittedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	res, err := h.paymentService.UpdateSubmitted(c.Request.Context(), c.Param("id"), req, middleware.Actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// AnalyzeReceipt asks the receipt classifier for a guess of the submission's attachment
// @Summary      Analyze receipt
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Submitted payment bubble id"
// @Success      200  {object}  response.Response{data=service.ReceiptGuess}
// @Failure      503  {object}  response.Response
// @Router       /api/payments/submitted/{id}/analyze [post]
func (h *PaymentHandler) AnalyzeReceipt(c *gin.Context) {
	guess, err := h.paymentService.AnalyzeReceipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, guess))
}

// history serves the audit trail of a submitted or verified payment
// @Summary      Payment history
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        kind  path      string  true  "submitted or verified"
// @Param        id    path      string  true  "Payment bubble id"
// @Success      200   {object}  response.Response{data=service.HistoryResponse}
// @Failure      404   {object}  response.Response
// @Router       /api/payments/{kind}/{id}/history [get]
func (h *PaymentHandler) history(source string) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := h.paymentService.History(c.Request.Context(), source, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
	}
}

// Reconcile soft-deletes pending submissions already covered by a verified payment
// @Summary      Auto-reconcile submitted payments
// @Tags         jobs
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      JobRequest  false  "Session id and async flag"
// @Success      200      {object}  response.JobResult{results=service.ReconcileResult}
// @Success      202      {object}  response.JobResult
// @Failure      500      {object}  response.JobResult
// @Router       /api/payments/reconcile [post]
func (h *PaymentHandler) Reconcile(c *gin.Context) {
	var req JobRequest
	if err := bindOptional(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, response.JobFailure(err))
		return
	}
	actor := middleware.Actor(c)
	h.jobs.Run(c, "auto_reconcile", req.options(), req, func(ctx context.Context) (interface{}, error) {
		return h.paymentService.AutoReconcile(ctx, actor)
	})
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- DTOs ---

// Payment sources as used in routes and history lookups
const (
	SourceVerified  = "verified"
	SourceSubmitted = "submitted"
)

type PaymentFilter struct {
	Status  string // submitted queue only
	Agent   string
	Invoice string
	Page    int
	Limit   int
}

type PaymentResponse struct {
	ID             uint     `json:"id"`
	BubbleID       string   `json:"bubble_id"`
	Source         string   `json:"source"`
	Status         string   `json:"status"`
	Amount         *string  `json:"amount"`
	PaymentDate    *string  `json:"payment_date"`
	PaymentMethod  string   `json:"payment_method"`
	EppType        string   `json:"epp_type"`
	IssuerBank     string   `json:"issuer_bank"`
	EppMonth       *int     `json:"epp_month"`
	EppCost        *string  `json:"epp_cost"`
	LinkedInvoice  string   `json:"linked_invoice"`
	LinkedAgent    string   `json:"linked_agent"`
	LinkedCustomer string   `json:"linked_customer"`
	Attachment     []string `json:"attachment"`
	Remark         string   `json:"remark"`
	VerifiedBy     string   `json:"verified_by,omitempty"`
	VerifiedAt     *string  `json:"verified_at,omitempty"`
	CreatedDate    *string  `json:"created_date"`
	ModifiedDate   *string  `json:"modified_date"`
}

// UpdateSubmittedRequest edits a queued submission. Nil fields are left alone.
type UpdateSubmittedRequest struct {
	Amount         *string `json:"amount"`
	PaymentDate    *string `json:"payment_date"` // YYYY-MM-DD or RFC3339
	PaymentMethod  *string `json:"payment_method"`
	EppType        *string `json:"epp_type"`
	IssuerBank     *string `json:"issuer_bank"`
	EppMonth       *int    `json:"epp_month"`
	EppCost        *string `json:"epp_cost"`
	LinkedInvoice  *string `json:"linked_invoice"`
	LinkedAgent    *string `json:"linked_agent"`
	LinkedCustomer *string `json:"linked_customer"`
	Remark         *string `json:"remark"`
}

// ReconcileResult is returned by the auto-reconcile job
type ReconcileResult struct {
	Scanned int `json:"scanned"`
	Matched int `json:"matched"`
}

// --- Interface ---

type PaymentService interface {
	ListSubmitted(ctx context.Context, filter PaymentFilter) ([]PaymentResponse, int64, error)
	ListVerified(ctx context.Context, filter PaymentFilter) ([]PaymentResponse, int64, error)
	GetSubmitted(ctx context.Context, bubbleID string) (PaymentResponse, error)
	GetVerified(ctx context.Context, bubbleID string) (PaymentResponse, error)
	VerifyPayment(ctx context.Context, bubbleID, actor string) (PaymentResponse, error)
	DeleteSubmitted(ctx context.Context, bubbleID, actor string) (PaymentResponse, error)
	RestoreSubmitted(ctx context.Context, bubbleID, actor string) (PaymentResponse, error)
	UpdateSubmitted(ctx context.Context, bubbleID string, req UpdateSubmittedRequest, actor string) (PaymentResponse, error)
	History(ctx context.Context, source, bubbleID string) (HistoryResponse, error)
	AutoReconcile(ctx context.Context, actor string) (ReconcileResult, error)
	AnalyzeReceipt(ctx context.Context, bubbleID string) (ReceiptGuess, error)
}

type paymentService struct {
	paymentRepo   repository.PaymentRepository
	submittedRepo repository.SubmittedPaymentRepository
	invoiceRepo   repository.InvoiceRepository
	auditRepo     repository.AuditRepository
	statusSvc     InvoiceStatusService
	auditSvc      AuditService
	analyzer      ReceiptAnalyzer
	txManager     repository.TransactionManager
	loc           *time.Location
	logger        *zap.Logger
}

func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	submittedRepo repository.SubmittedPaymentRepository,
	invoiceRepo repository.InvoiceRepository,
	auditRepo repository.AuditRepository,
	statusSvc InvoiceStatusService,
	auditSvc AuditService,
	analyzer ReceiptAnalyzer,
	txManager repository.TransactionManager,
	loc *time.Location,
	logger *zap.Logger,
) PaymentService {
	if loc == nil {
		loc = time.UTC
	}
	return &paymentService{
		paymentRepo:   paymentRepo,
		submittedRepo: submittedRepo,
		invoiceRepo:   invoiceRepo,
		auditRepo:     auditRepo,
		statusSvc:     statusSvc,
		auditSvc:      auditSvc,
		analyzer:      analyzer,
		txManager:     txManager,
		loc:           loc,
		logger:        logger.Named("payments"),
	}
}

// --- Implementation ---

func (s *paymentService) ListSubmitted(ctx context.Context, filter PaymentFilter) ([]PaymentResponse, int64, error) {
	rows, total, err := s.submittedRepo.List(ctx, repository.PaymentListFilter(filter))
	if err != nil {
		return nil, 0, err
	}
	res := make([]PaymentResponse, 0, len(rows))
	for i := range rows {
		res = append(res, toSubmittedResponse(&rows[i]))
	}
	return res, total, nil
}

func (s *paymentService) ListVerified(ctx context.Context, filter PaymentFilter) ([]PaymentResponse, int64, error) {
	rows, total, err := s.paymentRepo.List(ctx, repository.PaymentListFilter(filter))
	if err != nil {
		return nil, 0, err
	}
	res := make([]PaymentResponse, 0, len(rows))
	for i := range rows {
		res = append(res, toPaymentResponse(&rows[i]))
	}
	return res, total, nil
}

func (s *paymentService) GetSubmitted(ctx context.Context, bubbleID string) (PaymentResponse, error) {
	sp, err := s.submittedRepo.FindByBubbleID(ctx, bubbleID)
	if err != nil {
		return PaymentResponse{}, err
	}
	return toSubmittedResponse(sp), nil
}

func (s *paymentService) GetVerified(ctx context.Context, bubbleID string) (PaymentResponse, error) {
	p, err := s.paymentRepo.FindByBubbleID(ctx, bubbleID)
	if err != nil {
		return PaymentResponse{}, err
	}
	return toPaymentResponse(p), nil
}

func (s *paymentService) VerifyPayment(ctx context.Context, bubbleID, actor string) (PaymentResponse, error) {
	var verified *model.Payment

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		sp, err := s.submittedRepo.FindByBubbleID(txCtx, bubbleID)
		if err != nil {
			return err
		}
		if sp.Status != model.SubmittedPending {
			return fmt.Errorf("%w: submission %s is %s", ErrInvalidTransition, bubbleID, sp.Status)
		}

		now := time.Now()
		payment := &model.Payment{
			BubbleID:      sp.BubbleID,
			PaymentFields: sp.PaymentFields,
			VerifiedBy:    actorOrSystem(actor),
			VerifiedAt:    &now,
			BubbleDates:   sp.BubbleDates,
		}
		if err := s.paymentRepo.Upsert(txCtx, payment); err != nil {
			return fmt.Errorf("failed to write verified payment: %w", err)
		}
		if err := s.submittedRepo.UpdateStatus(txCtx, sp.ID, model.SubmittedVerified); err != nil {
			return fmt.Errorf("failed to mark submission verified: %w", err)
		}

		verifyEvt := newAuditEvent(model.EntitySubmittedPayment, sp.BubbleID, actor, model.ActionVerifyPayment)
		verifyEvt.Field = "status"
		verifyEvt.OldValue = sp.Status
		verifyEvt.NewValue = model.SubmittedVerified
		if err := s.auditRepo.Log(txCtx, verifyEvt); err != nil {
			return err
		}
		if err := s.auditRepo.Log(txCtx, newAuditEvent(model.EntityPayment, sp.BubbleID, actor, model.ActionCreateFromVerify)); err != nil {
			return err
		}

		if sp.LinkedInvoice != "" {
			if err := s.linkIntoInvoice(txCtx, sp.LinkedInvoice, sp.BubbleID, actor); err != nil {
				return err
			}
		}

		verified, err = s.paymentRepo.FindByBubbleID(txCtx, sp.BubbleID)
		return err
	})
	if err != nil {
		return PaymentResponse{}, err
	}

	s.logger.Info("payment verified", zap.String("bubble_id", bubbleID), zap.String("actor", actor))
	return toPaymentResponse(verified), nil
}

// linkIntoInvoice appends the payment to the invoice's linked_payment when absent and recomputes its status.
// A submission pointing at an unknown invoice is verified without linking.
func (s *paymentService) linkIntoInvoice(ctx context.Context, invoiceID, paymentID, actor string) error {
	inv, err := s.invoiceRepo.FindByBubbleID(ctx, invoiceID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("verified payment references unknown invoice",
			zap.String("payment", paymentID), zap.String("invoice", invoiceID))
		return nil
	}
	if err != nil {
		return err
	}
	if inv.IsDeleted() {
		return nil
	}

	if !containsString(inv.LinkedPayment, paymentID) {
		links := append(append([]string{}, inv.LinkedPayment...), paymentID)
		if err := s.invoiceRepo.SetLinkedPayment(ctx, inv.ID, links); err != nil {
			return fmt.Errorf("failed to link payment to invoice: %w", err)
		}
		evt := newAuditEvent(model.EntityInvoice, inv.BubbleID, actor, model.ActionLinkPayment)
		evt.Field = "linked_payment"
		evt.NewValue = paymentID
		if err := s.auditRepo.Log(ctx, evt); err != nil {
			return err
		}
	}

	_, err = s.statusSvc.RecomputeInvoice(ctx, inv.BubbleID, actor)
	return err
}

func (s *paymentService) DeleteSubmitted(ctx context.Context, bubbleID, actor string) (PaymentResponse, error) {
	return s.transition(ctx, bubbleID, actor, model.SubmittedPending, model.SubmittedDeleted, model.ActionDeleteSubmission)
}

func (s *paymentService) RestoreSubmitted(ctx context.Context, bubbleID, actor string) (PaymentResponse, error) {
	return s.transition(ctx, bubbleID, actor, model.SubmittedDeleted, model.SubmittedPending, model.ActionRestoreSubmission)
}

func (s *paymentService) transition(ctx context.Context, bubbleID, actor, from, to, action string) (PaymentResponse, error) {
	var sp *model.SubmittedPayment
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		sp, err = s.submittedRepo.FindByBubbleID(txCtx, bubbleID)
		if err != nil {
			return err
		}
		if !strings.EqualFold(sp.Status, from) {
			return fmt.Errorf("%w: submission %s is %s, expected %s", ErrInvalidTransition, bubbleID, sp.Status, from)
		}
		if err := s.submittedRepo.UpdateStatus(txCtx, sp.ID, to); err != nil {
			return err
		}
		evt := newAuditEvent(model.EntitySubmittedPayment, bubbleID, actor, action)
		evt.Field = "status"
		evt.OldValue = sp.Status
		evt.NewValue = to
		sp.Status = to
		return s.auditRepo.Log(txCtx, evt)
	})
	if err != nil {
		return PaymentResponse{}, err
	}
	return toSubmittedResponse(sp), nil
}

func (s *paymentService) UpdateSubmitted(ctx context.Context, bubbleID string, req UpdateSubmittedRequest, actor string) (PaymentResponse, error) {
	var sp *model.SubmittedPayment
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		sp, err = s.submittedRepo.FindByBubbleID(txCtx, bubbleID)
		if err != nil {
			return err
		}
		if sp.Status == model.SubmittedVerified {
			return fmt.Errorf("%w: submission %s is already verified", ErrInvalidTransition, bubbleID)
		}

		changes, err := s.diffSubmitted(sp, req)
		if err != nil {
			return err
		}
		columns := make(map[string]interface{}, len(changes))
		for _, c := range changes {
			columns[c.column] = c.value
		}
		if err := s.submittedRepo.UpdateColumns(txCtx, sp.ID, columns); err != nil {
			return fmt.Errorf("failed to update submission: %w", err)
		}
		for _, c := range changes {
			evt := newAuditEvent(model.EntitySubmittedPayment, bubbleID, actor, model.ActionUpdateField)
			evt.Field = c.column
			evt.OldValue = c.old
			evt.NewValue = c.new
			if err := s.auditRepo.Log(txCtx, evt); err != nil {
				return err
			}
		}

		sp, err = s.submittedRepo.FindByBubbleID(txCtx, bubbleID)
		return err
	})
	if err != nil {
		return PaymentResponse{}, err
	}
	return toSubmittedResponse(sp), nil
}

type fieldChange struct {
	column string
	value  interface{}
	old    string
	new    string
}

func (s *paymentService) diffSubmitted(sp *model.SubmittedPayment, req UpdateSubmittedRequest) ([]fieldChange, error) {
	var changes []fieldChange

	text := func(column string, current string, next *string) {
		if next == nil || *next == current {
			return
		}
		changes = append(changes, fieldChange{column: column, value: *next, old: current, new: *next})
	}
	money := func(column string, current decimal.NullDecimal, next *string) error {
		if next == nil {
			return nil
		}
		val := decimal.NullDecimal{}
		if strings.TrimSpace(*next) != "" {
			d, err := decimal.NewFromString(strings.TrimSpace(*next))
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidInput, column, err)
			}
			val = decimal.NullDecimal{Decimal: d, Valid: true}
		}
		if val.Valid == current.Valid && (!val.Valid || val.Decimal.Equal(current.Decimal)) {
			return nil
		}
		changes = append(changes, fieldChange{column: column, value: val, old: formatNullDecimal(current), new: formatNullDecimal(val)})
		return nil
	}

	if err := money("amount", sp.Amount, req.Amount); err != nil {
		return nil, err
	}
	if req.PaymentDate != nil {
		next, err := parseDateInput(*req.PaymentDate, s.loc)
		if err != nil {
			return nil, err
		}
		if !sameInstant(sp.PaymentDate, next) {
			changes = append(changes, fieldChange{column: "payment_date", value: next, old: formatTimePtr(sp.PaymentDate), new: formatTimePtr(next)})
		}
	}
	text("payment_method", sp.PaymentMethod, req.PaymentMethod)
	text("epp_type", sp.EppType, req.EppType)
	text("issuer_bank", sp.IssuerBank, req.IssuerBank)
	if req.EppMonth != nil && (sp.EppMonth == nil || *sp.EppMonth != *req.EppMonth) {
		changes = append(changes, fieldChange{column: "epp_month", value: *req.EppMonth, old: formatIntPtr(sp.EppMonth), new: strconv.Itoa(*req.EppMonth)})
	}
	if err := money("epp_cost", sp.EppCost, req.EppCost); err != nil {
		return nil, err
	}
	text("linked_invoice", sp.LinkedInvoice, req.LinkedInvoice)
	text("linked_agent", sp.LinkedAgent, req.LinkedAgent)
	text("linked_customer", sp.LinkedCustomer, req.LinkedCustomer)
	text("remark", sp.Remark, req.Remark)
	return changes, nil
}

func (s *paymentService) History(ctx context.Context, source, bubbleID string) (HistoryResponse, error) {
	switch source {
	case SourceSubmitted:
		sp, err := s.submittedRepo.FindByBubbleID(ctx, bubbleID)
		if err != nil {
			return HistoryResponse{}, err
		}
		return s.auditSvc.History(ctx, model.EntitySubmittedPayment, bubbleID, sp.Log)
	case SourceVerified:
		p, err := s.paymentRepo.FindByBubbleID(ctx, bubbleID)
		if err != nil {
			return HistoryResponse{}, err
		}
		return s.auditSvc.History(ctx, model.EntityPayment, bubbleID, p.Log)
	}
	return HistoryResponse{}, fmt.Errorf("%w: unknown payment source %q", ErrInvalidInput, source)
}

// AutoReconcile soft-deletes pending submissions that duplicate an already verified payment.
// A candidate must agree on amount, agent and invoice (where the submission has them), fall
// on the same calendar day and belong to the same customer. The first candidate by id wins.
func (s *paymentService) AutoReconcile(ctx context.Context, actor string) (ReconcileResult, error) {
	var res ReconcileResult
	rep := reporterFrom(ctx, s.logger)

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		pending, err := s.submittedRepo.ListPending(txCtx)
		if err != nil {
			return fmt.Errorf("failed to list pending submissions: %w", err)
		}

		for i := range pending {
			sp := &pending[i]
			res.Scanned++

			filter := repository.CandidateFilter{Agent: sp.LinkedAgent, Invoice: sp.LinkedInvoice}
			if sp.Amount.Valid {
				amount := sp.Amount.Decimal
				filter.Amount = &amount
			}
			candidates, err := s.paymentRepo.FindCandidates(txCtx, filter)
			if err != nil {
				return fmt.Errorf("failed to find candidates for %s: %w", sp.BubbleID, err)
			}

			match := s.firstConfirmed(sp, candidates)
			if match == nil {
				continue
			}

			if err := s.submittedRepo.UpdateStatus(txCtx, sp.ID, model.SubmittedDeleted); err != nil {
				return fmt.Errorf("failed to reconcile %s: %w", sp.BubbleID, err)
			}
			evt := newAuditEvent(model.EntitySubmittedPayment, sp.BubbleID, actor, model.ActionAutoReconcile)
			evt.Field = "status"
			evt.OldValue = sp.Status
			evt.NewValue = model.SubmittedDeleted
			withDetails(evt, map[string]interface{}{"matched_payment": match.BubbleID})
			if err := s.auditRepo.Log(txCtx, evt); err != nil {
				return err
			}
			res.Matched++
			rep.Step(txCtx, fmt.Sprintf("Submission %s duplicates verified payment %s", sp.BubbleID, match.BubbleID), res.Scanned, len(pending))
		}
		return nil
	})
	if err != nil {
		rep.Errorf("Auto-reconcile aborted: %v", err)
		return ReconcileResult{}, err
	}

	rep.Logf("Auto-reconcile done: scanned=%d matched=%d", res.Scanned, res.Matched)
	return res, nil
}

func (s *paymentService) firstConfirmed(sp *model.SubmittedPayment, candidates []model.Payment) *model.Payment {
	for i := range candidates {
		c := &candidates[i]
		if !sameCalendarDay(sp.PaymentDate, c.PaymentDate, s.loc) {
			continue
		}
		if sp.LinkedCustomer != c.LinkedCustomer {
			continue
		}
		return c
	}
	return nil
}

func (s *paymentService) AnalyzeReceipt(ctx context.Context, bubbleID string) (ReceiptGuess, error) {
	if s.analyzer == nil {
		return ReceiptGuess{}, ErrAnalyzerUnavailable
	}
	sp, err := s.submittedRepo.FindByBubbleID(ctx, bubbleID)
	if err != nil {
		return ReceiptGuess{}, err
	}
	if len(sp.Attachment) == 0 || strings.TrimSpace(sp.Attachment[0]) == "" {
		return ReceiptGuess{}, fmt.Errorf("%w: submission %s has no attachment", ErrInvalidInput, bubbleID)
	}
	return s.analyzer.Analyze(ctx, normalizeScheme(sp.Attachment[0]))
}

// --- Helpers ---

func sameCalendarDay(a, b *time.Time, loc *time.Location) bool {
	if a == nil || b == nil {
		return false
	}
	return a.In(loc).Format("2006-01-02") == b.In(loc).Format("2006-01-02")
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func parseDateInput(raw string, loc *time.Location) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: payment_date %q", ErrInvalidInput, raw)
	}
	return &t, nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return model.SystemActor
	}
	return actor
}

func formatNullDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

func nullDecimalPtr(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.StringFixed(2)
	return &s
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func timePtrString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func formatIntPtr(i *int) string {
	if i == nil {
		return ""
	}
	return strconv.Itoa(*i)
}

func fieldsResponse(f *model.PaymentFields) PaymentResponse {
	attachment := []string(f.Attachment)
	if attachment == nil {
		attachment = []string{}
	}
	return PaymentResponse{
		Amount:         nullDecimalPtr(f.Amount),
		PaymentDate:    timePtrString(f.PaymentDate),
		PaymentMethod:  f.PaymentMethod,
		EppType:        f.EppType,
		IssuerBank:     f.IssuerBank,
		EppMonth:       f.EppMonth,
		EppCost:        nullDecimalPtr(f.EppCost),
		LinkedInvoice:  f.LinkedInvoice,
		LinkedAgent:    f.LinkedAgent,
		LinkedCustomer: f.LinkedCustomer,
		Attachment:     attachment,
		Remark:         f.Remark,
	}
}

func toPaymentResponse(p *model.Payment) PaymentResponse {
	res := fieldsResponse(&p.PaymentFields)
	res.ID = p.ID
	res.BubbleID = p.BubbleID
	res.Source = SourceVerified
	res.Status = SourceVerified
	res.VerifiedBy = p.VerifiedBy
	res.VerifiedAt = timePtrString(p.VerifiedAt)
	res.CreatedDate = timePtrString(p.CreatedDate)
	res.ModifiedDate = timePtrString(p.ModifiedDate)
	return res
}

func toSubmittedResponse(sp *model.SubmittedPayment) PaymentResponse {
	res := fieldsResponse(&sp.PaymentFields)
	res.ID = sp.ID
	res.BubbleID = sp.BubbleID
	res.Source = SourceSubmitted
	res.Status = sp.Status
	res.CreatedDate = timePtrString(sp.CreatedDate)
	res.ModifiedDate = timePtrString(sp.ModifiedDate)
	return res
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	fullyPaidThreshold = decimal.RequireFromString("99.9")
	depositCeiling     = decimal.NewFromInt(50)
	hundred            = decimal.NewFromInt(100)
)

// lookupChunk bounds IN lists so large batches stay under driver parameter limits
const lookupChunk = 500

// StatusInput is everything status derivation looks at for one invoice
type StatusInput struct {
	Current     string
	TotalAmount decimal.NullDecimal
	TotalPaid   decimal.Decimal
	SedaStatus  string
}

// StatusOutcome is the derived payment percentage and status.
// Percent is invalid when the invoice has no positive total.
type StatusOutcome struct {
	Percent decimal.NullDecimal
	Status  string
	Changed bool
}

// PaymentPercent returns paid/total*100, or an invalid value when total is missing or not positive
func PaymentPercent(total decimal.NullDecimal, paid decimal.Decimal) decimal.NullDecimal {
	if !total.Valid || !total.Decimal.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: paid.Div(total.Decimal).Mul(hundred), Valid: true}
}

// storedPercent is the value written to percent_of_total_amount. Invoices without a positive total store 0.
func storedPercent(p decimal.NullDecimal) decimal.Decimal {
	if !p.Valid {
		return decimal.Zero
	}
	return p.Decimal.Round(2)
}

// DeriveInvoiceStatus applies the status rules in priority order:
// SEDA approval, fully paid, deposit, draft. Anything else keeps the current status.
func DeriveInvoiceStatus(in StatusInput) StatusOutcome {
	out := StatusOutcome{
		Percent: PaymentPercent(in.TotalAmount, in.TotalPaid),
		Status:  in.Current,
	}
	p := decimal.Zero
	if out.Percent.Valid {
		p = out.Percent.Decimal
	}
	seda := strings.TrimSpace(in.SedaStatus)

	switch {
	case strings.EqualFold(seda, model.SedaStatusApproved):
		out.Status = model.InvoiceStatusSedaApproved
	case p.GreaterThanOrEqual(fullyPaidThreshold):
		out.Status = model.InvoiceStatusFullyPaid
	case p.IsPositive() && p.LessThan(depositCeiling):
		out.Status = model.InvoiceStatusDeposit
	case p.IsZero() && seda == "":
		out.Status = model.InvoiceStatusDraft
	}
	out.Changed = out.Status != in.Current
	return out
}

// RecomputeResult counts a status recompute pass
type RecomputeResult struct {
	Scanned   int `json:"scanned"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

// PercentResult counts a percentage recompute pass
type PercentResult struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
}

type InvoiceStatusService interface {
	TotalPaid(ctx context.Context, linkedPayment []string) (decimal.Decimal, error)
	RecomputeStatuses(ctx context.Context, actor string) (RecomputeResult, error)
	RecomputePercentages(ctx context.Context) (PercentResult, error)
	RecomputeInvoice(ctx context.Context, bubbleID, actor string) (StatusOutcome, error)
}

type invoiceStatusService struct {
	invoiceRepo   repository.InvoiceRepository
	paymentRepo   repository.PaymentRepository
	submittedRepo repository.SubmittedPaymentRepository
	sedaRepo      repository.SedaRepository
	auditRepo     repository.AuditRepository
	txManager     repository.TransactionManager
	logger        *zap.Logger
}

// NewInvoiceStatusService creates a new InvoiceStatusService instance
func NewInvoiceStatusService(
	invoiceRepo repository.InvoiceRepository,
	paymentRepo repository.PaymentRepository,
	submittedRepo repository.SubmittedPaymentRepository,
	sedaRepo repository.SedaRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	logger *zap.Logger,
) InvoiceStatusService {
	return &invoiceStatusService{
		invoiceRepo:   invoiceRepo,
		paymentRepo:   paymentRepo,
		submittedRepo: submittedRepo,
		sedaRepo:      sedaRepo,
		auditRepo:     auditRepo,
		txManager:     txManager,
		logger:        logger.Named("invoice-status"),
	}
}

// paymentAmounts maps payment bubble ids to amounts. Verified payments win over submissions.
type paymentAmounts map[string]decimal.NullDecimal

func (m paymentAmounts) total(ids []string) decimal.Decimal {
	sum := decimal.Zero
	for _, id := range ids {
		if amt, ok := m[id]; ok && amt.Valid {
			sum = sum.Add(amt.Decimal)
		}
	}
	return sum
}

func (s *invoiceStatusService) loadAmounts(ctx context.Context, ids []string) (paymentAmounts, error) {
	amounts := paymentAmounts{}
	unique := uniqueStrings(ids)

	for _, part := range chunkStrings(unique, lookupChunk) {
		payments, err := s.paymentRepo.FindByBubbleIDs(ctx, part)
		if err != nil {
			return nil, fmt.Errorf("failed to load payments: %w", err)
		}
		for _, p := range payments {
			amounts[p.BubbleID] = p.Amount
		}
	}

	var rest []string
	for _, id := range unique {
		if _, ok := amounts[id]; !ok {
			rest = append(rest, id)
		}
	}
	for _, part := range chunkStrings(rest, lookupChunk) {
		submitted, err := s.submittedRepo.FindActiveByBubbleIDs(ctx, part)
		if err != nil {
			return nil, fmt.Errorf("failed to load submitted payments: %w", err)
		}
		for _, sp := range submitted {
			amounts[sp.BubbleID] = sp.Amount
		}
	}
	return amounts, nil
}

func (s *invoiceStatusService) loadSedaStatuses(ctx context.Context, invoices []model.Invoice) (map[string]string, error) {
	var ids []string
	for _, inv := range invoices {
		if inv.LinkedSedaRegistration != "" {
			ids = append(ids, inv.LinkedSedaRegistration)
		}
	}
	statuses := map[string]string{}
	for _, part := range chunkStrings(uniqueStrings(ids), lookupChunk) {
		rows, err := s.sedaRepo.FindByBubbleIDs(ctx, part)
		if err != nil {
			return nil, fmt.Errorf("failed to load seda registrations: %w", err)
		}
		for _, r := range rows {
			statuses[r.BubbleID] = r.SedaStatus
		}
	}
	return statuses, nil
}

func (s *invoiceStatusService) TotalPaid(ctx context.Context, linkedPayment []string) (decimal.Decimal, error) {
	amounts, err := s.loadAmounts(ctx, linkedPayment)
	if err != nil {
		return decimal.Zero, err
	}
	return amounts.total(linkedPayment), nil
}

func (s *invoiceStatusService) RecomputeStatuses(ctx context.Context, actor string) (RecomputeResult, error) {
	var res RecomputeResult
	rep := reporterFrom(ctx, s.logger)

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoices, err := s.invoiceRepo.ListActive(txCtx)
		if err != nil {
			return fmt.Errorf("failed to list invoices: %w", err)
		}
		amounts, err := s.loadAmounts(txCtx, collectLinkedPayments(invoices))
		if err != nil {
			return err
		}
		sedaStatuses, err := s.loadSedaStatuses(txCtx, invoices)
		if err != nil {
			return err
		}

		for i := range invoices {
			inv := &invoices[i]
			res.Scanned++
			seda := sedaStatuses[inv.LinkedSedaRegistration]
			outcome := DeriveInvoiceStatus(StatusInput{
				Current:     inv.Status,
				TotalAmount: inv.TotalAmount,
				TotalPaid:   amounts.total(inv.LinkedPayment),
				SedaStatus:  seda,
			})
			if !outcome.Changed {
				res.Unchanged++
				continue
			}
			if err := s.applyStatus(txCtx, inv, outcome, seda, actor); err != nil {
				return err
			}
			res.Updated++
			rep.Step(txCtx, fmt.Sprintf("Invoice %s: %s -> %s", inv.BubbleID, inv.Status, outcome.Status), res.Scanned, len(invoices))
		}
		return nil
	})
	if err != nil {
		rep.Errorf("Status recompute aborted after %d invoices: %v", res.Scanned, err)
		return RecomputeResult{}, err
	}

	rep.Logf("Status recompute done: scanned=%d updated=%d unchanged=%d", res.Scanned, res.Updated, res.Unchanged)
	return res, nil
}

func (s *invoiceStatusService) applyStatus(ctx context.Context, inv *model.Invoice, outcome StatusOutcome, seda, actor string) error {
	if err := s.invoiceRepo.UpdateStatus(ctx, inv.ID, outcome.Status); err != nil {
		return fmt.Errorf("failed to update invoice %s: %w", inv.BubbleID, err)
	}

	percent := interface{}(nil)
	if outcome.Percent.Valid {
		percent = outcome.Percent.Decimal.Round(2).String()
	}
	evt := newAuditEvent(model.EntityInvoice, inv.BubbleID, actor, model.ActionStatusRecompute)
	evt.Field = "status"
	evt.OldValue = inv.Status
	evt.NewValue = outcome.Status
	withDetails(evt, map[string]interface{}{"percent": percent, "seda_status": seda})
	if err := s.auditRepo.Log(ctx, evt); err != nil {
		return fmt.Errorf("failed to record status change: %w", err)
	}
	return nil
}

func (s *invoiceStatusService) RecomputePercentages(ctx context.Context) (PercentResult, error) {
	var res PercentResult
	rep := reporterFrom(ctx, s.logger)

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoices, err := s.invoiceRepo.ListActive(txCtx)
		if err != nil {
			return fmt.Errorf("failed to list invoices: %w", err)
		}
		amounts, err := s.loadAmounts(txCtx, collectLinkedPayments(invoices))
		if err != nil {
			return err
		}

		for i := range invoices {
			inv := &invoices[i]
			res.Scanned++
			rounded := storedPercent(PaymentPercent(inv.TotalAmount, amounts.total(inv.LinkedPayment)))
			if inv.PercentOfTotalAmount.Valid && inv.PercentOfTotalAmount.Decimal.Equal(rounded) {
				continue
			}
			if err := s.invoiceRepo.UpdatePercent(txCtx, inv.ID, rounded); err != nil {
				return fmt.Errorf("failed to update percent for invoice %s: %w", inv.BubbleID, err)
			}
			res.Updated++
			rep.Step(txCtx, fmt.Sprintf("Invoice %s: %s%%", inv.BubbleID, rounded.StringFixed(2)), res.Scanned, len(invoices))
		}
		return nil
	})
	if err != nil {
		rep.Errorf("Percentage recompute aborted: %v", err)
		return PercentResult{}, err
	}

	rep.Logf("Percentage recompute done: scanned=%d updated=%d", res.Scanned, res.Updated)
	return res, nil
}

func (s *invoiceStatusService) RecomputeInvoice(ctx context.Context, bubbleID, actor string) (StatusOutcome, error) {
	var outcome StatusOutcome
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		inv, err := s.invoiceRepo.FindByBubbleID(txCtx, bubbleID)
		if err != nil {
			return err
		}
		if inv.IsDeleted() {
			outcome = StatusOutcome{Status: inv.Status}
			return nil
		}

		paid, err := s.TotalPaid(txCtx, inv.LinkedPayment)
		if err != nil {
			return err
		}
		seda := ""
		if inv.LinkedSedaRegistration != "" {
			reg, err := s.sedaRepo.FindByBubbleID(txCtx, inv.LinkedSedaRegistration)
			switch {
			case err == nil:
				seda = reg.SedaStatus
			case !errors.Is(err, repository.ErrNotFound):
				return err
			}
		}

		outcome = DeriveInvoiceStatus(StatusInput{
			Current:     inv.Status,
			TotalAmount: inv.TotalAmount,
			TotalPaid:   paid,
			SedaStatus:  seda,
		})
		rounded := storedPercent(outcome.Percent)
		if !inv.PercentOfTotalAmount.Valid || !inv.PercentOfTotalAmount.Decimal.Equal(rounded) {
			if err := s.invoiceRepo.UpdatePercent(txCtx, inv.ID, rounded); err != nil {
				return err
			}
		}
		if outcome.Changed {
			return s.applyStatus(txCtx, inv, outcome, seda, actor)
		}
		return nil
	})
	return outcome, err
}

func collectLinkedPayments(invoices []model.Invoice) []string {
	var ids []string
	for _, inv := range invoices {
		ids = append(ids, inv.LinkedPayment...)
	}
	return ids
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func chunkStrings(in []string, size int) [][]string {
	var out [][]string
	for len(in) > size {
		out = append(out, in[:size])
		in = in[size:]
	}
	if len(in) > 0 {
		out = append(out, in)
	}
	return out
}

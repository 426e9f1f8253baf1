package service

import (
	"context"
	"errors"
	"fmt"

	"backoffice/internal/model"
	"backoffice/internal/repository"

	"go.uber.org/zap"
)

// --- DTOs ---

type InvoiceFilter struct {
	Status   string // empty lists every non-deleted invoice
	Agent    string
	Customer string
	Search   string // partial match on invoice_number
	Page     int
	Limit    int
}

type InvoiceResponse struct {
	ID                     uint     `json:"id"`
	BubbleID               string   `json:"bubble_id"`
	InvoiceNumber          string   `json:"invoice_number"`
	TotalAmount            *string  `json:"total_amount"`
	Status                 string   `json:"status"`
	PercentOfTotalAmount   *string  `json:"percent_of_total_amount"`
	LinkedPayment          []string `json:"linked_payment"`
	LinkedSedaRegistration string   `json:"linked_seda_registration"`
	LinkedCustomer         string   `json:"linked_customer"`
	LinkedAgent            string   `json:"linked_agent"`
	CreatedBy              string   `json:"created_by"`
	InvoiceDate            *string  `json:"invoice_date"`
	Remark                 string   `json:"remark"`
	CreatedDate            *string  `json:"created_date"`
	ModifiedDate           *string  `json:"modified_date"`
}

type InvoiceItemResponse struct {
	BubbleID    string  `json:"bubble_id"`
	Description string  `json:"description"`
	Qty         *string `json:"qty"`
	UnitPrice   *string `json:"unit_price"`
	Amount      *string `json:"amount"`
}

// LinkedPaymentResponse is one linked_payment entry resolved against both payment tables
type LinkedPaymentResponse struct {
	BubbleID    string  `json:"bubble_id"`
	Source      string  `json:"source"` // verified, submitted or missing
	Status      string  `json:"status"`
	Amount      *string `json:"amount"`
	PaymentDate *string `json:"payment_date"`
}

type SedaSummary struct {
	BubbleID       string `json:"bubble_id"`
	SedaStatus     string `json:"seda_status"`
	LinkedCustomer string `json:"linked_customer"`
}

type PartySummary struct {
	BubbleID string `json:"bubble_id"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
}

type InvoiceDetailResponse struct {
	InvoiceResponse
	CreatedByName string                  `json:"created_by_name"`
	TotalPaid     string                  `json:"total_paid"`
	Customer      *PartySummary           `json:"customer"`
	Agent         *PartySummary           `json:"agent"`
	Items         []InvoiceItemResponse   `json:"items"`
	Payments      []LinkedPaymentResponse `json:"payments"`
	Seda          *SedaSummary            `json:"seda"`
	TemplateName  string                  `json:"template_name,omitempty"`
}

type LinkPaymentRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
}

// --- Interface ---

type InvoiceService interface {
	List(ctx context.Context, filter InvoiceFilter) ([]InvoiceResponse, int64, error)
	Get(ctx context.Context, bubbleID string) (InvoiceDetailResponse, error)
	SoftDelete(ctx context.Context, bubbleID, actor string) (InvoiceResponse, error)
	LinkPayment(ctx context.Context, invoiceID, paymentID, actor string) (InvoiceDetailResponse, error)
}

type invoiceService struct {
	invoiceRepo   repository.InvoiceRepository
	paymentRepo   repository.PaymentRepository
	submittedRepo repository.SubmittedPaymentRepository
	sedaRepo      repository.SedaRepository
	refRepo       repository.ReferenceRepository
	auditRepo     repository.AuditRepository
	statusSvc     InvoiceStatusService
	txManager     repository.TransactionManager
	logger        *zap.Logger
}

func NewInvoiceService(
	invoiceRepo repository.InvoiceRepository,
	paymentRepo repository.PaymentRepository,
	submittedRepo repository.SubmittedPaymentRepository,
	sedaRepo repository.SedaRepository,
	refRepo repository.ReferenceRepository,
	auditRepo repository.AuditRepository,
	statusSvc InvoiceStatusService,
	txManager repository.TransactionManager,
	logger *zap.Logger,
) InvoiceService {
	return &invoiceService{
		invoiceRepo:   invoiceRepo,
		paymentRepo:   paymentRepo,
		submittedRepo: submittedRepo,
		sedaRepo:      sedaRepo,
		refRepo:       refRepo,
		auditRepo:     auditRepo,
		statusSvc:     statusSvc,
		txManager:     txManager,
		logger:        logger.Named("invoices"),
	}
}

// --- Implementation ---

func (s *invoiceService) List(ctx context.Context, filter InvoiceFilter) ([]InvoiceResponse, int64, error) {
	invoices, total, err := s.invoiceRepo.List(ctx, repository.InvoiceListFilter(filter))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list invoices: %w", err)
	}
	res := make([]InvoiceResponse, 0, len(invoices))
	for i := range invoices {
		res = append(res, toInvoiceResponse(&invoices[i]))
	}
	return res, total, nil
}

func (s *invoiceService) Get(ctx context.Context, bubbleID string) (InvoiceDetailResponse, error) {
	inv, err := s.invoiceRepo.FindByBubbleID(ctx, bubbleID)
	if err != nil {
		return InvoiceDetailResponse{}, err
	}

	detail := InvoiceDetailResponse{InvoiceResponse: toInvoiceResponse(inv)}
	if detail.CreatedByName, err = s.resolveCreator(ctx, inv.CreatedBy); err != nil {
		return detail, err
	}
	if detail.Payments, err = s.linkedPayments(ctx, inv.LinkedPayment); err != nil {
		return detail, err
	}
	paid, err := s.statusSvc.TotalPaid(ctx, inv.LinkedPayment)
	if err != nil {
		return detail, err
	}
	detail.TotalPaid = paid.StringFixed(2)

	items, err := s.invoiceRepo.Items(ctx, inv.BubbleID)
	if err != nil {
		return detail, err
	}
	detail.Items = make([]InvoiceItemResponse, 0, len(items))
	for _, it := range items {
		detail.Items = append(detail.Items, InvoiceItemResponse{
			BubbleID:    it.BubbleID,
			Description: it.Description,
			Qty:         nullDecimalPtr(it.Qty),
			UnitPrice:   nullDecimalPtr(it.UnitPrice),
			Amount:      nullDecimalPtr(it.Amount),
		})
	}

	if inv.LinkedSedaRegistration != "" {
		reg, err := s.sedaRepo.FindByBubbleID(ctx, inv.LinkedSedaRegistration)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return detail, err
		}
		if reg != nil {
			detail.Seda = &SedaSummary{BubbleID: reg.BubbleID, SedaStatus: reg.SedaStatus, LinkedCustomer: reg.LinkedCustomer}
		}
	}
	if inv.LinkedCustomer != "" {
		c, err := s.refRepo.FindCustomer(ctx, inv.LinkedCustomer)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return detail, err
		}
		if c != nil {
			detail.Customer = &PartySummary{BubbleID: c.BubbleID, Name: c.Name, Phone: c.Phone, Email: c.Email}
		}
	}
	if inv.LinkedAgent != "" {
		a, err := s.refRepo.FindAgent(ctx, inv.LinkedAgent)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return detail, err
		}
		if a != nil {
			detail.Agent = &PartySummary{BubbleID: a.BubbleID, Name: a.Name, Phone: a.Phone, Email: a.Email}
		}
	}
	if inv.LinkedTemplate != "" {
		tpl, err := s.invoiceRepo.Template(ctx, inv.LinkedTemplate)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return detail, err
		}
		if tpl != nil {
			detail.TemplateName = tpl.Name
		}
	}
	return detail, nil
}

// resolveCreator prefers the agent profile name, then the user's name, then the email.
// Unknown users show the raw id.
func (s *invoiceService) resolveCreator(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", nil
	}
	user, err := s.refRepo.FindUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return userID, nil
	}
	if err != nil {
		return "", err
	}

	if user.LinkedAgentProfile != "" {
		agent, err := s.refRepo.FindAgent(ctx, user.LinkedAgentProfile)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return "", err
		}
		if agent != nil && agent.Name != "" {
			return agent.Name, nil
		}
	}
	if user.Name != "" {
		return user.Name, nil
	}
	if user.Email != "" {
		return user.Email, nil
	}
	return userID, nil
}

func (s *invoiceService) linkedPayments(ctx context.Context, ids []string) ([]LinkedPaymentResponse, error) {
	out := make([]LinkedPaymentResponse, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	verified, err := s.paymentRepo.FindByBubbleIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.Payment, len(verified))
	for i := range verified {
		byID[verified[i].BubbleID] = &verified[i]
	}

	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, LinkedPaymentResponse{
				BubbleID: id, Source: SourceVerified, Status: SourceVerified,
				Amount: nullDecimalPtr(p.Amount), PaymentDate: timePtrString(p.PaymentDate),
			})
			continue
		}
		sp, err := s.submittedRepo.FindByBubbleID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			out = append(out, LinkedPaymentResponse{BubbleID: id, Source: "missing"})
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, LinkedPaymentResponse{
			BubbleID: id, Source: SourceSubmitted, Status: sp.Status,
			Amount: nullDecimalPtr(sp.Amount), PaymentDate: timePtrString(sp.PaymentDate),
		})
	}
	return out, nil
}

// SoftDelete marks the invoice deleted. Deleting a deleted invoice is a no-op.
func (s *invoiceService) SoftDelete(ctx context.Context, bubbleID, actor string) (InvoiceResponse, error) {
	var inv *model.Invoice
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		inv, err = s.invoiceRepo.FindByBubbleID(txCtx, bubbleID)
		if err != nil {
			return err
		}
		if inv.IsDeleted() {
			return nil
		}
		if err := s.invoiceRepo.UpdateStatus(txCtx, inv.ID, model.InvoiceStatusDeleted); err != nil {
			return err
		}
		evt := newAuditEvent(model.EntityInvoice, bubbleID, actor, model.ActionSoftDelete)
		evt.Field = "status"
		evt.OldValue = inv.Status
		evt.NewValue = model.InvoiceStatusDeleted
		inv.Status = model.InvoiceStatusDeleted
		return s.auditRepo.Log(txCtx, evt)
	})
	if err != nil {
		return InvoiceResponse{}, err
	}
	return toInvoiceResponse(inv), nil
}

// LinkPayment appends a verified or submitted payment to the invoice and recomputes its status
func (s *invoiceService) LinkPayment(ctx context.Context, invoiceID, paymentID, actor string) (InvoiceDetailResponse, error) {
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		inv, err := s.invoiceRepo.FindByBubbleID(txCtx, invoiceID)
		if err != nil {
			return err
		}
		if inv.IsDeleted() {
			return fmt.Errorf("%w: invoice %s is deleted", ErrInvalidTransition, invoiceID)
		}
		if err := s.paymentExists(txCtx, paymentID); err != nil {
			return err
		}

		if !containsString(inv.LinkedPayment, paymentID) {
			links := append(append([]string{}, inv.LinkedPayment...), paymentID)
			if err := s.invoiceRepo.SetLinkedPayment(txCtx, inv.ID, links); err != nil {
				return err
			}
			evt := newAuditEvent(model.EntityInvoice, invoiceID, actor, model.ActionLinkPayment)
			evt.Field = "linked_payment"
			evt.NewValue = paymentID
			if err := s.auditRepo.Log(txCtx, evt); err != nil {
				return err
			}
		}
		_, err = s.statusSvc.RecomputeInvoice(txCtx, invoiceID, actor)
		return err
	})
	if err != nil {
		return InvoiceDetailResponse{}, err
	}
	return s.Get(ctx, invoiceID)
}

func (s *invoiceService) paymentExists(ctx context.Context, paymentID string) error {
	if _, err := s.paymentRepo.FindByBubbleID(ctx, paymentID); err == nil || !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	sp, err := s.submittedRepo.FindByBubbleID(ctx, paymentID)
	if err != nil {
		return err
	}
	if sp.Status == model.SubmittedDeleted {
		return fmt.Errorf("%w: payment %s is deleted", ErrInvalidTransition, paymentID)
	}
	return nil
}

func toInvoiceResponse(inv *model.Invoice) InvoiceResponse {
	links := []string(inv.LinkedPayment)
	if links == nil {
		links = []string{}
	}
	return InvoiceResponse{
		ID:                     inv.ID,
		BubbleID:               inv.BubbleID,
		InvoiceNumber:          inv.InvoiceNumber,
		TotalAmount:            nullDecimalPtr(inv.TotalAmount),
		Status:                 inv.Status,
		PercentOfTotalAmount:   nullDecimalPtr(inv.PercentOfTotalAmount),
		LinkedPayment:          links,
		LinkedSedaRegistration: inv.LinkedSedaRegistration,
		LinkedCustomer:         inv.LinkedCustomer,
		LinkedAgent:            inv.LinkedAgent,
		CreatedBy:              inv.CreatedBy,
		InvoiceDate:            timePtrString(inv.InvoiceDate),
		Remark:                 inv.Remark,
		CreatedDate:            timePtrString(inv.CreatedDate),
		ModifiedDate:           timePtrString(inv.ModifiedDate),
	}
}

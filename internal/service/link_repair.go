package service

import (
	"context"
	"errors"
	"fmt"

	"backoffice/internal/model"
	"backoffice/internal/repository"

	"go.uber.org/zap"
)

// SedaLinkResult counts the invoice -> SEDA link restore pass
type SedaLinkResult struct {
	Scanned   int `json:"scanned"`
	Linked    int `json:"linked"`
	Skipped   int `json:"skipped"`
	Conflicts int `json:"conflicts"`
	Missing   int `json:"missing"`
	Failed    int `json:"failed"`
}

// CustomerPatchResult counts the SEDA customer backfill pass
type CustomerPatchResult struct {
	Scanned int `json:"scanned"`
	Patched int `json:"patched"`
	Failed  int `json:"failed"`
}

// LinkRepairResult is what a sync reports for the automatic repair step
type LinkRepairResult struct {
	InvoiceSeda  SedaLinkResult      `json:"invoice_seda"`
	SedaCustomer CustomerPatchResult `json:"seda_customer"`
}

type LinkRepairService interface {
	RestoreInvoiceSedaLinks(ctx context.Context) (SedaLinkResult, error)
	PatchSedaCustomers(ctx context.Context) (CustomerPatchResult, error)
	RepairAll(ctx context.Context) (LinkRepairResult, error)
}

type linkRepairService struct {
	sedaRepo    repository.SedaRepository
	invoiceRepo repository.InvoiceRepository
	logger      *zap.Logger
}

func NewLinkRepairService(sedaRepo repository.SedaRepository, invoiceRepo repository.InvoiceRepository, logger *zap.Logger) LinkRepairService {
	return &linkRepairService{
		sedaRepo:    sedaRepo,
		invoiceRepo: invoiceRepo,
		logger:      logger.Named("link-repair"),
	}
}

// RestoreInvoiceSedaLinks copies the SEDA side of the relation onto invoices that lost it.
// An invoice already pointing at another registration is reported, never overwritten.
func (s *linkRepairService) RestoreInvoiceSedaLinks(ctx context.Context) (SedaLinkResult, error) {
	var res SedaLinkResult
	rep := reporterFrom(ctx, s.logger)

	regs, err := s.sedaRepo.ListWithInvoiceLinks(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list seda registrations: %w", err)
	}
	rep.Logf("Restoring invoice SEDA links from %d registrations", len(regs))

	for i := range regs {
		reg := &regs[i]
		for _, invoiceID := range reg.LinkedInvoice {
			if invoiceID == "" {
				continue
			}
			res.Scanned++
			if err := s.restoreOne(ctx, rep, reg, invoiceID, &res); err != nil {
				res.Failed++
				rep.Errorf("SEDA %s -> invoice %s: %v", reg.BubbleID, invoiceID, err)
			}
		}
		rep.Step(ctx, fmt.Sprintf("SEDA %s checked", reg.BubbleID), i+1, len(regs))
	}

	rep.Logf("Invoice SEDA links: scanned=%d linked=%d skipped=%d conflicts=%d missing=%d failed=%d",
		res.Scanned, res.Linked, res.Skipped, res.Conflicts, res.Missing, res.Failed)
	return res, nil
}

func (s *linkRepairService) restoreOne(ctx context.Context, rep Reporter, reg *model.SedaRegistration, invoiceID string, res *SedaLinkResult) error {
	inv, err := s.invoiceRepo.FindByBubbleID(ctx, invoiceID)
	if errors.Is(err, repository.ErrNotFound) {
		res.Missing++
		return nil
	}
	if err != nil {
		return err
	}

	switch inv.LinkedSedaRegistration {
	case "":
		if err := s.invoiceRepo.SetSedaLink(ctx, inv.ID, reg.BubbleID); err != nil {
			return err
		}
		res.Linked++
	case reg.BubbleID:
		res.Skipped++
	default:
		res.Conflicts++
		rep.Errorf("Conflict: invoice %s links SEDA %s but SEDA %s claims it", inv.BubbleID, inv.LinkedSedaRegistration, reg.BubbleID)
	}
	return nil
}

// PatchSedaCustomers fills empty SEDA customers from the invoice that links to the registration
func (s *linkRepairService) PatchSedaCustomers(ctx context.Context) (CustomerPatchResult, error) {
	var res CustomerPatchResult
	rep := reporterFrom(ctx, s.logger)

	patches, err := s.sedaRepo.ListCustomerPatches(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list seda customer patches: %w", err)
	}

	// several invoices may link the same registration; the first one fills it
	done := map[uint]bool{}
	for i, p := range patches {
		if done[p.SedaID] {
			continue
		}
		res.Scanned++
		if err := s.sedaRepo.SetLinkedCustomer(ctx, p.SedaID, p.LinkedCustomer); err != nil {
			res.Failed++
			rep.Errorf("SEDA %s customer patch from invoice %s: %v", p.SedaBubbleID, p.InvoiceID, err)
			continue
		}
		done[p.SedaID] = true
		res.Patched++
		rep.Step(ctx, fmt.Sprintf("SEDA %s customer <- %s", p.SedaBubbleID, p.LinkedCustomer), i+1, len(patches))
	}

	rep.Logf("SEDA customers: scanned=%d patched=%d failed=%d", res.Scanned, res.Patched, res.Failed)
	return res, nil
}

// RepairAll runs both repair passes, link restore first
func (s *linkRepairService) RepairAll(ctx context.Context) (LinkRepairResult, error) {
	var out LinkRepairResult
	var err error
	if out.InvoiceSeda, err = s.RestoreInvoiceSedaLinks(ctx); err != nil {
		return out, err
	}
	if out.SedaCustomer, err = s.PatchSedaCustomers(ctx); err != nil {
		return out, err
	}
	return out, nil
}

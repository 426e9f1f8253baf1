package service

import (
	"context"
	"errors"
	"testing"

	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func seedInvoiceDetail(t *testing.T, f *fixture) {
	t.Helper()
	require.NoError(t, f.db.Create(&[]model.User{
		{BubbleID: "u-agent", Name: "Login Name", LinkedAgentProfile: "ag-1"},
		{BubbleID: "u-named", Name: "Nadia", Email: "nadia@example.com"},
		{BubbleID: "u-mail", Email: "ops@example.com"},
	}).Error)
	require.NoError(t, f.db.Create(&model.Agent{BubbleID: "ag-1", Name: "Agent Ali", Phone: "0123"}).Error)
	require.NoError(t, f.db.Create(&model.Customer{BubbleID: "c-1", Name: "Tan", Email: "tan@example.com"}).Error)
	require.NoError(t, f.db.Create(&model.InvoiceTemplate{BubbleID: "tpl-1", Name: "Standard"}).Error)
	require.NoError(t, f.db.Create(&model.SedaRegistration{BubbleID: "seda-1", SedaStatus: "Pending"}).Error)
	require.NoError(t, f.db.Create(&[]model.InvoiceItem{
		{BubbleID: "it-2", LinkedInvoice: "inv-1", Description: "Inverter", Amount: amt("2000"), SortOrder: 2},
		{BubbleID: "it-1", LinkedInvoice: "inv-1", Description: "Panels", Qty: amt("10"), UnitPrice: amt("500"), Amount: amt("5000"), SortOrder: 1},
	}).Error)
	require.NoError(t, f.db.Create(&model.Payment{BubbleID: "pay-1", PaymentFields: model.PaymentFields{Amount: amt("1000")}}).Error)
	require.NoError(t, f.db.Create(&[]model.SubmittedPayment{
		{BubbleID: "sub-1", Status: model.SubmittedPending, PaymentFields: model.PaymentFields{Amount: amt("500")}},
		{BubbleID: "sub-del", Status: model.SubmittedDeleted, PaymentFields: model.PaymentFields{Amount: amt("300")}},
	}).Error)
	require.NoError(t, f.db.Create(&model.Invoice{
		BubbleID:               "inv-1",
		InvoiceNumber:          "INV-001",
		Status:                 model.InvoiceStatusDeposit,
		TotalAmount:            amt("7000"),
		LinkedPayment:          datatypes.JSONSlice[string]{"pay-1", "sub-1", "ghost"},
		LinkedSedaRegistration: "seda-1",
		LinkedCustomer:         "c-1",
		LinkedAgent:            "ag-1",
		LinkedTemplate:         "tpl-1",
		CreatedBy:              "u-agent",
	}).Error)
}

func TestInvoiceService_Get(t *testing.T) {
	f := newFixture(t)
	seedInvoiceDetail(t, f)
	ctx := context.Background()

	detail, err := f.invoiceSvc.Get(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "INV-001", detail.InvoiceNumber)
	assert.Equal(t, "Agent Ali", detail.CreatedByName)
	assert.Equal(t, "1500.00", detail.TotalPaid)
	assert.Equal(t, "Standard", detail.TemplateName)

	require.Len(t, detail.Items, 2)
	assert.Equal(t, "Panels", detail.Items[0].Description)
	require.NotNil(t, detail.Items[0].Qty)
	assert.Equal(t, "10.00", *detail.Items[0].Qty)

	require.Len(t, detail.Payments, 3)
	assert.Equal(t, SourceVerified, detail.Payments[0].Source)
	assert.Equal(t, SourceSubmitted, detail.Payments[1].Source)
	assert.Equal(t, model.SubmittedPending, detail.Payments[1].Status)
	assert.Equal(t, "missing", detail.Payments[2].Source)

	require.NotNil(t, detail.Seda)
	assert.Equal(t, "Pending", detail.Seda.SedaStatus)
	require.NotNil(t, detail.Customer)
	assert.Equal(t, "Tan", detail.Customer.Name)
	require.NotNil(t, detail.Agent)
	assert.Equal(t, "0123", detail.Agent.Phone)

	_, err = f.invoiceSvc.Get(ctx, "nope")
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestInvoiceService_ResolveCreator(t *testing.T) {
	f := newFixture(t)
	seedInvoiceDetail(t, f)
	svc := f.invoiceSvc.(*invoiceService)
	ctx := context.Background()

	tests := map[string]string{
		"u-agent":   "Agent Ali",
		"u-named":   "Nadia",
		"u-mail":    "ops@example.com",
		"u-unknown": "u-unknown",
		"":          "",
	}
	for id, want := range tests {
		got, err := svc.resolveCreator(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got, id)
	}
}

func TestInvoiceService_List(t *testing.T) {
	f := newFixture(t)
	seedInvoiceDetail(t, f)
	require.NoError(t, f.db.Create(&model.Invoice{BubbleID: "inv-del", InvoiceNumber: "INV-002", Status: "Deleted"}).Error)
	ctx := context.Background()

	list, total, err := f.invoiceSvc.List(ctx, InvoiceFilter{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, "inv-1", list[0].BubbleID)

	deleted, total, err := f.invoiceSvc.List(ctx, InvoiceFilter{Status: "deleted", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "inv-del", deleted[0].BubbleID)
}

func TestInvoiceService_SoftDelete(t *testing.T) {
	f := newFixture(t)
	seedInvoiceDetail(t, f)
	ctx := context.Background()

	res, err := f.invoiceSvc.SoftDelete(ctx, "inv-1", "admin")
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusDeleted, res.Status)

	_, err = f.invoiceSvc.SoftDelete(ctx, "inv-1", "admin")
	require.NoError(t, err)

	events, err := f.audit.ForEntity(ctx, model.EntityInvoice, "inv-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.ActionSoftDelete, events[0].Action)
	assert.Equal(t, model.InvoiceStatusDeposit, events[0].OldValue)

	// deleted invoices are left out of recomputes
	recompute, err := f.statusSvc.RecomputeStatuses(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, recompute.Scanned)

	_, err = f.invoiceSvc.LinkPayment(ctx, "inv-1", "pay-1", "admin")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestInvoiceService_LinkPayment(t *testing.T) {
	f := newFixture(t)
	seedInvoiceDetail(t, f)
	require.NoError(t, f.db.Create(&model.Payment{BubbleID: "pay-2", PaymentFields: model.PaymentFields{Amount: amt("5500")}}).Error)
	ctx := context.Background()

	detail, err := f.invoiceSvc.LinkPayment(ctx, "inv-1", "pay-2", "admin")
	require.NoError(t, err)
	assert.Equal(t, []string{"pay-1", "sub-1", "ghost", "pay-2"}, detail.LinkedPayment)
	assert.Equal(t, "7000.00", detail.TotalPaid)
	assert.Equal(t, model.InvoiceStatusFullyPaid, detail.Status)
	require.NotNil(t, detail.PercentOfTotalAmount)
	assert.Equal(t, "100.00", *detail.PercentOfTotalAmount)

	// linking twice keeps one entry
	again, err := f.invoiceSvc.LinkPayment(ctx, "inv-1", "pay-2", "admin")
	require.NoError(t, err)
	assert.Len(t, again.LinkedPayment, 4)

	_, err = f.invoiceSvc.LinkPayment(ctx, "inv-1", "sub-del", "admin")
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	_, err = f.invoiceSvc.LinkPayment(ctx, "inv-1", "nothing", "admin")
	assert.True(t, errors.Is(err, repository.ErrNotFound))

	history, err := f.auditSvc.History(ctx, model.EntityInvoice, "inv-1", "")
	require.NoError(t, err)
	actions := make([]string, 0, len(history.Events))
	for _, e := range history.Events {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{model.ActionLinkPayment, model.ActionStatusRecompute}, actions)
}

package service

import (
	"context"
	"testing"

	"backoffice/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestDeriveInvoiceStatus(t *testing.T) {
	thousand := amt("1000")

	tests := []struct {
		name    string
		in      StatusInput
		want    string
		changed bool
	}{
		{"seda approved wins over payment", StatusInput{Current: "DEPOSIT", TotalAmount: thousand, TotalPaid: decimal.NewFromInt(100), SedaStatus: "Approved"}, model.InvoiceStatusSedaApproved, true},
		{"exactly 99.9 percent is fully paid", StatusInput{Current: "DEPOSIT", TotalAmount: thousand, TotalPaid: decimal.RequireFromString("999")}, model.InvoiceStatusFullyPaid, true},
		{"99.89 percent is unchanged", StatusInput{Current: "DEPOSIT", TotalAmount: thousand, TotalPaid: decimal.RequireFromString("998.9")}, "DEPOSIT", false},
		{"overpaid is fully paid", StatusInput{Current: "draft", TotalAmount: thousand, TotalPaid: decimal.NewFromInt(1200)}, model.InvoiceStatusFullyPaid, true},
		{"below half is deposit", StatusInput{Current: "draft", TotalAmount: thousand, TotalPaid: decimal.RequireFromString("499.99")}, model.InvoiceStatusDeposit, true},
		{"exactly half is unchanged", StatusInput{Current: "draft", TotalAmount: thousand, TotalPaid: decimal.NewFromInt(500)}, "draft", false},
		{"nothing paid and no seda is draft", StatusInput{Current: "DEPOSIT", TotalAmount: thousand}, model.InvoiceStatusDraft, true},
		{"nothing paid with pending seda is unchanged", StatusInput{Current: "DEPOSIT", TotalAmount: thousand, SedaStatus: "Pending"}, "DEPOSIT", false},
		{"missing total counts as zero percent", StatusInput{Current: "Custom", TotalPaid: decimal.NewFromInt(10)}, model.InvoiceStatusDraft, true},
		{"already fully paid", StatusInput{Current: model.InvoiceStatusFullyPaid, TotalAmount: thousand, TotalPaid: decimal.NewFromInt(1000)}, model.InvoiceStatusFullyPaid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := DeriveInvoiceStatus(tt.in)
			assert.Equal(t, tt.want, out.Status)
			assert.Equal(t, tt.changed, out.Changed)
		})
	}
}

func TestPaymentPercent(t *testing.T) {
	p := PaymentPercent(amt("3000"), decimal.NewFromInt(1000))
	require.True(t, p.Valid)
	assert.Equal(t, "33.33", p.Decimal.Round(2).StringFixed(2))

	assert.False(t, PaymentPercent(decimal.NullDecimal{}, decimal.NewFromInt(1)).Valid)
	assert.False(t, PaymentPercent(amt("0"), decimal.NewFromInt(1)).Valid)
}

func seedStatusScenario(t *testing.T, f *fixture) {
	t.Helper()
	require.NoError(t, f.db.Create(&[]model.Payment{
		{BubbleID: "p1", PaymentFields: model.PaymentFields{Amount: amt("300")}},
		{BubbleID: "p2", PaymentFields: model.PaymentFields{Amount: amt("999")}},
		{BubbleID: "p3", PaymentFields: model.PaymentFields{Amount: amt("999")}},
		{BubbleID: "p4", PaymentFields: model.PaymentFields{Amount: amt("600")}},
		{BubbleID: "p-null"},
	}).Error)
	require.NoError(t, f.db.Create(&[]model.SubmittedPayment{
		{BubbleID: "s1", Status: model.SubmittedPending, PaymentFields: model.PaymentFields{Amount: amt("1")}},
		{BubbleID: "s-del", Status: model.SubmittedDeleted, PaymentFields: model.PaymentFields{Amount: amt("500")}},
	}).Error)
	require.NoError(t, f.db.Create(&model.SedaRegistration{BubbleID: "seda-d", SedaStatus: "approved"}).Error)

	thousand := amt("1000")
	require.NoError(t, f.db.Create(&[]model.Invoice{
		{BubbleID: "A", Status: "draft", TotalAmount: thousand, LinkedPayment: datatypes.JSONSlice[string]{"p1"}},
		{BubbleID: "B", Status: "DEPOSIT", TotalAmount: thousand, LinkedPayment: datatypes.JSONSlice[string]{"p2", "s1"}},
		{BubbleID: "C", Status: "DEPOSIT", TotalAmount: thousand, LinkedPayment: datatypes.JSONSlice[string]{"p3", "p-null", "unknown"}},
		{BubbleID: "D", Status: "draft", TotalAmount: thousand, LinkedSedaRegistration: "seda-d"},
		{BubbleID: "E", Status: "DEPOSIT", TotalAmount: thousand, LinkedPayment: datatypes.JSONSlice[string]{"p4"}},
		{BubbleID: "F", Status: "Deleted", TotalAmount: thousand},
		{BubbleID: "G", Status: "draft", TotalAmount: thousand, LinkedPayment: datatypes.JSONSlice[string]{"s-del"}},
	}).Error)
}

func TestInvoiceStatusService_TotalPaid(t *testing.T) {
	f := newFixture(t)
	seedStatusScenario(t, f)
	ctx := context.Background()

	total, err := f.statusSvc.TotalPaid(ctx, []string{"p2", "s1", "s-del", "p-null", "missing"})
	require.NoError(t, err)
	assert.Equal(t, "1000", total.String())
}

func TestInvoiceStatusService_RecomputeStatuses(t *testing.T) {
	f := newFixture(t)
	seedStatusScenario(t, f)
	ctx := context.Background()

	res, err := f.statusSvc.RecomputeStatuses(ctx, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, RecomputeResult{Scanned: 6, Updated: 4, Unchanged: 2}, res)

	want := map[string]string{
		"A": model.InvoiceStatusDeposit,
		"B": model.InvoiceStatusFullyPaid,
		"C": model.InvoiceStatusFullyPaid,
		"D": model.InvoiceStatusSedaApproved,
		"E": "DEPOSIT",
		"F": "Deleted",
		"G": "draft",
	}
	for id, status := range want {
		inv, err := f.invoices.FindByBubbleID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, status, inv.Status, id)
	}

	events, err := f.audit.ForEntity(ctx, model.EntityInvoice, "A")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.ActionStatusRecompute, events[0].Action)
	assert.Equal(t, "draft", events[0].OldValue)
	assert.Equal(t, model.InvoiceStatusDeposit, events[0].NewValue)
	assert.Equal(t, "ops@example.com", events[0].Actor)
	assert.JSONEq(t, `{"percent":"30","seda_status":""}`, string(events[0].Details))

	again, err := f.statusSvc.RecomputeStatuses(ctx, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Updated)
	assert.Equal(t, 6, again.Unchanged)
}

func TestInvoiceStatusService_RecomputePercentages(t *testing.T) {
	f := newFixture(t)
	seedStatusScenario(t, f)
	require.NoError(t, f.db.Create(&[]model.Invoice{
		{BubbleID: "no-total", Status: "draft"},
		{BubbleID: "zero-total", Status: "draft", TotalAmount: amt("0"), PercentOfTotalAmount: amt("40"),
			LinkedPayment: datatypes.JSONSlice[string]{"p1"}},
	}).Error)
	ctx := context.Background()

	res, err := f.statusSvc.RecomputePercentages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, res.Scanned)
	assert.Equal(t, 8, res.Updated)

	for _, id := range []string{"no-total", "zero-total"} {
		inv, err := f.invoices.FindByBubbleID(ctx, id)
		require.NoError(t, err)
		require.True(t, inv.PercentOfTotalAmount.Valid, id)
		assert.True(t, inv.PercentOfTotalAmount.Decimal.IsZero(), id)
	}

	a, err := f.invoices.FindByBubbleID(ctx, "A")
	require.NoError(t, err)
	require.True(t, a.PercentOfTotalAmount.Valid)
	assert.Equal(t, "30.00", a.PercentOfTotalAmount.Decimal.StringFixed(2))

	g, err := f.invoices.FindByBubbleID(ctx, "G")
	require.NoError(t, err)
	assert.Equal(t, "0.00", g.PercentOfTotalAmount.Decimal.StringFixed(2))

	again, err := f.statusSvc.RecomputePercentages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Updated)
}

func TestInvoiceStatusService_RecomputeInvoiceClearsStalePercent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Create(&model.Invoice{BubbleID: "Z", Status: "DEPOSIT", TotalAmount: amt("0"), PercentOfTotalAmount: amt("40")}).Error)
	ctx := context.Background()

	out, err := f.statusSvc.RecomputeInvoice(ctx, "Z", "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusDraft, out.Status)

	inv, err := f.invoices.FindByBubbleID(ctx, "Z")
	require.NoError(t, err)
	require.True(t, inv.PercentOfTotalAmount.Valid)
	assert.True(t, inv.PercentOfTotalAmount.Decimal.IsZero())
}

func TestChunkStrings(t *testing.T) {
	assert.Nil(t, chunkStrings(nil, 2))
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, chunkStrings([]string{"a", "b", "c"}, 2))
	assert.Equal(t, []string{"a", "b"}, uniqueStrings([]string{"a", "", "b", "a"}))
}

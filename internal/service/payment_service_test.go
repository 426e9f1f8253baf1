package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestPaymentService_VerifyPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.Create(&model.Invoice{
		BubbleID: "inv-1", Status: "draft", TotalAmount: amt("1000"),
	}).Error)
	require.NoError(t, f.db.Create(&model.SubmittedPayment{
		BubbleID: "sub-1",
		Status:   model.SubmittedPending,
		PaymentFields: model.PaymentFields{
			Amount:        amt("250"),
			PaymentDate:   at("2024-03-01T02:00:00Z"),
			LinkedInvoice: "inv-1",
			LinkedAgent:   "agent-1",
			Attachment:    datatypes.JSONSlice[string]{"https://files.example.com/a.jpg"},
		},
	}).Error)

	res, err := f.paymentSvc.VerifyPayment(ctx, "sub-1", "reviewer@example.com")
	require.NoError(t, err)
	assert.Equal(t, SourceVerified, res.Source)
	assert.Equal(t, "reviewer@example.com", res.VerifiedBy)
	require.NotNil(t, res.Amount)
	assert.Equal(t, "250.00", *res.Amount)
	assert.Equal(t, []string{"https://files.example.com/a.jpg"}, res.Attachment)

	sp, err := f.submitted.FindByBubbleID(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, model.SubmittedVerified, sp.Status)

	inv, err := f.invoices.FindByBubbleID(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-1"}, []string(inv.LinkedPayment))
	assert.Equal(t, model.InvoiceStatusDeposit, inv.Status)
	assert.Equal(t, "25.00", inv.PercentOfTotalAmount.Decimal.StringFixed(2))

	history, err := f.paymentSvc.History(ctx, SourceSubmitted, "sub-1")
	require.NoError(t, err)
	require.Len(t, history.Events, 1)
	assert.Equal(t, model.ActionVerifyPayment, history.Events[0].Action)

	_, err = f.paymentSvc.VerifyPayment(ctx, "sub-1", "reviewer@example.com")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestPaymentService_VerifyPayment_UnknownInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.Create(&model.SubmittedPayment{
		BubbleID:      "sub-1",
		Status:        model.SubmittedPending,
		PaymentFields: model.PaymentFields{Amount: amt("10"), LinkedInvoice: "ghost"},
	}).Error)

	_, err := f.paymentSvc.VerifyPayment(ctx, "sub-1", "")
	require.NoError(t, err)

	p, err := f.payments.FindByBubbleID(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, model.SystemActor, p.VerifiedBy)
}

func TestPaymentService_VerifyPayment_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.paymentSvc.VerifyPayment(context.Background(), "missing", "x")
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestPaymentService_DeleteAndRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Create(&model.SubmittedPayment{BubbleID: "sub-1", Status: model.SubmittedPending}).Error)

	res, err := f.paymentSvc.DeleteSubmitted(ctx, "sub-1", "ops")
	require.NoError(t, err)
	assert.Equal(t, model.SubmittedDeleted, res.Status)

	_, err = f.paymentSvc.DeleteSubmitted(ctx, "sub-1", "ops")
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	res, err = f.paymentSvc.RestoreSubmitted(ctx, "sub-1", "ops")
	require.NoError(t, err)
	assert.Equal(t, model.SubmittedPending, res.Status)

	history, err := f.paymentSvc.History(ctx, SourceSubmitted, "sub-1")
	require.NoError(t, err)
	require.Len(t, history.Events, 2)
	assert.Equal(t, model.ActionDeleteSubmission, history.Events[0].Action)
	assert.Equal(t, model.ActionRestoreSubmission, history.Events[1].Action)
}

func TestPaymentService_UpdateSubmitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Create(&model.SubmittedPayment{
		BubbleID:      "sub-1",
		Status:        model.SubmittedPending,
		PaymentFields: model.PaymentFields{Amount: amt("100"), PaymentMethod: "cash", Log: "2023-01-01 created by agent"},
	}).Error)

	amount := "150.50"
	method := "cash"
	remark := "corrected"
	date := "2024-05-02"
	res, err := f.paymentSvc.UpdateSubmitted(ctx, "sub-1", UpdateSubmittedRequest{
		Amount:        &amount,
		PaymentMethod: &method,
		Remark:        &remark,
		PaymentDate:   &date,
	}, "ops")
	require.NoError(t, err)
	require.NotNil(t, res.Amount)
	assert.Equal(t, "150.50", *res.Amount)
	assert.Equal(t, "corrected", res.Remark)
	require.NotNil(t, res.PaymentDate)
	assert.Equal(t, "2024-05-01T16:00:00Z", *res.PaymentDate)

	history, err := f.paymentSvc.History(ctx, SourceSubmitted, "sub-1")
	require.NoError(t, err)
	require.Len(t, history.Events, 3)
	fields := []string{history.Events[0].Field, history.Events[1].Field, history.Events[2].Field}
	assert.ElementsMatch(t, []string{"amount", "payment_date", "remark"}, fields)
	require.Len(t, history.Lines, 4)
	assert.Equal(t, "2023-01-01 created by agent", history.Lines[0])
	assert.Contains(t, history.Lines[1], "ops changed amount from \"100.00\" to \"150.50\"")

	bad := "abc"
	_, err = f.paymentSvc.UpdateSubmitted(ctx, "sub-1", UpdateSubmittedRequest{Amount: &bad}, "ops")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestPaymentService_UpdateSubmitted_RejectsVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Create(&model.SubmittedPayment{BubbleID: "sub-1", Status: model.SubmittedVerified}).Error)

	remark := "x"
	_, err := f.paymentSvc.UpdateSubmitted(ctx, "sub-1", UpdateSubmittedRequest{Remark: &remark}, "ops")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestPaymentService_History_UnknownSource(t *testing.T) {
	f := newFixture(t)
	_, err := f.paymentSvc.History(context.Background(), "other", "x")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestPaymentService_AutoReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.Create(&[]model.Payment{
		{BubbleID: "P1", PaymentFields: model.PaymentFields{Amount: amt("500"), PaymentDate: at("2024-03-01T01:00:00Z"), LinkedAgent: "ag", LinkedInvoice: "inv", LinkedCustomer: "cust"}},
		{BubbleID: "P2", PaymentFields: model.PaymentFields{Amount: amt("75"), PaymentDate: at("2024-04-10T03:00:00Z"), LinkedAgent: "ag2", LinkedInvoice: "inv2", LinkedCustomer: "cust2"}},
		{BubbleID: "P3", PaymentFields: model.PaymentFields{Amount: amt("42"), PaymentDate: at("2024-06-01T00:00:00Z")}},
	}).Error)

	require.NoError(t, f.db.Create(&[]model.SubmittedPayment{
		// same local day as P1 (2024-03-01 +08:00)
		{BubbleID: "S1", Status: model.SubmittedPending, PaymentFields: model.PaymentFields{Amount: amt("500"), PaymentDate: at("2024-03-01T14:00:00Z"), LinkedAgent: "ag", LinkedInvoice: "inv", LinkedCustomer: "cust"}},
		// a different day
		{BubbleID: "S2", Status: model.SubmittedPending, PaymentFields: model.PaymentFields{Amount: amt("500"), PaymentDate: at("2024-03-02T17:00:00Z"), LinkedAgent: "ag", LinkedInvoice: "inv", LinkedCustomer: "cust"}},
		// no agent or invoice to narrow by
		{BubbleID: "S3", Status: model.SubmittedPending, PaymentFields: model.PaymentFields{Amount: amt("75"), PaymentDate: at("2024-04-10T10:00:00Z"), LinkedCustomer: "cust2"}},
		// customer differs from P3's empty customer
		{BubbleID: "S4", Status: model.SubmittedPending, PaymentFields: model.PaymentFields{Amount: amt("42"), PaymentDate: at("2024-06-01T00:00:00Z"), LinkedCustomer: "someone"}},
		{BubbleID: "S5", Status: model.SubmittedDeleted, PaymentFields: model.PaymentFields{Amount: amt("500"), PaymentDate: at("2024-03-01T01:00:00Z"), LinkedAgent: "ag", LinkedInvoice: "inv", LinkedCustomer: "cust"}},
	}).Error)

	res, err := f.paymentSvc.AutoReconcile(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Scanned: 4, Matched: 2}, res)

	for id, want := range map[string]string{
		"S1": model.SubmittedDeleted,
		"S2": model.SubmittedPending,
		"S3": model.SubmittedDeleted,
		"S4": model.SubmittedPending,
	} {
		sp, err := f.submitted.FindByBubbleID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, sp.Status, id)
	}

	events, err := f.audit.ForEntity(ctx, model.EntitySubmittedPayment, "S1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.ActionAutoReconcile, events[0].Action)
	assert.Equal(t, "status", events[0].Field)
	assert.Equal(t, model.SubmittedPending, events[0].OldValue)
	assert.Equal(t, model.SubmittedDeleted, events[0].NewValue)
	assert.JSONEq(t, `{"matched_payment":"P1"}`, string(events[0].Details))
	assert.Equal(t, "auto-reconciled: matches verified payment P1", describe(events[0]))
	assert.Equal(t, model.SystemActor, events[0].Actor)

	again, err := f.paymentSvc.AutoReconcile(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Scanned: 2, Matched: 0}, again)
}

func TestSameCalendarDay(t *testing.T) {
	// 2024-03-01 23:00 UTC is already 2024-03-02 in +08:00
	a := at("2024-03-01T10:00:00Z")
	b := at("2024-03-01T23:00:00Z")
	assert.True(t, sameCalendarDay(a, b, time.UTC))
	assert.False(t, sameCalendarDay(a, b, testLoc))
	assert.False(t, sameCalendarDay(nil, b, testLoc))
	assert.False(t, sameCalendarDay(nil, nil, testLoc))
}

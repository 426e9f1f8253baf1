package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"backoffice/internal/bubble"
	"backoffice/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSource serves records from memory two per page
type fakeSource struct {
	records map[string][]bubble.Record
	queries []bubble.Query
	gets    []string
}

func (f *fakeSource) Walk(ctx context.Context, typeName string, q bubble.Query, fn func(*bubble.Page) error) error {
	f.queries = append(f.queries, q)
	recs := f.records[typeName]
	for start := 0; start < len(recs); start += 2 {
		end := start + 2
		if end > len(recs) {
			end = len(recs)
		}
		page := &bubble.Page{Results: recs[start:end], Cursor: start, Count: end - start, Remaining: len(recs) - end}
		if err := fn(page); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSource) Get(ctx context.Context, typeName, id string) (bubble.Record, error) {
	f.gets = append(f.gets, id)
	for _, r := range f.records[typeName] {
		if r.ID() == id {
			return r, nil
		}
	}
	return nil, bubble.ErrNotFound
}

func newSyncService(f *fixture, src RemoteSource) SyncService {
	return NewSyncService(src, f.records, f.runs, f.repairSvc, nil, zap.NewNop())
}

func TestSyncService_SyncEntity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := &fakeSource{records: map[string][]bubble.Record{
		"seda_registration": {
			{"_id": "seda-1", "SEDA Status": "APPROVED", "Linked Invoice": []interface{}{"inv-1"}, "Modified Date": "2024-03-01T10:00:00.000Z"},
			{"_id": "seda-2", "Reg Status": "Pending", "System Size kWp": "12.5", "Modified Date": "2024-03-05T10:00:00.000Z"},
			{"Reg Status": "no id"},
		},
	}}
	svc := newSyncService(f, src)

	res, err := svc.SyncEntity(ctx, "seda_registration", SyncOptions{Incremental: true})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, 1, res.Skipped)
	require.NotNil(t, res.Checkpoint)
	assert.True(t, res.Checkpoint.Equal(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)))
	assert.Nil(t, src.queries[0].DateFrom)

	s1, err := f.seda.FindByBubbleID(ctx, "seda-1")
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", s1.SedaStatus)
	assert.Equal(t, []string{"inv-1"}, []string(s1.LinkedInvoice))

	s2, err := f.seda.FindByBubbleID(ctx, "seda-2")
	require.NoError(t, err)
	assert.Equal(t, "Pending", s2.SedaStatus)
	assert.Equal(t, "12.5", s2.SystemSizeKwp.Decimal.String())

	_, err = svc.SyncEntity(ctx, "seda_registration", SyncOptions{Incremental: true})
	require.NoError(t, err)
	require.Len(t, src.queries, 2)
	require.NotNil(t, src.queries[1].DateFrom)
	assert.True(t, src.queries[1].DateFrom.Equal(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)))

	// an explicit range wins over the checkpoint
	from := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.SyncEntity(ctx, "seda_registration", SyncOptions{Incremental: true, DateFrom: &from})
	require.NoError(t, err)
	assert.True(t, src.queries[2].DateFrom.Equal(from))
}

func TestSyncService_SyncEntity_WindowKeepsCheckpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stored := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.runs.SaveCheckpoint(ctx, "invoice", stored))

	src := &fakeSource{records: map[string][]bubble.Record{
		"invoice": {{"_id": "inv-7", "Modified Date": "2024-07-01T00:00:00.000Z"}},
	}}
	svc := newSyncService(f, src)

	later := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	res, err := svc.SyncEntity(ctx, "invoice", SyncOptions{DateFrom: &later})
	require.NoError(t, err)
	assert.Nil(t, res.Checkpoint)

	to := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	_, err = svc.SyncEntity(ctx, "invoice", SyncOptions{DateFrom: &stored, DateTo: &to})
	require.NoError(t, err)

	cp, err := f.runs.Checkpoint(ctx, "invoice")
	require.NoError(t, err)
	assert.True(t, cp.LastModified.Equal(stored), cp.LastModified.String())

	// an incremental run starts at the stored checkpoint and may advance it
	res, err = svc.SyncEntity(ctx, "invoice", SyncOptions{Incremental: true})
	require.NoError(t, err)
	require.NotNil(t, src.queries[2].DateFrom)
	assert.True(t, src.queries[2].DateFrom.Equal(stored))
	require.NotNil(t, res.Checkpoint)
	assert.True(t, res.Checkpoint.Equal(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)))
}

func TestSyncService_SyncEntity_RepairsLinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Create(&model.Invoice{BubbleID: "inv-1", Status: "draft"}).Error)

	src := &fakeSource{records: map[string][]bubble.Record{
		"seda_registration": {{"_id": "seda-1", "Linked Invoice": []interface{}{"inv-1"}}},
	}}
	res, err := newSyncService(f, src).SyncEntity(ctx, "seda_registration", SyncOptions{})
	require.NoError(t, err)
	require.NotNil(t, res.LinkRepair)
	assert.Equal(t, 1, res.LinkRepair.InvoiceSeda.Linked)

	inv, err := f.invoices.FindByBubbleID(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "seda-1", inv.LinkedSedaRegistration)
}

func TestSyncService_SyncEntity_UnknownEntity(t *testing.T) {
	f := newFixture(t)
	_, err := newSyncService(f, &fakeSource{}).SyncEntity(context.Background(), "widgets", SyncOptions{})
	assert.True(t, errors.Is(err, ErrUnknownEntity))
}

func TestSyncService_SyncEntity_DefaultsAndOverwrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Create(&model.Invoice{BubbleID: "inv-1", Status: "DEPOSIT", Remark: "local"}).Error)

	src := &fakeSource{records: map[string][]bubble.Record{
		"invoice": {
			{"_id": "inv-1", "Invoice ID": "INV-1", "Total Amount": "1,250.50", "Linked Payment": []interface{}{"p1", "p2"}},
			{"_id": "inv-2", "Total Amount": "abc"},
		},
	}}
	_, err := newSyncService(f, src).SyncEntity(ctx, "invoice", SyncOptions{})
	require.NoError(t, err)

	inv1, err := f.invoices.FindByBubbleID(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "INV-1", inv1.InvoiceNumber)
	assert.Equal(t, "1250.50", inv1.TotalAmount.Decimal.StringFixed(2))
	assert.Equal(t, "draft", inv1.Status)
	assert.Equal(t, "", inv1.Remark)
	assert.Equal(t, []string{"p1", "p2"}, []string(inv1.LinkedPayment))

	inv2, err := f.invoices.FindByBubbleID(ctx, "inv-2")
	require.NoError(t, err)
	assert.False(t, inv2.TotalAmount.Valid)
	assert.Empty(t, inv2.LinkedPayment)
}

func TestSyncService_SyncEntity_MergeEmptyOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Create(&model.Invoice{BubbleID: "inv-1", Status: "DEPOSIT", Remark: "local"}).Error)

	src := &fakeSource{records: map[string][]bubble.Record{
		"invoice": {
			{"_id": "inv-1", "Invoice ID": "INV-9", "Remark": "remote", "Status": "draft"},
		},
	}}
	res, err := newSyncService(f, src).SyncEntity(ctx, "invoice", SyncOptions{MergeEmptyOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Merged)
	assert.Equal(t, 0, res.Written)

	inv, err := f.invoices.FindByBubbleID(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "INV-9", inv.InvoiceNumber)
	assert.Equal(t, "local", inv.Remark)
	assert.Equal(t, "DEPOSIT", inv.Status)
}

func TestSyncService_SubmittedStatusIsLocal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Create(&model.SubmittedPayment{BubbleID: "sub-1", Status: model.SubmittedVerified}).Error)

	src := &fakeSource{records: map[string][]bubble.Record{
		"submit_payment": {
			{"_id": "sub-1", "Amount": 100, "Status": "pending"},
			{"_id": "sub-2", "Amount": "20"},
		},
	}}
	_, err := newSyncService(f, src).SyncEntity(ctx, "submitted_payment", SyncOptions{})
	require.NoError(t, err)

	sub1, err := f.submitted.FindByBubbleID(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, model.SubmittedVerified, sub1.Status)

	sub2, err := f.submitted.FindByBubbleID(ctx, "sub-2")
	require.NoError(t, err)
	assert.Equal(t, model.SubmittedPending, sub2.Status)
}

func TestSyncService_SyncByIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	localMod := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.db.Create(&model.Invoice{
		BubbleID: "inv-old", Status: "draft", BubbleDates: model.BubbleDates{ModifiedDate: &localMod},
	}).Error)
	require.NoError(t, f.db.Create(&model.Invoice{
		BubbleID: "inv-stale", Status: "draft", BubbleDates: model.BubbleDates{ModifiedDate: &localMod},
	}).Error)

	src := &fakeSource{records: map[string][]bubble.Record{
		"invoice": {
			{"_id": "inv-old", "Invoice ID": "OLD"},
			{"_id": "inv-stale", "Invoice ID": "STALE-NEW"},
			{"_id": "inv-new", "Invoice ID": "NEW"},
		},
	}}
	stamps := []bubble.IDStamp{
		{ID: "inv-old", ModifiedDate: localMod},
		{ID: "inv-stale", ModifiedDate: localMod.Add(time.Hour)},
		{ID: "inv-new"},
		{ID: "inv-gone"},
	}

	res, err := newSyncService(f, src).SyncByIDs(ctx, "invoice", stamps, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Requested)
	assert.Equal(t, 1, res.UpToDate)
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, 1, res.Missing)
	assert.NotNil(t, res.LinkRepair)
	assert.Equal(t, []string{"inv-stale", "inv-new", "inv-gone"}, src.gets)

	stale, err := f.invoices.FindByBubbleID(ctx, "inv-stale")
	require.NoError(t, err)
	assert.Equal(t, "STALE-NEW", stale.InvoiceNumber)

	old, err := f.invoices.FindByBubbleID(ctx, "inv-old")
	require.NoError(t, err)
	assert.Equal(t, "", old.InvoiceNumber)
}

func TestSyncService_SyncAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := &fakeSource{records: map[string][]bubble.Record{
		"invoice":           {{"_id": "inv-1"}},
		"seda_registration": {{"_id": "seda-1", "Linked Invoice": []interface{}{"inv-1"}}},
	}}

	res, err := newSyncService(f, src).SyncAll(ctx, SyncOptions{})
	require.NoError(t, err)
	require.Len(t, res.Entities, len(Entities))
	assert.Equal(t, EntityNames()[0], res.Entities[0].Entity)
	require.NotNil(t, res.LinkRepair)
	assert.Equal(t, 1, res.LinkRepair.InvoiceSeda.Linked)
	assert.Nil(t, res.Files)

	inv, err := f.invoices.FindByBubbleID(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "seda-1", inv.LinkedSedaRegistration)
}

func TestEntitySpec_Map(t *testing.T) {
	spec, err := LookupEntity("payment")
	require.NoError(t, err)

	cols := spec.Map(bubble.Record{
		"_id":           "p1",
		"Amount":        "2,000.00",
		"EPP Month":     "12",
		"Payment Date":  "2024-01-15T08:00:00.000Z",
		"Attachment":    "//cdn.bubble.io/a.jpg",
		"Modified Date": "not a date",
	})
	assert.Equal(t, "2000", cols["amount"].(decimal.NullDecimal).Decimal.String())
	assert.Equal(t, 12, cols["epp_month"])
	paid, ok := cols["payment_date"].(time.Time)
	require.True(t, ok)
	assert.True(t, paid.Equal(time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)))
	assert.Nil(t, cols["modified_date"])
	assert.Equal(t, "", cols["remark"])
	assert.Contains(t, cols, "attachment")
}

package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const testPublicBase = "https://api.test"

var testFileFields = []AttachmentField{
	{Table: "payments", Column: "attachment", Subfolder: "payments", IsArray: true},
	{Table: "seda_registrations", Column: "ic_copy_front", Subfolder: "seda"},
}

func newFileService(t *testing.T, f *fixture, store storage.Store, client *http.Client) FileMigrationService {
	t.Helper()
	opts := []FileMigrationOption{
		WithAttachmentFields(testFileFields),
		WithClock(func() time.Time { return time.UnixMilli(1700000000000) }),
	}
	if client != nil {
		opts = append(opts, WithDownloadClient(client))
	}
	return NewFileMigrationService(f.records, store, testPublicBase, []string{"127.0.0.1"}, 5*time.Second, zap.NewNop(), opts...)
}

func readStored(t *testing.T, store storage.Store, sub, name string) string {
	t.Helper()
	rc, _, err := store.Open(context.Background(), sub, name)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestFileMigrationService_MigrateFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/receipt.pdf":
			_, _ = w.Write([]byte("PDFDATA"))
		case "/files/ic.png":
			_, _ = w.Write([]byte("PNGDATA"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := newFixture(t)
	ctx := context.Background()
	store, err := storage.NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, f.db.Create(&[]model.Payment{
		{BubbleID: "p1", PaymentFields: model.PaymentFields{Attachment: datatypes.JSONSlice[string]{srv.URL + "/files/receipt.pdf", "https://other.example.com/x.jpg"}}},
		{BubbleID: "p2", PaymentFields: model.PaymentFields{Attachment: datatypes.JSONSlice[string]{srv.URL + "/files/missing.jpg"}}},
		{BubbleID: "p3"},
	}).Error)
	require.NoError(t, f.db.Create(&model.SedaRegistration{BubbleID: "s1", IcCopyFront: srv.URL + "/files/ic.png"}).Error)

	svc := newFileService(t, f, store, srv.Client())
	res, err := svc.MigrateFiles(ctx)
	require.NoError(t, err)
	require.Len(t, res.Fields, 2)
	assert.Equal(t, FileFieldStats{Table: "payments", Column: "attachment", Subfolder: "payments", Scanned: 3, Migrated: 1, Failed: 1, Skipped: 1}, res.Fields[0])
	assert.Equal(t, 1, res.Fields[1].Migrated)
	assert.Equal(t, 2, res.Total.Migrated)

	p1, err := f.payments.FindByBubbleID(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, p1.Attachment, 2)
	assert.Equal(t, LocalFileURL(testPublicBase, "payments", "1_receipt_1700000000000.pdf"), p1.Attachment[0])
	assert.Equal(t, "https://other.example.com/x.jpg", p1.Attachment[1])
	assert.Equal(t, "PDFDATA", readStored(t, store, "payments", "1_receipt_1700000000000.pdf"))

	p2, err := f.payments.FindByBubbleID(ctx, "p2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p2.Attachment[0], srv.URL))

	s1, err := f.seda.FindByBubbleID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, testPublicBase+"/api/files/seda/1_ic_1700000000000.png", s1.IcCopyFront)
	assert.Equal(t, "PNGDATA", readStored(t, store, "seda", "1_ic_1700000000000.png"))

	again, err := svc.MigrateFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Total.Migrated)
	assert.Equal(t, 1, again.Total.Failed)
}

func TestFileMigrationService_FixFilenames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	store, err := storage.NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	save := func(sub, name, body string) {
		_, err := store.Save(ctx, sub, name, strings.NewReader(body))
		require.NoError(t, err)
	}
	save("seda", "报价.pdf", "quote")
	save("seda", SanitizeFilename("旧.png"), "old")
	save("payments", "ok.pdf", "ok")
	save("payments", "收据.jpg", "receipt")

	require.NoError(t, f.db.Create(&[]model.SedaRegistration{
		{BubbleID: "s1", IcCopyFront: LocalFileURL(testPublicBase, "seda", "报价.pdf")},
		{BubbleID: "s2", IcCopyFront: LocalFileURL(testPublicBase, "seda", "幽灵.png")},
		{BubbleID: "s3", IcCopyFront: LocalFileURL(testPublicBase, "seda", "旧.png")},
	}).Error)
	require.NoError(t, f.db.Create(&model.Payment{
		BubbleID: "p1",
		PaymentFields: model.PaymentFields{Attachment: datatypes.JSONSlice[string]{
			LocalFileURL(testPublicBase, "payments", "ok.pdf"),
			LocalFileURL(testPublicBase, "payments", "收据.jpg"),
		}},
	}).Error)

	svc := newFileService(t, f, store, nil)
	res, err := svc.FixFilenames(ctx)
	require.NoError(t, err)
	assert.Equal(t, FileFieldStats{Table: "payments", Column: "attachment", Subfolder: "payments", Scanned: 2, Renamed: 1, Skipped: 1}, res.Fields[0])
	assert.Equal(t, FileFieldStats{Table: "seda_registrations", Column: "ic_copy_front", Subfolder: "seda", Scanned: 3, Renamed: 2, Failed: 1}, res.Fields[1])

	s1, err := f.seda.FindByBubbleID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, LocalFileURL(testPublicBase, "seda", SanitizeFilename("报价.pdf")), s1.IcCopyFront)
	assert.Equal(t, "quote", readStored(t, store, "seda", SanitizeFilename("报价.pdf")))
	exists, err := store.Exists(ctx, "seda", "报价.pdf")
	require.NoError(t, err)
	assert.False(t, exists)

	// the stored URL escapes the percent signs of the sanitized name
	u, err := url.Parse(s1.IcCopyFront)
	require.NoError(t, err)
	assert.Equal(t, "/api/files/seda/"+SanitizeFilename("报价.pdf"), u.Path)

	s2, err := f.seda.FindByBubbleID(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, LocalFileURL(testPublicBase, "seda", "幽灵.png"), s2.IcCopyFront)

	p1, err := f.payments.FindByBubbleID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, LocalFileURL(testPublicBase, "payments", "ok.pdf"), p1.Attachment[0])
	assert.Equal(t, LocalFileURL(testPublicBase, "payments", SanitizeFilename("收据.jpg")), p1.Attachment[1])

	again, err := svc.FixFilenames(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Total.Renamed)
	assert.Equal(t, 1, again.Total.Failed)
}

package service

import (
	"testing"
	"time"

	"backoffice/internal/repository"
	"backoffice/internal/testutil"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testLoc = time.FixedZone("MYT", 8*60*60)

type fixture struct {
	db         *gorm.DB
	invoices   repository.InvoiceRepository
	payments   repository.PaymentRepository
	submitted  repository.SubmittedPaymentRepository
	seda       repository.SedaRepository
	refs       repository.ReferenceRepository
	audit      repository.AuditRepository
	records    repository.RecordRepository
	runs       repository.SyncRunRepository
	tx         repository.TransactionManager
	statusSvc  InvoiceStatusService
	auditSvc   AuditService
	paymentSvc PaymentService
	invoiceSvc InvoiceService
	repairSvc  LinkRepairService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	log := zap.NewNop()

	f := &fixture{
		db:        db,
		invoices:  repository.NewInvoiceRepository(db),
		payments:  repository.NewPaymentRepository(db),
		submitted: repository.NewSubmittedPaymentRepository(db),
		seda:      repository.NewSedaRepository(db),
		refs:      repository.NewReferenceRepository(db),
		audit:     repository.NewAuditRepository(db),
		records:   repository.NewRecordRepository(db),
		runs:      repository.NewSyncRunRepository(db),
		tx:        repository.NewTransactionManager(db),
	}
	f.statusSvc = NewInvoiceStatusService(f.invoices, f.payments, f.submitted, f.seda, f.audit, f.tx, log)
	f.auditSvc = NewAuditService(f.audit)
	f.paymentSvc = NewPaymentService(f.payments, f.submitted, f.invoices, f.audit, f.statusSvc, f.auditSvc, nil, f.tx, testLoc, log)
	f.invoiceSvc = NewInvoiceService(f.invoices, f.payments, f.submitted, f.seda, f.refs, f.audit, f.statusSvc, f.tx, log)
	f.repairSvc = NewLinkRepairService(f.seda, f.invoices, log)
	return f
}

func amt(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func at(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

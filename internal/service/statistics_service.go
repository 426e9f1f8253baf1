package service

import (
	"context"
	"fmt"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/shopspring/decimal"
)

// dashboardMonths is how many calendar months of verified payments the summary buckets
const dashboardMonths = 12

type DashboardService interface {
	Summary(ctx context.Context) (model.DashboardSummary, error)
}

type dashboardService struct {
	statsRepo     repository.StatisticsRepository
	submittedRepo repository.SubmittedPaymentRepository
	paymentRepo   repository.PaymentRepository
	runRepo       repository.SyncRunRepository
	loc           *time.Location
	now           func() time.Time
}

func NewDashboardService(
	statsRepo repository.StatisticsRepository,
	submittedRepo repository.SubmittedPaymentRepository,
	paymentRepo repository.PaymentRepository,
	runRepo repository.SyncRunRepository,
	loc *time.Location,
) DashboardService {
	if loc == nil {
		loc = time.UTC
	}
	return &dashboardService{
		statsRepo:     statsRepo,
		submittedRepo: submittedRepo,
		paymentRepo:   paymentRepo,
		runRepo:       runRepo,
		loc:           loc,
		now:           time.Now,
	}
}

// Summary aggregates invoice and queue state plus the latest run of each job kind
func (s *dashboardService) Summary(ctx context.Context) (model.DashboardSummary, error) {
	now := s.now().In(s.loc)
	summary := model.DashboardSummary{GeneratedAt: now}

	var err error
	if summary.InvoicesByStatus, err = s.statsRepo.InvoiceAmounts(ctx); err != nil {
		return summary, err
	}
	if summary.SubmittedByStatus, err = s.submittedRepo.CountByStatus(ctx); err != nil {
		return summary, fmt.Errorf("failed to count submitted payments: %w", err)
	}

	total, count, err := s.paymentRepo.VerifiedTotals(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to total verified payments: %w", err)
	}
	summary.VerifiedTotalAmount = total.StringFixed(2)
	summary.VerifiedCount = count

	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc).AddDate(0, -(dashboardMonths - 1), 0)
	dated, err := s.statsRepo.VerifiedPaymentsSince(ctx, start)
	if err != nil {
		return summary, err
	}
	summary.VerifiedByMonth = bucketByMonth(dated, start, dashboardMonths, s.loc)

	if summary.LastRuns, err = s.runRepo.LatestPerKind(ctx); err != nil {
		return summary, fmt.Errorf("failed to load sync runs: %w", err)
	}
	return summary, nil
}

// bucketByMonth returns one entry per month starting at start, including empty months
func bucketByMonth(rows []model.DatedAmount, start time.Time, months int, loc *time.Location) []model.MonthlyAmount {
	type bucket struct {
		count  int64
		amount decimal.Decimal
	}
	buckets := make(map[string]*bucket, months)
	keys := make([]string, 0, months)
	for i := 0; i < months; i++ {
		key := start.AddDate(0, i, 0).Format("2006-01")
		keys = append(keys, key)
		buckets[key] = &bucket{amount: decimal.Zero}
	}

	for _, row := range rows {
		b, ok := buckets[row.Date.In(loc).Format("2006-01")]
		if !ok {
			continue
		}
		b.count++
		if row.Amount.Valid {
			b.amount = b.amount.Add(row.Amount.Decimal)
		}
	}

	out := make([]model.MonthlyAmount, 0, months)
	for _, key := range keys {
		out = append(out, model.MonthlyAmount{Month: key, Count: buckets[key].count, Amount: buckets[key].amount.StringFixed(2)})
	}
	return out
}

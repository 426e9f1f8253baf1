package repository

import (
	"context"
	"fmt"
	"time"

	"backoffice/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type StatisticsRepository interface {
	InvoiceAmounts(ctx context.Context) ([]model.StatusAmount, error)
	VerifiedPaymentsSince(ctx context.Context, since time.Time) ([]model.DatedAmount, error)
}

type statisticsRepository struct {
	db *gorm.DB
}

func NewStatisticsRepository(db *gorm.DB) StatisticsRepository {
	return &statisticsRepository{db: db}
}

// InvoiceAmounts groups invoices by status with their count and invoiced total
func (r *statisticsRepository) InvoiceAmounts(ctx context.Context) ([]model.StatusAmount, error) {
	var rows []struct {
		Status string
		Count  int64
		Total  decimal.NullDecimal
	}
	if err := GetDB(ctx, r.db).Model(&model.Invoice{}).
		Select("COALESCE(status, '') AS status, COUNT(*) AS count, SUM(total_amount) AS total").
		Group("COALESCE(status, '')").Order("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate invoices: %w", err)
	}

	out := make([]model.StatusAmount, 0, len(rows))
	for _, row := range rows {
		total := decimal.Zero
		if row.Total.Valid {
			total = row.Total.Decimal
		}
		out = append(out, model.StatusAmount{Status: row.Status, Count: row.Count, Total: total.StringFixed(2)})
	}
	return out, nil
}

// VerifiedPaymentsSince returns dated amounts of verified payments; bucketing happens in the caller's timezone
func (r *statisticsRepository) VerifiedPaymentsSince(ctx context.Context, since time.Time) ([]model.DatedAmount, error) {
	var rows []model.DatedAmount
	if err := GetDB(ctx, r.db).Model(&model.Payment{}).
		Select("payment_date AS date, amount").
		Where("payment_date >= ?", since.UTC()).
		Order("payment_date").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query verified payments: %w", err)
	}
	return rows, nil
}

package repository

import (
	"context"

	"backoffice/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentListFilter struct {
	Status  string // submitted queue only
	Agent   string
	Invoice string
	Page    int
	Limit   int
}

// CandidateFilter narrows verified payments for reconciliation. Nil/empty fields are not applied.
type CandidateFilter struct {
	Amount  *decimal.Decimal
	Agent   string
	Invoice string
}

type PaymentRepository interface {
	FindByBubbleID(ctx context.Context, bubbleID string) (*model.Payment, error)
	FindByBubbleIDs(ctx context.Context, bubbleIDs []string) ([]model.Payment, error)
	List(ctx context.Context, filter PaymentListFilter) ([]model.Payment, int64, error)
	FindCandidates(ctx context.Context, filter CandidateFilter) ([]model.Payment, error)
	Upsert(ctx context.Context, payment *model.Payment) error
	VerifiedTotals(ctx context.Context) (decimal.Decimal, int64, error)
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) FindByBubbleID(ctx context.Context, bubbleID string) (*model.Payment, error) {
	var payment model.Payment
	if err := GetDB(ctx, r.db).First(&payment, "bubble_id = ?", bubbleID).Error; err != nil {
		return nil, translate(err)
	}
	return &payment, nil
}

func (r *paymentRepository) FindByBubbleIDs(ctx context.Context, bubbleIDs []string) ([]model.Payment, error) {
	var payments []model.Payment
	if len(bubbleIDs) == 0 {
		return payments, nil
	}
	if err := GetDB(ctx, r.db).Where("bubble_id IN ?", bubbleIDs).Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *paymentRepository) List(ctx context.Context, filter PaymentListFilter) ([]model.Payment, int64, error) {
	var payments []model.Payment
	var total int64

	db := GetDB(ctx, r.db)
	scope := func(q *gorm.DB) *gorm.DB {
		if filter.Agent != "" {
			q = q.Where("linked_agent = ?", filter.Agent)
		}
		if filter.Invoice != "" {
			q = q.Where("linked_invoice = ?", filter.Invoice)
		}
		return q
	}

	if err := db.Model(&model.Payment{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := db.Scopes(scope).Order("payment_date DESC, id DESC").
		Offset(offset).Limit(filter.Limit).Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// FindCandidates returns verified payments equal on every supplied field, ordered by id.
func (r *paymentRepository) FindCandidates(ctx context.Context, filter CandidateFilter) ([]model.Payment, error) {
	query := GetDB(ctx, r.db).Model(&model.Payment{})
	if filter.Amount != nil {
		query = query.Where("amount = ?", *filter.Amount)
	}
	if filter.Agent != "" {
		query = query.Where("linked_agent = ?", filter.Agent)
	}
	if filter.Invoice != "" {
		query = query.Where("linked_invoice = ?", filter.Invoice)
	}

	var payments []model.Payment
	if err := query.Order("id ASC").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// Upsert inserts the payment or overwrites the row sharing its bubble id.
func (r *paymentRepository) Upsert(ctx context.Context, payment *model.Payment) error {
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bubble_id"}},
		UpdateAll: true,
	}).Create(payment).Error
}

func (r *paymentRepository) VerifiedTotals(ctx context.Context) (decimal.Decimal, int64, error) {
	var amounts []decimal.NullDecimal
	if err := GetDB(ctx, r.db).Model(&model.Payment{}).Pluck("amount", &amounts).Error; err != nil {
		return decimal.Zero, 0, err
	}
	total := decimal.Zero
	for _, a := range amounts {
		if a.Valid {
			total = total.Add(a.Decimal)
		}
	}
	return total, int64(len(amounts)), nil
}

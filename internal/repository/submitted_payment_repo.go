package repository

import (
	"context"

	"backoffice/internal/model"

	"gorm.io/gorm"
)

type SubmittedPaymentRepository interface {
	FindByBubbleID(ctx context.Context, bubbleID string) (*model.SubmittedPayment, error)
	FindActiveByBubbleIDs(ctx context.Context, bubbleIDs []string) ([]model.SubmittedPayment, error)
	List(ctx context.Context, filter PaymentListFilter) ([]model.SubmittedPayment, int64, error)
	ListPending(ctx context.Context) ([]model.SubmittedPayment, error)
	UpdateStatus(ctx context.Context, id uint, status string) error
	UpdateColumns(ctx context.Context, id uint, columns map[string]interface{}) error
	CountByStatus(ctx context.Context) ([]model.StatusCount, error)
}

type submittedPaymentRepository struct {
	db *gorm.DB
}

func NewSubmittedPaymentRepository(db *gorm.DB) SubmittedPaymentRepository {
	return &submittedPaymentRepository{db: db}
}

func (r *submittedPaymentRepository) FindByBubbleID(ctx context.Context, bubbleID string) (*model.SubmittedPayment, error) {
	var sp model.SubmittedPayment
	if err := GetDB(ctx, r.db).First(&sp, "bubble_id = ?", bubbleID).Error; err != nil {
		return nil, translate(err)
	}
	return &sp, nil
}

// FindActiveByBubbleIDs skips soft-deleted submissions
func (r *submittedPaymentRepository) FindActiveByBubbleIDs(ctx context.Context, bubbleIDs []string) ([]model.SubmittedPayment, error) {
	var rows []model.SubmittedPayment
	if len(bubbleIDs) == 0 {
		return rows, nil
	}
	if err := GetDB(ctx, r.db).Where("bubble_id IN ?", bubbleIDs).
		Where(notDeleted("status")).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *submittedPaymentRepository) List(ctx context.Context, filter PaymentListFilter) ([]model.SubmittedPayment, int64, error) {
	var rows []model.SubmittedPayment
	var total int64

	db := GetDB(ctx, r.db)
	scope := func(q *gorm.DB) *gorm.DB {
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		if filter.Agent != "" {
			q = q.Where("linked_agent = ?", filter.Agent)
		}
		if filter.Invoice != "" {
			q = q.Where("linked_invoice = ?", filter.Invoice)
		}
		return q
	}

	if err := db.Model(&model.SubmittedPayment{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := db.Scopes(scope).Order("created_date DESC, id DESC").
		Offset(offset).Limit(filter.Limit).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListPending returns the pending queue in id order
func (r *submittedPaymentRepository) ListPending(ctx context.Context) ([]model.SubmittedPayment, error) {
	var rows []model.SubmittedPayment
	if err := GetDB(ctx, r.db).Where("status = ?", model.SubmittedPending).
		Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *submittedPaymentRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	return GetDB(ctx, r.db).Model(&model.SubmittedPayment{}).Where("id = ?", id).Update("status", status).Error
}

func (r *submittedPaymentRepository) UpdateColumns(ctx context.Context, id uint, columns map[string]interface{}) error {
	if len(columns) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Model(&model.SubmittedPayment{}).Where("id = ?", id).Updates(columns).Error
}

func (r *submittedPaymentRepository) CountByStatus(ctx context.Context) ([]model.StatusCount, error) {
	var rows []model.StatusCount
	if err := GetDB(ctx, r.db).Model(&model.SubmittedPayment{}).
		Select("status, COUNT(*) AS count").Group("status").Order("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

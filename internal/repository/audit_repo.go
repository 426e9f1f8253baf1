package repository

import (
	"context"

	"backoffice/internal/model"

	"gorm.io/gorm"
)

type AuditRepository interface {
	Log(ctx context.Context, entry *model.AuditEvent) error
	ForEntity(ctx context.Context, entityType, entityID string) ([]model.AuditEvent, error)
	List(ctx context.Context, page, limit int) ([]model.AuditEvent, int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Log(ctx context.Context, entry *model.AuditEvent) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

// ForEntity returns the events of one row, oldest first
func (r *auditRepository) ForEntity(ctx context.Context, entityType, entityID string) ([]model.AuditEvent, error) {
	var events []model.AuditEvent
	if err := GetDB(ctx, r.db).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC, id ASC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *auditRepository) List(ctx context.Context, page, limit int) ([]model.AuditEvent, int64, error) {
	var events []model.AuditEvent
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.AuditEvent{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("created_at desc, id desc").Offset(offset).Limit(limit).Find(&events).Error; err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

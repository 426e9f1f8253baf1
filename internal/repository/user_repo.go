package repository

import (
	"context"

	"backoffice/internal/model"

	"gorm.io/gorm"
)

// ReferenceRepository reads the user, agent and customer reference tables
type ReferenceRepository interface {
	FindUser(ctx context.Context, bubbleID string) (*model.User, error)
	FindAgent(ctx context.Context, bubbleID string) (*model.Agent, error)
	FindCustomer(ctx context.Context, bubbleID string) (*model.Customer, error)
}

type referenceRepository struct {
	db *gorm.DB
}

func NewReferenceRepository(db *gorm.DB) ReferenceRepository {
	return &referenceRepository{db: db}
}

func (r *referenceRepository) FindUser(ctx context.Context, bubbleID string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "bubble_id = ?", bubbleID).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *referenceRepository) FindAgent(ctx context.Context, bubbleID string) (*model.Agent, error) {
	var agent model.Agent
	if err := GetDB(ctx, r.db).First(&agent, "bubble_id = ?", bubbleID).Error; err != nil {
		return nil, translate(err)
	}
	return &agent, nil
}

func (r *referenceRepository) FindCustomer(ctx context.Context, bubbleID string) (*model.Customer, error) {
	var customer model.Customer
	if err := GetDB(ctx, r.db).First(&customer, "bubble_id = ?", bubbleID).Error; err != nil {
		return nil, translate(err)
	}
	return &customer, nil
}

package repository

import (
	"context"

	"backoffice/internal/model"

	"gorm.io/gorm"
)

// SedaCustomerPatch is a SEDA row missing its customer joined to an invoice that has one
type SedaCustomerPatch struct {
	SedaID         uint
	SedaBubbleID   string
	InvoiceID      string
	LinkedCustomer string
}

type SedaRepository interface {
	FindByBubbleID(ctx context.Context, bubbleID string) (*model.SedaRegistration, error)
	FindByBubbleIDs(ctx context.Context, bubbleIDs []string) ([]model.SedaRegistration, error)
	ListWithInvoiceLinks(ctx context.Context) ([]model.SedaRegistration, error)
	ListCustomerPatches(ctx context.Context) ([]SedaCustomerPatch, error)
	SetLinkedCustomer(ctx context.Context, id uint, customerID string) error
}

type sedaRepository struct {
	db *gorm.DB
}

func NewSedaRepository(db *gorm.DB) SedaRepository {
	return &sedaRepository{db: db}
}

func (r *sedaRepository) FindByBubbleID(ctx context.Context, bubbleID string) (*model.SedaRegistration, error) {
	var seda model.SedaRegistration
	if err := GetDB(ctx, r.db).First(&seda, "bubble_id = ?", bubbleID).Error; err != nil {
		return nil, translate(err)
	}
	return &seda, nil
}

func (r *sedaRepository) FindByBubbleIDs(ctx context.Context, bubbleIDs []string) ([]model.SedaRegistration, error) {
	var rows []model.SedaRegistration
	if len(bubbleIDs) == 0 {
		return rows, nil
	}
	if err := GetDB(ctx, r.db).Where("bubble_id IN ?", bubbleIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListWithInvoiceLinks returns non-deleted registrations whose linked_invoice array has entries.
// Array emptiness is checked in Go so the query stays portable across json column types.
func (r *sedaRepository) ListWithInvoiceLinks(ctx context.Context) ([]model.SedaRegistration, error) {
	var rows []model.SedaRegistration
	if err := GetDB(ctx, r.db).Where("linked_invoice IS NOT NULL").
		Where(notDeleted("seda_status")).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := rows[:0]
	for _, row := range rows {
		if len(row.LinkedInvoice) > 0 && !row.IsDeleted() {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *sedaRepository) ListCustomerPatches(ctx context.Context) ([]SedaCustomerPatch, error) {
	var rows []SedaCustomerPatch
	if err := GetDB(ctx, r.db).Table("seda_registrations AS s").
		Select("s.id AS seda_id, s.bubble_id AS seda_bubble_id, i.bubble_id AS invoice_id, i.linked_customer AS linked_customer").
		Joins("INNER JOIN invoices AS i ON i.linked_seda_registration = s.bubble_id").
		Where("(s.linked_customer IS NULL OR s.linked_customer = '')").
		Where("i.linked_customer IS NOT NULL AND i.linked_customer <> ''").
		Order("s.id, i.id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *sedaRepository) SetLinkedCustomer(ctx context.Context, id uint, customerID string) error {
	return GetDB(ctx, r.db).Model(&model.SedaRegistration{}).Where("id = ?", id).
		Update("linked_customer", customerID).Error
}

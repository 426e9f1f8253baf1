package repository

import (
	"context"
	"strings"

	"backoffice/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type InvoiceListFilter struct {
	Status   string
	Agent    string
	Customer string
	Search   string // partial match on invoice_number
	Page     int
	Limit    int
}

type InvoiceRepository interface {
	FindByBubbleID(ctx context.Context, bubbleID string) (*model.Invoice, error)
	FindByBubbleIDs(ctx context.Context, bubbleIDs []string) ([]model.Invoice, error)
	List(ctx context.Context, filter InvoiceListFilter) ([]model.Invoice, int64, error)
	ListActive(ctx context.Context) ([]model.Invoice, error)
	UpdateStatus(ctx context.Context, id uint, status string) error
	UpdatePercent(ctx context.Context, id uint, percent decimal.Decimal) error
	SetLinkedPayment(ctx context.Context, id uint, paymentIDs []string) error
	SetSedaLink(ctx context.Context, id uint, sedaBubbleID string) error
	Items(ctx context.Context, invoiceBubbleID string) ([]model.InvoiceItem, error)
	Template(ctx context.Context, templateBubbleID string) (*model.InvoiceTemplate, error)
}

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) FindByBubbleID(ctx context.Context, bubbleID string) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).First(&invoice, "bubble_id = ?", bubbleID).Error; err != nil {
		return nil, translate(err)
	}
	return &invoice, nil
}

func (r *invoiceRepository) FindByBubbleIDs(ctx context.Context, bubbleIDs []string) ([]model.Invoice, error) {
	var invoices []model.Invoice
	if len(bubbleIDs) == 0 {
		return invoices, nil
	}
	if err := GetDB(ctx, r.db).Where("bubble_id IN ?", bubbleIDs).Order("id").Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *invoiceRepository) applyFilter(query *gorm.DB, filter InvoiceListFilter) *gorm.DB {
	if filter.Status != "" {
		query = query.Where("LOWER(status) = ?", strings.ToLower(filter.Status))
	} else {
		query = query.Where(notDeleted("status"))
	}
	if filter.Agent != "" {
		query = query.Where("linked_agent = ?", filter.Agent)
	}
	if filter.Customer != "" {
		query = query.Where("linked_customer = ?", filter.Customer)
	}
	if filter.Search != "" {
		query = query.Where("LOWER(invoice_number) LIKE ?", likePattern(strings.ToLower(filter.Search)))
	}
	return query
}

func (r *invoiceRepository) List(ctx context.Context, filter InvoiceListFilter) ([]model.Invoice, int64, error) {
	var invoices []model.Invoice
	var total int64

	db := GetDB(ctx, r.db)
	if err := r.applyFilter(db.Model(&model.Invoice{}), filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := r.applyFilter(db.Model(&model.Invoice{}), filter).
		Order("invoice_date DESC, id DESC").Offset(offset).Limit(filter.Limit).
		Find(&invoices).Error; err != nil {
		return nil, 0, err
	}

	return invoices, total, nil
}

// ListActive returns every invoice not soft-deleted, in id order
func (r *invoiceRepository) ListActive(ctx context.Context) ([]model.Invoice, error) {
	var invoices []model.Invoice
	if err := GetDB(ctx, r.db).Where(notDeleted("status")).Order("id").Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *invoiceRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	return GetDB(ctx, r.db).Model(&model.Invoice{}).Where("id = ?", id).Update("status", status).Error
}

func (r *invoiceRepository) UpdatePercent(ctx context.Context, id uint, percent decimal.Decimal) error {
	return GetDB(ctx, r.db).Model(&model.Invoice{}).Where("id = ?", id).
		Update("percent_of_total_amount", decimal.NewNullDecimal(percent)).Error
}

func (r *invoiceRepository) SetLinkedPayment(ctx context.Context, id uint, paymentIDs []string) error {
	return GetDB(ctx, r.db).Model(&model.Invoice{}).Where("id = ?", id).
		Update("linked_payment", datatypes.JSONSlice[string](paymentIDs)).Error
}

func (r *invoiceRepository) SetSedaLink(ctx context.Context, id uint, sedaBubbleID string) error {
	return GetDB(ctx, r.db).Model(&model.Invoice{}).Where("id = ?", id).
		Update("linked_seda_registration", sedaBubbleID).Error
}

func (r *invoiceRepository) Items(ctx context.Context, invoiceBubbleID string) ([]model.InvoiceItem, error) {
	var items []model.InvoiceItem
	if err := GetDB(ctx, r.db).Where("linked_invoice = ?", invoiceBubbleID).
		Order("sort_order, id").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *invoiceRepository) Template(ctx context.Context, templateBubbleID string) (*model.InvoiceTemplate, error) {
	var tpl model.InvoiceTemplate
	if err := GetDB(ctx, r.db).First(&tpl, "bubble_id = ?", templateBubbleID).Error; err != nil {
		return nil, translate(err)
	}
	return &tpl, nil
}

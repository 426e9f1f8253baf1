package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Invoice status labels. Values other than these may arrive from the legacy platform
// and are kept verbatim.
const (
	InvoiceStatusDraft        = "draft"
	InvoiceStatusDeposit      = "DEPOSIT"
	InvoiceStatusFullyPaid    = "FULLY PAID"
	InvoiceStatusSedaApproved = "SEDA APPROVED"
	InvoiceStatusDeleted      = "deleted"
)

// BubbleDates mirrors the legacy platform's own creation/modification stamps.
type BubbleDates struct {
	CreatedDate  *time.Time `gorm:"index" json:"created_date"`
	ModifiedDate *time.Time `gorm:"index" json:"modified_date"`
}

// Invoice is a customer quotation/invoice. linked_* columns hold external (bubble) ids.
type Invoice struct {
	ID                     uint                        `gorm:"primaryKey" json:"id"`
	BubbleID               string                      `gorm:"type:varchar(64);uniqueIndex;not null" json:"bubble_id"`
	InvoiceNumber          string                      `gorm:"type:varchar(64);index" json:"invoice_number"`
	TotalAmount            decimal.NullDecimal         `gorm:"type:decimal(18,2)" json:"total_amount"`
	Status                 string                      `gorm:"type:varchar(50);index" json:"status"`
	LinkedPayment          datatypes.JSONSlice[string] `json:"linked_payment"`
	LinkedSedaRegistration string                      `gorm:"type:varchar(64);index" json:"linked_seda_registration"`
	LinkedCustomer         string                      `gorm:"type:varchar(64);index" json:"linked_customer"`
	LinkedAgent            string                      `gorm:"type:varchar(64);index" json:"linked_agent"`
	LinkedInvoiceItem      datatypes.JSONSlice[string] `json:"linked_invoice_item"`
	LinkedTemplate         string                      `gorm:"type:varchar(64)" json:"linked_template"`
	CreatedBy              string                      `gorm:"type:varchar(64);index" json:"created_by"`
	PercentOfTotalAmount   decimal.NullDecimal         `gorm:"type:decimal(9,2)" json:"percent_of_total_amount"`
	InvoiceDate            *time.Time                  `json:"invoice_date"`
	Remark                 string                      `gorm:"type:text" json:"remark"`
	BubbleDates
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsDeleted reports whether the invoice carries the soft-delete status
func (i *Invoice) IsDeleted() bool {
	return strings.EqualFold(strings.TrimSpace(i.Status), InvoiceStatusDeleted)
}

// InvoiceItem is a line item joined to its invoice by bubble id
type InvoiceItem struct {
	ID            uint                `gorm:"primaryKey" json:"id"`
	BubbleID      string              `gorm:"type:varchar(64);uniqueIndex;not null" json:"bubble_id"`
	LinkedInvoice string              `gorm:"type:varchar(64);index" json:"linked_invoice"`
	Description   string              `gorm:"type:text" json:"description"`
	Qty           decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"qty"`
	UnitPrice     decimal.NullDecimal `gorm:"type:decimal(18,2)" json:"unit_price"`
	Amount        decimal.NullDecimal `gorm:"type:decimal(18,2)" json:"amount"`
	SortOrder     int                 `json:"sort_order"`
	BubbleDates
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InvoiceTemplate is the presentation template (letterhead, terms) of an invoice
type InvoiceTemplate struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	BubbleID    string `gorm:"type:varchar(64);uniqueIndex;not null" json:"bubble_id"`
	Name        string `gorm:"type:varchar(255)" json:"name"`
	CompanyName string `gorm:"type:varchar(255)" json:"company_name"`
	LogoURL     string `gorm:"type:text" json:"logo_url"`
	Terms       string `gorm:"type:text" json:"terms"`
	IsDefault   bool   `gorm:"default:false" json:"is_default"`
	BubbleDates
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

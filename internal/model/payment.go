package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Submitted payment queue states
const (
	SubmittedPending  = "pending"
	SubmittedVerified = "verified"
	SubmittedDeleted  = "deleted"
)

// PaymentFields is the column set shared by verified payments and queued submissions.
type PaymentFields struct {
	Amount         decimal.NullDecimal         `gorm:"type:decimal(18,2);index" json:"amount"`
	PaymentDate    *time.Time                  `gorm:"index" json:"payment_date"`
	PaymentMethod  string                      `gorm:"type:varchar(100)" json:"payment_method"`
	EppType        string                      `gorm:"type:varchar(100)" json:"epp_type"`
	IssuerBank     string                      `gorm:"type:varchar(100)" json:"issuer_bank"`
	EppMonth       *int                        `json:"epp_month"`
	EppCost        decimal.NullDecimal         `gorm:"type:decimal(18,2)" json:"epp_cost"`
	LinkedInvoice  string                      `gorm:"type:varchar(64);index" json:"linked_invoice"`
	LinkedAgent    string                      `gorm:"type:varchar(64);index" json:"linked_agent"`
	LinkedCustomer string                      `gorm:"type:varchar(64);index" json:"linked_customer"`
	Attachment     datatypes.JSONSlice[string] `json:"attachment"`
	Remark         string                      `gorm:"type:text" json:"remark"`
	// Log holds free text synced from the legacy platform. New activity is recorded as AuditEvent rows.
	Log string `gorm:"type:text" json:"log"`
}

// Payment is a verified payment
type Payment struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	BubbleID      string        `gorm:"type:varchar(64);uniqueIndex;not null" json:"bubble_id"`
	PaymentFields `gorm:"embedded"`
	VerifiedBy    string     `gorm:"type:varchar(255)" json:"verified_by"`
	VerifiedAt    *time.Time `json:"verified_at"`
	BubbleDates
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubmittedPayment is an agent-submitted payment waiting for review.
// Verification copies it into payments and keeps this row with status verified.
type SubmittedPayment struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	BubbleID      string        `gorm:"type:varchar(64);uniqueIndex;not null" json:"bubble_id"`
	PaymentFields `gorm:"embedded"`
	Status        string `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	BubbleDates
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

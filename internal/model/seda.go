package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SEDA registration status values that drive invoice logic
const (
	SedaStatusApproved = "APPROVED"
	SedaStatusDeleted  = "Deleted"
)

// SedaRegistration is the government renewable-energy registration record.
// LinkedInvoice is the authoritative side of the invoice<->SEDA relation.
type SedaRegistration struct {
	ID                  uint                        `gorm:"primaryKey" json:"id"`
	BubbleID            string                      `gorm:"type:varchar(64);uniqueIndex;not null" json:"bubble_id"`
	SedaStatus          string                      `gorm:"type:varchar(50);index" json:"seda_status"`
	LinkedInvoice       datatypes.JSONSlice[string] `json:"linked_invoice"`
	LinkedCustomer      string                      `gorm:"type:varchar(64);index" json:"linked_customer"`
	InstallationAddress string                      `gorm:"type:text" json:"installation_address"`
	SystemSizeKwp       decimal.NullDecimal         `gorm:"type:decimal(10,3)" json:"system_size_kwp"`
	IcCopyFront         string                      `gorm:"type:text" json:"ic_copy_front"`
	IcCopyBack          string                      `gorm:"type:text" json:"ic_copy_back"`
	TnbBill             string                      `gorm:"type:text" json:"tnb_bill"`
	PropertyProof       string                      `gorm:"type:text" json:"property_proof"`
	RoofImages          datatypes.JSONSlice[string] `json:"roof_images"`
	SiteImages          datatypes.JSONSlice[string] `json:"site_images"`
	BubbleDates
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsApproved reports whether the registration status is APPROVED in any casing
func (s *SedaRegistration) IsApproved() bool {
	return strings.EqualFold(strings.TrimSpace(s.SedaStatus), SedaStatusApproved)
}

// IsDeleted reports whether the registration was deleted on the legacy platform
func (s *SedaRegistration) IsDeleted() bool {
	return strings.EqualFold(strings.TrimSpace(s.SedaStatus), SedaStatusDeleted)
}

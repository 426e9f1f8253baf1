package model

import (
	"time"

	"gorm.io/datatypes"
)

// Audited entity types
const (
	EntityInvoice          = "invoice"
	EntityPayment          = "payment"
	EntitySubmittedPayment = "submitted_payment"
	EntitySedaRegistration = "seda_registration"
)

// Audit actions
const (
	ActionVerifyPayment     = "VERIFY_PAYMENT"
	ActionCreateFromVerify  = "CREATE_FROM_VERIFICATION"
	ActionDeleteSubmission  = "DELETE_SUBMISSION"
	ActionRestoreSubmission = "RESTORE_SUBMISSION"
	ActionUpdateField       = "UPDATE_FIELD"
	ActionAutoReconcile     = "AUTO_RECONCILE"
	ActionStatusRecompute   = "STATUS_RECOMPUTE"
	ActionLinkPayment       = "LINK_PAYMENT"
	ActionSoftDelete        = "SOFT_DELETE"
)

// SystemActor is recorded for changes made by jobs rather than people
const SystemActor = "System"

// AuditEvent is one structured, append-only change record. The free-text
// "[timestamp] actor description" form is rendered from these on read.
type AuditEvent struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	EntityType string         `gorm:"type:varchar(50);not null;index:idx_audit_entity" json:"entity_type"`
	EntityID   string         `gorm:"type:varchar(64);not null;index:idx_audit_entity" json:"entity_id"`
	Actor      string         `gorm:"type:varchar(255);not null" json:"actor"`
	Action     string         `gorm:"type:varchar(50);not null;index" json:"action"`
	Field      string         `gorm:"type:varchar(100)" json:"field,omitempty"`
	OldValue   string         `gorm:"type:text" json:"old_value,omitempty"`
	NewValue   string         `gorm:"type:text" json:"new_value,omitempty"`
	Details    datatypes.JSON `json:"details,omitempty"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatusCount is a grouped count row
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// StatusAmount is a grouped count with the summed amount as a fixed 2dp string
type StatusAmount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
	Total  string `json:"total"`
}

// DatedAmount is one payment date and amount pair
type DatedAmount struct {
	Date   time.Time           `json:"date"`
	Amount decimal.NullDecimal `json:"amount"`
}

// MonthlyAmount is the verified amount collected in one calendar month
type MonthlyAmount struct {
	Month  string `json:"month"` // YYYY-MM
	Count  int64  `json:"count"`
	Amount string `json:"amount"`
}

// DashboardSummary aggregates queue and invoice state for the admin landing page
type DashboardSummary struct {
	InvoicesByStatus    []StatusAmount  `json:"invoices_by_status"`
	SubmittedByStatus   []StatusCount   `json:"submitted_by_status"`
	VerifiedTotalAmount string          `json:"verified_total_amount"`
	VerifiedCount       int64           `json:"verified_count"`
	VerifiedByMonth     []MonthlyAmount `json:"verified_by_month"`
	LastRuns            []SyncRun       `json:"last_runs"`
	GeneratedAt         time.Time       `json:"generated_at"`
}

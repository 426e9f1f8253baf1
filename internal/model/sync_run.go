package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Sync run states
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunFailed  = "failed"
)

// SyncRun is the durable record of one sync/repair/file job and its live progress.
type SyncRun struct {
	ID         uuid.UUID      `gorm:"type:varchar(36);primaryKey" json:"id"`
	SessionID  string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"session_id"`
	Kind       string         `gorm:"type:varchar(50);not null;index" json:"kind"`
	Status     string         `gorm:"type:varchar(20);not null;index" json:"status"`
	Actor      string         `gorm:"type:varchar(255)" json:"actor"`
	Params     datatypes.JSON `json:"params,omitempty"`
	Message    string         `gorm:"type:text" json:"message"`
	Current    int            `json:"current"`
	Total      int            `json:"total"`
	Results    datatypes.JSON `json:"results,omitempty"`
	Error      string         `gorm:"type:text" json:"error,omitempty"`
	StartedAt  time.Time      `gorm:"index" json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// SyncCheckpoint is the high-water mark of fully processed remote modifications per entity.
type SyncCheckpoint struct {
	Entity       string    `gorm:"type:varchar(50);primaryKey" json:"entity"`
	LastModified time.Time `json:"last_modified"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ColumnDescription documents a database column for the schema documentation tool.
type ColumnDescription struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TableName   string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_table_column" json:"table_name"`
	ColumnName  string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_table_column" json:"column_name"`
	Description string    `gorm:"type:text" json:"description"`
	UpdatedBy   string    `gorm:"type:varchar(255)" json:"updated_by"`
	UpdatedAt   time.Time `json:"updated_at"`
}

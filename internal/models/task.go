package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TaskStatus represents the status of an import task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Task types created by the pipeline
const (
	TaskTypeImport      = "import"
	TaskTypeRecalculate = "recalculate"
	TaskTypeTraffic     = "traffic_processing"
	TaskTypeRISP        = "risp_processing"
)

// ImportTask records one pipeline run (or a downstream follow-up task
// created for out-of-process workers to pick up).
type ImportTask struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	TaskID         string         `gorm:"uniqueIndex;not null;size:36" json:"task_id"` // UUID
	CloudAccountID string         `gorm:"size:36;not null;index" json:"cloud_account_id"`
	Type           string         `gorm:"not null" json:"type"`
	Status         TaskStatus     `gorm:"default:pending" json:"status"`
	Message        string         `json:"message"`
	Result         datatypes.JSON `json:"result"`
	StartedAt      *time.Time     `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at"`
	Duration       int64          `json:"duration"` // milliseconds
	ErrorMsg       string         `gorm:"type:text" json:"error_msg"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName returns the table name for ImportTask model
func (ImportTask) TableName() string {
	return "import_tasks"
}

// TaskResult summarizes one completed import run
type TaskResult struct {
	RecordsFetched  int64  `json:"records_fetched"`
	RecordsUpserted int64  `json:"records_upserted"`
	RudimentsPurged int64  `json:"rudiments_purged"`
	CorrectionsRows int64  `json:"correction_rows"`
	PeriodStart     string `json:"period_start,omitempty"`
}

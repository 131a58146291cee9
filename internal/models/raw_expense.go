package models

import (
	"time"

	"gorm.io/datatypes"
)

// RawExpense is one normalized billing line item in the raw store.
//
// UniqueHash is derived from the provider's unique-field tuple plus RecN, so a
// re-run upserts (refreshing ReportIdentity) instead of duplicating, while
// providers that legitimately emit several records for one logical key within
// a run stay distinct through RecN.
type RawExpense struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	CloudAccountID string         `gorm:"size:36;not null;index:idx_raw_account_start,priority:1" json:"cloud_account_id"`
	ResourceID     string         `gorm:"not null;index" json:"resource_id"`
	StartDate      time.Time      `gorm:"not null;index:idx_raw_account_start,priority:2" json:"start_date"`
	EndDate        time.Time      `gorm:"not null" json:"end_date"`
	Cost           float64        `gorm:"not null" json:"cost"`
	ReportIdentity string         `gorm:"not null;index" json:"report_identity"`
	RecN           int            `gorm:"default:0" json:"rec_n"`
	UniqueHash     string         `gorm:"size:40;not null;uniqueIndex" json:"unique_hash"`
	Attrs          datatypes.JSON `json:"attrs"`   // provider fields preserved verbatim
	Metrics        datatypes.JSON `json:"metrics"` // numeric update fields besides cost
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// TableName returns the table name for RawExpense model
func (RawExpense) TableName() string {
	return "raw_expenses"
}

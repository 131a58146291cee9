package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Resource is the canonical resource entity keyed by (cloud_account_id, cloud_resource_id).
// The importer only creates missing resources and maintains the cost summary fields.
type Resource struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	CloudAccountID  string         `gorm:"size:36;not null;uniqueIndex:idx_account_cloud_res,priority:1" json:"cloud_account_id"`
	CloudResourceID string         `gorm:"not null;uniqueIndex:idx_account_cloud_res,priority:2" json:"cloud_resource_id"`
	Name            string         `json:"name"`
	ResourceType    string         `gorm:"index" json:"resource_type"`
	Region          string         `json:"region"`
	Service         string         `json:"service"`
	Tags            datatypes.JSON `json:"tags"`
	FirstSeen       *time.Time     `json:"first_seen"`
	LastSeen        *time.Time     `json:"last_seen"`
	TotalCost       float64        `json:"total_cost"`
	LastExpenseDate *time.Time     `json:"last_expense_date"`
	LastExpenseCost float64        `json:"last_expense_cost"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName returns the table name for Resource model
func (Resource) TableName() string {
	return "resources"
}

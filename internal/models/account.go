package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CloudKind identifies the billing provider of a cloud account
type CloudKind string

const (
	KindAlibaba     CloudKind = "alibaba"
	KindAzure       CloudKind = "azure"
	KindNebius      CloudKind = "nebius"
	KindKubernetes  CloudKind = "kubernetes"
	KindEnvironment CloudKind = "environment"
)

// CloudAccount represents a connected billing account and its import watermarks
type CloudAccount struct {
	ID                     string         `gorm:"primaryKey;size:36" json:"id"`
	Name                   string         `gorm:"not null" json:"name"`
	Kind                   CloudKind      `gorm:"not null;index" json:"kind"`
	Enabled                bool           `gorm:"default:true" json:"enabled"`
	SkipRefunds            bool           `gorm:"default:false" json:"skip_refunds"`
	Config                 datatypes.JSON `json:"config"` // provider-specific settings (credentials reference, cost model, regions)
	LastImportAt           *time.Time     `json:"last_import_at"`
	LastImportAttemptAt    *time.Time     `json:"last_import_attempt_at"`
	LastImportAttemptError string         `gorm:"type:text" json:"last_import_attempt_error"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
	DeletedAt              gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName returns the table name for CloudAccount model
func (CloudAccount) TableName() string {
	return "cloud_accounts"
}

// CostModel holds per-unit prices for accounts that synthesize costs
// (environment and kubernetes accounts) instead of pulling provider bills.
type CostModel struct {
	HourlyPrice float64            `json:"hourly_price,omitempty"`
	CPUHourly   float64            `json:"cpu_hourly,omitempty"`
	MemGBHourly float64            `json:"mem_gb_hourly,omitempty"`
	Overrides   map[string]float64 `json:"overrides,omitempty"` // per-resource hourly price overrides
}

// accountConfig is the decoded shape of CloudAccount.Config
type accountConfig struct {
	CostModel *CostModel `json:"cost_model,omitempty"`
	ExportURL string     `json:"export_url,omitempty"`
}

// GetCostModel decodes the cost model from the account config. Returns nil
// without error when the account carries no cost model.
func (a *CloudAccount) GetCostModel() (*CostModel, error) {
	if len(a.Config) == 0 {
		return nil, nil
	}
	var cfg accountConfig
	if err := json.Unmarshal(a.Config, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode account config: %w", err)
	}
	return cfg.CostModel, nil
}

// GetExportURL decodes the billing export endpoint from the account config
func (a *CloudAccount) GetExportURL() (string, error) {
	if len(a.Config) == 0 {
		return "", nil
	}
	var cfg accountConfig
	if err := json.Unmarshal(a.Config, &cfg); err != nil {
		return "", fmt.Errorf("failed to decode account config: %w", err)
	}
	return cfg.ExportURL, nil
}

// HourlyPriceFor resolves a resource's hourly price, honoring overrides
func (m *CostModel) HourlyPriceFor(resourceID string) float64 {
	if m == nil {
		return 0
	}
	if price, ok := m.Overrides[resourceID]; ok {
		return price
	}
	return m.HourlyPrice
}

package registry

import (
	"context"
	"fmt"
	"time"

	"costscan/internal/models"
	"costscan/pkg/importer"

	"gorm.io/gorm"
)

// AccountStore maintains the import watermarks on cloud accounts
type AccountStore struct {
	db *gorm.DB
}

var _ importer.AccountStore = (*AccountStore)(nil)

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

// AutoMigrate creates or updates the cloud_accounts table
func (s *AccountStore) AutoMigrate() error {
	return s.db.AutoMigrate(&models.CloudAccount{})
}

// Get loads one cloud account by id
func (s *AccountStore) Get(ctx context.Context, accountID string) (*models.CloudAccount, error) {
	var account models.CloudAccount
	err := s.db.WithContext(ctx).Where("id = ?", accountID).First(&account).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to load cloud account: %w", err)
	}
	return &account, nil
}

// ListEnabled returns every enabled cloud account
func (s *AccountStore) ListEnabled(ctx context.Context) ([]*models.CloudAccount, error) {
	var rows []models.CloudAccount
	err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled accounts: %w", err)
	}

	accounts := make([]*models.CloudAccount, len(rows))
	for i := range rows {
		accounts[i] = &rows[i]
	}
	return accounts, nil
}

// RecordAttempt stamps the attempt timestamp and clears the previous error
func (s *AccountStore) RecordAttempt(ctx context.Context, accountID string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.CloudAccount{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"last_import_attempt_at":    at,
			"last_import_attempt_error": "",
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record import attempt: %w", err)
	}
	return nil
}

// RecordFailure surfaces the failure message on the account without moving
// the success watermark.
func (s *AccountStore) RecordFailure(ctx context.Context, accountID string, message string) error {
	err := s.db.WithContext(ctx).Model(&models.CloudAccount{}).
		Where("id = ?", accountID).
		Update("last_import_attempt_error", message).Error
	if err != nil {
		return fmt.Errorf("failed to record import failure: %w", err)
	}
	return nil
}

// RecordSuccess advances the success watermark
func (s *AccountStore) RecordSuccess(ctx context.Context, accountID string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.CloudAccount{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"last_import_at":            at,
			"last_import_attempt_error": "",
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record import success: %w", err)
	}
	return nil
}

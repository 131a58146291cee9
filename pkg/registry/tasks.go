package registry

import (
	"context"
	"fmt"

	"costscan/internal/models"
	"costscan/pkg/importer"

	"gorm.io/gorm"
)

// TaskStore persists pipeline runs and follow-up tasks
type TaskStore struct {
	db *gorm.DB
}

var _ importer.TaskStore = (*TaskStore)(nil)

func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{db: db}
}

// AutoMigrate creates or updates the import_tasks table
func (s *TaskStore) AutoMigrate() error {
	return s.db.AutoMigrate(&models.ImportTask{})
}

func (s *TaskStore) Create(ctx context.Context, task *models.ImportTask) error {
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (s *TaskStore) Update(ctx context.Context, task *models.ImportTask) error {
	if err := s.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

// Get loads one task by its public task id
func (s *TaskStore) Get(ctx context.Context, taskID string) (*models.ImportTask, error) {
	var task models.ImportTask
	err := s.db.WithContext(ctx).Where("task_id = ?", taskID).First(&task).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return &task, nil
}

// ListByAccount returns the most recent tasks of one account, newest first
func (s *TaskStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.ImportTask, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []models.ImportTask
	err := s.db.WithContext(ctx).
		Where("cloud_account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks := make([]*models.ImportTask, len(rows))
	for i := range rows {
		tasks[i] = &rows[i]
	}
	return tasks, nil
}

// DeleteAccount removes the task history of a cloud account
func (s *TaskStore) DeleteAccount(ctx context.Context, accountID string) (int64, error) {
	result := s.db.WithContext(ctx).Unscoped().
		Where("cloud_account_id = ?", accountID).
		Delete(&models.ImportTask{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete account tasks: %w", result.Error)
	}
	return result.RowsAffected, nil
}

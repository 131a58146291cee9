package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"costscan/internal/models"
	"costscan/pkg/importer"
	"costscan/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ResourceRegistry is the gorm-backed resource catalog. The importer only
// creates missing resources and maintains the summary fields; everything
// else about a resource belongs to other services.
type ResourceRegistry struct {
	db *gorm.DB
}

var _ importer.ResourceRegistry = (*ResourceRegistry)(nil)

func NewResourceRegistry(db *gorm.DB) *ResourceRegistry {
	return &ResourceRegistry{db: db}
}

// AutoMigrate creates or updates the resources table
func (r *ResourceRegistry) AutoMigrate() error {
	return r.db.AutoMigrate(&models.Resource{})
}

// CreateIfAbsent registers missing resources and returns the full set keyed
// by cloud resource id. Existing resources keep their identity; only their
// name, tags, and last-seen fields are refreshed from the new observation.
func (r *ResourceRegistry) CreateIfAbsent(ctx context.Context, accountID string, infos map[string]importer.ResourceInfo) (map[string]*models.Resource, error) {
	if len(infos) == 0 {
		return map[string]*models.Resource{}, nil
	}

	ids := make([]string, 0, len(infos))
	for id := range infos {
		ids = append(ids, id)
	}

	var existing []models.Resource
	err := r.db.WithContext(ctx).
		Where("cloud_account_id = ?", accountID).
		Where("cloud_resource_id IN ?", ids).
		Find(&existing).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load existing resources: %w", err)
	}

	result := make(map[string]*models.Resource, len(infos))
	for i := range existing {
		result[existing[i].CloudResourceID] = &existing[i]
	}

	var created []models.Resource
	for id, info := range infos {
		if res, ok := result[id]; ok {
			if err := r.refresh(ctx, res, info); err != nil {
				return nil, err
			}
			continue
		}

		tags, err := json.Marshal(info.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tags: %w", err)
		}

		firstSeen := info.FirstSeen
		lastSeen := info.LastSeen
		created = append(created, models.Resource{
			ID:              uuid.NewString(),
			CloudAccountID:  accountID,
			CloudResourceID: id,
			Name:            info.Name,
			ResourceType:    info.ResourceType,
			Region:          info.Region,
			Service:         info.Service,
			Tags:            tags,
			FirstSeen:       &firstSeen,
			LastSeen:        &lastSeen,
		})
	}

	if len(created) > 0 {
		// Two concurrent runs may race on creation; the conflict clause
		// turns the loser's insert into a no-op.
		err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cloud_account_id"}, {Name: "cloud_resource_id"}},
			DoNothing: true,
		}).Create(&created).Error
		if err != nil {
			return nil, fmt.Errorf("failed to create resources: %w", err)
		}

		var reloaded []models.Resource
		err = r.db.WithContext(ctx).
			Where("cloud_account_id = ?", accountID).
			Where("cloud_resource_id IN ?", ids).
			Find(&reloaded).Error
		if err != nil {
			return nil, fmt.Errorf("failed to reload resources: %w", err)
		}
		result = make(map[string]*models.Resource, len(reloaded))
		for i := range reloaded {
			result[reloaded[i].CloudResourceID] = &reloaded[i]
		}

		logger.Debug("resources registered",
			zap.String("cloud_account_id", accountID),
			zap.Int("created", len(created)))
	}

	return result, nil
}

// refresh updates an existing resource from the latest observation. The
// newest observation is authoritative for name, tags, and region.
func (r *ResourceRegistry) refresh(ctx context.Context, res *models.Resource, info importer.ResourceInfo) error {
	updates := map[string]interface{}{}
	if info.Name != "" && info.Name != res.Name {
		updates["name"] = info.Name
	}
	if info.Region != "" && info.Region != res.Region {
		updates["region"] = info.Region
	}
	if info.ResourceType != "" && info.ResourceType != res.ResourceType {
		updates["resource_type"] = info.ResourceType
	}
	if len(info.Tags) > 0 {
		tags, err := json.Marshal(info.Tags)
		if err != nil {
			return fmt.Errorf("failed to encode tags: %w", err)
		}
		updates["tags"] = tags
	}
	if res.LastSeen == nil || info.LastSeen.After(*res.LastSeen) {
		lastSeen := info.LastSeen
		updates["last_seen"] = &lastSeen
	}

	if len(updates) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(res).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to refresh resource %s: %w", res.CloudResourceID, err)
	}
	return nil
}

// UpdateSummary rewrites a resource's cost summary fields
func (r *ResourceRegistry) UpdateSummary(ctx context.Context, resourceID string, totalCost float64, lastDate time.Time, lastCost float64) error {
	err := r.db.WithContext(ctx).Model(&models.Resource{}).
		Where("id = ?", resourceID).
		Updates(map[string]interface{}{
			"total_cost":        totalCost,
			"last_expense_date": lastDate,
			"last_expense_cost": lastCost,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update resource summary: %w", err)
	}
	return nil
}

// ListByType returns all resources of one type in an account
func (r *ResourceRegistry) ListByType(ctx context.Context, accountID, resourceType string) ([]*models.Resource, error) {
	var rows []models.Resource
	err := r.db.WithContext(ctx).
		Where("cloud_account_id = ?", accountID).
		Where("resource_type = ?", resourceType).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list resources by type: %w", err)
	}

	result := make([]*models.Resource, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}
	return result, nil
}

// ListCloudResourceIDs returns all cloud resource ids of an account
func (r *ResourceRegistry) ListCloudResourceIDs(ctx context.Context, accountID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Resource{}).
		Where("cloud_account_id = ?", accountID).
		Pluck("cloud_resource_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cloud resource ids: %w", err)
	}
	return ids, nil
}

// Delete hard-deletes a resource. Used only for empty provisional
// placeholders; regular resources are soft-deleted elsewhere.
func (r *ResourceRegistry) Delete(ctx context.Context, resourceID string) error {
	err := r.db.WithContext(ctx).Unscoped().
		Where("id = ?", resourceID).
		Delete(&models.Resource{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	return nil
}

// DeleteAccount removes every resource of a cloud account
func (r *ResourceRegistry) DeleteAccount(ctx context.Context, accountID string) (int64, error) {
	result := r.db.WithContext(ctx).Unscoped().
		Where("cloud_account_id = ?", accountID).
		Delete(&models.Resource{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete account resources: %w", result.Error)
	}
	return result.RowsAffected, nil
}

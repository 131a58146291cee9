package rawstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"costscan/internal/models"
	"costscan/pkg/importer"
	"costscan/pkg/logger"
	"costscan/pkg/utils/dateutils"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the gorm-backed raw expense store. All writes go through the
// unique-hash upsert, so re-imports refresh rows instead of duplicating.
type Store struct {
	db *gorm.DB
}

var _ importer.RawStore = (*Store)(nil)

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the raw_expenses table
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&models.RawExpense{})
}

// UpsertMany writes records keyed by unique hash. A conflicting row is
// overwritten, refreshing its cost, report identity, and payload.
func (s *Store) UpsertMany(ctx context.Context, uniqueFields []string, records []importer.RawRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	rows := make([]models.RawExpense, 0, len(records))
	for i := range records {
		rec := &records[i]

		attrs, err := json.Marshal(rec.Attrs)
		if err != nil {
			return 0, fmt.Errorf("failed to encode attrs: %w", err)
		}
		metrics, err := json.Marshal(rec.Metrics)
		if err != nil {
			return 0, fmt.Errorf("failed to encode metrics: %w", err)
		}

		rows = append(rows, models.RawExpense{
			CloudAccountID: rec.CloudAccountID,
			ResourceID:     rec.ResourceID,
			StartDate:      rec.StartDate,
			EndDate:        rec.EndDate,
			Cost:           rec.Cost,
			ReportIdentity: rec.ReportIdentity,
			RecN:           rec.RecN,
			UniqueHash:     rec.UniqueHash(uniqueFields),
			Attrs:          attrs,
			Metrics:        metrics,
		})
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "unique_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"resource_id", "start_date", "end_date", "cost",
			"report_identity", "rec_n", "attrs", "metrics", "updated_at",
		}),
	}).Create(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("failed to upsert raw expenses: %w", err)
	}

	return len(rows), nil
}

// FetchGrouped loads raw records of the given resources since the given
// time and groups them by resource with per-day cost sums. The returned
// Last record is the chronologically last observation of each resource.
func (s *Store) FetchGrouped(ctx context.Context, accountID string, resourceIDs []string, since time.Time) ([]importer.ResourceExpenses, error) {
	query := s.db.WithContext(ctx).
		Where("cloud_account_id = ?", accountID).
		Where("resource_id IN ?", resourceIDs).
		Order("start_date ASC")
	if !since.IsZero() {
		query = query.Where("start_date >= ?", since)
	}

	var rows []models.RawExpense
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch raw expenses: %w", err)
	}

	grouped := make(map[string]*importer.ResourceExpenses)
	order := make([]string, 0)
	for i := range rows {
		row := &rows[i]

		group, ok := grouped[row.ResourceID]
		if !ok {
			group = &importer.ResourceExpenses{
				ResourceID: row.ResourceID,
				Days:       make(map[time.Time]float64),
			}
			grouped[row.ResourceID] = group
			order = append(order, row.ResourceID)
		}

		day := dateutils.StartOfDay(row.StartDate)
		group.Days[day] += row.Cost

		// Rows come back in ascending start_date order, so the final
		// assignment leaves the last observation.
		group.Last = toRawRecord(row)
	}

	result := make([]importer.ResourceExpenses, 0, len(order))
	for _, id := range order {
		result = append(result, *grouped[id])
	}
	return result, nil
}

// ListResourceIDs returns distinct resource ids of the account; nil since
// means every resource it has ever seen.
func (s *Store) ListResourceIDs(ctx context.Context, accountID string, since *time.Time) ([]string, error) {
	query := s.db.WithContext(ctx).Model(&models.RawExpense{}).
		Where("cloud_account_id = ?", accountID).
		Distinct("resource_id")
	if since != nil && !since.IsZero() {
		query = query.Where("start_date >= ?", *since)
	}

	var ids []string
	if err := query.Pluck("resource_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list resource ids: %w", err)
	}
	return ids, nil
}

// DeleteRudiments removes records inside [from, to] whose report identity
// differs from keepIdentity.
func (s *Store) DeleteRudiments(ctx context.Context, accountID string, from, to time.Time, keepIdentity string) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("cloud_account_id = ?", accountID).
		Where("start_date >= ? AND start_date <= ?", from, to).
		Where("report_identity <> ?", keepIdentity).
		Delete(&models.RawExpense{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete rudiments: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteSince removes all records with start_date >= since
func (s *Store) DeleteSince(ctx context.Context, accountID string, since time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("cloud_account_id = ?", accountID).
		Where("start_date >= ?", since).
		Delete(&models.RawExpense{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete raw window: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// HasRecordsSince reports whether the resource has any record from since on
func (s *Store) HasRecordsSince(ctx context.Context, accountID, resourceID string, since time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.RawExpense{}).
		Where("cloud_account_id = ?", accountID).
		Where("resource_id = ?", resourceID).
		Where("start_date >= ?", since).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check raw backing: %w", err)
	}
	return count > 0, nil
}

// LastRecordBefore returns the chronologically last record of the resource
// strictly before the given time, if any.
func (s *Store) LastRecordBefore(ctx context.Context, accountID, resourceID string, before time.Time) (*importer.RawRecord, error) {
	var row models.RawExpense
	err := s.db.WithContext(ctx).
		Where("cloud_account_id = ?", accountID).
		Where("resource_id = ?", resourceID).
		Where("start_date < ?", before).
		Order("start_date DESC").
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up last record: %w", err)
	}

	rec := toRawRecord(&row)
	return &rec, nil
}

// UpdateCosts rewrites record costs in place through the reprice function.
// Rows are walked in batches to bound memory; only rows whose cost actually
// changes are written back.
func (s *Store) UpdateCosts(ctx context.Context, accountID string, reprice func(importer.RawRecord) float64) (int64, error) {
	var updated int64

	var rows []models.RawExpense
	err := s.db.WithContext(ctx).
		Where("cloud_account_id = ?", accountID).
		FindInBatches(&rows, 500, func(tx *gorm.DB, batch int) error {
			for i := range rows {
				row := &rows[i]
				newCost := reprice(toRawRecord(row))
				if newCost == row.Cost {
					continue
				}
				if err := tx.Model(row).Update("cost", newCost).Error; err != nil {
					return err
				}
				updated++
			}
			return nil
		}).Error
	if err != nil {
		return updated, fmt.Errorf("failed to reprice raw expenses: %w", err)
	}

	logger.Info("raw costs rewritten",
		zap.String("cloud_account_id", accountID),
		zap.Int64("updated", updated))
	return updated, nil
}

// DeleteAccount removes all raw records of a cloud account
func (s *Store) DeleteAccount(ctx context.Context, accountID string) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("cloud_account_id = ?", accountID).
		Delete(&models.RawExpense{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete account raw expenses: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func toRawRecord(row *models.RawExpense) importer.RawRecord {
	rec := importer.RawRecord{
		CloudAccountID: row.CloudAccountID,
		ResourceID:     row.ResourceID,
		StartDate:      row.StartDate,
		EndDate:        row.EndDate,
		Cost:           row.Cost,
		ReportIdentity: row.ReportIdentity,
		RecN:           row.RecN,
		Attrs:          map[string]string{},
		Metrics:        map[string]float64{},
	}
	if len(row.Attrs) > 0 {
		if err := json.Unmarshal(row.Attrs, &rec.Attrs); err != nil {
			logger.Warn("unreadable attrs payload",
				zap.String("resource_id", row.ResourceID),
				zap.Error(err))
		}
	}
	if len(row.Metrics) > 0 {
		if err := json.Unmarshal(row.Metrics, &rec.Metrics); err != nil {
			logger.Warn("unreadable metrics payload",
				zap.String("resource_id", row.ResourceID),
				zap.Error(err))
		}
	}
	return rec
}

package importer

import (
	"context"
	"fmt"

	"costscan/pkg/config"
	"costscan/pkg/logger"
	"costscan/pkg/utils/dateutils"

	"go.uber.org/zap"
)

// BaseImporter owns the provider-agnostic half of the pipeline: the
// ascending day loop, merge/sequence handling, chunked upsert flushing, and
// rudiment cleanup. Provider specifics live behind the adapter.
type BaseImporter struct {
	adapter ProviderAdapter
	raw     RawStore
	cfg     *config.ImporterConfig
	retry   *RetryPolicy
}

// NewBaseImporter wires the shared pipeline for one provider adapter
func NewBaseImporter(adapter ProviderAdapter, raw RawStore, cfg *config.ImporterConfig) *BaseImporter {
	return &BaseImporter{
		adapter: adapter,
		raw:     raw,
		cfg:     cfg,
		retry:   NewRetryPolicy(cfg),
	}
}

// LoadRawData pulls billing data day by day over [period_start, now],
// normalizes it, and upserts it in fixed-size chunks. Days are processed in
// ascending order and each day is fully flushed before the next one starts,
// so a failed run leaves a consistent fully-imported prefix.
func (b *BaseImporter) LoadRawData(ctx context.Context, run *RunContext) error {
	days := dateutils.DaysInRange(run.PeriodStart, run.Now)

	logger.Info("loading raw billing data",
		zap.String("provider", string(b.adapter.Kind())),
		zap.String("cloud_account_id", run.Account.ID),
		zap.Time("period_start", run.PeriodStart),
		zap.Int("days", len(days)))

	for _, day := range days {
		var items []RawRecord
		err := b.retry.Do(ctx, "billing pull", func() error {
			var pullErr error
			items, pullErr = b.adapter.BillingItems(ctx, run, day)
			return pullErr
		})
		if err != nil {
			if IsNotReady(err) {
				// Soft cancel: the provider has no completed slice for this
				// day yet; a later run catches up from the same watermark.
				logger.Warn("report not ready, truncating day loop",
					zap.String("provider", string(b.adapter.Kind())),
					zap.String("cloud_account_id", run.Account.ID),
					zap.Time("day", day))
				break
			}
			return fmt.Errorf("failed to pull billing items for %s: %w",
				day.Format(dateutils.LayoutDate), err)
		}

		run.RecordsFetched += int64(len(items))

		if run.Account.SkipRefunds {
			items = dropRefunds(items)
		}

		if b.adapter.DisambiguateWithRecN() {
			items = AssignRecNumbers(items, b.adapter.UniqueFields())
		} else {
			items = MergeSameBillingItems(items, b.adapter.UniqueFields(), b.adapter.UpdateFields())
		}

		if err := b.UpsertRecords(ctx, run, items); err != nil {
			return err
		}
	}

	return nil
}

// UpsertRecords stamps ownership and run identity on records and flushes
// them in chunks. The final partial chunk is always flushed.
func (b *BaseImporter) UpsertRecords(ctx context.Context, run *RunContext, records []RawRecord) error {
	chunk := make([]RawRecord, 0, b.cfg.ChunkSize)

	for _, rec := range records {
		rec.CloudAccountID = run.Account.ID
		rec.ReportIdentity = run.ReportIdentity

		chunk = append(chunk, rec)
		if len(chunk) >= b.cfg.ChunkSize {
			if err := b.flush(ctx, run, chunk); err != nil {
				return err
			}
			chunk = chunk[:0]
		}
	}

	if len(chunk) > 0 {
		return b.flush(ctx, run, chunk)
	}
	return nil
}

func (b *BaseImporter) flush(ctx context.Context, run *RunContext, chunk []RawRecord) error {
	var written int
	err := b.retry.Do(ctx, "raw upsert", func() error {
		var upsertErr error
		written, upsertErr = b.raw.UpsertMany(ctx, b.adapter.UniqueFields(), chunk)
		return upsertErr
	})
	if err != nil {
		return fmt.Errorf("failed to upsert raw chunk: %w", err)
	}

	// The touched window and raw total only cover persisted records: a day
	// whose flush failed stays outside the rudiment-delete window, so the
	// prior run's rows for it survive until a later run rewrites them.
	for i := range chunk {
		run.Touch(dateutils.StartOfDay(chunk[i].StartDate))
		run.RawCostTotal += chunk[i].Cost
	}

	run.RecordsUpserted += int64(written)

	logger.Debug("raw chunk flushed",
		zap.String("provider", string(b.adapter.Kind())),
		zap.String("cloud_account_id", run.Account.ID),
		zap.Int("records", written))
	return nil
}

// CleanRudiments deletes raw records inside the window touched by this run
// that were not reconfirmed by it: they represent data that no longer exists
// upstream. Records carrying this run's identity are never deleted, and
// nothing outside [MinTouched, MaxTouched] is considered.
func (b *BaseImporter) CleanRudiments(ctx context.Context, run *RunContext) (int64, error) {
	if !run.Touched() {
		return 0, nil
	}

	purged, err := b.raw.DeleteRudiments(ctx, run.Account.ID, run.MinTouched, run.MaxTouched, run.ReportIdentity)
	if err != nil {
		return 0, fmt.Errorf("failed to clean rudiments: %w", err)
	}

	if purged > 0 {
		logger.Info("purged rudiment raw records",
			zap.String("provider", string(b.adapter.Kind())),
			zap.String("cloud_account_id", run.Account.ID),
			zap.Time("window_start", run.MinTouched),
			zap.Time("window_end", run.MaxTouched),
			zap.Int64("purged", purged))
	}
	return purged, nil
}

func dropRefunds(items []RawRecord) []RawRecord {
	kept := items[:0]
	for _, item := range items {
		if item.Attrs[AttrItemType] == ItemTypeRefund {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

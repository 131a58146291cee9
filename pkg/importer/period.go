package importer

import (
	"context"
	"fmt"

	"costscan/pkg/logger"
	"costscan/pkg/utils/dateutils"

	"go.uber.org/zap"
)

// PeriodDetector computes the fetch-since watermark of a run from the
// account's import bookkeeping and the data already present in the ledger.
type PeriodDetector struct {
	agg           AggregateStore
	raw           RawStore
	initialMonths int
}

// NewPeriodDetector creates a period detector
func NewPeriodDetector(agg AggregateStore, raw RawStore, initialMonths int) *PeriodDetector {
	return &PeriodDetector{
		agg:           agg,
		raw:           raw,
		initialMonths: initialMonths,
	}
}

// Detect resolves the run's period start and stores it on the run context.
// When the previous import happened in an earlier calendar month, the whole
// trailing window is re-fetched: raw records from the watermark forward are
// deleted first so the re-import cannot leave gaps.
func (d *PeriodDetector) Detect(ctx context.Context, run *RunContext, adapter ProviderAdapter) error {
	if overrider, ok := adapter.(PeriodStartOverrider); ok {
		if start, overridden := overrider.PeriodStart(ctx, run); overridden {
			run.PeriodStart = start
			logger.Debug("period start overridden by provider",
				zap.String("provider", string(adapter.Kind())),
				zap.String("cloud_account_id", run.Account.ID),
				zap.Time("period_start", start))
			return nil
		}
	}

	account := run.Account

	// First import: widen to the last few months unless the account type
	// inherently needs no widening.
	if run.FirstImport {
		if adapter.NeedsInitialWidening() {
			run.PeriodStart = dateutils.MonthsBack(run.Now, d.initialMonths)
		} else {
			run.PeriodStart = dateutils.StartOfDay(run.Now)
		}
		return nil
	}

	lastImport := account.LastImportAt.UTC()

	if dateutils.StartOfMonth(lastImport).Equal(dateutils.StartOfMonth(run.Now)) {
		latest, err := d.agg.LatestExpenseDate(ctx, account.ID)
		if err != nil {
			return fmt.Errorf("failed to read latest expense date: %w", err)
		}
		if latest == nil {
			// Imported before but nothing landed; treat like a first import
			run.PeriodStart = dateutils.MonthsBack(run.Now, d.initialMonths)
			return nil
		}

		day := dateutils.StartOfDay(*latest)
		if dateutils.IsFirstOfMonth(day) {
			// Month-boundary edge effects in provider reporting: back up to
			// the start of the previous month.
			day = dateutils.StartOfMonth(day.AddDate(0, 0, -1))
		}
		run.PeriodStart = day
		return nil
	}

	// Previous import was in an earlier month: re-fetch the entire trailing
	// window from the raw attempt timestamp.
	start := lastImport
	if account.LastImportAttemptAt != nil && !account.LastImportAttemptAt.IsZero() {
		start = account.LastImportAttemptAt.UTC()
	}

	deleted, err := d.raw.DeleteSince(ctx, account.ID, start)
	if err != nil {
		return fmt.Errorf("failed to clear trailing raw window: %w", err)
	}
	if deleted > 0 {
		logger.Info("cleared trailing raw window for re-import",
			zap.String("cloud_account_id", account.ID),
			zap.Time("since", start),
			zap.Int64("deleted", deleted))
	}

	run.PeriodStart = start
	return nil
}

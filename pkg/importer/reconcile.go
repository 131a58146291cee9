package importer

import (
	"context"
	"fmt"
	"time"

	"costscan/pkg/logger"

	"go.uber.org/zap"
)

// Reconciler retracts ledger rows of provisional fallback resources once the
// real per-resource split becomes available. Providers that never book costs
// provisionally simply do not implement ProvisionalReconciler.
type Reconciler struct {
	raw      RawStore
	agg      AggregateStore
	registry ResourceRegistry
}

func NewReconciler(raw RawStore, agg AggregateStore, registry ResourceRegistry) *Reconciler {
	return &Reconciler{raw: raw, agg: agg, registry: registry}
}

// Reconcile walks the account's provisional resources and retracts the part
// of their ledger the current run has re-imported under real resources. A
// provisional resource whose raw records were all superseded is either reset
// to its pre-window summary or deleted outright.
func (r *Reconciler) Reconcile(ctx context.Context, run *RunContext, adapter ProviderAdapter) error {
	pr, ok := adapter.(ProvisionalReconciler)
	if !ok {
		return nil
	}
	if run.FirstImport {
		// No prior ledger exists to retract from
		return nil
	}

	provisionals, err := r.registry.ListByType(ctx, run.Account.ID, pr.ProvisionalResourceType())
	if err != nil {
		return fmt.Errorf("failed to list provisional resources: %w", err)
	}
	if len(provisionals) == 0 {
		return nil
	}

	for _, res := range provisionals {
		backed, err := r.raw.HasRecordsSince(ctx, run.Account.ID, res.CloudResourceID, run.PeriodStart)
		if err != nil {
			return fmt.Errorf("failed to check raw backing for %s: %w", res.CloudResourceID, err)
		}
		if backed {
			// Still carrying unsplit costs in this window, leave it alone
			continue
		}
		if err := r.retract(ctx, run, res.CloudResourceID, res.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) retract(ctx context.Context, run *RunContext, cloudResourceID, resourceID string) error {
	sums, err := r.agg.SumSigned(ctx, run.Account.ID, []string{cloudResourceID}, run.PeriodStart, time.Time{})
	if err != nil {
		return fmt.Errorf("failed to read provisional sums: %w", err)
	}

	var rows []CleanExpenseRow
	var retracted float64
	for key, sum := range sums {
		rows = append(rows, CleanExpenseRow{
			CloudAccountID: run.Account.ID,
			ResourceID:     key.ResourceID,
			Day:            key.Day,
			Cost:           sum,
			Sign:           -1,
		})
		retracted += sum
	}
	if len(rows) > 0 {
		if err := r.agg.InsertSigned(ctx, rows); err != nil {
			return fmt.Errorf("failed to retract provisional rows: %w", err)
		}
	}

	// The resource's history before the window decides its fate: an older
	// record keeps it alive with a shrunken summary, otherwise it was a pure
	// artifact of this window and goes away.
	last, err := r.raw.LastRecordBefore(ctx, run.Account.ID, cloudResourceID, run.PeriodStart)
	if err != nil {
		return fmt.Errorf("failed to look up pre-window record for %s: %w", cloudResourceID, err)
	}

	if last == nil {
		if err := r.registry.Delete(ctx, resourceID); err != nil {
			return fmt.Errorf("failed to delete provisional resource %s: %w", cloudResourceID, err)
		}
		logger.Info("provisional resource retired",
			zap.String("cloud_account_id", run.Account.ID),
			zap.String("cloud_resource_id", cloudResourceID),
			zap.Float64("retracted", retracted))
		return nil
	}

	remaining, err := r.agg.SumSigned(ctx, run.Account.ID, []string{cloudResourceID}, time.Time{}, time.Time{})
	if err != nil {
		return fmt.Errorf("failed to recompute provisional summary: %w", err)
	}

	var total float64
	var lastDay time.Time
	var lastCost float64
	for key, sum := range remaining {
		total += sum
		if key.Day.After(lastDay) {
			lastDay = key.Day
			lastCost = sum
		}
	}
	if err := r.registry.UpdateSummary(ctx, resourceID, total, lastDay, lastCost); err != nil {
		return fmt.Errorf("failed to reset provisional summary: %w", err)
	}

	logger.Info("provisional expenses retracted",
		zap.String("cloud_account_id", run.Account.ID),
		zap.String("cloud_resource_id", cloudResourceID),
		zap.Float64("retracted", retracted),
		zap.Float64("remaining_total", total))
	return nil
}

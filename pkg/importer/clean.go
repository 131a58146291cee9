package importer

import (
	"context"
	"fmt"
	"math"
	"time"

	"costscan/internal/models"
	"costscan/pkg/config"
	"costscan/pkg/logger"
	"costscan/pkg/utils/dateutils"

	"go.uber.org/zap"
)

// CleanExpenseGenerator folds raw billing line items into one ledger row per
// resource per day. The ledger is append-only and signed: a changed day is
// corrected by retracting the old value with sign −1 and inserting the new
// one with sign +1, so SUM(cost*sign) always reads the current truth.
type CleanExpenseGenerator struct {
	raw      RawStore
	agg      AggregateStore
	registry ResourceRegistry
	cfg      *config.ImporterConfig
}

func NewCleanExpenseGenerator(raw RawStore, agg AggregateStore, registry ResourceRegistry, cfg *config.ImporterConfig) *CleanExpenseGenerator {
	return &CleanExpenseGenerator{raw: raw, agg: agg, registry: registry, cfg: cfg}
}

// GenerateResult summarizes one generation pass
type GenerateResult struct {
	Resources  int
	Inserted   int
	Corrected  int
	TotalDelta float64
}

// Generate recomputes ledger rows for every resource with raw records in the
// run's window. With regeneration set it walks the account's full raw
// history instead, which is how a recalculation rebuilds the ledger after
// repricing.
func (g *CleanExpenseGenerator) Generate(ctx context.Context, run *RunContext, adapter ProviderAdapter, regeneration bool) (*GenerateResult, error) {
	var since *time.Time
	if !regeneration {
		s := run.PeriodStart
		since = &s
	}

	ids, err := g.raw.ListResourceIDs(ctx, run.Account.ID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources for generation: %w", err)
	}

	result := &GenerateResult{Resources: len(ids)}

	for start := 0; start < len(ids); start += g.cfg.ResourceChunkSize {
		end := start + g.cfg.ResourceChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := g.generateChunk(ctx, run, adapter, ids[start:end], since, result); err != nil {
			return nil, err
		}
	}

	logger.Info("clean expenses generated",
		zap.String("cloud_account_id", run.Account.ID),
		zap.Int("resources", result.Resources),
		zap.Int("inserted", result.Inserted),
		zap.Int("corrected", result.Corrected),
		zap.Bool("regeneration", regeneration))
	return result, nil
}

func (g *CleanExpenseGenerator) generateChunk(ctx context.Context, run *RunContext, adapter ProviderAdapter, resourceIDs []string, since *time.Time, result *GenerateResult) error {
	var sinceTime time.Time
	if since != nil {
		sinceTime = *since
	}

	groups, err := g.raw.FetchGrouped(ctx, run.Account.ID, resourceIDs, sinceTime)
	if err != nil {
		return fmt.Errorf("failed to fetch grouped raw records: %w", err)
	}
	if len(groups) == 0 {
		return nil
	}

	infos := make(map[string]ResourceInfo, len(groups))
	for _, grp := range groups {
		// The chronologically last raw record wins: its attributes describe
		// the resource's current name, region, and tags.
		info := adapter.ResourceInfoFromRecord(grp.Last)
		days := grp.SortedDays()
		info.FirstSeen = days[0]
		info.LastSeen = days[len(days)-1]
		infos[grp.ResourceID] = info
	}

	resources, err := g.registry.CreateIfAbsent(ctx, run.Account.ID, infos)
	if err != nil {
		return fmt.Errorf("failed to register resources: %w", err)
	}

	existing, err := g.agg.SumSigned(ctx, run.Account.ID, resourceIDs, sinceTime, time.Time{})
	if err != nil {
		return fmt.Errorf("failed to read signed sums: %w", err)
	}

	var rows []CleanExpenseRow
	for _, grp := range groups {
		res, ok := resources[grp.ResourceID]
		if !ok {
			logger.Warn("resource missing after registration, skipping",
				zap.String("cloud_account_id", run.Account.ID),
				zap.String("cloud_resource_id", grp.ResourceID))
			continue
		}

		var totalDelta float64
		var lastDay time.Time
		var lastCost float64

		for _, day := range grp.SortedDays() {
			fresh := grp.Days[day]
			prior := existing[ResourceDay{ResourceID: grp.ResourceID, Day: day}]

			if math.Abs(fresh-prior) <= g.cfg.CostTolerance {
				continue
			}

			if prior != 0 {
				// Retract the stale value before writing the fresh one
				rows = append(rows, CleanExpenseRow{
					CloudAccountID: run.Account.ID,
					ResourceID:     grp.ResourceID,
					Day:            day,
					Cost:           prior,
					Sign:           -1,
				})
				result.Corrected++
			}
			rows = append(rows, CleanExpenseRow{
				CloudAccountID: run.Account.ID,
				ResourceID:     grp.ResourceID,
				Day:            day,
				Cost:           fresh,
				Sign:           1,
			})
			result.Inserted++
			totalDelta += fresh - prior

			if day.After(lastDay) || day.Equal(lastDay) {
				lastDay = day
				lastCost = fresh
			}
		}

		if totalDelta != 0 {
			result.TotalDelta += totalDelta
			if err := g.updateSummary(ctx, res, totalDelta, lastDay, lastCost); err != nil {
				return err
			}
		}
	}

	if len(rows) > 0 {
		if err := g.agg.InsertSigned(ctx, rows); err != nil {
			return fmt.Errorf("failed to insert signed rows: %w", err)
		}
	}
	return nil
}

// updateSummary folds the delta into the resource's running total. The last
// expense fields only move forward: a backfill of older days must not roll
// the summary's last-seen expense backwards.
func (g *CleanExpenseGenerator) updateSummary(ctx context.Context, res *models.Resource, delta float64, lastDay time.Time, lastCost float64) error {
	total := res.TotalCost + delta

	day := lastDay
	cost := lastCost
	if res.LastExpenseDate != nil && res.LastExpenseDate.After(lastDay) && !dateutils.SameDay(*res.LastExpenseDate, lastDay) {
		day = *res.LastExpenseDate
		cost = res.LastExpenseCost
	}

	if err := g.registry.UpdateSummary(ctx, res.ID, total, day, cost); err != nil {
		return fmt.Errorf("failed to update resource summary: %w", err)
	}
	return nil
}

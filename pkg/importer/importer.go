package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"costscan/internal/models"
	"costscan/pkg/config"
	"costscan/pkg/logger"
	"costscan/pkg/utils/dateutils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReportImporter is the top-level orchestration: one call imports one cloud
// account end to end, from period detection through reconciliation, and
// maintains the account's watermark bookkeeping.
type ReportImporter struct {
	raw      RawStore
	agg      AggregateStore
	registry ResourceRegistry
	accounts AccountStore
	tasks    TaskStore
	notifier Notifier
	factory  *AdapterFactory
	cfg      *config.ImporterConfig

	detector   *PeriodDetector
	generator  *CleanExpenseGenerator
	reconciler *Reconciler
}

func NewReportImporter(raw RawStore, agg AggregateStore, registry ResourceRegistry, accounts AccountStore, tasks TaskStore, notifier Notifier, factory *AdapterFactory, cfg *config.ImporterConfig) *ReportImporter {
	return &ReportImporter{
		raw:        raw,
		agg:        agg,
		registry:   registry,
		accounts:   accounts,
		tasks:      tasks,
		notifier:   notifier,
		factory:    factory,
		cfg:        cfg,
		detector:   NewPeriodDetector(agg, raw, cfg.InitialMonths),
		generator:  NewCleanExpenseGenerator(raw, agg, registry, cfg),
		reconciler: NewReconciler(raw, agg, registry),
	}
}

// ImportReport runs one full import cycle for a cloud account. The watermark
// advances only on success; a failed run records its error on the account
// and leaves the next run to resume from the same watermark. Rudiment
// cleanup runs whenever the run touched any data, even when a later stage
// fails.
func (ri *ReportImporter) ImportReport(ctx context.Context, account *models.CloudAccount) (*models.TaskResult, error) {
	if !account.Enabled {
		return nil, ErrAccountDisabled
	}

	run := NewRunContext(account, time.Now())

	if err := ri.accounts.RecordAttempt(ctx, account.ID, run.Now); err != nil {
		return nil, fmt.Errorf("failed to record import attempt: %w", err)
	}

	task := ri.startTask(ctx, account.ID, models.TaskTypeImport, run.Now)

	result, err := ri.runImport(ctx, run)
	if err != nil {
		ri.failRun(ctx, run, task, err)
		return nil, err
	}

	if err := ri.accounts.RecordSuccess(ctx, account.ID, run.Now); err != nil {
		ri.failRun(ctx, run, task, err)
		return nil, fmt.Errorf("failed to advance watermark: %w", err)
	}

	ri.completeTask(ctx, task, result)
	ri.createFollowUpTasks(ctx, account.ID)

	logger.Info("import completed",
		zap.String("provider", string(account.Kind)),
		zap.String("cloud_account_id", account.ID),
		zap.Int64("records_fetched", result.RecordsFetched),
		zap.Int64("records_upserted", result.RecordsUpserted),
		zap.Int64("rudiments_purged", result.RudimentsPurged),
		zap.Int64("correction_rows", result.CorrectionsRows))
	return result, nil
}

func (ri *ReportImporter) runImport(ctx context.Context, run *RunContext) (*models.TaskResult, error) {
	adapter, err := ri.factory.ForAccount(run.Account)
	if err != nil {
		return nil, err
	}

	base := NewBaseImporter(adapter, ri.raw, ri.cfg)

	if err := ri.detector.Detect(ctx, run, adapter); err != nil {
		return nil, err
	}

	logger.Info("import run starting",
		zap.String("provider", string(adapter.Kind())),
		zap.String("cloud_account_id", run.Account.ID),
		zap.String("report_identity", run.ReportIdentity),
		zap.Time("period_start", run.PeriodStart),
		zap.Bool("first_import", run.FirstImport))

	var purged int64
	defer func() {
		// Cleanup always runs over whatever window the run managed to
		// touch, so a partially failed run never leaves stale records
		// inside its confirmed prefix.
		var cleanErr error
		purged, cleanErr = base.CleanRudiments(ctx, run)
		if cleanErr != nil {
			logger.Error("rudiment cleanup failed",
				zap.String("cloud_account_id", run.Account.ID),
				zap.Error(cleanErr))
		}
	}()

	if err := base.LoadRawData(ctx, run); err != nil {
		return nil, err
	}

	if pp, ok := adapter.(PostProcessor); ok {
		extra, err := pp.PostProcess(ctx, run)
		if err != nil {
			return nil, err
		}
		if err := base.UpsertRecords(ctx, run, extra); err != nil {
			return nil, err
		}
	}

	genResult, err := ri.generator.Generate(ctx, run, adapter, false)
	if err != nil {
		return nil, err
	}

	if err := ri.reconciler.Reconcile(ctx, run, adapter); err != nil {
		return nil, err
	}

	ri.sanityCheck(ctx, run)

	return &models.TaskResult{
		RecordsFetched:  run.RecordsFetched,
		RecordsUpserted: run.RecordsUpserted,
		RudimentsPurged: purged,
		CorrectionsRows: int64(genResult.Inserted + genResult.Corrected),
		PeriodStart:     run.PeriodStart.Format(dateutils.LayoutDate),
	}, nil
}

// RecalculateRawExpenses reprices the account's raw records in place and
// rebuilds the full ledger from them, without touching the provider. Used
// after a cost-model change on environment and kubernetes accounts.
func (ri *ReportImporter) RecalculateRawExpenses(ctx context.Context, account *models.CloudAccount) error {
	model, err := account.GetCostModel()
	if err != nil {
		return err
	}
	if model == nil {
		return ErrNoCostModel
	}

	run := NewRunContext(account, time.Now())
	task := ri.startTask(ctx, account.ID, models.TaskTypeRecalculate, run.Now)

	adapter, err := ri.factory.ForAccount(account)
	if err != nil {
		ri.failRun(ctx, run, task, err)
		return err
	}

	updated, err := ri.raw.UpdateCosts(ctx, account.ID, repriceByCostModel(model))
	if err != nil {
		ri.failRun(ctx, run, task, err)
		return fmt.Errorf("failed to reprice raw records: %w", err)
	}

	genResult, err := ri.generator.Generate(ctx, run, adapter, true)
	if err != nil {
		ri.failRun(ctx, run, task, err)
		return err
	}

	ri.completeTask(ctx, task, &models.TaskResult{
		RecordsUpserted: updated,
		CorrectionsRows: int64(genResult.Inserted + genResult.Corrected),
	})

	logger.Info("raw expenses recalculated",
		zap.String("cloud_account_id", account.ID),
		zap.Int64("repriced", updated),
		zap.Int("correction_rows", genResult.Inserted+genResult.Corrected))
	return nil
}

// DeleteAccountData tears down everything the pipeline stored for one cloud
// account: raw records, the full ledger, registered resources, and task
// history.
func (ri *ReportImporter) DeleteAccountData(ctx context.Context, accountID string) error {
	rawDeleted, err := ri.raw.DeleteAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete raw records: %w", err)
	}
	if err := ri.agg.DeleteAccount(ctx, accountID); err != nil {
		return fmt.Errorf("failed to delete ledger rows: %w", err)
	}
	resDeleted, err := ri.registry.DeleteAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete resources: %w", err)
	}
	tasksDeleted, err := ri.tasks.DeleteAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete task history: %w", err)
	}

	logger.Info("cloud account data deleted",
		zap.String("cloud_account_id", accountID),
		zap.Int64("raw_records", rawDeleted),
		zap.Int64("resources", resDeleted),
		zap.Int64("tasks", tasksDeleted))
	return nil
}

// sanityCheck compares the run's raw cost total against the ledger's signed
// sum over the touched window. A discrepancy beyond the configured
// threshold means generation and raw data disagree and an operator should
// look.
func (ri *ReportImporter) sanityCheck(ctx context.Context, run *RunContext) {
	if !run.Touched() || !ri.cfg.NotifyOnMismatch {
		return
	}

	sums, err := ri.agg.SumSigned(ctx, run.Account.ID, nil, run.MinTouched, run.MaxTouched)
	if err != nil {
		logger.Warn("sanity check skipped",
			zap.String("cloud_account_id", run.Account.ID),
			zap.Error(err))
		return
	}

	var ledgerTotal float64
	for _, sum := range sums {
		ledgerTotal += sum
	}

	diff := math.Abs(ledgerTotal - run.RawCostTotal)
	scale := math.Max(1, math.Abs(run.RawCostTotal))
	if diff/scale <= ri.cfg.MismatchThreshold {
		return
	}

	logger.Error("ledger does not match raw cost total",
		zap.String("cloud_account_id", run.Account.ID),
		zap.Float64("raw_total", run.RawCostTotal),
		zap.Float64("ledger_total", ledgerTotal))

	message := fmt.Sprintf("Expense mismatch on account %s: raw total %.4f, ledger total %.4f (window %s to %s)",
		run.Account.ID, run.RawCostTotal, ledgerTotal,
		run.MinTouched.Format(dateutils.LayoutDate), run.MaxTouched.Format(dateutils.LayoutDate))
	if err := ri.notifier.SendMessage(ctx, message); err != nil {
		logger.Warn("failed to send mismatch notification", zap.Error(err))
	}
}

func (ri *ReportImporter) startTask(ctx context.Context, accountID, taskType string, now time.Time) *models.ImportTask {
	task := &models.ImportTask{
		TaskID:         uuid.NewString(),
		CloudAccountID: accountID,
		Type:           taskType,
		Status:         models.TaskStatusRunning,
		StartedAt:      &now,
	}
	if err := ri.tasks.Create(ctx, task); err != nil {
		logger.Warn("failed to create task record",
			zap.String("cloud_account_id", accountID),
			zap.String("type", taskType),
			zap.Error(err))
	}
	return task
}

func (ri *ReportImporter) completeTask(ctx context.Context, task *models.ImportTask, result *models.TaskResult) {
	now := time.Now()
	task.Status = models.TaskStatusCompleted
	task.CompletedAt = &now
	if task.StartedAt != nil {
		task.Duration = now.Sub(*task.StartedAt).Milliseconds()
	}
	if result != nil {
		if encoded, err := json.Marshal(result); err == nil {
			task.Result = encoded
		}
	}
	if err := ri.tasks.Update(ctx, task); err != nil {
		logger.Warn("failed to update task record",
			zap.String("task_id", task.TaskID),
			zap.Error(err))
	}
}

func (ri *ReportImporter) failRun(ctx context.Context, run *RunContext, task *models.ImportTask, runErr error) {
	if err := ri.accounts.RecordFailure(ctx, run.Account.ID, runErr.Error()); err != nil {
		logger.Error("failed to record import failure",
			zap.String("cloud_account_id", run.Account.ID),
			zap.Error(err))
	}

	now := time.Now()
	task.Status = models.TaskStatusFailed
	task.CompletedAt = &now
	task.ErrorMsg = runErr.Error()
	if task.StartedAt != nil {
		task.Duration = now.Sub(*task.StartedAt).Milliseconds()
	}
	if err := ri.tasks.Update(ctx, task); err != nil {
		logger.Warn("failed to update task record",
			zap.String("task_id", task.TaskID),
			zap.Error(err))
	}

	logger.Error("import run failed",
		zap.String("provider", string(run.Account.Kind)),
		zap.String("cloud_account_id", run.Account.ID),
		zap.Error(runErr))
}

func (ri *ReportImporter) createFollowUpTasks(ctx context.Context, accountID string) {
	for _, taskType := range []string{models.TaskTypeTraffic, models.TaskTypeRISP} {
		task := &models.ImportTask{
			TaskID:         uuid.NewString(),
			CloudAccountID: accountID,
			Type:           taskType,
			Status:         models.TaskStatusPending,
		}
		if err := ri.tasks.Create(ctx, task); err != nil {
			logger.Warn("failed to create follow-up task",
				zap.String("cloud_account_id", accountID),
				zap.String("type", taskType),
				zap.Error(err))
		}
	}
}

// repriceByCostModel recomputes a record's cost from its usage metrics and
// the current cost model. Records without usage metrics keep their cost.
func repriceByCostModel(model *models.CostModel) func(RawRecord) float64 {
	return func(rec RawRecord) float64 {
		if len(rec.Metrics) == 0 {
			return rec.Cost
		}
		return rec.Metrics["cpu_hours"]*model.CPUHourly +
			rec.Metrics["mem_gb_hours"]*model.MemGBHourly +
			rec.Metrics["hours"]*model.HourlyPriceFor(rec.ResourceID)
	}
}

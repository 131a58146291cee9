package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"costscan/pkg/config"
	"costscan/pkg/importer"
	"costscan/pkg/logger"
	"costscan/pkg/registry"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ImportScheduler runs the import pipeline for every enabled cloud account
// on a cron schedule. Accounts are imported with bounded parallelism; each
// account stays a single sequential unit of work.
type ImportScheduler struct {
	cron     *cron.Cron
	cfg      *config.SchedulerConfig
	accounts *registry.AccountStore
	reports  *importer.ReportImporter
	ctx      context.Context

	mu      sync.Mutex
	running bool
	lastRun time.Time
}

func NewImportScheduler(ctx context.Context, cfg *config.SchedulerConfig, accounts *registry.AccountStore, reports *importer.ReportImporter) (*ImportScheduler, error) {
	s := &ImportScheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cron.DefaultLogger)),
		),
		cfg:      cfg,
		accounts: accounts,
		reports:  reports,
		ctx:      ctx,
	}

	if _, err := s.cron.AddFunc(cfg.ImportCron, s.runAll); err != nil {
		return nil, fmt.Errorf("invalid import cron %q: %w", cfg.ImportCron, err)
	}

	logger.Info("import scheduler initialized",
		zap.String("cron", cfg.ImportCron),
		zap.Int("max_parallel", cfg.MaxParallel))
	return s, nil
}

// Start runs the scheduler until the context is cancelled
func (s *ImportScheduler) Start() {
	s.cron.Start()
	<-s.ctx.Done()
	logger.Info("import scheduler context cancelled")
}

// Shutdown stops scheduling and waits for running imports to finish or the
// shutdown context to expire.
func (s *ImportScheduler) Shutdown(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		logger.Info("all scheduled imports completed")
	case <-ctx.Done():
		logger.Warn("scheduler shutdown timeout, imports may still be running")
	}
	return nil
}

// TriggerAll runs one import cycle for every enabled account immediately
func (s *ImportScheduler) TriggerAll() {
	go s.runAll()
}

// Status reports the scheduler's current state
func (s *ImportScheduler) Status() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := map[string]interface{}{
		"running":   s.running,
		"cron":      s.cfg.ImportCron,
		"timestamp": time.Now().UTC(),
	}
	if !s.lastRun.IsZero() {
		status["last_run"] = s.lastRun
	}
	return status
}

func (s *ImportScheduler) runAll() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logger.Warn("previous import cycle still running, skipping this tick")
		return
	}
	s.running = true
	s.lastRun = time.Now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	accounts, err := s.accounts.ListEnabled(s.ctx)
	if err != nil {
		logger.Error("failed to list enabled accounts", zap.Error(err))
		return
	}
	if len(accounts) == 0 {
		logger.Info("no enabled cloud accounts to import")
		return
	}

	logger.Info("import cycle starting", zap.Int("accounts", len(accounts)))

	parallel := s.cfg.MaxParallel
	if parallel <= 0 {
		parallel = 1
	}

	sem := make(chan struct{}, parallel)
	var wg sync.WaitGroup
	for _, account := range accounts {
		account := account

		select {
		case sem <- struct{}{}:
		case <-s.ctx.Done():
			wg.Wait()
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := s.reports.ImportReport(s.ctx, account); err != nil {
				logger.Error("scheduled import failed",
					zap.String("cloud_account_id", account.ID),
					zap.String("provider", string(account.Kind)),
					zap.Error(err))
			}
		}()
	}
	wg.Wait()

	logger.Info("import cycle finished", zap.Int("accounts", len(accounts)))
}

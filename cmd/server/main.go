package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"costscan/pkg/clickhouse"
	"costscan/pkg/config"
	"costscan/pkg/handlers"
	"costscan/pkg/importer"
	"costscan/pkg/logger"
	"costscan/pkg/notifier"
	"costscan/pkg/rawstore"
	"costscan/pkg/registry"
	"costscan/pkg/scheduler"
	"costscan/pkg/server"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to the YAML configuration file")
		importOne   = flag.String("import-account", "", "run one import for this cloud account id and exit")
		recalculate = flag.String("recalculate-account", "", "recalculate raw expenses for this cloud account id and exit")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.InitLogger(cfg.App.Development, cfg.App.LogFile, cfg.App.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		logger.Fatal("failed to connect to MySQL", zap.Error(err))
	}

	chClient, err := clickhouse.NewClient(cfg.ClickHouse)
	if err != nil {
		logger.Fatal("failed to connect to ClickHouse", zap.Error(err))
	}
	defer chClient.Close()

	raw := rawstore.NewStore(db)
	resources := registry.NewResourceRegistry(db)
	accounts := registry.NewAccountStore(db)
	tasks := registry.NewTaskStore(db)
	ledger := clickhouse.NewLedger(chClient)

	if err := migrate(ctx, raw, resources, accounts, tasks, ledger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	factory := importer.NewAdapterFactory(cfg.AliCloud, resources)
	alerts := notifier.NewTelegramNotifier(cfg.Telegram)
	if err := alerts.ValidateConfig(); err != nil {
		logger.Fatal("invalid notification config", zap.Error(err))
	}

	reports := importer.NewReportImporter(raw, ledger, resources, accounts, tasks, alerts, factory, cfg.Importer)

	// One-shot modes run a single pipeline call and exit
	if *importOne != "" {
		runOnce(ctx, accounts, reports, *importOne, false)
		return
	}
	if *recalculate != "" {
		runOnce(ctx, accounts, reports, *recalculate, true)
		return
	}

	handlerSvc := handlers.NewHandlerService(ctx, cfg, accounts, tasks, reports)
	httpServer := server.NewHTTPServer(cfg.App, handlerSvc)

	var sched *scheduler.ImportScheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.NewImportScheduler(ctx, cfg.Scheduler, accounts, reports)
		if err != nil {
			logger.Fatal("failed to create scheduler", zap.Error(err))
		}
		httpServer.SetScheduler(sched)
		go sched.Start()
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Block until a termination signal, then drain
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if sched != nil {
		if err := sched.Shutdown(shutdownCtx); err != nil {
			logger.Error("scheduler shutdown failed", zap.Error(err))
		}
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

func migrate(ctx context.Context, raw *rawstore.Store, resources *registry.ResourceRegistry, accounts *registry.AccountStore, tasks *registry.TaskStore, ledger *clickhouse.Ledger) error {
	if err := accounts.AutoMigrate(); err != nil {
		return err
	}
	if err := resources.AutoMigrate(); err != nil {
		return err
	}
	if err := raw.AutoMigrate(); err != nil {
		return err
	}
	if err := tasks.AutoMigrate(); err != nil {
		return err
	}
	return ledger.EnsureSchema(ctx)
}

func runOnce(ctx context.Context, accounts *registry.AccountStore, reports *importer.ReportImporter, accountID string, recalculate bool) {
	account, err := accounts.Get(ctx, accountID)
	if err != nil {
		logger.Fatal("failed to load cloud account",
			zap.String("cloud_account_id", accountID),
			zap.Error(err))
	}

	if recalculate {
		if err := reports.RecalculateRawExpenses(ctx, account); err != nil {
			logger.Fatal("recalculation failed",
				zap.String("cloud_account_id", accountID),
				zap.Error(err))
		}
		return
	}

	result, err := reports.ImportReport(ctx, account)
	if err != nil {
		logger.Fatal("import failed",
			zap.String("cloud_account_id", accountID),
			zap.Error(err))
	}

	logger.Info("one-shot import finished",
		zap.String("cloud_account_id", accountID),
		zap.Int64("records_fetched", result.RecordsFetched),
		zap.Int64("records_upserted", result.RecordsUpserted))
}

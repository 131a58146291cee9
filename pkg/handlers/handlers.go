package handlers

import (
	"context"

	"costscan/pkg/config"
	"costscan/pkg/importer"
	"costscan/pkg/registry"
	"costscan/pkg/scheduler"
)

// HandlerService holds the dependencies shared by all HTTP handlers
type HandlerService struct {
	config    *config.Config
	ctx       context.Context
	accounts  *registry.AccountStore
	tasks     *registry.TaskStore
	reports   *importer.ReportImporter
	scheduler *scheduler.ImportScheduler
}

func NewHandlerService(ctx context.Context, cfg *config.Config, accounts *registry.AccountStore, tasks *registry.TaskStore, reports *importer.ReportImporter) *HandlerService {
	return &HandlerService{
		config:   cfg,
		ctx:      ctx,
		accounts: accounts,
		tasks:    tasks,
		reports:  reports,
	}
}

// SetScheduler attaches the scheduler once it exists (it is built after the
// handlers because it shares the report importer).
func (h *HandlerService) SetScheduler(s *scheduler.ImportScheduler) {
	h.scheduler = s
}

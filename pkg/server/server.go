package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"costscan/pkg/config"
	"costscan/pkg/handlers"
	"costscan/pkg/logger"
	"costscan/pkg/middleware"
	"costscan/pkg/scheduler"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second
)

// HTTPServer is the trigger API: it only starts pipeline work and reads
// task status, the heavy lifting stays in the importer.
type HTTPServer struct {
	server     *http.Server
	engine     *gin.Engine
	handlerSvc *handlers.HandlerService
}

func NewHTTPServer(cfg *config.AppConfig, handlerSvc *handlers.HandlerService) *HTTPServer {
	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.GinZapLogger(),
		middleware.ErrorHandler(),
		cors.Default(),
	)

	s := &HTTPServer{
		engine:     engine,
		handlerSvc: handlerSvc,
		server: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      engine,
			ReadTimeout:  defaultReadTimeout,
			WriteTimeout: defaultWriteTimeout,
			IdleTimeout:  defaultIdleTimeout,
		},
	}

	s.setupRoutes()

	logger.Info("HTTP server initialized", zap.String("listen_addr", cfg.ListenAddr))
	return s
}

// SetScheduler attaches the scheduler to the status endpoint
func (s *HTTPServer) SetScheduler(sched *scheduler.ImportScheduler) {
	s.handlerSvc.SetScheduler(sched)
}

func (s *HTTPServer) setupRoutes() {
	s.engine.GET("/health", s.handlerSvc.Health)

	api := s.engine.Group("/api/v1")
	{
		api.GET("/status", s.handlerSvc.GetStatus)

		accounts := api.Group("/accounts/:account_id")
		{
			accounts.POST("/import", s.handlerSvc.TriggerImport)
			accounts.POST("/recalculate", s.handlerSvc.TriggerRecalculate)
			accounts.DELETE("/data", s.handlerSvc.DeleteAccountData)
			accounts.GET("/tasks", s.handlerSvc.ListAccountTasks)
		}

		api.GET("/tasks/:task_id", s.handlerSvc.GetTask)
	}
}

// Start blocks serving requests until the listener closes
func (s *HTTPServer) Start() error {
	logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}
	return nil
}

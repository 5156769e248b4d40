// Package control wires the allocator's components and manages their lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vietddude/allocator/internal/allocation"
	"github.com/vietddude/allocator/internal/core/config"
	"github.com/vietddude/allocator/internal/health"
	redisclient "github.com/vietddude/allocator/internal/infra/redis"
	"github.com/vietddude/allocator/internal/infra/rpc/provider"
	"github.com/vietddude/allocator/internal/infra/storage"
	"github.com/vietddude/allocator/internal/infra/storage/memory"
	"github.com/vietddude/allocator/internal/infra/storage/postgres"
	"github.com/vietddude/allocator/internal/tasks"
)

// Service is the main application struct that manages component lifecycle.
type Service struct {
	cfg          config.AppConfig
	store        *memory.MemoryStorage
	db           *postgres.DB
	redisClient  *redisclient.Client
	procedure    provider.Procedure
	client       *allocation.Client
	catalog      storage.CatalogRepository
	batches      storage.BatchRepository
	taskHandler  *tasks.Handler
	worker       *tasks.Worker
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger
}

// NewService creates a new Service with all dependencies initialized.
func NewService(ctx context.Context, cfg config.AppConfig, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{cfg: cfg, log: log, store: memory.NewMemoryStorage()}
	pingers := make(map[string]health.Pinger)

	// 1. Initialize Storage
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		s.db = db
		applied, err := db.Migrate(ctx)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		s.catalog = postgres.NewCatalogRepo(db)
		s.batches = postgres.NewBatchRepo(db)
		pingers["postgres"] = db
		log.Info("Using PostgreSQL storage", "migrations_applied", applied)
	} else {
		s.catalog = memory.NewCatalogRepo(s.store)
		s.batches = memory.NewBatchRepo(s.store)
		log.Info("Using Memory storage")
	}

	var taskRepo storage.TaskRepository = memory.NewTaskRepo(s.store)
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, using in-memory task queue", "error", err)
		} else {
			s.redisClient = client
			taskRepo = client.Tasks()
			pingers["redis"] = client
			log.Info("Using Redis task queue", "namespace", client.Namespace())
		}
	}

	// 2. Initialize Procedure & Client
	proc, err := provider.New(ctx, cfg.Procedure, s.store)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("failed to create procedure: %w", err)
	}
	s.procedure = proc
	log.Info("Allocation procedure ready", "transport", proc.Name(), "function", cfg.Procedure.Function)

	s.client = allocation.NewClient(proc,
		allocation.WithRetryConfig(cfg.Retry),
		allocation.WithLogger(log),
	)

	// 3. Background tasks
	s.taskHandler = tasks.NewHandler(taskRepo, s.client, cfg.Tasks, log)
	s.worker = tasks.NewWorker(s.taskHandler)

	// 4. Health & API
	s.healthMon = health.NewMonitor(proc, s.taskHandler, pingers)
	s.healthServer = health.NewServer(s.healthMon, s.client, s.taskHandler, health.Options{
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Logger:       log,
	})

	return s, nil
}

// Client returns the allocation client.
func (s *Service) Client() *allocation.Client { return s.client }

// Tasks returns the write-off task handler.
func (s *Service) Tasks() *tasks.Handler { return s.taskHandler }

// Catalog returns the catalog repository.
func (s *Service) Catalog() storage.CatalogRepository { return s.catalog }

// Batches returns the inventory batch repository.
func (s *Service) Batches() storage.BatchRepository { return s.batches }

// Health returns the current health report.
func (s *Service) Health(ctx context.Context) health.HealthReport {
	return s.healthMon.CheckHealth(ctx)
}

// Start starts the HTTP server and background workers.
func (s *Service) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := s.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server failed", "error", err)
		}
	}()
	s.log.Info("HTTP server listening", "port", s.cfg.Server.Port)

	// Start DB Metrics Collector
	if s.db != nil {
		s.db.StartMetricsCollector(ctx)
	}

	// Start Task Worker
	go s.worker.Start(ctx)

	return nil
}

// Stop stops the service.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping allocator...")

	err := s.healthServer.Stop(ctx)
	s.close()
	return err
}

func (s *Service) close() {
	if s.procedure != nil {
		if err := s.procedure.Close(); err != nil {
			s.log.Warn("Failed to close procedure", "error", err)
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("Failed to close database", "error", err)
		}
	}
}

// Package tasks processes queued write-off allocations in the background.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/allocator/internal/allocation"
	"github.com/vietddude/allocator/internal/core/domain"
	"github.com/vietddude/allocator/internal/infra/rpc/retry"
	"github.com/vietddude/allocator/internal/infra/storage"
	"github.com/vietddude/allocator/internal/metrics"
)

// DefaultMaxAttempts is the number of times a task is tried before it fails.
const DefaultMaxAttempts = 3

// Allocator allocates a batch of items under a request id.
type Allocator interface {
	AllocateRequest(ctx context.Context, requestID string, items []domain.AllocationItem) ([]domain.AllocationResult, error)
}

// Config controls background processing.
type Config struct {
	MaxAttempts  int           `yaml:"max_attempts"  env:"MAX_ATTEMPTS"`
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	BatchLimit   int           `yaml:"batch_limit"   env:"BATCH_LIMIT"`
	// UseFallback completes tasks at fallback cost when the procedure is unavailable.
	UseFallback bool `yaml:"use_fallback" env:"USE_FALLBACK"`
}

// Handler processes the write-off task queue.
type Handler struct {
	repo      storage.TaskRepository
	allocator Allocator
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandler creates a new write-off task handler.
func NewHandler(repo storage.TaskRepository, allocator Allocator, cfg Config, logger *slog.Logger) *Handler {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		repo:      repo,
		allocator: allocator,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Enqueue validates items and queues them for allocation.
func (h *Handler) Enqueue(
	ctx context.Context,
	description string,
	items []domain.AllocationItem,
) (*domain.WriteOffTask, error) {
	if len(items) == 0 {
		return nil, retry.Invalid("enqueue", errors.New("write-off has no items"))
	}
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return nil, retry.Invalid("enqueue", fmt.Errorf("item %d: %w", i, err))
		}
	}

	now := h.now().Unix()
	task := &domain.WriteOffTask{
		ID:            uuid.New().String(),
		Description:   description,
		RequestID:     uuid.NewString(),
		Items:         items,
		Status:        domain.TaskStatusQueued,
		MaxAttempts:   h.cfg.MaxAttempts,
		CreatedAt:     now,
		NextAttemptAt: now,
	}
	if err := h.repo.Add(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to add task: %w", err)
	}

	metrics.TasksTotal.WithLabelValues(string(domain.TaskStatusQueued)).Inc()
	h.logger.Info("Write-off queued", "task", task.ID, "items", len(items))
	return task, nil
}

// Get returns a task by id.
func (h *Handler) Get(ctx context.Context, id string) (*domain.WriteOffTask, error) {
	return h.repo.Get(ctx, id)
}

// ProcessNext picks the next due task and allocates it.
// It reports whether a task was processed.
func (h *Handler) ProcessNext(ctx context.Context) (bool, error) {
	task, err := h.repo.GetNext(ctx, h.now().Unix())
	if err != nil {
		return false, fmt.Errorf("failed to get next task: %w", err)
	}
	if task == nil {
		return false, nil
	}

	task.Status = domain.TaskStatusProcessing
	if err := h.repo.Update(ctx, task); err != nil {
		return false, fmt.Errorf("failed to claim task %s: %w", task.ID, err)
	}

	// Attempts share one request id so a draw committed by a timed-out
	// attempt is replayed, not repeated.
	if task.RequestID == "" {
		task.RequestID = task.ID
	}
	results, err := h.allocator.AllocateRequest(ctx, task.RequestID, task.Items)
	if err != nil && h.cfg.UseFallback && errors.Is(err, allocation.ErrProcedureUnavailable) {
		h.logger.Warn("Write-off using fallback cost", "task", task.ID, "error", err)
		results, err = allocation.ApplyFallback(task.Items), nil
	}

	if err == nil {
		task.Status = domain.TaskStatusCompleted
		task.Results = results
		task.LastError = ""
		task.Attempts++
		task.CompletedAt = h.now().Unix()
		if err := h.repo.Update(ctx, task); err != nil {
			return true, fmt.Errorf("failed to complete task %s: %w", task.ID, err)
		}
		metrics.TasksTotal.WithLabelValues(string(domain.TaskStatusCompleted)).Inc()
		h.logger.Info("Write-off completed",
			"task", task.ID,
			"attempts", task.Attempts,
			"total_cost", domain.TotalCost(results),
		)
		return true, nil
	}

	if ctx.Err() != nil {
		// Shutting down: put the task back untouched.
		task.Status = domain.TaskStatusQueued
		if uerr := h.repo.Update(context.WithoutCancel(ctx), task); uerr != nil {
			return true, fmt.Errorf("failed to requeue task %s: %w", task.ID, uerr)
		}
		return true, ctx.Err()
	}

	return true, h.fail(ctx, task, err)
}

// fail records a failed attempt and schedules the next one with exponential backoff.
func (h *Handler) fail(ctx context.Context, task *domain.WriteOffTask, cause error) error {
	task.Attempts++
	task.LastError = cause.Error()

	kind := retry.Classify(cause)
	permanent := kind == retry.KindValidation || kind == retry.KindRemoteRejection

	if permanent || task.Attempts >= task.MaxAttempts {
		task.Status = domain.TaskStatusFailed
		task.CompletedAt = h.now().Unix()
		metrics.TasksTotal.WithLabelValues(string(domain.TaskStatusFailed)).Inc()
		h.logger.Error("Write-off failed",
			"task", task.ID,
			"attempts", task.Attempts,
			"kind", kind.String(),
			"error", cause,
		)
	} else {
		delay := retry.Delay(task.Attempts)
		task.Status = domain.TaskStatusQueued
		task.NextAttemptAt = h.now().Add(delay).Unix()
		metrics.TasksTotal.WithLabelValues("retried").Inc()
		h.logger.Warn("Write-off failed, retrying",
			"task", task.ID,
			"attempt", task.Attempts,
			"retry_in", delay,
			"error", cause,
		)
	}

	if err := h.repo.Update(ctx, task); err != nil {
		return fmt.Errorf("failed to update task %s: %w", task.ID, err)
	}
	return nil
}

// QueueDepth returns the number of queued tasks.
func (h *Handler) QueueDepth(ctx context.Context) (int, error) {
	return h.repo.Count(ctx)
}

package tasks

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/allocator/internal/metrics"
)

// DefaultPollInterval is how often the worker checks the queue.
const DefaultPollInterval = time.Second

// Worker polls the task queue on a ticker.
type Worker struct {
	handler  *Handler
	interval time.Duration
	limit    int
	logger   *slog.Logger
}

// NewWorker creates a new Worker.
func NewWorker(handler *Handler) *Worker {
	interval := handler.cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	limit := handler.cfg.BatchLimit
	if limit <= 0 {
		limit = 10
	}
	return &Worker{
		handler:  handler,
		interval: interval,
		limit:    limit,
		logger:   handler.logger,
	}
}

// Start runs the worker loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Task worker started", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Task worker stopped")
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain processes up to limit due tasks.
func (w *Worker) drain(ctx context.Context) int {
	processed := 0
	for processed < w.limit {
		ok, err := w.handler.ProcessNext(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				w.logger.Error("Task processing failed", "error", err)
			}
			break
		}
		if !ok {
			break
		}
		processed++
	}

	if depth, err := w.handler.QueueDepth(ctx); err == nil {
		metrics.TaskQueueDepth.Set(float64(depth))
	}
	return processed
}

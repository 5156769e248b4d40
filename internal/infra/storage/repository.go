package storage

import (
	"context"
	"errors"

	"github.com/vietddude/allocator/internal/core/domain"
)

var (
	// ErrTaskNotFound is returned when a write-off task doesn't exist
	ErrTaskNotFound = errors.New("task not found")

	// ErrItemNotFound is returned when a catalog item doesn't exist
	ErrItemNotFound = errors.New("item not found")
)

// CatalogRepository handles products and preparations that batches belong to
type CatalogRepository interface {
	// Upsert saves a catalog item
	Upsert(ctx context.Context, item *domain.CatalogItem) error

	// Get retrieves a catalog item
	Get(ctx context.Context, kind domain.ItemKind, id string) (*domain.CatalogItem, error)
}

// BatchRepository handles inventory batch storage operations
type BatchRepository interface {
	// Receive records a new inventory batch
	Receive(ctx context.Context, batch *domain.InventoryBatch) error

	// ListByItem retrieves batches for an item, oldest first
	ListByItem(ctx context.Context, kind domain.ItemKind, itemID string) ([]domain.InventoryBatch, error)

	// Summary aggregates remaining stock per item
	Summary(ctx context.Context) ([]domain.InventorySummary, error)
}

// TaskRepository handles the background write-off task queue
type TaskRepository interface {
	// Add adds a task to the queue
	Add(ctx context.Context, task *domain.WriteOffTask) error

	// Get retrieves a task by ID
	Get(ctx context.Context, id string) (*domain.WriteOffTask, error)

	// Update persists task state and reschedules it if not done
	Update(ctx context.Context, task *domain.WriteOffTask) error

	// GetNext retrieves the next task due at or before now (unix seconds)
	GetNext(ctx context.Context, now int64) (*domain.WriteOffTask, error)

	// Count returns the number of tasks still queued
	Count(ctx context.Context) (int, error)
}

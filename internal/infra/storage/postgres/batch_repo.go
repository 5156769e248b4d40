package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/vietddude/allocator/internal/core/domain"
	"github.com/vietddude/allocator/internal/infra/storage"
)

// BatchRepo implements storage.BatchRepository using PostgreSQL.
type BatchRepo struct {
	db *DB
}

// NewBatchRepo creates a new PostgreSQL batch repository.
func NewBatchRepo(db *DB) *BatchRepo {
	return &BatchRepo{db: db}
}

// Receive records a new inventory batch.
func (r *BatchRepo) Receive(ctx context.Context, batch *domain.InventoryBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO inventory_batches
			(id, item_kind, item_id, batch_number, current_quantity, cost_per_unit, received_at)
		VALUES
			(:id, :item_kind, :item_id, :batch_number, :current_quantity, :cost_per_unit, :received_at)`,
		batch)
	if err != nil {
		// 23503: foreign_key_violation
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return fmt.Errorf("%s %s: %w", batch.ItemKind, batch.ItemID, storage.ErrItemNotFound)
		}
		return fmt.Errorf("failed to receive batch: %w", err)
	}
	return nil
}

// ListByItem retrieves batches for an item, oldest first.
func (r *BatchRepo) ListByItem(
	ctx context.Context,
	kind domain.ItemKind,
	itemID string,
) ([]domain.InventoryBatch, error) {
	var batches []domain.InventoryBatch
	err := r.db.SelectContext(ctx, &batches, `
		SELECT id, item_kind, item_id, batch_number, current_quantity, cost_per_unit, received_at
		FROM inventory_batches
		WHERE item_kind = $1 AND item_id = $2
		ORDER BY received_at, batch_number`,
		string(kind), itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	return batches, nil
}

// Summary aggregates remaining stock per item.
func (r *BatchRepo) Summary(ctx context.Context) ([]domain.InventorySummary, error) {
	var out []domain.InventorySummary
	err := r.db.SelectContext(ctx, &out, `
		SELECT item_kind, item_id,
		       COUNT(*) AS batches,
		       COALESCE(SUM(current_quantity), 0) AS quantity,
		       COALESCE(SUM(current_quantity * cost_per_unit), 0) AS stock_value
		FROM inventory_batches
		GROUP BY item_kind, item_id
		ORDER BY item_kind, item_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize inventory: %w", err)
	}
	return out, nil
}

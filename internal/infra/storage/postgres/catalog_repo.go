package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/allocator/internal/core/domain"
	"github.com/vietddude/allocator/internal/infra/storage"
)

// CatalogRepo implements storage.CatalogRepository using PostgreSQL.
type CatalogRepo struct {
	db *DB
}

// NewCatalogRepo creates a new PostgreSQL catalog repository.
func NewCatalogRepo(db *DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

// Upsert saves a catalog item.
func (r *CatalogRepo) Upsert(ctx context.Context, item *domain.CatalogItem) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO catalog_items (kind, id, name, last_known_cost)
		VALUES (:kind, :id, :name, :last_known_cost)
		ON CONFLICT (kind, id) DO UPDATE
		SET name = EXCLUDED.name, last_known_cost = EXCLUDED.last_known_cost`, item)
	if err != nil {
		return fmt.Errorf("failed to upsert catalog item: %w", err)
	}
	return nil
}

// Get retrieves a catalog item.
func (r *CatalogRepo) Get(ctx context.Context, kind domain.ItemKind, id string) (*domain.CatalogItem, error) {
	var item domain.CatalogItem
	err := r.db.GetContext(ctx, &item,
		`SELECT kind, id, name, last_known_cost FROM catalog_items WHERE kind = $1 AND id = $2`,
		string(kind), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog item: %w", err)
	}
	return &item, nil
}

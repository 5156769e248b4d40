package provider

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/allocator/internal/core/domain"
	"github.com/vietddude/allocator/internal/infra/rpc/retry"
	"github.com/vietddude/allocator/internal/infra/storage/postgres"
)

type pgFixture struct {
	proc    *PostgresProcedure
	catalog *postgres.CatalogRepo
	batches *postgres.BatchRepo
}

func newPgFixture(t *testing.T) *pgFixture {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("Skipping Postgres test. Set DATABASE_URL to run.")
	}
	ctx := context.Background()

	db, err := postgres.NewDB(ctx, postgres.Config{URL: url})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Migrate(ctx)
	require.NoError(t, err)

	proc, err := NewPostgresProcedure(ctx, TransportPostgres, url, DefaultFunction, 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = proc.Close() })

	return &pgFixture{
		proc:    proc,
		catalog: postgres.NewCatalogRepo(db),
		batches: postgres.NewBatchRepo(db),
	}
}

// stock creates a product with one batch per quantity, a day apart, at
// unit costs 2, 3, 4 and so on. Ids are random so runs do not collide.
func (f *pgFixture) stock(t *testing.T, lastKnownCost float64, quantities ...float64) string {
	t.Helper()
	ctx := context.Background()
	id := "flour-" + uuid.NewString()
	require.NoError(t, f.catalog.Upsert(ctx, &domain.CatalogItem{
		Kind: domain.KindProduct, ID: id, Name: "Flour", LastKnownCost: lastKnownCost,
	}))
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, q := range quantities {
		require.NoError(t, f.batches.Receive(ctx, &domain.InventoryBatch{
			ItemKind:    domain.KindProduct,
			ItemID:      id,
			BatchNumber: "B-" + string(rune('1'+i)),
			Quantity:    q,
			UnitCost:    float64(2 + i),
			ReceivedAt:  base.Add(time.Duration(i) * 24 * time.Hour),
		}))
	}
	return id
}

func (f *pgFixture) remaining(t *testing.T, id string) float64 {
	t.Helper()
	batches, err := f.batches.ListByItem(context.Background(), domain.KindProduct, id)
	require.NoError(t, err)
	total := 0.0
	for _, b := range batches {
		total += b.Quantity
	}
	return total
}

func TestPostgresProcedure_PartialSuccessAndReplay(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	id := f.stock(t, 4, 5, 5)

	req := Request{
		RequestID: uuid.NewString(),
		Items:     []domain.AllocationItem{{Kind: domain.KindProduct, ID: id, Quantity: 12}},
	}
	results, err := f.proc.AllocateBatch(ctx, req)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, 10.0, r.AllocatedQuantity)
	assert.Equal(t, 2.0, r.Deficit)
	assert.True(t, r.UnderAllocated)
	assert.True(t, r.UsedFallback)
	// 5*2 + 5*3 from batches, 2*4 at the last known cost.
	assert.InDelta(t, 33.0, r.AllocatedCost, 1e-9)
	require.Len(t, r.SourceBatches, 2)
	assert.Equal(t, "B-1", r.SourceBatches[0].BatchNumber)
	assert.Equal(t, 0.0, f.remaining(t, id))

	replay, err := f.proc.AllocateBatch(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, results, replay)
}

func TestPostgresProcedure_ReplayDoesNotDrawAgain(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	id := f.stock(t, 1, 6)

	req := Request{
		RequestID: uuid.NewString(),
		Items:     []domain.AllocationItem{{Kind: domain.KindProduct, ID: id, Quantity: 4}},
	}
	for range 2 {
		_, err := f.proc.AllocateBatch(ctx, req)
		require.NoError(t, err)
	}
	assert.Equal(t, 2.0, f.remaining(t, id))
}

func TestPostgresProcedure_UnknownItemRejectsWholeBatch(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	id := f.stock(t, 1, 5)

	_, err := f.proc.AllocateBatch(ctx, Request{
		RequestID: uuid.NewString(),
		Items: []domain.AllocationItem{
			{Kind: domain.KindProduct, ID: id, Quantity: 3},
			{Kind: domain.KindProduct, ID: "missing-" + uuid.NewString(), Quantity: 1},
		},
	})
	require.Error(t, err)
	assert.Equal(t, retry.KindRemoteRejection, retry.Classify(err))
	assert.Equal(t, 5.0, f.remaining(t, id), "nothing is drawn when the batch is rejected")
	assert.True(t, f.proc.Health().Available)
}

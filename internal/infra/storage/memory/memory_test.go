package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/allocator/internal/core/domain"
	"github.com/vietddude/allocator/internal/infra/storage"
)

func seed(t *testing.T) *MemoryStorage {
	t.Helper()
	ctx := context.Background()
	store := NewMemoryStorage()
	catalog := NewCatalogRepo(store)
	batches := NewBatchRepo(store)

	require.NoError(t, catalog.Upsert(ctx, &domain.CatalogItem{
		Kind: domain.KindProduct, ID: "flour", Name: "Flour", LastKnownCost: 4,
	}))
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, batches.Receive(ctx, &domain.InventoryBatch{
		ID: "b1", ItemKind: domain.KindProduct, ItemID: "flour", BatchNumber: "B-001",
		Quantity: 100, UnitCost: 2, ReceivedAt: base,
	}))
	require.NoError(t, batches.Receive(ctx, &domain.InventoryBatch{
		ID: "b2", ItemKind: domain.KindProduct, ItemID: "flour", BatchNumber: "B-002",
		Quantity: 100, UnitCost: 3, ReceivedAt: base.Add(24 * time.Hour),
	}))
	return store
}

func TestAllocateFIFO_DrawsDown(t *testing.T) {
	store := seed(t)
	items := []domain.AllocationItem{
		{Kind: domain.KindProduct, ID: "flour", Quantity: 60},
		{Kind: domain.KindProduct, ID: "flour", Quantity: 60},
	}

	results, err := store.AllocateFIFO("req-1", items)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "b1", results[0].SourceBatches[0].BatchID)
	require.Len(t, results[1].SourceBatches, 2)
	assert.Equal(t, 40.0, results[1].SourceBatches[0].QuantityTaken)
	assert.Equal(t, 20.0, results[1].SourceBatches[1].QuantityTaken)

	left, err := NewBatchRepo(store).ListByItem(context.Background(), domain.KindProduct, "flour")
	require.NoError(t, err)
	assert.Equal(t, 0.0, left[0].Quantity)
	assert.Equal(t, 80.0, left[1].Quantity)
}

func TestAllocateFIFO_ReplayIsIdempotent(t *testing.T) {
	store := seed(t)
	items := []domain.AllocationItem{{Kind: domain.KindProduct, ID: "flour", Quantity: 150}}

	first, err := store.AllocateFIFO("req-1", items)
	require.NoError(t, err)
	second, err := store.AllocateFIFO("req-1", items)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	summary, err := NewBatchRepo(store).Summary(context.Background())
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, 50.0, summary[0].Quantity)
}

func TestAllocateFIFO_ReplayReturnsCopy(t *testing.T) {
	store := seed(t)
	items := []domain.AllocationItem{{Kind: domain.KindProduct, ID: "flour", Quantity: 10}}

	first, err := store.AllocateFIFO("req-1", items)
	require.NoError(t, err)
	first[0].AllocatedCost = -1
	first[0].SourceBatches[0].BatchID = "tampered"

	second, err := store.AllocateFIFO("req-1", items)
	require.NoError(t, err)
	assert.Equal(t, 20.0, second[0].AllocatedCost)
	assert.Equal(t, "b1", second[0].SourceBatches[0].BatchID)
}

func TestAllocateFIFO_LedgerIsBounded(t *testing.T) {
	store := seed(t)
	store.maxRequests = 2
	items := []domain.AllocationItem{{Kind: domain.KindProduct, ID: "flour", Quantity: 1}}

	for _, id := range []string{"req-1", "req-2", "req-3"} {
		_, err := store.AllocateFIFO(id, items)
		require.NoError(t, err)
	}
	assert.Len(t, store.requests, 2)
	assert.NotContains(t, store.requests, "req-1")
	assert.Contains(t, store.requests, "req-3")

	// A forgotten id draws again.
	_, err := store.AllocateFIFO("req-1", items)
	require.NoError(t, err)
	summary, err := NewBatchRepo(store).Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 196.0, summary[0].Quantity)
}

func TestAllocateFIFO_UnknownItemRejectsBatch(t *testing.T) {
	store := seed(t)
	items := []domain.AllocationItem{
		{Kind: domain.KindProduct, ID: "flour", Quantity: 10},
		{Kind: domain.KindPreparation, ID: "ghost", Quantity: 1},
	}

	_, err := store.AllocateFIFO("req-2", items)
	assert.ErrorIs(t, err, storage.ErrItemNotFound)

	left, _ := NewBatchRepo(store).ListByItem(context.Background(), domain.KindProduct, "flour")
	assert.Equal(t, 100.0, left[0].Quantity)
}

func TestAllocateFIFO_DeficitUsesLastKnownCost(t *testing.T) {
	store := seed(t)
	results, err := store.AllocateFIFO("", []domain.AllocationItem{
		{Kind: domain.KindProduct, ID: "flour", Quantity: 210},
	})
	require.NoError(t, err)
	assert.True(t, results[0].UnderAllocated)
	assert.InDelta(t, 100*2+100*3+10*4, results[0].AllocatedCost, 1e-9)
}

func TestTaskRepo_GetNextRespectsSchedule(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepo(NewMemoryStorage())

	require.NoError(t, repo.Add(ctx, &domain.WriteOffTask{ID: "later", Status: domain.TaskStatusQueued, NextAttemptAt: 200}))
	require.NoError(t, repo.Add(ctx, &domain.WriteOffTask{ID: "soon", Status: domain.TaskStatusQueued, NextAttemptAt: 100}))
	require.NoError(t, repo.Add(ctx, &domain.WriteOffTask{ID: "done", Status: domain.TaskStatusCompleted}))

	next, err := repo.GetNext(ctx, 150)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "soon", next.ID)

	none, err := repo.GetNext(ctx, 50)
	require.NoError(t, err)
	assert.Nil(t, none)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrTaskNotFound)
}

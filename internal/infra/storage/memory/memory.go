package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vietddude/allocator/internal/core/domain"
	"github.com/vietddude/allocator/internal/core/fifo"
	"github.com/vietddude/allocator/internal/infra/storage"
)

// maxRequests bounds the replay ledger. The oldest request ids are forgotten first.
const maxRequests = 10000

type MemoryStorage struct {
	catalog  map[string]*domain.CatalogItem
	batches  map[string][]*domain.InventoryBatch
	tasks    map[string]*domain.WriteOffTask
	requests map[string][]domain.AllocationResult
	// requestOrder is the ledger in insertion order.
	requestOrder []string
	maxRequests  int
	mu           sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		catalog:     make(map[string]*domain.CatalogItem),
		batches:     make(map[string][]*domain.InventoryBatch),
		tasks:       make(map[string]*domain.WriteOffTask),
		requests:    make(map[string][]domain.AllocationResult),
		maxRequests: maxRequests,
	}
}

func itemKey(kind domain.ItemKind, id string) string {
	return string(kind) + ":" + id
}

// AllocateFIFO draws every item down oldest-first as one atomic unit.
//
// Replaying a requestID returns the recorded results without drawing again.
// An unknown item rejects the whole batch and nothing is drawn.
func (s *MemoryStorage) AllocateFIFO(
	requestID string,
	items []domain.AllocationItem,
) ([]domain.AllocationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if requestID != "" {
		if prev, ok := s.requests[requestID]; ok {
			return copyResults(prev), nil
		}
	}

	for _, item := range items {
		if _, ok := s.catalog[itemKey(item.Kind, item.ID)]; !ok {
			return nil, fmt.Errorf("%s %s: %w", item.Kind, item.ID, storage.ErrItemNotFound)
		}
	}

	// Draws are applied per item so repeated ids see earlier draws.
	results := make([]domain.AllocationResult, 0, len(items))
	for _, item := range items {
		key := itemKey(item.Kind, item.ID)
		cat := s.catalog[key]
		if item.FallbackCost == 0 {
			item.FallbackCost = cat.LastKnownCost
		}

		current := make([]domain.InventoryBatch, 0, len(s.batches[key]))
		byID := make(map[string]*domain.InventoryBatch, len(s.batches[key]))
		for _, b := range s.batches[key] {
			current = append(current, *b)
			byID[b.ID] = b
		}

		res, draws := fifo.Allocate(current, item)
		for _, d := range draws {
			byID[d.BatchID].Quantity -= d.Quantity
		}
		results = append(results, res)
	}

	if requestID != "" {
		s.remember(requestID, copyResults(results))
	}
	return results, nil
}

// remember records a request in the replay ledger, evicting the oldest
// entries beyond maxRequests.
func (s *MemoryStorage) remember(requestID string, results []domain.AllocationResult) {
	s.requests[requestID] = results
	s.requestOrder = append(s.requestOrder, requestID)
	for len(s.requestOrder) > s.maxRequests {
		delete(s.requests, s.requestOrder[0])
		s.requestOrder[0] = ""
		s.requestOrder = s.requestOrder[1:]
	}
}

func copyResults(results []domain.AllocationResult) []domain.AllocationResult {
	out := make([]domain.AllocationResult, len(results))
	for i, r := range results {
		if r.SourceBatches != nil {
			sb := make([]domain.SourceBatch, len(r.SourceBatches))
			copy(sb, r.SourceBatches)
			r.SourceBatches = sb
		}
		out[i] = r
	}
	return out
}

// -----------------------------------------------------------------------------
// Catalog Repository
// -----------------------------------------------------------------------------

type CatalogRepo struct {
	store *MemoryStorage
}

func NewCatalogRepo(store *MemoryStorage) *CatalogRepo {
	return &CatalogRepo{store: store}
}

func (r *CatalogRepo) Upsert(ctx context.Context, item *domain.CatalogItem) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := *item
	r.store.catalog[itemKey(item.Kind, item.ID)] = &c
	return nil
}

func (r *CatalogRepo) Get(ctx context.Context, kind domain.ItemKind, id string) (*domain.CatalogItem, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	item, ok := r.store.catalog[itemKey(kind, id)]
	if !ok {
		return nil, storage.ErrItemNotFound
	}
	c := *item
	return &c, nil
}

// -----------------------------------------------------------------------------
// Batch Repository
// -----------------------------------------------------------------------------

type BatchRepo struct {
	store *MemoryStorage
}

func NewBatchRepo(store *MemoryStorage) *BatchRepo {
	return &BatchRepo{store: store}
}

func (r *BatchRepo) Receive(ctx context.Context, batch *domain.InventoryBatch) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := itemKey(batch.ItemKind, batch.ItemID)
	if _, ok := r.store.catalog[key]; !ok {
		return fmt.Errorf("%s %s: %w", batch.ItemKind, batch.ItemID, storage.ErrItemNotFound)
	}
	b := *batch
	r.store.batches[key] = append(r.store.batches[key], &b)
	return nil
}

func (r *BatchRepo) ListByItem(
	ctx context.Context,
	kind domain.ItemKind,
	itemID string,
) ([]domain.InventoryBatch, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []domain.InventoryBatch
	for _, b := range r.store.batches[itemKey(kind, itemID)] {
		out = append(out, *b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	return out, nil
}

func (r *BatchRepo) Summary(ctx context.Context) ([]domain.InventorySummary, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []domain.InventorySummary
	for _, batches := range r.store.batches {
		if len(batches) == 0 {
			continue
		}
		s := domain.InventorySummary{
			ItemKind: batches[0].ItemKind,
			ItemID:   batches[0].ItemID,
			Batches:  len(batches),
		}
		for _, b := range batches {
			s.Quantity += b.Quantity
			s.StockValue += b.Quantity * b.UnitCost
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemKind != out[j].ItemKind {
			return out[i].ItemKind < out[j].ItemKind
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out, nil
}

// -----------------------------------------------------------------------------
// Task Repository
// -----------------------------------------------------------------------------

type TaskRepo struct {
	store *MemoryStorage
}

func NewTaskRepo(store *MemoryStorage) *TaskRepo {
	return &TaskRepo{store: store}
}

func (r *TaskRepo) Add(ctx context.Context, task *domain.WriteOffTask) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t := *task
	r.store.tasks[task.ID] = &t
	return nil
}

func (r *TaskRepo) Get(ctx context.Context, id string) (*domain.WriteOffTask, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	t, ok := r.store.tasks[id]
	if !ok {
		return nil, storage.ErrTaskNotFound
	}
	c := *t
	return &c, nil
}

func (r *TaskRepo) Update(ctx context.Context, task *domain.WriteOffTask) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.tasks[task.ID]; !ok {
		return storage.ErrTaskNotFound
	}
	t := *task
	r.store.tasks[task.ID] = &t
	return nil
}

func (r *TaskRepo) GetNext(ctx context.Context, now int64) (*domain.WriteOffTask, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var next *domain.WriteOffTask
	for _, t := range r.store.tasks {
		if t.Status != domain.TaskStatusQueued || t.NextAttemptAt > now {
			continue
		}
		if next == nil || t.NextAttemptAt < next.NextAttemptAt {
			next = t
		}
	}
	if next == nil {
		return nil, nil
	}
	c := *next
	return &c, nil
}

func (r *TaskRepo) Count(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	count := 0
	for _, t := range r.store.tasks {
		if t.Status == domain.TaskStatusQueued {
			count++
		}
	}
	return count, nil
}

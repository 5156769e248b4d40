package provider

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/vietddude/allocator/internal/core/domain"
	"github.com/vietddude/allocator/internal/infra/rpc/retry"
	"github.com/vietddude/allocator/internal/infra/storage"
	"github.com/vietddude/allocator/internal/infra/storage/memory"
)

var errProcedureDisabled = errors.New("allocation procedure is disabled")

// MemoryProcedure runs FIFO allocation in-process against memory storage.
type MemoryProcedure struct {
	*BaseProcedure
	store    *memory.MemoryStorage
	disabled atomic.Bool
}

// NewMemoryProcedure creates an in-process procedure over store.
func NewMemoryProcedure(name string, store *memory.MemoryStorage) *MemoryProcedure {
	return &MemoryProcedure{
		BaseProcedure: NewBaseProcedure(name),
		store:         store,
	}
}

// SetAvailable toggles the procedure. A disabled procedure reports KindUnavailable,
// like a database without the allocation function.
func (p *MemoryProcedure) SetAvailable(available bool) {
	p.disabled.Store(!available)
}

// AllocateBatch allocates the batch atomically under the storage lock.
func (p *MemoryProcedure) AllocateBatch(ctx context.Context, req Request) (results []domain.AllocationResult, err error) {
	start := time.Now()
	defer func() { p.record(start, len(req.Items), err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.disabled.Load() {
		return nil, retry.Unavailable(p.name, errProcedureDisabled)
	}

	results, err = p.store.AllocateFIFO(req.RequestID, req.Items)
	if err != nil {
		if errors.Is(err, storage.ErrItemNotFound) {
			return nil, retry.Rejected(p.name, err)
		}
		return nil, err
	}
	return results, nil
}

// Close is a no-op.
func (p *MemoryProcedure) Close() error {
	return nil
}

var _ Procedure = (*MemoryProcedure)(nil)

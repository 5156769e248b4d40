// Package fifo computes oldest-first cost allocation over inventory batches.
package fifo

import (
	"sort"

	"github.com/vietddude/allocator/internal/core/domain"
)

// epsilon absorbs float noise when comparing quantities.
const epsilon = 1e-9

// Order returns the batches that can satisfy a draw, oldest first.
// Batches with no positive quantity are not sources.
func Order(batches []domain.InventoryBatch) []domain.InventoryBatch {
	out := make([]domain.InventoryBatch, 0, len(batches))
	for _, b := range batches {
		if b.Quantity > epsilon {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.Before(out[j].ReceivedAt)
		}
		return out[i].BatchNumber < out[j].BatchNumber
	})
	return out
}

// Allocate satisfies item from batches oldest-first.
//
// It returns the per-item result and the draws that must be applied to the
// batches. Any quantity the batches cannot cover is costed at the item's
// fallback cost and the result is flagged as under-allocated.
func Allocate(batches []domain.InventoryBatch, item domain.AllocationItem) (domain.AllocationResult, []domain.Draw) {
	res := domain.AllocationResult{
		ID:                item.ID,
		Kind:              item.Kind,
		RequestedQuantity: item.Quantity,
		SourceBatches:     []domain.SourceBatch{},
	}

	var draws []domain.Draw
	remaining := item.Quantity
	for _, b := range Order(batches) {
		if remaining <= epsilon {
			break
		}
		take := min(remaining, b.Quantity)
		res.SourceBatches = append(res.SourceBatches, domain.SourceBatch{
			BatchID:       b.ID,
			BatchNumber:   b.BatchNumber,
			QuantityTaken: take,
			UnitCost:      b.UnitCost,
		})
		draws = append(draws, domain.Draw{BatchID: b.ID, Quantity: take})
		res.AllocatedCost += take * b.UnitCost
		res.AllocatedQuantity += take
		remaining -= take
	}

	if remaining > epsilon {
		res.Deficit = remaining
		res.UnderAllocated = true
		res.UsedFallback = true
		res.AllocatedCost += remaining * item.FallbackCost
	}

	if item.Quantity > 0 {
		res.AverageUnitCost = res.AllocatedCost / item.Quantity
	}
	return res, draws
}

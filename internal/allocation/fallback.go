package allocation

import (
	"context"
	"errors"

	"github.com/vietddude/allocator/internal/core/domain"
	"github.com/vietddude/allocator/internal/metrics"
)

// ApplyFallback costs every item at its fallback cost without touching inventory.
// Nothing is drawn, so each result is under-allocated by its full quantity.
func ApplyFallback(items []domain.AllocationItem) []domain.AllocationResult {
	results := make([]domain.AllocationResult, 0, len(items))
	for _, item := range items {
		results = append(results, domain.AllocationResult{
			ID:                item.ID,
			Kind:              item.Kind,
			RequestedQuantity: item.Quantity,
			Deficit:           item.Quantity,
			AllocatedCost:     item.Quantity * item.FallbackCost,
			AverageUnitCost:   item.FallbackCost,
			SourceBatches:     []domain.SourceBatch{},
			UsedFallback:      true,
			UnderAllocated:    true,
		})
	}
	metrics.FallbackItemsTotal.WithLabelValues("caller").Add(float64(len(items)))
	return results
}

// AllocateOrFallback allocates items and, only when the procedure is
// unavailable, costs them with ApplyFallback instead. The second return value
// reports whether fallback was applied. Other errors are returned unchanged.
func (c *Client) AllocateOrFallback(ctx context.Context, items []domain.AllocationItem) ([]domain.AllocationResult, bool, error) {
	results, err := c.Allocate(ctx, items)
	if err == nil {
		return results, false, nil
	}
	if !errors.Is(err, ErrProcedureUnavailable) {
		return nil, false, err
	}
	c.logger.Warn("Allocation procedure unavailable, using fallback cost",
		"items", len(items),
		"error", err,
	)
	return ApplyFallback(items), true, nil
}

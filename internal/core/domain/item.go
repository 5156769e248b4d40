package domain

import "fmt"

// ItemKind distinguishes what an allocation draws down.
type ItemKind string

const (
	KindPreparation ItemKind = "preparation"
	KindProduct     ItemKind = "product"
)

// Valid reports whether k is a known item kind.
func (k ItemKind) Valid() bool {
	return k == KindPreparation || k == KindProduct
}

// AllocationItem is one inventory draw-down request.
// FallbackCost is the per-unit cost used when FIFO batches cannot cover the quantity.
type AllocationItem struct {
	Kind         ItemKind `json:"type"`
	ID           string   `json:"id"`
	Quantity     float64  `json:"quantity"`
	FallbackCost float64  `json:"fallbackCost"`
}

// Validate checks the item before it is sent anywhere.
func (i AllocationItem) Validate() error {
	if !i.Kind.Valid() {
		return fmt.Errorf("invalid item kind %q", i.Kind)
	}
	if i.ID == "" {
		return fmt.Errorf("item id is required")
	}
	if i.Quantity <= 0 {
		return fmt.Errorf("item %s: quantity must be positive, got %v", i.ID, i.Quantity)
	}
	if i.FallbackCost < 0 {
		return fmt.Errorf("item %s: fallback cost must not be negative, got %v", i.ID, i.FallbackCost)
	}
	return nil
}

// SourceBatch records how much of one inventory batch satisfied an item.
type SourceBatch struct {
	BatchID       string  `json:"batchId"`
	BatchNumber   string  `json:"batchNumber,omitempty"`
	QuantityTaken float64 `json:"allocatedQuantity"`
	UnitCost      float64 `json:"costPerUnit"`
}

// AllocationResult is the per-item outcome of a FIFO allocation.
//
// The quantities taken across SourceBatches sum to RequestedQuantity unless
// UnderAllocated is set, in which case Deficit holds the uncovered remainder.
type AllocationResult struct {
	ID                string        `json:"id"`
	Kind              ItemKind      `json:"type"`
	RequestedQuantity float64       `json:"requestedQuantity"`
	AllocatedQuantity float64       `json:"allocatedQuantity"`
	Deficit           float64       `json:"deficit"`
	AllocatedCost     float64       `json:"totalCost"`
	AverageUnitCost   float64       `json:"averageCostPerUnit"`
	SourceBatches     []SourceBatch `json:"allocations"`
	UsedFallback      bool          `json:"usedFallback"`
	UnderAllocated    bool          `json:"underAllocated"`
}

// TakenQuantity sums the quantity drawn from source batches.
func (r AllocationResult) TakenQuantity() float64 {
	var total float64
	for _, b := range r.SourceBatches {
		total += b.QuantityTaken
	}
	return total
}

// TotalCost sums allocated cost over a set of results.
func TotalCost(results []AllocationResult) float64 {
	var total float64
	for _, r := range results {
		total += r.AllocatedCost
	}
	return total
}

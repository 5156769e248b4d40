package domain

import "time"

// InventoryBatch is a received lot of a product or preparation.
// Quantity is in the item's base unit; UnitCost is per base unit.
type InventoryBatch struct {
	ID          string    `json:"id"           db:"id"`
	ItemKind    ItemKind  `json:"item_kind"    db:"item_kind"`
	ItemID      string    `json:"item_id"      db:"item_id"`
	BatchNumber string    `json:"batch_number" db:"batch_number"`
	Quantity    float64   `json:"quantity"     db:"current_quantity"`
	UnitCost    float64   `json:"unit_cost"    db:"cost_per_unit"`
	ReceivedAt  time.Time `json:"received_at"  db:"received_at"`
}

// Draw is a quantity removed from a batch by an allocation.
type Draw struct {
	BatchID  string
	Quantity float64
}

// InventorySummary aggregates stock for one item.
type InventorySummary struct {
	ItemKind   ItemKind `db:"item_kind"`
	ItemID     string   `db:"item_id"`
	Batches    int      `db:"batches"`
	Quantity   float64  `db:"quantity"`
	StockValue float64  `db:"stock_value"`
}

// CatalogItem is a product or preparation that batches are received for.
type CatalogItem struct {
	Kind          ItemKind `json:"kind"            db:"kind"`
	ID            string   `json:"id"              db:"id"`
	Name          string   `json:"name"            db:"name"`
	LastKnownCost float64  `json:"last_known_cost" db:"last_known_cost"`
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/allocator/internal/core/domain"
	"github.com/vietddude/allocator/internal/infra/storage/postgres"
)

var (
	batchNumber string
	itemName    string
)

var receiveCmd = &cobra.Command{
	Use:   "receive [product|preparation] [item_id] [quantity] [unit_cost]",
	Short: "Record a received inventory batch",
	Args:  cobra.ExactArgs(4),
	Run:   runReceive,
}

func init() {
	receiveCmd.Flags().StringVar(&batchNumber, "batch", "", "batch number (default: generated from the date)")
	receiveCmd.Flags().StringVar(&itemName, "name", "", "item name; creates or updates the catalog entry")
	rootCmd.AddCommand(receiveCmd)
}

func runReceive(cmd *cobra.Command, args []string) {
	kind := domain.ItemKind(args[0])
	if !kind.Valid() {
		fmt.Printf("Invalid item type: %s\n", args[0])
		os.Exit(1)
	}
	quantity, err := strconv.ParseFloat(args[2], 64)
	if err != nil || quantity <= 0 {
		fmt.Printf("Invalid quantity: %s\n", args[2])
		os.Exit(1)
	}
	unitCost, err := strconv.ParseFloat(args[3], 64)
	if err != nil || unitCost < 0 {
		fmt.Printf("Invalid unit cost: %s\n", args[3])
		os.Exit(1)
	}

	cfg := mustLoad()
	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	if itemName != "" {
		err := postgres.NewCatalogRepo(db).Upsert(ctx, &domain.CatalogItem{
			Kind: kind, ID: args[1], Name: itemName, LastKnownCost: unitCost,
		})
		if err != nil {
			slog.Error("Failed to save catalog item", "error", err)
			os.Exit(1)
		}
	}

	now := time.Now().UTC()
	if batchNumber == "" {
		batchNumber = fmt.Sprintf("B-%s", now.Format("20060102-150405"))
	}
	batch := &domain.InventoryBatch{
		ItemKind:    kind,
		ItemID:      args[1],
		BatchNumber: batchNumber,
		Quantity:    quantity,
		UnitCost:    unitCost,
		ReceivedAt:  now,
	}
	if err := postgres.NewBatchRepo(db).Receive(ctx, batch); err != nil {
		slog.Error("Failed to receive batch", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Received batch %s (%s): %g %s %s @ %g\n",
		batch.BatchNumber, batch.ID, quantity, kind, args[1], unitCost)
}

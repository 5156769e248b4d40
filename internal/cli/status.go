package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	redisclient "github.com/vietddude/allocator/internal/infra/redis"
	"github.com/vietddude/allocator/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration version, remaining inventory and queued write-offs",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := mustLoad()
	ctx := context.Background()

	if cfg.Database.URL == "" {
		slog.Error("database.url is required for status")
		os.Exit(1)
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	version, err := db.MigrationVersion(ctx)
	if err != nil {
		slog.Warn("Failed to read migration version", "error", err)
	}
	fmt.Printf("Transport:  %s\n", cfg.Procedure.Transport)
	fmt.Printf("Migrations: %d\n", version)

	if cfg.Redis.URL != "" {
		if client, err := redisclient.NewClient(ctx, cfg.Redis); err != nil {
			slog.Warn("Failed to connect to Redis", "error", err)
		} else {
			if n, err := client.Tasks().Count(ctx); err == nil {
				fmt.Printf("Queued:     %d\n", n)
			}
			_ = client.Close()
		}
	}
	fmt.Println()

	summary, err := postgres.NewBatchRepo(db).Summary(ctx)
	if err != nil {
		slog.Error("Failed to query inventory", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TYPE\tID\tBATCHES\tQUANTITY\tVALUE")
	for _, s := range summary {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%g\t%.2f\n", s.ItemKind, s.ItemID, s.Batches, s.Quantity, s.StockValue)
	}
	_ = w.Flush()
}

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/allocator/internal/allocation"
	"github.com/vietddude/allocator/internal/core/domain"
	"github.com/vietddude/allocator/internal/infra/rpc/provider"
)

var (
	itemsFile   string
	useFallback bool
	jsonOutput  bool
)

var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Allocate a batch of items from a JSON file and print the costs",
	Run:   runAllocate,
}

func init() {
	allocateCmd.Flags().StringVarP(&itemsFile, "file", "f", "-", "items JSON file (array or {\"items\": [...]}), - for stdin")
	allocateCmd.Flags().BoolVar(&useFallback, "fallback", false, "use fallback costs when the procedure is unavailable")
	allocateCmd.Flags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
	rootCmd.AddCommand(allocateCmd)
}

func runAllocate(cmd *cobra.Command, args []string) {
	cfg := mustLoad()
	if err := checkRemoteTransport(cfg.Procedure); err != nil {
		slog.Error("Cannot allocate", "error", err)
		os.Exit(1)
	}

	items, err := readItems(itemsFile)
	if err != nil {
		slog.Error("Failed to read items", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	proc, err := provider.New(ctx, cfg.Procedure, nil)
	if err != nil {
		slog.Error("Failed to create procedure", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = proc.Close()
	}()

	client := allocation.NewClient(proc,
		allocation.WithRetryConfig(cfg.Retry),
		allocation.WithLogger(slog.Default()),
	)

	var (
		results  []domain.AllocationResult
		fallback bool
	)
	if useFallback {
		results, fallback, err = client.AllocateOrFallback(ctx, items)
	} else {
		results, err = client.Allocate(ctx, items)
	}
	if err != nil {
		slog.Error("Allocation failed", "error", err)
		os.Exit(1)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{
			"results":      results,
			"totalCost":    domain.TotalCost(results),
			"usedFallback": fallback,
		})
		return
	}
	printResults(os.Stdout, results)
}

var errNoInventory = errors.New("the memory transport has no inventory outside a running server; " +
	"set database.url or procedure.transport/procedure.url")

// checkRemoteTransport refuses the in-process procedure, which would start empty.
func checkRemoteTransport(cfg provider.Config) error {
	if cfg.Transport == "" || cfg.Transport == provider.TransportMemory {
		return errNoInventory
	}
	return nil
}

// readItems accepts a bare array or an object with an "items" field.
func readItems(path string) ([]domain.AllocationItem, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = f.Close()
		}()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var items []domain.AllocationItem
	if err := json.Unmarshal(data, &items); err == nil {
		return items, nil
	}
	var wrapped struct {
		Items []domain.AllocationItem `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse items: %w", err)
	}
	if wrapped.Items == nil {
		return nil, errors.New("no items found")
	}
	return wrapped.Items, nil
}

func printResults(out io.Writer, results []domain.AllocationResult) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "TYPE\tID\tREQUESTED\tALLOCATED\tDEFICIT\tCOST\tAVG\tBATCHES\tFALLBACK")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%g\t%g\t%g\t%.4f\t%.4f\t%d\t%t\n",
			r.Kind, r.ID, r.RequestedQuantity, r.AllocatedQuantity, r.Deficit,
			r.AllocatedCost, r.AverageUnitCost, len(r.SourceBatches), r.UsedFallback)
	}
	_, _ = fmt.Fprintf(w, "\t\t\t\t\t%.4f\t\t\t\n", domain.TotalCost(results))
	_ = w.Flush()
}

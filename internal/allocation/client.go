// Package allocation is the batch FIFO cost allocation client.
//
// A call to Client.Allocate submits the whole batch to the remote procedure in
// one round trip per attempt. The client never substitutes fallback costs on
// its own: when the procedure is unavailable it returns ErrProcedureUnavailable
// and the caller decides whether to use ApplyFallback.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vietddude/allocator/internal/core/domain"
	"github.com/vietddude/allocator/internal/infra/rpc/provider"
	"github.com/vietddude/allocator/internal/infra/rpc/retry"
	"github.com/vietddude/allocator/internal/metrics"
)

const opAllocate = "allocate_batch_fifo"

// ErrProcedureUnavailable is returned when the remote allocation procedure
// does not exist or is disabled. Errors wrapping it classify as retry.KindUnavailable.
var ErrProcedureUnavailable = errors.New("allocation procedure unavailable")

// Client allocates batches through a Procedure.
// It holds no per-call state and is safe for concurrent use.
type Client struct {
	procedure provider.Procedure
	retry     retry.Config
	executor  retry.Executor
	logger    *slog.Logger
	tracer    trace.Tracer
	newID     func() string
}

// Option configures a Client.
type Option func(*Client)

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithExecutor injects the sleep and jitter sources.
func WithExecutor(ex retry.Executor) Option {
	return func(c *Client) {
		if ex.Logger == nil {
			ex.Logger = c.executor.Logger
		}
		c.executor = ex
	}
}

// WithLogger sets the logger used for retry logs.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
		c.executor.Logger = l
	}
}

// WithRequestIDs sets the request id generator.
func WithRequestIDs(fn func() string) Option {
	return func(c *Client) { c.newID = fn }
}

// NewClient creates an allocation client.
func NewClient(p provider.Procedure, opts ...Option) *Client {
	c := &Client{
		procedure: p,
		retry:     retry.DefaultConfig(),
		logger:    slog.Default(),
		tracer:    otel.Tracer("github.com/vietddude/allocator/internal/allocation"),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Procedure returns the underlying procedure.
func (c *Client) Procedure() provider.Procedure {
	return c.procedure
}

// Allocate costs items oldest-batch-first.
//
// Results are positionally aligned with items. Invalid items fail with
// retry.KindValidation before any round trip. An empty batch returns an empty
// result without calling the procedure.
func (c *Client) Allocate(ctx context.Context, items []domain.AllocationItem) ([]domain.AllocationResult, error) {
	return c.AllocateRequest(ctx, "", items)
}

// AllocateRequest is Allocate under a caller-owned request id. Calls that
// share a request id are replays: the procedure answers them from its ledger
// without drawing stock again. An empty id gets a fresh one.
func (c *Client) AllocateRequest(
	ctx context.Context,
	requestID string,
	items []domain.AllocationItem,
) ([]domain.AllocationResult, error) {
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return nil, retry.Invalid(opAllocate, fmt.Errorf("item %d: %w", i, err))
		}
	}
	if len(items) == 0 {
		return []domain.AllocationResult{}, nil
	}

	ctx, span := c.tracer.Start(ctx, "allocation.Allocate", trace.WithAttributes(
		attribute.String("allocation.procedure", c.procedure.Name()),
		attribute.Int("allocation.items", len(items)),
	))
	defer span.End()

	if requestID == "" {
		requestID = c.newID()
	}
	req := provider.Request{RequestID: requestID, Items: items}
	span.SetAttributes(attribute.String("allocation.request_id", req.RequestID))

	cfg := c.retry
	onAttempt := cfg.OnAttempt
	cfg.OnAttempt = func(o retry.AttemptOutcome) {
		if !o.Succeeded && o.Delay > 0 {
			metrics.RetryAttemptsTotal.WithLabelValues(o.Label, o.Kind.String()).Inc()
			span.AddEvent("retry", trace.WithAttributes(
				attribute.Int("attempt", o.Attempt+1),
				attribute.String("kind", o.Kind.String()),
			))
		}
		if onAttempt != nil {
			onAttempt(o)
		}
	}

	results, err := retry.Run(ctx, c.executor, opAllocate, cfg, func(ctx context.Context) ([]domain.AllocationResult, error) {
		res, err := c.procedure.AllocateBatch(ctx, req)
		if err != nil {
			return nil, err
		}
		if err := checkAligned(items, res); err != nil {
			return nil, retry.Rejected(c.procedure.Name(), err)
		}
		return res, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if retry.Classify(err) == retry.KindUnavailable {
			return nil, fmt.Errorf("%w: %w", ErrProcedureUnavailable, err)
		}
		return nil, err
	}

	if n := countFallback(results); n > 0 {
		metrics.FallbackItemsTotal.WithLabelValues("procedure").Add(float64(n))
		c.logger.Debug("Allocation used fallback cost",
			"request_id", req.RequestID,
			"items", n,
		)
	}
	span.SetAttributes(attribute.Float64("allocation.total_cost", domain.TotalCost(results)))
	return results, nil
}

// checkAligned verifies that result i answers item i.
func checkAligned(items []domain.AllocationItem, results []domain.AllocationResult) error {
	if len(results) != len(items) {
		return fmt.Errorf("malformed response: %d results for %d items", len(results), len(items))
	}
	for i := range items {
		if results[i].ID != items[i].ID {
			return fmt.Errorf("malformed response: result %d is for %q, want %q", i, results[i].ID, items[i].ID)
		}
		if results[i].Kind != "" && results[i].Kind != items[i].Kind {
			return fmt.Errorf("malformed response: result %d is a %s, want %s", i, results[i].Kind, items[i].Kind)
		}
	}
	return nil
}

func countFallback(results []domain.AllocationResult) int {
	n := 0
	for _, r := range results {
		if r.UsedFallback {
			n++
		}
	}
	return n
}

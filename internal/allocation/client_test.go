package allocation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/allocator/internal/core/domain"
	"github.com/vietddude/allocator/internal/infra/rpc/provider"
	"github.com/vietddude/allocator/internal/infra/rpc/retry"
)

// mockProcedure counts calls and answers from a script of responses.
type mockProcedure struct {
	mu       sync.Mutex
	requests []provider.Request
	respond  func(call int, req provider.Request) ([]domain.AllocationResult, error)
}

func (m *mockProcedure) Name() string { return "mock" }

func (m *mockProcedure) AllocateBatch(ctx context.Context, req provider.Request) ([]domain.AllocationResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	call := len(m.requests)
	m.mu.Unlock()
	return m.respond(call, req)
}

func (m *mockProcedure) Health() provider.HealthStatus { return provider.HealthStatus{Available: true} }
func (m *mockProcedure) Close() error                  { return nil }

func (m *mockProcedure) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func echo(req provider.Request) []domain.AllocationResult {
	out := make([]domain.AllocationResult, len(req.Items))
	for i, it := range req.Items {
		out[i] = domain.AllocationResult{
			ID:                it.ID,
			Kind:              it.Kind,
			RequestedQuantity: it.Quantity,
			AllocatedQuantity: it.Quantity,
			AllocatedCost:     it.Quantity * 2,
			AverageUnitCost:   2,
			SourceBatches: []domain.SourceBatch{
				{BatchID: "b-" + it.ID, BatchNumber: "B-1", QuantityTaken: it.Quantity, UnitCost: 2},
			},
		}
	}
	return out
}

func newTestClient(p provider.Procedure, opts ...Option) *Client {
	base := []Option{
		WithRetryConfig(retry.Config{MaxRetries: 3, BaseDelay: time.Millisecond, Timeout: time.Second}),
		WithExecutor(retry.Executor{
			Sleep:  func(ctx context.Context, d time.Duration) error { return ctx.Err() },
			Jitter: func(time.Duration) time.Duration { return 0 },
		}),
	}
	return NewClient(p, append(base, opts...)...)
}

var (
	itemA = domain.AllocationItem{Kind: domain.KindProduct, ID: "tomato", Quantity: 3, FallbackCost: 5}
	itemB = domain.AllocationItem{Kind: domain.KindPreparation, ID: "sauce", Quantity: 250, FallbackCost: 0.02}
)

func TestAllocate_SingleRoundTripForBatch(t *testing.T) {
	mock := &mockProcedure{respond: func(_ int, req provider.Request) ([]domain.AllocationResult, error) {
		return echo(req), nil
	}}
	c := newTestClient(mock)

	results, err := c.Allocate(context.Background(), []domain.AllocationItem{itemA, itemB})
	require.NoError(t, err)

	assert.Equal(t, 1, mock.calls())
	require.Len(t, mock.requests[0].Items, 2)
	assert.Equal(t, []domain.AllocationItem{itemA, itemB}, mock.requests[0].Items)
	require.Len(t, results, 2)
	assert.Equal(t, "tomato", results[0].ID)
	assert.Equal(t, "sauce", results[1].ID)
}

func TestAllocate_EmptyBatchSkipsProcedure(t *testing.T) {
	mock := &mockProcedure{respond: func(int, provider.Request) ([]domain.AllocationResult, error) {
		t.Fatal("procedure must not be called")
		return nil, nil
	}}
	c := newTestClient(mock)

	results, err := c.Allocate(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Equal(t, 0, mock.calls())
}

func TestAllocate_InvalidItemFailsLocally(t *testing.T) {
	mock := &mockProcedure{respond: func(_ int, req provider.Request) ([]domain.AllocationResult, error) {
		return echo(req), nil
	}}
	c := newTestClient(mock)

	bad := domain.AllocationItem{Kind: domain.KindProduct, ID: "x", Quantity: 0}
	_, err := c.Allocate(context.Background(), []domain.AllocationItem{itemA, bad})
	require.Error(t, err)
	assert.Equal(t, retry.KindValidation, retry.Classify(err))
	assert.Equal(t, 0, mock.calls())
}

func TestAllocate_RetriesTransientFailureWithSameRequestID(t *testing.T) {
	mock := &mockProcedure{respond: func(call int, req provider.Request) ([]domain.AllocationResult, error) {
		if call < 3 {
			return nil, retry.Network("mock", errors.New("connection reset by peer"))
		}
		return echo(req), nil
	}}
	var retries []int
	c := newTestClient(mock, WithRetryConfig(retry.Config{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		OnRetry:    func(attempt int, err error) { retries = append(retries, attempt) },
	}))

	results, err := c.Allocate(context.Background(), []domain.AllocationItem{itemA})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, 3, mock.calls())
	assert.Equal(t, []int{1, 2}, retries)
	assert.NotEmpty(t, mock.requests[0].RequestID)
	assert.Equal(t, mock.requests[0].RequestID, mock.requests[1].RequestID)
	assert.Equal(t, mock.requests[0].RequestID, mock.requests[2].RequestID)
}

func TestAllocate_FreshRequestIDPerCall(t *testing.T) {
	mock := &mockProcedure{respond: func(_ int, req provider.Request) ([]domain.AllocationResult, error) {
		return echo(req), nil
	}}
	c := newTestClient(mock)

	for range 2 {
		_, err := c.Allocate(context.Background(), []domain.AllocationItem{itemA})
		require.NoError(t, err)
	}
	require.Equal(t, 2, mock.calls())
	assert.NotEqual(t, mock.requests[0].RequestID, mock.requests[1].RequestID)
}

func TestAllocateRequest_KeepsCallerRequestID(t *testing.T) {
	mock := &mockProcedure{respond: func(call int, req provider.Request) ([]domain.AllocationResult, error) {
		if call == 1 {
			return nil, retry.Network("mock", errors.New("connection reset by peer"))
		}
		return echo(req), nil
	}}
	c := newTestClient(mock)

	for range 2 {
		_, err := c.AllocateRequest(context.Background(), "task-7", []domain.AllocationItem{itemA})
		require.NoError(t, err)
	}
	require.Equal(t, 3, mock.calls())
	for _, req := range mock.requests {
		assert.Equal(t, "task-7", req.RequestID)
	}
}

func TestAllocate_RejectionIsNotRetried(t *testing.T) {
	mock := &mockProcedure{respond: func(int, provider.Request) ([]domain.AllocationResult, error) {
		return nil, retry.Rejected("mock", errors.New("unknown product tomato"))
	}}
	c := newTestClient(mock)

	_, err := c.Allocate(context.Background(), []domain.AllocationItem{itemA})
	require.Error(t, err)
	assert.Equal(t, retry.KindRemoteRejection, retry.Classify(err))
	assert.Equal(t, 1, mock.calls())
}

func TestAllocate_UnavailableSurfacesSentinel(t *testing.T) {
	mock := &mockProcedure{respond: func(int, provider.Request) ([]domain.AllocationResult, error) {
		return nil, retry.Unavailable("mock", errors.New("function allocate_batch_fifo does not exist"))
	}}
	c := newTestClient(mock)

	results, err := c.Allocate(context.Background(), []domain.AllocationItem{itemA})
	require.Error(t, err)
	assert.Nil(t, results)
	assert.ErrorIs(t, err, ErrProcedureUnavailable)
	assert.Equal(t, retry.KindUnavailable, retry.Classify(err))
	assert.Equal(t, 1, mock.calls())
}

func TestAllocate_MisalignedResponseRejected(t *testing.T) {
	tests := []struct {
		name    string
		results func(req provider.Request) []domain.AllocationResult
	}{
		{"short", func(req provider.Request) []domain.AllocationResult { return echo(req)[:1] }},
		{"reordered", func(req provider.Request) []domain.AllocationResult {
			r := echo(req)
			r[0], r[1] = r[1], r[0]
			return r
		}},
		{"wrong kind", func(req provider.Request) []domain.AllocationResult {
			r := echo(req)
			r[0].Kind = domain.KindPreparation
			return r
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockProcedure{respond: func(_ int, req provider.Request) ([]domain.AllocationResult, error) {
				return tt.results(req), nil
			}}
			c := newTestClient(mock)

			_, err := c.Allocate(context.Background(), []domain.AllocationItem{itemA, itemB})
			require.Error(t, err)
			assert.Equal(t, retry.KindRemoteRejection, retry.Classify(err))
			assert.Contains(t, err.Error(), "malformed response")
			assert.Equal(t, 1, mock.calls())
		})
	}
}

func TestAllocate_AttemptTimeout(t *testing.T) {
	mock := &mockProcedure{respond: func(call int, req provider.Request) ([]domain.AllocationResult, error) {
		if call == 1 {
			time.Sleep(200 * time.Millisecond)
		}
		return echo(req), nil
	}}
	c := newTestClient(mock, WithRetryConfig(retry.Config{
		MaxRetries: 1,
		BaseDelay:  time.Millisecond,
		Timeout:    20 * time.Millisecond,
	}))

	results, err := c.Allocate(context.Background(), []domain.AllocationItem{itemA})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 2, mock.calls())
}

func TestAllocateOrFallback(t *testing.T) {
	unavailable := &mockProcedure{respond: func(int, provider.Request) ([]domain.AllocationResult, error) {
		return nil, retry.Unavailable("mock", errors.New("disabled"))
	}}
	results, used, err := newTestClient(unavailable).AllocateOrFallback(context.Background(), []domain.AllocationItem{itemA, itemB})
	require.NoError(t, err)
	assert.True(t, used)
	require.Len(t, results, 2)
	assert.Equal(t, 15.0, results[0].AllocatedCost)
	assert.InDelta(t, 5.0, results[1].AllocatedCost, 1e-9)

	rejected := &mockProcedure{respond: func(int, provider.Request) ([]domain.AllocationResult, error) {
		return nil, retry.Rejected("mock", errors.New("unknown product"))
	}}
	_, used, err = newTestClient(rejected).AllocateOrFallback(context.Background(), []domain.AllocationItem{itemA})
	require.Error(t, err)
	assert.False(t, used)
}

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDeadline_NeverSettles(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	start := time.Now()
	_, err := WithDeadline(context.Background(), 50*time.Millisecond, func(ctx context.Context) (int, error) {
		<-block
		return 1, nil
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, KindTimeout, Classify(err))
	assert.Contains(t, err.Error(), "50ms")
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestWithDeadline_ResultWins(t *testing.T) {
	v, err := WithDeadline(context.Background(), time.Second, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	want := errors.New("not found")
	_, err = WithDeadline(context.Background(), time.Second, func(ctx context.Context) (string, error) {
		return "", want
	})
	assert.Same(t, want, err)
}

func TestWithDeadline_CancelsLoser(t *testing.T) {
	cancelled := make(chan struct{})
	_, err := WithDeadline(context.Background(), 20*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(cancelled)
		return 0, ctx.Err()
	})
	require.Error(t, err)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("operation context was not cancelled after timeout")
	}
}

func TestWithDeadline_ParentDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := WithDeadline(ctx, time.Second, func(ctx context.Context) (int, error) {
		called = true
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

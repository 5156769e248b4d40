package retry

import (
	"context"
	"time"
)

type settled[T any] struct {
	val T
	err error
}

// WithDeadline runs op and returns whichever settles first: op or a timer of
// timeout. On expiry it returns a KindTimeout *Error carrying the duration.
//
// op receives a context that is cancelled once WithDeadline returns. An op that
// ignores its context keeps running in the background; its result is dropped.
func WithDeadline[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so an abandoned op never blocks on send.
	done := make(chan settled[T], 1)
	go func() {
		v, err := op(opCtx)
		done <- settled[T]{val: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.val, r.err
	case <-timer.C:
		return zero, Timeout("", timeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type timeoutNetError struct{}

func (timeoutNetError) Error() string   { return "i/o deadline reached" }
func (timeoutNetError) Timeout() bool   { return true }
func (timeoutNetError) Temporary() bool { return true }

var _ net.Error = timeoutNetError{}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		expect Kind
	}{
		{errors.New("Request timeout after 15000ms"), KindTimeout},
		{errors.New("network is unreachable"), KindNetwork},
		{errors.New("read tcp: ECONNRESET"), KindNetwork},
		{errors.New("connection reset by peer"), KindNetwork},
		{errors.New("dial tcp: ETIMEDOUT"), KindNetwork},
		{errors.New("connection timed out"), KindTimeout},
		{errors.New("TypeError: Failed to fetch"), KindNetwork},
		{fmt.Errorf("call: %w", syscall.ECONNRESET), KindNetwork},
		{fmt.Errorf("call: %w", syscall.ECONNREFUSED), KindNetwork},
		{timeoutNetError{}, KindTimeout},
		{context.DeadlineExceeded, KindTimeout},
		{context.Canceled, KindCanceled},
		{Timeout("op", time.Second), KindTimeout},
		{fmt.Errorf("wrapped: %w", Rejected("allocate", errors.New("timeout in payload"))), KindRemoteRejection},
		{Unavailable("allocate", errors.New("function does not exist")), KindUnavailable},
		{errors.New("not found"), KindUnknown},
		{errors.New("permission denied"), KindUnknown},
		{errors.New("invalid quantity"), KindUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expect, Classify(tt.err), "Classify(%q)", tt.err)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("network down")))
	assert.False(t, IsRetryable(errors.New("not found")))
	assert.False(t, IsRetryable(nil))
}

func TestError_IsByKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", Timeout("allocate", 50*time.Millisecond))
	assert.ErrorIs(t, err, &Error{Kind: KindTimeout})
	assert.NotErrorIs(t, err, &Error{Kind: KindNetwork})
	assert.Equal(t, KindTimeout, KindOf(err))
}

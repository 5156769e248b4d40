package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// retryableMarkers are substrings that indicate a transient transport problem.
var retryableMarkers = []string{
	"timeout",
	"network",
	"econnreset",
	"connection reset",
	"etimedout",
	"connection timed out",
	"failed to fetch",
	"fetch failed",
}

// Classify determines the Kind of err.
//
// Typed errors keep their kind. Untyped errors are classified from the
// network stack first and then by message, so anything not recognised as
// a transport problem is treated as permanent.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return KindNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			if strings.Contains(marker, "timeout") || strings.Contains(marker, "timed out") {
				return KindTimeout
			}
			return KindNetwork
		}
	}

	return KindUnknown
}

// IsRetryable reports whether another attempt may succeed.
func IsRetryable(err error) bool {
	return Classify(err).Retryable()
}

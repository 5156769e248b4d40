package retry

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure for retry decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindNetwork
	KindRemoteRejection
	KindUnavailable
	KindValidation
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindRemoteRejection:
		return "remote_rejection"
	case KindUnavailable:
		return "unavailable"
	case KindValidation:
		return "validation"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Retryable reports whether failures of this kind may succeed on another attempt.
func (k Kind) Retryable() bool {
	return k == KindTimeout || k == KindNetwork
}

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind    Kind
	Op      string
	Err     error
	Timeout time.Duration
}

func (e *Error) Error() string {
	if e.Kind == KindTimeout && e.Timeout > 0 {
		if e.Op != "" {
			return fmt.Sprintf("%s: request timeout after %s", e.Op, e.Timeout)
		}
		return fmt.Sprintf("request timeout after %s", e.Timeout)
	}
	msg := e.Kind.String()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind so callers can use errors.Is(err, &Error{Kind: KindTimeout}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Timeout builds a KindTimeout error for an operation that exceeded d.
func Timeout(op string, d time.Duration) *Error {
	return &Error{Kind: KindTimeout, Op: op, Timeout: d}
}

// Network wraps a transport failure.
func Network(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

// Rejected wraps an application-level rejection from a remote collaborator.
func Rejected(op string, err error) *Error {
	return &Error{Kind: KindRemoteRejection, Op: op, Err: err}
}

// Unavailable wraps an error meaning the remote operation does not exist or is disabled.
func Unavailable(op string, err error) *Error {
	return &Error{Kind: KindUnavailable, Op: op, Err: err}
}

// Invalid wraps a local validation failure.
func Invalid(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// KindOf returns the kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

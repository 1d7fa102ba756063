// Package channelerr defines the typed error taxonomy adapters and the sync
// engine translate HTTP/Redis/Postgres failures into (spec.md §7). It is the
// Go rendering of the original Python implementation's exception hierarchy
// in _examples/original_source/channel-manager/platform-adapters/base_adapter.py
// (ChannelAdapterError / AuthenticationError / RateLimitError /
// ResourceNotFoundError / ValidationError).
package channelerr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure for retry/circuit-breaker/SyncLog purposes.
type Kind string

const (
	KindTransientNetwork Kind = "transient_network"
	KindRateLimited      Kind = "rate_limited"
	KindAuthentication   Kind = "authentication"
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindCircuitOpen      Kind = "circuit_open"
	KindLockContention   Kind = "lock_contention"
	KindDuplicate        Kind = "duplicate"
)

// AdapterError is the base error type returned by every platform adapter.
type AdapterError struct {
	Kind       Kind
	Message    string
	StatusCode int
	Body       string
	RetryAfter time.Duration // only meaningful for KindRateLimited
}

func (e *AdapterError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New builds a plain AdapterError of the given kind.
func New(kind Kind, message string) *AdapterError {
	return &AdapterError{Kind: kind, Message: message}
}

// FromHTTPStatus translates an HTTP response status into a typed
// AdapterError per spec.md §4.3's "translate HTTP status to typed errors"
// obligation, shared by all five adapters.
func FromHTTPStatus(status int, body string, retryAfter time.Duration) *AdapterError {
	switch {
	case status == 401 || status == 403:
		return &AdapterError{Kind: KindAuthentication, Message: "authentication failed", StatusCode: status, Body: body}
	case status == 404:
		return &AdapterError{Kind: KindNotFound, Message: "resource not found", StatusCode: status, Body: body}
	case status == 429:
		return &AdapterError{Kind: KindRateLimited, Message: "rate limit exceeded", StatusCode: status, Body: body, RetryAfter: retryAfter}
	case status == 400:
		return &AdapterError{Kind: KindValidation, Message: "validation error", StatusCode: status, Body: body}
	case status >= 500:
		return &AdapterError{Kind: KindTransientNetwork, Message: "server error", StatusCode: status, Body: body}
	default:
		return &AdapterError{Kind: KindTransientNetwork, Message: fmt.Sprintf("unexpected status %d", status), StatusCode: status, Body: body}
	}
}

// RateLimitExceeded is raised by the rate limiter's acquire_or_raise variant
// (spec.md §4.1), carrying the computed retry-after.
type RateLimitExceeded struct {
	RetryAfter time.Duration
}

func (e *RateLimitExceeded) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// CircuitOpen is returned by the circuit breaker when admission is refused
// (spec.md §4.2).
type CircuitOpen struct {
	Channel    string
	RetryAfter time.Duration
}

func (e *CircuitOpen) Error() string {
	return fmt.Sprintf("circuit open for %s, retry after %s", e.Channel, e.RetryAfter)
}

// LockContention is returned by the reservation flow when a distributed
// lock cannot be acquired within its deadline (spec.md §4.6 step 2).
type LockContention struct {
	Key string
}

func (e *LockContention) Error() string {
	return fmt.Sprintf("lock contention on %s", e.Key)
}

// KindOf reports the classification of err for retry/circuit-breaker logic,
// defaulting to KindTransientNetwork for unrecognized errors (conservative:
// count unknown failures toward circuit trips and retries).
func KindOf(err error) Kind {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	var rl *RateLimitExceeded
	if errors.As(err, &rl) {
		return KindRateLimited
	}
	var co *CircuitOpen
	if errors.As(err, &co) {
		return KindCircuitOpen
	}
	var lc *LockContention
	if errors.As(err, &lc) {
		return KindLockContention
	}
	return KindTransientNetwork
}

// Retryable reports whether the outer task retry loop (spec.md §4.4 backoff
// schedule) should re-attempt after this error.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindCircuitOpen, KindLockContention, KindDuplicate:
		return false
	default:
		return true
	}
}

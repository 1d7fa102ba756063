package sync

import (
	"context"
	"math/rand"
	"time"

	"github.com/kolibri-visions/channel-sync/internal/channelerr"
)

// baseDelays is the exponential backoff schedule of spec.md §4.4: base
// delays 2,4,8,16,32 seconds at retries 0..4, each plus U(0, base/2)
// jitter.
var baseDelays = []time.Duration{
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	32 * time.Second,
}

// BackoffDelay returns the delay before retry attempt n (0-indexed).
func BackoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(baseDelays) {
		attempt = len(baseDelays) - 1
	}
	base := baseDelays[attempt]
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base + jitter
}

const (
	// MaxRetriesWrite is the default retry ceiling for outbound writes.
	MaxRetriesWrite = 5
	// MaxRetriesImport is the default retry ceiling for imports/polls.
	MaxRetriesImport = 3
)

// withRetry runs fn up to maxAttempts times, sleeping BackoffDelay(attempt)
// between attempts, and stops early once channelerr.Retryable(err) is false
// (spec.md §4.4: "retry with backoff unless retries exhausted", §7's
// per-kind retry policy). It returns the last error once attempts are
// exhausted or ctx is cancelled.
func withRetry(ctx context.Context, maxAttempts int, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !channelerr.Retryable(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(BackoffDelay(attempt)):
		}
	}
	return err
}

// RetryImport runs fn (an import/poll task) with the §4.4 import retry
// ceiling (default 3) and backoff schedule. Exported for the webhook
// ingress and poller, which both hand an import attempt off to this same
// retry policy rather than looping themselves.
func RetryImport(ctx context.Context, fn func() error) error {
	return withRetry(ctx, MaxRetriesImport, fn)
}

// Package circuit implements the per-channel circuit breaker of
// spec.md §4.2. It follows the state machine and naming of the teacher's
// in-memory CircuitBreaker (_examples/.../api_gateway/src/circuit/circuit_breaker.go)
// but keeps state in Redis so every sync-engine worker sees the same
// breaker: the state transition itself (the decision to trip, to move to
// half-open, to close) must be atomic across concurrently-racing workers,
// so it runs as one Lua script rather than a read-modify-write pair of
// Redis calls.
package circuit

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/kolibri-visions/channel-sync/internal/channelerr"
	"github.com/kolibri-visions/channel-sync/internal/config"
	"github.com/kolibri-visions/channel-sync/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// State mirrors the teacher's three-value circuit state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

//go:embed admit.lua
var admitSrc string

//go:embed report.lua
var reportSrc string

var admitScript = redis.NewScript(admitSrc)
var reportScript = redis.NewScript(reportSrc)

// Breaker is a Redis-resident circuit breaker shared by all workers for
// one channel.
type Breaker struct {
	rdb     *redis.Client
	logger  *zap.Logger
	rules   map[string]config.CircuitBreakerRule
	metrics *metrics.Registry
}

// New builds a Breaker from the configured per-channel rules.
func New(rdb *redis.Client, logger *zap.Logger, rules map[string]config.CircuitBreakerRule) *Breaker {
	return &Breaker{rdb: rdb, logger: logger, rules: rules}
}

// WithMetrics attaches the process-wide Prometheus registry (spec.md §6).
func (b *Breaker) WithMetrics(m *metrics.Registry) *Breaker {
	b.metrics = m
	return b
}

// Status is the externally observable state of one channel's breaker.
type Status struct {
	State        State
	FailureCount int
	SuccessCount int
}

func key(channel string) string { return fmt.Sprintf("circuit:%s", channel) }

// CanExecute reports whether a call to channel is currently admitted. In
// HALF_OPEN it admits at most HalfOpenMaxCalls probe calls before
// refusing until the next evaluation.
func (b *Breaker) CanExecute(ctx context.Context, channel string) error {
	rule, ok := b.rules[channel]
	if !ok {
		return fmt.Errorf("no circuit breaker rule configured for channel %q", channel)
	}

	res, err := admitScript.Run(ctx, b.rdb, []string{key(channel)},
		time.Now().UnixMilli(), rule.Timeout.Milliseconds(), rule.HalfOpenMaxCalls,
	).Result()
	if err != nil {
		return fmt.Errorf("circuit admit script for %s: %w", channel, err)
	}

	fields := res.([]interface{})
	admitted := fields[0].(int64) == 1
	state := State(fields[1].(int64))

	if b.metrics != nil {
		b.metrics.CircuitState.WithLabelValues(channel).Set(float64(state))
	}
	if !admitted {
		if b.metrics != nil {
			b.metrics.CircuitRejections.WithLabelValues(channel).Inc()
		}
		b.logger.Debug("circuit open, call refused", zap.String("channel", channel))
		return &channelerr.CircuitOpen{Channel: channel, RetryAfter: rule.Timeout}
	}
	if state == StateHalfOpen {
		b.logger.Info("circuit half-open, admitting probe call", zap.String("channel", channel))
	}
	return nil
}

// ReportSuccess records a successful call, potentially closing the
// circuit if enough consecutive half-open successes have accumulated.
func (b *Breaker) ReportSuccess(ctx context.Context, channel string) error {
	rule, ok := b.rules[channel]
	if !ok {
		return fmt.Errorf("no circuit breaker rule configured for channel %q", channel)
	}
	if err := reportScript.Run(ctx, b.rdb, []string{key(channel)},
		1, time.Now().UnixMilli(), rule.FailureThreshold, rule.SuccessThreshold, rule.Window.Milliseconds(),
	).Err(); err != nil {
		return err
	}
	if b.metrics != nil {
		b.metrics.CircuitSuccesses.WithLabelValues(channel).Inc()
	}
	return nil
}

// ReportFailure records a failed call, potentially tripping the circuit
// open if the failure threshold within the window is reached.
func (b *Breaker) ReportFailure(ctx context.Context, channel string) error {
	rule, ok := b.rules[channel]
	if !ok {
		return fmt.Errorf("no circuit breaker rule configured for channel %q", channel)
	}
	err := reportScript.Run(ctx, b.rdb, []string{key(channel)},
		0, time.Now().UnixMilli(), rule.FailureThreshold, rule.SuccessThreshold, rule.Window.Milliseconds(),
	).Err()
	if err != nil {
		return err
	}
	if b.metrics != nil {
		b.metrics.CircuitFailures.WithLabelValues(channel).Inc()
	}
	b.logger.Warn("channel call failed", zap.String("channel", channel))
	return nil
}

// ForceOpen is the operator override that trips a breaker regardless of
// its observed failure count (spec.md §4.2 operator operations).
func (b *Breaker) ForceOpen(ctx context.Context, channel string) error {
	return b.rdb.HSet(ctx, key(channel), "state", int(StateOpen), "opened_at", time.Now().UnixMilli()).Err()
}

// ForceClose is the operator override that resets a breaker to CLOSED.
func (b *Breaker) ForceClose(ctx context.Context, channel string) error {
	return b.rdb.HSet(ctx, key(channel), "state", int(StateClosed), "failures", 0, "successes", 0).Err()
}

// Reset clears all recorded state for channel, equivalent to ForceClose
// plus dropping the failure/success counters entirely.
func (b *Breaker) Reset(ctx context.Context, channel string) error {
	return b.rdb.Del(ctx, key(channel)).Err()
}

// GetStatus reads the current state without affecting it.
func (b *Breaker) GetStatus(ctx context.Context, channel string) (Status, error) {
	vals, err := b.rdb.HMGet(ctx, key(channel), "state", "failures", "successes").Result()
	if err != nil {
		return Status{}, fmt.Errorf("read circuit status for %s: %w", channel, err)
	}
	st := Status{State: StateClosed}
	if vals[0] != nil {
		fmt.Sscanf(vals[0].(string), "%d", (*int)(&st.State))
	}
	if vals[1] != nil {
		fmt.Sscanf(vals[1].(string), "%d", &st.FailureCount)
	}
	if vals[2] != nil {
		fmt.Sscanf(vals[2].(string), "%d", &st.SuccessCount)
	}
	return st, nil
}

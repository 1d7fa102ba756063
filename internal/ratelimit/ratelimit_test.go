package ratelimit

import (
	"testing"
	"time"

	"github.com/kolibri-visions/channel-sync/internal/config"
	"github.com/stretchr/testify/assert"
)

func newTestLimiter() *Limiter {
	rules := map[string]config.RateLimitRule{
		"airbnb": {Limit: 10, Window: time.Second, Burst: 15},
	}
	return New(nil, nil, rules)
}

func TestFactorOrDefault_StartsAtOne(t *testing.T) {
	l := newTestLimiter()
	assert.Equal(t, 1.0, l.AdaptiveFactor("airbnb"))
}

func TestRecordLocalOutcome_GrowsAfterStreak(t *testing.T) {
	l := newTestLimiter()
	for i := 0; i < adaptiveGrowthStreak-1; i++ {
		l.recordLocalOutcome("airbnb", true)
	}
	assert.Equal(t, 1.0, l.AdaptiveFactor("airbnb"), "factor should not grow before the streak completes")

	l.recordLocalOutcome("airbnb", true)
	assert.InDelta(t, 1.0+adaptiveGrowthIncrement, l.AdaptiveFactor("airbnb"), 1e-9)
}

func TestRecordLocalOutcome_DenialResetsStreakWithoutShrinking(t *testing.T) {
	l := newTestLimiter()
	for i := 0; i < adaptiveGrowthStreak-1; i++ {
		l.recordLocalOutcome("airbnb", true)
	}
	l.recordLocalOutcome("airbnb", false)
	assert.Equal(t, 1.0, l.AdaptiveFactor("airbnb"), "a local denial must not shrink the factor")

	for i := 0; i < adaptiveGrowthStreak; i++ {
		l.recordLocalOutcome("airbnb", true)
	}
	assert.InDelta(t, 1.0+adaptiveGrowthIncrement, l.AdaptiveFactor("airbnb"), 1e-9,
		"the reset streak must run to completion again before growing")
}

func TestRecordLocalOutcome_FactorCappedAtMax(t *testing.T) {
	l := newTestLimiter()
	l.factor["airbnb"] = adaptiveMaxFactor
	for i := 0; i < adaptiveGrowthStreak; i++ {
		l.recordLocalOutcome("airbnb", true)
	}
	assert.Equal(t, adaptiveMaxFactor, l.AdaptiveFactor("airbnb"))
}

func TestReportRemoteRateLimit_ShrinksFactor(t *testing.T) {
	l := newTestLimiter()
	l.ReportRemoteRateLimit("airbnb", 0)
	assert.InDelta(t, 1.0-adaptiveShrinkDecrement, l.AdaptiveFactor("airbnb"), 1e-9)
}

func TestReportRemoteRateLimit_FactorFlooredAtMin(t *testing.T) {
	l := newTestLimiter()
	l.ReportRemoteRateLimit("airbnb", 0)
	l.ReportRemoteRateLimit("airbnb", 0)
	l.ReportRemoteRateLimit("airbnb", 0)
	assert.Equal(t, adaptiveMinFactor, l.AdaptiveFactor("airbnb"))
}

func TestReportRemoteRateLimit_BlocksUntilRetryAfter(t *testing.T) {
	l := newTestLimiter()
	l.ReportRemoteRateLimit("airbnb", 50*time.Millisecond)

	_, blocked := l.checkBlocked("airbnb", time.Now())
	assert.True(t, blocked)

	_, stillBlocked := l.checkBlocked("airbnb", time.Now().Add(100*time.Millisecond))
	assert.False(t, stillBlocked)
}

func TestScaledLimit_AppliesFactor(t *testing.T) {
	l := newTestLimiter()
	rule := l.rules["airbnb"]
	assert.EqualValues(t, rule.Burst, l.scaledLimit("airbnb", rule))

	l.factor["airbnb"] = 0.5
	assert.EqualValues(t, int64(float64(rule.Burst)*0.5), l.scaledLimit("airbnb", rule))
}

func TestScaledLimit_BurstIsCeilingNotAdditive(t *testing.T) {
	// spec.md §4.1: "count + weight ≤ effective_limit (burst if set, else
	// N)" — the burst value IS the ceiling, not N+B. Scenario 4 (§8) issues
	// 15 acquire calls against airbnb (10/s, burst 15) and expects all 15
	// to succeed and the 16th to fail; that only holds if the effective
	// limit is 15, not 10+15=25.
	l := newTestLimiter()
	rule := l.rules["airbnb"]
	assert.EqualValues(t, 15, l.scaledLimit("airbnb", rule))
	assert.NotEqualValues(t, 25, l.scaledLimit("airbnb", rule))
}

func TestScaledLimit_NoBurstFallsBackToLimit(t *testing.T) {
	l := newTestLimiter()
	rule := config.RateLimitRule{Limit: 20, Window: time.Minute, Burst: 0}
	assert.EqualValues(t, 20, l.scaledLimit("booking_com", rule))
}

func TestScaledLimit_NeverBelowOne(t *testing.T) {
	l := newTestLimiter()
	tiny := config.RateLimitRule{Limit: 1, Window: time.Second, Burst: 0}
	l.factor["airbnb"] = adaptiveMinFactor
	assert.EqualValues(t, 1, l.scaledLimit("airbnb", tiny))
}

package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay_Schedule(t *testing.T) {
	cases := []struct {
		attempt  int
		minBase  time.Duration
		maxTotal time.Duration
	}{
		{0, 2 * time.Second, 3 * time.Second},
		{1, 4 * time.Second, 6 * time.Second},
		{2, 8 * time.Second, 12 * time.Second},
		{3, 16 * time.Second, 24 * time.Second},
		{4, 32 * time.Second, 48 * time.Second},
	}
	for _, c := range cases {
		d := BackoffDelay(c.attempt)
		assert.GreaterOrEqual(t, d, c.minBase, "attempt %d", c.attempt)
		assert.LessOrEqual(t, d, c.maxTotal, "attempt %d", c.attempt)
	}
}

func TestBackoffDelay_ClampsOutOfRangeAttempts(t *testing.T) {
	negative := BackoffDelay(-1)
	assert.GreaterOrEqual(t, negative, 2*time.Second)
	assert.LessOrEqual(t, negative, 3*time.Second)

	beyondSchedule := BackoffDelay(99)
	assert.GreaterOrEqual(t, beyondSchedule, 32*time.Second)
	assert.LessOrEqual(t, beyondSchedule, 48*time.Second)
}

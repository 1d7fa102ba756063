package channelerr

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromHTTPStatus(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{401, KindAuthentication},
		{403, KindAuthentication},
		{404, KindNotFound},
		{429, KindRateLimited},
		{400, KindValidation},
		{500, KindTransientNetwork},
		{503, KindTransientNetwork},
		{418, KindTransientNetwork},
	}
	for _, c := range cases {
		err := FromHTTPStatus(c.status, "body", 0)
		assert.Equal(t, c.want, err.Kind, "status %d", c.status)
		assert.Equal(t, c.status, err.StatusCode)
	}
}

func TestFromHTTPStatus_RetryAfterOnlyOnRateLimit(t *testing.T) {
	err := FromHTTPStatus(429, "", 30*time.Second)
	assert.Equal(t, 30*time.Second, err.RetryAfter)
	assert.Zero(t, FromHTTPStatus(503, "", 30*time.Second).RetryAfter)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindAuthentication, KindOf(New(KindAuthentication, "nope")))
	assert.Equal(t, KindRateLimited, KindOf(&RateLimitExceeded{RetryAfter: time.Second}))
	assert.Equal(t, KindCircuitOpen, KindOf(&CircuitOpen{Channel: "airbnb"}))
	assert.Equal(t, KindLockContention, KindOf(&LockContention{Key: "prop-1"}))
	// Unrecognized errors default to transient network, the conservative
	// choice for retry/circuit-breaker accounting.
	assert.Equal(t, KindTransientNetwork, KindOf(errors.New("boom")))
}

func TestRetryable(t *testing.T) {
	nonRetryable := []error{
		New(KindValidation, "bad input"),
		New(KindNotFound, "missing"),
		&CircuitOpen{Channel: "expedia"},
		&LockContention{Key: "x"},
		New(KindDuplicate, "already imported"),
	}
	for _, err := range nonRetryable {
		assert.False(t, Retryable(err), "%v should not be retryable", err)
	}

	retryable := []error{
		New(KindTransientNetwork, "timeout"),
		&RateLimitExceeded{RetryAfter: time.Second},
		New(KindAuthentication, "expired token"),
	}
	for _, err := range retryable {
		assert.True(t, Retryable(err), "%v should be retryable", err)
	}
}

func TestAdapterError_Message(t *testing.T) {
	withStatus := &AdapterError{Kind: KindValidation, Message: "bad", StatusCode: 400}
	assert.Contains(t, withStatus.Error(), "status 400")

	withoutStatus := &AdapterError{Kind: KindTransientNetwork, Message: "timed out"}
	assert.NotContains(t, withoutStatus.Error(), "status")
}

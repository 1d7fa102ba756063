package reservation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockKey_StableAndDistinct(t *testing.T) {
	checkIn := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	checkOut := time.Date(2026, 9, 5, 0, 0, 0, 0, time.UTC)

	a := lockKey("prop-1", checkIn, checkOut)
	b := lockKey("prop-1", checkIn, checkOut)
	assert.Equal(t, a, b, "the same property/date range must hash to the same lock key")

	differentProperty := lockKey("prop-2", checkIn, checkOut)
	assert.NotEqual(t, a, differentProperty)

	differentDates := lockKey("prop-1", checkIn.AddDate(0, 0, 1), checkOut)
	assert.NotEqual(t, a, differentDates)
}

func TestCurrencyOrDefault(t *testing.T) {
	assert.Equal(t, "USD", currencyOrDefault(""))
	assert.Equal(t, "EUR", currencyOrDefault("EUR"))
}

func TestDerefOr(t *testing.T) {
	assert.Equal(t, "fallback", derefOr(nil, "fallback"))
	s := "value"
	assert.Equal(t, "value", derefOr(&s, "fallback"))
}

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBookingStatus_IsActive(t *testing.T) {
	assert.True(t, BookingReserved.IsActive())
	assert.True(t, BookingConfirmed.IsActive())
	assert.False(t, BookingInquiry.IsActive())
	assert.False(t, BookingCancelled.IsActive())
	assert.False(t, BookingCheckedOut.IsActive())
	assert.False(t, BookingNoShow.IsActive())
}

func TestCanonicalBooking_Nights(t *testing.T) {
	b := &CanonicalBooking{
		CheckIn:  time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		CheckOut: time.Date(2026, 9, 5, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, 4, b.Nights())
}

func TestCanonicalBooking_CannotReturnToConfirmed(t *testing.T) {
	for _, terminal := range []BookingStatus{BookingCancelled, BookingDeclined, BookingNoShow} {
		b := &CanonicalBooking{Status: terminal}
		assert.True(t, b.CannotReturnToConfirmed(BookingConfirmed), "status %s should block a return to confirmed", terminal)
		// A stale update to some other status is still irrelevant to this guard.
		assert.False(t, b.CannotReturnToConfirmed(BookingCheckedIn))
	}

	active := &CanonicalBooking{Status: BookingReserved}
	assert.False(t, active.CannotReturnToConfirmed(BookingConfirmed), "a reserved booking may advance to confirmed")
}

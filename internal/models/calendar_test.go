package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalendarCell_HoldReleaseConfirm(t *testing.T) {
	c := &CalendarCell{Status: CellAvailable}
	assert.True(t, c.IsAvailable())

	c.Hold("booking-1")
	assert.Equal(t, CellTentative, c.Status)
	assert.NotNil(t, c.BookingID)
	assert.Equal(t, "booking-1", *c.BookingID)
	assert.False(t, c.IsAvailable())

	c.Confirm()
	assert.Equal(t, CellBooked, c.Status)

	c.Release()
	assert.Equal(t, CellAvailable, c.Status)
	assert.Nil(t, c.BookingID)
	assert.True(t, c.IsAvailable())
}

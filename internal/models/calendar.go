package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CellStatus is the occupancy state of one property/date cell.
type CellStatus string

const (
	CellAvailable CellStatus = "available"
	CellTentative CellStatus = "tentative"
	CellBooked    CellStatus = "booked"
	CellBlocked   CellStatus = "blocked"
)

// CalendarCell is the per-property, per-night availability row (spec.md §3).
// Invariant: UNIQUE(property, date). Concurrent writers race on this
// constraint; the reservation flow treats a conflict as "already taken"
// rather than retrying blindly (spec.md §4.6 step 6).
type CalendarCell struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	PropertyID string    `gorm:"size:36;index:idx_property_date,unique" json:"property_id"`
	Date       time.Time `gorm:"type:date;index:idx_property_date,unique" json:"date"`

	Status CellStatus `gorm:"size:20;index" json:"status"`

	// PriceOverride, when set, takes precedence over the property's base
	// nightly rate for this date (spec.md §4.6.1 price breakdown).
	PriceOverride *float64 `json:"price_override,omitempty"`
	MinStay       *int     `json:"min_stay,omitempty"`

	BookingID *string `gorm:"size:36;index" json:"booking_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CalendarCell) TableName() string { return "calendar_availability" }

func (c *CalendarCell) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// IsAvailable reports whether this cell can still accept a new reservation.
func (c *CalendarCell) IsAvailable() bool {
	return c.Status == CellAvailable
}

// Hold transitions the cell to tentative and attaches the holding booking,
// used by create_booking under the distributed lock before commit (spec.md
// §4.6 step 3).
func (c *CalendarCell) Hold(bookingID string) {
	c.Status = CellTentative
	c.BookingID = &bookingID
}

// Release reverts the cell to available, used on expiry/cancellation
// (spec.md §4.6.2/§4.6.3).
func (c *CalendarCell) Release() {
	c.Status = CellAvailable
	c.BookingID = nil
}

// Confirm transitions a held cell to booked once payment succeeds.
func (c *CalendarCell) Confirm() {
	c.Status = CellBooked
}

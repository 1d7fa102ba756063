package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BookingStatus is the canonical booking lifecycle (spec.md §3).
type BookingStatus string

const (
	BookingInquiry    BookingStatus = "inquiry"
	BookingReserved   BookingStatus = "reserved"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingCheckedIn  BookingStatus = "checked_in"
	BookingCheckedOut BookingStatus = "checked_out"
	BookingCancelled  BookingStatus = "cancelled"
	BookingDeclined   BookingStatus = "declined"
	BookingNoShow     BookingStatus = "no_show"
)

// activeStatuses are the statuses that hold a calendar cell (invariant 1/2).
var activeStatuses = map[BookingStatus]bool{
	BookingReserved:  true,
	BookingConfirmed: true,
}

// IsActive reports whether this status counts toward occupancy/overlap
// invariants (spec.md §8 invariants 1-2).
func (s BookingStatus) IsActive() bool { return activeStatuses[s] }

// PaymentStatus tracks the reservation flow's payment lifecycle.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentExpired  PaymentStatus = "expired"
	PaymentFailed   PaymentStatus = "failed"
)

// CanonicalBooking is the normalized reservation row (spec.md §3).
// Invariants: UNIQUE(source, channel_booking_id); check_out > check_in.
type CanonicalBooking struct {
	ID         string      `gorm:"primaryKey;size:36" json:"id"`
	TenantID   string      `gorm:"index;size:36" json:"tenant_id"`
	PropertyID string      `gorm:"index;size:36" json:"property_id"`
	GuestID    string      `gorm:"index;size:36" json:"guest_id"`

	Source          ChannelKind `gorm:"size:20;index:idx_source_channel_booking,unique" json:"source"`
	ChannelBookingID *string    `gorm:"size:100;index:idx_source_channel_booking,unique" json:"channel_booking_id,omitempty"`

	BookingReference string `gorm:"uniqueIndex;size:20" json:"booking_reference"`

	CheckIn  time.Time `gorm:"index:idx_property_dates" json:"check_in"`
	CheckOut time.Time `gorm:"index:idx_property_dates" json:"check_out"`

	Adults   int `json:"adults"`
	Children int `json:"children"`
	Infants  int `json:"infants"`

	NightlyRate decimal.Decimal `gorm:"type:decimal(10,2)" json:"nightly_rate"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(10,2)" json:"subtotal"`
	CleaningFee decimal.Decimal `gorm:"type:decimal(10,2)" json:"cleaning_fee"`
	ServiceFee  decimal.Decimal `gorm:"type:decimal(10,2)" json:"service_fee"`
	Taxes       decimal.Decimal `gorm:"type:decimal(10,2)" json:"taxes"`
	Total       decimal.Decimal `gorm:"type:decimal(10,2)" json:"total"`
	Currency    string          `gorm:"size:3" json:"currency"`

	Status        BookingStatus `gorm:"size:20;index" json:"status"`
	PaymentStatus PaymentStatus `gorm:"size:20" json:"payment_status"`

	PaymentIntentID *string `gorm:"size:100" json:"payment_intent_id,omitempty"`
	PaidAmount      decimal.Decimal `gorm:"type:decimal(10,2)" json:"paid_amount"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	ConfirmedAt     *time.Time      `json:"confirmed_at,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	CancellationReason string       `gorm:"type:text" json:"cancellation_reason,omitempty"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	SpecialRequests string `gorm:"type:text" json:"special_requests,omitempty"`

	// ChannelPayload is the opaque raw vendor payload, pass-through only.
	ChannelPayload string `gorm:"type:text" json:"channel_payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CanonicalBooking) TableName() string { return "bookings" }

func (b *CanonicalBooking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

// Nights returns the integer number of nights (check_out exclusive).
func (b *CanonicalBooking) Nights() int {
	return int(b.CheckOut.Sub(b.CheckIn).Hours() / 24)
}

// CannotReturnToConfirmed guards against a stale webhook reviving a
// cancelled booking (spec.md §5 ordering guarantee: "a cancelled booking
// cannot return to confirmed via a stale update").
func (b *CanonicalBooking) CannotReturnToConfirmed(newStatus BookingStatus) bool {
	terminal := b.Status == BookingCancelled || b.Status == BookingDeclined || b.Status == BookingNoShow
	return terminal && newStatus == BookingConfirmed
}

// Guest is deduplicated per-tenant by email (spec.md §3).
type Guest struct {
	ID            string `gorm:"primaryKey;size:36" json:"id"`
	TenantID      string `gorm:"index:idx_tenant_email,unique;size:36" json:"tenant_id"`
	Email         string `gorm:"index:idx_tenant_email,unique;size:255" json:"email"`
	FirstName     string `gorm:"size:100" json:"first_name"`
	LastName      string `gorm:"size:100" json:"last_name"`
	Phone         string `gorm:"size:30" json:"phone,omitempty"`
	BookingCount  int    `json:"booking_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Guest) TableName() string { return "guests" }

func (g *Guest) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	return nil
}

// PaymentTransaction records a single payment event against a booking.
type PaymentTransaction struct {
	ID              string          `gorm:"primaryKey;size:36" json:"id"`
	BookingID       string          `gorm:"index;size:36" json:"booking_id"`
	PaymentIntentID string          `gorm:"size:100" json:"payment_intent_id"`
	Type            string          `gorm:"size:20" json:"type"` // capture | refund
	Amount          decimal.Decimal `gorm:"type:decimal(10,2)" json:"amount"`
	Currency        string          `gorm:"size:3" json:"currency"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }

func (p *PaymentTransaction) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

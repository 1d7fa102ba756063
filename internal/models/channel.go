// Package models holds the gorm-mapped entities the sync engine owns:
// ChannelConnection, CanonicalBooking, CalendarCell, Guest, SyncLog and
// PaymentTransaction (spec.md §3), following the teacher's model style in
// services/order_service/src/models/order.go (gorm tags, BeforeCreate hooks,
// small behavior methods alongside the struct).
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChannelKind is the closed tagged variant of spec.md §4.3/§9: the five
// distribution channels plus "direct" for bookings made through the
// reservation flow.
type ChannelKind string

const (
	ChannelAirbnb     ChannelKind = "airbnb"
	ChannelBookingCom ChannelKind = "booking_com"
	ChannelExpedia    ChannelKind = "expedia"
	ChannelFewoDirekt ChannelKind = "fewo_direkt"
	ChannelGoogle     ChannelKind = "google"
	ChannelDirect     ChannelKind = "direct"
)

// AllChannels enumerates the five distribution channels (excludes "direct").
var AllChannels = []ChannelKind{ChannelAirbnb, ChannelBookingCom, ChannelExpedia, ChannelFewoDirekt, ChannelGoogle}

// SyncDirection constrains which way a connection propagates changes.
type SyncDirection string

const (
	DirectionInboundOnly  SyncDirection = "inbound_only"
	DirectionOutboundOnly SyncDirection = "outbound_only"
	DirectionBidirectional SyncDirection = "bidirectional"
)

// ConnectionStatus is the operational status of a ChannelConnection.
type ConnectionStatus string

const (
	ConnectionActive  ConnectionStatus = "active"
	ConnectionExpired ConnectionStatus = "expired"
	ConnectionError   ConnectionStatus = "error"
)

// PriceAdjustmentType is the optional per-connection pricing transform.
type PriceAdjustmentType string

const (
	AdjustmentNone       PriceAdjustmentType = ""
	AdjustmentPercentage PriceAdjustmentType = "percentage"
	AdjustmentFixed      PriceAdjustmentType = "fixed"
)

// ChannelConnection binds one local property to one remote channel account
// (spec.md §3). Mutated only by the sync engine and token refresher; soft
// deactivated, never hard-deleted while bookings reference it.
type ChannelConnection struct {
	ID         string      `gorm:"primaryKey;size:36" json:"id"`
	TenantID   string      `gorm:"index;size:36" json:"tenant_id"`
	Channel    ChannelKind `gorm:"size:20;index" json:"channel"`
	PropertyID string      `gorm:"index;size:36" json:"property_id"`

	RemotePropertyID string `gorm:"size:100" json:"remote_property_id"`

	// Credentials are expected to already be encrypted by the credential
	// store (out of scope per spec.md §1); this field carries the opaque
	// ciphertext/reference, never plaintext.
	AccessTokenEncrypted  string     `gorm:"type:text" json:"-"`
	RefreshTokenEncrypted string     `gorm:"type:text" json:"-"`
	TokenExpiresAt        *time.Time `json:"token_expires_at,omitempty"`

	Direction SyncDirection `gorm:"size:20" json:"direction"`

	SyncAvailability bool `json:"sync_availability"`
	SyncPricing      bool `json:"sync_pricing"`
	SyncBookings     bool `json:"sync_bookings"`

	PriceAdjustmentType  PriceAdjustmentType `gorm:"size:20" json:"price_adjustment_type,omitempty"`
	PriceAdjustmentValue float64             `json:"price_adjustment_value,omitempty"`

	Status              ConnectionStatus `gorm:"size:20;index" json:"status"`
	ErrorCount           int             `json:"error_count"`
	LastErrorAt          *time.Time      `json:"last_error_at,omitempty"`
	LastErrorMessage     string          `gorm:"type:text" json:"last_error_message,omitempty"`
	LastSyncAt           *time.Time      `json:"last_sync_at,omitempty"`
	LastSuccessfulSyncAt *time.Time      `json:"last_successful_sync_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ChannelConnection) TableName() string { return "channel_connections" }

// BeforeCreate assigns an identifier if the caller left it blank.
func (c *ChannelConnection) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// ParticipatesInOutbound reports whether this connection should receive
// outbound fan-out for a change whose source channel is sourceChannel
// (spec.md §4.4 event handlers, and the cyclic-reference break in §9).
func (c *ChannelConnection) ParticipatesInOutbound(sourceChannel ChannelKind) bool {
	if c.Status != ConnectionActive {
		return false
	}
	if c.Direction != DirectionBidirectional && c.Direction != DirectionOutboundOnly {
		return false
	}
	if sourceChannel != "" && sourceChannel == c.Channel {
		return false
	}
	return true
}

// ApplyPriceAdjustment transforms a base nightly price per the connection's
// configured rule (spec.md §4.4 step (d)).
func (c *ChannelConnection) ApplyPriceAdjustment(base float64) float64 {
	switch c.PriceAdjustmentType {
	case AdjustmentPercentage:
		return base * (1 + c.PriceAdjustmentValue/100)
	case AdjustmentFixed:
		return base + c.PriceAdjustmentValue
	default:
		return base
	}
}

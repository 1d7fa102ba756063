package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SyncLogType classifies the kind of sync operation recorded.
type SyncLogType string

const (
	SyncLogAvailability SyncLogType = "availability"
	SyncLogPricing      SyncLogType = "pricing"
	SyncLogBooking      SyncLogType = "booking"
	SyncLogReconcile    SyncLogType = "reconcile"
	SyncLogTokenRefresh SyncLogType = "token_refresh"
)

// SyncLogDirection records which way the data moved.
type SyncLogDirection string

const (
	SyncLogOutbound SyncLogDirection = "outbound"
	SyncLogInbound  SyncLogDirection = "inbound"
)

// SyncLogStatus is the terminal outcome of a sync attempt.
type SyncLogStatus string

const (
	SyncLogSuccess SyncLogStatus = "success"
	SyncLogFailure SyncLogStatus = "failure"
	SyncLogPartial SyncLogStatus = "partial"
	SyncLogSkipped SyncLogStatus = "skipped"
)

// SyncLog is the audit trail row written for every outbound write and
// inbound import/poll/reconcile pass (spec.md §3, §4.4, §4.6).
type SyncLog struct {
	ID           string      `gorm:"primaryKey;size:36" json:"id"`
	ConnectionID string      `gorm:"index;size:36" json:"connection_id"`
	Channel      ChannelKind `gorm:"size:20;index" json:"channel"`

	Type      SyncLogType      `gorm:"size:20;index" json:"type"`
	Direction SyncLogDirection `gorm:"size:20" json:"direction"`
	Status    SyncLogStatus    `gorm:"size:20;index" json:"status"`

	RecordsProcessed int `json:"records_processed"`
	RecordsFailed    int `json:"records_failed"`

	ErrorKind    string `gorm:"size:40" json:"error_kind,omitempty"`
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	// Payload is a truncated snapshot of the request/response for debugging,
	// never the full vendor payload (spec.md §4.5 raw-byte preservation is
	// handled separately, at the webhook ingress layer).
	Payload string `gorm:"type:text" json:"payload,omitempty"`

	DurationMS int64 `json:"duration_ms"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func (SyncLog) TableName() string { return "channel_sync_logs" }

func (s *SyncLog) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}
	return nil
}

// Finish closes out the log entry with a terminal status.
func (s *SyncLog) Finish(status SyncLogStatus, errKind, errMsg string) {
	now := time.Now().UTC()
	s.FinishedAt = &now
	s.Status = status
	s.ErrorKind = errKind
	s.ErrorMessage = errMsg
	s.DurationMS = now.Sub(s.StartedAt).Milliseconds()
}

// GuestInvitation tracks a pending guest-contact invitation (the original
// implementation's guest_invitations table, supplemented into scope — see
// SPEC_FULL.md Section C).
type GuestInvitation struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	BookingID string     `gorm:"index;size:36" json:"booking_id"`
	GuestID   string     `gorm:"index;size:36" json:"guest_id"`
	Token     string     `gorm:"uniqueIndex;size:64" json:"token"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}

func (GuestInvitation) TableName() string { return "guest_invitations" }

func (g *GuestInvitation) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	return nil
}

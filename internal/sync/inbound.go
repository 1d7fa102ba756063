package sync

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kolibri-visions/channel-sync/internal/coordination"
	"github.com/kolibri-visions/channel-sync/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ImportResult is the outcome of ImportChannelBooking, used by both the
// webhook ingress and the poller to decide their own response/logging.
type ImportResult string

const (
	ImportCreated        ImportResult = "created"
	ImportAlreadyImported ImportResult = "already_imported"
	ImportDuplicate      ImportResult = "duplicate"
)

// ImportChannelBooking normalizes a PlatformBooking into a
// CanonicalBooking, following the five-step sequence of spec.md §4.4.
func (e *Engine) ImportChannelBooking(ctx context.Context, conn *models.ChannelConnection, booking models.PlatformBooking, tenantID, idempotencyKey string) (ImportResult, error) {
	log := e.openSyncLog(conn.ID, conn.Channel, models.SyncLogBooking, models.SyncLogInbound)

	// Step 1: idempotency short-circuit.
	seen, err := coordination.HasSeen(ctx, e.coord, idempotencyKey)
	if err != nil {
		e.closeSyncLog(ctx, log, models.SyncLogFailure, "coordination_error", err.Error())
		return "", err
	}
	if seen {
		e.closeSyncLog(ctx, log, models.SyncLogSuccess, "", "already_imported")
		return ImportAlreadyImported, nil
	}

	var result ImportResult
	txErr := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Step 2: upsert guest by (tenant, email).
		guest, err := upsertGuest(tx, tenantID, booking)
		if err != nil {
			return err
		}

		// Step 3: insert CanonicalBooking; UNIQUE(source, channel_booking_id)
		// is the authoritative race-free dedup.
		channelBookingID := booking.ChannelBookingID
		record := models.CanonicalBooking{
			TenantID:         tenantID,
			PropertyID:       conn.PropertyID,
			GuestID:          guest.ID,
			Source:           conn.Channel,
			ChannelBookingID: &channelBookingID,
			CheckIn:          booking.CheckIn,
			CheckOut:         booking.CheckOut,
			Adults:           booking.Adults,
			Children:         booking.Children,
			Infants:          booking.Infants,
			Total:            booking.TotalPrice,
			Currency:         booking.Currency,
			Status:           canonicalStatus(booking.Status),
			PaymentStatus:    models.PaymentPaid,
			SpecialRequests:  booking.SpecialRequests,
		}

		if err := tx.Create(&record).Error; err != nil {
			if isUniqueViolation(err) {
				result = ImportDuplicate
				return nil
			}
			return err
		}
		result = ImportCreated

		// Hold the calendar cells for the imported stay.
		if err := upsertCalendarCells(tx, conn.PropertyID, record.ID, booking.CheckIn, booking.CheckOut, models.CellBooked); err != nil {
			return err
		}
		return nil
	})
	if txErr != nil {
		e.closeSyncLog(ctx, log, models.SyncLogFailure, "transaction_error", txErr.Error())
		return "", txErr
	}

	if result == ImportDuplicate {
		e.closeSyncLog(ctx, log, models.SyncLogSuccess, "", "duplicate")
		return ImportDuplicate, nil
	}

	// Step 4: mark seen with 24h TTL.
	if _, err := coordination.MarkSeen(ctx, e.coord, idempotencyKey); err != nil {
		e.logger.Warn("failed to mark idempotency key", zap.Error(err))
	}

	// Step 5: fan out to peer channels, excluding the import's source.
	if err := e.fanOutAvailability(ctx, BookingEvent{
		PropertyID: conn.PropertyID,
		Source:     conn.Channel,
		CheckIn:    booking.CheckIn,
		CheckOut:   booking.CheckOut,
	}, false); err != nil {
		e.logger.Warn("fan-out after import failed", zap.Error(err))
	}

	e.closeSyncLog(ctx, log, models.SyncLogSuccess, "", "")
	return ImportCreated, nil
}

func upsertGuest(tx *gorm.DB, tenantID string, booking models.PlatformBooking) (models.Guest, error) {
	var guest models.Guest
	err := tx.Where("tenant_id = ? AND email = ?", tenantID, booking.GuestEmail).First(&guest).Error
	if err == nil {
		guest.Phone = booking.GuestPhone
		guest.BookingCount++
		if err := tx.Save(&guest).Error; err != nil {
			return guest, err
		}
		return guest, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return guest, err
	}

	first, last := splitName(booking.GuestName)
	guest = models.Guest{
		TenantID:     tenantID,
		Email:        booking.GuestEmail,
		FirstName:    first,
		LastName:     last,
		Phone:        booking.GuestPhone,
		BookingCount: 1,
	}
	if err := tx.Create(&guest).Error; err != nil {
		return guest, err
	}
	return guest, nil
}

func splitName(full string) (first, last string) {
	for i := len(full) - 1; i >= 0; i-- {
		if full[i] == ' ' {
			return full[:i], full[i+1:]
		}
	}
	return full, ""
}

func canonicalStatus(vendorStatus string) models.BookingStatus {
	switch vendorStatus {
	case "cancelled", "canceled":
		return models.BookingCancelled
	case "declined":
		return models.BookingDeclined
	default:
		return models.BookingConfirmed
	}
}

func upsertCalendarCells(tx *gorm.DB, propertyID, bookingID string, checkIn, checkOut time.Time, status models.CellStatus) error {
	for d := checkIn; d.Before(checkOut); d = d.AddDate(0, 0, 1) {
		cell := models.CalendarCell{
			PropertyID: propertyID,
			Date:       d,
			Status:     status,
			BookingID:  &bookingID,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "property_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "booking_id", "updated_at"}),
		}).Create(&cell).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}

package reservation

import (
	"errors"
	"fmt"
	"time"

	"github.com/kolibri-visions/channel-sync/internal/coordination"
	"github.com/kolibri-visions/channel-sync/internal/eventstream"
	"github.com/kolibri-visions/channel-sync/internal/models"
	"github.com/kolibri-visions/channel-sync/internal/pricing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"context"
)

// lockLease and lockDeadline are the distributed-lock parameters of
// spec.md §4.6 step 2.
const (
	lockLease    = 60 * time.Second
	lockDeadline = 5 * time.Second

	// expiryWindow is how long a reserved-but-unpaid booking holds its
	// calendar cells before expire_booking releases them.
	expiryWindow = 30 * time.Minute
)

// Flow is the reservation flow: lock-guarded creation, confirmation,
// expiry, and cancellation (spec.md §4.6).
type Flow struct {
	db      *gorm.DB
	coord   *coordination.Client
	payment PaymentClient
	events  *eventstream.Producer
	logger  *zap.Logger
}

func NewFlow(db *gorm.DB, coord *coordination.Client, payment PaymentClient, events *eventstream.Producer, logger *zap.Logger) *Flow {
	return &Flow{db: db, coord: coord, payment: payment, events: events, logger: logger}
}

func lockKey(propertyID string, checkIn, checkOut time.Time) string {
	return "booking:lock:" + propertyID + ":" + checkIn.Format("2006-01-02") + ":" + checkOut.Format("2006-01-02")
}

// Errors the HTTP layer translates to the status codes of spec.md §7.
var (
	ErrPropertyNotFound = errors.New("property not found or inactive")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrUnavailable      = errors.New("dates unavailable")
	ErrStateMismatch    = errors.New("booking is not in a state that allows this transition")
	ErrIntentMismatch   = errors.New("payment intent does not match this booking")
	ErrPaymentNotReady  = errors.New("payment has not succeeded")
)

// CreateRequest is the input to CreateBooking (spec.md §4.6, the
// reservation API's POST /api/v1/bookings body).
type CreateRequest struct {
	TenantID   string
	PropertyID string
	CheckIn    time.Time
	CheckOut   time.Time
	Adults     int
	Children   int
	Infants    int
	GuestEmail string
	GuestName  string
	GuestPhone string
	SpecialRequests string
}

// CreateResult is the response shape of spec.md §4.6 step 10.
type CreateResult struct {
	BookingID          string
	BookingReference   string
	ExpiresAt          time.Time
	PaymentIntentID    string
	PaymentClientSecret string
	Total              decimal.Decimal
	Currency           string
}

// CreateBooking is the hardest transactional path in the system
// (spec.md §4.6): lock the requested date range, re-check availability
// under the lock, price the stay, then persist guest, reference, booking
// and calendar cells in one transaction. The payment intent is opened
// only after that transaction has committed, and its id is stored in a
// second update. If creating or storing the intent fails, the
// reservation is rolled back, and an intent already created is
// cancelled.
func (f *Flow) CreateBooking(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if !req.CheckOut.After(req.CheckIn) {
		return nil, fmt.Errorf("%w: check_out must be after check_in", ErrStateMismatch)
	}

	var property models.Property
	if err := f.db.WithContext(ctx).Where("id = ? AND active = ?", req.PropertyID, true).First(&property).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPropertyNotFound
		}
		return nil, fmt.Errorf("load property: %w", err)
	}

	lock, err := coordination.AcquireLock(ctx, f.coord, lockKey(req.PropertyID, req.CheckIn, req.CheckOut), lockLease, lockDeadline)
	if err != nil {
		return nil, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if relErr := lock.Release(releaseCtx); relErr != nil {
			f.logger.Warn("failed to release reservation lock", zap.Error(relErr))
		}
	}()

	if err := f.checkAvailability(ctx, req.PropertyID, req.CheckIn, req.CheckOut); err != nil {
		return nil, err
	}

	rates, err := f.nightlyRates(ctx, req.PropertyID, req.CheckIn, req.CheckOut, property.BasePrice)
	if err != nil {
		return nil, err
	}
	breakdown := pricing.Compute(req.CheckIn, req.CheckOut, rates, property.CleaningFee, property.TaxRate, property.TaxIncluded)

	now := time.Now().UTC()
	var (
		result CreateResult
		ref    string
	)

	txErr := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		guest, err := upsertGuest(tx, req.TenantID, req.GuestEmail, req.GuestName, req.GuestPhone)
		if err != nil {
			return err
		}

		ref, err = NextBookingReference(ctx, tx, now)
		if err != nil {
			return err
		}

		booking := models.CanonicalBooking{
			TenantID:        req.TenantID,
			PropertyID:      req.PropertyID,
			GuestID:         guest.ID,
			Source:          models.ChannelDirect,
			BookingReference: ref,
			CheckIn:         req.CheckIn,
			CheckOut:        req.CheckOut,
			Adults:          req.Adults,
			Children:        req.Children,
			Infants:         req.Infants,
			NightlyRate:     breakdown.NightlyRate,
			Subtotal:        breakdown.Subtotal,
			CleaningFee:     breakdown.CleaningFee,
			ServiceFee:      breakdown.ServiceFee,
			Taxes:           breakdown.Taxes,
			Total:           breakdown.Total,
			Currency:        currencyOrDefault(""),
			Status:          models.BookingReserved,
			PaymentStatus:   models.PaymentPending,
			SpecialRequests: req.SpecialRequests,
		}
		expiresAt := now.Add(expiryWindow)
		booking.ExpiresAt = &expiresAt

		if err := tx.Create(&booking).Error; err != nil {
			return err
		}

		if err := holdCalendarCells(tx, req.PropertyID, booking.ID, req.CheckIn, req.CheckOut); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		result = CreateResult{
			BookingID:        booking.ID,
			BookingReference: ref,
			ExpiresAt:        expiresAt,
			Total:            breakdown.Total,
			Currency:         booking.Currency,
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	paymentIntent, err := f.payment.CreateIntent(ctx, breakdown.Total, result.Currency, map[string]string{
		"property_id": req.PropertyID,
		"reference":   ref,
		"guest_email": req.GuestEmail,
		"check_in":    req.CheckIn.Format("2006-01-02"),
		"check_out":   req.CheckOut.Format("2006-01-02"),
	})
	if err != nil {
		f.rollbackReservation(result.BookingID)
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	if err := f.db.WithContext(ctx).Model(&models.CanonicalBooking{}).Where("id = ?", result.BookingID).
		Update("payment_intent_id", paymentIntent.ID).Error; err != nil {
		if cancelErr := f.payment.CancelIntent(ctx, paymentIntent.ID); cancelErr != nil {
			f.logger.Warn("failed to cancel orphaned payment intent", zap.Error(cancelErr))
		}
		f.rollbackReservation(result.BookingID)
		return nil, fmt.Errorf("persist payment intent: %w", err)
	}

	result.PaymentIntentID = paymentIntent.ID
	result.PaymentClientSecret = paymentIntent.ClientSecret

	go f.scheduleExpiry(result.BookingID, expiryWindow)

	return &result, nil
}

// rollbackReservation undoes a reservation whose payment-intent step
// failed: cancel the booking and free the calendar cells it held
// (spec.md §4.6 "any failure after step 7 must cancel the payment
// intent"; rolling back the booking itself keeps invariant 1 intact).
func (f *Flow) rollbackReservation(bookingID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if err := tx.Model(&models.CanonicalBooking{}).Where("id = ?", bookingID).Updates(map[string]interface{}{
			"status": models.BookingCancelled, "payment_status": models.PaymentFailed, "cancelled_at": now,
		}).Error; err != nil {
			return err
		}
		return releaseCalendarCells(tx, bookingID)
	}); err != nil {
		f.logger.Error("failed to roll back failed reservation", zap.String("booking_id", bookingID), zap.Error(err))
	}
}

// checkAvailability re-verifies, under the lock, that no active booking
// overlaps the range and no calendar cell in it is already unavailable
// (spec.md §4.6 step 3).
func (f *Flow) checkAvailability(ctx context.Context, propertyID string, checkIn, checkOut time.Time) error {
	var overlapping int64
	err := f.db.WithContext(ctx).Model(&models.CanonicalBooking{}).
		Where("property_id = ? AND status IN ? AND check_in < ? AND check_out > ?",
			propertyID, []models.BookingStatus{models.BookingReserved, models.BookingConfirmed}, checkOut, checkIn).
		Count(&overlapping).Error
	if err != nil {
		return fmt.Errorf("check overlapping bookings: %w", err)
	}
	if overlapping > 0 {
		return ErrUnavailable
	}

	var blocked int64
	err = f.db.WithContext(ctx).Model(&models.CalendarCell{}).
		Where("property_id = ? AND date >= ? AND date < ? AND status <> ?", propertyID, checkIn, checkOut, models.CellAvailable).
		Count(&blocked).Error
	if err != nil {
		return fmt.Errorf("check calendar cells: %w", err)
	}
	if blocked > 0 {
		return ErrUnavailable
	}
	return nil
}

// nightlyRates resolves one price per date in [checkIn, checkOut),
// preferring any calendar-cell override over the property base price
// (spec.md §4.6.1).
func (f *Flow) nightlyRates(ctx context.Context, propertyID string, checkIn, checkOut time.Time, basePrice decimal.Decimal) ([]decimal.Decimal, error) {
	var cells []models.CalendarCell
	if err := f.db.WithContext(ctx).Where("property_id = ? AND date >= ? AND date < ?", propertyID, checkIn, checkOut).Find(&cells).Error; err != nil {
		return nil, fmt.Errorf("load calendar cells: %w", err)
	}
	overrides := make(map[string]*models.CalendarCell, len(cells))
	for i := range cells {
		overrides[cells[i].Date.Format("2006-01-02")] = &cells[i]
	}

	rates := make([]decimal.Decimal, 0, int(checkOut.Sub(checkIn).Hours()/24))
	for d := checkIn; d.Before(checkOut); d = d.AddDate(0, 0, 1) {
		rates = append(rates, pricing.NightlyRate(overrides[d.Format("2006-01-02")], basePrice))
	}
	return rates, nil
}

// holdCalendarCells upserts every date in [checkIn, checkOut) to
// tentative, referencing the new booking. UNIQUE(property, date) is the
// race-free serialization point: a conflict here means another
// concurrent reservation already holds the cell (spec.md §4.6 step 9).
func holdCalendarCells(tx *gorm.DB, propertyID, bookingID string, checkIn, checkOut time.Time) error {
	for d := checkIn; d.Before(checkOut); d = d.AddDate(0, 0, 1) {
		var existing models.CalendarCell
		err := tx.Where("property_id = ? AND date = ?", propertyID, d).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			cell := models.CalendarCell{PropertyID: propertyID, Date: d, Status: models.CellTentative, BookingID: &bookingID}
			if err := tx.Create(&cell).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if existing.Status != models.CellAvailable {
				return fmt.Errorf("cell %s already held", d.Format("2006-01-02"))
			}
			existing.Hold(bookingID)
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// releaseCalendarCells reverts every cell referencing bookingID back to
// available, clearing the back-reference (invariant 4).
func releaseCalendarCells(tx *gorm.DB, bookingID string) error {
	return tx.Model(&models.CalendarCell{}).Where("booking_id = ?", bookingID).Updates(map[string]interface{}{
		"status": models.CellAvailable, "booking_id": nil,
	}).Error
}

// confirmCalendarCells transitions every cell referencing bookingID from
// tentative to booked (spec.md §4.6 confirm_booking step).
func confirmCalendarCells(tx *gorm.DB, bookingID string) error {
	return tx.Model(&models.CalendarCell{}).Where("booking_id = ? AND status = ?", bookingID, models.CellTentative).
		Update("status", models.CellBooked).Error
}

func currencyOrDefault(c string) string {
	if c == "" {
		return "USD"
	}
	return c
}

func upsertGuest(tx *gorm.DB, tenantID, email, name, phone string) (models.Guest, error) {
	var guest models.Guest
	err := tx.Where("tenant_id = ? AND email = ?", tenantID, email).First(&guest).Error
	if err == nil {
		guest.Phone = phone
		guest.BookingCount++
		return guest, tx.Save(&guest).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return guest, err
	}
	first, last := name, ""
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == ' ' {
			first, last = name[:i], name[i+1:]
			break
		}
	}
	guest = models.Guest{TenantID: tenantID, Email: email, FirstName: first, LastName: last, Phone: phone, BookingCount: 1}
	return guest, tx.Create(&guest).Error
}

// ConfirmBooking is idempotent on (booking, payment_intent): a second
// call after success returns success without additional state change
// (spec.md §4.6, invariant 8).
func (f *Flow) ConfirmBooking(ctx context.Context, bookingID, paymentIntentID string) error {
	var booking models.CanonicalBooking
	if err := f.db.WithContext(ctx).Where("id = ?", bookingID).First(&booking).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBookingNotFound
		}
		return err
	}

	if booking.Status == models.BookingConfirmed && booking.PaymentStatus == models.PaymentPaid {
		return nil
	}
	if booking.Status != models.BookingReserved {
		return ErrStateMismatch
	}
	if booking.PaymentIntentID == nil || *booking.PaymentIntentID != paymentIntentID {
		return ErrIntentMismatch
	}

	intent, err := f.payment.RetrieveIntent(ctx, paymentIntentID)
	if err != nil {
		return fmt.Errorf("retrieve payment intent: %w", err)
	}
	if intent.Status != "succeeded" {
		return ErrPaymentNotReady
	}

	now := time.Now().UTC()
	txErr := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.CanonicalBooking{}).Where("id = ? AND status = ?", bookingID, models.BookingReserved).Updates(map[string]interface{}{
			"status": models.BookingConfirmed, "payment_status": models.PaymentPaid,
			"paid_amount": intent.Amount, "paid_at": now, "confirmed_at": now,
		}).Error; err != nil {
			return err
		}
		if err := confirmCalendarCells(tx, bookingID); err != nil {
			return err
		}
		txn := models.PaymentTransaction{
			BookingID: bookingID, PaymentIntentID: paymentIntentID, Type: "capture",
			Amount: intent.Amount, Currency: intent.Currency,
		}
		return tx.Create(&txn).Error
	})
	if txErr != nil {
		return fmt.Errorf("confirm booking: %w", txErr)
	}

	if f.events != nil {
		if err := f.events.Emit(ctx, "booking.confirmed", booking.TenantID, map[string]interface{}{
			"booking_id": bookingID, "property_id": booking.PropertyID, "source": models.ChannelDirect,
			"check_in": booking.CheckIn, "check_out": booking.CheckOut,
		}); err != nil {
			f.logger.Warn("failed to emit booking.confirmed", zap.Error(err))
		}
	}
	return nil
}

// scheduleExpiry is the process-local fast path for spec.md §4.6's
// "schedule expire_booking(booking_id) after 30 min". The periodic sweep
// in internal/scheduler is the crash-recovery backstop for reservations
// whose in-memory timer was lost to a restart.
func (f *Flow) scheduleExpiry(bookingID string, after time.Duration) {
	time.Sleep(after)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := f.ExpireBooking(ctx, bookingID); err != nil {
		f.logger.Warn("scheduled booking expiry failed", zap.String("booking_id", bookingID), zap.Error(err))
	}
}

// ExpireBooking releases a reservation that was never confirmed in time
// (spec.md §4.6 expire_booking). Idempotent: a booking no longer
// reserved+pending is left untouched.
func (f *Flow) ExpireBooking(ctx context.Context, bookingID string) error {
	var booking models.CanonicalBooking
	if err := f.db.WithContext(ctx).Where("id = ?", bookingID).First(&booking).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if booking.Status != models.BookingReserved || booking.PaymentStatus != models.PaymentPending {
		return nil
	}

	now := time.Now().UTC()
	txErr := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.CanonicalBooking{}).Where("id = ? AND status = ?", bookingID, models.BookingReserved).Updates(map[string]interface{}{
			"status": models.BookingCancelled, "payment_status": models.PaymentExpired, "cancelled_at": now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return releaseCalendarCells(tx, bookingID)
	})
	if txErr != nil {
		return fmt.Errorf("expire booking: %w", txErr)
	}

	if booking.PaymentIntentID != nil {
		if err := f.payment.CancelIntent(ctx, *booking.PaymentIntentID); err != nil {
			f.logger.Warn("best-effort payment intent cancellation failed", zap.String("booking_id", bookingID), zap.Error(err))
		}
	}
	return nil
}

// ExpireStaleReservations is the scheduler backstop: it finds every
// still-reserved booking past its expiry and expires it, covering
// reservations whose in-process timer (scheduleExpiry) was lost to a
// worker restart.
func (f *Flow) ExpireStaleReservations(ctx context.Context) (int, error) {
	var stale []models.CanonicalBooking
	now := time.Now().UTC()
	if err := f.db.WithContext(ctx).
		Where("status = ? AND payment_status = ? AND expires_at < ?", models.BookingReserved, models.PaymentPending, now).
		Find(&stale).Error; err != nil {
		return 0, fmt.Errorf("find stale reservations: %w", err)
	}
	count := 0
	for _, b := range stale {
		if err := f.ExpireBooking(ctx, b.ID); err != nil {
			f.logger.Warn("failed to expire stale reservation", zap.String("booking_id", b.ID), zap.Error(err))
			continue
		}
		count++
	}
	return count, nil
}

// CancelBooking cancels a booking that has not yet checked in or out,
// refunding per the moderate policy of spec.md §4.6.2 if it was paid.
func (f *Flow) CancelBooking(ctx context.Context, bookingID, reason string) error {
	var booking models.CanonicalBooking
	if err := f.db.WithContext(ctx).Where("id = ?", bookingID).First(&booking).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBookingNotFound
		}
		return err
	}
	if booking.Status == models.BookingCancelled || booking.Status == models.BookingCheckedIn || booking.Status == models.BookingCheckedOut {
		return ErrStateMismatch
	}

	refund := decimal.Zero
	if booking.PaymentStatus == models.PaymentPaid {
		refund = pricing.RefundAmount(booking.CheckIn, time.Now().UTC(), booking.Total)
		if refund.IsPositive() && booking.PaymentIntentID != nil {
			if err := f.payment.Refund(ctx, *booking.PaymentIntentID, refund); err != nil {
				return fmt.Errorf("issue refund: %w", err)
			}
		}
	}

	now := time.Now().UTC()
	newPaymentStatus := booking.PaymentStatus
	if refund.IsPositive() {
		newPaymentStatus = models.PaymentRefunded
	}

	txErr := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.CanonicalBooking{}).Where("id = ?", bookingID).Updates(map[string]interface{}{
			"status": models.BookingCancelled, "payment_status": newPaymentStatus,
			"cancelled_at": now, "cancellation_reason": reason,
		}).Error; err != nil {
			return err
		}
		if err := releaseCalendarCells(tx, bookingID); err != nil {
			return err
		}
		if refund.IsPositive() {
			txn := models.PaymentTransaction{
				BookingID: bookingID, PaymentIntentID: derefOr(booking.PaymentIntentID, ""),
				Type: "refund", Amount: refund, Currency: booking.Currency,
			}
			if err := tx.Create(&txn).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return fmt.Errorf("cancel booking: %w", txErr)
	}

	if f.events != nil {
		if err := f.events.Emit(ctx, "booking.cancelled", booking.TenantID, map[string]interface{}{
			"booking_id": bookingID, "property_id": booking.PropertyID, "source": models.ChannelDirect,
			"check_in": booking.CheckIn, "check_out": booking.CheckOut,
		}); err != nil {
			f.logger.Warn("failed to emit booking.cancelled", zap.Error(err))
		}
	}
	return nil
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

// HandlePaymentSucceeded mirrors ConfirmBooking for the payment
// processor's asynchronous webhook path (spec.md §4.6 "Payment webhook"),
// so confirmation is correct even if the frontend's confirm call is lost.
// Idempotency on the processor's event id is the caller's responsibility
// (the webhook handler marks it seen before invoking this).
func (f *Flow) HandlePaymentSucceeded(ctx context.Context, paymentIntentID string) error {
	var booking models.CanonicalBooking
	if err := f.db.WithContext(ctx).Where("payment_intent_id = ?", paymentIntentID).First(&booking).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return f.ConfirmBooking(ctx, booking.ID, paymentIntentID)
}

// HandlePaymentFailed marks a reservation's payment as failed without
// cancelling it outright; the 30-minute expiry sweep still reclaims the
// calendar cells if the guest never retries payment.
func (f *Flow) HandlePaymentFailed(ctx context.Context, paymentIntentID string) error {
	return f.db.WithContext(ctx).Model(&models.CanonicalBooking{}).
		Where("payment_intent_id = ? AND status = ?", paymentIntentID, models.BookingReserved).
		Update("payment_status", models.PaymentFailed).Error
}

// HandleChargeRefunded reconciles a processor-initiated refund (e.g. a
// dispute) with the local payment_status, independent of CancelBooking's
// own refund path.
func (f *Flow) HandleChargeRefunded(ctx context.Context, paymentIntentID string) error {
	return f.db.WithContext(ctx).Model(&models.CanonicalBooking{}).
		Where("payment_intent_id = ?", paymentIntentID).
		Update("payment_status", models.PaymentRefunded).Error
}

// CheckAvailability backs POST /api/v1/bookings/check-availability: a
// read-only, lock-free preview of whether a range is currently bookable.
func (f *Flow) CheckAvailability(ctx context.Context, propertyID string, checkIn, checkOut time.Time) (bool, error) {
	err := f.checkAvailability(ctx, propertyID, checkIn, checkOut)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrUnavailable) {
		return false, nil
	}
	return false, err
}

// GetBooking loads a booking by id for GET /api/v1/bookings/{id}.
func (f *Flow) GetBooking(ctx context.Context, bookingID string) (*models.CanonicalBooking, error) {
	var booking models.CanonicalBooking
	if err := f.db.WithContext(ctx).Where("id = ?", bookingID).First(&booking).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &booking, nil
}

package reservation

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// NextBookingReference atomically increments the year's counter and
// renders PMS-<YYYY>-<000000> (spec.md §4.6 step 6). The single
// UPSERT...RETURNING statement is the serialization point: concurrent
// callers never observe the same sequence value twice.
func NextBookingReference(ctx context.Context, tx *gorm.DB, now time.Time) (string, error) {
	year := now.UTC().Year()
	var row struct{ LastSeq int }
	err := tx.WithContext(ctx).Raw(`
		INSERT INTO booking_reference_counters (year, last_seq)
		VALUES (?, 1)
		ON CONFLICT (year) DO UPDATE SET last_seq = booking_reference_counters.last_seq + 1
		RETURNING last_seq
	`, year).Scan(&row).Error
	if err != nil {
		return "", fmt.Errorf("allocate booking reference: %w", err)
	}
	return fmt.Sprintf("PMS-%d-%06d", year, row.LastSeq), nil
}

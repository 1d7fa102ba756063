// Package pricing computes the reservation flow's price breakdown
// (spec.md §4.6.1), using shopspring/decimal throughout so every
// intermediate figure is exact — never float64 — matching the teacher's
// own use of decimal.Decimal for money in
// services/order_service/src/models/order.go.
package pricing

import (
	"time"

	"github.com/kolibri-visions/channel-sync/internal/models"
	"github.com/shopspring/decimal"
)

var serviceFeeRate = decimal.NewFromFloat(0.05)

// NightlyRate resolves the per-night price for date: the calendar
// cell's override if present, else the property's base price.
func NightlyRate(cell *models.CalendarCell, basePrice decimal.Decimal) decimal.Decimal {
	if cell != nil && cell.PriceOverride != nil {
		return decimal.NewFromFloat(*cell.PriceOverride)
	}
	return basePrice
}

// Breakdown is the computed price components of §4.6.1.
type Breakdown struct {
	Nights      int
	NightlyRate decimal.Decimal
	Subtotal    decimal.Decimal
	CleaningFee decimal.Decimal
	ServiceFee  decimal.Decimal
	Taxes       decimal.Decimal
	Total       decimal.Decimal
}

// Compute builds the full breakdown for a stay of [checkIn, checkOut)
// where nightlyRates supplies one rate per date in that range (already
// resolved via NightlyRate per cell).
func Compute(checkIn, checkOut time.Time, nightlyRates []decimal.Decimal, cleaningFee, taxRate decimal.Decimal, taxIncluded bool) Breakdown {
	nights := int(checkOut.Sub(checkIn).Hours() / 24)

	subtotal := decimal.Zero
	for _, r := range nightlyRates {
		subtotal = subtotal.Add(r)
	}

	var avgNightly decimal.Decimal
	if nights > 0 {
		avgNightly = subtotal.Div(decimal.NewFromInt(int64(nights))).Round(2)
	}

	serviceFee := subtotal.Add(cleaningFee).Mul(serviceFeeRate).Round(2)

	var taxes decimal.Decimal
	if !taxIncluded {
		taxes = subtotal.Add(cleaningFee).Add(serviceFee).Mul(taxRate).Round(2)
	}

	total := subtotal.Add(cleaningFee).Add(serviceFee).Add(taxes)

	return Breakdown{
		Nights:      nights,
		NightlyRate: avgNightly,
		Subtotal:    subtotal,
		CleaningFee: cleaningFee,
		ServiceFee:  serviceFee,
		Taxes:       taxes,
		Total:       total,
	}
}

// refundFraction implements the moderate refund policy of §4.6.2: full
// refund at 7+ days out, half at 3-6 days out, none inside 3 days.
func refundFraction(daysBeforeCheckIn int) decimal.Decimal {
	switch {
	case daysBeforeCheckIn >= 7:
		return decimal.NewFromInt(1)
	case daysBeforeCheckIn >= 3:
		return decimal.NewFromFloat(0.5)
	default:
		return decimal.Zero
	}
}

// RefundAmount computes the refund owed for a cancellation occurring
// `today`, given the booking's check-in date and total paid.
func RefundAmount(checkIn, today time.Time, total decimal.Decimal) decimal.Decimal {
	days := int(checkIn.Sub(today).Hours() / 24)
	return total.Mul(refundFraction(days)).Round(2)
}

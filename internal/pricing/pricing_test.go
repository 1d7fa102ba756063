package pricing

import (
	"testing"
	"time"

	"github.com/kolibri-visions/channel-sync/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNightlyRate(t *testing.T) {
	base := decimal.NewFromInt(100)

	assert.True(t, base.Equal(NightlyRate(nil, base)))

	override := 150.0
	cell := &models.CalendarCell{PriceOverride: &override}
	assert.True(t, decimal.NewFromFloat(150).Equal(NightlyRate(cell, base)))

	cellNoOverride := &models.CalendarCell{}
	assert.True(t, base.Equal(NightlyRate(cellNoOverride, base)))
}

func TestCompute(t *testing.T) {
	checkIn := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	checkOut := time.Date(2026, 8, 4, 0, 0, 0, 0, time.UTC) // 3 nights

	rates := []decimal.Decimal{
		decimal.NewFromInt(100),
		decimal.NewFromInt(100),
		decimal.NewFromInt(100),
	}
	cleaningFee := decimal.NewFromInt(50)
	taxRate := decimal.NewFromFloat(0.10)

	b := Compute(checkIn, checkOut, rates, cleaningFee, taxRate, false)

	assert.Equal(t, 3, b.Nights)
	assert.True(t, decimal.NewFromInt(300).Equal(b.Subtotal), "subtotal got %s", b.Subtotal)
	assert.True(t, decimal.NewFromInt(100).Equal(b.NightlyRate))
	assert.True(t, decimal.NewFromFloat(17.50).Equal(b.ServiceFee), "service fee got %s", b.ServiceFee)
	// taxable base = 300 + 50 + 17.50 = 367.50, taxes = 36.75
	assert.True(t, decimal.NewFromFloat(36.75).Equal(b.Taxes), "taxes got %s", b.Taxes)
	expectedTotal := b.Subtotal.Add(b.CleaningFee).Add(b.ServiceFee).Add(b.Taxes)
	assert.True(t, expectedTotal.Equal(b.Total))
}

func TestCompute_TaxIncluded(t *testing.T) {
	checkIn := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	checkOut := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)

	b := Compute(checkIn, checkOut, []decimal.Decimal{decimal.NewFromInt(200)}, decimal.Zero, decimal.NewFromFloat(0.15), true)

	assert.True(t, b.Taxes.IsZero(), "taxes should be zero when already included in the rate")
}

func TestRefundAmount_ModeratePolicy(t *testing.T) {
	checkIn := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	total := decimal.NewFromInt(1000)

	// 8 days out: full refund.
	full := RefundAmount(checkIn, checkIn.AddDate(0, 0, -8), total)
	assert.True(t, total.Equal(full), "expected full refund, got %s", full)

	// 5 days out: half refund.
	half := RefundAmount(checkIn, checkIn.AddDate(0, 0, -5), total)
	assert.True(t, decimal.NewFromInt(500).Equal(half), "expected half refund, got %s", half)

	// 1 day out: no refund.
	none := RefundAmount(checkIn, checkIn.AddDate(0, 0, -1), total)
	assert.True(t, none.IsZero(), "expected no refund, got %s", none)

	// exactly on the 7-day boundary: full refund.
	boundary := RefundAmount(checkIn, checkIn.AddDate(0, 0, -7), total)
	assert.True(t, total.Equal(boundary), "expected full refund at the 7-day boundary, got %s", boundary)

	// exactly on the 3-day boundary: half refund.
	boundary2 := RefundAmount(checkIn, checkIn.AddDate(0, 0, -3), total)
	assert.True(t, decimal.NewFromInt(500).Equal(boundary2), "expected half refund at the 3-day boundary, got %s", boundary2)
}

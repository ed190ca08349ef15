package services

import (
	"time"

	"github.com/shopspring/decimal"
)

// Refund tiers by time left before the scheduled service
var (
	FullRefund    = decimal.NewFromInt(1)
	LateRefund    = decimal.RequireFromString("0.9")
	SameDayRefund = decimal.RequireFromString("0.8")
	NoRefund      = decimal.Zero
)

// RefundFraction returns the share of a payment that may be refunded when
// the request is made untilService before the scheduled start.
func RefundFraction(untilService time.Duration) decimal.Decimal {
	switch {
	case untilService >= 24*time.Hour:
		return FullRefund
	case untilService >= 6*time.Hour:
		return LateRefund
	case untilService > 0:
		return SameDayRefund
	default:
		return NoRefund
	}
}

// RefundCap is the most that may be refunded of amount under fraction, rounded down to the cent
func RefundCap(amount int64, fraction decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(fraction).Floor().IntPart()
}

package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRefundFraction_Tiers(t *testing.T) {
	tests := []struct {
		name         string
		untilService time.Duration
		want         decimal.Decimal
	}{
		{"two days out", 48 * time.Hour, FullRefund},
		{"exactly a day out", 24 * time.Hour, FullRefund},
		{"just under a day", 24*time.Hour - time.Second, LateRefund},
		{"exactly six hours", 6 * time.Hour, LateRefund},
		{"two hours out", 2 * time.Hour, SameDayRefund},
		{"one second out", time.Second, SameDayRefund},
		{"at start", 0, NoRefund},
		{"after start", -time.Hour, NoRefund},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RefundFraction(tt.untilService)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestRefundCap_RoundsDownToCent(t *testing.T) {
	assert.Equal(t, int64(10000), RefundCap(10000, FullRefund))
	assert.Equal(t, int64(9000), RefundCap(10001, LateRefund))
	assert.Equal(t, int64(799), RefundCap(999, SameDayRefund))
	assert.Zero(t, RefundCap(5000, NoRefund))
}

package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeePolicySplit(t *testing.T) {
	tests := []struct {
		name       string
		percent    string
		amount     string
		wantFee    string
		wantSeller string
	}{
		{"ten percent even", "10", "100.00", "10.00", "90.00"},
		{"ten percent with rounding", "10", "33.33", "3.33", "30.00"},
		{"rounds half up", "10", "0.05", "0.01", "0.04"},
		{"fractional percent", "2.9", "49.99", "1.45", "48.54"},
		{"zero percent", "0", "75.50", "0.00", "75.50"},
		{"full fee", "100", "12.34", "12.34", "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := FeePolicy{Percent: decimal.RequireFromString(tt.percent)}
			amount := decimal.RequireFromString(tt.amount)

			fee, seller := policy.Split(amount)

			assert.Equal(t, tt.wantFee, fee.StringFixed(2))
			assert.Equal(t, tt.wantSeller, seller.StringFixed(2))
			assert.True(t, fee.Add(seller).Equal(amount), "fee + seller must equal amount")
		})
	}
}

func TestToPaymentStatus(t *testing.T) {
	status, err := ToPaymentStatus("succeeded")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusSucceeded, status)

	_, err = ToPaymentStatus("SUCCEEDED")
	assert.Error(t, err)

	_, err = ToPaymentStatus("paid")
	assert.Error(t, err)
}

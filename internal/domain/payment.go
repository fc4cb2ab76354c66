package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSucceeded  PaymentStatus = "succeeded"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

var validPaymentStatuses = map[PaymentStatus]struct{}{
	PaymentStatusPending:    {},
	PaymentStatusProcessing: {},
	PaymentStatusSucceeded:  {},
	PaymentStatusFailed:     {},
	PaymentStatusRefunded:   {},
	PaymentStatusCancelled:  {},
}

func ToPaymentStatus(s string) (PaymentStatus, error) {
	status := PaymentStatus(s)
	if _, ok := validPaymentStatuses[status]; ok {
		return status, nil
	}

	return "", errors.New("invalid payment status")
}

// Payment tracks the external settlement of one order's funds, one-to-one
// with the order. Gateway reference ids are populated progressively as the
// provider reports settlement legs. Invariant:
// Amount = MarketplaceFee + SellerAmount at two decimal places.
type Payment struct {
	ID              uuid.UUID         `json:"id"`
	OrderID         uuid.UUID         `json:"order_id"`
	SellerID        uuid.UUID         `json:"seller_id"`
	Amount          decimal.Decimal   `json:"amount"`
	MarketplaceFee  decimal.Decimal   `json:"marketplace_fee"`
	SellerAmount    decimal.Decimal   `json:"seller_amount"`
	Status          PaymentStatus     `json:"status"`
	PaymentIntentID string            `json:"payment_intent_id,omitempty"`
	ChargeID        string            `json:"charge_id,omitempty"`
	TransferID      string            `json:"transfer_id,omitempty"`
	FailureMessage  string            `json:"failure_message,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	PaidAt          *time.Time        `json:"paid_at,omitempty"`
}

// FeePolicy is the marketplace commission applied to each payment. It is
// passed into the payments service explicitly; core logic never reads
// ambient configuration.
type FeePolicy struct {
	Percent decimal.Decimal
}

// Split computes the fee first and assigns the exact remainder to the
// seller, so the two parts always sum to amount with no rounding drift.
func (p FeePolicy) Split(amount decimal.Decimal) (fee, seller decimal.Decimal) {
	fee = amount.Mul(p.Percent).Div(decimal.NewFromInt(100)).Round(2)
	seller = amount.Sub(fee)
	return fee, seller
}

// Package gateway defines the contract between the payment core and the
// external payment provider. The core never talks to a provider SDK
// directly; it creates fund reservations and parses signed webhook events
// through this interface.
package gateway

import (
	"context"
	"errors"
)

var (
	// ErrInvalidSignature means the webhook payload could not be
	// authenticated. This is a security boundary: callers must reject the
	// delivery without touching any state.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	ErrInvalidPayload = errors.New("invalid webhook payload")
)

type EventType string

const (
	EventPaymentSucceeded EventType = "payment_succeeded"
	EventPaymentFailed    EventType = "payment_failed"
	EventChargeRefunded   EventType = "charge_refunded"
	EventUnknown          EventType = "unknown"
)

// Event is a provider notification normalized to the core's vocabulary.
// Settlement-leg identifiers are optional; providers populate them
// progressively.
type Event struct {
	Type           EventType
	IntentID       string
	ChargeID       string
	TransferID     string
	FailureMessage string
}

// Intent is a fund reservation held by the provider. ClientSecret is
// handed to the buyer's browser to confirm the payment.
type Intent struct {
	ID           string
	ClientSecret string
}

// IntentParams describes the reservation: the full amount is charged to
// the buyer, the application fee stays with the marketplace, and the
// remainder is transferred to the seller's payout account.
type IntentParams struct {
	AmountCents         int64
	Currency            string
	DestinationAccount  string
	ApplicationFeeCents int64
	Metadata            map[string]string
}

type Gateway interface {
	CreateIntent(ctx context.Context, params IntentParams) (*Intent, error)

	// ParseEvent authenticates a raw webhook delivery against the shared
	// signing secret and normalizes it. ErrInvalidSignature or
	// ErrInvalidPayload mean the delivery must be rejected outright.
	ParseEvent(payload []byte, signature string) (*Event, error)
}

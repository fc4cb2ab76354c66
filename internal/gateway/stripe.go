package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
)

// StripeGateway implements Gateway on Stripe Connect destination charges:
// the buyer pays the platform, Stripe transfers the seller amount to the
// connected account and keeps the application fee on the platform balance.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)

	return &StripeGateway{
		api:           api,
		webhookSecret: webhookSecret,
	}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, p IntentParams) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Params:               stripe.Params{Context: ctx},
		Amount:               stripe.Int64(p.AmountCents),
		Currency:             stripe.String(p.Currency),
		PaymentMethodTypes:   stripe.StringSlice([]string{"card"}),
		ApplicationFeeAmount: stripe.Int64(p.ApplicationFeeCents),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(p.DestinationAccount),
		},
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *StripeGateway) ParseEvent(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	switch string(event.Type) {
	case "payment_intent.succeeded":
		pi, err := unmarshalIntent(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		out := &Event{Type: EventPaymentSucceeded, IntentID: pi.ID}
		if pi.LatestCharge != nil {
			out.ChargeID = pi.LatestCharge.ID
			if pi.LatestCharge.Transfer != nil {
				out.TransferID = pi.LatestCharge.Transfer.ID
			}
		}
		return out, nil

	case "payment_intent.payment_failed":
		pi, err := unmarshalIntent(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		out := &Event{Type: EventPaymentFailed, IntentID: pi.ID}
		if pi.LastPaymentError != nil {
			out.FailureMessage = pi.LastPaymentError.Msg
		}
		return out, nil

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, err)
		}
		out := &Event{Type: EventChargeRefunded, ChargeID: ch.ID}
		if ch.PaymentIntent != nil {
			out.IntentID = ch.PaymentIntent.ID
		}
		return out, nil

	default:
		return &Event{Type: EventUnknown}, nil
	}
}

func unmarshalIntent(raw json.RawMessage) (*stripe.PaymentIntent, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}
	return &pi, nil
}

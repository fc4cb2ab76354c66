package payments

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MarcelReig/mitaller/internal/domain"
	"github.com/MarcelReig/mitaller/internal/gateway"
)

// action is the reconciler's decision for one gateway event against the
// payment's current status.
type action int

const (
	actionNone action = iota
	actionSucceed
	actionFail
	actionRefund
)

// decide maps (current status, event type) to the state change to apply.
// SUCCEEDED is a ratchet: a late or out-of-order failure event never
// downgrades it, and only a refund moves it forward. Repeat deliveries of
// the same event decide actionNone, which makes Apply idempotent.
func decide(current domain.PaymentStatus, ev gateway.EventType) action {
	switch ev {
	case gateway.EventPaymentSucceeded:
		if current == domain.PaymentStatusSucceeded || current == domain.PaymentStatusRefunded {
			return actionNone
		}
		return actionSucceed
	case gateway.EventPaymentFailed:
		switch current {
		case domain.PaymentStatusSucceeded, domain.PaymentStatusRefunded, domain.PaymentStatusFailed:
			return actionNone
		}
		return actionFail
	case gateway.EventChargeRefunded:
		if current == domain.PaymentStatusSucceeded {
			return actionRefund
		}
		return actionNone
	}
	return actionNone
}

// Reconciler applies verified gateway events to payment and order state.
// Each event is applied in one transaction under a row lock on the
// payment, so concurrent deliveries of the same event serialize and the
// second one becomes a no-op.
type Reconciler struct {
	db     *sql.DB
	repo   *Repository
	logger *slog.Logger

	applied metric.Int64Counter
}

func NewReconciler(db *sql.DB, repo *Repository, logger *slog.Logger) *Reconciler {
	meter := otel.Meter("payments")
	applied, err := meter.Int64Counter("payments.webhook.events",
		metric.WithDescription("Number of gateway webhook events processed, by outcome"))
	if err != nil {
		logger.Warn("failed to create webhook events counter", "error", err)
	}

	return &Reconciler{
		db:      db,
		repo:    repo,
		logger:  logger,
		applied: applied,
	}
}

// Apply reconciles one normalized gateway event. Events that reference no
// known payment are logged and dropped; the delivery is still
// acknowledged so the provider stops retrying. On a genuine transition to
// SUCCEEDED it returns a PaymentSucceededEvent for the caller to publish
// after commit.
func (r *Reconciler) Apply(ctx context.Context, ev *gateway.Event) (_ *domain.PaymentSucceededEvent, txErr error) {
	if ev.Type == gateway.EventUnknown {
		r.count(ctx, "ignored")
		return nil, nil
	}
	if ev.IntentID == "" {
		r.logger.Warn("gateway event without intent reference", "type", ev.Type)
		r.count(ctx, "dropped")
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if txErr != nil {
			_ = tx.Rollback()
		}
	}()

	payment, err := r.repo.ForUpdateByIntentID(ctx, tx, ev.IntentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		_ = tx.Rollback()
		r.logger.Warn("gateway event for unknown payment intent",
			"type", ev.Type, "payment_intent_id", ev.IntentID)
		r.count(ctx, "dropped")
		return nil, nil
	}

	act := decide(payment.Status, ev.Type)
	if act == actionNone {
		_ = tx.Rollback()
		r.logger.Info("gateway event is a no-op",
			"type", ev.Type, "payment_id", payment.ID, "status", payment.Status)
		r.count(ctx, "noop")
		return nil, nil
	}

	var event *domain.PaymentSucceededEvent

	switch act {
	case actionSucceed:
		now := time.Now().UTC()
		_, err = tx.ExecContext(ctx, `
			UPDATE payments
			SET status = $2, paid_at = $3,
			    charge_id = COALESCE(NULLIF($4, ''), charge_id),
			    transfer_id = COALESCE(NULLIF($5, ''), transfer_id),
			    failure_message = '', updated_at = NOW()
			WHERE id = $1
		`, payment.ID, domain.PaymentStatusSucceeded, now, ev.ChargeID, ev.TransferID)
		if err != nil {
			return nil, fmt.Errorf("mark payment succeeded: %w", err)
		}

		// A paid order that was still awaiting payment moves into
		// fulfillment; later statuses are left alone.
		var orderNumber, customerEmail string
		err = tx.QueryRowContext(ctx, `
			UPDATE orders
			SET payment_status = $2,
			    status = CASE WHEN status = $3 THEN $4 ELSE status END,
			    updated_at = NOW()
			WHERE id = $1
			RETURNING order_number, customer_email
		`, payment.OrderID, domain.PaymentStatusSucceeded,
			domain.OrderStatusPending, domain.OrderStatusProcessing).
			Scan(&orderNumber, &customerEmail)
		if err != nil {
			return nil, fmt.Errorf("mark order paid: %w", err)
		}

		event = &domain.PaymentSucceededEvent{
			PaymentID:     payment.ID,
			OrderID:       payment.OrderID,
			OrderNumber:   orderNumber,
			CustomerEmail: customerEmail,
			Amount:        payment.Amount.StringFixed(2),
			Timestamp:     now,
		}

	case actionFail:
		_, err = tx.ExecContext(ctx, `
			UPDATE payments
			SET status = $2, failure_message = $3, updated_at = NOW()
			WHERE id = $1
		`, payment.ID, domain.PaymentStatusFailed, ev.FailureMessage)
		if err != nil {
			return nil, fmt.Errorf("mark payment failed: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE orders
			SET payment_status = $2, updated_at = NOW()
			WHERE id = $1
		`, payment.OrderID, domain.PaymentStatusFailed)
		if err != nil {
			return nil, fmt.Errorf("mark order payment failed: %w", err)
		}

	case actionRefund:
		_, err = tx.ExecContext(ctx, `
			UPDATE payments
			SET status = $2, updated_at = NOW()
			WHERE id = $1
		`, payment.ID, domain.PaymentStatusRefunded)
		if err != nil {
			return nil, fmt.Errorf("mark payment refunded: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE orders
			SET payment_status = $2, updated_at = NOW()
			WHERE id = $1
		`, payment.OrderID, domain.PaymentStatusRefunded)
		if err != nil {
			return nil, fmt.Errorf("mark order refunded: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	r.logger.Info("gateway event applied",
		"type", ev.Type,
		"payment_id", payment.ID,
		"order_id", payment.OrderID,
		"from", payment.Status)
	r.count(ctx, "applied")

	return event, nil
}

func (r *Reconciler) count(ctx context.Context, outcome string) {
	if r.applied == nil {
		return
	}
	r.applied.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

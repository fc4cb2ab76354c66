// Package worker turns domain events into customer notifications. It is
// deliberately thin: all state lives in the API service, the worker only
// renders and forwards emails.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MarcelReig/mitaller/internal/domain"
)

type Notifier struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewNotifier(emailServiceURL string, client *http.Client, logger *slog.Logger) *Notifier {
	return &Notifier{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

func (n *Notifier) HandleOrderPlaced(ctx context.Context, payload []byte) error {
	var event domain.OrderPlacedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order placed event: %w", err)
	}

	n.logger.Info("processing order placed event",
		"order_id", event.OrderID, "order_number", event.OrderNumber)

	err := n.sendEmail(ctx, map[string]string{
		"to":      event.CustomerEmail,
		"subject": "Order received: " + event.OrderNumber,
		"body": fmt.Sprintf("We received your order %s (%d items, %s EUR). We will confirm it once the payment completes.",
			event.OrderNumber, event.ItemCount, event.TotalAmount),
	})
	if err != nil {
		return fmt.Errorf("send order placed email: %w", err)
	}

	return nil
}

func (n *Notifier) HandleOrderCancelled(ctx context.Context, payload []byte) error {
	var event domain.OrderCancelledEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order cancelled event: %w", err)
	}

	n.logger.Info("processing order cancelled event",
		"order_id", event.OrderID, "order_number", event.OrderNumber)

	err := n.sendEmail(ctx, map[string]string{
		"to":      event.CustomerEmail,
		"subject": "Order cancelled: " + event.OrderNumber,
		"body": fmt.Sprintf("Your order %s has been cancelled. If it was already paid you will be reimbursed.",
			event.OrderNumber),
	})
	if err != nil {
		return fmt.Errorf("send order cancelled email: %w", err)
	}

	return nil
}

func (n *Notifier) HandlePaymentSucceeded(ctx context.Context, payload []byte) error {
	var event domain.PaymentSucceededEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal payment succeeded event: %w", err)
	}

	n.logger.Info("processing payment succeeded event",
		"order_id", event.OrderID, "order_number", event.OrderNumber, "payment_id", event.PaymentID)

	err := n.sendEmail(ctx, map[string]string{
		"to":      event.CustomerEmail,
		"subject": "Payment received: " + event.OrderNumber,
		"body": fmt.Sprintf("We received your payment of %s EUR for order %s. Your order is now being prepared.",
			event.Amount, event.OrderNumber),
	})
	if err != nil {
		return fmt.Errorf("send payment succeeded email: %w", err)
	}

	return nil
}

func (n *Notifier) sendEmail(ctx context.Context, body map[string]string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}

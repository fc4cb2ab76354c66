package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/MarcelReig/mitaller/internal/domain"
	"github.com/MarcelReig/mitaller/internal/gateway"
	"github.com/MarcelReig/mitaller/internal/orders"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrAlreadyPaid    = errors.New("this order is already paid")
	ErrNoItems        = errors.New("order has no items")
	ErrMixedSellers   = errors.New("order spans multiple sellers")
	ErrSellerNotReady = errors.New("seller cannot receive payments")

	// ErrGateway wraps provider failures. The payment is marked FAILED, the
	// order stays unpaid, and the caller may retry the session.
	ErrGateway = errors.New("payment gateway error")
)

// Session is what the storefront needs to collect the payment in the
// buyer's browser.
type Session struct {
	PaymentID       uuid.UUID `json:"payment_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	ClientSecret    string    `json:"client_secret"`
}

// Service creates checkout sessions: it validates payment eligibility,
// splits the order total into marketplace fee and seller amount, records
// the payment locally and reserves the funds at the gateway.
type Service struct {
	repo    *Repository
	orders  *orders.Repository
	gateway gateway.Gateway
	fees    domain.FeePolicy
	logger  *slog.Logger

	sessions metric.Int64Counter
}

func NewService(repo *Repository, ordersRepo *orders.Repository, gw gateway.Gateway, fees domain.FeePolicy, logger *slog.Logger) *Service {
	meter := otel.Meter("payments")
	sessions, err := meter.Int64Counter("payments.sessions.created",
		metric.WithDescription("Number of checkout sessions created"))
	if err != nil {
		logger.Warn("failed to create sessions counter", "error", err)
	}

	return &Service{
		repo:     repo,
		orders:   ordersRepo,
		gateway:  gw,
		fees:     fees,
		logger:   logger,
		sessions: sessions,
	}
}

// CreateCheckoutSession reserves the order's funds at the gateway with a
// destination split toward the seller's payout account. The local payment
// row is committed before the external call; if the gateway rejects it,
// the row is marked FAILED and the same order can be retried, reusing the
// row.
func (s *Service) CreateCheckoutSession(ctx context.Context, orderID uuid.UUID) (*Session, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.IsPaid() {
		return nil, ErrAlreadyPaid
	}
	if len(order.Items) == 0 {
		return nil, ErrNoItems
	}

	sellerID := order.Items[0].SellerID
	for _, item := range order.Items[1:] {
		if item.SellerID != sellerID {
			return nil, ErrMixedSellers
		}
	}

	seller, err := s.orders.GetSeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if seller == nil || !seller.PaymentsEnabled || seller.StripeAccountID == "" {
		return nil, ErrSellerNotReady
	}

	fee, sellerAmount := s.fees.Split(order.TotalAmount)

	payment, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch {
	case payment == nil:
		payment = &domain.Payment{
			ID:             uuid.New(),
			OrderID:        order.ID,
			SellerID:       sellerID,
			Amount:         order.TotalAmount,
			MarketplaceFee: fee,
			SellerAmount:   sellerAmount,
			Status:         domain.PaymentStatusPending,
			Metadata: map[string]string{
				"order_number": order.OrderNumber,
			},
			CreatedAt: time.Now().UTC(),
		}
		if err := s.repo.Create(ctx, payment); err != nil {
			return nil, err
		}
	case payment.Status == domain.PaymentStatusSucceeded || payment.Status == domain.PaymentStatusRefunded:
		return nil, ErrAlreadyPaid
	default:
		// Retry after a failed or abandoned session: reuse the row, the
		// order keeps its one-to-one payment.
		payment.Amount = order.TotalAmount
		payment.MarketplaceFee = fee
		payment.SellerAmount = sellerAmount
		if err := s.repo.Reset(ctx, payment); err != nil {
			return nil, err
		}
	}

	intent, err := s.gateway.CreateIntent(ctx, gateway.IntentParams{
		AmountCents:         toCents(order.TotalAmount),
		Currency:            "eur",
		DestinationAccount:  seller.StripeAccountID,
		ApplicationFeeCents: toCents(fee),
		Metadata: map[string]string{
			"order_id":     order.ID.String(),
			"order_number": order.OrderNumber,
			"payment_id":   payment.ID.String(),
		},
	})
	if err != nil {
		if markErr := s.repo.MarkFailed(ctx, payment.ID, err.Error()); markErr != nil {
			s.logger.Error("failed to mark payment failed", "error", markErr, "payment_id", payment.ID)
		}
		s.logger.Error("gateway rejected checkout session",
			"error", err, "order_id", order.ID, "payment_id", payment.ID)
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	if err := s.repo.SetIntentID(ctx, payment.ID, intent.ID); err != nil {
		return nil, err
	}

	if s.sessions != nil {
		s.sessions.Add(ctx, 1)
	}
	s.logger.Info("checkout session created",
		"order_id", order.ID,
		"payment_id", payment.ID,
		"payment_intent_id", intent.ID,
		"amount", order.TotalAmount,
		"marketplace_fee", fee,
		"seller_amount", sellerAmount)

	return &Session{
		PaymentID:       payment.ID,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
	}, nil
}

// toCents converts an exact decimal amount to the gateway's integer
// minor-unit representation.
func toCents(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}

package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/MarcelReig/mitaller/internal/domain"
	"github.com/MarcelReig/mitaller/internal/inventory"
)

// maxOrderNumberAttempts bounds the retry loop on order-number collisions.
// A collision needs two checkouts drawing the same 6 random characters on
// the same day, so one retry is already generous.
const maxOrderNumberAttempts = 5

var meter = otel.Meter("checkout")

type CartLine struct {
	ProductID uuid.UUID
	Quantity  int
}

type PlaceOrderInput struct {
	CustomerEmail      string
	CustomerName       string
	CustomerPhone      string
	ShippingAddress    string
	ShippingCity       string
	ShippingPostalCode string
	ShippingCountry    string
	Lines              []CartLine
	Notes              string
}

// Service turns a cart into a durable order: it re-validates every line
// against current stock, snapshots product data onto the items, decrements
// inventory and creates the aggregate, all in one transaction.
type Service struct {
	db        *sql.DB
	inventory *inventory.Repository
	logger    *slog.Logger
	placed    metric.Int64Counter
}

func NewService(db *sql.DB, inv *inventory.Repository, logger *slog.Logger) (*Service, error) {
	placed, err := meter.Int64Counter("checkout.orders.placed",
		metric.WithDescription("Number of orders successfully placed"),
	)
	if err != nil {
		return nil, fmt.Errorf("create orders placed counter: %w", err)
	}

	return &Service{
		db:        db,
		inventory: inv,
		logger:    logger,
		placed:    placed,
	}, nil
}

// PlaceOrder executes the checkout as a single atomic unit: either the
// order, all its items and all stock decrements are committed together, or
// nothing is. Validation and stock failures surface as FieldErrors before
// the caller sees any partial state.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*domain.Order, error) {
	if errs := validate(in); len(errs) > 0 {
		return nil, errs
	}

	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		order, err := s.placeOnce(ctx, in)
		if err != nil {
			if isOrderNumberCollision(err) {
				s.logger.Warn("order number collision, retrying", "attempt", attempt+1)
				continue
			}
			return nil, err
		}

		s.placed.Add(ctx, 1)
		return order, nil
	}

	return nil, errors.New("could not allocate a unique order number")
}

func (s *Service) placeOnce(ctx context.Context, in PlaceOrderInput) (_ *domain.Order, txErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if txErr != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	order := &domain.Order{
		ID:                 uuid.New(),
		OrderNumber:        domain.NewOrderNumber(now),
		CustomerEmail:      in.CustomerEmail,
		CustomerName:       in.CustomerName,
		CustomerPhone:      in.CustomerPhone,
		ShippingAddress:    in.ShippingAddress,
		ShippingCity:       in.ShippingCity,
		ShippingPostalCode: in.ShippingPostalCode,
		ShippingCountry:    in.ShippingCountry,
		Status:             domain.OrderStatusPending,
		PaymentStatus:      domain.PaymentStatusPending,
		Notes:              in.Notes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if order.ShippingCountry == "" {
		order.ShippingCountry = "España"
	}

	total := decimal.Zero
	for _, line := range in.Lines {
		product, err := s.inventory.ProductForUpdate(ctx, tx, line.ProductID)
		if err != nil {
			if errors.Is(err, inventory.ErrProductNotFound) {
				return nil, FieldErrors{"items": fmt.Sprintf("product %s does not exist", line.ProductID)}
			}
			return nil, fmt.Errorf("read product %s: %w", line.ProductID, err)
		}

		if !product.Sellable() {
			return nil, FieldErrors{"items": fmt.Sprintf("product %q is not available for purchase", product.Name)}
		}

		if err := s.inventory.Decrement(ctx, tx, product.ID, line.Quantity); err != nil {
			if errors.Is(err, inventory.ErrInsufficientStock) {
				return nil, FieldErrors{
					"quantity": fmt.Sprintf("insufficient stock for %q, available: %d", product.Name, product.Stock),
				}
			}
			return nil, fmt.Errorf("decrement stock for product %s: %w", product.ID, err)
		}

		item := domain.OrderItem{
			ID:           uuid.New(),
			OrderID:      order.ID,
			ProductID:    product.ID,
			SellerID:     product.SellerID,
			ProductName:  product.Name,
			ProductPrice: product.Price,
			Quantity:     line.Quantity,
			CreatedAt:    now,
		}
		item.Subtotal = item.ComputeSubtotal()

		order.Items = append(order.Items, item)
		total = total.Add(item.Subtotal)
	}

	order.TotalAmount = total

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, order_number, customer_email, customer_name, customer_phone,
			shipping_address, shipping_city, shipping_postal_code, shipping_country,
			status, payment_status, total_amount, notes, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
	`, order.ID, order.OrderNumber, order.CustomerEmail, order.CustomerName, order.CustomerPhone,
		order.ShippingAddress, order.ShippingCity, order.ShippingPostalCode, order.ShippingCountry,
		order.Status, order.PaymentStatus, order.TotalAmount, order.Notes, now)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id, seller_id,
				product_name, product_price, quantity, subtotal, created_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, item.ID, item.OrderID, item.ProductID, item.SellerID,
			item.ProductName, item.ProductPrice, item.Quantity, item.Subtotal, item.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit checkout: %w", err)
	}

	return order, nil
}

func validate(in PlaceOrderInput) FieldErrors {
	errs := FieldErrors{}

	if _, err := mail.ParseAddress(in.CustomerEmail); err != nil {
		errs["customer_email"] = "a valid email address is required"
	}
	if in.CustomerName == "" {
		errs["customer_name"] = "customer name is required"
	}
	if in.ShippingAddress == "" {
		errs["shipping_address"] = "shipping address is required"
	}
	if in.ShippingCity == "" {
		errs["shipping_city"] = "shipping city is required"
	}
	if in.ShippingPostalCode == "" {
		errs["shipping_postal_code"] = "shipping postal code is required"
	}

	if len(in.Lines) == 0 {
		errs["items"] = "order must contain at least one item"
		return errs
	}

	for _, line := range in.Lines {
		if line.ProductID == uuid.Nil {
			errs["items"] = "every item needs a product id"
		}
		if line.Quantity < 1 {
			errs["quantity"] = "quantity must be at least 1"
		}
	}

	return errs
}

func isOrderNumberCollision(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" && pqErr.Constraint == "orders_order_number_key"
	}
	return false
}

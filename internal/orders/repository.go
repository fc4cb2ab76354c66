package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/MarcelReig/mitaller/internal/domain"
)

// DBTX is satisfied by *sql.DB and *sql.Tx so reads can join a caller's
// transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const orderColumns = `
	id, order_number, customer_email, customer_name, customer_phone,
	shipping_address, shipping_city, shipping_postal_code, shipping_country,
	status, payment_status, total_amount, notes, created_at, updated_at
`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func scanOrder(row interface{ Scan(dest ...any) error }, order *domain.Order) error {
	return row.Scan(
		&order.ID, &order.OrderNumber, &order.CustomerEmail, &order.CustomerName, &order.CustomerPhone,
		&order.ShippingAddress, &order.ShippingCity, &order.ShippingPostalCode, &order.ShippingCountry,
		&order.Status, &order.PaymentStatus, &order.TotalAmount, &order.Notes,
		&order.CreatedAt, &order.UpdatedAt,
	)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order := &domain.Order{}

	err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id), order)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	items, err := r.Items(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

// Items loads the line items of one order, oldest first.
func (r *Repository) Items(ctx context.Context, q DBTX, orderID uuid.UUID) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, seller_id,
		       product_name, product_price, quantity, subtotal, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.SellerID,
			&item.ProductName, &item.ProductPrice, &item.Quantity, &item.Subtotal, &item.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// ListFilter narrows the order listing; zero values mean no filtering.
type ListFilter struct {
	Status        domain.OrderStatus
	CustomerEmail string
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR customer_email = $2)
		ORDER BY created_at DESC
	`, string(filter.Status), filter.CustomerEmail)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[uuid.UUID]*domain.Order)
	var orderIDs []uuid.UUID

	for rows.Next() {
		var order domain.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, err
		}
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	ids := make([]string, len(orderIDs))
	for i, id := range orderIDs {
		ids[i] = id.String()
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, seller_id,
		       product_name, product_price, quantity, subtotal, created_at
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY created_at
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var item domain.OrderItem
		if err := itemRows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.SellerID,
			&item.ProductName, &item.ProductPrice, &item.Quantity, &item.Subtotal, &item.CreatedAt,
		); err != nil {
			return nil, err
		}
		order := orderMap[item.OrderID]
		order.Items = append(order.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// ListSellerItems is the seller ledger: every line item sold by one seller,
// newest first, independent of which order it belongs to.
func (r *Repository) ListSellerItems(ctx context.Context, sellerID uuid.UUID) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, seller_id,
		       product_name, product_price, quantity, subtotal, created_at
		FROM order_items
		WHERE seller_id = $1
		ORDER BY created_at DESC
	`, sellerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := []domain.OrderItem{}
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.SellerID,
			&item.ProductName, &item.ProductPrice, &item.Quantity, &item.Subtotal, &item.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// GetSeller reads the selling party referenced by order items and payments.
func (r *Repository) GetSeller(ctx context.Context, sellerID uuid.UUID) (*domain.Seller, error) {
	seller := &domain.Seller{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, display_name, stripe_account_id, payments_enabled
		FROM sellers
		WHERE id = $1
	`, sellerID).Scan(&seller.ID, &seller.DisplayName, &seller.StripeAccountID, &seller.PaymentsEnabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return seller, nil
}

// forUpdate reads an order's mutable head under a row lock inside a
// transaction.
func (r *Repository) forUpdate(ctx context.Context, q DBTX, orderID uuid.UUID) (*domain.Order, error) {
	order := &domain.Order{}

	err := scanOrder(q.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, orderID), order)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock order %s: %w", orderID, err)
	}

	return order, nil
}

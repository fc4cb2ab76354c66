package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MarcelReig/mitaller/internal/domain"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrProductNotFound   = errors.New("product not found")
)

// DBTX is satisfied by *sql.DB and *sql.Tx. Checkout and cancellation run
// the stock mutations inside their own transactions, so every method takes
// the executor explicitly.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository mutates the catalog's per-product stock counter. It is the
// only write path into that counter besides the catalog service itself:
// checkout decrements, cancellation restores.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// ProductForUpdate reads a product row under a row lock so the sellable
// check and the decrement that follows see the same stock value even under
// concurrent checkouts.
func (r *Repository) ProductForUpdate(ctx context.Context, q DBTX, productID uuid.UUID) (*domain.Product, error) {
	product := &domain.Product{}

	err := q.QueryRowContext(ctx, `
		SELECT id, seller_id, name, price, stock, is_active
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, productID).Scan(&product.ID, &product.SellerID, &product.Name, &product.Price, &product.Stock, &product.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	return product, nil
}

// Decrement reserves quantity units of stock. The conditional update is the
// overselling guard: two concurrent checkouts racing for the last unit
// cannot both pass `stock >= quantity`.
func (r *Repository) Decrement(ctx context.Context, q DBTX, productID uuid.UUID, quantity int) error {
	result, err := q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
	`, productID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrInsufficientStock
	}

	return nil
}

// Restore credits quantity units back, compensating a decrement after a
// cancellation or an item removal.
func (r *Repository) Restore(ctx context.Context, q DBTX, productID uuid.UUID, quantity int) error {
	result, err := q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2
		WHERE id = $1
	`, productID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("restore stock for product %s: %w", productID, ErrProductNotFound)
	}

	return nil
}

// GetStock reads the current counter outside of any transaction.
func (r *Repository) GetStock(ctx context.Context, q DBTX, productID uuid.UUID) (int, error) {
	var stock int

	err := q.QueryRowContext(ctx, `
		SELECT stock FROM products WHERE id = $1
	`, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrProductNotFound
		}
		return 0, err
	}

	return stock, nil
}

package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MarcelReig/mitaller/internal/domain"
	"github.com/MarcelReig/mitaller/internal/inventory"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrItemNotFound   = errors.New("order item not found")
	ErrSellerNotFound = errors.New("seller not found")

	// ErrSellerHasCompletedOrders blocks the administrative seller cascade
	// while delivered orders reference the seller; those rows are audit
	// records and must outlive the account.
	ErrSellerHasCompletedOrders = errors.New("seller has completed orders and cannot be deleted")
)

// Service owns order status changes and the compensating stock effects
// they trigger. Stock restoration runs in the same transaction as the
// status write, guarded by a compare-and-swap on the previous status, so a
// cancellation restores inventory exactly once however many times the
// order is saved afterwards.
type Service struct {
	db        *sql.DB
	repo      *Repository
	inventory *inventory.Repository
	logger    *slog.Logger
}

func NewService(db *sql.DB, repo *Repository, inv *inventory.Repository, logger *slog.Logger) *Service {
	return &Service{
		db:        db,
		repo:      repo,
		inventory: inv,
		logger:    logger,
	}
}

// UpdateStatus applies one state-machine transition. On a genuine
// transition into CANCELLED it restores every item's stock and returns an
// OrderCancelledEvent for the caller to publish after commit.
func (s *Service) UpdateStatus(ctx context.Context, orderID uuid.UUID, next domain.OrderStatus) (_ *domain.Order, _ *domain.OrderCancelledEvent, txErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if txErr != nil {
			_ = tx.Rollback()
		}
	}()

	order, err := s.repo.forUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if order == nil {
		return nil, nil, ErrOrderNotFound
	}

	result, err := domain.Transition(order.Status, next)
	if err != nil {
		return nil, nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, orderID, result.To, result.From)
	if err != nil {
		return nil, nil, fmt.Errorf("update order status: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return nil, nil, err
	}
	if rowsAffected == 0 {
		return nil, nil, fmt.Errorf("order %s status changed concurrently", orderID)
	}

	if result.RestoreStock {
		items, err := s.repo.Items(ctx, tx, orderID)
		if err != nil {
			return nil, nil, fmt.Errorf("load items for restock: %w", err)
		}
		for _, item := range items {
			if err := s.inventory.Restore(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return nil, nil, fmt.Errorf("restore stock: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	updated, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	var event *domain.OrderCancelledEvent
	if result.RestoreStock {
		event = &domain.OrderCancelledEvent{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			CustomerEmail: order.CustomerEmail,
			Timestamp:     time.Now().UTC(),
		}
		s.logger.Info("order cancelled, stock restored",
			"order_id", order.ID, "order_number", order.OrderNumber, "from", result.From)
	}

	return updated, event, nil
}

// DeleteItem removes one line item outside of a full-order cancellation
// (administrative correction), restoring its stock and recomputing the
// order total from the surviving items.
func (s *Service) DeleteItem(ctx context.Context, orderID, itemID uuid.UUID) (_ *domain.Order, txErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if txErr != nil {
			_ = tx.Rollback()
		}
	}()

	var productID uuid.UUID
	var quantity int
	err = tx.QueryRowContext(ctx, `
		SELECT product_id, quantity
		FROM order_items
		WHERE id = $1 AND order_id = $2
		FOR UPDATE
	`, itemID, orderID).Scan(&productID, &quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	if err := s.inventory.Restore(ctx, tx, productID, quantity); err != nil {
		return nil, fmt.Errorf("restore stock: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE id = $1`, itemID); err != nil {
		return nil, fmt.Errorf("delete order item: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET total_amount = COALESCE((SELECT SUM(subtotal) FROM order_items WHERE order_id = $1), 0),
		    updated_at = NOW()
		WHERE id = $1
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("recompute order total: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("order item removed, stock restored",
		"order_id", orderID, "item_id", itemID, "product_id", productID, "quantity", quantity)

	return s.repo.GetByID(ctx, orderID)
}

// DeleteSeller is the administrative cascade: it removes a seller together
// with their catalog and their non-completed orders. It refuses to run
// while any delivered order references the seller.
func (s *Service) DeleteSeller(ctx context.Context, sellerID uuid.UUID) (txErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if txErr != nil {
			_ = tx.Rollback()
		}
	}()

	var hasCompleted bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM order_items oi
			JOIN orders o ON o.id = oi.order_id
			WHERE oi.seller_id = $1 AND o.status = $2
		)
	`, sellerID, domain.OrderStatusDelivered).Scan(&hasCompleted)
	if err != nil {
		return err
	}
	if hasCompleted {
		return ErrSellerHasCompletedOrders
	}

	// Payments and orders reference the seller with delete-protect
	// constraints; the cascade removes them oldest-dependency first.
	if _, err := tx.ExecContext(ctx, `DELETE FROM payments WHERE seller_id = $1`, sellerID); err != nil {
		return fmt.Errorf("delete seller payments: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM orders
		WHERE id IN (SELECT DISTINCT order_id FROM order_items WHERE seller_id = $1)
	`, sellerID)
	if err != nil {
		return fmt.Errorf("delete seller orders: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE seller_id = $1`, sellerID); err != nil {
		return fmt.Errorf("delete seller products: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM sellers WHERE id = $1`, sellerID)
	if err != nil {
		return fmt.Errorf("delete seller: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrSellerNotFound
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.logger.Info("seller deleted", "seller_id", sellerID)
	return nil
}

package payments

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MarcelReig/mitaller/internal/domain"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const paymentColumns = `
	id, order_id, seller_id, amount, marketplace_fee, seller_amount, status,
	payment_intent_id, charge_id, transfer_id, failure_message, metadata,
	created_at, updated_at, paid_at
`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func scanPayment(row interface{ Scan(dest ...any) error }) (*domain.Payment, error) {
	p := &domain.Payment{}
	var intentID, chargeID, transferID sql.NullString
	var metadata []byte

	err := row.Scan(
		&p.ID, &p.OrderID, &p.SellerID, &p.Amount, &p.MarketplaceFee, &p.SellerAmount, &p.Status,
		&intentID, &chargeID, &transferID, &p.FailureMessage, &metadata,
		&p.CreatedAt, &p.UpdatedAt, &p.PaidAt,
	)
	if err != nil {
		return nil, err
	}

	p.PaymentIntentID = intentID.String
	p.ChargeID = chargeID.String
	p.TransferID = transferID.String

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("decode payment metadata: %w", err)
		}
	}

	return p, nil
}

func (r *Repository) Create(ctx context.Context, p *domain.Payment) error {
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("encode payment metadata: %w", err)
	}
	if p.Metadata == nil {
		metadata = []byte("{}")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO payments (
			id, order_id, seller_id, amount, marketplace_fee, seller_amount,
			status, failure_message, metadata, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '', $8, $9, $9)
	`, p.ID, p.OrderID, p.SellerID, p.Amount, p.MarketplaceFee, p.SellerAmount,
		p.Status, metadata, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	return nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (r *Repository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE order_id = $1
	`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// ForUpdateByIntentID locks the payment row carrying a gateway reference.
// The webhook reconciler serializes event application per reference on
// this lock, so the idempotency checks are race-free.
func (r *Repository) ForUpdateByIntentID(ctx context.Context, q DBTX, intentID string) (*domain.Payment, error) {
	p, err := scanPayment(q.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE payment_intent_id = $1
		FOR UPDATE
	`, intentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// SetIntentID records the gateway's reservation reference once the
// external call has returned it.
func (r *Repository) SetIntentID(ctx context.Context, id uuid.UUID, intentID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET payment_intent_id = $2, updated_at = NOW()
		WHERE id = $1
	`, id, intentID)
	return err
}

// MarkFailed records a gateway rejection. The order stays unpaid and the
// session may be retried. A payment the reconciler has already settled is
// left untouched: failure never downgrades SUCCEEDED or REFUNDED.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, failure_message = $3, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($4, $5)
	`, id, domain.PaymentStatusFailed, message,
		domain.PaymentStatusSucceeded, domain.PaymentStatusRefunded)
	return err
}

// Reset returns an existing payment to PENDING with fresh amounts before a
// session-creation retry. The status predicate guards against the webhook
// settling the previous intent between the caller's read and this write:
// a settled payment is never knocked back, the retry fails with
// ErrAlreadyPaid instead.
func (r *Repository) Reset(ctx context.Context, p *domain.Payment) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET amount = $2, marketplace_fee = $3, seller_amount = $4,
		    status = $5, failure_message = '', updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($6, $7)
	`, p.ID, p.Amount, p.MarketplaceFee, p.SellerAmount, domain.PaymentStatusPending,
		domain.PaymentStatusSucceeded, domain.PaymentStatusRefunded)
	if err != nil {
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrAlreadyPaid
	}

	return nil
}

func (r *Repository) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE seller_id = $1
		ORDER BY created_at DESC
	`, sellerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	payments := []domain.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

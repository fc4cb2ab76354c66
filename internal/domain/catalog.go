package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the checkout core's view of a catalog product. The catalog
// collaborator owns these rows; the core only reads them and mutates the
// stock counter transactionally.
type Product struct {
	ID       uuid.UUID       `json:"id"`
	SellerID uuid.UUID       `json:"seller_id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	IsActive bool            `json:"is_active"`
}

func (p Product) Sellable() bool {
	return p.IsActive && p.Stock > 0
}

// Seller is the selling party for products and payments. PaymentsEnabled
// mirrors the gateway's onboarding state; funds can only be routed to
// sellers with the flag set.
type Seller struct {
	ID              uuid.UUID `json:"id"`
	DisplayName     string    `json:"display_name"`
	StripeAccountID string    `json:"stripe_account_id,omitempty"`
	PaymentsEnabled bool      `json:"payments_enabled"`
}

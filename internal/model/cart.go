package model

import (
	"time"

	"github.com/google/uuid"
)

// Cart is the mutable working set owned by one user. It is cleared once
// converted into an order.
type Cart struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    int64     `json:"userId" db:"user_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// CartItem is one cart line. The unit price is snapshotted when the item is
// added so checkout totals do not shift under the user.
type CartItem struct {
	ID             uuid.UUID `json:"-" db:"id"`
	CartID         uuid.UUID `json:"-" db:"cart_id"`
	ProductID      string    `json:"productId" db:"product_id"`
	Quantity       int       `json:"quantity" db:"quantity"`
	UnitPriceCents int64     `json:"unitPriceCents" db:"unit_price_cents"`
	AddedAt        time.Time `json:"addedAt" db:"added_at"`
}

// CartItemRequest is the payload for adding or updating a cart line.
type CartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// CartResponse is the cart with its lines and a running subtotal.
type CartResponse struct {
	ID            uuid.UUID  `json:"id"`
	Items         []CartItem `json:"items"`
	SubtotalCents int64      `json:"subtotalCents"`
}

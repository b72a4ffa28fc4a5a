package model

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the fulfillment state of an order.
type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusProcessing     OrderStatus = "processing"
	StatusShipped        OrderStatus = "shipped"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
	StatusReturned       OrderStatus = "returned"
	StatusRefunded       OrderStatus = "refunded"
)

// PaymentStatus tracks the money side of an order independently of fulfillment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	StatusPending:        {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:      {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing:     {StatusShipped: true, StatusCancelled: true},
	StatusShipped:        {StatusOutForDelivery: true},
	StatusOutForDelivery: {StatusDelivered: true},
	StatusDelivered:      {StatusReturned: true},
	StatusReturned:       {},
	StatusCancelled:      {},
	StatusRefunded:       {},
}

// CanTransition reports whether the status edge is in the allowed set.
// Refunded is reachable from any other state; the additional requirement
// that the order was actually paid is enforced by the workflow.
func CanTransition(from, to OrderStatus) bool {
	if to == StatusRefunded {
		return from != StatusRefunded
	}
	return validNext[from][to]
}

// Cancellable reports whether an order in this status may still be cancelled.
func (s OrderStatus) Cancellable() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusProcessing
}

// Order is the immutable-after-creation snapshot produced by checkout.
type Order struct {
	ID                  uuid.UUID     `json:"id" db:"id"`
	UserID              int64         `json:"userId" db:"user_id"`
	Status              OrderStatus   `json:"status" db:"status"`
	PaymentStatus       PaymentStatus `json:"paymentStatus" db:"payment_status"`
	CouponCode          *string       `json:"couponCode,omitempty" db:"coupon_code"`
	SubtotalCents       int64         `json:"subtotalCents" db:"subtotal_cents"`
	CouponDiscountCents int64         `json:"couponDiscountCents" db:"coupon_discount_cents"`
	PointsUsed          int64         `json:"pointsUsed" db:"points_used"`
	PointsValueCents    int64         `json:"pointsValueCents" db:"points_value_cents"`
	WalletUsedCents     int64         `json:"walletUsedCents" db:"wallet_used_cents"`
	TaxCents            int64         `json:"taxCents" db:"tax_cents"`
	ShippingCents       int64         `json:"shippingCents" db:"shipping_cents"`
	TotalCents          int64         `json:"totalCents" db:"total_cents"`
	ShippingAddress     string        `json:"shippingAddress" db:"shipping_address"`
	CancelReason        *string       `json:"cancelReason,omitempty" db:"cancel_reason"`
	CreatedAt           time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time     `json:"updatedAt" db:"updated_at"`
}

// OrderItem is one order line with product fields snapshotted at creation.
type OrderItem struct {
	ID             uuid.UUID     `json:"-" db:"id"`
	OrderID        uuid.UUID     `json:"-" db:"order_id"`
	ProductID      string        `json:"productId" db:"product_id"`
	SKU            string        `json:"sku" db:"sku"`
	Name           LocalizedText `json:"name"`
	Quantity       int           `json:"quantity" db:"quantity"`
	UnitPriceCents int64         `json:"unitPriceCents" db:"unit_price_cents"`
}

// CheckoutRequest is the payload for converting the caller's cart into an order.
type CheckoutRequest struct {
	CouponCode        *string `json:"couponCode,omitempty"`
	PointsToUse       int64   `json:"pointsToUse,omitempty"`
	WalletCentsToUse  int64   `json:"walletCentsToUse,omitempty"`
	ShippingAddress   string  `json:"shippingAddress"`
	PreferredBranchID *string `json:"preferredBranchId,omitempty"`
}

// OrderResponse is an order with its lines.
type OrderResponse struct {
	Order Order       `json:"order"`
	Items []OrderItem `json:"items"`
}

// StatusUpdateRequest is the admin payload for advancing an order.
type StatusUpdateRequest struct {
	Status OrderStatus `json:"status"`
}

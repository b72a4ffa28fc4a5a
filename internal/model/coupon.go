package model

import (
	"time"

	"github.com/google/uuid"
)

// DiscountType selects how a coupon's value is interpreted.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Coupon is a discount code with usage limits and applicability filters.
type Coupon struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	Code             string        `json:"code" db:"code"`
	Name             LocalizedText `json:"name"`
	DiscountType     DiscountType  `json:"discountType" db:"discount_type"`
	DiscountValue    int64         `json:"discountValue" db:"discount_value"`
	MaxDiscountCents *int64        `json:"maxDiscountCents,omitempty" db:"max_discount_cents"`
	MinOrderCents    int64         `json:"minOrderCents" db:"min_order_cents"`
	UsageLimit       *int          `json:"usageLimit,omitempty" db:"usage_limit"`
	UsageLimitUser   *int          `json:"usageLimitPerUser,omitempty" db:"usage_limit_per_user"`
	UsedCount        int           `json:"usedCount" db:"used_count"`
	Products         []string      `json:"products,omitempty" db:"products"`
	Categories       []string      `json:"categories,omitempty" db:"categories"`
	ExcludedProducts []string      `json:"excludedProducts,omitempty" db:"excluded_products"`
	StartsAt         time.Time     `json:"startsAt" db:"starts_at"`
	ExpiresAt        time.Time     `json:"expiresAt" db:"expires_at"`
	Active           bool          `json:"active" db:"active"`
	CreatedAt        time.Time     `json:"createdAt" db:"created_at"`
}

// Restricted reports whether the coupon carries applicability filters.
func (c *Coupon) Restricted() bool {
	return len(c.Products) > 0 || len(c.Categories) > 0
}

// CouponUsage records one successful redemption, one row per (coupon, order).
type CouponUsage struct {
	ID            uuid.UUID `json:"id" db:"id"`
	CouponID      uuid.UUID `json:"couponId" db:"coupon_id"`
	OrderID       uuid.UUID `json:"orderId" db:"order_id"`
	UserID        int64     `json:"userId" db:"user_id"`
	DiscountCents int64     `json:"discountCents" db:"discount_cents"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

// Package pricing computes order totals. The calculation order is fixed:
// subtotal, coupon discount, points redemption, wallet application, then
// tax and shipping. Running the same inputs always yields the same quote.
package pricing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"storefront/internal/config"
	"storefront/internal/model"
	"storefront/internal/repository"
)

// couponValidator is the slice of the coupon service the engine needs.
type couponValidator interface {
	Validate(ctx context.Context, q repository.Querier, code string, userID int64, subtotalCents int64, items []model.CartItem, categories map[string]string) (*model.Coupon, error)
}

// balanceReader is the slice of the ledger service the engine needs.
type balanceReader interface {
	Balance(ctx context.Context, q repository.Querier, userID int64, kind model.LedgerKind) (int64, error)
}

// Quote is a fully priced breakdown of a prospective order. PointsUsed is
// the number of points actually consumed, which may be fewer than the
// caller asked for when the order runs out of chargeable amount.
type Quote struct {
	SubtotalCents       int64         `json:"subtotal_cents"`
	CouponDiscountCents int64         `json:"coupon_discount_cents"`
	PointsUsed          int64         `json:"points_used"`
	PointsValueCents    int64         `json:"points_value_cents"`
	WalletUsedCents     int64         `json:"wallet_used_cents"`
	TaxCents            int64         `json:"tax_cents"`
	ShippingCents       int64         `json:"shipping_cents"`
	TotalCents          int64         `json:"total_cents"`
	Coupon              *model.Coupon `json:"-"`
}

// Engine prices carts into quotes.
type Engine struct {
	coupons  couponValidator
	balances balanceReader
	cfg      config.PricingConfig
	logger   zerolog.Logger
}

// NewEngine creates a new pricing engine.
func NewEngine(coupons couponValidator, balances balanceReader, cfg config.PricingConfig, logger zerolog.Logger) *Engine {
	return &Engine{
		coupons:  coupons,
		balances: balances,
		cfg:      cfg,
		logger:   logger.With().Str("service", "pricing").Logger(),
	}
}

// Quote prices the cart for the user. couponCode may be nil. pointsToUse
// and walletCentsToUse are upper bounds the user is willing to spend; the
// engine verifies both against current balances and caps each at what the
// order can absorb. categories maps product id to category for coupon
// applicability.
func (e *Engine) Quote(ctx context.Context, q repository.Querier, userID int64, items []model.CartItem, couponCode *string, pointsToUse, walletCentsToUse int64, categories map[string]string) (*Quote, error) {
	if pointsToUse < 0 || walletCentsToUse < 0 {
		return nil, model.ErrInvalidQuantity
	}

	var subtotal int64
	for _, item := range items {
		subtotal += int64(item.Quantity) * item.UnitPriceCents
	}

	quote := &Quote{
		SubtotalCents: subtotal,
		ShippingCents: e.cfg.ShippingCents,
	}

	if couponCode != nil && *couponCode != "" {
		c, err := e.coupons.Validate(ctx, q, *couponCode, userID, subtotal, items, categories)
		if err != nil {
			return nil, err
		}
		quote.Coupon = c
		quote.CouponDiscountCents = couponDiscount(c, subtotal)
	}

	// Chargeable amount before tax and shipping; points and wallet eat
	// into this, never into tax or shipping.
	running := subtotal - quote.CouponDiscountCents

	if pointsToUse > 0 {
		pointsBalance, err := e.balances.Balance(ctx, q, userID, model.LedgerPoints)
		if err != nil {
			return nil, fmt.Errorf("read points balance: %w", err)
		}
		if pointsToUse > pointsBalance {
			return nil, model.ErrInsufficientPoints
		}

		usable := running / e.cfg.PointValueCents
		if usable < pointsToUse {
			pointsToUse = usable
		}
		quote.PointsUsed = pointsToUse
		quote.PointsValueCents = pointsToUse * e.cfg.PointValueCents
		running -= quote.PointsValueCents
	}

	if walletCentsToUse > 0 {
		walletBalance, err := e.balances.Balance(ctx, q, userID, model.LedgerWallet)
		if err != nil {
			return nil, fmt.Errorf("read wallet balance: %w", err)
		}
		if walletCentsToUse > walletBalance {
			return nil, model.ErrInsufficientWallet
		}

		if walletCentsToUse > running {
			walletCentsToUse = running
		}
		quote.WalletUsedCents = walletCentsToUse
		running -= walletCentsToUse
	}

	// Tax is charged on the discounted goods value, before points and
	// wallet: those are payment methods, not discounts.
	quote.TaxCents = (subtotal - quote.CouponDiscountCents) * int64(e.cfg.TaxRateBps) / 10000

	total := running + quote.TaxCents + quote.ShippingCents
	if total < 0 {
		total = 0
	}
	quote.TotalCents = total

	e.logger.Debug().
		Int64("user_id", userID).
		Int64("subtotal_cents", quote.SubtotalCents).
		Int64("total_cents", quote.TotalCents).
		Msg("quote computed")

	return quote, nil
}

// EarnedPoints returns the loyalty points awarded for a paid order total.
func (e *Engine) EarnedPoints(totalCents int64) int64 {
	return totalCents * int64(e.cfg.EarnRateBps) / 10000 / e.cfg.PointValueCents
}

// couponDiscount computes the discount a coupon grants on a subtotal,
// capped at the coupon's maximum and at the subtotal itself.
func couponDiscount(c *model.Coupon, subtotalCents int64) int64 {
	var discount int64
	switch c.DiscountType {
	case model.DiscountPercentage:
		discount = subtotalCents * c.DiscountValue / 100
	case model.DiscountFixed:
		discount = c.DiscountValue
	}

	if c.MaxDiscountCents != nil && discount > *c.MaxDiscountCents {
		discount = *c.MaxDiscountCents
	}
	if discount > subtotalCents {
		discount = subtotalCents
	}
	if discount < 0 {
		discount = 0
	}

	return discount
}

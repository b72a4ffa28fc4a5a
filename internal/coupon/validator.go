// Package coupon implements coupon eligibility checks and usage-limit
// accounting. Validation is read-only; the usage counters are claimed in
// the same transaction that finalizes the order, so two concurrent
// checkouts cannot both pass a limit-1 coupon.
package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"storefront/internal/model"
	"storefront/internal/repository"
)

// Validator checks coupon eligibility and records redemptions.
type Validator struct {
	repo   repository.CouponRepository
	logger zerolog.Logger
}

// NewValidator creates a new coupon validator.
func NewValidator(repo repository.CouponRepository, logger zerolog.Logger) *Validator {
	return &Validator{
		repo:   repo,
		logger: logger.With().Str("service", "coupon").Logger(),
	}
}

// Validate checks a code against the user, the cart subtotal and the cart
// lines. categories maps product id to category for category-restricted
// coupons; it may be nil when no such coupons are in play.
//
// Applicability is whole-cart: a restricted coupon needs at least one
// matching line, and any excluded line disqualifies the entire cart.
func (v *Validator) Validate(ctx context.Context, q repository.Querier, code string, userID int64, subtotalCents int64, items []model.CartItem, categories map[string]string) (*model.Coupon, error) {
	c, err := v.repo.GetByCode(ctx, q, code)
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	if c == nil || !c.Active {
		return nil, model.ErrInvalidCoupon
	}

	now := time.Now()
	if now.Before(c.StartsAt) || now.After(c.ExpiresAt) {
		return nil, model.ErrCouponExpired
	}

	if subtotalCents < c.MinOrderCents {
		return nil, model.ErrCouponMinimumNotMet
	}

	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return nil, model.ErrCouponUsageLimit
	}

	if c.UsageLimitUser != nil {
		used, err := v.repo.CountUsagesByUser(ctx, q, c.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("count usages: %w", err)
		}
		if used >= *c.UsageLimitUser {
			return nil, model.ErrCouponUserLimit
		}
	}

	if !v.applicable(c, items, categories) {
		return nil, model.ErrCouponNotApplicable
	}

	return c, nil
}

// applicable applies the whole-cart policy: no line may be excluded, and a
// restricted coupon needs at least one line matching its product or
// category lists.
func (v *Validator) applicable(c *model.Coupon, items []model.CartItem, categories map[string]string) bool {
	excluded := make(map[string]bool, len(c.ExcludedProducts))
	for _, id := range c.ExcludedProducts {
		excluded[id] = true
	}
	for _, item := range items {
		if excluded[item.ProductID] {
			return false
		}
	}

	if !c.Restricted() {
		return true
	}

	allowedProducts := make(map[string]bool, len(c.Products))
	for _, id := range c.Products {
		allowedProducts[id] = true
	}
	allowedCategories := make(map[string]bool, len(c.Categories))
	for _, cat := range c.Categories {
		allowedCategories[cat] = true
	}

	for _, item := range items {
		if allowedProducts[item.ProductID] {
			return true
		}
		if len(allowedCategories) > 0 && allowedCategories[categories[item.ProductID]] {
			return true
		}
	}

	return false
}

// RecordUsage claims one redemption inside the checkout transaction. The
// conditional counter update locks the coupon row, serialising concurrent
// redemptions; the per-user limit is re-checked under that lock.
func (v *Validator) RecordUsage(ctx context.Context, q repository.Querier, c *model.Coupon, orderID uuid.UUID, userID int64, discountCents int64) error {
	ok, err := v.repo.IncrementUsage(ctx, q, c.ID)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	if !ok {
		return model.ErrCouponUsageLimit
	}

	if c.UsageLimitUser != nil {
		used, err := v.repo.CountUsagesByUser(ctx, q, c.ID, userID)
		if err != nil {
			return fmt.Errorf("count usages: %w", err)
		}
		if used >= *c.UsageLimitUser {
			return model.ErrCouponUserLimit
		}
	}

	usage := &model.CouponUsage{
		ID:            uuid.New(),
		CouponID:      c.ID,
		OrderID:       orderID,
		UserID:        userID,
		DiscountCents: discountCents,
		CreatedAt:     time.Now(),
	}

	if err := v.repo.InsertUsage(ctx, q, usage); err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}

	v.logger.Debug().
		Str("coupon", c.Code).
		Str("order_id", orderID.String()).
		Msg("coupon usage recorded")

	return nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"storefront/internal/model"
)

// couponRepository implements CouponRepository using PostgreSQL.
type couponRepository struct {
	logger zerolog.Logger
}

// NewCouponRepository creates a new PostgreSQL-backed coupon repository.
func NewCouponRepository(logger zerolog.Logger) CouponRepository {
	return &couponRepository{
		logger: logger.With().Str("repository", "coupon").Logger(),
	}
}

// GetByCode retrieves a coupon by code, or nil.
func (r *couponRepository) GetByCode(ctx context.Context, q Querier, code string) (*model.Coupon, error) {
	query := `
		SELECT id, code, name_en, name_ar, discount_type, discount_value,
		       max_discount_cents, min_order_cents, usage_limit, usage_limit_per_user,
		       used_count, products, categories, excluded_products,
		       starts_at, expires_at, active, created_at
		FROM coupons
		WHERE upper(code) = upper($1)
	`

	var c model.Coupon
	err := q.QueryRow(ctx, query, code).Scan(
		&c.ID,
		&c.Code,
		&c.Name.EN,
		&c.Name.AR,
		&c.DiscountType,
		&c.DiscountValue,
		&c.MaxDiscountCents,
		&c.MinOrderCents,
		&c.UsageLimit,
		&c.UsageLimitUser,
		&c.UsedCount,
		&c.Products,
		&c.Categories,
		&c.ExcludedProducts,
		&c.StartsAt,
		&c.ExpiresAt,
		&c.Active,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query coupon: %w", err)
	}

	return &c, nil
}

// CountUsagesByUser counts successful redemptions by one user.
func (r *couponRepository) CountUsagesByUser(ctx context.Context, q Querier, couponID uuid.UUID, userID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM coupon_usages
		WHERE coupon_id = $1 AND user_id = $2
	`

	var count int
	if err := q.QueryRow(ctx, query, couponID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count coupon usages: %w", err)
	}

	return count, nil
}

// IncrementUsage conditionally bumps used_count against usage_limit. The
// update locks the coupon row, so two concurrent checkouts cannot both
// pass a limit-1 coupon.
func (r *couponRepository) IncrementUsage(ctx context.Context, q Querier, couponID uuid.UUID) (bool, error) {
	query := `
		UPDATE coupons
		SET used_count = used_count + 1
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)
	`

	ct, err := q.Exec(ctx, query, couponID)
	if err != nil {
		return false, fmt.Errorf("failed to increment coupon usage: %w", err)
	}

	return ct.RowsAffected() == 1, nil
}

// InsertUsage records one (coupon, order) redemption.
func (r *couponRepository) InsertUsage(ctx context.Context, q Querier, usage *model.CouponUsage) error {
	query := `
		INSERT INTO coupon_usages (id, coupon_id, order_id, user_id, discount_cents, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := q.Exec(ctx, query, usage.ID, usage.CouponID, usage.OrderID, usage.UserID, usage.DiscountCents, usage.CreatedAt)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("coupon_id", usage.CouponID.String()).
			Str("order_id", usage.OrderID.String()).
			Msg("failed to insert coupon usage")
		return fmt.Errorf("failed to insert coupon usage: %w", err)
	}

	return nil
}

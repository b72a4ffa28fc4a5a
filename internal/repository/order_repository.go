package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"storefront/internal/model"
)

// orderRepository implements OrderRepository using PostgreSQL.
type orderRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool *pgxpool.Pool, logger zerolog.Logger) OrderRepository {
	return &orderRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "order").Logger(),
	}
}

// BeginTx starts a new database transaction.
func (r *orderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// Create inserts a new order row.
func (r *orderRepository) Create(ctx context.Context, q Querier, order *model.Order) error {
	query := `
		INSERT INTO orders
			(id, user_id, status, payment_status, coupon_code, subtotal_cents,
			 coupon_discount_cents, points_used, points_value_cents, wallet_used_cents,
			 tax_cents, shipping_cents, total_cents, shipping_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
	`

	_, err := q.Exec(ctx, query,
		order.ID,
		order.UserID,
		order.Status,
		order.PaymentStatus,
		order.CouponCode,
		order.SubtotalCents,
		order.CouponDiscountCents,
		order.PointsUsed,
		order.PointsValueCents,
		order.WalletUsedCents,
		order.TaxCents,
		order.ShippingCents,
		order.TotalCents,
		order.ShippingAddress,
		order.CreatedAt,
	)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Msg("failed to create order")
		return fmt.Errorf("failed to create order: %w", err)
	}

	return nil
}

// CreateItems inserts the order's lines in one batch.
func (r *orderRepository) CreateItems(ctx context.Context, q Querier, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	query := `
		INSERT INTO order_items (id, order_id, product_id, sku, name_en, name_ar, quantity, unit_price_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for _, item := range items {
		_, err := q.Exec(ctx, query,
			item.ID, item.OrderID, item.ProductID, item.SKU,
			item.Name.EN, item.Name.AR, item.Quantity, item.UnitPriceCents,
		)
		if err != nil {
			r.logger.Error().
				Err(err).
				Str("order_id", item.OrderID.String()).
				Str("product_id", item.ProductID).
				Msg("failed to create order item")
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	return nil
}

// GetByID retrieves an order with its items, or nil.
func (r *orderRepository) GetByID(ctx context.Context, q Querier, id uuid.UUID) (*model.Order, []model.OrderItem, error) {
	order, err := r.getOrder(ctx, q, id, false)
	if err != nil {
		return nil, nil, err
	}
	if order == nil {
		return nil, nil, nil
	}

	itemsQuery := `
		SELECT id, order_id, product_id, sku, name_en, name_ar, quantity, unit_price_cents
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`

	rows, err := q.Query(ctx, itemsQuery, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var item model.OrderItem
		err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.SKU,
			&item.Name.EN, &item.Name.AR, &item.Quantity, &item.UnitPriceCents,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return order, items, nil
}

// GetForUpdate retrieves and row-locks an order, or nil.
func (r *orderRepository) GetForUpdate(ctx context.Context, q Querier, id uuid.UUID) (*model.Order, error) {
	return r.getOrder(ctx, q, id, true)
}

func (r *orderRepository) getOrder(ctx context.Context, q Querier, id uuid.UUID, forUpdate bool) (*model.Order, error) {
	query := `
		SELECT id, user_id, status, payment_status, coupon_code, subtotal_cents,
		       coupon_discount_cents, points_used, points_value_cents, wallet_used_cents,
		       tax_cents, shipping_cents, total_cents, shipping_address, cancel_reason,
		       created_at, updated_at
		FROM orders
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var o model.Order
	err := q.QueryRow(ctx, query, id).Scan(
		&o.ID,
		&o.UserID,
		&o.Status,
		&o.PaymentStatus,
		&o.CouponCode,
		&o.SubtotalCents,
		&o.CouponDiscountCents,
		&o.PointsUsed,
		&o.PointsValueCents,
		&o.WalletUsedCents,
		&o.TaxCents,
		&o.ShippingCents,
		&o.TotalCents,
		&o.ShippingAddress,
		&o.CancelReason,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	return &o, nil
}

// UpdateStatus conditionally moves an order between statuses. The WHERE
// guard means a concurrent terminal transition leaves exactly one winner.
func (r *orderRepository) UpdateStatus(ctx context.Context, q Querier, id uuid.UUID, from, to model.OrderStatus) (bool, error) {
	query := `
		UPDATE orders
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`

	ct, err := q.Exec(ctx, query, id, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}

	return ct.RowsAffected() == 1, nil
}

// SetPaymentStatus updates the payment side of an order.
func (r *orderRepository) SetPaymentStatus(ctx context.Context, q Querier, id uuid.UUID, status model.PaymentStatus) error {
	query := `
		UPDATE orders
		SET payment_status = $2, updated_at = now()
		WHERE id = $1
	`

	if _, err := q.Exec(ctx, query, id, status); err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}

	return nil
}

// SetCancelReason records why an order was cancelled.
func (r *orderRepository) SetCancelReason(ctx context.Context, q Querier, id uuid.UUID, reason string) error {
	query := `
		UPDATE orders
		SET cancel_reason = $2, updated_at = now()
		WHERE id = $1
	`

	if _, err := q.Exec(ctx, query, id, reason); err != nil {
		return fmt.Errorf("failed to set cancel reason: %w", err)
	}

	return nil
}

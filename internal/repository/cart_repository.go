package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"storefront/internal/model"
)

// cartRepository implements CartRepository using PostgreSQL.
type cartRepository struct {
	logger zerolog.Logger
}

// NewCartRepository creates a new PostgreSQL-backed cart repository.
func NewCartRepository(logger zerolog.Logger) CartRepository {
	return &cartRepository{
		logger: logger.With().Str("repository", "cart").Logger(),
	}
}

// GetByUser retrieves the user's cart with items, or nil when absent.
func (r *cartRepository) GetByUser(ctx context.Context, q Querier, userID int64) (*model.Cart, []model.CartItem, error) {
	cartQuery := `
		SELECT id, user_id, created_at, updated_at
		FROM carts
		WHERE user_id = $1
	`

	var cart model.Cart
	err := q.QueryRow(ctx, cartQuery, userID).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to query cart: %w", err)
	}

	itemsQuery := `
		SELECT id, cart_id, product_id, quantity, unit_price_cents, added_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY added_at
	`

	rows, err := q.Query(ctx, itemsQuery, cart.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	var items []model.CartItem
	for rows.Next() {
		var item model.CartItem
		err := rows.Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.UnitPriceCents, &item.AddedAt)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating cart items: %w", err)
	}

	return &cart, items, nil
}

// GetOrCreate returns the user's cart, creating an empty one if needed.
func (r *cartRepository) GetOrCreate(ctx context.Context, q Querier, userID int64) (*model.Cart, error) {
	query := `
		INSERT INTO carts (id, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = now()
		RETURNING id, user_id, created_at, updated_at
	`

	var cart model.Cart
	err := q.QueryRow(ctx, query, uuid.New(), userID, time.Now()).Scan(
		&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create cart: %w", err)
	}

	return &cart, nil
}

// UpsertItem adds a line or replaces its quantity and price snapshot.
func (r *cartRepository) UpsertItem(ctx context.Context, q Querier, item *model.CartItem) error {
	query := `
		INSERT INTO cart_items (id, cart_id, product_id, quantity, unit_price_cents, added_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (cart_id, product_id) DO UPDATE
		SET quantity = EXCLUDED.quantity, unit_price_cents = EXCLUDED.unit_price_cents
	`

	_, err := q.Exec(ctx, query, item.ID, item.CartID, item.ProductID, item.Quantity, item.UnitPriceCents, item.AddedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert cart item: %w", err)
	}

	return nil
}

// RemoveItem deletes one line.
func (r *cartRepository) RemoveItem(ctx context.Context, q Querier, cartID uuid.UUID, productID string) error {
	query := `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`

	if _, err := q.Exec(ctx, query, cartID, productID); err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}

	return nil
}

// Clear removes every line from the cart.
func (r *cartRepository) Clear(ctx context.Context, q Querier, cartID uuid.UUID) error {
	query := `DELETE FROM cart_items WHERE cart_id = $1`

	if _, err := q.Exec(ctx, query, cartID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}

	return nil
}

// Package catalog is the boundary to the product catalogue, which is owned
// by another system. The fulfillment core only reads the fields it needs to
// snapshot order items at checkout time.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"storefront/internal/model"
	"storefront/internal/repository"
)

// Source looks up product snapshots by id.
type Source interface {
	// GetByID retrieves a single product, or nil.
	GetByID(ctx context.Context, q repository.Querier, id string) (*model.Product, error)

	// GetByIDs retrieves the named products. Fails with ErrProductNotFound
	// when any id is unknown.
	GetByIDs(ctx context.Context, q repository.Querier, ids []string) (map[string]model.Product, error)
}

// pgSource reads the replicated products table.
type pgSource struct {
	logger zerolog.Logger
}

// NewSource creates a PostgreSQL-backed catalogue source.
func NewSource(logger zerolog.Logger) Source {
	return &pgSource{
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

const productColumns = `id, sku, name_en, name_ar, price_cents, weight_gram, category, created_at`

// GetByID retrieves a single product, or nil.
func (s *pgSource) GetByID(ctx context.Context, q repository.Querier, id string) (*model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	p, err := scanProduct(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query product: %w", err)
	}

	return p, nil
}

// GetByIDs retrieves the named products, failing when any is missing.
func (s *pgSource) GetByIDs(ctx context.Context, q repository.Querier, ids []string) (map[string]model.Product, error) {
	if len(ids) == 0 {
		return map[string]model.Product{}, nil
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make(map[string]model.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products[p.ID] = *p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	for _, id := range ids {
		if _, ok := products[id]; !ok {
			s.logger.Warn().Str("product_id", id).Msg("product not found in catalogue")
			return nil, model.ErrProductNotFound
		}
	}

	return products, nil
}

func scanProduct(row pgx.Row) (*model.Product, error) {
	var p model.Product
	err := row.Scan(
		&p.ID,
		&p.SKU,
		&p.Name.EN,
		&p.Name.AR,
		&p.PriceCents,
		&p.WeightGram,
		&p.Category,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

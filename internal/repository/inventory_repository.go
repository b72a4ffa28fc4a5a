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

// inventoryRepository implements InventoryRepository using PostgreSQL.
type inventoryRepository struct {
	logger zerolog.Logger
}

// NewInventoryRepository creates a new PostgreSQL-backed inventory repository.
func NewInventoryRepository(logger zerolog.Logger) InventoryRepository {
	return &inventoryRepository{
		logger: logger.With().Str("repository", "inventory").Logger(),
	}
}

// GetRecord retrieves one (product, branch) stock row, or nil.
func (r *inventoryRepository) GetRecord(ctx context.Context, q Querier, productID, branchID string) (*model.InventoryRecord, error) {
	query := `
		SELECT product_id, branch_id, quantity_on_hand, quantity_reserved, updated_at
		FROM inventory
		WHERE product_id = $1 AND branch_id = $2
	`

	var rec model.InventoryRecord
	err := q.QueryRow(ctx, query, productID, branchID).Scan(
		&rec.ProductID,
		&rec.BranchID,
		&rec.QuantityOnHand,
		&rec.QuantityReserved,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query inventory record: %w", err)
	}

	return &rec, nil
}

// RankedBranches returns candidate branch ids in the order reservation
// should try them: most available stock first, then flagship > retail >
// outlet, then lowest branch id as the stable tie-break.
func (r *inventoryRepository) RankedBranches(ctx context.Context, q Querier, productID string, quantity int) ([]string, error) {
	query := `
		SELECT i.branch_id
		FROM inventory i
		JOIN branches b ON b.id = i.branch_id
		WHERE i.product_id = $1
		  AND i.quantity_on_hand - i.quantity_reserved >= $2
		ORDER BY
			i.quantity_on_hand - i.quantity_reserved DESC,
			CASE b.tier WHEN 'flagship' THEN 0 WHEN 'retail' THEN 1 ELSE 2 END,
			i.branch_id
	`

	rows, err := q.Query(ctx, query, productID, quantity)
	if err != nil {
		return nil, fmt.Errorf("failed to rank branches: %w", err)
	}
	defer rows.Close()

	var branches []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan branch id: %w", err)
		}
		branches = append(branches, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating branches: %w", err)
	}

	return branches, nil
}

// ReserveStock conditionally raises quantity_reserved. The availability
// check is part of the UPDATE itself, so two concurrent reservations for
// the last unit cannot both succeed.
func (r *inventoryRepository) ReserveStock(ctx context.Context, q Querier, productID, branchID string, quantity int) (bool, error) {
	query := `
		UPDATE inventory
		SET quantity_reserved = quantity_reserved + $3, updated_at = now()
		WHERE product_id = $1 AND branch_id = $2
		  AND quantity_on_hand - quantity_reserved >= $3
	`

	ct, err := q.Exec(ctx, query, productID, branchID, quantity)
	if err != nil {
		return false, fmt.Errorf("failed to reserve stock: %w", err)
	}

	return ct.RowsAffected() == 1, nil
}

// CommitStock lowers both counters after a reservation is finalized as sold.
func (r *inventoryRepository) CommitStock(ctx context.Context, q Querier, productID, branchID string, quantity int) error {
	query := `
		UPDATE inventory
		SET quantity_on_hand = quantity_on_hand - $3,
		    quantity_reserved = quantity_reserved - $3,
		    updated_at = now()
		WHERE product_id = $1 AND branch_id = $2 AND quantity_reserved >= $3
	`

	ct, err := q.Exec(ctx, query, productID, branchID, quantity)
	if err != nil {
		return fmt.Errorf("failed to commit stock: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("commit stock affected no rows for product %s branch %s", productID, branchID)
	}

	return nil
}

// ReleaseStock returns reserved quantity to the available pool.
func (r *inventoryRepository) ReleaseStock(ctx context.Context, q Querier, productID, branchID string, quantity int) error {
	query := `
		UPDATE inventory
		SET quantity_reserved = quantity_reserved - $3, updated_at = now()
		WHERE product_id = $1 AND branch_id = $2 AND quantity_reserved >= $3
	`

	ct, err := q.Exec(ctx, query, productID, branchID, quantity)
	if err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("release stock affected no rows for product %s branch %s", productID, branchID)
	}

	return nil
}

// SetOnHand upserts the on-hand quantity. The reserved quantity is never
// touched, and the update refuses to drop on-hand below it.
func (r *inventoryRepository) SetOnHand(ctx context.Context, q Querier, productID, branchID string, newQuantity int) (bool, error) {
	query := `
		INSERT INTO inventory (product_id, branch_id, quantity_on_hand)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id, branch_id) DO UPDATE
		SET quantity_on_hand = EXCLUDED.quantity_on_hand, updated_at = now()
		WHERE inventory.quantity_reserved <= EXCLUDED.quantity_on_hand
	`

	ct, err := q.Exec(ctx, query, productID, branchID, newQuantity)
	if err != nil {
		return false, fmt.Errorf("failed to set on-hand quantity: %w", err)
	}

	return ct.RowsAffected() == 1, nil
}

// CreateReservation inserts a pending reservation row.
func (r *inventoryRepository) CreateReservation(ctx context.Context, q Querier, res *model.Reservation) error {
	query := `
		INSERT INTO reservations (id, order_id, product_id, branch_id, quantity, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`

	_, err := q.Exec(ctx, query, res.ID, res.OrderID, res.ProductID, res.BranchID, res.Quantity, res.Status, res.CreatedAt)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("reservation_id", res.ID.String()).
			Msg("failed to create reservation")
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	return nil
}

// GetReservation retrieves a reservation by id, or nil.
func (r *inventoryRepository) GetReservation(ctx context.Context, q Querier, id uuid.UUID) (*model.Reservation, error) {
	query := `
		SELECT id, order_id, product_id, branch_id, quantity, status, created_at, updated_at
		FROM reservations
		WHERE id = $1
	`

	res, err := scanReservation(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query reservation: %w", err)
	}

	return res, nil
}

// FinalizeReservation moves a reservation out of pending. The status guard
// in the WHERE clause makes commit and release mutually exclusive: a
// cancellation racing a webhook commit resolves to exactly one winner.
func (r *inventoryRepository) FinalizeReservation(ctx context.Context, q Querier, id uuid.UUID, to model.ReservationStatus) (*model.Reservation, bool, error) {
	query := `
		UPDATE reservations
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING id, order_id, product_id, branch_id, quantity, status, created_at, updated_at
	`

	res, err := scanReservation(q.QueryRow(ctx, query, id, to))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to finalize reservation: %w", err)
	}

	return res, true, nil
}

// ReservationsByOrder lists every reservation owned by the order.
func (r *inventoryRepository) ReservationsByOrder(ctx context.Context, q Querier, orderID uuid.UUID) ([]model.Reservation, error) {
	query := `
		SELECT id, order_id, product_id, branch_id, quantity, status, created_at, updated_at
		FROM reservations
		WHERE order_id = $1
		ORDER BY created_at
	`

	rows, err := q.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var reservations []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, *res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reservations: %w", err)
	}

	return reservations, nil
}

// InsertAdjustment records an administrative stock correction.
func (r *inventoryRepository) InsertAdjustment(ctx context.Context, q Querier, adj *model.StockAdjustment) error {
	query := `
		INSERT INTO stock_adjustments (id, product_id, branch_id, old_quantity, new_quantity, reason, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := q.Exec(ctx, query, adj.ID, adj.ProductID, adj.BranchID, adj.OldQuantity, adj.NewQuantity, adj.Reason, adj.ActorID, adj.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert stock adjustment: %w", err)
	}

	return nil
}

func scanReservation(row pgx.Row) (*model.Reservation, error) {
	var res model.Reservation
	err := row.Scan(
		&res.ID,
		&res.OrderID,
		&res.ProductID,
		&res.BranchID,
		&res.Quantity,
		&res.Status,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

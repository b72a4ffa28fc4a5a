// Package inventory implements the stock ledger: per (product, branch)
// rows mutated only through reserve, commit, release and adjust.
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"storefront/internal/model"
	"storefront/internal/repository"
)

// Ledger exposes the stock operations the order workflow composes into its
// checkout transaction. Every method takes the caller's querier so that a
// failed checkout rolls back its reservations with everything else.
type Ledger struct {
	repo   repository.InventoryRepository
	logger zerolog.Logger
}

// NewLedger creates a new inventory ledger service.
func NewLedger(repo repository.InventoryRepository, logger zerolog.Logger) *Ledger {
	return &Ledger{
		repo:   repo,
		logger: logger.With().Str("service", "inventory").Logger(),
	}
}

// Reserve places a pending hold on stock for the order. When branchID is
// nil, candidate branches are tried in ranked order (most available stock,
// then flagship > retail > outlet, then lowest branch id) until one accepts
// the conditional update; no partial reservation is split across branches.
func (l *Ledger) Reserve(ctx context.Context, q repository.Querier, orderID uuid.UUID, productID string, quantity int, branchID *string) (*model.Reservation, error) {
	if quantity <= 0 {
		return nil, model.ErrInvalidQuantity
	}

	var candidates []string
	if branchID != nil {
		candidates = []string{*branchID}
	} else {
		ranked, err := l.repo.RankedBranches(ctx, q, productID, quantity)
		if err != nil {
			return nil, fmt.Errorf("rank branches: %w", err)
		}
		candidates = ranked
	}

	for _, candidate := range candidates {
		ok, err := l.repo.ReserveStock(ctx, q, productID, candidate, quantity)
		if err != nil {
			return nil, fmt.Errorf("reserve stock: %w", err)
		}
		if !ok {
			// Lost the row to a concurrent reservation; try the next branch.
			continue
		}

		res := &model.Reservation{
			ID:        uuid.New(),
			OrderID:   orderID,
			ProductID: productID,
			BranchID:  candidate,
			Quantity:  quantity,
			Status:    model.ReservationPending,
			CreatedAt: time.Now(),
		}
		res.UpdatedAt = res.CreatedAt

		if err := l.repo.CreateReservation(ctx, q, res); err != nil {
			return nil, fmt.Errorf("create reservation: %w", err)
		}

		l.logger.Debug().
			Str("reservation_id", res.ID.String()).
			Str("product_id", productID).
			Str("branch_id", candidate).
			Int("quantity", quantity).
			Msg("stock reserved")

		return res, nil
	}

	l.logger.Warn().
		Str("product_id", productID).
		Int("quantity", quantity).
		Msg("no branch can satisfy reservation")

	return nil, model.ErrOutOfStock
}

// Commit finalizes a pending reservation as sold, lowering both the on-hand
// and reserved quantities. Committing an already-committed reservation is a
// no-op returning the same result; committing a released one is an error.
func (l *Ledger) Commit(ctx context.Context, q repository.Querier, reservationID uuid.UUID) (*model.Reservation, error) {
	res, transitioned, err := l.repo.FinalizeReservation(ctx, q, reservationID, model.ReservationCommitted)
	if err != nil {
		return nil, fmt.Errorf("finalize reservation: %w", err)
	}

	if !transitioned {
		return l.replayTerminal(ctx, q, reservationID, model.ReservationCommitted)
	}

	if err := l.repo.CommitStock(ctx, q, res.ProductID, res.BranchID, res.Quantity); err != nil {
		return nil, fmt.Errorf("commit stock: %w", err)
	}

	l.logger.Debug().
		Str("reservation_id", res.ID.String()).
		Msg("reservation committed")

	return res, nil
}

// Release returns a pending reservation's quantity to the available pool.
// Releasing an already-released reservation is a no-op; releasing a
// committed one is an error.
func (l *Ledger) Release(ctx context.Context, q repository.Querier, reservationID uuid.UUID) (*model.Reservation, error) {
	res, transitioned, err := l.repo.FinalizeReservation(ctx, q, reservationID, model.ReservationReleased)
	if err != nil {
		return nil, fmt.Errorf("finalize reservation: %w", err)
	}

	if !transitioned {
		return l.replayTerminal(ctx, q, reservationID, model.ReservationReleased)
	}

	if err := l.repo.ReleaseStock(ctx, q, res.ProductID, res.BranchID, res.Quantity); err != nil {
		return nil, fmt.Errorf("release stock: %w", err)
	}

	l.logger.Debug().
		Str("reservation_id", res.ID.String()).
		Msg("reservation released")

	return res, nil
}

// replayTerminal resolves a finalize call that found the reservation
// already out of pending: same terminal state is an idempotent replay, the
// opposite one is a hard error.
func (l *Ledger) replayTerminal(ctx context.Context, q repository.Querier, reservationID uuid.UUID, want model.ReservationStatus) (*model.Reservation, error) {
	res, err := l.repo.GetReservation(ctx, q, reservationID)
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	if res == nil {
		return nil, model.ErrReservationNotFound
	}
	if res.Status == want {
		return res, nil
	}
	return nil, model.ErrReservationFinalized
}

// Adjust is an administrative stock correction. It sets the on-hand
// quantity directly, never touches the reserved quantity, and records an
// audit row with the reason.
func (l *Ledger) Adjust(ctx context.Context, q repository.Querier, actorID int64, productID, branchID string, newQuantity int, reason string) error {
	if newQuantity < 0 {
		return model.ErrInvalidQuantity
	}

	old, err := l.repo.GetRecord(ctx, q, productID, branchID)
	if err != nil {
		return fmt.Errorf("get inventory record: %w", err)
	}

	oldQuantity := 0
	if old != nil {
		oldQuantity = old.QuantityOnHand
	}

	ok, err := l.repo.SetOnHand(ctx, q, productID, branchID, newQuantity)
	if err != nil {
		return fmt.Errorf("set on-hand quantity: %w", err)
	}
	if !ok {
		return fmt.Errorf("cannot set on-hand below reserved quantity for product %s branch %s", productID, branchID)
	}

	adj := &model.StockAdjustment{
		ID:          uuid.New(),
		ProductID:   productID,
		BranchID:    branchID,
		OldQuantity: oldQuantity,
		NewQuantity: newQuantity,
		Reason:      reason,
		ActorID:     actorID,
		CreatedAt:   time.Now(),
	}

	if err := l.repo.InsertAdjustment(ctx, q, adj); err != nil {
		return fmt.Errorf("insert adjustment: %w", err)
	}

	l.logger.Info().
		Str("product_id", productID).
		Str("branch_id", branchID).
		Int("old_quantity", oldQuantity).
		Int("new_quantity", newQuantity).
		Str("reason", reason).
		Msg("stock adjusted")

	return nil
}

// ReservationsByOrder lists every reservation owned by the order.
func (l *Ledger) ReservationsByOrder(ctx context.Context, q repository.Querier, orderID uuid.UUID) ([]model.Reservation, error) {
	return l.repo.ReservationsByOrder(ctx, q, orderID)
}

// Availability lists the branches that can currently satisfy the quantity,
// best candidate first. A read-time answer only; reservation is what holds
// the stock.
func (l *Ledger) Availability(ctx context.Context, q repository.Querier, productID string, quantity int) ([]string, error) {
	if quantity <= 0 {
		return nil, model.ErrInvalidQuantity
	}
	return l.repo.RankedBranches(ctx, q, productID, quantity)
}

// Record returns one (product, branch) stock row, or nil.
func (l *Ledger) Record(ctx context.Context, q repository.Querier, productID, branchID string) (*model.InventoryRecord, error) {
	return l.repo.GetRecord(ctx, q, productID, branchID)
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"storefront/internal/model"
)

// ledgerRepository implements LedgerRepository using PostgreSQL.
type ledgerRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewLedgerRepository creates a new PostgreSQL-backed ledger repository.
func NewLedgerRepository(pool *pgxpool.Pool, logger zerolog.Logger) LedgerRepository {
	return &ledgerRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "ledger").Logger(),
	}
}

// BeginTx starts a new database transaction.
func (r *ledgerRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// GetBalance reads the cached account balance, zero when absent.
func (r *ledgerRepository) GetBalance(ctx context.Context, q Querier, userID int64, kind model.LedgerKind) (int64, error) {
	query := `
		SELECT balance_cents
		FROM ledger_accounts
		WHERE user_id = $1 AND kind = $2
	`

	var balance int64
	err := q.QueryRow(ctx, query, userID, kind).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to query ledger balance: %w", err)
	}

	return balance, nil
}

// EnsureAccount creates the zero-balance account row if missing.
func (r *ledgerRepository) EnsureAccount(ctx context.Context, q Querier, userID int64, kind model.LedgerKind) error {
	query := `
		INSERT INTO ledger_accounts (user_id, kind, balance_cents)
		VALUES ($1, $2, 0)
		ON CONFLICT (user_id, kind) DO NOTHING
	`

	if _, err := q.Exec(ctx, query, userID, kind); err != nil {
		return fmt.Errorf("failed to ensure ledger account: %w", err)
	}

	return nil
}

// ApplyToBalance adds delta to the cached balance. The non-negative guard
// lives in the UPDATE, so a read-then-write race on the balance is
// structurally impossible.
func (r *ledgerRepository) ApplyToBalance(ctx context.Context, q Querier, userID int64, kind model.LedgerKind, delta int64) (int64, bool, error) {
	query := `
		UPDATE ledger_accounts
		SET balance_cents = balance_cents + $3
		WHERE user_id = $1 AND kind = $2 AND balance_cents + $3 >= 0
		RETURNING balance_cents
	`

	var balance int64
	err := q.QueryRow(ctx, query, userID, kind, delta).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to apply balance delta: %w", err)
	}

	return balance, true, nil
}

// InsertEntry appends one immutable ledger entry.
func (r *ledgerRepository) InsertEntry(ctx context.Context, q Querier, entry *model.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries
			(id, user_id, kind, entry_type, amount_cents, balance_before_cents,
			 balance_after_cents, reference_order_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := q.Exec(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Kind,
		entry.EntryType,
		entry.AmountCents,
		entry.BalanceBeforeCents,
		entry.BalanceAfterCents,
		entry.ReferenceOrderID,
		entry.ExpiresAt,
		entry.CreatedAt,
	)
	if err != nil {
		r.logger.Error().
			Err(err).
			Int64("user_id", entry.UserID).
			Str("kind", string(entry.Kind)).
			Msg("failed to insert ledger entry")
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	return nil
}

// SumEntries replays the ledger for audit.
func (r *ledgerRepository) SumEntries(ctx context.Context, q Querier, userID int64, kind model.LedgerKind) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM ledger_entries
		WHERE user_id = $1 AND kind = $2
	`

	var sum int64
	if err := q.QueryRow(ctx, query, userID, kind).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum ledger entries: %w", err)
	}

	return sum, nil
}

// EntriesByUser lists entries newest first.
func (r *ledgerRepository) EntriesByUser(ctx context.Context, q Querier, userID int64, kind model.LedgerKind, limit int) ([]model.LedgerEntry, error) {
	query := `
		SELECT id, user_id, kind, entry_type, amount_cents, balance_before_cents,
		       balance_after_cents, reference_order_id, expires_at, offset_by, created_at
		FROM ledger_entries
		WHERE user_id = $1 AND kind = $2
		ORDER BY seq DESC
		LIMIT $3
	`

	rows, err := q.Query(ctx, query, userID, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ExpiredUnoffset lists positive entries whose expiry has passed and which
// have not yet been offset.
func (r *ledgerRepository) ExpiredUnoffset(ctx context.Context, q Querier, now time.Time, limit int) ([]model.LedgerEntry, error) {
	query := `
		SELECT id, user_id, kind, entry_type, amount_cents, balance_before_cents,
		       balance_after_cents, reference_order_id, expires_at, offset_by, created_at
		FROM ledger_entries
		WHERE expires_at IS NOT NULL AND expires_at < $1
		  AND offset_by IS NULL AND amount_cents > 0
		ORDER BY expires_at
		LIMIT $2
	`

	rows, err := q.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// MarkOffset stamps an expired entry with the id of its offsetting entry.
// The NULL guard means an entry is offset at most once.
func (r *ledgerRepository) MarkOffset(ctx context.Context, q Querier, entryID, offsetBy uuid.UUID) (bool, error) {
	query := `
		UPDATE ledger_entries
		SET offset_by = $2
		WHERE id = $1 AND offset_by IS NULL
	`

	ct, err := q.Exec(ctx, query, entryID, offsetBy)
	if err != nil {
		return false, fmt.Errorf("failed to mark entry offset: %w", err)
	}

	return ct.RowsAffected() == 1, nil
}

func collectEntries(rows pgx.Rows) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.Kind,
			&e.EntryType,
			&e.AmountCents,
			&e.BalanceBeforeCents,
			&e.BalanceAfterCents,
			&e.ReferenceOrderID,
			&e.ExpiresAt,
			&e.OffsetBy,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}

	return entries, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"storefront/internal/model"
)

// paymentRepository implements PaymentRepository using PostgreSQL.
type paymentRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPaymentRepository creates a new PostgreSQL-backed payment repository.
func NewPaymentRepository(pool *pgxpool.Pool, logger zerolog.Logger) PaymentRepository {
	return &paymentRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "payment").Logger(),
	}
}

// BeginTx starts a new database transaction.
func (r *paymentRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// GetOpenIntent retrieves the order's open intent, or nil.
func (r *paymentRepository) GetOpenIntent(ctx context.Context, q Querier, orderID uuid.UUID) (*model.PaymentIntent, error) {
	query := `
		SELECT id, order_id, intent_ref, amount_cents, currency, status, created_at
		FROM payment_intents
		WHERE order_id = $1 AND status = 'open'
	`

	var intent model.PaymentIntent
	err := q.QueryRow(ctx, query, orderID).Scan(
		&intent.ID,
		&intent.OrderID,
		&intent.IntentRef,
		&intent.AmountCents,
		&intent.Currency,
		&intent.Status,
		&intent.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query payment intent: %w", err)
	}

	return &intent, nil
}

// CreateIntent inserts a new open intent.
func (r *paymentRepository) CreateIntent(ctx context.Context, q Querier, intent *model.PaymentIntent) error {
	query := `
		INSERT INTO payment_intents (id, order_id, intent_ref, amount_cents, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := q.Exec(ctx, query,
		intent.ID, intent.OrderID, intent.IntentRef,
		intent.AmountCents, intent.Currency, intent.Status, intent.CreatedAt,
	)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", intent.OrderID.String()).
			Msg("failed to create payment intent")
		return fmt.Errorf("failed to create payment intent: %w", err)
	}

	return nil
}

// CloseIntent marks the order's open intent succeeded or failed.
func (r *paymentRepository) CloseIntent(ctx context.Context, q Querier, orderID uuid.UUID, status model.IntentStatus) error {
	query := `
		UPDATE payment_intents
		SET status = $2
		WHERE order_id = $1 AND status = 'open'
	`

	if _, err := q.Exec(ctx, query, orderID, status); err != nil {
		return fmt.Errorf("failed to close payment intent: %w", err)
	}

	return nil
}

// InsertWebhookRecord claims a gateway transaction id. A unique violation
// on the primary key is the duplicate-delivery signal.
func (r *paymentRepository) InsertWebhookRecord(ctx context.Context, q Querier, rec *model.WebhookRecord) error {
	query := `
		INSERT INTO webhook_events (transaction_id, order_id, outcome, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := q.Exec(ctx, query, rec.TransactionID, rec.OrderID, rec.Outcome, rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("failed to insert webhook record: %w", err)
	}

	return nil
}

// GetWebhookRecord retrieves the recorded outcome for a transaction id.
func (r *paymentRepository) GetWebhookRecord(ctx context.Context, q Querier, transactionID string) (*model.WebhookRecord, error) {
	query := `
		SELECT transaction_id, order_id, outcome, process_error, created_at
		FROM webhook_events
		WHERE transaction_id = $1
	`

	var rec model.WebhookRecord
	err := q.QueryRow(ctx, query, transactionID).Scan(
		&rec.TransactionID,
		&rec.OrderID,
		&rec.Outcome,
		&rec.ProcessError,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query webhook record: %w", err)
	}

	return &rec, nil
}

// SetWebhookError records an internal processing failure for later manual
// reconciliation.
func (r *paymentRepository) SetWebhookError(ctx context.Context, q Querier, transactionID string, processError string) error {
	query := `
		UPDATE webhook_events
		SET process_error = $2
		WHERE transaction_id = $1
	`

	if _, err := q.Exec(ctx, query, transactionID, processError); err != nil {
		return fmt.Errorf("failed to record webhook error: %w", err)
	}

	return nil
}

package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"storefront/internal/model"
	"storefront/internal/repository"
)

// orderSettler is the slice of the order workflow the reconciler drives.
type orderSettler interface {
	GetOrder(ctx context.Context, userID int64, admin bool, orderID uuid.UUID) (*model.OrderResponse, error)
	MarkPaid(ctx context.Context, q repository.Querier, orderID uuid.UUID) (*model.Order, error)
	MarkFailed(ctx context.Context, q repository.Querier, orderID uuid.UUID, reason string) (*model.Order, error)
	AfterPaid(ctx context.Context, order *model.Order)
	AfterFailed(ctx context.Context, order *model.Order)
}

// Reconciler matches gateway notifications against orders. Each gateway
// transaction id is applied exactly once: the id is claimed in its own
// transaction before any state changes, and duplicate deliveries replay
// the recorded outcome as a no-op.
type Reconciler struct {
	repo     repository.PaymentRepository
	settler  orderSettler
	gateway  GatewayClient
	db       repository.Querier
	currency string
	logger   zerolog.Logger
}

// NewReconciler creates a new payment reconciler.
func NewReconciler(repo repository.PaymentRepository, settler orderSettler, gateway GatewayClient, db repository.Querier, currency string, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		repo:     repo,
		settler:  settler,
		gateway:  gateway,
		db:       db,
		currency: currency,
		logger:   logger.With().Str("service", "payment").Logger(),
	}
}

// CreateIntent registers a gateway charge for a pending order. Calling it
// again for the same order returns the existing open intent instead of
// charging twice.
func (r *Reconciler) CreateIntent(ctx context.Context, userID int64, admin bool, orderID uuid.UUID) (*model.PaymentIntent, error) {
	resp, err := r.settler.GetOrder(ctx, userID, admin, orderID)
	if err != nil {
		return nil, err
	}
	order := resp.Order

	if order.PaymentStatus != model.PaymentPending || order.Status != model.StatusPending {
		return nil, model.ErrOrderStateConflict
	}
	if order.TotalCents <= 0 {
		return nil, model.ErrOrderStateConflict
	}

	if existing, err := r.repo.GetOpenIntent(ctx, r.db, orderID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	ref, err := r.gateway.CreateIntent(ctx, orderID, order.TotalCents, r.currency)
	if err != nil {
		return nil, err
	}

	intent := &model.PaymentIntent{
		ID:          uuid.New(),
		OrderID:     orderID,
		IntentRef:   ref,
		AmountCents: order.TotalCents,
		Currency:    r.currency,
		Status:      model.IntentOpen,
		CreatedAt:   time.Now(),
	}

	if err := r.repo.CreateIntent(ctx, r.db, intent); err != nil {
		// A concurrent call may have won the one-open-intent-per-order
		// race; in that case its intent is the answer.
		if existing, getErr := r.repo.GetOpenIntent(ctx, r.db, orderID); getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}

	r.logger.Info().
		Str("order_id", orderID.String()).
		Str("intent_ref", ref).
		Int64("amount_cents", intent.AmountCents).
		Msg("payment intent created")

	return intent, nil
}

// HandleWebhook applies a verified gateway notification. The transaction
// id is claimed first in its own transaction; once claimed, a processing
// failure is recorded on the claim for manual reconciliation rather than
// retried, because the gateway's redelivery would be treated as a
// duplicate. Duplicates return nil without touching the order.
func (r *Reconciler) HandleWebhook(ctx context.Context, event model.WebhookEvent) error {
	claim := &model.WebhookRecord{
		TransactionID: event.TransactionID,
		OrderID:       event.OrderID,
		Outcome:       event.Outcome,
		CreatedAt:     time.Now(),
	}

	if err := r.repo.InsertWebhookRecord(ctx, r.db, claim); err != nil {
		if errors.Is(err, repository.ErrDuplicateTransaction) {
			r.logger.Info().
				Str("transaction_id", event.TransactionID).
				Msg("duplicate webhook delivery ignored")
			return nil
		}
		return fmt.Errorf("claim webhook transaction: %w", err)
	}

	if err := r.apply(ctx, event); err != nil {
		r.logger.Error().
			Err(err).
			Str("transaction_id", event.TransactionID).
			Str("order_id", event.OrderID.String()).
			Msg("webhook claimed but not applied, needs manual reconciliation")

		if recErr := r.repo.SetWebhookError(ctx, r.db, event.TransactionID, err.Error()); recErr != nil {
			r.logger.Error().Err(recErr).
				Str("transaction_id", event.TransactionID).
				Msg("failed to record webhook processing error")
		}
	}

	return nil
}

// apply settles the order in one transaction and runs the post-commit
// effects on success.
func (r *Reconciler) apply(ctx context.Context, event model.WebhookEvent) error {
	tx, err := r.repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var order *model.Order
	switch event.Outcome {
	case model.OutcomeSuccess:
		order, err = r.settler.MarkPaid(ctx, tx, event.OrderID)
		if err != nil {
			return err
		}
		if err := r.repo.CloseIntent(ctx, tx, event.OrderID, model.IntentSucceeded); err != nil {
			return err
		}
	case model.OutcomeFailure:
		reason := event.Reason
		if reason == "" {
			reason = "payment failed"
		}
		order, err = r.settler.MarkFailed(ctx, tx, event.OrderID, reason)
		if err != nil {
			return err
		}
		if err := r.repo.CloseIntent(ctx, tx, event.OrderID, model.IntentFailed); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown webhook outcome %q", event.Outcome)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit webhook settlement: %w", err)
	}

	if event.Outcome == model.OutcomeSuccess {
		r.settler.AfterPaid(ctx, order)
	} else {
		r.settler.AfterFailed(ctx, order)
	}

	return nil
}

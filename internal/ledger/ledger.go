// Package ledger implements the append-only wallet and loyalty-points
// ledgers. Balances are derived values: the cached account balance is
// updated in the same transaction as every entry insert and can always be
// reconciled against the entry sum.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"storefront/internal/model"
	"storefront/internal/repository"
)

const sweepBatchSize = 200

// Service exposes the financial ledger operations. db is the pool-backed
// querier used for reads outside any caller transaction.
type Service struct {
	repo   repository.LedgerRepository
	db     repository.Querier
	cache  *BalanceCache
	logger zerolog.Logger
}

// NewService creates a new financial ledger service.
func NewService(repo repository.LedgerRepository, db repository.Querier, cache *BalanceCache, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		db:     db,
		cache:  cache,
		logger: logger.With().Str("service", "ledger").Logger(),
	}
}

// Append writes one signed entry within the caller's transaction. The
// balance guard refuses to take an account negative, which is how
// insufficient-balance errors surface. Callers composing Append into a
// larger transaction must call InvalidateBalance after committing.
func (s *Service) Append(ctx context.Context, q repository.Querier, userID int64, kind model.LedgerKind, entryType model.LedgerEntryType, amountCents int64, refOrderID *uuid.UUID, expiresAt *time.Time) (*model.LedgerEntry, error) {
	if err := s.repo.EnsureAccount(ctx, q, userID, kind); err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}

	newBalance, ok, err := s.repo.ApplyToBalance(ctx, q, userID, kind, amountCents)
	if err != nil {
		return nil, fmt.Errorf("apply balance: %w", err)
	}
	if !ok {
		if kind == model.LedgerPoints {
			return nil, model.ErrInsufficientPoints
		}
		return nil, model.ErrInsufficientWallet
	}

	entry := &model.LedgerEntry{
		ID:                 uuid.New(),
		UserID:             userID,
		Kind:               kind,
		EntryType:          entryType,
		AmountCents:        amountCents,
		BalanceBeforeCents: newBalance - amountCents,
		BalanceAfterCents:  newBalance,
		ReferenceOrderID:   refOrderID,
		ExpiresAt:          expiresAt,
		CreatedAt:          time.Now(),
	}

	if err := s.repo.InsertEntry(ctx, q, entry); err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}

	return entry, nil
}

// Redeem withdraws amountCents from the user's ledger, failing when the
// balance is insufficient.
func (s *Service) Redeem(ctx context.Context, q repository.Querier, userID int64, kind model.LedgerKind, amountCents int64, refOrderID *uuid.UUID) (*model.LedgerEntry, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("redeem amount must be positive, got %d", amountCents)
	}

	return s.Append(ctx, q, userID, kind, model.EntryRedeemed, -amountCents, refOrderID, nil)
}

// Deposit credits the user's wallet in its own transaction.
func (s *Service) Deposit(ctx context.Context, userID int64, amountCents int64) (*model.LedgerEntry, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("deposit amount must be positive, got %d", amountCents)
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	entry, err := s.Append(ctx, tx, userID, model.LedgerWallet, model.EntryDeposit, amountCents, nil, nil)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit deposit: %w", err)
	}

	s.cache.Invalidate(ctx, userID, model.LedgerWallet)
	return entry, nil
}

// Transfer moves wallet funds between two users. Both legs are written in
// one transaction: a partial transfer is never observable. Accounts are
// touched in user-id order so two opposing transfers cannot deadlock.
func (s *Service) Transfer(ctx context.Context, fromUserID, toUserID int64, amountCents int64) error {
	if amountCents <= 0 {
		return fmt.Errorf("transfer amount must be positive, got %d", amountCents)
	}
	if fromUserID == toUserID {
		return fmt.Errorf("cannot transfer to the same user")
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Apply the legs in user-id order so two opposing transfers acquire
	// their account row locks in the same order and cannot deadlock.
	type leg struct {
		userID    int64
		entryType model.LedgerEntryType
		amount    int64
	}
	legs := []leg{
		{fromUserID, model.EntryTransferOut, -amountCents},
		{toUserID, model.EntryTransferIn, amountCents},
	}
	if legs[1].userID < legs[0].userID {
		legs[0], legs[1] = legs[1], legs[0]
	}

	for _, l := range legs {
		if _, err := s.Append(ctx, tx, l.userID, model.LedgerWallet, l.entryType, l.amount, nil, nil); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transfer: %w", err)
	}

	s.cache.Invalidate(ctx, fromUserID, model.LedgerWallet)
	s.cache.Invalidate(ctx, toUserID, model.LedgerWallet)

	s.logger.Info().
		Int64("from_user", fromUserID).
		Int64("to_user", toUserID).
		Int64("amount_cents", amountCents).
		Msg("wallet transfer completed")

	return nil
}

// Balance returns the user's current balance, served from the Redis cache
// when warm, otherwise from the guarded account row.
func (s *Service) Balance(ctx context.Context, q repository.Querier, userID int64, kind model.LedgerKind) (int64, error) {
	if cached, ok := s.cache.Get(ctx, userID, kind); ok {
		return cached, nil
	}

	balance, err := s.repo.GetBalance(ctx, q, userID, kind)
	if err != nil {
		return 0, err
	}

	s.cache.Set(ctx, userID, kind, balance)
	return balance, nil
}

// History lists the user's entries, newest first.
func (s *Service) History(ctx context.Context, q repository.Querier, userID int64, kind model.LedgerKind, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.EntriesByUser(ctx, q, userID, kind, limit)
}

// Reconcile replays the full entry log and compares it against the cached
// account balance. Used by audits and tests; a mismatch is a defect.
func (s *Service) Reconcile(ctx context.Context, q repository.Querier, userID int64, kind model.LedgerKind) (sum int64, cached int64, err error) {
	sum, err = s.repo.SumEntries(ctx, q, userID, kind)
	if err != nil {
		return 0, 0, err
	}

	cached, err = s.repo.GetBalance(ctx, q, userID, kind)
	if err != nil {
		return 0, 0, err
	}

	return sum, cached, nil
}

// InvalidateBalance drops the cached balance for a user. Callers that
// composed ledger writes into their own transaction call this after commit.
func (s *Service) InvalidateBalance(ctx context.Context, userID int64, kind model.LedgerKind) {
	s.cache.Invalidate(ctx, userID, kind)
}

// ExpireSweep offsets earned and bonus entries whose expiry has passed.
// Each entry is offset at most once (guarded by the offset_by stamp), so
// the sweep is idempotent and safe to run from multiple processes. When
// points were partially spent before expiring, the offset is clamped to
// the current balance. Returns the number of entries offset.
func (s *Service) ExpireSweep(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.repo.ExpiredUnoffset(ctx, s.db, now, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list expired entries: %w", err)
	}

	swept := 0
	for _, entry := range expired {
		if err := s.offsetEntry(ctx, entry); err != nil {
			s.logger.Error().
				Err(err).
				Str("entry_id", entry.ID.String()).
				Msg("failed to offset expired entry")
			continue
		}
		swept++
	}

	if swept > 0 {
		s.logger.Info().Int("count", swept).Msg("expired ledger entries offset")
	}

	return swept, nil
}

func (s *Service) offsetEntry(ctx context.Context, entry model.LedgerEntry) error {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	offsetID := uuid.New()

	ok, err := s.repo.MarkOffset(ctx, tx, entry.ID, offsetID)
	if err != nil {
		return err
	}
	if !ok {
		// Another sweeper got here first.
		return nil
	}

	balance, err := s.repo.GetBalance(ctx, tx, entry.UserID, entry.Kind)
	if err != nil {
		return err
	}

	offsetAmount := entry.AmountCents
	if balance < offsetAmount {
		offsetAmount = balance
	}

	newBalance, ok, err := s.repo.ApplyToBalance(ctx, tx, entry.UserID, entry.Kind, -offsetAmount)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("balance changed under expiry offset for user %d", entry.UserID)
	}

	offset := &model.LedgerEntry{
		ID:                 offsetID,
		UserID:             entry.UserID,
		Kind:               entry.Kind,
		EntryType:          model.EntryExpired,
		AmountCents:        -offsetAmount,
		BalanceBeforeCents: newBalance + offsetAmount,
		BalanceAfterCents:  newBalance,
		ReferenceOrderID:   entry.ReferenceOrderID,
		CreatedAt:          time.Now(),
	}

	if err := s.repo.InsertEntry(ctx, tx, offset); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit offset: %w", err)
	}

	s.cache.Invalidate(ctx, entry.UserID, entry.Kind)
	return nil
}

// RunSweeper periodically runs ExpireSweep until the context is cancelled.
// Transient failures are retried with fibonacci backoff inside each cycle.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", interval).Msg("ledger expiry sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("ledger expiry sweeper stopped")
			return
		case <-ticker.C:
			backoff := retry.WithMaxRetries(3, retry.NewFibonacci(time.Second))
			err := retry.Do(ctx, backoff, func(ctx context.Context) error {
				_, err := s.ExpireSweep(ctx, time.Now())
				return retry.RetryableError(err)
			})
			if err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("expiry sweep failed")
			}
		}
	}
}

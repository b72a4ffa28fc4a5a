package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"storefront/internal/model"
	"storefront/internal/repository"
)

// fakeTx satisfies pgx.Tx for service tests; the repository underneath is
// mocked, so no statement ever reaches it.
type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *fakeTx) Commit(ctx context.Context) error          { t.committed = true; return nil }
func (t *fakeTx) Rollback(ctx context.Context) error        { t.rolledBack = true; return nil }
func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakeTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *fakeTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *fakeTx) Conn() *pgx.Conn                                               { return nil }

type mockLedgerRepo struct {
	mock.Mock
}

func (m *mockLedgerRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	return args.Get(0).(pgx.Tx), args.Error(1)
}

func (m *mockLedgerRepo) EnsureAccount(ctx context.Context, q repository.Querier, userID int64, kind model.LedgerKind) error {
	args := m.Called(ctx, q, userID, kind)
	return args.Error(0)
}

func (m *mockLedgerRepo) GetBalance(ctx context.Context, q repository.Querier, userID int64, kind model.LedgerKind) (int64, error) {
	args := m.Called(ctx, q, userID, kind)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockLedgerRepo) ApplyToBalance(ctx context.Context, q repository.Querier, userID int64, kind model.LedgerKind, delta int64) (int64, bool, error) {
	args := m.Called(ctx, q, userID, kind, delta)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *mockLedgerRepo) InsertEntry(ctx context.Context, q repository.Querier, entry *model.LedgerEntry) error {
	args := m.Called(ctx, q, entry)
	return args.Error(0)
}

func (m *mockLedgerRepo) SumEntries(ctx context.Context, q repository.Querier, userID int64, kind model.LedgerKind) (int64, error) {
	args := m.Called(ctx, q, userID, kind)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockLedgerRepo) EntriesByUser(ctx context.Context, q repository.Querier, userID int64, kind model.LedgerKind, limit int) ([]model.LedgerEntry, error) {
	args := m.Called(ctx, q, userID, kind, limit)
	if e := args.Get(0); e != nil {
		return e.([]model.LedgerEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLedgerRepo) ExpiredUnoffset(ctx context.Context, q repository.Querier, now time.Time, limit int) ([]model.LedgerEntry, error) {
	args := m.Called(ctx, q, now, limit)
	if e := args.Get(0); e != nil {
		return e.([]model.LedgerEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLedgerRepo) MarkOffset(ctx context.Context, q repository.Querier, entryID, offsetBy uuid.UUID) (bool, error) {
	args := m.Called(ctx, q, entryID, offsetBy)
	return args.Bool(0), args.Error(1)
}

func newTestService(repo *mockLedgerRepo) *Service {
	return NewService(repo, nil, NewBalanceCache(nil, zerolog.Nop()), zerolog.Nop())
}

func TestAppendWritesEntryWithBalances(t *testing.T) {
	repo := &mockLedgerRepo{}
	repo.On("EnsureAccount", mock.Anything, mock.Anything, int64(1), model.LedgerWallet).Return(nil)
	repo.On("ApplyToBalance", mock.Anything, mock.Anything, int64(1), model.LedgerWallet, int64(500)).
		Return(int64(1500), true, nil)
	repo.On("InsertEntry", mock.Anything, mock.Anything, mock.MatchedBy(func(e *model.LedgerEntry) bool {
		return e.AmountCents == 500 && e.BalanceBeforeCents == 1000 && e.BalanceAfterCents == 1500
	})).Return(nil)

	s := newTestService(repo)
	entry, err := s.Append(context.Background(), nil, 1, model.LedgerWallet, model.EntryDeposit, 500, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, int64(1500), entry.BalanceAfterCents)
	repo.AssertExpectations(t)
}

func TestAppendInsufficientBalance(t *testing.T) {
	tests := []struct {
		kind    model.LedgerKind
		wantErr error
	}{
		{model.LedgerWallet, model.ErrInsufficientWallet},
		{model.LedgerPoints, model.ErrInsufficientPoints},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			repo := &mockLedgerRepo{}
			repo.On("EnsureAccount", mock.Anything, mock.Anything, int64(1), tt.kind).Return(nil)
			repo.On("ApplyToBalance", mock.Anything, mock.Anything, int64(1), tt.kind, int64(-900)).
				Return(int64(0), false, nil)

			s := newTestService(repo)
			_, err := s.Append(context.Background(), nil, 1, tt.kind, model.EntryRedeemed, -900, nil, nil)

			assert.ErrorIs(t, err, tt.wantErr)
			repo.AssertNotCalled(t, "InsertEntry", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestRedeemRejectsNonPositiveAmount(t *testing.T) {
	s := newTestService(&mockLedgerRepo{})
	_, err := s.Redeem(context.Background(), nil, 1, model.LedgerPoints, 0, nil)
	assert.Error(t, err)
}

func TestDepositCommitsOwnTransaction(t *testing.T) {
	tx := &fakeTx{}
	repo := &mockLedgerRepo{}
	repo.On("BeginTx", mock.Anything).Return(tx, nil)
	repo.On("EnsureAccount", mock.Anything, tx, int64(1), model.LedgerWallet).Return(nil)
	repo.On("ApplyToBalance", mock.Anything, tx, int64(1), model.LedgerWallet, int64(2500)).
		Return(int64(2500), true, nil)
	repo.On("InsertEntry", mock.Anything, tx, mock.Anything).Return(nil)

	s := newTestService(repo)
	entry, err := s.Deposit(context.Background(), 1, 2500)

	require.NoError(t, err)
	assert.Equal(t, model.EntryDeposit, entry.EntryType)
	assert.True(t, tx.committed)
}

func TestTransferAppliesLegsInUserOrder(t *testing.T) {
	tx := &fakeTx{}
	var touched []int64

	repo := &mockLedgerRepo{}
	repo.On("BeginTx", mock.Anything).Return(tx, nil)
	repo.On("EnsureAccount", mock.Anything, tx, mock.Anything, model.LedgerWallet).Return(nil)
	repo.On("ApplyToBalance", mock.Anything, tx, mock.Anything, model.LedgerWallet, mock.Anything).
		Run(func(args mock.Arguments) {
			touched = append(touched, args.Get(2).(int64))
		}).
		Return(int64(100), true, nil)
	repo.On("InsertEntry", mock.Anything, tx, mock.Anything).Return(nil)

	s := newTestService(repo)
	err := s.Transfer(context.Background(), 9, 3, 50)

	require.NoError(t, err)
	assert.Equal(t, []int64{3, 9}, touched, "row locks are taken in ascending user order")
	assert.True(t, tx.committed)
}

func TestTransferValidation(t *testing.T) {
	s := newTestService(&mockLedgerRepo{})

	assert.Error(t, s.Transfer(context.Background(), 1, 1, 100), "self transfer")
	assert.Error(t, s.Transfer(context.Background(), 1, 2, 0), "zero amount")
	assert.Error(t, s.Transfer(context.Background(), 1, 2, -5), "negative amount")
}

func TestTransferInsufficientRollsBack(t *testing.T) {
	tx := &fakeTx{}
	repo := &mockLedgerRepo{}
	repo.On("BeginTx", mock.Anything).Return(tx, nil)
	repo.On("EnsureAccount", mock.Anything, tx, mock.Anything, model.LedgerWallet).Return(nil)
	repo.On("ApplyToBalance", mock.Anything, tx, mock.Anything, model.LedgerWallet, mock.Anything).
		Return(int64(0), false, nil)

	s := newTestService(repo)
	err := s.Transfer(context.Background(), 2, 7, 100)

	assert.Error(t, err)
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
}

func TestExpireSweepClampsToCurrentBalance(t *testing.T) {
	entry := model.LedgerEntry{
		ID:          uuid.New(),
		UserID:      1,
		Kind:        model.LedgerPoints,
		EntryType:   model.EntryEarned,
		AmountCents: 100,
	}

	tx := &fakeTx{}
	repo := &mockLedgerRepo{}
	repo.On("ExpiredUnoffset", mock.Anything, mock.Anything, mock.Anything, sweepBatchSize).
		Return([]model.LedgerEntry{entry}, nil)
	repo.On("BeginTx", mock.Anything).Return(tx, nil)
	repo.On("MarkOffset", mock.Anything, tx, entry.ID, mock.Anything).Return(true, nil)
	// The user already spent 60 of the 100 expiring points.
	repo.On("GetBalance", mock.Anything, tx, int64(1), model.LedgerPoints).Return(int64(40), nil)
	repo.On("ApplyToBalance", mock.Anything, tx, int64(1), model.LedgerPoints, int64(-40)).
		Return(int64(0), true, nil)
	repo.On("InsertEntry", mock.Anything, tx, mock.MatchedBy(func(e *model.LedgerEntry) bool {
		return e.EntryType == model.EntryExpired && e.AmountCents == -40
	})).Return(nil)

	s := newTestService(repo)
	swept, err := s.ExpireSweep(context.Background(), time.Now())

	require.NoError(t, err)
	assert.Equal(t, 1, swept)
	assert.True(t, tx.committed)
	repo.AssertExpectations(t)
}

func TestExpireSweepSkipsAlreadyOffset(t *testing.T) {
	entry := model.LedgerEntry{ID: uuid.New(), UserID: 1, Kind: model.LedgerPoints, AmountCents: 100}

	tx := &fakeTx{}
	repo := &mockLedgerRepo{}
	repo.On("ExpiredUnoffset", mock.Anything, mock.Anything, mock.Anything, sweepBatchSize).
		Return([]model.LedgerEntry{entry}, nil)
	repo.On("BeginTx", mock.Anything).Return(tx, nil)
	repo.On("MarkOffset", mock.Anything, tx, entry.ID, mock.Anything).Return(false, nil)

	s := newTestService(repo)
	_, err := s.ExpireSweep(context.Background(), time.Now())

	require.NoError(t, err)
	repo.AssertNotCalled(t, "ApplyToBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile(t *testing.T) {
	repo := &mockLedgerRepo{}
	repo.On("SumEntries", mock.Anything, mock.Anything, int64(1), model.LedgerWallet).Return(int64(700), nil)
	repo.On("GetBalance", mock.Anything, mock.Anything, int64(1), model.LedgerWallet).Return(int64(700), nil)

	s := newTestService(repo)
	sum, cached, err := s.Reconcile(context.Background(), nil, 1, model.LedgerWallet)

	require.NoError(t, err)
	assert.Equal(t, sum, cached)
}

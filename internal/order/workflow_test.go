package order

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

	"storefront/internal/config"
	"storefront/internal/model"
	"storefront/internal/pricing"
	"storefront/internal/repository"
)

// fakeTx satisfies pgx.Tx; every repository underneath is mocked.
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

type mockOrderRepo struct {
	mock.Mock
}

func (m *mockOrderRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	return args.Get(0).(pgx.Tx), args.Error(1)
}

func (m *mockOrderRepo) Create(ctx context.Context, q repository.Querier, order *model.Order) error {
	args := m.Called(ctx, q, order)
	return args.Error(0)
}

func (m *mockOrderRepo) CreateItems(ctx context.Context, q repository.Querier, items []model.OrderItem) error {
	args := m.Called(ctx, q, items)
	return args.Error(0)
}

func (m *mockOrderRepo) GetByID(ctx context.Context, q repository.Querier, id uuid.UUID) (*model.Order, []model.OrderItem, error) {
	args := m.Called(ctx, q, id)
	var order *model.Order
	if o := args.Get(0); o != nil {
		order = o.(*model.Order)
	}
	var items []model.OrderItem
	if i := args.Get(1); i != nil {
		items = i.([]model.OrderItem)
	}
	return order, items, args.Error(2)
}

func (m *mockOrderRepo) GetForUpdate(ctx context.Context, q repository.Querier, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, q, id)
	if o := args.Get(0); o != nil {
		return o.(*model.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrderRepo) UpdateStatus(ctx context.Context, q repository.Querier, id uuid.UUID, from, to model.OrderStatus) (bool, error) {
	args := m.Called(ctx, q, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrderRepo) SetPaymentStatus(ctx context.Context, q repository.Querier, id uuid.UUID, status model.PaymentStatus) error {
	args := m.Called(ctx, q, id, status)
	return args.Error(0)
}

func (m *mockOrderRepo) SetCancelReason(ctx context.Context, q repository.Querier, id uuid.UUID, reason string) error {
	args := m.Called(ctx, q, id, reason)
	return args.Error(0)
}

type mockCartRepo struct {
	mock.Mock
}

func (m *mockCartRepo) GetByUser(ctx context.Context, q repository.Querier, userID int64) (*model.Cart, []model.CartItem, error) {
	args := m.Called(ctx, q, userID)
	var cart *model.Cart
	if c := args.Get(0); c != nil {
		cart = c.(*model.Cart)
	}
	var items []model.CartItem
	if i := args.Get(1); i != nil {
		items = i.([]model.CartItem)
	}
	return cart, items, args.Error(2)
}

func (m *mockCartRepo) GetOrCreate(ctx context.Context, q repository.Querier, userID int64) (*model.Cart, error) {
	args := m.Called(ctx, q, userID)
	return args.Get(0).(*model.Cart), args.Error(1)
}

func (m *mockCartRepo) UpsertItem(ctx context.Context, q repository.Querier, item *model.CartItem) error {
	args := m.Called(ctx, q, item)
	return args.Error(0)
}

func (m *mockCartRepo) RemoveItem(ctx context.Context, q repository.Querier, cartID uuid.UUID, productID string) error {
	args := m.Called(ctx, q, cartID, productID)
	return args.Error(0)
}

func (m *mockCartRepo) Clear(ctx context.Context, q repository.Querier, cartID uuid.UUID) error {
	args := m.Called(ctx, q, cartID)
	return args.Error(0)
}

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) GetByID(ctx context.Context, q repository.Querier, id string) (*model.Product, error) {
	args := m.Called(ctx, q, id)
	if p := args.Get(0); p != nil {
		return p.(*model.Product), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCatalog) GetByIDs(ctx context.Context, q repository.Querier, ids []string) (map[string]model.Product, error) {
	args := m.Called(ctx, q, ids)
	if p := args.Get(0); p != nil {
		return p.(map[string]model.Product), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockStock struct {
	mock.Mock
}

func (m *mockStock) Reserve(ctx context.Context, q repository.Querier, orderID uuid.UUID, productID string, quantity int, branchID *string) (*model.Reservation, error) {
	args := m.Called(ctx, q, orderID, productID, quantity, branchID)
	if r := args.Get(0); r != nil {
		return r.(*model.Reservation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStock) Commit(ctx context.Context, q repository.Querier, reservationID uuid.UUID) (*model.Reservation, error) {
	args := m.Called(ctx, q, reservationID)
	if r := args.Get(0); r != nil {
		return r.(*model.Reservation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStock) Release(ctx context.Context, q repository.Querier, reservationID uuid.UUID) (*model.Reservation, error) {
	args := m.Called(ctx, q, reservationID)
	if r := args.Get(0); r != nil {
		return r.(*model.Reservation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStock) ReservationsByOrder(ctx context.Context, q repository.Querier, orderID uuid.UUID) ([]model.Reservation, error) {
	args := m.Called(ctx, q, orderID)
	if r := args.Get(0); r != nil {
		return r.([]model.Reservation), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockMoney struct {
	mock.Mock
}

func (m *mockMoney) Append(ctx context.Context, q repository.Querier, userID int64, kind model.LedgerKind, entryType model.LedgerEntryType, amountCents int64, refOrderID *uuid.UUID, expiresAt *time.Time) (*model.LedgerEntry, error) {
	args := m.Called(ctx, q, userID, kind, entryType, amountCents, refOrderID, expiresAt)
	if e := args.Get(0); e != nil {
		return e.(*model.LedgerEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMoney) Redeem(ctx context.Context, q repository.Querier, userID int64, kind model.LedgerKind, amountCents int64, refOrderID *uuid.UUID) (*model.LedgerEntry, error) {
	args := m.Called(ctx, q, userID, kind, amountCents, refOrderID)
	if e := args.Get(0); e != nil {
		return e.(*model.LedgerEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMoney) InvalidateBalance(ctx context.Context, userID int64, kind model.LedgerKind) {
	m.Called(ctx, userID, kind)
}

type mockQuoter struct {
	mock.Mock
}

func (m *mockQuoter) Quote(ctx context.Context, q repository.Querier, userID int64, items []model.CartItem, couponCode *string, pointsToUse, walletCentsToUse int64, categories map[string]string) (*pricing.Quote, error) {
	args := m.Called(ctx, q, userID, items, couponCode, pointsToUse, walletCentsToUse, categories)
	if quote := args.Get(0); quote != nil {
		return quote.(*pricing.Quote), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockQuoter) EarnedPoints(totalCents int64) int64 {
	args := m.Called(totalCents)
	return args.Get(0).(int64)
}

type mockCoupons struct {
	mock.Mock
}

func (m *mockCoupons) RecordUsage(ctx context.Context, q repository.Querier, c *model.Coupon, orderID uuid.UUID, userID int64, discountCents int64) error {
	args := m.Called(ctx, q, c, orderID, userID, discountCents)
	return args.Error(0)
}

type spyNotifier struct {
	created   int
	paid      int
	cancelled int
}

func (n *spyNotifier) OrderCreated(ctx context.Context, order *model.Order)   { n.created++ }
func (n *spyNotifier) OrderPaid(ctx context.Context, order *model.Order)     { n.paid++ }
func (n *spyNotifier) OrderCancelled(ctx context.Context, order *model.Order) { n.cancelled++ }

type workflowDeps struct {
	orders  *mockOrderRepo
	carts   *mockCartRepo
	catalog *mockCatalog
	stock   *mockStock
	money   *mockMoney
	coupons *mockCoupons
	pricer  *mockQuoter
	events  *spyNotifier
}

func newTestWorkflow() (*Workflow, *workflowDeps) {
	deps := &workflowDeps{
		orders:  &mockOrderRepo{},
		carts:   &mockCartRepo{},
		catalog: &mockCatalog{},
		stock:   &mockStock{},
		money:   &mockMoney{},
		coupons: &mockCoupons{},
		pricer:  &mockQuoter{},
		events:  &spyNotifier{},
	}

	cfg := config.PricingConfig{
		TaxRateBps:      500,
		PointValueCents: 10,
		EarnRateBps:     100,
		PointsTTL:       24 * time.Hour,
		ShippingCents:   300,
	}

	w := NewWorkflow(
		deps.orders, deps.carts, deps.catalog, deps.stock, deps.money,
		deps.coupons, deps.pricer, deps.events, nil, cfg, zerolog.Nop(),
	)
	return w, deps
}

func TestCreateFromCartEmptyCart(t *testing.T) {
	w, deps := newTestWorkflow()
	tx := &fakeTx{}

	deps.orders.On("BeginTx", mock.Anything).Return(tx, nil)
	deps.carts.On("GetByUser", mock.Anything, tx, int64(1)).Return(nil, nil, nil)

	_, err := w.CreateFromCart(context.Background(), 1, model.CheckoutRequest{ShippingAddress: "1 Main St"})

	assert.ErrorIs(t, err, model.ErrEmptyCart)
	assert.True(t, tx.rolledBack)
	assert.Equal(t, 0, deps.events.created)
}

func TestCreateFromCartHappyPath(t *testing.T) {
	w, deps := newTestWorkflow()
	tx := &fakeTx{}
	cartID := uuid.New()

	deps.orders.On("BeginTx", mock.Anything).Return(tx, nil)
	deps.carts.On("GetByUser", mock.Anything, tx, int64(1)).Return(
		&model.Cart{ID: cartID, UserID: 1},
		[]model.CartItem{{ProductID: "p1", Quantity: 2, UnitPriceCents: 4000}},
		nil,
	)
	deps.catalog.On("GetByIDs", mock.Anything, tx, []string{"p1"}).Return(map[string]model.Product{
		"p1": {ID: "p1", SKU: "SKU-1", Name: model.LocalizedText{EN: "Beans"}, PriceCents: 5000, Category: "coffee"},
	}, nil)
	deps.pricer.On("Quote", mock.Anything, tx, int64(1), mock.Anything, (*string)(nil), int64(0), int64(0), map[string]string{"p1": "coffee"}).
		Return(&pricing.Quote{SubtotalCents: 10000, TaxCents: 500, ShippingCents: 300, TotalCents: 10800}, nil)
	deps.orders.On("Create", mock.Anything, tx, mock.MatchedBy(func(o *model.Order) bool {
		return o.UserID == 1 && o.Status == model.StatusPending && o.TotalCents == 10800
	})).Return(nil)
	deps.stock.On("Reserve", mock.Anything, tx, mock.Anything, "p1", 2, (*string)(nil)).
		Return(&model.Reservation{ID: uuid.New(), Status: model.ReservationPending}, nil)
	deps.orders.On("CreateItems", mock.Anything, tx, mock.MatchedBy(func(items []model.OrderItem) bool {
		// Snapshot carries the repriced catalogue price, not the add-time price.
		return len(items) == 1 && items[0].SKU == "SKU-1" && items[0].UnitPriceCents == 5000
	})).Return(nil)
	deps.carts.On("Clear", mock.Anything, tx, cartID).Return(nil)

	resp, err := w.CreateFromCart(context.Background(), 1, model.CheckoutRequest{ShippingAddress: "1 Main St"})

	require.NoError(t, err)
	assert.True(t, tx.committed)
	assert.Equal(t, model.StatusPending, resp.Order.Status)
	assert.Equal(t, 1, deps.events.created)
	assert.Equal(t, 0, deps.events.paid)
}

func TestCreateFromCartOutOfStockRollsBack(t *testing.T) {
	w, deps := newTestWorkflow()
	tx := &fakeTx{}
	cartID := uuid.New()

	deps.orders.On("BeginTx", mock.Anything).Return(tx, nil)
	deps.carts.On("GetByUser", mock.Anything, tx, int64(1)).Return(
		&model.Cart{ID: cartID, UserID: 1},
		[]model.CartItem{{ProductID: "p1", Quantity: 50, UnitPriceCents: 4000}},
		nil,
	)
	deps.catalog.On("GetByIDs", mock.Anything, tx, []string{"p1"}).Return(map[string]model.Product{
		"p1": {ID: "p1", PriceCents: 4000},
	}, nil)
	deps.pricer.On("Quote", mock.Anything, tx, int64(1), mock.Anything, (*string)(nil), int64(0), int64(0), mock.Anything).
		Return(&pricing.Quote{SubtotalCents: 200000, TotalCents: 210300}, nil)
	deps.orders.On("Create", mock.Anything, tx, mock.Anything).Return(nil)
	deps.stock.On("Reserve", mock.Anything, tx, mock.Anything, "p1", 50, (*string)(nil)).
		Return(nil, model.ErrOutOfStock)

	_, err := w.CreateFromCart(context.Background(), 1, model.CheckoutRequest{})

	assert.ErrorIs(t, err, model.ErrOutOfStock)
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
	deps.carts.AssertNotCalled(t, "Clear", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateFromCartZeroTotalSettlesImmediately(t *testing.T) {
	w, deps := newTestWorkflow()
	tx := &fakeTx{}
	cartID := uuid.New()
	resID := uuid.New()

	deps.orders.On("BeginTx", mock.Anything).Return(tx, nil)
	deps.carts.On("GetByUser", mock.Anything, tx, int64(1)).Return(
		&model.Cart{ID: cartID, UserID: 1},
		[]model.CartItem{{ProductID: "p1", Quantity: 1, UnitPriceCents: 500}},
		nil,
	)
	deps.catalog.On("GetByIDs", mock.Anything, tx, []string{"p1"}).Return(map[string]model.Product{
		"p1": {ID: "p1", PriceCents: 500},
	}, nil)
	deps.pricer.On("Quote", mock.Anything, tx, int64(1), mock.Anything, (*string)(nil), int64(0), int64(825), mock.Anything).
		Return(&pricing.Quote{SubtotalCents: 500, WalletUsedCents: 825, TaxCents: 25, ShippingCents: 300, TotalCents: 0}, nil)
	deps.orders.On("Create", mock.Anything, tx, mock.Anything).Return(nil)
	deps.stock.On("Reserve", mock.Anything, tx, mock.Anything, "p1", 1, (*string)(nil)).
		Return(&model.Reservation{ID: resID, Status: model.ReservationPending}, nil)
	deps.money.On("Append", mock.Anything, tx, int64(1), model.LedgerWallet, model.EntryOrderPayment, int64(-825), mock.Anything, (*time.Time)(nil)).
		Return(&model.LedgerEntry{}, nil)
	deps.orders.On("CreateItems", mock.Anything, tx, mock.Anything).Return(nil)
	deps.carts.On("Clear", mock.Anything, tx, cartID).Return(nil)

	// Immediate settlement path.
	deps.stock.On("ReservationsByOrder", mock.Anything, tx, mock.Anything).
		Return([]model.Reservation{{ID: resID, Status: model.ReservationPending}}, nil)
	deps.stock.On("Commit", mock.Anything, tx, resID).
		Return(&model.Reservation{ID: resID, Status: model.ReservationCommitted}, nil)
	deps.pricer.On("EarnedPoints", int64(0)).Return(int64(0))
	deps.orders.On("SetPaymentStatus", mock.Anything, tx, mock.Anything, model.PaymentPaid).Return(nil)
	deps.orders.On("UpdateStatus", mock.Anything, tx, mock.Anything, model.StatusPending, model.StatusConfirmed).Return(true, nil)

	deps.money.On("InvalidateBalance", mock.Anything, int64(1), model.LedgerWallet).Return()
	deps.money.On("InvalidateBalance", mock.Anything, int64(1), model.LedgerPoints).Return()

	resp, err := w.CreateFromCart(context.Background(), 1, model.CheckoutRequest{WalletCentsToUse: 825})

	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, resp.Order.Status)
	assert.Equal(t, model.PaymentPaid, resp.Order.PaymentStatus)
	assert.Equal(t, 1, deps.events.paid)
	assert.Equal(t, 0, deps.events.created)
}

func TestCancelPaidOrderRefundsEverything(t *testing.T) {
	w, deps := newTestWorkflow()
	tx := &fakeTx{}
	orderID := uuid.New()
	resID := uuid.New()

	paid := &model.Order{
		ID:              orderID,
		UserID:          1,
		Status:          model.StatusConfirmed,
		PaymentStatus:   model.PaymentPaid,
		WalletUsedCents: 500,
		PointsUsed:      20,
		TotalCents:      10000,
	}

	deps.orders.On("BeginTx", mock.Anything).Return(tx, nil)
	deps.orders.On("GetForUpdate", mock.Anything, tx, orderID).Return(paid, nil)
	deps.stock.On("ReservationsByOrder", mock.Anything, tx, orderID).
		Return([]model.Reservation{{ID: resID, Status: model.ReservationPending}}, nil)
	deps.stock.On("Release", mock.Anything, tx, resID).
		Return(&model.Reservation{ID: resID, Status: model.ReservationReleased}, nil)
	deps.money.On("Append", mock.Anything, tx, int64(1), model.LedgerWallet, model.EntryRefund, int64(500), mock.Anything, (*time.Time)(nil)).
		Return(&model.LedgerEntry{}, nil)
	deps.money.On("Append", mock.Anything, tx, int64(1), model.LedgerPoints, model.EntryRefund, int64(20), mock.Anything, (*time.Time)(nil)).
		Return(&model.LedgerEntry{}, nil)
	deps.money.On("Append", mock.Anything, tx, int64(1), model.LedgerWallet, model.EntryRefund, int64(10000), mock.Anything, (*time.Time)(nil)).
		Return(&model.LedgerEntry{}, nil)
	deps.orders.On("SetPaymentStatus", mock.Anything, tx, orderID, model.PaymentRefunded).Return(nil)
	deps.orders.On("UpdateStatus", mock.Anything, tx, orderID, model.StatusConfirmed, model.StatusCancelled).Return(true, nil)
	deps.orders.On("SetCancelReason", mock.Anything, tx, orderID, "changed my mind").Return(nil)
	deps.money.On("InvalidateBalance", mock.Anything, int64(1), model.LedgerWallet).Return()
	deps.money.On("InvalidateBalance", mock.Anything, int64(1), model.LedgerPoints).Return()

	got, err := w.Cancel(context.Background(), 1, false, orderID, "changed my mind")

	require.NoError(t, err)
	assert.True(t, tx.committed)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.Equal(t, model.PaymentRefunded, got.PaymentStatus)
	assert.Equal(t, 1, deps.events.cancelled)
	deps.money.AssertExpectations(t)
}

func TestCancelShippedOrderRejected(t *testing.T) {
	w, deps := newTestWorkflow()
	tx := &fakeTx{}
	orderID := uuid.New()

	deps.orders.On("BeginTx", mock.Anything).Return(tx, nil)
	deps.orders.On("GetForUpdate", mock.Anything, tx, orderID).
		Return(&model.Order{ID: orderID, UserID: 1, Status: model.StatusShipped}, nil)

	_, err := w.Cancel(context.Background(), 1, false, orderID, "too late")

	assert.ErrorIs(t, err, model.ErrOrderNotCancellable)
	assert.False(t, tx.committed)
}

func TestCancelHidesForeignOrders(t *testing.T) {
	w, deps := newTestWorkflow()
	tx := &fakeTx{}
	orderID := uuid.New()

	deps.orders.On("BeginTx", mock.Anything).Return(tx, nil)
	deps.orders.On("GetForUpdate", mock.Anything, tx, orderID).
		Return(&model.Order{ID: orderID, UserID: 99, Status: model.StatusPending}, nil)

	_, err := w.Cancel(context.Background(), 1, false, orderID, "not mine")

	assert.ErrorIs(t, err, model.ErrOrderNotFound)
}

func TestTransitionStatusInvalidEdge(t *testing.T) {
	w, deps := newTestWorkflow()
	tx := &fakeTx{}
	orderID := uuid.New()

	deps.orders.On("BeginTx", mock.Anything).Return(tx, nil)
	deps.orders.On("GetForUpdate", mock.Anything, tx, orderID).
		Return(&model.Order{ID: orderID, Status: model.StatusPending}, nil)

	_, err := w.TransitionStatus(context.Background(), orderID, model.StatusShipped)

	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	deps.orders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTransitionStatusLostRace(t *testing.T) {
	w, deps := newTestWorkflow()
	tx := &fakeTx{}
	orderID := uuid.New()

	deps.orders.On("BeginTx", mock.Anything).Return(tx, nil)
	deps.orders.On("GetForUpdate", mock.Anything, tx, orderID).
		Return(&model.Order{ID: orderID, Status: model.StatusConfirmed}, nil)
	deps.orders.On("UpdateStatus", mock.Anything, tx, orderID, model.StatusConfirmed, model.StatusProcessing).
		Return(false, nil)

	_, err := w.TransitionStatus(context.Background(), orderID, model.StatusProcessing)

	assert.ErrorIs(t, err, model.ErrOrderStateConflict)
	assert.False(t, tx.committed)
}

func TestTransitionToRefundedRequiresPaid(t *testing.T) {
	w, deps := newTestWorkflow()
	tx := &fakeTx{}
	orderID := uuid.New()

	deps.orders.On("BeginTx", mock.Anything).Return(tx, nil)
	deps.orders.On("GetForUpdate", mock.Anything, tx, orderID).
		Return(&model.Order{ID: orderID, Status: model.StatusCancelled, PaymentStatus: model.PaymentFailed}, nil)

	_, err := w.TransitionStatus(context.Background(), orderID, model.StatusRefunded)

	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestMarkPaidSettlesOrder(t *testing.T) {
	w, deps := newTestWorkflow()
	tx := &fakeTx{}
	orderID := uuid.New()
	resID := uuid.New()

	pending := &model.Order{ID: orderID, UserID: 1, Status: model.StatusPending, PaymentStatus: model.PaymentPending, TotalCents: 10800}

	deps.orders.On("GetForUpdate", mock.Anything, tx, orderID).Return(pending, nil)
	deps.stock.On("ReservationsByOrder", mock.Anything, tx, orderID).
		Return([]model.Reservation{{ID: resID, Status: model.ReservationPending}}, nil)
	deps.stock.On("Commit", mock.Anything, tx, resID).
		Return(&model.Reservation{ID: resID, Status: model.ReservationCommitted}, nil)
	deps.pricer.On("EarnedPoints", int64(10800)).Return(int64(10))
	deps.money.On("Append", mock.Anything, tx, int64(1), model.LedgerPoints, model.EntryEarned, int64(10), mock.Anything, mock.MatchedBy(func(exp *time.Time) bool {
		return exp != nil && exp.After(time.Now())
	})).Return(&model.LedgerEntry{}, nil)
	deps.orders.On("SetPaymentStatus", mock.Anything, tx, orderID, model.PaymentPaid).Return(nil)
	deps.orders.On("UpdateStatus", mock.Anything, tx, orderID, model.StatusPending, model.StatusConfirmed).Return(true, nil)

	got, err := w.MarkPaid(context.Background(), tx, orderID)

	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	assert.Equal(t, model.PaymentPaid, got.PaymentStatus)
	deps.money.AssertExpectations(t)
}

func TestMarkPaidIdempotent(t *testing.T) {
	w, deps := newTestWorkflow()
	tx := &fakeTx{}
	orderID := uuid.New()

	deps.orders.On("GetForUpdate", mock.Anything, tx, orderID).
		Return(&model.Order{ID: orderID, Status: model.StatusConfirmed, PaymentStatus: model.PaymentPaid}, nil)

	got, err := w.MarkPaid(context.Background(), tx, orderID)

	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, got.PaymentStatus)
	deps.stock.AssertNotCalled(t, "ReservationsByOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkPaidConflictsWithCancelledOrder(t *testing.T) {
	w, deps := newTestWorkflow()
	tx := &fakeTx{}
	orderID := uuid.New()

	deps.orders.On("GetForUpdate", mock.Anything, tx, orderID).
		Return(&model.Order{ID: orderID, Status: model.StatusCancelled, PaymentStatus: model.PaymentPending}, nil)

	_, err := w.MarkPaid(context.Background(), tx, orderID)

	assert.ErrorIs(t, err, model.ErrOrderStateConflict)
}

func TestMarkFailedReleasesAndRefunds(t *testing.T) {
	w, deps := newTestWorkflow()
	tx := &fakeTx{}
	orderID := uuid.New()
	resID := uuid.New()

	pending := &model.Order{
		ID:              orderID,
		UserID:          1,
		Status:          model.StatusPending,
		PaymentStatus:   model.PaymentPending,
		WalletUsedCents: 300,
		PointsUsed:      5,
		TotalCents:      9000,
	}

	deps.orders.On("GetForUpdate", mock.Anything, tx, orderID).Return(pending, nil)
	deps.stock.On("ReservationsByOrder", mock.Anything, tx, orderID).
		Return([]model.Reservation{{ID: resID, Status: model.ReservationPending}}, nil)
	deps.stock.On("Release", mock.Anything, tx, resID).
		Return(&model.Reservation{ID: resID, Status: model.ReservationReleased}, nil)
	deps.money.On("Append", mock.Anything, tx, int64(1), model.LedgerWallet, model.EntryRefund, int64(300), mock.Anything, (*time.Time)(nil)).
		Return(&model.LedgerEntry{}, nil)
	deps.money.On("Append", mock.Anything, tx, int64(1), model.LedgerPoints, model.EntryRefund, int64(5), mock.Anything, (*time.Time)(nil)).
		Return(&model.LedgerEntry{}, nil)
	deps.orders.On("SetPaymentStatus", mock.Anything, tx, orderID, model.PaymentFailed).Return(nil)
	deps.orders.On("UpdateStatus", mock.Anything, tx, orderID, model.StatusPending, model.StatusCancelled).Return(true, nil)
	deps.orders.On("SetCancelReason", mock.Anything, tx, orderID, "card declined").Return(nil)

	got, err := w.MarkFailed(context.Background(), tx, orderID, "card declined")

	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.Equal(t, model.PaymentFailed, got.PaymentStatus)
	// The gateway never charged, so the order total is not credited back.
	deps.money.AssertNumberOfCalls(t, "Append", 2)
}

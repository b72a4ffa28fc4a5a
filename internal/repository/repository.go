package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"storefront/internal/model"
)

// Querier is the subset of pgx used by repositories. It is satisfied by
// *pgxpool.Pool and pgx.Tx, so callers choose the transaction boundary:
// checkout passes one tx through every repository it touches.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrDuplicateTransaction is returned when a webhook transaction id has
// already been recorded. Callers treat it as a replay, not a failure.
var ErrDuplicateTransaction = errors.New("transaction already recorded")

// InventoryRepository defines data access for stock rows and reservations.
// Every mutation is a single conditional statement so that concurrent
// callers can never jointly exceed the on-hand quantity.
type InventoryRepository interface {
	// GetRecord retrieves one (product, branch) stock row, or nil.
	GetRecord(ctx context.Context, q Querier, productID, branchID string) (*model.InventoryRecord, error)

	// RankedBranches returns branch ids that can currently satisfy the
	// quantity, ordered by available quantity desc, branch tier, branch id.
	RankedBranches(ctx context.Context, q Querier, productID string, quantity int) ([]string, error)

	// ReserveStock conditionally raises quantity_reserved. Returns false when
	// the row no longer has enough available quantity.
	ReserveStock(ctx context.Context, q Querier, productID, branchID string, quantity int) (bool, error)

	// CommitStock lowers both quantity_on_hand and quantity_reserved.
	CommitStock(ctx context.Context, q Querier, productID, branchID string, quantity int) error

	// ReleaseStock lowers quantity_reserved only.
	ReleaseStock(ctx context.Context, q Querier, productID, branchID string, quantity int) error

	// SetOnHand upserts the on-hand quantity without touching the reserved
	// quantity. Returns false when the new quantity would fall below the
	// reserved quantity.
	SetOnHand(ctx context.Context, q Querier, productID, branchID string, newQuantity int) (bool, error)

	// CreateReservation inserts a pending reservation row.
	CreateReservation(ctx context.Context, q Querier, res *model.Reservation) error

	// GetReservation retrieves a reservation by id, or nil.
	GetReservation(ctx context.Context, q Querier, id uuid.UUID) (*model.Reservation, error)

	// FinalizeReservation moves a reservation from pending to the given
	// terminal status. Returns the updated row and false when the row was
	// not pending (the caller decides whether that is an idempotent replay
	// or a conflict).
	FinalizeReservation(ctx context.Context, q Querier, id uuid.UUID, to model.ReservationStatus) (*model.Reservation, bool, error)

	// ReservationsByOrder lists every reservation owned by the order.
	ReservationsByOrder(ctx context.Context, q Querier, orderID uuid.UUID) ([]model.Reservation, error)

	// InsertAdjustment records an administrative stock correction.
	InsertAdjustment(ctx context.Context, q Querier, adj *model.StockAdjustment) error
}

// LedgerRepository defines data access for the append-only financial ledgers.
// Balances live in ledger_accounts purely as a guarded cache; ApplyToBalance
// and InsertEntry always run in the same transaction.
type LedgerRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// EnsureAccount creates the zero-balance account row if missing.
	EnsureAccount(ctx context.Context, q Querier, userID int64, kind model.LedgerKind) error

	// GetBalance reads the cached account balance, zero when absent.
	GetBalance(ctx context.Context, q Querier, userID int64, kind model.LedgerKind) (int64, error)

	// ApplyToBalance adds delta to the cached balance, refusing to go
	// negative. Returns the new balance and whether the update applied.
	// The row lock it takes serialises concurrent appends for one account.
	ApplyToBalance(ctx context.Context, q Querier, userID int64, kind model.LedgerKind, delta int64) (int64, bool, error)

	// InsertEntry appends one immutable ledger entry.
	InsertEntry(ctx context.Context, q Querier, entry *model.LedgerEntry) error

	// SumEntries replays the ledger for audit: sum of all entry amounts.
	SumEntries(ctx context.Context, q Querier, userID int64, kind model.LedgerKind) (int64, error)

	// EntriesByUser lists entries newest first.
	EntriesByUser(ctx context.Context, q Querier, userID int64, kind model.LedgerKind, limit int) ([]model.LedgerEntry, error)

	// ExpiredUnoffset lists positive entries whose expiry has passed and
	// which have not yet been offset.
	ExpiredUnoffset(ctx context.Context, q Querier, now time.Time, limit int) ([]model.LedgerEntry, error)

	// MarkOffset stamps an expired entry with the id of its offsetting
	// entry. Returns false when the entry was already offset.
	MarkOffset(ctx context.Context, q Querier, entryID, offsetBy uuid.UUID) (bool, error)
}

// CouponRepository defines data access for coupons and their usage history.
type CouponRepository interface {
	// GetByCode retrieves an active-or-not coupon by code, or nil.
	GetByCode(ctx context.Context, q Querier, code string) (*model.Coupon, error)

	// CountUsagesByUser counts successful redemptions by one user.
	CountUsagesByUser(ctx context.Context, q Querier, couponID uuid.UUID, userID int64) (int, error)

	// IncrementUsage conditionally bumps used_count against usage_limit.
	// The row lock it takes serialises concurrent redemptions.
	IncrementUsage(ctx context.Context, q Querier, couponID uuid.UUID) (bool, error)

	// InsertUsage records one (coupon, order) redemption.
	InsertUsage(ctx context.Context, q Querier, usage *model.CouponUsage) error
}

// CartRepository defines data access for the user's working cart.
type CartRepository interface {
	// GetByUser retrieves the user's cart with items, or nil when absent.
	GetByUser(ctx context.Context, q Querier, userID int64) (*model.Cart, []model.CartItem, error)

	// GetOrCreate returns the user's cart, creating an empty one if needed.
	GetOrCreate(ctx context.Context, q Querier, userID int64) (*model.Cart, error)

	// UpsertItem adds a line or replaces its quantity and price snapshot.
	UpsertItem(ctx context.Context, q Querier, item *model.CartItem) error

	// RemoveItem deletes one line.
	RemoveItem(ctx context.Context, q Querier, cartID uuid.UUID, productID string) error

	// Clear removes every line from the cart.
	Clear(ctx context.Context, q Querier, cartID uuid.UUID) error
}

// OrderRepository defines data access for orders and their items.
type OrderRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// Create inserts a new order row.
	Create(ctx context.Context, q Querier, order *model.Order) error

	// CreateItems inserts the order's lines.
	CreateItems(ctx context.Context, q Querier, items []model.OrderItem) error

	// GetByID retrieves an order with its items, or nil.
	GetByID(ctx context.Context, q Querier, id uuid.UUID) (*model.Order, []model.OrderItem, error)

	// GetForUpdate retrieves and row-locks an order, or nil.
	GetForUpdate(ctx context.Context, q Querier, id uuid.UUID) (*model.Order, error)

	// UpdateStatus conditionally moves an order between statuses. Returns
	// false when the order was no longer in the expected status.
	UpdateStatus(ctx context.Context, q Querier, id uuid.UUID, from, to model.OrderStatus) (bool, error)

	// SetPaymentStatus updates the payment side of an order.
	SetPaymentStatus(ctx context.Context, q Querier, id uuid.UUID, status model.PaymentStatus) error

	// SetCancelReason records why an order was cancelled.
	SetCancelReason(ctx context.Context, q Querier, id uuid.UUID, reason string) error
}

// PaymentRepository defines data access for payment intents and webhook
// idempotency records.
type PaymentRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// GetOpenIntent retrieves the order's open intent, or nil.
	GetOpenIntent(ctx context.Context, q Querier, orderID uuid.UUID) (*model.PaymentIntent, error)

	// CreateIntent inserts a new open intent.
	CreateIntent(ctx context.Context, q Querier, intent *model.PaymentIntent) error

	// CloseIntent marks the order's open intent succeeded or failed.
	CloseIntent(ctx context.Context, q Querier, orderID uuid.UUID, status model.IntentStatus) error

	// InsertWebhookRecord claims a gateway transaction id. Returns
	// ErrDuplicateTransaction when the id was already recorded.
	InsertWebhookRecord(ctx context.Context, q Querier, rec *model.WebhookRecord) error

	// GetWebhookRecord retrieves the recorded outcome for a transaction id.
	GetWebhookRecord(ctx context.Context, q Querier, transactionID string) (*model.WebhookRecord, error)

	// SetWebhookError records an internal processing failure for later
	// manual reconciliation.
	SetWebhookError(ctx context.Context, q Querier, transactionID string, processError string) error
}

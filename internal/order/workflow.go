// Package order implements the checkout and lifecycle workflow. Checkout
// composes catalogue lookup, pricing, stock reservation, coupon redemption
// and ledger debits into a single database transaction, so a failure at any
// step leaves no trace.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/model"
	"storefront/internal/pricing"
	"storefront/internal/repository"
)

// stockLedger is the slice of the inventory service the workflow needs.
type stockLedger interface {
	Reserve(ctx context.Context, q repository.Querier, orderID uuid.UUID, productID string, quantity int, branchID *string) (*model.Reservation, error)
	Commit(ctx context.Context, q repository.Querier, reservationID uuid.UUID) (*model.Reservation, error)
	Release(ctx context.Context, q repository.Querier, reservationID uuid.UUID) (*model.Reservation, error)
	ReservationsByOrder(ctx context.Context, q repository.Querier, orderID uuid.UUID) ([]model.Reservation, error)
}

// moneyLedger is the slice of the financial ledger the workflow needs.
// Amounts on the points ledger are denominated in points, not cents.
type moneyLedger interface {
	Append(ctx context.Context, q repository.Querier, userID int64, kind model.LedgerKind, entryType model.LedgerEntryType, amountCents int64, refOrderID *uuid.UUID, expiresAt *time.Time) (*model.LedgerEntry, error)
	Redeem(ctx context.Context, q repository.Querier, userID int64, kind model.LedgerKind, amountCents int64, refOrderID *uuid.UUID) (*model.LedgerEntry, error)
	InvalidateBalance(ctx context.Context, userID int64, kind model.LedgerKind)
}

// quoter is the slice of the pricing engine the workflow needs.
type quoter interface {
	Quote(ctx context.Context, q repository.Querier, userID int64, items []model.CartItem, couponCode *string, pointsToUse, walletCentsToUse int64, categories map[string]string) (*pricing.Quote, error)
	EarnedPoints(totalCents int64) int64
}

// couponRecorder is the slice of the coupon service the workflow needs.
type couponRecorder interface {
	RecordUsage(ctx context.Context, q repository.Querier, c *model.Coupon, orderID uuid.UUID, userID int64, discountCents int64) error
}

// notifier receives lifecycle events after the owning transaction commits.
// Implementations must not block the request path.
type notifier interface {
	OrderCreated(ctx context.Context, order *model.Order)
	OrderPaid(ctx context.Context, order *model.Order)
	OrderCancelled(ctx context.Context, order *model.Order)
}

// Workflow drives orders from checkout through their status lifecycle.
type Workflow struct {
	orders  repository.OrderRepository
	carts   repository.CartRepository
	catalog catalog.Source
	stock   stockLedger
	money   moneyLedger
	coupons couponRecorder
	pricer  quoter
	events  notifier
	db      repository.Querier
	cfg     config.PricingConfig
	logger  zerolog.Logger
}

// NewWorkflow creates a new order workflow.
func NewWorkflow(
	orders repository.OrderRepository,
	carts repository.CartRepository,
	catalogSrc catalog.Source,
	stock stockLedger,
	money moneyLedger,
	coupons couponRecorder,
	pricer quoter,
	events notifier,
	db repository.Querier,
	cfg config.PricingConfig,
	logger zerolog.Logger,
) *Workflow {
	return &Workflow{
		orders:  orders,
		carts:   carts,
		catalog: catalogSrc,
		stock:   stock,
		money:   money,
		coupons: coupons,
		pricer:  pricer,
		events:  events,
		db:      db,
		cfg:     cfg,
		logger:  logger.With().Str("service", "order").Logger(),
	}
}

// CreateFromCart converts the user's cart into a pending order. Cart lines
// are repriced at current catalogue prices and snapshotted onto the order.
// When the quote comes out at zero, nothing is left to collect and the
// order is settled as paid in the same transaction.
func (w *Workflow) CreateFromCart(ctx context.Context, userID int64, req model.CheckoutRequest) (*model.OrderResponse, error) {
	tx, err := w.orders.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	cart, items, err := w.carts.GetByUser(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart == nil || len(items) == 0 {
		return nil, model.ErrEmptyCart
	}

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	products, err := w.catalog.GetByIDs(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	categories := make(map[string]string, len(products))
	for i := range items {
		p := products[items[i].ProductID]
		items[i].UnitPriceCents = p.PriceCents
		categories[p.ID] = p.Category
	}

	quote, err := w.pricer.Quote(ctx, tx, userID, items, req.CouponCode, req.PointsToUse, req.WalletCentsToUse, categories)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	order := &model.Order{
		ID:                  uuid.New(),
		UserID:              userID,
		Status:              model.StatusPending,
		PaymentStatus:       model.PaymentPending,
		SubtotalCents:       quote.SubtotalCents,
		CouponDiscountCents: quote.CouponDiscountCents,
		PointsUsed:          quote.PointsUsed,
		PointsValueCents:    quote.PointsValueCents,
		WalletUsedCents:     quote.WalletUsedCents,
		TaxCents:            quote.TaxCents,
		ShippingCents:       quote.ShippingCents,
		TotalCents:          quote.TotalCents,
		ShippingAddress:     req.ShippingAddress,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if quote.Coupon != nil {
		order.CouponCode = &quote.Coupon.Code
	}

	if err := w.orders.Create(ctx, tx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	for _, item := range items {
		if _, err := w.stock.Reserve(ctx, tx, order.ID, item.ProductID, item.Quantity, req.PreferredBranchID); err != nil {
			return nil, err
		}
	}

	if quote.WalletUsedCents > 0 {
		if _, err := w.money.Append(ctx, tx, userID, model.LedgerWallet, model.EntryOrderPayment, -quote.WalletUsedCents, &order.ID, nil); err != nil {
			return nil, err
		}
	}
	if quote.PointsUsed > 0 {
		if _, err := w.money.Redeem(ctx, tx, userID, model.LedgerPoints, quote.PointsUsed, &order.ID); err != nil {
			return nil, err
		}
	}
	if quote.Coupon != nil {
		if err := w.coupons.RecordUsage(ctx, tx, quote.Coupon, order.ID, userID, quote.CouponDiscountCents); err != nil {
			return nil, err
		}
	}

	orderItems := make([]model.OrderItem, len(items))
	for i, item := range items {
		p := products[item.ProductID]
		orderItems[i] = model.OrderItem{
			ID:             uuid.New(),
			OrderID:        order.ID,
			ProductID:      item.ProductID,
			SKU:            p.SKU,
			Name:           p.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		}
	}
	if err := w.orders.CreateItems(ctx, tx, orderItems); err != nil {
		return nil, fmt.Errorf("create order items: %w", err)
	}

	if err := w.carts.Clear(ctx, tx, cart.ID); err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}

	settled := order.TotalCents == 0
	if settled {
		if err := w.settlePaid(ctx, tx, order); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit checkout: %w", err)
	}

	if quote.WalletUsedCents > 0 {
		w.money.InvalidateBalance(ctx, userID, model.LedgerWallet)
	}
	if quote.PointsUsed > 0 || settled {
		w.money.InvalidateBalance(ctx, userID, model.LedgerPoints)
	}

	if settled {
		w.events.OrderPaid(ctx, order)
	} else {
		w.events.OrderCreated(ctx, order)
	}

	w.logger.Info().
		Str("order_id", order.ID.String()).
		Int64("user_id", userID).
		Int64("total_cents", order.TotalCents).
		Bool("settled", settled).
		Msg("order created")

	return &model.OrderResponse{Order: *order, Items: orderItems}, nil
}

// GetOrder returns an order with its items. Non-admin callers only see
// their own orders; anything else reads as not found.
func (w *Workflow) GetOrder(ctx context.Context, userID int64, admin bool, orderID uuid.UUID) (*model.OrderResponse, error) {
	order, items, err := w.orders.GetByID(ctx, w.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || (!admin && order.UserID != userID) {
		return nil, model.ErrOrderNotFound
	}
	return &model.OrderResponse{Order: *order, Items: items}, nil
}

// Cancel cancels an order that has not shipped yet, releasing its stock
// holds and refunding everything collected so far, the gateway charge
// included when the order was already paid.
func (w *Workflow) Cancel(ctx context.Context, userID int64, admin bool, orderID uuid.UUID, reason string) (*model.Order, error) {
	tx, err := w.orders.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	order, err := w.orders.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || (!admin && order.UserID != userID) {
		return nil, model.ErrOrderNotFound
	}
	if !order.Status.Cancellable() {
		return nil, model.ErrOrderNotCancellable
	}

	if err := w.releaseReservations(ctx, tx, order.ID); err != nil {
		return nil, err
	}
	if err := w.refundPayments(ctx, tx, order); err != nil {
		return nil, err
	}

	ok, err := w.orders.UpdateStatus(ctx, tx, order.ID, order.Status, model.StatusCancelled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.ErrOrderStateConflict
	}
	if err := w.orders.SetCancelReason(ctx, tx, order.ID, reason); err != nil {
		return nil, err
	}
	order.Status = model.StatusCancelled
	order.CancelReason = &reason

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cancel: %w", err)
	}

	w.money.InvalidateBalance(ctx, order.UserID, model.LedgerWallet)
	w.money.InvalidateBalance(ctx, order.UserID, model.LedgerPoints)
	w.events.OrderCancelled(ctx, order)

	w.logger.Info().
		Str("order_id", order.ID.String()).
		Str("reason", reason).
		Msg("order cancelled")

	return order, nil
}

// TransitionStatus moves an order along the fulfillment lifecycle. An edge
// outside the allowed set is rejected outright; losing the conditional
// update to a concurrent writer is a retryable conflict. A transition to
// refunded additionally requires the order to have been paid.
func (w *Workflow) TransitionStatus(ctx context.Context, orderID uuid.UUID, to model.OrderStatus) (*model.Order, error) {
	tx, err := w.orders.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	order, err := w.orders.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}

	if !model.CanTransition(order.Status, to) {
		return nil, model.ErrInvalidTransition
	}
	if to == model.StatusRefunded && order.PaymentStatus != model.PaymentPaid {
		return nil, model.ErrInvalidTransition
	}

	switch to {
	case model.StatusCancelled:
		if err := w.releaseReservations(ctx, tx, order.ID); err != nil {
			return nil, err
		}
		if err := w.refundPayments(ctx, tx, order); err != nil {
			return nil, err
		}
	case model.StatusRefunded:
		if err := w.refundPayments(ctx, tx, order); err != nil {
			return nil, err
		}
	}

	ok, err := w.orders.UpdateStatus(ctx, tx, order.ID, order.Status, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.ErrOrderStateConflict
	}
	from := order.Status
	order.Status = to

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}

	if to == model.StatusCancelled || to == model.StatusRefunded {
		w.money.InvalidateBalance(ctx, order.UserID, model.LedgerWallet)
		w.money.InvalidateBalance(ctx, order.UserID, model.LedgerPoints)
	}
	if to == model.StatusCancelled {
		w.events.OrderCancelled(ctx, order)
	}

	w.logger.Info().
		Str("order_id", order.ID.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("order status updated")

	return order, nil
}

// MarkPaid settles a pending order after the gateway confirmed payment. It
// runs inside the caller's transaction; the caller invokes AfterPaid once
// that transaction commits. Re-marking a paid order is a no-op.
func (w *Workflow) MarkPaid(ctx context.Context, q repository.Querier, orderID uuid.UUID) (*model.Order, error) {
	order, err := w.orders.GetForUpdate(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	if order.PaymentStatus == model.PaymentPaid {
		return order, nil
	}
	if order.Status != model.StatusPending {
		return nil, model.ErrOrderStateConflict
	}

	if err := w.settlePaid(ctx, q, order); err != nil {
		return nil, err
	}

	return order, nil
}

// MarkFailed voids a pending order after the gateway reported a failed
// payment: stock holds are released and wallet and points collected at
// checkout are returned. Re-marking a failed order is a no-op.
func (w *Workflow) MarkFailed(ctx context.Context, q repository.Querier, orderID uuid.UUID, reason string) (*model.Order, error) {
	order, err := w.orders.GetForUpdate(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	if order.PaymentStatus == model.PaymentFailed {
		return order, nil
	}
	if order.Status != model.StatusPending {
		return nil, model.ErrOrderStateConflict
	}

	if err := w.releaseReservations(ctx, q, order.ID); err != nil {
		return nil, err
	}
	if err := w.refundPayments(ctx, q, order); err != nil {
		return nil, err
	}

	if err := w.orders.SetPaymentStatus(ctx, q, order.ID, model.PaymentFailed); err != nil {
		return nil, err
	}
	ok, err := w.orders.UpdateStatus(ctx, q, order.ID, model.StatusPending, model.StatusCancelled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.ErrOrderStateConflict
	}
	if err := w.orders.SetCancelReason(ctx, q, order.ID, reason); err != nil {
		return nil, err
	}

	order.PaymentStatus = model.PaymentFailed
	order.Status = model.StatusCancelled
	order.CancelReason = &reason

	return order, nil
}

// AfterPaid runs the post-commit effects of a successful payment.
func (w *Workflow) AfterPaid(ctx context.Context, order *model.Order) {
	w.money.InvalidateBalance(ctx, order.UserID, model.LedgerPoints)
	w.events.OrderPaid(ctx, order)
}

// AfterFailed runs the post-commit effects of a failed payment.
func (w *Workflow) AfterFailed(ctx context.Context, order *model.Order) {
	w.money.InvalidateBalance(ctx, order.UserID, model.LedgerWallet)
	w.money.InvalidateBalance(ctx, order.UserID, model.LedgerPoints)
	w.events.OrderCancelled(ctx, order)
}

// settlePaid finalizes a pending order as paid: stock holds become sales,
// loyalty points are awarded on the paid total, and the order advances to
// confirmed.
func (w *Workflow) settlePaid(ctx context.Context, q repository.Querier, order *model.Order) error {
	reservations, err := w.stock.ReservationsByOrder(ctx, q, order.ID)
	if err != nil {
		return err
	}
	for _, res := range reservations {
		if res.Status != model.ReservationPending {
			continue
		}
		if _, err := w.stock.Commit(ctx, q, res.ID); err != nil {
			return err
		}
	}

	if earned := w.pricer.EarnedPoints(order.TotalCents); earned > 0 {
		expiresAt := time.Now().Add(w.cfg.PointsTTL)
		if _, err := w.money.Append(ctx, q, order.UserID, model.LedgerPoints, model.EntryEarned, earned, &order.ID, &expiresAt); err != nil {
			return err
		}
	}

	if err := w.orders.SetPaymentStatus(ctx, q, order.ID, model.PaymentPaid); err != nil {
		return err
	}
	ok, err := w.orders.UpdateStatus(ctx, q, order.ID, model.StatusPending, model.StatusConfirmed)
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrOrderStateConflict
	}

	order.PaymentStatus = model.PaymentPaid
	order.Status = model.StatusConfirmed
	return nil
}

// releaseReservations returns every pending stock hold of the order.
func (w *Workflow) releaseReservations(ctx context.Context, q repository.Querier, orderID uuid.UUID) error {
	reservations, err := w.stock.ReservationsByOrder(ctx, q, orderID)
	if err != nil {
		return err
	}
	for _, res := range reservations {
		if res.Status != model.ReservationPending {
			continue
		}
		if _, err := w.stock.Release(ctx, q, res.ID); err != nil {
			return err
		}
	}
	return nil
}

// refundPayments returns wallet and points collected at checkout and, when
// the order was paid through the gateway, credits the charged total back to
// the wallet. Earned points are left alone; expiry eventually reclaims any
// the user does not spend.
func (w *Workflow) refundPayments(ctx context.Context, q repository.Querier, order *model.Order) error {
	if order.WalletUsedCents > 0 {
		if _, err := w.money.Append(ctx, q, order.UserID, model.LedgerWallet, model.EntryRefund, order.WalletUsedCents, &order.ID, nil); err != nil {
			return err
		}
	}
	if order.PointsUsed > 0 {
		if _, err := w.money.Append(ctx, q, order.UserID, model.LedgerPoints, model.EntryRefund, order.PointsUsed, &order.ID, nil); err != nil {
			return err
		}
	}
	if order.PaymentStatus == model.PaymentPaid {
		if order.TotalCents > 0 {
			if _, err := w.money.Append(ctx, q, order.UserID, model.LedgerWallet, model.EntryRefund, order.TotalCents, &order.ID, nil); err != nil {
				return err
			}
		}
		if err := w.orders.SetPaymentStatus(ctx, q, order.ID, model.PaymentRefunded); err != nil {
			return err
		}
		order.PaymentStatus = model.PaymentRefunded
	}
	return nil
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// BranchTier orders fulfillment branches by preference when the caller does
// not name a branch: flagship first, outlet last.
type BranchTier string

const (
	TierFlagship BranchTier = "flagship"
	TierRetail   BranchTier = "retail"
	TierOutlet   BranchTier = "outlet"
)

// Branch is a physical fulfillment location holding its own stock rows.
type Branch struct {
	ID        string        `json:"id" db:"id"`
	Name      LocalizedText `json:"name"`
	Tier      BranchTier    `json:"tier" db:"tier"`
	CreatedAt time.Time     `json:"createdAt" db:"created_at"`
}

// InventoryRecord is the stock row for one (product, branch) pair.
// Available quantity is derived and never stored.
type InventoryRecord struct {
	ProductID        string    `json:"productId" db:"product_id"`
	BranchID         string    `json:"branchId" db:"branch_id"`
	QuantityOnHand   int       `json:"quantityOnHand" db:"quantity_on_hand"`
	QuantityReserved int       `json:"quantityReserved" db:"quantity_reserved"`
	UpdatedAt        time.Time `json:"updatedAt" db:"updated_at"`
}

// Available returns the quantity that can still be reserved.
func (r InventoryRecord) Available() int {
	return r.QuantityOnHand - r.QuantityReserved
}

// ReservationStatus is the lifecycle state of a stock reservation.
// A reservation reaches exactly one terminal state.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
)

// Reservation is a temporary hold on stock tied to one order.
type Reservation struct {
	ID        uuid.UUID         `json:"id" db:"id"`
	OrderID   uuid.UUID         `json:"orderId" db:"order_id"`
	ProductID string            `json:"productId" db:"product_id"`
	BranchID  string            `json:"branchId" db:"branch_id"`
	Quantity  int               `json:"quantity" db:"quantity"`
	Status    ReservationStatus `json:"status" db:"status"`
	CreatedAt time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time         `json:"updatedAt" db:"updated_at"`
}

// StockAdjustment is the audit record for an administrative stock correction.
type StockAdjustment struct {
	ID          uuid.UUID `json:"id" db:"id"`
	ProductID   string    `json:"productId" db:"product_id"`
	BranchID    string    `json:"branchId" db:"branch_id"`
	OldQuantity int       `json:"oldQuantity" db:"old_quantity"`
	NewQuantity int       `json:"newQuantity" db:"new_quantity"`
	Reason      string    `json:"reason" db:"reason"`
	ActorID     int64     `json:"actorId" db:"actor_id"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

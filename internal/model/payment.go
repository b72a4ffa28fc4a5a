package model

import (
	"time"

	"github.com/google/uuid"
)

// IntentStatus is the lifecycle of a payment intent at the gateway.
type IntentStatus string

const (
	IntentOpen      IntentStatus = "open"
	IntentSucceeded IntentStatus = "succeeded"
	IntentFailed    IntentStatus = "failed"
)

// PaymentIntent links an order to a gateway intent reference.
// At most one open intent exists per order.
type PaymentIntent struct {
	ID          uuid.UUID    `json:"id" db:"id"`
	OrderID     uuid.UUID    `json:"orderId" db:"order_id"`
	IntentRef   string       `json:"intentRef" db:"intent_ref"`
	AmountCents int64        `json:"amountCents" db:"amount_cents"`
	Currency    string       `json:"currency" db:"currency"`
	Status      IntentStatus `json:"status" db:"status"`
	CreatedAt   time.Time    `json:"createdAt" db:"created_at"`
}

// WebhookOutcome is the gateway's verdict for a transaction.
type WebhookOutcome string

const (
	OutcomeSuccess WebhookOutcome = "success"
	OutcomeFailure WebhookOutcome = "failure"
)

// WebhookEvent is the inbound payment notification. TransactionID is the
// idempotency key: the same transaction is applied at most once.
type WebhookEvent struct {
	TransactionID string         `json:"transactionId"`
	OrderID       uuid.UUID      `json:"orderId"`
	Outcome       WebhookOutcome `json:"outcome"`
	Reason        string         `json:"reason,omitempty"`
}

// WebhookRecord is the persisted result of applying a webhook event.
// Duplicate deliveries replay this record instead of reprocessing.
type WebhookRecord struct {
	TransactionID string         `json:"transactionId" db:"transaction_id"`
	OrderID       uuid.UUID      `json:"orderId" db:"order_id"`
	Outcome       WebhookOutcome `json:"outcome" db:"outcome"`
	ProcessError  *string        `json:"processError,omitempty" db:"process_error"`
	CreatedAt     time.Time      `json:"createdAt" db:"created_at"`
}

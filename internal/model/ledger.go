package model

import (
	"time"

	"github.com/google/uuid"
)

// LedgerKind separates the two financial ledgers kept per user.
type LedgerKind string

const (
	LedgerWallet LedgerKind = "wallet"
	LedgerPoints LedgerKind = "points"
)

// LedgerEntryType classifies why an entry was appended.
type LedgerEntryType string

const (
	EntryDeposit      LedgerEntryType = "deposit"
	EntryOrderPayment LedgerEntryType = "order_payment"
	EntryRefund       LedgerEntryType = "refund"
	EntryTransferIn   LedgerEntryType = "transfer_in"
	EntryTransferOut  LedgerEntryType = "transfer_out"
	EntryEarned       LedgerEntryType = "earned"
	EntryBonus        LedgerEntryType = "bonus"
	EntryRedeemed     LedgerEntryType = "redeemed"
	EntryExpired      LedgerEntryType = "expired"
	EntryAdjustment   LedgerEntryType = "adjustment"
)

// LedgerEntry is one immutable, signed financial record. The balance fields
// are written in the same statement as the entry, so
// balanceAfter = balanceBefore + amount holds for every row in sequence.
type LedgerEntry struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	UserID             int64           `json:"userId" db:"user_id"`
	Kind               LedgerKind      `json:"kind" db:"kind"`
	EntryType          LedgerEntryType `json:"entryType" db:"entry_type"`
	AmountCents        int64           `json:"amountCents" db:"amount_cents"`
	BalanceBeforeCents int64           `json:"balanceBeforeCents" db:"balance_before_cents"`
	BalanceAfterCents  int64           `json:"balanceAfterCents" db:"balance_after_cents"`
	ReferenceOrderID   *uuid.UUID      `json:"referenceOrderId,omitempty" db:"reference_order_id"`
	ExpiresAt          *time.Time      `json:"expiresAt,omitempty" db:"expires_at"`
	OffsetBy           *uuid.UUID      `json:"offsetBy,omitempty" db:"offset_by"`
	CreatedAt          time.Time       `json:"createdAt" db:"created_at"`
}

// TransferRequest is the payload for a wallet-to-wallet transfer.
type TransferRequest struct {
	ToUserID    int64 `json:"toUserId"`
	AmountCents int64 `json:"amountCents"`
}

// BalanceResponse reports a derived ledger balance.
type BalanceResponse struct {
	Kind         LedgerKind `json:"kind"`
	BalanceCents int64      `json:"balanceCents"`
}

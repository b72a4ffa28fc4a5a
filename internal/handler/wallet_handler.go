package handler

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"storefront/internal/ledger"
	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/repository"
)

// WalletHandler serves the wallet and loyalty-points endpoints.
type WalletHandler struct {
	ledgers *ledger.Service
	db      repository.Querier
	logger  zerolog.Logger
}

// NewWalletHandler creates a new wallet handler.
func NewWalletHandler(ledgers *ledger.Service, db repository.Querier, logger zerolog.Logger) *WalletHandler {
	return &WalletHandler{
		ledgers: ledgers,
		db:      db,
		logger:  logger.With().Str("handler", "wallet").Logger(),
	}
}

type depositRequest struct {
	AmountCents int64 `json:"amountCents"`
}

// Deposit handles POST /api/v1/wallet/deposit.
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var req depositRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.AmountCents <= 0 {
		writeError(w, r, h.logger, model.ErrInvalidQuantity)
		return
	}

	entry, err := h.ledgers.Deposit(r.Context(), userID, req.AmountCents)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// Transfer handles POST /api/v1/wallet/transfer.
func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var req model.TransferRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.AmountCents <= 0 || req.ToUserID <= 0 || req.ToUserID == userID {
		writeError(w, r, h.logger, model.ErrInvalidQuantity)
		return
	}

	if err := h.ledgers.Transfer(r.Context(), userID, req.ToUserID, req.AmountCents); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// WalletBalance handles GET /api/v1/wallet/balance.
func (h *WalletHandler) WalletBalance(w http.ResponseWriter, r *http.Request) {
	h.balance(w, r, model.LedgerWallet)
}

// PointsBalance handles GET /api/v1/points/balance.
func (h *WalletHandler) PointsBalance(w http.ResponseWriter, r *http.Request) {
	h.balance(w, r, model.LedgerPoints)
}

func (h *WalletHandler) balance(w http.ResponseWriter, r *http.Request, kind model.LedgerKind) {
	userID, _ := middleware.UserID(r.Context())

	balance, err := h.ledgers.Balance(r.Context(), h.db, userID, kind)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, model.BalanceResponse{Kind: kind, BalanceCents: balance})
}

// WalletHistory handles GET /api/v1/wallet/history.
func (h *WalletHandler) WalletHistory(w http.ResponseWriter, r *http.Request) {
	h.history(w, r, model.LedgerWallet)
}

// PointsHistory handles GET /api/v1/points/history.
func (h *WalletHandler) PointsHistory(w http.ResponseWriter, r *http.Request) {
	h.history(w, r, model.LedgerPoints)
}

func (h *WalletHandler) history(w http.ResponseWriter, r *http.Request, kind model.LedgerKind) {
	userID, _ := middleware.UserID(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.ledgers.History(r.Context(), h.db, userID, kind, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

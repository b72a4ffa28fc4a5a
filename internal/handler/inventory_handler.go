package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"storefront/internal/inventory"
	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/repository"
)

// InventoryHandler serves stock availability and the admin adjustment
// endpoint.
type InventoryHandler struct {
	stock  *inventory.Ledger
	db     repository.Querier
	logger zerolog.Logger
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(stock *inventory.Ledger, db repository.Querier, logger zerolog.Logger) *InventoryHandler {
	return &InventoryHandler{
		stock:  stock,
		db:     db,
		logger: logger.With().Str("handler", "inventory").Logger(),
	}
}

type availabilityResponse struct {
	ProductID string   `json:"productId"`
	Quantity  int      `json:"quantity"`
	Branches  []string `json:"branches"`
	InStock   bool     `json:"inStock"`
}

// Availability handles GET /api/v1/products/{productID}/availability.
func (h *InventoryHandler) Availability(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	quantity := 1
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, h.logger, model.ErrInvalidQuantity)
			return
		}
		quantity = parsed
	}

	branches, err := h.stock.Availability(r.Context(), h.db, productID, quantity)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if branches == nil {
		branches = []string{}
	}

	writeJSON(w, http.StatusOK, availabilityResponse{
		ProductID: productID,
		Quantity:  quantity,
		Branches:  branches,
		InStock:   len(branches) > 0,
	})
}

// GetRecord handles GET /api/v1/admin/inventory/{productID}/{branchID}.
func (h *InventoryHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	branchID := chi.URLParam(r, "branchID")

	record, err := h.stock.Record(r.Context(), h.db, productID, branchID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if record == nil {
		writeError(w, r, h.logger, model.ErrProductNotFound)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

type adjustRequest struct {
	ProductID string `json:"productId"`
	BranchID  string `json:"branchId"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
}

// Adjust handles PUT /api/v1/admin/inventory.
func (h *InventoryHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.UserID(r.Context())

	var req adjustRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.ProductID == "" || req.BranchID == "" || req.Reason == "" {
		writeError(w, r, h.logger, model.NewDomainError(model.ErrCodeInvalidJSON, "productId, branchId and reason are required"))
		return
	}

	if err := h.stock.Adjust(r.Context(), h.db, actorID, req.ProductID, req.BranchID, req.Quantity, req.Reason); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	record, err := h.stock.Record(r.Context(), h.db, req.ProductID, req.BranchID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/order"
	"storefront/internal/payment"
)

// OrderHandler serves checkout and order lifecycle endpoints.
type OrderHandler struct {
	workflow   *order.Workflow
	reconciler *payment.Reconciler
	logger     zerolog.Logger
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(workflow *order.Workflow, reconciler *payment.Reconciler, logger zerolog.Logger) *OrderHandler {
	return &OrderHandler{
		workflow:   workflow,
		reconciler: reconciler,
		logger:     logger.With().Str("handler", "order").Logger(),
	}
}

// Checkout handles POST /api/v1/checkout.
func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var req model.CheckoutRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp, err := h.workflow.CreateFromCart(r.Context(), userID, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// Get handles GET /api/v1/orders/{orderID}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, h.logger, model.ErrOrderNotFound)
		return
	}

	resp, err := h.workflow.GetOrder(r.Context(), userID, middleware.IsAdmin(r.Context()), orderID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /api/v1/orders/{orderID}/cancel.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, h.logger, model.ErrOrderNotFound)
		return
	}

	var req cancelRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Reason == "" {
		req.Reason = "cancelled by customer"
	}

	ord, err := h.workflow.Cancel(r.Context(), userID, middleware.IsAdmin(r.Context()), orderID, req.Reason)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ord)
}

// UpdateStatus handles PATCH /api/v1/admin/orders/{orderID}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, h.logger, model.ErrOrderNotFound)
		return
	}

	var req model.StatusUpdateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	ord, err := h.workflow.TransitionStatus(r.Context(), orderID, req.Status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ord)
}

// CreateIntent handles POST /api/v1/orders/{orderID}/payment-intent.
func (h *OrderHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, h.logger, model.ErrOrderNotFound)
		return
	}

	intent, err := h.reconciler.CreateIntent(r.Context(), userID, middleware.IsAdmin(r.Context()), orderID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, intent)
}

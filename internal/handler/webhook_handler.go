package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"storefront/internal/model"
	"storefront/internal/payment"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// WebhookHandler receives payment gateway notifications. It sits outside
// the identity middleware; the HMAC signature is the authentication.
type WebhookHandler struct {
	reconciler *payment.Reconciler
	secret     string
	logger     zerolog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(reconciler *payment.Reconciler, secret string, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		secret:     secret,
		logger:     logger.With().Str("handler", "webhook").Logger(),
	}
}

// HandlePayment handles POST /webhooks/payment. Duplicate deliveries and
// internal settlement failures are both acknowledged with 200 so the
// gateway stops redelivering; only infrastructure errors report 500.
func (h *WebhookHandler) HandlePayment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	signature := r.Header.Get("X-Gateway-Signature")
	if !payment.VerifySignature(h.secret, body, signature) {
		h.logger.Warn().Msg("webhook signature verification failed")
		writeError(w, r, h.logger, model.ErrInvalidSignature)
		return
	}

	var event model.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, r, h.logger, model.NewDomainError(model.ErrCodeInvalidJSON, "webhook body is not valid JSON"))
		return
	}
	if event.TransactionID == "" || (event.Outcome != model.OutcomeSuccess && event.Outcome != model.OutcomeFailure) {
		writeError(w, r, h.logger, model.NewDomainError(model.ErrCodeInvalidJSON, "webhook event is missing required fields"))
		return
	}

	if err := h.reconciler.HandleWebhook(r.Context(), event); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

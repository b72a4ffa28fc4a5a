// Package handler implements the HTTP surface. Handlers decode and
// validate requests, delegate to the services, and translate domain
// errors into stable error codes with the right status.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"storefront/internal/middleware"
	"storefront/internal/model"
)

// statusByCode maps domain error codes to HTTP statuses. Unlisted codes
// fall back to 500.
var statusByCode = map[string]int{
	model.ErrCodeInvalidJSON:          http.StatusBadRequest,
	model.ErrCodeInvalidQuantity:      http.StatusBadRequest,
	model.ErrCodeEmptyCart:            http.StatusBadRequest,
	model.ErrCodeInvalidCoupon:        http.StatusUnprocessableEntity,
	model.ErrCodeCouponExpired:        http.StatusUnprocessableEntity,
	model.ErrCodeMinimumNotMet:        http.StatusUnprocessableEntity,
	model.ErrCodeUsageLimitExceeded:   http.StatusUnprocessableEntity,
	model.ErrCodeUserLimitExceeded:    http.StatusUnprocessableEntity,
	model.ErrCodeCouponNotApplicable:  http.StatusUnprocessableEntity,
	model.ErrCodeInsufficientWallet:   http.StatusUnprocessableEntity,
	model.ErrCodeInsufficientPoints:   http.StatusUnprocessableEntity,
	model.ErrCodeOutOfStock:           http.StatusConflict,
	model.ErrCodeOrderNotCancellable:  http.StatusConflict,
	model.ErrCodeOrderStateConflict:   http.StatusConflict,
	model.ErrCodeInvalidTransition:    http.StatusConflict,
	model.ErrCodeReservationFinalized: http.StatusConflict,
	model.ErrCodeOrderNotFound:        http.StatusNotFound,
	model.ErrCodeProductNotFound:      http.StatusNotFound,
	model.ErrCodeReservationNotFound:  http.StatusNotFound,
	model.ErrCodePaymentGateway:       http.StatusBadGateway,
	model.ErrCodeInvalidSignature:     http.StatusUnauthorized,
	model.ErrCodeUnauthorised:         http.StatusUnauthorized,
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError translates an error into a stable error response. Domain
// errors keep their code and message; anything else is an opaque 500.
func writeError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	resp := model.ErrorResponse{
		CorrelationID: middleware.CorrelationID(r.Context()),
	}

	var domainErr *model.DomainError
	if errors.As(err, &domainErr) {
		resp.Error = domainErr.Code
		resp.Message = domainErr.Message

		status, ok := statusByCode[domainErr.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, resp)
		return
	}

	logger.Error().
		Err(err).
		Str("path", r.URL.Path).
		Str("correlation_id", resp.CorrelationID).
		Msg("request failed")

	resp.Error = model.ErrCodeInternalError
	resp.Message = "internal server error"
	writeJSON(w, http.StatusInternalServerError, resp)
}

// decode reads a JSON request body into v.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.NewDomainError(model.ErrCodeInvalidJSON, "request body is not valid JSON")
	}
	return nil
}

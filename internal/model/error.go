package model

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON          = "INVALID_JSON"
	ErrCodeOutOfStock           = "OUT_OF_STOCK"
	ErrCodeEmptyCart            = "EMPTY_CART"
	ErrCodeInvalidCoupon        = "INVALID_COUPON"
	ErrCodeCouponExpired        = "COUPON_EXPIRED"
	ErrCodeMinimumNotMet        = "COUPON_MINIMUM_NOT_MET"
	ErrCodeUsageLimitExceeded   = "COUPON_USAGE_LIMIT_EXCEEDED"
	ErrCodeUserLimitExceeded    = "COUPON_USER_LIMIT_EXCEEDED"
	ErrCodeCouponNotApplicable  = "COUPON_NOT_APPLICABLE"
	ErrCodeInsufficientWallet   = "INSUFFICIENT_WALLET_BALANCE"
	ErrCodeInsufficientPoints   = "INSUFFICIENT_LOYALTY_POINTS"
	ErrCodeOrderNotCancellable  = "ORDER_NOT_CANCELLABLE"
	ErrCodeOrderStateConflict   = "ORDER_STATE_CONFLICT"
	ErrCodeInvalidTransition    = "INVALID_STATUS_TRANSITION"
	ErrCodeOrderNotFound        = "ORDER_NOT_FOUND"
	ErrCodeProductNotFound      = "PRODUCT_NOT_FOUND"
	ErrCodeInvalidQuantity      = "INVALID_QUANTITY"
	ErrCodePaymentGateway       = "PAYMENT_GATEWAY_ERROR"
	ErrCodeInvalidSignature     = "INVALID_WEBHOOK_SIGNATURE"
	ErrCodeReservationNotFound  = "RESERVATION_NOT_FOUND"
	ErrCodeReservationFinalized = "RESERVATION_FINALIZED"
	ErrCodeUnauthorised         = "UNAUTHORIZED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// DomainError is a business-rule violation carrying a stable error code.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrOutOfStock           = NewDomainError(ErrCodeOutOfStock, "Insufficient stock at every eligible branch")
	ErrEmptyCart            = NewDomainError(ErrCodeEmptyCart, "Cart is empty")
	ErrInvalidCoupon        = NewDomainError(ErrCodeInvalidCoupon, "Coupon code does not exist or is inactive")
	ErrCouponExpired        = NewDomainError(ErrCodeCouponExpired, "Coupon is outside its validity window")
	ErrCouponMinimumNotMet  = NewDomainError(ErrCodeMinimumNotMet, "Order subtotal is below the coupon minimum")
	ErrCouponUsageLimit     = NewDomainError(ErrCodeUsageLimitExceeded, "Coupon usage limit has been reached")
	ErrCouponUserLimit      = NewDomainError(ErrCodeUserLimitExceeded, "Per-user coupon usage limit has been reached")
	ErrCouponNotApplicable  = NewDomainError(ErrCodeCouponNotApplicable, "Coupon does not apply to any item in the cart")
	ErrInsufficientWallet   = NewDomainError(ErrCodeInsufficientWallet, "Wallet balance is insufficient")
	ErrInsufficientPoints   = NewDomainError(ErrCodeInsufficientPoints, "Loyalty points balance is insufficient")
	ErrOrderNotCancellable  = NewDomainError(ErrCodeOrderNotCancellable, "Order can no longer be cancelled")
	ErrOrderStateConflict   = NewDomainError(ErrCodeOrderStateConflict, "Order status changed concurrently")
	ErrInvalidTransition    = NewDomainError(ErrCodeInvalidTransition, "Order status transition is not allowed")
	ErrOrderNotFound        = NewDomainError(ErrCodeOrderNotFound, "Order not found")
	ErrProductNotFound      = NewDomainError(ErrCodeProductNotFound, "One or more products not found")
	ErrInvalidQuantity      = NewDomainError(ErrCodeInvalidQuantity, "Quantity must be greater than zero")
	ErrPaymentGateway       = NewDomainError(ErrCodePaymentGateway, "Payment gateway request failed")
	ErrInvalidSignature     = NewDomainError(ErrCodeInvalidSignature, "Webhook signature verification failed")
	ErrReservationNotFound  = NewDomainError(ErrCodeReservationNotFound, "Reservation not found")
	ErrReservationFinalized = NewDomainError(ErrCodeReservationFinalized, "Reservation already reached the opposite terminal state")
	ErrUnauthorised         = NewDomainError(ErrCodeUnauthorised, "Caller identity is missing or not permitted")
)

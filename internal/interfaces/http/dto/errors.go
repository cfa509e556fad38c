package dto

import "net/http"

// API error codes. Every code is ERR_<DESCRIPTION> and maps to exactly one
// HTTP status through GetHTTPStatus.
const (
	ErrCodeInternal    = "ERR_INTERNAL"
	ErrCodeUnavailable = "ERR_UNAVAILABLE"

	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"

	ErrCodeUnauthorized     = "ERR_UNAUTHORIZED"
	ErrCodeTokenExpired     = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid     = "ERR_TOKEN_INVALID"
	ErrCodeInvalidSignature = "ERR_INVALID_SIGNATURE"

	ErrCodeNotFound      = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	ErrCodeConflict      = "ERR_CONFLICT"

	// ErrCodeInvalidState rejects an operation the item's current status forbids
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeSyncDisabled: the connection does not sync the target
	ErrCodeSyncDisabled = "ERR_SYNC_DISABLED"
	// ErrCodePaymentRequired: the platform plan limit is reached
	ErrCodePaymentRequired = "ERR_PAYMENT_REQUIRED"
	// ErrCodeUpstream: a platform call failed
	ErrCodeUpstream = "ERR_UPSTREAM"

	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

var statusByCode = map[string]int{
	ErrCodeInternal:    http.StatusInternalServerError,
	ErrCodeUnavailable: http.StatusServiceUnavailable,

	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,

	ErrCodeUnauthorized:     http.StatusUnauthorized,
	ErrCodeTokenExpired:     http.StatusUnauthorized,
	ErrCodeTokenInvalid:     http.StatusUnauthorized,
	ErrCodeInvalidSignature: http.StatusUnauthorized,

	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,
	ErrCodeConflict:      http.StatusConflict,

	ErrCodeInvalidState:    http.StatusUnprocessableEntity,
	ErrCodeSyncDisabled:    http.StatusUnprocessableEntity,
	ErrCodePaymentRequired: http.StatusPaymentRequired,
	ErrCodeUpstream:        http.StatusBadGateway,

	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the status of code; unknown codes are a 500
func GetHTTPStatus(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// KnownCode reports whether code is one of the API error codes
func KnownCode(code string) bool {
	_, ok := statusByCode[code]
	return ok
}

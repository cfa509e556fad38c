package itsm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrInvalidPlatform         = errors.New("itsm: invalid platform")
	ErrInvalidOrganization     = errors.New("itsm: invalid organization id")
	ErrInvalidInstanceURL      = errors.New("itsm: instance url must be an absolute http(s) url")
	ErrInvalidCredentialRef    = errors.New("itsm: credential reference is required")
	ErrInvalidConnectionStatus = errors.New("itsm: invalid connection status")
	ErrConnectionNotFound      = errors.New("itsm: connection not found")
	ErrSyncDisabled            = errors.New("itsm: sync is disabled for this connection")
	ErrUnknownProductGroup     = errors.New("itsm: unknown product group")

	ErrMappingNotFound      = errors.New("itsm: field mapping not found")
	ErrDuplicateMapping     = errors.New("itsm: internal field already mapped for this platform")
	ErrInvalidFieldType     = errors.New("itsm: invalid field type")
	ErrMissingFieldName     = errors.New("itsm: internal_field and external_field are required")
	ErrInvalidTransformRule = errors.New("itsm: invalid transform rule")
	ErrNoDefaultTemplate    = errors.New("itsm: no default mapping template for platform")

	ErrQueueItemNotFound      = errors.New("itsm: sync queue item not found")
	ErrQueueItemInFlight      = errors.New("itsm: sync queue item is being delivered")
	ErrInvalidQueueTransition = errors.New("itsm: invalid sync queue status transition")
	ErrInvalidAction          = errors.New("itsm: invalid sync action")
	ErrMissingTicketID        = errors.New("itsm: ticket id is required")
	ErrInvalidMaxAttempts     = errors.New("itsm: max attempts must be positive")
	ErrExternalIDImmutable    = errors.New("itsm: external id cannot change once assigned")
	ErrExternalIDRequired     = errors.New("itsm: external id is required for this action")

	ErrAdapterNotFound    = errors.New("itsm: no adapter registered for platform")
	ErrNormalizerNotFound = errors.New("itsm: no webhook normalizer registered for platform")
	ErrTicketNotFound     = errors.New("itsm: ticket state not found")
)

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// ErrorKind classifies delivery and processing failures
type ErrorKind string

const (
	ErrorKindNone       ErrorKind = ""
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindTransient  ErrorKind = "transient"
	ErrorKindPermission ErrorKind = "permission"
	ErrorKindPlanLimit  ErrorKind = "plan_limit"
	ErrorKindUnknown    ErrorKind = "unknown"
)

// Validation error codes
const (
	CodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
	CodeInvalidFieldValue    = "INVALID_FIELD_VALUE"
	CodeMalformedPayload     = "MALFORMED_PAYLOAD"
	CodeMissingPayloadField  = "MISSING_PAYLOAD_FIELD"
	CodeRejectedByPlatform   = "REJECTED_BY_PLATFORM"
	CodeSyncDisabled         = "SYNC_DISABLED"
)

// ValidationError is a non-retryable input error surfaced immediately to the caller
type ValidationError struct {
	Code    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("itsm: %s: %s", e.Field, e.Message)
	}
	return "itsm: " + e.Message
}

// NewValidationError creates a validation error
func NewValidationError(code, field, message string) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: message}
}

// MissingRequiredField reports a required mapping whose internal field is absent
func MissingRequiredField(field string) *ValidationError {
	return &ValidationError{
		Code:    CodeMissingRequiredField,
		Field:   field,
		Message: "required field is missing",
	}
}

// IsMissingRequiredField reports whether err is a MissingRequiredField error
func IsMissingRequiredField(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Code == CodeMissingRequiredField
}

// TransientError is a network failure, 5xx or 429 response. It is retried per the
// backoff table until max attempts is reached.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		if e.Err != nil {
			return fmt.Sprintf("itsm: transient failure (HTTP %d): %v", e.StatusCode, e.Err)
		}
		return fmt.Sprintf("itsm: transient failure (HTTP %d)", e.StatusCode)
	}
	return fmt.Sprintf("itsm: transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermissionError is returned for 401/403 responses
type PermissionError struct {
	StatusCode int
	Message    string
}

func (e *PermissionError) Error() string {
	if e.StatusCode == 0 {
		return "itsm: permission denied: " + e.Message
	}
	return fmt.Sprintf("itsm: permission denied (HTTP %d): %s", e.StatusCode, e.Message)
}

// PlanLimitError is returned for 402 responses
type PlanLimitError struct {
	StatusCode int
	Message    string
}

func (e *PlanLimitError) Error() string {
	return fmt.Sprintf("itsm: plan limit reached (HTTP %d): %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether err should be retried by the queue processor
func IsRetryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// KindOf classifies an error into the taxonomy
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var (
		ve *ValidationError
		te *TransientError
		pe *PermissionError
		le *PlanLimitError
	)
	switch {
	case errors.As(err, &te):
		return ErrorKindTransient
	case errors.As(err, &pe):
		return ErrorKindPermission
	case errors.As(err, &le):
		return ErrorKindPlanLimit
	case errors.As(err, &ve):
		return ErrorKindValidation
	default:
		return ErrorKindUnknown
	}
}

// maxErrorBody bounds how much of a response body is copied into error messages
const maxErrorBody = 512

// truncateBody cuts body to maxErrorBody bytes without splitting a rune
func truncateBody(body string) string {
	if len(body) <= maxErrorBody {
		return body
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}

// ClassifyHTTPStatus maps a platform response status into the error taxonomy.
// It returns nil for 2xx responses.
func ClassifyHTTPStatus(statusCode int, body string) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	body = truncateBody(strings.TrimSpace(body))

	switch {
	case statusCode == http.StatusTooManyRequests || statusCode >= 500:
		return &TransientError{StatusCode: statusCode, Err: errors.New(body)}
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &PermissionError{StatusCode: statusCode, Message: body}
	case statusCode == http.StatusPaymentRequired:
		return &PlanLimitError{StatusCode: statusCode, Message: body}
	default:
		return &ValidationError{
			Code:    CodeRejectedByPlatform,
			Message: fmt.Sprintf("platform rejected request (HTTP %d): %s", statusCode, body),
		}
	}
}

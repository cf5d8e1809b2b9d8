package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a failure kind in the authentication workflow.
type ErrorCode string

// Closed set of error codes surfaced by the identity and account services.
const (
	// Generic errors
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"
	ErrCodeConflict        ErrorCode = "CONFLICT"

	// Authentication errors
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeInvalidDomain      ErrorCode = "INVALID_DOMAIN"
	ErrCodeAccountLocked      ErrorCode = "ACCOUNT_LOCKED"
	ErrCodeNotAuthorized      ErrorCode = "NOT_AUTHORIZED"

	// Federated linking errors
	ErrCodeLinkExpired  ErrorCode = "LINK_EXPIRED"
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// Token errors
	ErrCodeTokenNotFound ErrorCode = "TOKEN_NOT_FOUND"
	ErrCodeTokenExpired  ErrorCode = "TOKEN_EXPIRED"

	// Account errors
	ErrCodeWeakPassword      ErrorCode = "WEAK_PASSWORD"
	ErrCodeDuplicateUsername ErrorCode = "DUPLICATE_USERNAME"
	ErrCodeInvalidField      ErrorCode = "INVALID_FIELD"

	// Store errors
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
)

// Error is a structured error carrying a code, an internal message, and an
// optional wrapped cause. The internal message is for logs; user-facing text
// is chosen by the handler layer from the code alone.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *Error) HTTPStatusCode() int {
	return MapErrorCodeToHTTPStatus(e.Code)
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with code and message
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error
// Returns ErrCodeInternal if the error is not a structured Error
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// MapErrorCodeToHTTPStatus maps error codes to HTTP status codes
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeMissingRequired, ErrCodeInvalidDomain, ErrCodeWeakPassword,
		ErrCodeInvalidField, ErrCodeTokenNotFound, ErrCodeTokenExpired,
		ErrCodeLinkExpired, ErrCodeInvalidState, ErrCodeDuplicateUsername:
		return http.StatusBadRequest

	case ErrCodeInvalidCredentials, ErrCodeAccountLocked:
		return http.StatusUnauthorized

	case ErrCodeNotAuthorized:
		return http.StatusForbidden

	case ErrCodeConflict:
		return http.StatusConflict

	case ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable

	case ErrCodeInternal:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

// StoreUnavailable wraps a storage failure
func StoreUnavailable(err error) *Error {
	return Wrap(err, ErrCodeStoreUnavailable, "store unavailable")
}

// NotAuthorized creates a "not authorized" error
func NotAuthorized(message string) *Error {
	return New(ErrCodeNotAuthorized, message)
}

// MissingRequired creates a "missing required field" error
func MissingRequired(field string) *Error {
	return Newf(ErrCodeMissingRequired, "%s is required", field)
}

package authgate

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned in JSON error bodies.
const (
	ErrCodeMissingField     = "missing_field"
	ErrCodeInvalidEmail     = "invalid_email"
	ErrCodeWeakPassword     = "weak_password"
	ErrCodeEmailExists      = "email_exists"
	ErrCodeInvalidCreds     = "invalid_credentials"
	ErrCodeNotFound         = "not_found"
	ErrCodeProviderExchange = "provider_exchange_failed"
	ErrCodePersistence      = "persistence_failed"
)

// AuthError carries an error code, a client-safe message, and optionally the
// offending field. The wrapped cause, if any, is for server-side logs only.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`

	cause error
}

func (e *AuthError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AuthError) Unwrap() error { return e.cause }

// NewAuthError creates a new authentication error.
func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

// NewValidationError creates a 400-class error for a bad request field.
func NewValidationError(code, message, field string) *AuthError {
	return NewAuthError(code, message, field)
}

// NewNotFoundError creates a 404-class error for an unknown account or
// credential.
func NewNotFoundError(message string) *AuthError {
	return NewAuthError(ErrCodeNotFound, message, "")
}

// NewProviderExchangeError wraps a failed or unverifiable external provider
// exchange. The cause is logged server-side, never exposed to the client.
func NewProviderExchangeError(provider string, cause error) *AuthError {
	return &AuthError{
		Code:    ErrCodeProviderExchange,
		Message: fmt.Sprintf("failed to get %s sign in data", provider),
		cause:   cause,
	}
}

// NewPersistenceError wraps a store read or write failure. Requests must
// abort on these rather than continue with stale data.
func NewPersistenceError(op string, cause error) *AuthError {
	return &AuthError{
		Code:    ErrCodePersistence,
		Message: fmt.Sprintf("account store %s failed", op),
		cause:   cause,
	}
}

// HTTPStatus maps an error code to the status the route boundary should use.
func (e *AuthError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeProviderExchange, ErrCodePersistence:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// AsAuthError extracts an *AuthError from err, if present.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

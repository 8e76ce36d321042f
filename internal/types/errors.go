package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All components MUST use these constants instead of hardcoded strings.
const (
	// Configuration
	ErrCodeConfigMissingCredentials ErrorCode = "config_missing_credentials"
	ErrCodeConfigInvalid            ErrorCode = "config_invalid"

	// Not Found
	ErrCodeNotFoundSite ErrorCode = "not_found_site"
	ErrCodeNotFoundHold ErrorCode = "not_found_hold"

	// Conflict
	ErrCodeConflictOpenHold   ErrorCode = "conflict_open_hold_exists"
	ErrCodeConflictHoldClosed ErrorCode = "conflict_hold_already_closed"
	ErrCodeConflictConcurrent ErrorCode = "conflict_concurrent_modification"

	// Internal
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeInternalPanic      ErrorCode = "internal_panic"

	// Upstream
	ErrCodeUpstreamUnavailable    ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited    ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamWeather        ErrorCode = "upstream_weather_unavailable"
	ErrCodeUpstreamFleet          ErrorCode = "upstream_fleet_service_unavailable"
	ErrCodeUpstreamFleetRejected  ErrorCode = "upstream_fleet_rejected"
	ErrCodeUpstreamSessionInvalid ErrorCode = "upstream_session_invalid"
	ErrCodeUpstreamAuthFailed     ErrorCode = "upstream_auth_failed"
	ErrCodeUpstreamMessaging      ErrorCode = "upstream_messaging_failed"
	ErrCodeUpstreamBadPayload     ErrorCode = "upstream_bad_payload"
)

// AppError is the standard application error type used throughout the engine.
// All domain and adapter errors should be expressed as AppError so that the
// scheduler can classify them (transient, configuration, persistence) without
// string matching.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of the error with the provided details merged in.
// This is useful for adding context without mutating the original error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// CodeOf returns the ErrorCode of the outermost AppError in err's chain, or ""
// when err carries no AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether any AppError in err's chain carries the given code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// IsSessionRetryable reports whether err belongs to the session-invalid or
// service-unavailable class that permits exactly one re-authentication and
// retry of the failed fleet call.
func IsSessionRetryable(err error) bool {
	return HasCode(err, ErrCodeUpstreamSessionInvalid) || HasCode(err, ErrCodeUpstreamFleet)
}

// IsConfigurationError reports whether err is a fatal configuration error that
// will repeat until the operator corrects the configuration.
func IsConfigurationError(err error) bool {
	code := CodeOf(err)
	return strings.HasPrefix(string(code), "config_")
}

// IsTransient reports whether err is an upstream failure that may succeed on
// the next natural attempt (next cycle or next recipient).
func IsTransient(err error) bool {
	code := CodeOf(err)
	return strings.HasPrefix(string(code), "upstream_")
}

// IsPersistenceError reports whether err originated in the storage layer.
func IsPersistenceError(err error) bool {
	return HasCode(err, ErrCodeInternalDB)
}

// Package errors provides centralized error definitions and error handling
// utilities for finpace. It defines the failure taxonomy of the remote
// categorization and bank-sync calls, error constructors with context
// wrapping, and classification helpers used by the pacing loop.
//
// # Error Types
//
//   - TransportError: the remote endpoint could not be reached at all
//     (DNS, connection refused, reset). Always retryable.
//   - APIError: the remote answered with an error body or a non-2xx status.
//     Carries whether the rejection was a rate limit and any retry hint.
//   - SyncError: a bank sync for one account failed. Surfaced once to the
//     user and never retried automatically.
//
// # Usage
//
//	err := errors.NewAPIError("categorize rejected", http.StatusTooManyRequests).
//	    WithRateLimit(20 * time.Second)
//
//	if errors.IsRateLimited(err) { ... }
//	if errors.IsTransport(err) { ... }
//	if hint, ok := errors.RetryAfter(err); ok { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

var (
	// ErrTransport indicates the remote endpoint could not be reached.
	ErrTransport = New("remote unreachable")
	// ErrRateLimited indicates the remote rejected the call for exceeding its rate limit.
	ErrRateLimited = New("rate limited")
	// ErrInvalidResponse indicates the remote answered with a body that could not be decoded.
	ErrInvalidResponse = New("invalid response")
	// ErrSyncFailed indicates a bank sync did not complete.
	ErrSyncFailed = New("sync failed")
	// ErrAccountNotFound indicates the account is unknown to the snapshot source.
	ErrAccountNotFound = New("account not found")
	// ErrUnauthorized indicates the API token was rejected.
	ErrUnauthorized = New("unauthorized")
	// ErrSyncInProgress indicates a sync for the account is already being displayed.
	ErrSyncInProgress = New("sync already in progress")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// FinpaceError is the base interface for all finpace errors.
type FinpaceError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// TransportError
// -----------------------------------------------------------------------------

// TransportError represents a call that never reached the remote server.
//
// Example:
//
//	err := errors.NewTransportError("POST", url, dialErr)
//	errors.Is(err, errors.ErrTransport) // true
type TransportError struct {
	baseError
	Method string
	URL    string
}

// NewTransportError creates a new TransportError.
func NewTransportError(method, url string, cause error) *TransportError {
	return &TransportError{
		baseError: baseError{
			message:    "request failed",
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: false,
		},
		Method: method,
		URL:    url,
	}
}

// Error returns the formatted error message.
func (e *TransportError) Error() string {
	prefix := "transport error"
	if e.Method != "" || e.URL != "" {
		prefix = fmt.Sprintf("transport error [%s %s]", e.Method, e.URL)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *TransportError) Is(target error) bool {
	if _, ok := target.(*TransportError); ok {
		return true
	}
	return target == ErrTransport
}

// -----------------------------------------------------------------------------
// APIError
// -----------------------------------------------------------------------------

// APIError represents a well-formed error answer from the remote API.
//
// Example:
//
//	err := errors.NewAPIError("Rate limit exceeded", 429).WithRateLimit(20 * time.Second)
//	fmt.Println(err) // "api error [status=429, rate_limited, retry_after=20s]: Rate limit exceeded"
type APIError struct {
	baseError
	StatusCode  int
	Code        string
	RateLimited bool
	RetryAfter  time.Duration
}

// NewAPIError creates a new APIError.
func NewAPIError(message string, statusCode int) *APIError {
	return &APIError{
		baseError: baseError{
			message:    message,
			severity:   SeverityError,
			retryable:  statusCode >= 500,
			userFacing: true,
		},
		StatusCode: statusCode,
	}
}

// WithRateLimit marks the error as a rate-limit rejection. A zero retryAfter
// means the server gave no hint.
func (e *APIError) WithRateLimit(retryAfter time.Duration) *APIError {
	e.RateLimited = true
	e.RetryAfter = retryAfter
	e.retryable = true
	e.severity = SeverityWarning
	return e
}

// WithCode records the structured error code the server sent, if any.
func (e *APIError) WithCode(code string) *APIError {
	e.Code = code
	return e
}

// Message returns the server's error text without context decoration.
func (e *APIError) Message() string {
	return e.message
}

// Error returns the formatted error message.
func (e *APIError) Error() string {
	var parts []string
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	if e.RateLimited {
		parts = append(parts, "rate_limited")
	}
	if e.RetryAfter > 0 {
		parts = append(parts, fmt.Sprintf("retry_after=%s", e.RetryAfter))
	}

	prefix := "api error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("api error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *APIError) Is(target error) bool {
	if _, ok := target.(*APIError); ok {
		return true
	}
	if target == ErrRateLimited {
		return e.RateLimited
	}
	if target == ErrUnauthorized {
		return e.StatusCode == 401 || e.StatusCode == 403
	}
	return false
}

// -----------------------------------------------------------------------------
// SyncError
// -----------------------------------------------------------------------------

// SyncError represents a failed bank sync for one account.
//
// Example:
//
//	err := errors.NewSyncError("plaid item login required", cause).WithAccountID("acc_123")
type SyncError struct {
	baseError
	AccountID string
}

// NewSyncError creates a new SyncError.
func NewSyncError(message string, cause error) *SyncError {
	return &SyncError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithAccountID adds an account ID to the error context.
func (e *SyncError) WithAccountID(id string) *SyncError {
	e.AccountID = id
	return e
}

// Message returns the failure text without context decoration.
func (e *SyncError) Message() string {
	return e.message
}

// Error returns the formatted error message.
func (e *SyncError) Error() string {
	prefix := "sync error"
	if e.AccountID != "" {
		prefix = fmt.Sprintf("sync error [account=%s]", e.AccountID)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *SyncError) Is(target error) bool {
	if _, ok := target.(*SyncError); ok {
		return true
	}
	if target == ErrSyncFailed {
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsTransport returns true if the error means the remote was never reached.
func IsTransport(err error) bool {
	return err != nil && Is(err, ErrTransport)
}

// IsRateLimited returns true if the error is a rate-limit rejection.
func IsRateLimited(err error) bool {
	return err != nil && Is(err, ErrRateLimited)
}

// RetryAfter returns the server's retry hint carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var apiErr *APIError
	if As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter, true
	}
	return 0, false
}

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var finpaceErr FinpaceError
	if As(err, &finpaceErr) {
		return finpaceErr.IsRetryable()
	}

	return false
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var finpaceErr FinpaceError
	if As(err, &finpaceErr) {
		return finpaceErr.IsUserFacing()
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement FinpaceError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var finpaceErr FinpaceError
	if As(err, &finpaceErr) {
		return finpaceErr.Severity()
	}

	return SeverityError
}

// UserMessage returns the text to show a user for err: the undecorated
// server message when one exists, otherwise err.Error().
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var syncErr *SyncError
	if As(err, &syncErr) {
		return syncErr.Message()
	}
	var apiErr *APIError
	if As(err, &apiErr) {
		return apiErr.Message()
	}
	return err.Error()
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to decode categorize response")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to sync account %s", accountID)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// TransportError Tests
// -----------------------------------------------------------------------------

func TestNewTransportError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewTransportError(http.MethodPost, "http://localhost/api/categorize", cause)

	if !errors.Is(err, ErrTransport) {
		t.Error("errors.Is(err, ErrTransport) = false, want true")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if !err.IsRetryable() {
		t.Error("IsRetryable() = false, want true")
	}
	if err.IsUserFacing() {
		t.Error("IsUserFacing() = true, want false")
	}
	want := "transport error [POST http://localhost/api/categorize]: request failed: connection refused"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

// -----------------------------------------------------------------------------
// APIError Tests
// -----------------------------------------------------------------------------

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			name: "plain",
			err:  NewAPIError("boom", 0),
			want: "api error: boom",
		},
		{
			name: "with status",
			err:  NewAPIError("boom", 500),
			want: "api error [status=500]: boom",
		},
		{
			name: "rate limited with hint",
			err:  NewAPIError("Rate limit exceeded", 429).WithRateLimit(20 * time.Second),
			want: "api error [status=429, rate_limited, retry_after=20s]: Rate limit exceeded",
		},
		{
			name: "with code",
			err:  NewAPIError("slow down", 400).WithCode("rate_limited").WithRateLimit(0),
			want: "api error [status=400, code=rate_limited, rate_limited]: slow down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIError_Classification(t *testing.T) {
	limited := NewAPIError("Rate limit exceeded", 429).WithRateLimit(5 * time.Second)
	plain := NewAPIError("bad batch", 400)
	server := NewAPIError("oops", 503)

	if !IsRateLimited(limited) {
		t.Error("IsRateLimited(limited) = false, want true")
	}
	if IsRateLimited(plain) {
		t.Error("IsRateLimited(plain) = true, want false")
	}
	if IsTransport(limited) {
		t.Error("IsTransport(limited) = true, want false")
	}
	if !IsRetryable(limited) || IsRetryable(plain) || !IsRetryable(server) {
		t.Errorf("IsRetryable = (%v, %v, %v), want (true, false, true)",
			IsRetryable(limited), IsRetryable(plain), IsRetryable(server))
	}

	hint, ok := RetryAfter(fmt.Errorf("categorize: %w", limited))
	if !ok || hint != 5*time.Second {
		t.Errorf("RetryAfter = (%v, %v), want (5s, true)", hint, ok)
	}
	if _, ok := RetryAfter(plain); ok {
		t.Error("RetryAfter(plain) ok = true, want false")
	}
	if !errors.Is(NewAPIError("no", http.StatusUnauthorized), ErrUnauthorized) {
		t.Error("401 APIError does not match ErrUnauthorized")
	}
}

// -----------------------------------------------------------------------------
// SyncError Tests
// -----------------------------------------------------------------------------

func TestSyncError(t *testing.T) {
	err := NewSyncError("ITEM_LOGIN_REQUIRED", nil).WithAccountID("acc_1")

	if !errors.Is(err, ErrSyncFailed) {
		t.Error("errors.Is(err, ErrSyncFailed) = false, want true")
	}
	if err.IsRetryable() {
		t.Error("IsRetryable() = true, want false (user must re-trigger)")
	}
	if got, want := err.Error(), "sync error [account=acc_1]: ITEM_LOGIN_REQUIRED"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if got := UserMessage(Wrap(err, "sync")); got != "ITEM_LOGIN_REQUIRED" {
		t.Errorf("UserMessage() = %q, want the undecorated message", got)
	}
}

// -----------------------------------------------------------------------------
// Helper Tests
// -----------------------------------------------------------------------------

func TestGetSeverity(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Severity
	}{
		{"nil", nil, SeverityDebug},
		{"plain", errors.New("x"), SeverityError},
		{"transport", NewTransportError("GET", "u", nil), SeverityWarning},
		{"rate limited", NewAPIError("x", 429).WithRateLimit(0), SeverityWarning},
		{"sync", NewSyncError("x", nil), SeverityError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetSeverity(tt.err); got != tt.want {
				t.Errorf("GetSeverity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) != nil")
	}
	if Wrapf(nil, "x %d", 1) != nil {
		t.Error("Wrapf(nil) != nil")
	}

	base := NewTransportError("GET", "u", nil)
	wrapped := Wrapf(base, "snapshot %s", "acc")
	if !IsTransport(wrapped) {
		t.Error("IsTransport(wrapped) = false, want true")
	}
	if got := UserMessage(errors.New("plain")); got != "plain" {
		t.Errorf("UserMessage(plain) = %q", got)
	}
}

package categorize

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Iron-Ham/finpace/internal/pacing"
)

// CodeRateLimited is the structured error code for rate-limit rejections.
const CodeRateLimited = "rate_limited"

// Request is the JSON body of a batch call.
type Request struct {
	BatchSize int `json:"batch_size"`
}

// Response is the JSON body the endpoint answers with. Success and failure
// share one shape; Error is non-empty on failure.
type Response struct {
	Categorized int            `json:"successfully_categorized_in_db"`
	Pending     int            `json:"found_pending"`
	RateLimit   *RateLimitInfo `json:"rateLimit,omitempty"`

	Error   string   `json:"error,omitempty"`
	Code    string   `json:"code,omitempty"`
	Metrics *Metrics `json:"metrics,omitempty"`
}

// RateLimitInfo is the quota telemetry attached to successful responses.
type RateLimitInfo struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	ResetAt   int64 `json:"resetAt"` // epoch milliseconds
}

// Metrics carries optional diagnostics on failure bodies.
type Metrics struct {
	RateLimitInfo *ResetInfo `json:"rateLimitInfo,omitempty"`
}

// ResetInfo holds the server's retry hint.
type ResetInfo struct {
	ResetIn float64 `json:"resetIn"` // seconds
}

// MaxRetryHint caps any retry hint the server sends.
const MaxRetryHint = 24 * time.Hour

// maxErrorText bounds the body text kept in a failure message.
const maxErrorText = 200

var retryTextPattern = regexp.MustCompile(`(\d+)\s*(s|sec|secs|second|seconds)\b`)

// ToSignal converts one HTTP answer into a pacing signal. body may be empty
// or malformed; that is a generic failure, not a transport error.
func ToSignal(status int, header http.Header, body []byte, now time.Time) pacing.Signal {
	var resp Response
	decodeErr := json.Unmarshal(body, &resp)

	ok := status >= 200 && status < 300 && decodeErr == nil && resp.Error == ""
	if ok {
		sig := pacing.SuccessSignal(resp.Categorized, resp.Pending)
		if q, found := quota(resp.RateLimit, header, now); found {
			sig = sig.WithQuota(q)
		}
		return sig
	}

	msg := resp.Error
	if msg == "" {
		msg = failureText(status, body, decodeErr)
	}

	var sig pacing.Signal
	if isRateLimited(status, resp.Code, msg) {
		sig = pacing.RateLimitedSignal(msg, retryHint(resp.Metrics, header, msg, now))
	} else {
		sig = pacing.FailureSignal(msg)
	}
	if q, found := quota(resp.RateLimit, header, now); found {
		sig = sig.WithQuota(q)
	}
	return sig
}

func failureText(status int, body []byte, decodeErr error) string {
	if status >= 200 && status < 300 && decodeErr != nil {
		return "invalid response body: " + decodeErr.Error()
	}
	text := truncateText(strings.TrimSpace(string(body)), maxErrorText)
	if text == "" {
		return http.StatusText(status)
	}
	return strconv.Itoa(status) + " " + text
}

// truncateText cuts s to at most n bytes without splitting a rune.
func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRateLimited(status int, code, msg string) bool {
	return status == http.StatusTooManyRequests ||
		code == CodeRateLimited ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "Rate limit")
}

// retryHint returns zero when no hint is present.
func retryHint(m *Metrics, header http.Header, msg string, now time.Time) time.Duration {
	if m != nil && m.RateLimitInfo != nil && m.RateLimitInfo.ResetIn > 0 {
		return secondsHint(m.RateLimitInfo.ResetIn)
	}
	if d, ok := parseRetryAfter(header.Get("Retry-After"), now); ok {
		return d
	}
	if match := retryTextPattern.FindStringSubmatch(msg); match != nil {
		if n, err := strconv.ParseFloat(match[1], 64); err == nil && n > 0 {
			return secondsHint(n)
		}
	}
	return 0
}

// secondsHint converts a positive number of seconds, saturating at
// MaxRetryHint.
func secondsHint(sec float64) time.Duration {
	if sec >= MaxRetryHint.Seconds() {
		return MaxRetryHint
	}
	return time.Duration(sec * float64(time.Second))
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if n, err := strconv.ParseUint(v, 10, 64); err == nil || isRangeErr(err) {
		if n == 0 {
			return 0, false
		}
		return secondsHint(float64(n)), true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return min(d, MaxRetryHint), true
		}
	}
	return 0, false
}

// isRangeErr reports a digit string too large for uint64.
func isRangeErr(err error) bool {
	var numErr *strconv.NumError
	return errors.As(err, &numErr) && numErr.Err == strconv.ErrRange
}

func quota(info *RateLimitInfo, header http.Header, now time.Time) (pacing.Quota, bool) {
	if info != nil && info.Limit > 0 {
		q := pacing.Quota{Limit: info.Limit, Remaining: info.Remaining}
		if info.ResetAt > 0 {
			q.ResetAt = time.UnixMilli(info.ResetAt)
		}
		return q, true
	}

	limit, err := strconv.Atoi(header.Get("X-RateLimit-Limit"))
	if err != nil || limit <= 0 {
		return pacing.Quota{}, false
	}
	remaining, err := strconv.Atoi(header.Get("X-RateLimit-Remaining"))
	if err != nil {
		return pacing.Quota{}, false
	}
	q := pacing.Quota{Limit: limit, Remaining: remaining}
	if reset, err := strconv.ParseInt(header.Get("X-RateLimit-Reset"), 10, 64); err == nil && reset > 0 {
		// Large values are epoch seconds, small ones seconds from now.
		if reset > 1_000_000_000 {
			q.ResetAt = time.Unix(reset, 0)
		} else {
			q.ResetAt = now.Add(time.Duration(reset) * time.Second)
		}
	}
	return q, true
}

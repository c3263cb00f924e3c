package categorize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Iron-Ham/finpace/internal/errors"
	"github.com/Iron-Ham/finpace/internal/logging"
	"github.com/Iron-Ham/finpace/internal/pacing"
)

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 1 << 20

// Client calls the batch categorization endpoint.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	timeout    time.Duration
	logger     *logging.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds each call. Zero leaves calls unbounded apart from the
// caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = max(d, 0) }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the time source used for Retry-After dates and
// quota reset offsets.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient creates a Client posting to baseURL+endpointPath.
func NewClient(baseURL, endpointPath string, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + endpointPath,
		httpClient: &http.Client{},
		logger:     logging.NopLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the URL the client posts to, without query.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Categorize asks the server to categorize up to batchSize transactions.
// A non-nil error means the server was never heard from: it is either a
// *errors.TransportError or the context's error. Everything else, including
// HTTP error statuses, comes back as a Signal.
func (c *Client) Categorize(ctx context.Context, batchSize int) (pacing.Signal, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	reqURL := c.endpoint + "?" + url.Values{"batch_size": {strconv.Itoa(batchSize)}}.Encode()
	payload, err := json.Marshal(Request{BatchSize: batchSize})
	if err != nil {
		return pacing.Signal{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return pacing.Signal{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Shutdown is not a remote failure; timeouts are.
		if errors.Is(ctx.Err(), context.Canceled) {
			return pacing.Signal{}, ctx.Err()
		}
		return pacing.Signal{}, errors.NewTransportError(http.MethodPost, c.endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return pacing.Signal{}, errors.NewTransportError(http.MethodPost, c.endpoint, err)
	}

	sig := ToSignal(resp.StatusCode, resp.Header, body, c.now())
	c.logger.Debug("batch call answered",
		"status", resp.StatusCode,
		"batch_size", batchSize,
		"outcome", sig.Outcome.String(),
		"rate_limited", sig.RateLimited)
	return sig, nil
}

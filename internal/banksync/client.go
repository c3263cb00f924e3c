package banksync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Iron-Ham/finpace/internal/errors"
)

// API paths of the web application.
const (
	SyncPath     = "/api/plaid/sync"
	AccountsPath = "/api/accounts"
)

// AccountSnapshot is the last known state of a linked account.
type AccountSnapshot struct {
	PlaidID          string          `json:"plaidId"`
	Name             string          `json:"name"`
	Balance          decimal.Decimal `json:"balance"`
	TransactionCount int             `json:"transactionCount"`
	SyncedAt         time.Time       `json:"syncedAt,omitzero"`
}

// Remote is the web application as seen by the Syncer.
type Remote interface {
	// Accounts returns the snapshot of every linked account.
	Accounts(ctx context.Context) ([]AccountSnapshot, error)
	// Sync runs a bank sync for one account and returns the number of
	// transactions the server reported.
	Sync(ctx context.Context, accountID string) (int, error)
}

// syncRequest is the body of the bank-sync call.
type syncRequest struct {
	AccountID string `json:"accountId"`
}

// syncResponse is the body the bank-sync endpoint answers with.
type syncResponse struct {
	Success  bool `json:"success"`
	Accounts []struct {
		Account struct {
			PlaidID string `json:"plaidId"`
		} `json:"account"`
		Transactions int `json:"transactions"`
	} `json:"accounts"`
	Error string `json:"error,omitempty"`
}

// count returns the transactions reported for accountID. When the server
// reports other accounts only (a sync covers the whole bank login), their
// total is used instead.
func (r syncResponse) count(accountID string) int {
	matched, total := 0, 0
	found := false
	for _, a := range r.Accounts {
		total += a.Transactions
		if a.Account.PlaidID == accountID {
			matched += a.Transactions
			found = true
		}
	}
	if found {
		return matched
	}
	return total
}

// Client talks to the web application's bank-sync and account endpoints.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientToken sets the bearer token.
func WithClientToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithClientHTTPClient replaces the default http.Client.
func WithClientHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a Client for the application at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Accounts implements Remote.
func (c *Client) Accounts(ctx context.Context) ([]AccountSnapshot, error) {
	body, status, header, err := c.do(ctx, http.MethodGet, AccountsPath, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, apiError(status, header, body)
	}

	var accounts []AccountSnapshot
	if err := json.Unmarshal(body, &accounts); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidResponse, err.Error())
	}
	return accounts, nil
}

// Sync implements Remote. Server-side failures come back as *errors.SyncError.
func (c *Client) Sync(ctx context.Context, accountID string) (int, error) {
	payload, err := json.Marshal(syncRequest{AccountID: accountID})
	if err != nil {
		return 0, fmt.Errorf("failed to encode request: %w", err)
	}

	body, status, header, err := c.do(ctx, http.MethodPost, SyncPath, payload)
	if err != nil {
		return 0, errors.NewSyncError("bank unreachable", err).WithAccountID(accountID)
	}

	var resp syncResponse
	decodeErr := json.Unmarshal(body, &resp)
	switch {
	case status < 200 || status >= 300:
		return 0, errors.NewSyncError(apiMessage(body, status), apiError(status, header, body)).
			WithAccountID(accountID)
	case resp.Error != "":
		return 0, errors.NewSyncError(resp.Error, nil).WithAccountID(accountID)
	case decodeErr != nil:
		return 0, errors.NewSyncError("invalid sync response", errors.Wrap(errors.ErrInvalidResponse, decodeErr.Error())).
			WithAccountID(accountID)
	case !resp.Success:
		return 0, errors.NewSyncError("sync was not successful", nil).WithAccountID(accountID)
	}
	return resp.count(accountID), nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, int, http.Header, error) {
	url := c.baseURL + path

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, nil, errors.NewTransportError(method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, 0, nil, errors.NewTransportError(method, url, err)
	}
	return body, resp.StatusCode, resp.Header, nil
}

// apiError describes a non-2xx answer. A 429 carries the Retry-After
// delay when the server sent one in seconds.
func apiError(status int, header http.Header, body []byte) *errors.APIError {
	e := errors.NewAPIError(apiMessage(body, status), status)
	var b struct {
		Code string `json:"code"`
	}
	if json.Unmarshal(body, &b) == nil && b.Code != "" {
		e = e.WithCode(b.Code)
	}
	if status == http.StatusTooManyRequests {
		var retryAfter time.Duration
		if n, err := strconv.Atoi(strings.TrimSpace(header.Get("Retry-After"))); err == nil && n > 0 {
			retryAfter = time.Duration(min(n, maxRetryAfterSeconds)) * time.Second
		}
		e = e.WithRateLimit(retryAfter)
	}
	return e
}

// maxRetryAfterSeconds caps a Retry-After hint at one day.
const maxRetryAfterSeconds = 24 * 60 * 60

// apiMessage extracts {"error": "..."} from body, falling back to the status
// text.
func apiMessage(body []byte, status int) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return fmt.Sprintf("%d %s", status, http.StatusText(status))
}

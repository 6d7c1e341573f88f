// Package webpay is a thin client for the Transbank Webpay Plus REST API.
// It carries no business logic: create, commit and status are passed
// through as-is and failures are never retried, since a retried create
// can mint a duplicate gateway session and a retried commit can read as a
// second confirmation attempt.
package webpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	EnvIntegration = "integration"
	EnvProduction  = "production"

	integrationHost = "https://webpay3gint.transbank.cl"
	productionHost  = "https://webpay3g.transbank.cl"

	transactionsPath = "/rswebpaytransaction/api/webpay/v1.2/transactions"
)

// Config selects the gateway environment and credentials at construction
// time.
type Config struct {
	Environment  string
	CommerceCode string
	APIKey       string
	// BaseURL overrides the environment host; used by tests.
	BaseURL string
}

// CreateResponse is the gateway's answer to a transaction create: a token
// and the URL the browser must POST the token to.
type CreateResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// CommitResult is the gateway's commit/status payload. Raw holds the
// untouched response body so the snapshot persisted with the order is
// byte-stable across reads.
type CommitResult struct {
	VCI                string `json:"vci"`
	Amount             int64  `json:"amount"`
	Status             string `json:"status"`
	BuyOrder           string `json:"buy_order"`
	SessionID          string `json:"session_id"`
	CardDetail         Card   `json:"card_detail"`
	AccountingDate     string `json:"accounting_date"`
	TransactionDate    string `json:"transaction_date"`
	AuthorizationCode  string `json:"authorization_code"`
	PaymentTypeCode    string `json:"payment_type_code"`
	ResponseCode       int    `json:"response_code"`
	InstallmentsNumber int    `json:"installments_number"`

	Raw json.RawMessage `json:"-"`
}

type Card struct {
	CardNumber string `json:"card_number"`
}

// Approved reports whether the gateway accepted the payment.
func (r *CommitResult) Approved() bool {
	return r.ResponseCode == 0
}

// Error wraps a failed gateway call with the operation and, when the
// gateway answered at all, its HTTP status.
type Error struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("webpay %s: gateway returned %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("webpay %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client is the gateway surface the payment flow depends on.
type Client interface {
	Create(ctx context.Context, buyOrder, sessionID string, amount int64, returnURL string) (*CreateResponse, error)
	Commit(ctx context.Context, token string) (*CommitResult, error)
	Status(ctx context.Context, token string) (*CommitResult, error)
}

type restClient struct {
	baseURL      string
	commerceCode string
	apiKey       string
	httpClient   *http.Client
}

// New builds a gateway client for the configured environment.
func New(cfg Config) Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = integrationHost
		if cfg.Environment == EnvProduction {
			baseURL = productionHost
		}
	}
	return &restClient{
		baseURL:      baseURL,
		commerceCode: cfg.CommerceCode,
		apiKey:       cfg.APIKey,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

type createRequest struct {
	BuyOrder  string `json:"buy_order"`
	SessionID string `json:"session_id"`
	Amount    int64  `json:"amount"`
	ReturnURL string `json:"return_url"`
}

func (c *restClient) Create(ctx context.Context, buyOrder, sessionID string, amount int64, returnURL string) (*CreateResponse, error) {
	const op = "create"

	body, err := json.Marshal(createRequest{
		BuyOrder:  buyOrder,
		SessionID: sessionID,
		Amount:    amount,
		ReturnURL: returnURL,
	})
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}

	raw, status, err := c.do(ctx, http.MethodPost, c.baseURL+transactionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Op: op, StatusCode: status, Err: err}
	}

	var resp CreateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &Error{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return &resp, nil
}

func (c *restClient) Commit(ctx context.Context, token string) (*CommitResult, error) {
	return c.result(ctx, "commit", http.MethodPut, token)
}

func (c *restClient) Status(ctx context.Context, token string) (*CommitResult, error) {
	return c.result(ctx, "status", http.MethodGet, token)
}

func (c *restClient) result(ctx context.Context, op, method, token string) (*CommitResult, error) {
	raw, status, err := c.do(ctx, method, c.baseURL+transactionsPath+"/"+token, nil)
	if err != nil {
		return nil, &Error{Op: op, StatusCode: status, Err: err}
	}

	result := &CommitResult{}
	if err := json.Unmarshal(raw, result); err != nil {
		return nil, &Error{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	result.Raw = raw
	return result, nil
}

func (c *restClient) do(ctx context.Context, method, url string, body io.Reader) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Tbk-Api-Key-Id", c.commerceCode)
	req.Header.Set("Tbk-Api-Key-Secret", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("unexpected response: %s", string(raw))
	}
	return raw, resp.StatusCode, nil
}

// Package poster posts approved expenses to the external accounting system.
package poster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pennywhistle/tally-ho/internal/common"
	"github.com/pennywhistle/tally-ho/internal/service"
)

// Client is an HTTP LedgerPoster. Transient failures (network, 429, 5xx) are
// retried in place; structural rejections (other 4xx) surface immediately as
// non-retriable errors.
type Client struct {
	httpClient *http.Client
	baseURL    string
	accessKey  string
	retry      service.RetryOptions
}

// NewClient creates a ledger poster client for the given base URL.
func NewClient(baseURL, accessKey string) *Client {
	return &Client{
		baseURL:   baseURL,
		accessKey: accessKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
		},
	}
}

type payeeRequest struct {
	Name string `json:"name"`
}

type payeeResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FindOrCreatePayee resolves a payee name to the accounting system's entity
// id, creating it when it does not exist. The endpoint is idempotent on name.
func (c *Client) FindOrCreatePayee(ctx context.Context, name string) (string, error) {
	var resp payeeResponse
	err := common.WithRetry(ctx, func() error {
		return c.postJSON(ctx, "/api/payees", payeeRequest{Name: name}, &resp)
	}, c.retry)
	if err != nil {
		return "", fmt.Errorf("failed to find or create payee %q: %w", name, err)
	}
	return resp.ID, nil
}

type transactionRequest struct {
	Date            string  `json:"date"`
	PayerAccount    string  `json:"payer_account"`
	Payee           string  `json:"payee"`
	CategoryAccount string  `json:"category_account"`
	Jurisdiction    string  `json:"jurisdiction,omitempty"`
	Memo            string  `json:"memo,omitempty"`
	Amount          float64 `json:"amount"`
}

type transactionResponse struct {
	Reference string `json:"reference"`
}

// Post writes one transaction and returns the ledger reference.
func (c *Client) Post(ctx context.Context, p service.Posting) (string, error) {
	req := transactionRequest{
		Date:            p.Date.Format("2006-01-02"),
		PayerAccount:    p.PayerAccount,
		Payee:           p.PayeeEntity,
		CategoryAccount: p.CategoryAccount,
		Jurisdiction:    p.JurisdictionTag,
		Memo:            p.Memo,
		Amount:          p.Amount,
	}

	var resp transactionResponse
	err := common.WithRetry(ctx, func() error {
		return c.postJSON(ctx, "/api/transactions", req, &resp)
	}, c.retry)
	if err != nil {
		return "", fmt.Errorf("failed to post transaction: %w", err)
	}
	if resp.Reference == "" {
		return "", fmt.Errorf("%w: ledger returned no reference", common.ErrStructuralPosting)
	}
	return resp.Reference, nil
}

type attachmentRequest struct {
	FileHandle string `json:"file_handle"`
}

// Attach links a stored receipt to a posted transaction.
func (c *Client) Attach(ctx context.Context, ledgerRef, fileHandle string) error {
	path := fmt.Sprintf("/api/transactions/%s/attachments", ledgerRef)
	err := common.WithRetry(ctx, func() error {
		return c.postJSON(ctx, path, attachmentRequest{FileHandle: fileHandle}, nil)
	}, c.retry)
	if err != nil {
		return fmt.Errorf("failed to attach receipt to %s: %w", ledgerRef, err)
	}
	return nil
}

// postJSON sends one request and classifies the failure mode so callers and
// the retry helper can tell transient from structural.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &common.RetryableError{Err: fmt.Errorf("failed to encode request: %w", err), Retryable: false}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &common.RetryableError{Err: fmt.Errorf("failed to build request: %w", err), Retryable: false}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransientDownstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return common.ErrRateLimit
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: ledger returned %d", common.ErrTransientDownstream, resp.StatusCode)
	case resp.StatusCode >= 400:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %d %s", common.ErrStructuralPosting, resp.StatusCode, bytes.TrimSpace(detail))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode ledger response: %w", err)
	}
	return nil
}

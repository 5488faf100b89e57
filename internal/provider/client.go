// Package provider is the HTTP client for the external payment provider.
// The provider is an opaque collaborator: this package creates hosted
// checkouts and reads order state, nothing else.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Checkout is the provider's response to a checkout creation call.
type Checkout struct {
	URL          string // hosted checkout page the buyer is redirected to
	IdentifierID string // provider-issued opaque checkout identifier
	NumericID    string // provider numeric order id, if already assigned
}

// Order is the provider's view of an order.
type Order struct {
	NumericID    string
	IdentifierID string
	Status       string // raw provider vocabulary; mapped by internal/status
}

// CheckoutRequest carries what the provider needs to build a checkout.
// CustomData is echoed back verbatim on webhooks and is the correlation
// channel for the internal order id.
type CheckoutRequest struct {
	VariantID  string
	CustomData map[string]string
}

// APIError is a non-retryable provider rejection (4xx class).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider api error (status %d): %s", e.StatusCode, e.Message)
}

// Client calls the provider REST API with bounded per-call timeouts and
// capped retry for transient failures.
type Client struct {
	baseURL string
	apiKey  string
	storeID string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a provider client. timeout bounds each individual HTTP
// attempt; retries add at most backoffFor(1)+backoffFor(2) on top.
func NewClient(baseURL, apiKey, storeID string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		storeID: storeID,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type checkoutBody struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			URL         string `json:"url"`
			OrderNumber int64  `json:"order_number"`
		} `json:"attributes"`
	} `json:"data"`
}

type orderBody struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Identifier string `json:"identifier"`
			Status     string `json:"status"`
		} `json:"attributes"`
	} `json:"data"`
}

// CreateCheckout asks the provider for a hosted checkout URL. The caller's
// custom data (including the internal order id) rides along and is echoed on
// every webhook for that order.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	payload := map[string]any{
		"data": map[string]any{
			"type": "checkouts",
			"attributes": map[string]any{
				"checkout_data": map[string]any{
					"custom": req.CustomData,
				},
			},
			"relationships": map[string]any{
				"store":   map[string]any{"data": map[string]any{"type": "stores", "id": c.storeID}},
				"variant": map[string]any{"data": map[string]any{"type": "variants", "id": req.VariantID}},
			},
		},
	}
	raw, err := c.do(ctx, http.MethodPost, "/checkouts", payload)
	if err != nil {
		return nil, err
	}
	var body checkoutBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode checkout response: %w", err)
	}
	if body.Data.Attributes.URL == "" {
		return nil, fmt.Errorf("provider returned no checkout url")
	}
	out := &Checkout{
		URL:          body.Data.Attributes.URL,
		IdentifierID: body.Data.ID,
	}
	if n := body.Data.Attributes.OrderNumber; n != 0 {
		out.NumericID = strconv.FormatInt(n, 10)
	}
	return out, nil
}

// GetOrder reads the current order state from the provider.
func (c *Client) GetOrder(ctx context.Context, numericID string) (*Order, error) {
	raw, err := c.do(ctx, http.MethodGet, "/orders/"+numericID, nil)
	if err != nil {
		return nil, err
	}
	var body orderBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	return &Order{
		NumericID:    body.Data.ID,
		IdentifierID: body.Data.Attributes.Identifier,
		Status:       body.Data.Attributes.Status,
	}, nil
}

// do performs one API call with retry. Network-class and 5xx failures are
// retried with exponential backoff and jitter, capped at maxAttempts; 4xx
// responses fail immediately as *APIError.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody []byte
	if payload != nil {
		var err error
		reqBody, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffFor(attempt - 1)):
			}
			c.logger.Info("retrying provider call",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("attempt", attempt))
		}

		raw, err := c.once(ctx, method, path, reqBody)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("provider call failed after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) once(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.api+json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/vnd.api+json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, &serverError{status: resp.StatusCode}
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(raw)}
	}
	return raw, nil
}

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atelierworks/atelier-backend/pkg/config"
)

// Order is the gateway-side intent created for a checkout. ID is the
// correlation key used by confirmations and webhooks.
type Order struct {
	ID          string `json:"id"`
	AmountCents int    `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
	Status      string `json:"status"`
}

// CreateOrderParams carries the inputs for a new gateway order. Amounts are
// minor units.
type CreateOrderParams struct {
	AmountCents int
	Currency    string
	Receipt     string
}

// Intents is the outbound surface payment services depend on.
type Intents interface {
	CreateOrder(ctx context.Context, params CreateOrderParams) (*Order, error)
}

// Client calls the payment gateway's REST API with basic auth credentials.
type Client struct {
	httpClient *http.Client
	baseURL    string
	keyID      string
	secret     string
}

// NewClient validates the gateway credentials and builds the HTTP client.
func NewClient(cfg config.GatewayConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("gateway base url is required")
	}
	if cfg.KeyID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("gateway credentials are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		keyID:      cfg.KeyID,
		secret:     cfg.ClientSecret,
	}, nil
}

// CreateOrder registers a payment intent for the given amount. Gateway
// failures surface as errors so callers can roll the checkout back.
func (c *Client) CreateOrder(ctx context.Context, params CreateOrderParams) (*Order, error) {
	if params.AmountCents <= 0 {
		return nil, errors.New("order amount must be positive")
	}
	if params.Currency == "" {
		return nil, errors.New("order currency is required")
	}

	payload := map[string]any{
		"amount":   params.AmountCents,
		"currency": params.Currency,
		"receipt":  params.Receipt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding order payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.keyID, c.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if len(snippet) > 0 {
			return nil, fmt.Errorf("gateway returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
		}
		return nil, fmt.Errorf("gateway returned %s", resp.Status)
	}

	var order Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("decoding gateway order: %w", err)
	}
	if order.ID == "" {
		return nil, errors.New("gateway order missing id")
	}
	return &order, nil
}

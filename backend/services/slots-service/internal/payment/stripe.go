package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.stripe.com"
	defaultTimeout = 12 * time.Second
)

// ErrInvalidConfig is returned when the client has no API key.
var ErrInvalidConfig = errors.New("payment: invalid gateway config")

// CheckoutRequest describes a single-item hosted checkout.
type CheckoutRequest struct {
	Currency       string
	ProductName    string
	UnitAmount     int64
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
	Metadata       map[string]string
}

// CheckoutSession is the gateway's view of a created checkout.
type CheckoutSession struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

// APIError carries a non-2xx gateway reply.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stripe: status %d: %s", e.StatusCode, e.Message)
}

type stripeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// StripeClient talks to the Stripe Checkout REST API.
type StripeClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewStripeClient returns a client. Empty baseURL targets api.stripe.com.
func NewStripeClient(apiKey, baseURL string, timeout time.Duration) *StripeClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &StripeClient{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// CreateCheckoutSession opens a payment-mode checkout for one line item.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	values := url.Values{}
	values.Set("mode", "payment")
	values.Set("payment_method_types[]", "card")
	values.Set("line_items[0][quantity]", "1")
	values.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	values.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.UnitAmount, 10))
	values.Set("line_items[0][price_data][product_data][name]", req.ProductName)
	values.Set("success_url", req.SuccessURL)
	values.Set("cancel_url", req.CancelURL)
	for k, v := range req.Metadata {
		values.Set("metadata["+k+"]", v)
	}

	return c.doRequest(ctx, http.MethodPost, "/v1/checkout/sessions", values, req.IdempotencyKey)
}

// ExpireCheckoutSession voids an open checkout so it can no longer be paid.
func (c *StripeClient) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("payment: session id is required")
	}
	_, err := c.doRequest(ctx, http.MethodPost, "/v1/checkout/sessions/"+url.PathEscape(sessionID)+"/expire", url.Values{}, "")
	return err
}

func (c *StripeClient) doRequest(ctx context.Context, method, path string, values url.Values, idempotencyKey string) (*CheckoutSession, error) {
	if c.apiKey == "" {
		return nil, ErrInvalidConfig
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: "stripe_request_failed"}
		var body stripeErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			if msg := strings.TrimSpace(body.Error.Message); msg != "" {
				apiErr.Message = msg
			}
		}
		return nil, apiErr
	}

	var session CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("stripe: decode response: %w", err)
	}
	if session.ID == "" {
		return nil, errors.New("stripe: response without session id")
	}
	return &session, nil
}

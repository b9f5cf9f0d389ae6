/**
 * @description
 * This package provides a client for the subset of the Stripe API the payout
 * engine needs: retrieving a payment intent to resolve its captured charge,
 * listing transfers by transfer group, and creating transfers to connected
 * accounts. It encapsulates the authenticated form-encoded requests and
 * response parsing.
 *
 * @dependencies
 * - context, net/http, net/url, encoding/json, time: Standard Go libraries.
 */
package stripeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a client for the Stripe API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new Stripe API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// PaymentIntent is the reduced payment-intent view used by the engine.
type PaymentIntent struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	LatestCharge string `json:"latest_charge"`
}

// Transfer represents a Stripe transfer to a connected account.
type Transfer struct {
	ID                string            `json:"id"`
	Amount            int64             `json:"amount"`
	Currency          string            `json:"currency"`
	Destination       string            `json:"destination"`
	SourceTransaction string            `json:"source_transaction"`
	TransferGroup     string            `json:"transfer_group"`
	Metadata          map[string]string `json:"metadata"`
}

type transferList struct {
	Data []Transfer `json:"data"`
}

// CreateTransferParams carries everything needed to create a transfer.
// IdempotencyKey must be deterministic per logical transfer so retries and
// concurrent invocations collapse to a single Stripe-side transfer.
type CreateTransferParams struct {
	Amount            int64
	Currency          string
	Destination       string
	SourceTransaction string
	TransferGroup     string
	Metadata          map[string]string
	IdempotencyKey    string
}

// ErrorResponse represents an error from the Stripe API.
type ErrorResponse struct {
	Err struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *ErrorResponse) Error() string {
	if e.Err.Message != "" {
		return fmt.Sprintf("stripe api error: %s - %s", e.Err.Code, e.Err.Message)
	}
	return "unknown stripe api error"
}

// Code returns the Stripe error code, or the error type when no code is set.
func (e *ErrorResponse) Code() string {
	if e.Err.Code != "" {
		return e.Err.Code
	}
	if e.Err.Type != "" {
		return e.Err.Type
	}
	return "api_error"
}

// GetPaymentIntent fetches a payment intent by id.
func (c *Client) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error) {
	var intent PaymentIntent
	endpoint := "/v1/payment_intents/" + url.PathEscape(paymentIntentID)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, "", &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// ListTransfersByGroup returns the transfers filed under a transfer group.
// Both this engine and the webhook-driven payout path tag transfers with the
// charge id as the group, so either path's transfer is visible here.
func (c *Client) ListTransfersByGroup(ctx context.Context, transferGroup string) ([]Transfer, error) {
	params := url.Values{}
	params.Set("transfer_group", transferGroup)
	params.Set("limit", "10")

	var list transferList
	endpoint := "/v1/transfers?" + params.Encode()
	if err := c.do(ctx, http.MethodGet, endpoint, nil, "", &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// CreateTransfer creates a transfer to a connected account, submitted with
// the caller's idempotency key.
func (c *Client) CreateTransfer(ctx context.Context, p CreateTransferParams) (*Transfer, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(p.Amount, 10))
	form.Set("currency", strings.ToLower(p.Currency))
	form.Set("destination", p.Destination)
	if p.SourceTransaction != "" {
		form.Set("source_transaction", p.SourceTransaction)
	}
	if p.TransferGroup != "" {
		form.Set("transfer_group", p.TransferGroup)
	}
	for k, v := range p.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	var transfer Transfer
	if err := c.do(ctx, http.MethodPost, "/v1/transfers", strings.NewReader(form.Encode()), p.IdempotencyKey, &transfer); err != nil {
		return nil, err
	}
	return &transfer, nil
}

// do executes one authenticated request and decodes the response into out.
func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, idempotencyKey string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create stripe request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute stripe request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read stripe response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=stripe_client op=%s endpoint=%s status=%d msg=\"non-2xx response (unparsable error body)\"", method, endpoint, resp.StatusCode)
			return fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=stripe_client op=%s endpoint=%s status=%d code=%q msg=%q", method, endpoint, resp.StatusCode, errResp.Code(), errResp.Err.Message)
		return &errResp
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode success response: %w", err)
	}
	return nil
}

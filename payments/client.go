// Package payments wraps the external Lightning payment collaborator. The
// service never derives payment truth itself: invoices are created here and
// settlement is polled here, everything else is the processor's business.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Invoice captures the attributes of a one-time Lightning invoice the service
// cares about. PaymentHash doubles as the reconciliation key between invoice
// settlement and PSBT submission.
type Invoice struct {
	PaymentRequest string    `json:"payment_request"`
	PaymentHash    string    `json:"payment_hash"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Client defines the subset of the payment processor API the service requires.
type Client interface {
	CreateInvoice(ctx context.Context, amountSats int64, memo string) (*Invoice, error)
	CheckPaymentStatus(ctx context.Context, paymentHash string) (bool, error)
}

// HTTPClient implements Client against an LNbits-compatible REST API.
type HTTPClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewHTTPClient constructs an HTTP client with sane defaults.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type invoiceRequest struct {
	Out    bool   `json:"out"`
	Amount int64  `json:"amount"`
	Memo   string `json:"memo,omitempty"`
	Expiry int64  `json:"expiry,omitempty"`
}

type invoiceResponse struct {
	PaymentRequest string `json:"payment_request"`
	PaymentHash    string `json:"payment_hash"`
	ExpirySeconds  int64  `json:"expiry"`
}

type paymentStatusResponse struct {
	Paid bool `json:"paid"`
}

// CreateInvoice asks the processor for a one-time invoice denominated in
// satoshis.
func (c *HTTPClient) CreateInvoice(ctx context.Context, amountSats int64, memo string) (*Invoice, error) {
	if c == nil {
		return nil, errors.New("payments client not configured")
	}
	if amountSats <= 0 {
		return nil, fmt.Errorf("invoice amount must be positive, got %d", amountSats)
	}
	payload := invoiceRequest{Out: false, Amount: amountSats, Memo: memo}
	var decoded invoiceResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/payments", payload, &decoded); err != nil {
		return nil, err
	}
	if decoded.PaymentHash == "" || decoded.PaymentRequest == "" {
		return nil, errors.New("payment processor returned an incomplete invoice")
	}
	invoice := &Invoice{
		PaymentRequest: decoded.PaymentRequest,
		PaymentHash:    decoded.PaymentHash,
	}
	if decoded.ExpirySeconds > 0 {
		invoice.ExpiresAt = time.Now().Add(time.Duration(decoded.ExpirySeconds) * time.Second)
	}
	return invoice, nil
}

// CheckPaymentStatus reports whether the invoice identified by paymentHash
// has settled. "Not yet paid" is an ordinary false, never an error.
func (c *HTTPClient) CheckPaymentStatus(ctx context.Context, paymentHash string) (bool, error) {
	if c == nil {
		return false, errors.New("payments client not configured")
	}
	hash := strings.TrimSpace(paymentHash)
	if hash == "" {
		return false, errors.New("payment hash is required")
	}
	var decoded paymentStatusResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/payments/"+hash, nil, &decoded); err != nil {
		return false, err
	}
	return decoded.Paid, nil
}

func (c *HTTPClient) doRequest(ctx context.Context, method, path string, payload, out interface{}) error {
	var body *bytes.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("payment processor %s failed: status=%d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// PaystackClient talks to the Paystack REST API. All charges are GHS.
type PaystackClient struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// NewPaystackClient builds a gateway client with a bounded request timeout.
func NewPaystackClient(secretKey, baseURL string, timeout time.Duration) *PaystackClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PaystackClient{
		secretKey:  secretKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type initializeRequest struct {
	Email    string `json:"email"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type initializeResponse struct {
	Status bool `json:"status"`
	Data   struct {
		AuthorizationURL string `json:"authorization_url"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// Initialize starts a hosted checkout. Never retried: the gateway may have
// created the charge even when the response is lost.
func (c *PaystackClient) Initialize(ctx context.Context, email string, amountPesewas int64) (Initialization, error) {
	body, err := json.Marshal(initializeRequest{Email: email, Amount: amountPesewas, Currency: "GHS"})
	if err != nil {
		return Initialization{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return Initialization{}, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Initialization{}, fmt.Errorf("gateway initialize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Initialization{}, fmt.Errorf("gateway initialize: unexpected status %s", resp.Status)
	}

	var decoded initializeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Initialization{}, err
	}
	if !decoded.Status || decoded.Data.Reference == "" {
		return Initialization{}, fmt.Errorf("gateway initialize: rejected")
	}
	return Initialization{AuthorizationURL: decoded.Data.AuthorizationURL, Reference: decoded.Data.Reference}, nil
}

type verifyResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Status   string `json:"status"`
		Amount   int64  `json:"amount"`
		Customer struct {
			Email string `json:"email"`
		} `json:"customer"`
	} `json:"data"`
}

// Verify looks up a charge by reference. The lookup is idempotent, so one
// retry on a transport error is safe. A decoded gateway rejection or an
// unexpected status is final and never retried.
func (c *PaystackClient) Verify(ctx context.Context, reference string) (Verification, error) {
	v, err := c.verifyOnce(ctx, reference)
	if transportError(err) && ctx.Err() == nil {
		v, err = c.verifyOnce(ctx, reference)
	}
	return v, err
}

// transportError reports whether the request failed before a response was
// decoded (connection refused, timeout, DNS).
func transportError(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func (c *PaystackClient) verifyOnce(ctx context.Context, reference string) (Verification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return Verification{}, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Verification{}, fmt.Errorf("gateway verify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Verification{}, fmt.Errorf("gateway verify: unexpected status %s", resp.Status)
	}

	var decoded verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Verification{}, err
	}
	if !decoded.Status {
		return Verification{}, ErrVerificationFailed
	}
	return Verification{
		Status:        decoded.Data.Status,
		AmountPesewas: decoded.Data.Amount,
		CustomerEmail: decoded.Data.Customer.Email,
	}, nil
}

func (c *PaystackClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")
}

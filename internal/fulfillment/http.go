package fulfillment

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

// HTTPClient talks to the reseller fulfillment API over REST.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient builds a fulfillment client with a bounded request timeout.
func NewHTTPClient(apiKey, baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type purchaseRequest struct {
	APIKey      string `json:"api_key"`
	Network     string `json:"network"`
	Beneficiary string `json:"beneficiary"`
	PackageID   string `json:"package_id"`
}

type purchaseResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id"`
	Message string `json:"message"`
}

// Purchase submits a delivery request. Never retried: a lost response may
// still have placed a billable order on the provider side.
func (c *HTTPClient) Purchase(ctx context.Context, network, beneficiary, packageID string) (Decision, error) {
	body, err := json.Marshal(purchaseRequest{
		APIKey:      c.apiKey,
		Network:     network,
		Beneficiary: beneficiary,
		PackageID:   packageID,
	})
	if err != nil {
		return Decision{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/place-order", bytes.NewReader(body))
	if err != nil {
		return Decision{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Decision{}, fmt.Errorf("fulfillment purchase: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Decision{}, fmt.Errorf("fulfillment purchase: unexpected status %s", resp.Status)
	}

	var decoded purchaseResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Decision{}, err
	}
	return Decision{Accepted: decoded.Success, RemoteID: decoded.OrderID, Message: decoded.Message}, nil
}

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

// AccountBalance reads the reseller float. Idempotent, so one retry on a
// transport error is safe; a provider rejection is final.
func (c *HTTPClient) AccountBalance(ctx context.Context) (int64, error) {
	balance, err := c.balanceOnce(ctx)
	if transportError(err) && ctx.Err() == nil {
		balance, err = c.balanceOnce(ctx)
	}
	return balance, err
}

func transportError(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func (c *HTTPClient) balanceOnce(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/balance?api_key="+c.apiKey, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fulfillment balance: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fulfillment balance: unexpected status %s", resp.Status)
	}

	var decoded balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, err
	}
	return decoded.Balance, nil
}

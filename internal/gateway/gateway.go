package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrVerificationFailed indicates the gateway did not confirm the charge.
var ErrVerificationFailed = errors.New("payment not verified")

const (
	// StatusSuccess is the gateway's settled-charge status.
	StatusSuccess = "success"

	// SignatureHeader carries the webhook HMAC.
	SignatureHeader = "X-Paystack-Signature"
)

// Initialization is the result of starting a hosted checkout.
type Initialization struct {
	AuthorizationURL string
	Reference        string
}

// Verification is the gateway's view of a charge looked up by reference.
type Verification struct {
	Status        string
	AmountPesewas int64
	CustomerEmail string
}

// Gateway abstracts the payment processor the storefront collects through.
type Gateway interface {
	Initialize(ctx context.Context, email string, amountPesewas int64) (Initialization, error)
	Verify(ctx context.Context, reference string) (Verification, error)
}

// ValidSignature reports whether the webhook signature matches an HMAC-SHA512
// of the raw body under the gateway secret. Callers must reject the request
// before any processing when this returns false.
func ValidSignature(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// StaticGateway simulates a gateway that approves everything. Used in
// development mode and tests.
type StaticGateway struct {
	mu sync.Mutex
	// Amounts records the amount initialized per reference so Verify can
	// echo it back.
	Amounts map[string]int64
	// Emails records the customer email per reference.
	Emails map[string]string
}

// NewStaticGateway builds an approving in-memory gateway stub.
func NewStaticGateway() *StaticGateway {
	return &StaticGateway{Amounts: make(map[string]int64), Emails: make(map[string]string)}
}

// Initialize issues a synthetic reference and a placeholder checkout URL.
func (g *StaticGateway) Initialize(_ context.Context, email string, amountPesewas int64) (Initialization, error) {
	ref := uuid.NewString()
	g.mu.Lock()
	g.Amounts[ref] = amountPesewas
	g.Emails[ref] = email
	g.mu.Unlock()
	return Initialization{
		AuthorizationURL: fmt.Sprintf("https://checkout.example/%s", ref),
		Reference:        ref,
	}, nil
}

// Verify reports success for any reference seen by Initialize.
func (g *StaticGateway) Verify(_ context.Context, reference string) (Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	amount, ok := g.Amounts[reference]
	if !ok {
		return Verification{}, ErrVerificationFailed
	}
	return Verification{Status: StatusSuccess, AmountPesewas: amount, CustomerEmail: g.Emails[reference]}, nil
}

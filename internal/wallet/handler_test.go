package wallet

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bundlehub/bundlehub/internal/gateway"
	"github.com/bundlehub/bundlehub/internal/ledger"
	"github.com/bundlehub/bundlehub/internal/logging"
	"github.com/bundlehub/bundlehub/internal/user"
)

const webhookSecret = "whsec-test"

func setupWebhookApp(t *testing.T) (*fiber.App, *gateway.StaticGateway, ledger.Ledger) {
	t.Helper()
	users := user.NewMemoryRepository()
	err := users.Create(context.Background(), user.User{
		Email:          "e@x.com",
		Role:           user.RoleUser,
		SessionVersion: 1,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	gw := gateway.NewStaticGateway()
	led := ledger.NewInMemory(users)
	handler := NewHandler(NewService(gw, led, nil, logging.Discard()), webhookSecret)

	app := fiber.New()
	app.Post("/wallet/webhook", handler.Webhook)
	return app, gw, led
}

func signBody(body string) string {
	mac := hmac.New(sha512.New, []byte(webhookSecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func chargeSuccessBody(reference string, amount int64) string {
	return fmt.Sprintf(`{"event":"charge.success","data":{"reference":%q,"amount":%d,"customer":{"email":"e@x.com"}}}`, reference, amount)
}

func postWebhook(t *testing.T, app *fiber.App, body, signature string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/wallet/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(gateway.SignatureHeader, signature)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	return resp
}

func TestWebhookCreditsOnValidSignature(t *testing.T) {
	app, gw, led := setupWebhookApp(t)

	init, err := gw.Initialize(context.Background(), "e@x.com", 2_000)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	body := chargeSuccessBody(init.Reference, 2_000)
	resp := postWebhook(t, app, body, signBody(body))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	balance, _ := led.Balance(context.Background(), "e@x.com")
	if balance != 2_000 {
		t.Fatalf("expected balance 2000, got %d", balance)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	app, _, led := setupWebhookApp(t)

	body := chargeSuccessBody("REF1", 2_000)
	for name, sig := range map[string]string{
		"missing": "",
		"wrong":   "deadbeef",
	} {
		resp := postWebhook(t, app, body, sig)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s signature: expected 401, got %d", name, resp.StatusCode)
		}
	}

	balance, _ := led.Balance(context.Background(), "e@x.com")
	if balance != 0 {
		t.Fatalf("unsigned webhook must not credit, balance=%d", balance)
	}
}

func TestWebhookSignatureCoversExactBody(t *testing.T) {
	app, _, led := setupWebhookApp(t)

	body := chargeSuccessBody("REF1", 2_000)
	tampered := chargeSuccessBody("REF1", 9_000)
	resp := postWebhook(t, app, tampered, signBody(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("tampered body must be rejected, got %d", resp.StatusCode)
	}

	balance, _ := led.Balance(context.Background(), "e@x.com")
	if balance != 0 {
		t.Fatalf("tampered webhook must not credit, balance=%d", balance)
	}
}

func TestWebhookMalformedPayload(t *testing.T) {
	app, _, _ := setupWebhookApp(t)

	body := `{"event":`
	resp := postWebhook(t, app, body, signBody(body))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestWebhookMismatchRedeliveryStaysConflict(t *testing.T) {
	app, _, led := setupWebhookApp(t)

	if _, err := led.InitiateTopUp(context.Background(), "REF1", "e@x.com", 2_000); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	body := chargeSuccessBody("REF1", 1_500)
	for i := 0; i < 2; i++ {
		resp := postWebhook(t, app, body, signBody(body))
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("delivery %d: expected 409, got %d", i+1, resp.StatusCode)
		}
	}

	balance, _ := led.Balance(context.Background(), "e@x.com")
	if balance != 0 {
		t.Fatalf("failed reference must never credit, balance=%d", balance)
	}
}

func TestWebhookDuplicateDeliveryReturnsOK(t *testing.T) {
	app, gw, led := setupWebhookApp(t)

	init, err := gw.Initialize(context.Background(), "e@x.com", 2_000)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	body := chargeSuccessBody(init.Reference, 2_000)
	for i := 0; i < 3; i++ {
		resp := postWebhook(t, app, body, signBody(body))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i+1, resp.StatusCode)
		}
	}

	balance, _ := led.Balance(context.Background(), "e@x.com")
	if balance != 2_000 {
		t.Fatalf("redelivered webhook must credit once, balance=%d", balance)
	}
}

package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bundlehub/bundlehub/internal/gateway"
	"github.com/bundlehub/bundlehub/internal/ledger"
	"github.com/bundlehub/bundlehub/internal/logging"
	"github.com/bundlehub/bundlehub/internal/user"
)

func newTestService(t *testing.T, email string) (*Service, *gateway.StaticGateway, ledger.Ledger) {
	t.Helper()
	users := user.NewMemoryRepository()
	err := users.Create(context.Background(), user.User{
		Email:          email,
		Role:           user.RoleUser,
		SessionVersion: 1,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	gw := gateway.NewStaticGateway()
	led := ledger.NewInMemory(users)
	svc := NewService(gw, led, nil, logging.Discard())
	return svc, gw, led
}

func TestInitializeTopUpRecordsPendingEntry(t *testing.T) {
	ctx := context.Background()
	svc, _, led := newTestService(t, "e@x.com")

	topup, err := svc.InitializeTopUp(ctx, "e@x.com", 2_000)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if topup.Reference == "" || topup.AuthorizationURL == "" {
		t.Fatalf("incomplete initialization: %+v", topup)
	}

	entries, err := led.EntriesByUser(ctx, "e@x.com")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != ledger.StatusPending {
		t.Fatalf("expected one pending entry, got %+v", entries)
	}

	balance, _ := led.Balance(ctx, "e@x.com")
	if balance != 0 {
		t.Fatalf("pending top-up must not credit, balance=%d", balance)
	}
}

func TestInitializeTopUpRejectsNonPositiveAmount(t *testing.T) {
	svc, _, _ := newTestService(t, "e@x.com")
	if _, err := svc.InitializeTopUp(context.Background(), "e@x.com", 0); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestConfirmTopUpCredits(t *testing.T) {
	ctx := context.Background()
	svc, _, led := newTestService(t, "e@x.com")

	topup, err := svc.InitializeTopUp(ctx, "e@x.com", 2_000)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	entry, err := svc.ConfirmTopUp(ctx, topup.Reference)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if entry.Status != ledger.StatusCompleted {
		t.Fatalf("expected completed entry, got %s", entry.Status)
	}

	balance, _ := led.Balance(ctx, "e@x.com")
	if balance != 2_000 {
		t.Fatalf("expected balance 2000, got %d", balance)
	}
}

func TestConfirmTopUpUnknownReference(t *testing.T) {
	svc, _, _ := newTestService(t, "e@x.com")
	if _, err := svc.ConfirmTopUp(context.Background(), "no-such-ref"); !errors.Is(err, gateway.ErrVerificationFailed) {
		t.Fatalf("expected verification failure, got %v", err)
	}
}

func TestVerifyAndWebhookSettleOnce(t *testing.T) {
	ctx := context.Background()
	svc, _, led := newTestService(t, "e@x.com")

	topup, err := svc.InitializeTopUp(ctx, "e@x.com", 2_000)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	// The client verify call and the gateway webhook race to settle the same
	// reference. Exactly one credit must land.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := svc.ConfirmTopUp(ctx, topup.Reference); err != nil {
			t.Errorf("confirm: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		err := svc.HandleWebhookEvent(ctx, WebhookEvent{
			Event:     "charge.success",
			Reference: topup.Reference,
			Amount:    2_000,
			Email:     "e@x.com",
		})
		if err != nil {
			t.Errorf("webhook: %v", err)
		}
	}()
	wg.Wait()

	balance, _ := led.Balance(ctx, "e@x.com")
	if balance != 2_000 {
		t.Fatalf("expected a single credit of 2000, balance=%d", balance)
	}

	entries, _ := led.EntriesByUser(ctx, "e@x.com")
	if len(entries) != 1 || entries[0].Status != ledger.StatusCompleted {
		t.Fatalf("expected one completed entry, got %+v", entries)
	}
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	ctx := context.Background()
	svc, _, led := newTestService(t, "e@x.com")

	topup, err := svc.InitializeTopUp(ctx, "e@x.com", 2_000)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	err = svc.HandleWebhookEvent(ctx, WebhookEvent{
		Event:     "charge.dispute.create",
		Reference: topup.Reference,
		Amount:    2_000,
		Email:     "e@x.com",
	})
	if err != nil {
		t.Fatalf("non-charge event must be acknowledged, got %v", err)
	}

	balance, _ := led.Balance(ctx, "e@x.com")
	if balance != 0 {
		t.Fatalf("non-charge event must not credit, balance=%d", balance)
	}
}

func TestWebhookAmountMismatch(t *testing.T) {
	ctx := context.Background()
	svc, _, led := newTestService(t, "e@x.com")

	topup, err := svc.InitializeTopUp(ctx, "e@x.com", 2_000)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	err = svc.HandleWebhookEvent(ctx, WebhookEvent{
		Event:     "charge.success",
		Reference: topup.Reference,
		Amount:    1_500,
		Email:     "e@x.com",
	})
	if !errors.Is(err, ledger.ErrAmountMismatch) {
		t.Fatalf("expected amount mismatch, got %v", err)
	}

	balance, _ := led.Balance(ctx, "e@x.com")
	if balance != 0 {
		t.Fatalf("mismatched webhook must not credit, balance=%d", balance)
	}

	// A later verify for the same reference must keep reporting the conflict
	// rather than reading the failed entry as an already-settled duplicate.
	if _, err := svc.ConfirmTopUp(ctx, topup.Reference); !errors.Is(err, ledger.ErrAmountMismatch) {
		t.Fatalf("verify after mismatch must conflict, got %v", err)
	}
	balance, _ = led.Balance(ctx, "e@x.com")
	if balance != 0 {
		t.Fatalf("failed reference must never credit, balance=%d", balance)
	}
}

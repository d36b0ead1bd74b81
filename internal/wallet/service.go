package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bundlehub/bundlehub/internal/gateway"
	"github.com/bundlehub/bundlehub/internal/ledger"
	"github.com/bundlehub/bundlehub/internal/notification"
)

// ErrNotConfirmed indicates the gateway reports the charge as anything other
// than success; the top-up stays pending for a later verify or webhook.
var ErrNotConfirmed = errors.New("payment not confirmed yet")

// Service brokers wallet top-ups between the payment gateway and the ledger.
type Service struct {
	gateway  gateway.Gateway
	ledger   ledger.Ledger
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs the top-up orchestrator.
func NewService(gw gateway.Gateway, led ledger.Ledger, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{gateway: gw, ledger: led, notifier: notifier, logger: logger}
}

// TopUp is the client-facing result of initializing a wallet top-up.
type TopUp struct {
	AuthorizationURL string
	Reference        string
	AmountPesewas    int64
}

// InitializeTopUp starts a hosted checkout and records the pending entry
// under the gateway reference.
func (s *Service) InitializeTopUp(ctx context.Context, email string, amountPesewas int64) (TopUp, error) {
	if amountPesewas <= 0 {
		return TopUp{}, ledger.ErrInvalidAmount
	}

	init, err := s.gateway.Initialize(ctx, email, amountPesewas)
	if err != nil {
		return TopUp{}, fmt.Errorf("initialize top-up: %w", err)
	}

	// The checkout now exists on the gateway side; record the pending entry
	// even if the caller has gone away.
	if _, err := s.ledger.InitiateTopUp(context.WithoutCancel(ctx), init.Reference, email, amountPesewas); err != nil && !errors.Is(err, ledger.ErrDuplicateReference) {
		s.logger.Error("record pending top-up", "email", email, "reference", init.Reference, "error", err)
		return TopUp{}, err
	}

	return TopUp{AuthorizationURL: init.AuthorizationURL, Reference: init.Reference, AmountPesewas: amountPesewas}, nil
}

// ConfirmTopUp verifies the reference with the gateway and settles the
// credit. Duplicate confirmations are reported as the original success.
func (s *Service) ConfirmTopUp(ctx context.Context, reference string) (ledger.Entry, error) {
	v, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("verify %s: %w", reference, err)
	}
	if v.Status != gateway.StatusSuccess {
		return ledger.Entry{}, ErrNotConfirmed
	}
	return s.credit(ctx, reference, v.CustomerEmail, v.AmountPesewas)
}

// WebhookEvent is the decoded gateway webhook payload. The HTTP layer checks
// the body signature before this is ever constructed.
type WebhookEvent struct {
	Event     string
	Reference string
	Amount    int64
	Email     string
}

// HandleWebhookEvent settles charge.success events; everything else is
// acknowledged and ignored.
func (s *Service) HandleWebhookEvent(ctx context.Context, ev WebhookEvent) error {
	if ev.Event != "charge.success" {
		return nil
	}
	_, err := s.credit(ctx, ev.Reference, ev.Email, ev.Amount)
	return err
}

// Balance reads the wallet balance in pesewas.
func (s *Service) Balance(ctx context.Context, email string) (int64, error) {
	return s.ledger.Balance(ctx, email)
}

// History lists the user's ledger entries, newest first.
func (s *Service) History(ctx context.Context, email string) ([]ledger.Entry, error) {
	return s.ledger.EntriesByUser(ctx, email)
}

func (s *Service) credit(ctx context.Context, reference, email string, amount int64) (ledger.Entry, error) {
	// The charge has been taken; the credit must land even if the caller
	// disconnects mid-request.
	entry, err := s.ledger.CreditTopUp(context.WithoutCancel(ctx), reference, email, amount)
	switch {
	case errors.Is(err, ledger.ErrDuplicateReference):
		return entry, nil
	case errors.Is(err, ledger.ErrAmountMismatch):
		s.logger.Error("top-up amount mismatch", "email", email, "reference", reference, "amount_pesewas", amount)
		return entry, err
	case err != nil:
		s.logger.Error("credit top-up", "email", email, "reference", reference, "error", err)
		return ledger.Entry{}, err
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindTopUpCredited,
			Destination: email,
			Body:        fmt.Sprintf("Wallet credited with %d pesewas (ref %s)", amount, reference),
		})
	}
	return entry, nil
}

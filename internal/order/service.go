package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bundlehub/bundlehub/internal/catalog"
	"github.com/bundlehub/bundlehub/internal/fulfillment"
	"github.com/bundlehub/bundlehub/internal/ledger"
	"github.com/bundlehub/bundlehub/internal/notification"
	"github.com/bundlehub/bundlehub/internal/user"
)

// Service runs the purchase workflow: price resolution, wallet debit,
// fulfillment dispatch and order persistence.
type Service struct {
	orders    Repository
	bundles   *catalog.Catalog
	ledger    ledger.Ledger
	fulfiller fulfillment.Client
	notifier  notification.Notifier
	logger    *slog.Logger
}

// NewService constructs the order workflow.
func NewService(orders Repository, bundles *catalog.Catalog, led ledger.Ledger, fulfiller fulfillment.Client, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{
		orders:    orders,
		bundles:   bundles,
		ledger:    led,
		fulfiller: fulfiller,
		notifier:  notifier,
		logger:    logger,
	}
}

// PlaceOrder debits the wallet and forwards the purchase to the fulfillment
// provider. An unpaid order (insufficient balance) is still created as
// Pending, treated as pay-on-fulfillment; a fulfillment failure likewise
// leaves a Pending order for manual resolution rather than failing the
// request.
func (s *Service) PlaceOrder(ctx context.Context, u user.User, bundleID, beneficiary string) (Order, error) {
	if beneficiary == "" {
		return Order{}, fmt.Errorf("beneficiary is required")
	}
	bundle, err := s.bundles.Get(bundleID)
	if err != nil {
		return Order{}, err
	}

	o := Order{
		ID:           uuid.NewString(),
		UserEmail:    u.Email,
		BundleID:     bundle.ID,
		Network:      bundle.Network,
		Title:        bundle.Title,
		Beneficiary:  beneficiary,
		PricePesewas: bundle.PricePesewas,
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = s.ledger.DebitPurchase(ctx, u.Email, bundle.PricePesewas, o.ID)
	switch {
	case err == nil:
		o.Paid = true
	case errors.Is(err, ledger.ErrInsufficientFunds):
		// Pay-on-fulfillment policy: the order proceeds unpaid and is left
		// Pending for reconciliation.
		s.logger.Warn("order placed without debit", "email", u.Email, "order_id", o.ID, "price_pesewas", bundle.PricePesewas)
	default:
		return Order{}, err
	}

	decision, err := s.fulfiller.Purchase(ctx, bundle.Network, beneficiary, bundle.ID)
	switch {
	case err != nil:
		s.logger.Error("fulfillment call failed", "email", u.Email, "order_id", o.ID, "error", err)
	case decision.Accepted:
		o.Status = StatusCompleted
		o.RemoteID = decision.RemoteID
	default:
		s.logger.Warn("fulfillment rejected order", "email", u.Email, "order_id", o.ID, "message", decision.Message)
	}

	// The debit and any fulfillment dispatch have happened; the order record
	// must land even if the caller disconnects.
	if err := s.orders.Create(context.WithoutCancel(ctx), o); err != nil {
		s.logger.Error("persist order", "email", u.Email, "order_id", o.ID, "error", err)
		return Order{}, err
	}

	if o.Status == StatusCompleted && s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindOrderCompleted,
			Destination: u.Email,
			Body:        fmt.Sprintf("%s delivered to %s", bundle.Title, beneficiary),
		})
	}
	return o, nil
}

// UpdateStatus applies an admin-triggered status transition. Transitions are
// not validated.
func (s *Service) UpdateStatus(ctx context.Context, orderID, status string) error {
	if status == "" {
		return fmt.Errorf("status is required")
	}
	return s.orders.UpdateStatus(ctx, orderID, status)
}

// ExternalTransaction is a client-submitted order record to reconcile into
// the store.
type ExternalTransaction struct {
	ID            string
	UserEmail     string
	Title         string
	AmountPesewas int64
	Status        string
}

// SyncExternal inserts the record iff its id is not already present.
// Resubmitting the same id reports success without storing a second copy.
func (s *Service) SyncExternal(ctx context.Context, rec ExternalTransaction) (inserted bool, err error) {
	if rec.ID == "" {
		return false, fmt.Errorf("transaction id is required")
	}
	o := Order{
		ID:           rec.ID,
		UserEmail:    rec.UserEmail,
		Title:        rec.Title,
		PricePesewas: rec.AmountPesewas,
		Status:       rec.Status,
		CreatedAt:    time.Now().UTC(),
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	if err := s.orders.Create(ctx, o); err != nil {
		if errors.Is(err, ErrExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListByUser returns the user's purchase history.
func (s *Service) ListByUser(ctx context.Context, email string) ([]Order, error) {
	return s.orders.ListByUser(ctx, email)
}

// List returns every order for admin review.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.orders.List(ctx)
}

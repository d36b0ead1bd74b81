package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInsufficientFunds occurs when a debit would push the wallet balance
	// below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateReference indicates a completed entry already exists for the
	// provided reference or order id; callers treat the returned entry as the
	// successful outcome of the original delivery.
	ErrDuplicateReference = errors.New("duplicate reference")

	// ErrAmountMismatch indicates the confirmed amount differs from the amount
	// recorded when the top-up was initiated, or that the reference already
	// failed on such a mismatch. The balance is never mutated.
	ErrAmountMismatch = errors.New("amount mismatch")

	// ErrInvalidAmount rejects zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

const (
	// KindTopUp marks a wallet credit funded through the payment gateway.
	KindTopUp = "topup"
	// KindPurchase marks a wallet debit backing a bundle order.
	KindPurchase = "purchase"

	// StatusPending marks an initiated top-up awaiting gateway confirmation.
	StatusPending = "pending"
	// StatusCompleted marks a settled entry. Completed entries are immutable.
	StatusCompleted = "completed"
	// StatusFailed marks an entry rejected during confirmation.
	StatusFailed = "failed"
)

// Entry is a single wallet transaction record. ExternalRef carries the
// gateway reference for top-ups; OrderID links purchase debits to orders.
type Entry struct {
	ID            string
	Kind          string
	ExternalRef   string
	OrderID       string
	UserEmail     string
	AmountPesewas int64
	Status        string
	CreatedAt     time.Time
}

// Ledger is the only component allowed to mutate user balances. All
// implementations serialize mutations per user and make the
// check-reference-and-credit step atomic, so the same gateway confirmation
// arriving twice (verify call and webhook) credits exactly once.
type Ledger interface {
	// InitiateTopUp records a pending entry for a freshly issued gateway
	// reference. No balance change happens until confirmation.
	InitiateTopUp(ctx context.Context, externalRef, email string, amount int64) (Entry, error)

	// CreditTopUp settles a confirmed top-up. A reference that already
	// reached completed is returned unchanged with ErrDuplicateReference.
	CreditTopUp(ctx context.Context, externalRef, email string, amount int64) (Entry, error)

	// DebitPurchase withdraws the bundle price, keyed idempotently by order
	// id. Returns ErrInsufficientFunds without mutating anything when the
	// balance cannot cover the amount.
	DebitPurchase(ctx context.Context, email string, amount int64, orderID string) (Entry, error)

	// Balance returns the current wallet balance in pesewas.
	Balance(ctx context.Context, email string) (int64, error)

	// EntriesByUser lists the user's transaction history, newest first.
	EntriesByUser(ctx context.Context, email string) ([]Entry, error)
}

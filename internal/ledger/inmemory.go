package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bundlehub/bundlehub/internal/user"
)

// inMemoryLedger keeps entries in maps and writes balances through the user
// repository. A single mutex serializes every read-modify-write, which keeps
// concurrent credits and debits for the same user from losing updates.
type inMemoryLedger struct {
	mu      sync.Mutex
	users   user.Repository
	entries map[string]Entry
	byRef   map[string]string
	byOrder map[string]string
}

// NewInMemory creates a concurrency-safe in-memory ledger for development and tests.
func NewInMemory(users user.Repository) Ledger {
	return &inMemoryLedger{
		users:   users,
		entries: make(map[string]Entry),
		byRef:   make(map[string]string),
		byOrder: make(map[string]string),
	}
}

func (l *inMemoryLedger) InitiateTopUp(ctx context.Context, externalRef, email string, amount int64) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if id, exists := l.byRef[externalRef]; exists {
		return l.entries[id], ErrDuplicateReference
	}
	if _, err := l.users.FindByEmail(ctx, email); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:            uuid.NewString(),
		Kind:          KindTopUp,
		ExternalRef:   externalRef,
		UserEmail:     email,
		AmountPesewas: amount,
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	l.entries[entry.ID] = entry
	l.byRef[externalRef] = entry.ID
	return entry, nil
}

func (l *inMemoryLedger) CreditTopUp(ctx context.Context, externalRef, email string, amount int64) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if id, exists := l.byRef[externalRef]; exists {
		entry := l.entries[id]
		switch entry.Status {
		case StatusCompleted:
			return entry, ErrDuplicateReference
		case StatusFailed:
			// A redelivered confirmation for a failed reference stays failed.
			return entry, ErrAmountMismatch
		}
		// Pending entry: the confirmed amount must match what was initiated.
		if entry.AmountPesewas != amount {
			entry.Status = StatusFailed
			l.entries[id] = entry
			return entry, ErrAmountMismatch
		}
		u, err := l.users.FindByEmail(ctx, email)
		if err != nil {
			return Entry{}, err
		}
		if err := l.users.SetBalance(ctx, email, u.BalancePesewas+amount); err != nil {
			return Entry{}, err
		}
		entry.Status = StatusCompleted
		l.entries[id] = entry
		return entry, nil
	}

	// No prior initiation (webhook for a top-up started elsewhere): credit
	// and record in one step.
	u, err := l.users.FindByEmail(ctx, email)
	if err != nil {
		return Entry{}, err
	}
	if err := l.users.SetBalance(ctx, email, u.BalancePesewas+amount); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:            uuid.NewString(),
		Kind:          KindTopUp,
		ExternalRef:   externalRef,
		UserEmail:     email,
		AmountPesewas: amount,
		Status:        StatusCompleted,
		CreatedAt:     time.Now().UTC(),
	}
	l.entries[entry.ID] = entry
	l.byRef[externalRef] = entry.ID
	return entry, nil
}

func (l *inMemoryLedger) DebitPurchase(ctx context.Context, email string, amount int64, orderID string) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if id, exists := l.byOrder[orderID]; exists {
		return l.entries[id], ErrDuplicateReference
	}

	u, err := l.users.FindByEmail(ctx, email)
	if err != nil {
		return Entry{}, err
	}
	if u.BalancePesewas < amount {
		return Entry{}, ErrInsufficientFunds
	}
	if err := l.users.SetBalance(ctx, email, u.BalancePesewas-amount); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:            uuid.NewString(),
		Kind:          KindPurchase,
		OrderID:       orderID,
		UserEmail:     email,
		AmountPesewas: amount,
		Status:        StatusCompleted,
		CreatedAt:     time.Now().UTC(),
	}
	l.entries[entry.ID] = entry
	l.byOrder[orderID] = entry.ID
	return entry, nil
}

func (l *inMemoryLedger) Balance(ctx context.Context, email string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, err := l.users.FindByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	return u.BalancePesewas, nil
}

func (l *inMemoryLedger) EntriesByUser(_ context.Context, email string) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var entries []Entry
	for _, e := range l.entries {
		if e.UserEmail == email {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	return entries, nil
}

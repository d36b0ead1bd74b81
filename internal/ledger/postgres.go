package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bundlehub/bundlehub/internal/user"
)

// PostgresLedger persists entries in PostgreSQL. Per-user serialization comes
// from a row lock on the user record; every balance mutation happens inside
// the same transaction as the entry insert.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgres constructs a Postgres-backed ledger implementation.
func NewPostgres(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) InitiateTopUp(ctx context.Context, externalRef, email string, amount int64) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := lockUser(ctx, tx, email); err != nil {
		return Entry{}, err
	}

	if existing, err := entryByRef(ctx, tx, externalRef); err == nil {
		return existing, ErrDuplicateReference
	} else if !errors.Is(err, pgx.ErrNoRows) {
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
	if err := insertEntry(ctx, tx, entry); err != nil {
		return Entry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (l *PostgresLedger) CreditTopUp(ctx context.Context, externalRef, email string, amount int64) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	// The row lock serializes the two delivery paths (verify call and
	// webhook) racing to settle the same reference.
	balance, err := lockUser(ctx, tx, email)
	if err != nil {
		return Entry{}, err
	}

	existing, err := entryByRef(ctx, tx, externalRef)
	switch {
	case err == nil && existing.Status == StatusCompleted:
		return existing, ErrDuplicateReference
	case err == nil && existing.Status == StatusFailed:
		// A redelivered confirmation for a failed reference stays failed.
		return existing, ErrAmountMismatch
	case err == nil:
		if existing.AmountPesewas != amount {
			if _, err := tx.Exec(ctx, `UPDATE ledger_entries SET status = $1 WHERE id = $2`, StatusFailed, existing.ID); err != nil {
				return Entry{}, err
			}
			if err := tx.Commit(ctx); err != nil {
				return Entry{}, err
			}
			existing.Status = StatusFailed
			return existing, ErrAmountMismatch
		}
		if _, err := tx.Exec(ctx, `UPDATE ledger_entries SET status = $1 WHERE id = $2`, StatusCompleted, existing.ID); err != nil {
			return Entry{}, err
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET balance_pesewas = $1 WHERE email = $2`, balance+amount, email); err != nil {
			return Entry{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return Entry{}, err
		}
		existing.Status = StatusCompleted
		return existing, nil
	case !errors.Is(err, pgx.ErrNoRows):
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
	if err := insertEntry(ctx, tx, entry); err != nil {
		return Entry{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE users SET balance_pesewas = $1 WHERE email = $2`, balance+amount, email); err != nil {
		return Entry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (l *PostgresLedger) DebitPurchase(ctx context.Context, email string, amount int64, orderID string) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	balance, err := lockUser(ctx, tx, email)
	if err != nil {
		return Entry{}, err
	}

	row := tx.QueryRow(ctx, `SELECT id, kind, COALESCE(external_ref, ''), COALESCE(order_id, ''), user_email, amount_pesewas, status, created_at
        FROM ledger_entries WHERE order_id = $1 AND kind = $2`, orderID, KindPurchase)
	if existing, err := scanEntry(row); err == nil {
		return existing, ErrDuplicateReference
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, err
	}

	if balance < amount {
		return Entry{}, ErrInsufficientFunds
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
	if err := insertEntry(ctx, tx, entry); err != nil {
		return Entry{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE users SET balance_pesewas = $1 WHERE email = $2`, balance-amount, email); err != nil {
		return Entry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (l *PostgresLedger) Balance(ctx context.Context, email string) (int64, error) {
	var balance int64
	if err := l.db.QueryRow(ctx, `SELECT balance_pesewas FROM users WHERE email = $1`, email).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, user.ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}

func (l *PostgresLedger) EntriesByUser(ctx context.Context, email string) ([]Entry, error) {
	rows, err := l.db.Query(ctx, `SELECT id, kind, COALESCE(external_ref, ''), COALESCE(order_id, ''), user_email, amount_pesewas, status, created_at
        FROM ledger_entries WHERE user_email = $1 ORDER BY created_at DESC`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func lockUser(ctx context.Context, tx pgx.Tx, email string) (int64, error) {
	var balance int64
	if err := tx.QueryRow(ctx, `SELECT balance_pesewas FROM users WHERE email = $1 FOR UPDATE`, email).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, user.ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}

func entryByRef(ctx context.Context, tx pgx.Tx, externalRef string) (Entry, error) {
	row := tx.QueryRow(ctx, `SELECT id, kind, COALESCE(external_ref, ''), COALESCE(order_id, ''), user_email, amount_pesewas, status, created_at
        FROM ledger_entries WHERE external_ref = $1 AND kind = $2`, externalRef, KindTopUp)
	return scanEntry(row)
}

func insertEntry(ctx context.Context, tx pgx.Tx, entry Entry) error {
	_, err := tx.Exec(ctx, `INSERT INTO ledger_entries (id, kind, external_ref, order_id, user_email, amount_pesewas, status, created_at)
        VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8)`,
		entry.ID, entry.Kind, entry.ExternalRef, entry.OrderID, entry.UserEmail, entry.AmountPesewas, entry.Status, entry.CreatedAt)
	return err
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e         Entry
		createdAt time.Time
	)
	if err := row.Scan(&e.ID, &e.Kind, &e.ExternalRef, &e.OrderID, &e.UserEmail, &e.AmountPesewas, &e.Status, &createdAt); err != nil {
		return Entry{}, err
	}
	e.CreatedAt = createdAt.UTC()
	return e, nil
}

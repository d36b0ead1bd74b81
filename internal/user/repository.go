package user

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates no account exists for the requested email.
	ErrNotFound = errors.New("user not found")
	// ErrExists indicates the email is already registered.
	ErrExists = errors.New("user exists")
)

// Repository persists user accounts keyed by email. Mutations are targeted
// per field so concurrent writers of different fields (the ledger owns the
// balance, the authenticator owns the credential and session version) can
// never overwrite each other with a stale whole-record write.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByEmail(ctx context.Context, email string) (User, error)
	SetBalance(ctx context.Context, email string, balance int64) error
	SetPassword(ctx context.Context, email string, hash []byte) error
	BumpSessionVersion(ctx context.Context, email string) error
	List(ctx context.Context) ([]User, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed user repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new account. Duplicate emails map to ErrExists.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	_, err := r.db.Exec(ctx, `INSERT INTO users (email, name, password_hash, balance_pesewas, role, session_version, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.Email, user.Name, user.PasswordHash, user.BalancePesewas, user.Role, user.SessionVersion, user.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrExists
	}
	return err
}

// FindByEmail fetches an account by its email key.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT email, name, password_hash, balance_pesewas, role, session_version, created_at
        FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// SetBalance overwrites the wallet balance. Callers serialize the surrounding
// read-modify-write; the ledger holds a row lock on the user in the same
// transaction scope.
func (r *PostgresRepository) SetBalance(ctx context.Context, email string, balance int64) error {
	cmd, err := r.db.Exec(ctx, `UPDATE users SET balance_pesewas = $1 WHERE email = $2`, balance, email)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPassword overwrites the stored credential hash.
func (r *PostgresRepository) SetPassword(ctx context.Context, email string, hash []byte) error {
	cmd, err := r.db.Exec(ctx, `UPDATE users SET password_hash = $1 WHERE email = $2`, hash, email)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BumpSessionVersion increments the session version atomically in the store,
// revoking every previously issued token for the account.
func (r *PostgresRepository) BumpSessionVersion(ctx context.Context, email string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE users SET session_version = session_version + 1 WHERE email = $1`, email)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns every account, newest first.
func (r *PostgresRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.Query(ctx, `SELECT email, name, password_hash, balance_pesewas, role, session_version, created_at
        FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u         User
		createdAt time.Time
	)
	if err := row.Scan(&u.Email, &u.Name, &u.PasswordHash, &u.BalancePesewas, &u.Role, &u.SessionVersion, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	u.CreatedAt = createdAt.UTC()
	return u, nil
}

package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates no order exists for the requested id.
	ErrNotFound = errors.New("order not found")
	// ErrExists indicates an order with the id is already stored.
	ErrExists = errors.New("order exists")
)

// Repository persists orders.
type Repository interface {
	Create(ctx context.Context, order Order) error
	Get(ctx context.Context, id string) (Order, error)
	UpdateStatus(ctx context.Context, id, status string) error
	ListByUser(ctx context.Context, email string) ([]Order, error)
	List(ctx context.Context) ([]Order, error)
}

// PostgresRepository stores orders in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts an order record. Duplicate ids map to ErrExists.
func (r *PostgresRepository) Create(ctx context.Context, o Order) error {
	_, err := r.db.Exec(ctx, `INSERT INTO orders (id, user_email, bundle_id, network, title, beneficiary, price_pesewas, status, paid, remote_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, o.UserEmail, o.BundleID, o.Network, o.Title, o.Beneficiary, o.PricePesewas, o.Status, o.Paid, o.RemoteID, o.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrExists
	}
	return err
}

// Get fetches an order by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Order, error) {
	row := r.db.QueryRow(ctx, `SELECT id, user_email, bundle_id, network, title, beneficiary, price_pesewas, status, paid, remote_id, created_at
        FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

// UpdateStatus overwrites the order status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id, status string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE orders SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByUser returns the user's orders, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, email string) ([]Order, error) {
	rows, err := r.db.Query(ctx, `SELECT id, user_email, bundle_id, network, title, beneficiary, price_pesewas, status, paid, remote_id, created_at
        FROM orders WHERE user_email = $1 ORDER BY created_at DESC`, email)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

// List returns every order, newest first.
func (r *PostgresRepository) List(ctx context.Context) ([]Order, error) {
	rows, err := r.db.Query(ctx, `SELECT id, user_email, bundle_id, network, title, beneficiary, price_pesewas, status, paid, remote_id, created_at
        FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o         Order
		createdAt time.Time
	)
	if err := row.Scan(&o.ID, &o.UserEmail, &o.BundleID, &o.Network, &o.Title, &o.Beneficiary, &o.PricePesewas, &o.Status, &o.Paid, &o.RemoteID, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	o.CreatedAt = createdAt.UTC()
	return o, nil
}

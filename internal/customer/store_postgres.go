package customer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"till/pkg/platform/sentinel"
)

// PostgresStore persists customer records in PostgreSQL via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a PostgreSQL-backed customer store.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the customers table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS customers (
			id           TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			email        TEXT NOT NULL DEFAULT '',
			phone        TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure customers schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, customer *Customer) error {
	query := `
		INSERT INTO customers (id, display_name, email, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.pool.Exec(ctx, query,
		customer.ID,
		customer.DisplayName,
		customer.Email,
		customer.Phone,
		customer.CreatedAt,
		customer.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, customerID string) (*Customer, error) {
	query := `
		SELECT id, display_name, email, phone, created_at, updated_at
		FROM customers WHERE id = $1
	`
	var customer Customer
	err := s.pool.QueryRow(ctx, query, customerID).Scan(
		&customer.ID,
		&customer.DisplayName,
		&customer.Email,
		&customer.Phone,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return &customer, nil
}

func (s *PostgresStore) Search(ctx context.Context, searchQuery string, limit int) ([]*Customer, error) {
	if searchQuery == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 25
	}

	query := `
		SELECT id, display_name, email, phone, created_at, updated_at
		FROM customers
		WHERE display_name ILIKE '%' || $1 || '%'
		   OR email ILIKE '%' || $1 || '%'
		   OR phone LIKE '%' || $1 || '%'
		ORDER BY display_name ASC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, searchQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("search customers: %w", err)
	}
	defer rows.Close()

	var customers []*Customer
	for rows.Next() {
		var customer Customer
		err := rows.Scan(
			&customer.ID,
			&customer.DisplayName,
			&customer.Email,
			&customer.Phone,
			&customer.CreatedAt,
			&customer.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, &customer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return customers, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"till/internal/checkout/models"
	"till/pkg/platform/sentinel"
)

// PostgresStore persists sale documents in PostgreSQL. The full sale is stored
// as jsonb; state and fulfillment status are lifted into columns for querying.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed sale store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the sales table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS sales (
			id                 TEXT PRIMARY KEY,
			state              TEXT NOT NULL,
			location_id        TEXT NOT NULL,
			register_id        TEXT NOT NULL,
			fulfillment_status TEXT NOT NULL,
			document           JSONB NOT NULL,
			created_at         TIMESTAMPTZ NOT NULL,
			updated_at         TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sales_fulfillment_status
			ON sales (fulfillment_status, created_at)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure sales schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, sale *models.Sale) error {
	document, err := json.Marshal(sale)
	if err != nil {
		return fmt.Errorf("marshal sale document: %w", err)
	}

	query := `
		INSERT INTO sales (id, state, location_id, register_id, fulfillment_status, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.ExecContext(ctx, query,
		sale.ID,
		string(sale.State),
		sale.LocationID,
		sale.RegisterID,
		string(sale.Fulfillment.Status),
		document,
		sale.CreatedAt,
		sale.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, saleID string) (*models.Sale, error) {
	query := `SELECT document FROM sales WHERE id = $1`

	var document []byte
	err := s.db.QueryRowContext(ctx, query, saleID).Scan(&document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get sale: %w", err)
	}

	var sale models.Sale
	if err := json.Unmarshal(document, &sale); err != nil {
		return nil, fmt.Errorf("unmarshal sale document: %w", err)
	}
	return &sale, nil
}

func (s *PostgresStore) Update(ctx context.Context, sale *models.Sale) error {
	document, err := json.Marshal(sale)
	if err != nil {
		return fmt.Errorf("marshal sale document: %w", err)
	}

	query := `
		UPDATE sales
		SET state = $2, fulfillment_status = $3, document = $4, updated_at = $5
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		sale.ID,
		string(sale.State),
		string(sale.Fulfillment.Status),
		document,
		sale.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update sale: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update sale rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByFulfillmentStatus(ctx context.Context, status models.FulfillmentStatus) ([]*models.Sale, error) {
	query := `
		SELECT document FROM sales
		WHERE fulfillment_status = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("list sales by fulfillment status: %w", err)
	}
	defer rows.Close()

	var sales []*models.Sale
	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("scan sale document: %w", err)
		}
		var sale models.Sale
		if err := json.Unmarshal(document, &sale); err != nil {
			return nil, fmt.Errorf("unmarshal sale document: %w", err)
		}
		sales = append(sales, &sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sales: %w", err)
	}
	return sales, nil
}

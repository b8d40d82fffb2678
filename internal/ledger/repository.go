package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/projectledger/internal/platform/db"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// Repository persists ledger entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	q db.Querier
}

// NewTxRepository binds ledger writes to an existing transaction.
func NewTxRepository(q db.Querier) TxRepository {
	return &txRepo{q: q}
}

// NewReader sums entries through q. Pass a pgx.Tx so several sums share one snapshot.
func NewReader(q db.Querier) Reader {
	return &txRepo{q: q}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

// SumEntries totals entries by kind and status.
func (r *Repository) SumEntries(ctx context.Context, projectID int64, kind Kind, status Status) (decimal.Decimal, error) {
	return sumEntries(ctx, r.pool, projectID, kind, status)
}

// ListEntries returns entries newest first.
func (r *Repository) ListEntries(ctx context.Context, filter ListFilter) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, project_id, kind, amount, entry_date, category, payment_method,
reference, description, status, source_module, source_id, created_by, created_at
FROM ledger_entries
WHERE project_id = $1
  AND ($2 = '' OR kind = $2)
  AND ($3::date IS NULL OR entry_date >= $3)
  AND ($4::date IS NULL OR entry_date <= $4)
ORDER BY entry_date DESC, id DESC
LIMIT $5`, filter.ProjectID, string(filter.Kind), nullableDate(filter.From), nullableDate(filter.To), filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		var kind, status string
		if err := rows.Scan(&e.ID, &e.ProjectID, &kind, &e.Amount, &e.Date, &e.Category, &e.PaymentMethod,
			&e.Reference, &e.Description, &status, &e.SourceModule, &e.SourceID, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		e.Status = Status(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepo) SumEntries(ctx context.Context, projectID int64, kind Kind, status Status) (decimal.Decimal, error) {
	return sumEntries(ctx, r.q, projectID, kind, status)
}

func (r *txRepo) InsertEntry(ctx context.Context, e Entry) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO ledger_entries (project_id, kind, amount, entry_date, category, payment_method,
reference, description, status, source_module, source_id, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id`, e.ProjectID, string(e.Kind), e.Amount, e.Date, e.Category, e.PaymentMethod,
		e.Reference, e.Description, string(e.Status), e.SourceModule, e.SourceID, e.CreatedBy).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err, "ledger_entries_source_key") {
			return 0, fmt.Errorf("ledger: %s %d already emitted an entry: %w", e.SourceModule, e.SourceID, shared.ErrInvalidTransition)
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepo) LockProject(ctx context.Context, projectID int64) error {
	var id int64
	err := r.q.QueryRow(ctx, `SELECT id FROM projects WHERE id = $1 FOR UPDATE`, projectID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("ledger: project %d: %w", projectID, shared.ErrNotFound)
	}
	return err
}

func sumEntries(ctx context.Context, q db.Querier, projectID int64, kind Kind, status Status) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
WHERE project_id = $1 AND kind = $2 AND status = $3`, projectID, string(kind), string(status)).Scan(&total)
	return total, err
}

func nullableDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

package projects

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/projectledger/internal/ledger"
	"github.com/odyssey-erp/projectledger/internal/platform/db"
	"github.com/odyssey-erp/projectledger/internal/sequence"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// Repository persists projects.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const projectColumns = `id, code, name, client_id, planned_budget, status, start_date, planned_end_date,
actual_end_date, created_by, created_at, updated_at`

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	var status string
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.ClientID, &p.PlannedBudget, &status, &p.StartDate,
		&p.PlannedEndDate, &p.ActualEndDate, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, shared.ErrNotFound
		}
		return Project{}, err
	}
	p.Status = Status(status)
	return p, nil
}

// Get loads a project by id.
func (r *Repository) Get(ctx context.Context, id int64) (Project, error) {
	return scanProject(r.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
}

// List returns projects newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Project, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+projectColumns+` FROM projects
WHERE ($1 = '' OR status = $1) ORDER BY id DESC LIMIT $2`, string(filter.Status), filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *txRepo) Counter() sequence.Counter {
	return sequence.NewCounter(t.tx)
}

func (t *txRepo) Insert(ctx context.Context, p Project) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO projects (code, name, client_id, planned_budget, status, start_date, planned_end_date, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		p.Code, p.Name, p.ClientID, p.PlannedBudget, string(p.Status), p.StartDate, p.PlannedEndDate, p.CreatedBy).Scan(&id)
	if db.IsUniqueViolation(err, "projects_code_key") {
		return 0, fmt.Errorf("projects: code %s: %w", p.Code, shared.ErrDuplicateCode)
	}
	return id, err
}

func (t *txRepo) Ledger() ledger.Reader {
	return ledger.NewReader(t.tx)
}

func (t *txRepo) Get(ctx context.Context, id int64) (Project, error) {
	return scanProject(t.tx.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Project, error) {
	return scanProject(t.tx.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status Status, actualEnd *time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE projects SET status = $2, actual_end_date = COALESCE($3, actual_end_date), updated_at = NOW()
WHERE id = $1`, id, string(status), actualEnd)
	return err
}

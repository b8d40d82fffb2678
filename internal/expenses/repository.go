package expenses

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/projectledger/internal/approval"
	"github.com/odyssey-erp/projectledger/internal/ledger"
	"github.com/odyssey-erp/projectledger/internal/platform/db"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// Repository persists expenses.
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

const expenseColumns = `id, project_id, category, supplier_id, expense_date, amount, payment_method,
supplier_invoice_no, description, status, created_by, approved_by, approved_at, created_at, updated_at`

func scanExpense(row pgx.Row) (Expense, error) {
	var e Expense
	var method, status string
	err := row.Scan(&e.ID, &e.ProjectID, &e.Category, &e.SupplierID, &e.Date, &e.Amount, &method,
		&e.SupplierInvoiceNo, &e.Description, &status, &e.CreatedBy, &e.ApprovedBy, &e.ApprovedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, shared.ErrNotFound
		}
		return Expense{}, err
	}
	e.PaymentMethod = shared.PaymentMethod(method)
	e.Status = approval.State(status)
	return e, nil
}

// Get loads an expense.
func (r *Repository) Get(ctx context.Context, id int64) (Expense, error) {
	return scanExpense(r.pool.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id))
}

// List returns expenses newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Expense, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+expenseColumns+` FROM expenses
WHERE ($1 = 0 OR project_id = $1) AND ($2 = '' OR status = $2)
ORDER BY expense_date DESC, id DESC LIMIT $3`, filter.ProjectID, string(filter.Status), filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *txRepo) Ledger() ledger.TxRepository {
	return ledger.NewTxRepository(t.tx)
}

func (t *txRepo) Approvals() approval.Recorder {
	return approval.NewStore(t.tx)
}

func (t *txRepo) Insert(ctx context.Context, e Expense) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO expenses (project_id, category, supplier_id, expense_date, amount, payment_method,
supplier_invoice_no, description, status, created_by, approved_by, approved_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		e.ProjectID, e.Category, e.SupplierID, e.Date, e.Amount, string(e.PaymentMethod),
		e.SupplierInvoiceNo, e.Description, string(e.Status), e.CreatedBy, e.ApprovedBy, e.ApprovedAt).Scan(&id)
	return id, err
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Expense, error) {
	return scanExpense(t.tx.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) Update(ctx context.Context, e Expense) error {
	_, err := t.tx.Exec(ctx, `UPDATE expenses SET category = $2, supplier_id = $3, expense_date = $4, amount = $5,
payment_method = $6, supplier_invoice_no = $7, description = $8, updated_at = NOW() WHERE id = $1`,
		e.ID, e.Category, e.SupplierID, e.Date, e.Amount, string(e.PaymentMethod), e.SupplierInvoiceNo, e.Description)
	return err
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status approval.State, decision approval.Decision) error {
	_, err := t.tx.Exec(ctx, `UPDATE expenses SET status = $2, approved_by = COALESCE($3, approved_by),
approved_at = COALESCE($4, approved_at), updated_at = NOW() WHERE id = $1`, id, string(status), decision.By, decision.At)
	return err
}

package personnel

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/projectledger/internal/approval"
	"github.com/odyssey-erp/projectledger/internal/ledger"
	"github.com/odyssey-erp/projectledger/internal/platform/db"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// Repository persists workers and payments.
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

const (
	workerColumns  = `id, first_name, last_name, role, contract_type, daily_salary, agreed_salary, active, created_at`
	paymentColumns = `id, personnel_id, project_id, payment_date, amount, days, payment_method, description, status,
created_by, approved_by, approved_at, created_at`
)

func scanWorker(row pgx.Row) (Worker, error) {
	var w Worker
	var agreed decimal.NullDecimal
	err := row.Scan(&w.ID, &w.FirstName, &w.LastName, &w.Role, &w.ContractType, &w.DailySalary, &agreed, &w.Active, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Worker{}, shared.ErrNotFound
		}
		return Worker{}, err
	}
	if agreed.Valid {
		w.AgreedSalary = &agreed.Decimal
	}
	return w, nil
}

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	var method, status string
	err := row.Scan(&p.ID, &p.WorkerID, &p.ProjectID, &p.Date, &p.Amount, &p.Days, &method, &p.Description, &status,
		&p.CreatedBy, &p.ApprovedBy, &p.ApprovedAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, shared.ErrNotFound
		}
		return Payment{}, err
	}
	p.PaymentMethod = shared.PaymentMethod(method)
	p.Status = approval.State(status)
	return p, nil
}

// GetWorker loads a worker.
func (r *Repository) GetWorker(ctx context.Context, id int64) (Worker, error) {
	return scanWorker(r.pool.QueryRow(ctx, `SELECT `+workerColumns+` FROM personnel WHERE id = $1`, id))
}

// GetPayment loads a payment.
func (r *Repository) GetPayment(ctx context.Context, id int64) (Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM personnel_payments WHERE id = $1`, id))
}

// ListPayments returns a worker's payments newest first.
func (r *Repository) ListPayments(ctx context.Context, workerID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM personnel_payments
WHERE personnel_id = $1 ORDER BY payment_date DESC, id DESC`, workerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SumValidatedPayments totals validated payments of a worker.
func (r *Repository) SumValidatedPayments(ctx context.Context, workerID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM personnel_payments
WHERE personnel_id = $1 AND status = $2`, workerID, string(StatusValidated)).Scan(&total)
	return total, err
}

func (t *txRepo) Ledger() ledger.TxRepository {
	return ledger.NewTxRepository(t.tx)
}

func (t *txRepo) Approvals() approval.Recorder {
	return approval.NewStore(t.tx)
}

func (t *txRepo) InsertWorker(ctx context.Context, w Worker) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO personnel (first_name, last_name, role, contract_type, daily_salary, agreed_salary, active)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		w.FirstName, w.LastName, w.Role, w.ContractType, w.DailySalary, w.AgreedSalary, w.Active).Scan(&id)
	return id, err
}

func (t *txRepo) GetWorker(ctx context.Context, id int64) (Worker, error) {
	return scanWorker(t.tx.QueryRow(ctx, `SELECT `+workerColumns+` FROM personnel WHERE id = $1`, id))
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO personnel_payments (personnel_id, project_id, payment_date, amount, days,
payment_method, description, status, created_by, approved_by, approved_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		p.WorkerID, p.ProjectID, p.Date, p.Amount, p.Days, string(p.PaymentMethod), p.Description, string(p.Status),
		p.CreatedBy, p.ApprovedBy, p.ApprovedAt).Scan(&id)
	return id, err
}

func (t *txRepo) GetPaymentForUpdate(ctx context.Context, id int64) (Payment, error) {
	return scanPayment(t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM personnel_payments WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) UpdatePayment(ctx context.Context, p Payment) error {
	_, err := t.tx.Exec(ctx, `UPDATE personnel_payments SET payment_date = $2, amount = $3, days = $4,
payment_method = $5, description = $6, updated_at = NOW() WHERE id = $1`,
		p.ID, p.Date, p.Amount, p.Days, string(p.PaymentMethod), p.Description)
	return err
}

func (t *txRepo) UpdatePaymentStatus(ctx context.Context, id int64, status approval.State, decision approval.Decision) error {
	_, err := t.tx.Exec(ctx, `UPDATE personnel_payments SET status = $2, approved_by = COALESCE($3, approved_by),
approved_at = COALESCE($4, approved_at), updated_at = NOW() WHERE id = $1`, id, string(status), decision.By, decision.At)
	return err
}

package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/projectledger/internal/approval"
	"github.com/odyssey-erp/projectledger/internal/platform/db"
	"github.com/odyssey-erp/projectledger/internal/sequence"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// Repository implements invoicing persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const quoteColumns = `id, code, project_id, customer_id, issue_date, validity_date, amount_excl_tax,
applies_tax, tax_rate, status, payment_terms, notes, created_by, created_at, updated_at`

const invoiceColumns = `id, code, project_id, customer_id, quote_id, issue_date, due_date, amount_excl_tax,
applies_tax, tax_rate, amount_paid, status, payment_terms, notes, created_by, created_at, updated_at`

func scanQuote(row pgx.Row) (Quote, error) {
	var q Quote
	var status string
	err := row.Scan(&q.ID, &q.Code, &q.ProjectID, &q.CustomerID, &q.IssueDate, &q.ValidityDate, &q.AmountExclTax,
		&q.AppliesTax, &q.TaxRate, &status, &q.PaymentTerms, &q.Notes, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quote{}, fmt.Errorf("invoicing: quote: %w", shared.ErrNotFound)
		}
		return Quote{}, err
	}
	q.Status = approval.State(status)
	return q, nil
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var status string
	err := row.Scan(&inv.ID, &inv.Code, &inv.ProjectID, &inv.CustomerID, &inv.QuoteID, &inv.IssueDate, &inv.DueDate,
		&inv.AmountExclTax, &inv.AppliesTax, &inv.TaxRate, &inv.AmountPaid, &status, &inv.PaymentTerms, &inv.Notes,
		&inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, fmt.Errorf("invoicing: invoice: %w", shared.ErrNotFound)
		}
		return Invoice{}, err
	}
	inv.Status = InvoiceStatus(status)
	return inv, nil
}

func loadLines(ctx context.Context, q db.Querier, table, fk string, docID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, `+fk+`, description, unit, quantity, unit_price, amount
FROM `+table+` WHERE `+fk+` = $1 ORDER BY id`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.Description, &l.Unit, &l.Quantity, &l.UnitPrice, &l.Amount); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// GetQuote loads a quote with its lines.
func (r *Repository) GetQuote(ctx context.Context, id int64) (Quote, []Line, error) {
	q, err := scanQuote(r.pool.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, id))
	if err != nil {
		return Quote{}, nil, err
	}
	lines, err := loadLines(ctx, r.pool, "quote_lines", "quote_id", id)
	return q, lines, err
}

// ListQuotes returns quotes newest first.
func (r *Repository) ListQuotes(ctx context.Context, filter QuoteFilter) ([]Quote, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+quoteColumns+` FROM quotes
WHERE ($1 = 0 OR project_id = $1) AND ($2 = '' OR status = $2)
ORDER BY issue_date DESC, id DESC LIMIT $3`, filter.ProjectID, string(filter.Status), filter.Limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanQuote)
}

// GetInvoice loads an invoice with its lines.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, []Line, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		return Invoice{}, nil, err
	}
	lines, err := loadLines(ctx, r.pool, "invoice_lines", "invoice_id", id)
	return inv, lines, err
}

// ListInvoices returns invoices newest first.
func (r *Repository) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE ($1 = 0 OR project_id = $1) AND ($2 = '' OR status = $2)
ORDER BY issue_date DESC, id DESC LIMIT $3`, filter.ProjectID, string(filter.Status), filter.Limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanInvoice)
}

// ListPayments returns the payments of an invoice in date order.
func (r *Repository) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, payment_date, amount, method, reference, notes, created_by, created_at
FROM invoice_payments WHERE invoice_id = $1 ORDER BY payment_date, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (Payment, error) {
		var p Payment
		var method string
		err := row.Scan(&p.ID, &p.InvoiceID, &p.Date, &p.Amount, &method, &p.Reference, &p.Notes, &p.CreatedBy, &p.CreatedAt)
		p.Method = shared.PaymentMethod(method)
		return p, err
	})
}

// ListOverdueCandidates returns ids of unpaid invoices due before today.
func (r *Repository) ListOverdueCandidates(ctx context.Context, today time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM invoices WHERE status = $1 AND due_date < $2::date ORDER BY id`,
		string(InvoiceUnpaid), today)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (int64, error) {
		var id int64
		err := row.Scan(&id)
		return id, err
	})
}

// ListOutstanding returns invoices not yet fully paid.
func (r *Repository) ListOutstanding(ctx context.Context) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE status <> $1 ORDER BY due_date`, string(InvoicePaid))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanInvoice)
}

func (t *txRepo) Counter() sequence.Counter    { return sequence.NewCounter(t.tx) }
func (t *txRepo) Approvals() approval.Recorder { return approval.NewStore(t.tx) }

func codeErr(err error, constraint string) error {
	if db.IsUniqueViolation(err, constraint) {
		return fmt.Errorf("invoicing: %s: %w", constraint, shared.ErrDuplicateCode)
	}
	return err
}

func (t *txRepo) InsertQuote(ctx context.Context, q Quote) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO quotes (code, project_id, customer_id, issue_date, validity_date, amount_excl_tax,
applies_tax, tax_rate, status, payment_terms, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		q.Code, q.ProjectID, q.CustomerID, q.IssueDate, q.ValidityDate, q.AmountExclTax,
		q.AppliesTax, q.TaxRate, string(q.Status), q.PaymentTerms, q.Notes, q.CreatedBy).Scan(&id)
	return id, codeErr(err, "quotes_code_key")
}

func (t *txRepo) GetQuoteForUpdate(ctx context.Context, id int64) (Quote, []Line, error) {
	q, err := scanQuote(t.tx.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Quote{}, nil, err
	}
	lines, err := loadLines(ctx, t.tx, "quote_lines", "quote_id", id)
	return q, lines, err
}

func (t *txRepo) UpdateQuote(ctx context.Context, q Quote) error {
	_, err := t.tx.Exec(ctx, `UPDATE quotes SET amount_excl_tax = $2, status = $3, updated_at = NOW() WHERE id = $1`,
		q.ID, q.AmountExclTax, string(q.Status))
	return err
}

func (t *txRepo) InsertQuoteLine(ctx context.Context, l Line) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO quote_lines (quote_id, description, unit, quantity, unit_price, amount)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, l.DocumentID, l.Description, l.Unit, l.Quantity, l.UnitPrice, l.Amount).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateQuoteLine(ctx context.Context, l Line) error {
	_, err := t.tx.Exec(ctx, `UPDATE quote_lines SET description = $3, unit = $4, quantity = $5, unit_price = $6, amount = $7
WHERE id = $1 AND quote_id = $2`, l.ID, l.DocumentID, l.Description, l.Unit, l.Quantity, l.UnitPrice, l.Amount)
	return err
}

func (t *txRepo) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO invoices (code, project_id, customer_id, quote_id, issue_date, due_date,
amount_excl_tax, applies_tax, tax_rate, amount_paid, status, payment_terms, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`,
		inv.Code, inv.ProjectID, inv.CustomerID, inv.QuoteID, inv.IssueDate, inv.DueDate,
		inv.AmountExclTax, inv.AppliesTax, inv.TaxRate, inv.AmountPaid, string(inv.Status), inv.PaymentTerms, inv.Notes,
		inv.CreatedBy).Scan(&id)
	return id, codeErr(err, "invoices_code_key")
}

func (t *txRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, []Line, error) {
	inv, err := scanInvoice(t.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Invoice{}, nil, err
	}
	lines, err := loadLines(ctx, t.tx, "invoice_lines", "invoice_id", id)
	return inv, lines, err
}

func (t *txRepo) UpdateInvoiceAmounts(ctx context.Context, inv Invoice) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET amount_excl_tax = $2, amount_paid = $3, status = $4, updated_at = NOW()
WHERE id = $1`, inv.ID, inv.AmountExclTax, inv.AmountPaid, string(inv.Status))
	return err
}

func (t *txRepo) InsertInvoiceLine(ctx context.Context, l Line) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO invoice_lines (invoice_id, description, unit, quantity, unit_price, amount)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, l.DocumentID, l.Description, l.Unit, l.Quantity, l.UnitPrice, l.Amount).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateInvoiceLine(ctx context.Context, l Line) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoice_lines SET description = $3, unit = $4, quantity = $5, unit_price = $6, amount = $7
WHERE id = $1 AND invoice_id = $2`, l.ID, l.DocumentID, l.Description, l.Unit, l.Quantity, l.UnitPrice, l.Amount)
	return err
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO invoice_payments (invoice_id, payment_date, amount, method, reference, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`, p.InvoiceID, p.Date, p.Amount, string(p.Method), p.Reference, p.Notes, p.CreatedBy).Scan(&id)
	return id, err
}

func (t *txRepo) SumPayments(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM invoice_payments WHERE invoice_id = $1`, invoiceID).Scan(&total)
	return total, err
}

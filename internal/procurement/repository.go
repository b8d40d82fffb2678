package procurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/projectledger/internal/approval"
	"github.com/odyssey-erp/projectledger/internal/inventory"
	"github.com/odyssey-erp/projectledger/internal/ledger"
	"github.com/odyssey-erp/projectledger/internal/platform/db"
	"github.com/odyssey-erp/projectledger/internal/sequence"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
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

const orderColumns = `id, code, project_id, supplier_id, order_date, received_date, supplier_invoice_no,
payment_method, total, status, notes, created_by, approved_by, approved_at`

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var method, status string
	err := row.Scan(&po.ID, &po.Code, &po.ProjectID, &po.SupplierID, &po.OrderDate, &po.ReceivedDate, &po.SupplierInvoiceNo,
		&method, &po.Total, &status, &po.Notes, &po.CreatedBy, &po.ApprovedBy, &po.ApprovedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, fmt.Errorf("procurement: purchase order: %w", shared.ErrNotFound)
		}
		return PurchaseOrder{}, err
	}
	po.PaymentMethod = shared.PaymentMethod(method)
	po.Status = approval.State(status)
	return po, nil
}

func loadLines(ctx context.Context, q db.Querier, orderID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, order_id, product_id, quantity, unit_price, amount, notes
FROM purchase_order_lines WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.Amount, &l.Notes); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// GetOrder loads an order with its lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (PurchaseOrder, []Line, error) {
	po, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1`, id))
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	lines, err := loadLines(ctx, r.pool, id)
	return po, lines, err
}

// ListOrders returns orders newest first.
func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM purchase_orders
WHERE ($1 = 0 OR project_id = $1) AND ($2 = '' OR status = $2)
ORDER BY order_date DESC, id DESC LIMIT $3`, filter.ProjectID, string(filter.Status), filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, po)
	}
	return out, rows.Err()
}

func (t *txRepo) Counter() sequence.Counter         { return sequence.NewCounter(t.tx) }
func (t *txRepo) Ledger() ledger.TxRepository       { return ledger.NewTxRepository(t.tx) }
func (t *txRepo) Inventory() inventory.TxRepository { return inventory.NewTxRepository(t.tx) }
func (t *txRepo) Approvals() approval.Recorder      { return approval.NewStore(t.tx) }

func (t *txRepo) InsertOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_orders (code, project_id, supplier_id, order_date, supplier_invoice_no,
payment_method, total, status, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		po.Code, po.ProjectID, po.SupplierID, po.OrderDate, po.SupplierInvoiceNo, string(po.PaymentMethod),
		po.Total, string(po.Status), po.Notes, po.CreatedBy).Scan(&id)
	if db.IsUniqueViolation(err, "purchase_orders_code_key") {
		return 0, fmt.Errorf("procurement: code %s: %w", po.Code, shared.ErrDuplicateCode)
	}
	return id, err
}

func (t *txRepo) InsertLine(ctx context.Context, l Line) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_order_lines (order_id, product_id, quantity, unit_price, amount, notes)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, l.OrderID, l.ProductID, l.Quantity, l.UnitPrice, l.Amount, l.Notes).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateLine(ctx context.Context, l Line) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_order_lines SET product_id = $2, quantity = $3, unit_price = $4, amount = $5, notes = $6
WHERE id = $1`, l.ID, l.ProductID, l.Quantity, l.UnitPrice, l.Amount, l.Notes)
	return err
}

func (t *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, []Line, error) {
	po, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	lines, err := loadLines(ctx, t.tx, id)
	return po, lines, err
}

func (t *txRepo) UpdateTotal(ctx context.Context, id int64, po PurchaseOrder) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET total = $2, updated_at = NOW() WHERE id = $1`, id, po.Total)
	return err
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status approval.State, decision approval.Decision, receivedDate *time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status = $2, approved_by = COALESCE($3, approved_by),
approved_at = COALESCE($4, approved_at), received_date = COALESCE($5, received_date), updated_at = NOW()
WHERE id = $1`, id, string(status), decision.By, decision.At, receivedDate)
	return err
}

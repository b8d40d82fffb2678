package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/projectledger/internal/platform/db"
	"github.com/odyssey-erp/projectledger/internal/sequence"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
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

// NewTxRepository binds inventory writes to an existing transaction.
func NewTxRepository(q db.Querier) TxRepository {
	return &txRepo{q: q}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

const (
	productColumns  = `id, code, name, category, unit, average_cost, reorder_threshold, active`
	stockColumns    = `id, project_id, product_id, quantity, valued_amount, location, last_in_at, last_out_at`
	movementColumns = `id, stock_id, kind, quantity, quantity_before, quantity_after, purchase_order_id,
destination_project_id, note, actor_id, moved_at`
)

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Category, &p.Unit, &p.AverageCost, &p.ReorderThreshold, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("inventory: product: %w", shared.ErrNotFound)
	}
	return p, err
}

func scanStock(row pgx.Row) (Stock, error) {
	var s Stock
	err := row.Scan(&s.ID, &s.ProjectID, &s.ProductID, &s.Quantity, &s.ValuedAmount, &s.Location, &s.LastInAt, &s.LastOutAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stock{}, fmt.Errorf("inventory: stock: %w", shared.ErrNotFound)
	}
	return s, err
}

func collectStocks(rows pgx.Rows, err error) ([]Stock, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Stock
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetProduct loads a product.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

// ListProducts returns products ordered by code.
func (r *Repository) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetStock loads the (project, product) row.
func (r *Repository) GetStock(ctx context.Context, projectID, productID int64) (Stock, error) {
	return scanStock(r.pool.QueryRow(ctx, `SELECT `+stockColumns+` FROM stocks WHERE project_id = $1 AND product_id = $2`, projectID, productID))
}

// ListStocks returns the rows of a project.
func (r *Repository) ListStocks(ctx context.Context, projectID int64) ([]Stock, error) {
	return collectStocks(r.pool.Query(ctx, `SELECT `+stockColumns+` FROM stocks WHERE project_id = $1 ORDER BY product_id`, projectID))
}

// ListProductStocks returns the rows of a product across projects.
func (r *Repository) ListProductStocks(ctx context.Context, productID int64) ([]Stock, error) {
	return collectStocks(r.pool.Query(ctx, `SELECT `+stockColumns+` FROM stocks WHERE product_id = $1 ORDER BY project_id`, productID))
}

// ListMovements returns a row's movements newest first.
func (r *Repository) ListMovements(ctx context.Context, stockID int64, limit int) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements
WHERE stock_id = $1 ORDER BY moved_at DESC, id DESC LIMIT $2`, stockID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		var kind string
		if err := rows.Scan(&m.ID, &m.StockID, &kind, &m.Quantity, &m.QuantityBefore, &m.QuantityAfter,
			&m.PurchaseOrderID, &m.DestinationProjectID, &m.Note, &m.ActorID, &m.MovedAt); err != nil {
			return nil, err
		}
		m.Kind = MovementKind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListLowStock returns active product rows under their reorder threshold.
func (r *Repository) ListLowStock(ctx context.Context) ([]LowStockRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.project_id, s.product_id, s.quantity, s.valued_amount, s.location,
s.last_in_at, s.last_out_at, p.id, p.code, p.name, p.category, p.unit, p.average_cost, p.reorder_threshold, p.active
FROM stocks s JOIN products p ON p.id = s.product_id
WHERE p.active AND s.quantity < p.reorder_threshold
ORDER BY p.code, s.project_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LowStockRow
	for rows.Next() {
		var row LowStockRow
		s, p := &row.Stock, &row.Product
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.ProductID, &s.Quantity, &s.ValuedAmount, &s.Location, &s.LastInAt, &s.LastOutAt,
			&p.ID, &p.Code, &p.Name, &p.Category, &p.Unit, &p.AverageCost, &p.ReorderThreshold, &p.Active); err != nil {
			return nil, err
		}
		row.Shortfall = p.ReorderThreshold.Sub(s.Quantity)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *txRepo) Counter() sequence.Counter {
	return sequence.NewCounter(r.q)
}

func (r *txRepo) InsertProduct(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO products (code, name, category, unit, average_cost, reorder_threshold, active)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		p.Code, p.Name, p.Category, p.Unit, p.AverageCost, p.ReorderThreshold, p.Active).Scan(&id)
	if db.IsUniqueViolation(err, "products_code_key") {
		return 0, fmt.Errorf("inventory: code %s: %w", p.Code, shared.ErrDuplicateCode)
	}
	return id, err
}

func (r *txRepo) GetProductForUpdate(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) UpdateProductCost(ctx context.Context, id int64, avg decimal.Decimal) error {
	_, err := r.q.Exec(ctx, `UPDATE products SET average_cost = $2 WHERE id = $1`, id, avg)
	return err
}

func (r *txRepo) EnsureStockForUpdate(ctx context.Context, projectID, productID int64) (Stock, error) {
	if _, err := r.q.Exec(ctx, `INSERT INTO stocks (project_id, product_id) VALUES ($1, $2)
ON CONFLICT ON CONSTRAINT stocks_project_product_key DO NOTHING`, projectID, productID); err != nil {
		return Stock{}, err
	}
	return scanStock(r.q.QueryRow(ctx, `SELECT `+stockColumns+` FROM stocks
WHERE project_id = $1 AND product_id = $2 FOR UPDATE`, projectID, productID))
}

func (r *txRepo) ListProductStocksForUpdate(ctx context.Context, productID int64) ([]Stock, error) {
	return collectStocks(r.q.Query(ctx, `SELECT `+stockColumns+` FROM stocks
WHERE product_id = $1 ORDER BY id FOR UPDATE`, productID))
}

func (r *txRepo) UpdateStock(ctx context.Context, s Stock) error {
	_, err := r.q.Exec(ctx, `UPDATE stocks SET quantity = $2, valued_amount = $3, location = $4,
last_in_at = $5, last_out_at = $6 WHERE id = $1`, s.ID, s.Quantity, s.ValuedAmount, s.Location, s.LastInAt, s.LastOutAt)
	return err
}

func (r *txRepo) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO stock_movements (stock_id, kind, quantity, quantity_before, quantity_after,
purchase_order_id, destination_project_id, note, actor_id, moved_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		m.StockID, string(m.Kind), m.Quantity, m.QuantityBefore, m.QuantityAfter,
		m.PurchaseOrderID, m.DestinationProjectID, m.Note, m.ActorID, m.MovedAt).Scan(&id)
	return id, err
}

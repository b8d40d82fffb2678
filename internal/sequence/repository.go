package sequence

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/projectledger/internal/platform/db"
)

type pgCounter struct {
	q db.Querier
}

// NewCounter returns a Counter backed by the code_sequences table. Pass a pgx.Tx to
// allocate within that transaction.
func NewCounter(q db.Querier) Counter {
	return &pgCounter{q: q}
}

func (c *pgCounter) Increment(ctx context.Context, prefix string, year int) (int64, error) {
	var n int64
	err := c.q.QueryRow(ctx, `INSERT INTO code_sequences (kind, year, last_value) VALUES ($1, $2, 1)
ON CONFLICT (kind, year) DO UPDATE SET last_value = code_sequences.last_value + 1
RETURNING last_value`, prefix, year).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sequence: increment %s-%d: %w", prefix, year, db.AsConflict(err))
	}
	return n, nil
}

func (c *pgCounter) Raise(ctx context.Context, prefix string, year int, floor int64) error {
	_, err := c.q.Exec(ctx, `INSERT INTO code_sequences (kind, year, last_value) VALUES ($1, $2, $3)
ON CONFLICT (kind, year) DO UPDATE SET last_value = GREATEST(code_sequences.last_value, EXCLUDED.last_value)`, prefix, year, floor)
	return err
}

// ExistingCodes lists codes already stored for a kind, used to seed counters from legacy rows.
func ExistingCodes(ctx context.Context, q db.Querier, kind Kind) ([]string, error) {
	table, ok := codeTables[kind.Prefix]
	if !ok {
		return nil, nil
	}
	rows, err := q.Query(ctx, `SELECT code FROM `+table+` WHERE code LIKE $1`, kind.Prefix+"-%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

var codeTables = map[string]string{
	KindProject.Prefix:       "projects",
	KindQuote.Prefix:         "quotes",
	KindInvoice.Prefix:       "invoices",
	KindProduct.Prefix:       "products",
	KindPurchaseOrder.Prefix: "purchase_orders",
}

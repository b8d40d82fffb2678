package sequence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/projectledger/internal/platform/db"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

type memoryCounter struct {
	values map[string]int64
}

func newMemoryCounter() *memoryCounter {
	return &memoryCounter{values: make(map[string]int64)}
}

func (c *memoryCounter) Increment(_ context.Context, prefix string, year int) (int64, error) {
	key := fmt.Sprintf("%s:%d", prefix, year)
	c.values[key]++
	return c.values[key], nil
}

func (c *memoryCounter) Raise(_ context.Context, prefix string, year int, floor int64) error {
	key := fmt.Sprintf("%s:%d", prefix, year)
	if c.values[key] < floor {
		c.values[key] = floor
	}
	return nil
}

func fixedClock(year int) func() time.Time {
	return func() time.Time { return time.Date(year, time.March, 3, 10, 0, 0, 0, time.UTC) }
}

func TestFormatWidths(t *testing.T) {
	require.Equal(t, "PROJ-2024-007", KindProject.Format(2024, 7))
	require.Equal(t, "FACT-2024-120", KindInvoice.Format(2024, 120))
	require.Equal(t, "PROD-2024-0042", KindProduct.Format(2024, 42))
	require.Equal(t, "ACH-2025-0001", KindPurchaseOrder.Format(2025, 1))
}

func TestParse(t *testing.T) {
	year, n, err := KindQuote.Parse("DEV-2023-015")
	require.NoError(t, err)
	require.Equal(t, 2023, year)
	require.EqualValues(t, 15, n)

	_, _, err = KindQuote.Parse("FACT-2023-015")
	require.Error(t, err)
	_, _, err = KindQuote.Parse("DEV-20x3-015")
	require.Error(t, err)
}

func TestNextFromExisting(t *testing.T) {
	existing := []string{"PROJ-2023-009", "PROJ-2024-001", "PROJ-2024-003", "PROJ-2024-002", "DEV-2024-010"}

	next, err := KindProject.NextFromExisting(2024, existing)
	require.NoError(t, err)
	require.Equal(t, "PROJ-2024-004", next)

	next, err = KindProject.NextFromExisting(2025, existing)
	require.NoError(t, err)
	require.Equal(t, "PROJ-2025-001", next)
}

func TestGeneratorMonotonicWithinYear(t *testing.T) {
	ctx := context.Background()
	counter := newMemoryCounter()
	gen := NewGenerator(fixedClock(2024))

	seen := make(map[string]bool)
	for i := 1; i <= 25; i++ {
		code, err := gen.Next(ctx, counter, KindInvoice)
		require.NoError(t, err)
		require.Equal(t, KindInvoice.Format(2024, int64(i)), code)
		require.False(t, seen[code])
		seen[code] = true
	}
}

func TestGeneratorRestartsEachYear(t *testing.T) {
	ctx := context.Background()
	counter := newMemoryCounter()

	code, err := NewGenerator(fixedClock(2024)).Next(ctx, counter, KindProduct)
	require.NoError(t, err)
	require.Equal(t, "PROD-2024-0001", code)

	code, err = NewGenerator(fixedClock(2025)).Next(ctx, counter, KindProduct)
	require.NoError(t, err)
	require.Equal(t, "PROD-2025-0001", code)
}

func TestSeedContinuesLegacyCodes(t *testing.T) {
	ctx := context.Background()
	counter := newMemoryCounter()
	gen := NewGenerator(fixedClock(2024))

	last, err := gen.Seed(ctx, counter, KindPurchaseOrder, 2024, []string{"ACH-2024-0011", "ACH-2024-0012"})
	require.NoError(t, err)
	require.EqualValues(t, 12, last)

	code, err := gen.Next(ctx, counter, KindPurchaseOrder)
	require.NoError(t, err)
	require.Equal(t, "ACH-2024-0013", code)
}

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

// racingQuerier answers the counter upsert the way PostgreSQL does for the loser of
// two concurrent RepeatableRead upserts on the same row.
type racingQuerier struct {
	db.Querier
	err error
}

func (q racingQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	return scanFunc(func(...any) error { return q.err })
}

func TestIncrementReportsSerializationConflict(t *testing.T) {
	counter := NewCounter(racingQuerier{err: &pgconn.PgError{Code: "40001"}})

	_, err := NewGenerator(fixedClock(2024)).Next(context.Background(), counter, KindProject)
	require.ErrorIs(t, err, shared.ErrConflict)

	counter = NewCounter(racingQuerier{err: pgx.ErrNoRows})
	_, err = counter.Increment(context.Background(), KindProject.Prefix, 2024)
	require.ErrorIs(t, err, pgx.ErrNoRows)
	require.NotErrorIs(t, err, shared.ErrConflict)
}

package projects

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/projectledger/internal/ledger"
	"github.com/odyssey-erp/projectledger/internal/sequence"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

type memoryCounter map[string]int64

func (c memoryCounter) Increment(_ context.Context, prefix string, year int) (int64, error) {
	key := fmt.Sprintf("%s:%d", prefix, year)
	c[key]++
	return c[key], nil
}

func (c memoryCounter) Raise(context.Context, string, int, int64) error { return nil }

type memoryRepo struct {
	projects map[int64]Project
	counter  memoryCounter
	entries  memoryLedger
	// afterSum runs after each ledger sum, standing in for a concurrent commit.
	afterSum func()
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{projects: make(map[int64]Project), counter: memoryCounter{}, entries: memoryLedger{}}
}

// WithTx hands the callback a copy of the ledger taken at begin, like a
// repeatable-read snapshot.
func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(memoryLedger, len(m.entries))
	for k, v := range m.entries {
		snapshot[k] = v
	}
	return fn(ctx, &memoryTx{repo: m, entries: snapshot})
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return Project{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *memoryRepo) List(context.Context, ListFilter) ([]Project, error) {
	var out []Project
	for _, p := range m.projects {
		out = append(out, p)
	}
	return out, nil
}

type memoryTx struct {
	repo    *memoryRepo
	entries memoryLedger
}

func (t *memoryTx) Counter() sequence.Counter { return t.repo.counter }

func (t *memoryTx) Ledger() ledger.Reader {
	return snapshotReader{entries: t.entries, after: t.repo.afterSum}
}

func (t *memoryTx) Get(ctx context.Context, id int64) (Project, error) {
	return t.repo.Get(ctx, id)
}

func (t *memoryTx) Insert(_ context.Context, p Project) (int64, error) {
	t.repo.nextID++
	p.ID = t.repo.nextID
	t.repo.projects[p.ID] = p
	return p.ID, nil
}

func (t *memoryTx) GetForUpdate(ctx context.Context, id int64) (Project, error) {
	return t.repo.Get(ctx, id)
}

func (t *memoryTx) UpdateStatus(_ context.Context, id int64, status Status, actualEnd *time.Time) error {
	p := t.repo.projects[id]
	p.Status = status
	if actualEnd != nil {
		p.ActualEndDate = actualEnd
	}
	t.repo.projects[id] = p
	return nil
}

type memoryLedger map[ledger.Kind]decimal.Decimal

func (l memoryLedger) SumEntries(_ context.Context, _ int64, kind ledger.Kind, status ledger.Status) (decimal.Decimal, error) {
	if status != ledger.StatusValidated {
		return decimal.Zero, nil
	}
	return l[kind], nil
}

type snapshotReader struct {
	entries memoryLedger
	after   func()
}

func (r snapshotReader) SumEntries(ctx context.Context, projectID int64, kind ledger.Kind, status ledger.Status) (decimal.Decimal, error) {
	total, err := r.entries.SumEntries(ctx, projectID, kind, status)
	if r.after != nil {
		r.after()
	}
	return total, err
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAggregate(t *testing.T) {
	cases := []struct {
		name                                     string
		planned, deposits, withdrawals, expenses string
		cash, available, pct                     string
		over                                     bool
	}{
		{"within budget", "1000000", "200000", "50000", "600000", "150000", "600000", "50", false},
		{"over budget", "100000", "0", "0", "150000", "0", "-50000", "150", true},
		{"zero denominator", "0", "0", "10000", "0", "-10000", "0", "0", false},
		{"rounded pct", "3", "0", "0", "1", "0", "2", "33.33", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Aggregate(d(tc.planned), d(tc.deposits), d(tc.withdrawals), d(tc.expenses))
			require.True(t, d(tc.cash).Equal(s.CashBalance), s.CashBalance.String())
			require.True(t, d(tc.available).Equal(s.AvailableBudget), s.AvailableBudget.String())
			require.True(t, d(tc.pct).Equal(s.BudgetConsumedPct), s.BudgetConsumedPct.String())
			require.Equal(t, tc.over, s.IsOverBudget)
		})
	}
}

func TestCreateAllocatesCodes(t *testing.T) {
	repo := newMemoryRepo()
	clock := func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	svc := NewService(repo, sequence.NewGenerator(clock))
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateInput{Name: "Villa Cocody", PlannedBudget: d("5000000")})
	require.NoError(t, err)
	require.Equal(t, "PROJ-2024-001", first.Code)
	require.Equal(t, StatusPlanned, first.Status)

	second, err := svc.Create(ctx, CreateInput{Name: "Entrepôt Yopougon", PlannedBudget: d("0")})
	require.NoError(t, err)
	require.Equal(t, "PROJ-2024-002", second.Code)
}

func TestCreateValidates(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	_, err := svc.Create(context.Background(), CreateInput{Name: " "})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Create(context.Background(), CreateInput{Name: "X", PlannedBudget: d("-1")})
	require.ErrorIs(t, err, shared.ErrInvalidAmount)
}

func TestSummaryUsesLedgerTotals(t *testing.T) {
	repo := newMemoryRepo()
	repo.entries = memoryLedger{
		ledger.KindDeposit:    d("250000"),
		ledger.KindWithdrawal: d("40000"),
		ledger.KindExpense:    d("900000"),
	}
	svc := NewService(repo, nil)
	ctx := context.Background()
	p, err := svc.Create(ctx, CreateInput{Name: "Pont", PlannedBudget: d("750000")})
	require.NoError(t, err)

	s, err := svc.Summary(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, d("210000").Equal(s.CashBalance))
	require.True(t, d("100000").Equal(s.AvailableBudget))
	require.True(t, d("90").Equal(s.BudgetConsumedPct))
	require.False(t, s.IsOverBudget)
	require.True(t, s.AvailableBudget.Equal(s.PlannedBudget.Add(s.TotalDeposits).Sub(s.TotalExpenses)))

	_, err = svc.Summary(ctx, 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSetStatusClosesProject(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()
	p, err := svc.Create(ctx, CreateInput{Name: "Route"})
	require.NoError(t, err)

	p, err = svc.SetStatus(ctx, p.ID, StatusCompleted)
	require.NoError(t, err)
	require.NotNil(t, p.ActualEndDate)

	_, err = svc.SetStatus(ctx, p.ID, StatusActive)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestSummaryReadsOneSnapshot(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	p, err := svc.Create(ctx, CreateInput{Name: "Immeuble R+4", PlannedBudget: d("1000000")})
	require.NoError(t, err)
	repo.entries[ledger.KindDeposit] = d("200000")

	// An expense validated while the summary is being computed must not leak into it.
	repo.afterSum = func() { repo.entries[ledger.KindExpense] = d("500000") }
	s, err := svc.Summary(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, s.TotalExpenses.IsZero(), s.TotalExpenses.String())
	require.True(t, d("1200000").Equal(s.AvailableBudget), s.AvailableBudget.String())

	repo.afterSum = nil
	s, err = svc.Summary(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, d("500000").Equal(s.TotalExpenses))
	require.True(t, d("700000").Equal(s.AvailableBudget))
}

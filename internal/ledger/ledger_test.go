package ledger

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/projectledger/internal/shared"
)

type memoryRepo struct {
	projects map[int64]bool
	entries  []Entry
	nextID   int64
}

type memoryTx struct {
	repo    *memoryRepo
	pending []Entry
}

func newMemoryRepo(projects ...int64) *memoryRepo {
	r := &memoryRepo{projects: make(map[int64]bool)}
	for _, id := range projects {
		r.projects[id] = true
	}
	return r
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.entries = append(r.entries, tx.pending...)
	return nil
}

func (r *memoryRepo) SumEntries(_ context.Context, projectID int64, kind Kind, status Status) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, e := range r.entries {
		if e.ProjectID == projectID && e.Kind == kind && e.Status == status {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

func (r *memoryRepo) ListEntries(_ context.Context, filter ListFilter) ([]Entry, error) {
	var out []Entry
	for _, e := range r.entries {
		if e.ProjectID == filter.ProjectID && (filter.Kind == "" || e.Kind == filter.Kind) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (tx *memoryTx) InsertEntry(_ context.Context, e Entry) (int64, error) {
	tx.repo.nextID++
	e.ID = tx.repo.nextID
	tx.pending = append(tx.pending, e)
	return e.ID, nil
}

func (tx *memoryTx) LockProject(_ context.Context, projectID int64) error {
	if !tx.repo.projects[projectID] {
		return shared.ErrNotFound
	}
	return nil
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAppendRejectsNonPositiveAmount(t *testing.T) {
	repo := newMemoryRepo(1)
	svc := NewService(repo)
	ctx := context.Background()

	for _, a := range []string{"0", "-10"} {
		_, err := svc.Record(ctx, AppendInput{ProjectID: 1, Kind: KindDeposit, Amount: amount(a)})
		require.ErrorIs(t, err, shared.ErrInvalidAmount)
	}
	require.Empty(t, repo.entries)
}

func TestAppendRejectsUnknownKind(t *testing.T) {
	svc := NewService(newMemoryRepo(1))
	_, err := svc.Record(context.Background(), AppendInput{ProjectID: 1, Kind: "TRANSFER", Amount: amount("5")})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRecordRequiresProject(t *testing.T) {
	svc := NewService(newMemoryRepo())
	_, err := svc.Record(context.Background(), AppendInput{ProjectID: 9, Kind: KindDeposit, Amount: amount("5")})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecordClearsSource(t *testing.T) {
	repo := newMemoryRepo(1)
	svc := NewService(repo)
	entry, err := svc.Record(context.Background(), AppendInput{ProjectID: 1, Kind: KindWithdrawal, Amount: amount("5"), SourceModule: "EXPENSE", SourceID: 4})
	require.NoError(t, err)
	require.Empty(t, entry.SourceModule)
	require.Equal(t, StatusValidated, entry.Status)
}

func TestTotalsOnlyCountValidated(t *testing.T) {
	repo := newMemoryRepo(1)
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Record(ctx, AppendInput{ProjectID: 1, Kind: KindDeposit, Amount: amount("1000.50")})
	require.NoError(t, err)
	_, err = svc.Record(ctx, AppendInput{ProjectID: 1, Kind: KindDeposit, Amount: amount("499.50")})
	require.NoError(t, err)
	repo.entries = append(repo.entries, Entry{ProjectID: 1, Kind: KindDeposit, Amount: amount("9999"), Status: StatusPending})

	total, err := svc.Total(ctx, 1, KindDeposit)
	require.NoError(t, err)
	require.True(t, amount("1500").Equal(total), total.String())

	total, err = svc.Total(ctx, 1, KindExpense)
	require.NoError(t, err)
	require.True(t, total.IsZero())
}

func TestWriteCSV(t *testing.T) {
	entries := []Entry{{
		Kind:        KindExpense,
		Amount:      amount("1234567.5"),
		Date:        time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		Category:    "Achat Matériaux",
		Reference:   "ACH-2024-0001",
		Description: "ciment",
	}}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, entries, language.English))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "date,kind,category,reference,description,amount", lines[0])
	require.Equal(t, `2024-05-02,EXPENSE,Achat Matériaux,ACH-2024-0001,ciment,"1,234,567.50"`, lines[1])
}

func TestFormatAmountEnglish(t *testing.T) {
	p := message.NewPrinter(language.English)
	require.Equal(t, "0.00", FormatAmount(p, decimal.Zero))
	require.Equal(t, "1,180,000.00", FormatAmount(p, amount("1180000")))
	require.Equal(t, "-12.35", FormatAmount(p, amount("-12.345")))
}

package expenses

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/projectledger/internal/approval"
	"github.com/odyssey-erp/projectledger/internal/approval/approvaltest"
	"github.com/odyssey-erp/projectledger/internal/ledger"
	"github.com/odyssey-erp/projectledger/internal/ledger/ledgertest"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

type memoryRepo struct {
	expenses map[int64]Expense
	book     *ledgertest.Book
	logs     *approvaltest.Recorder
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		expenses: make(map[int64]Expense),
		book:     ledgertest.NewBook(1),
		logs:     &approvaltest.Recorder{},
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[int64]Expense, len(m.expenses))
	for k, v := range m.expenses {
		snapshot[k] = v
	}
	mark := m.book.Snapshot()
	if err := fn(ctx, &memoryTx{repo: m}); err != nil {
		m.expenses = snapshot
		m.book.Restore(mark)
		return err
	}
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Expense, error) {
	e, ok := m.expenses[id]
	if !ok {
		return Expense{}, shared.ErrNotFound
	}
	return e, nil
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]Expense, error) {
	var out []Expense
	for _, e := range m.expenses {
		if filter.ProjectID == 0 || e.ProjectID == filter.ProjectID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) Ledger() ledger.TxRepository   { return t.repo.book }
func (t *memoryTx) Approvals() approval.Recorder { return t.repo.logs }

func (t *memoryTx) Insert(_ context.Context, e Expense) (int64, error) {
	t.repo.nextID++
	e.ID = t.repo.nextID
	t.repo.expenses[e.ID] = e
	return e.ID, nil
}

func (t *memoryTx) GetForUpdate(ctx context.Context, id int64) (Expense, error) {
	return t.repo.Get(ctx, id)
}

func (t *memoryTx) Update(_ context.Context, e Expense) error {
	t.repo.expenses[e.ID] = e
	return nil
}

func (t *memoryTx) UpdateStatus(_ context.Context, id int64, status approval.State, decision approval.Decision) error {
	e := t.repo.expenses[id]
	e.Status = status
	if decision.By != nil {
		e.ApprovedBy, e.ApprovedAt = decision.By, decision.At
	}
	t.repo.expenses[id] = e
	return nil
}

func newExpense(status approval.State) CreateInput {
	return CreateInput{
		ProjectID:     1,
		Category:      "Carburant",
		Amount:        decimal.NewFromInt(75000),
		PaymentMethod: shared.PaymentCash,
		Status:        status,
		ActorID:       5,
	}
}

func TestValidateEmitsExactlyOnce(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	exp, err := svc.Create(ctx, newExpense(""))
	require.NoError(t, err)
	require.Equal(t, StatusPending, exp.Status)
	require.Empty(t, repo.book.BySource(Module, exp.ID))

	exp, err = svc.Validate(ctx, exp.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusValidated, exp.Status)
	require.NotNil(t, exp.ApprovedBy)
	require.EqualValues(t, 9, *exp.ApprovedBy)

	entries := repo.book.BySource(Module, exp.ID)
	require.Len(t, entries, 1)
	require.Equal(t, ledger.KindExpense, entries[0].Kind)
	require.True(t, entries[0].Amount.Equal(decimal.NewFromInt(75000)))

	_, err = svc.Validate(ctx, exp.ID, 9)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = svc.Reject(ctx, exp.ID, 9, "late")
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.Len(t, repo.book.BySource(Module, exp.ID), 1)

	require.Equal(t, []approval.Action{approval.ActionSubmit, approval.ActionApprove}, repo.logs.Actions(Module, exp.ID))
}

func TestBornValidatedEmitsOnce(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)

	exp, err := svc.Create(context.Background(), newExpense(StatusValidated))
	require.NoError(t, err)
	require.Equal(t, StatusValidated, exp.Status)
	require.Len(t, repo.book.BySource(Module, exp.ID), 1)
	require.NotNil(t, exp.ApprovedAt)
}

func TestRejectDoesNotEmit(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	exp, err := svc.Create(ctx, newExpense(""))
	require.NoError(t, err)
	exp, err = svc.Reject(ctx, exp.ID, 9, "duplicate receipt")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, exp.Status)
	require.Empty(t, repo.book.Entries)

	_, err = svc.Validate(ctx, exp.ID, 9)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.Empty(t, repo.book.Entries)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	in := newExpense("")
	in.Amount = decimal.Zero
	_, err := svc.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	in = newExpense(StatusRejected)
	_, err = svc.Create(ctx, in)
	require.NoError(t, err)

	in = newExpense("ARCHIVED")
	_, err = svc.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	in = newExpense("")
	in.ProjectID = 42
	_, err = svc.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateRefusedAfterDecision(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	exp, err := svc.Create(ctx, newExpense(""))
	require.NoError(t, err)

	edit := UpdateInput{Category: "Transport", Amount: decimal.NewFromInt(80000)}
	exp, err = svc.Update(ctx, exp.ID, edit)
	require.NoError(t, err)
	require.Equal(t, "Transport", exp.Category)
	require.Empty(t, repo.book.Entries)

	_, err = svc.Validate(ctx, exp.ID, 2)
	require.NoError(t, err)
	_, err = svc.Update(ctx, exp.ID, edit)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.Len(t, repo.book.Entries, 1)
	require.True(t, repo.book.Entries[0].Amount.Equal(decimal.NewFromInt(80000)))
}

package procurement

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/projectledger/internal/approval"
	"github.com/odyssey-erp/projectledger/internal/approval/approvaltest"
	"github.com/odyssey-erp/projectledger/internal/inventory"
	"github.com/odyssey-erp/projectledger/internal/inventory/inventorytest"
	"github.com/odyssey-erp/projectledger/internal/ledger"
	"github.com/odyssey-erp/projectledger/internal/ledger/ledgertest"
	"github.com/odyssey-erp/projectledger/internal/sequence"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

type memoryProcRepo struct {
	orders map[int64]PurchaseOrder
	lines  map[int64][]Line
	book   *ledgertest.Book
	stock  *inventorytest.Store
	logs   *approvaltest.Recorder
	nextID int64
}

type memoryProcTx struct {
	repo *memoryProcRepo
}

func newMemoryProcRepo() *memoryProcRepo {
	return &memoryProcRepo{
		orders: make(map[int64]PurchaseOrder),
		lines:  make(map[int64][]Line),
		book:   ledgertest.NewBook(1),
		stock:  inventorytest.NewStore(),
		logs:   &approvaltest.Recorder{},
	}
}

func (r *memoryProcRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	orders := make(map[int64]PurchaseOrder, len(r.orders))
	for k, v := range r.orders {
		orders[k] = v
	}
	lines := make(map[int64][]Line, len(r.lines))
	for k, v := range r.lines {
		lines[k] = append([]Line(nil), v...)
	}
	mark := r.book.Snapshot()
	stock := r.stock.Clone()
	if err := fn(ctx, &memoryProcTx{repo: r}); err != nil {
		r.orders, r.lines, r.stock = orders, lines, stock
		r.book.Restore(mark)
		return err
	}
	return nil
}

func (r *memoryProcRepo) GetOrder(_ context.Context, id int64) (PurchaseOrder, []Line, error) {
	po, ok := r.orders[id]
	if !ok {
		return PurchaseOrder{}, nil, shared.ErrNotFound
	}
	return po, append([]Line(nil), r.lines[id]...), nil
}

func (r *memoryProcRepo) ListOrders(context.Context, ListFilter) ([]PurchaseOrder, error) {
	var out []PurchaseOrder
	for _, po := range r.orders {
		out = append(out, po)
	}
	return out, nil
}

func (tx *memoryProcTx) Counter() sequence.Counter         { return tx.repo.stock.Counter() }
func (tx *memoryProcTx) Ledger() ledger.TxRepository       { return tx.repo.book }
func (tx *memoryProcTx) Inventory() inventory.TxRepository { return tx.repo.stock }
func (tx *memoryProcTx) Approvals() approval.Recorder      { return tx.repo.logs }

func (tx *memoryProcTx) InsertOrder(_ context.Context, po PurchaseOrder) (int64, error) {
	tx.repo.nextID++
	po.ID = tx.repo.nextID
	tx.repo.orders[po.ID] = po
	return po.ID, nil
}

func (tx *memoryProcTx) InsertLine(_ context.Context, l Line) (int64, error) {
	tx.repo.nextID++
	l.ID = tx.repo.nextID
	tx.repo.lines[l.OrderID] = append(tx.repo.lines[l.OrderID], l)
	return l.ID, nil
}

func (tx *memoryProcTx) UpdateLine(_ context.Context, l Line) error {
	for i, existing := range tx.repo.lines[l.OrderID] {
		if existing.ID == l.ID {
			tx.repo.lines[l.OrderID][i] = l
		}
	}
	return nil
}

func (tx *memoryProcTx) GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, []Line, error) {
	return tx.repo.GetOrder(ctx, id)
}

func (tx *memoryProcTx) UpdateTotal(_ context.Context, id int64, po PurchaseOrder) error {
	stored := tx.repo.orders[id]
	stored.Total = po.Total
	tx.repo.orders[id] = stored
	return nil
}

func (tx *memoryProcTx) UpdateStatus(_ context.Context, id int64, status approval.State, decision approval.Decision, receivedDate *time.Time) error {
	po := tx.repo.orders[id]
	po.Status = status
	if decision.By != nil {
		po.ApprovedBy, po.ApprovedAt = decision.By, decision.At
	}
	if receivedDate != nil {
		po.ReceivedDate = receivedDate
	}
	tx.repo.orders[id] = po
	return nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(repo *memoryProcRepo) *Service {
	return NewService(repo, sequence.NewGenerator(func() time.Time { return time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC) }))
}

func TestCreateComputesLinesAndTotal(t *testing.T) {
	repo := newMemoryProcRepo()
	svc := newService(repo)

	po, lines, err := svc.CreatePurchaseOrder(context.Background(), CreateInput{
		ProjectID:  1,
		SupplierID: 3,
		ActorID:    7,
		Lines: []LineInput{
			{ProductID: 10, Quantity: d("20"), UnitPrice: d("5500")},
			{ProductID: 11, Quantity: d("2.5"), UnitPrice: d("1000")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "ACH-2024-0001", po.Code)
	require.Equal(t, StatusDraft, po.Status)
	require.True(t, d("110000").Equal(lines[0].Amount))
	require.True(t, d("2500").Equal(lines[1].Amount))
	require.True(t, d("112500").Equal(po.Total))
	require.Empty(t, repo.book.Entries)
}

func TestLineEditsRederiveTotal(t *testing.T) {
	repo := newMemoryProcRepo()
	svc := newService(repo)
	ctx := context.Background()

	po, lines, err := svc.CreatePurchaseOrder(ctx, CreateInput{ProjectID: 1, SupplierID: 3, ActorID: 7,
		Lines: []LineInput{{ProductID: 10, Quantity: d("1"), UnitPrice: d("100")}}})
	require.NoError(t, err)

	po, _, err = svc.AddLine(ctx, po.ID, LineInput{ProductID: 11, Quantity: d("3"), UnitPrice: d("50")})
	require.NoError(t, err)
	require.True(t, d("250").Equal(po.Total))

	po, line, err := svc.UpdateLine(ctx, po.ID, lines[0].ID, LineInput{ProductID: 10, Quantity: d("4"), UnitPrice: d("100")})
	require.NoError(t, err)
	require.True(t, d("400").Equal(line.Amount))
	require.True(t, d("550").Equal(po.Total))

	_, err = svc.ValidatePurchaseOrder(ctx, po.ID, 8)
	require.NoError(t, err)
	_, _, err = svc.AddLine(ctx, po.ID, LineInput{ProductID: 11, Quantity: d("1"), UnitPrice: d("1")})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestValidateThenReceive(t *testing.T) {
	repo := newMemoryProcRepo()
	productID := repo.stock.AddProduct(inventory.Product{Code: "PROD-2024-0001", Name: "Fer 12", AverageCost: d("50000"), Active: true})
	svc := newService(repo)
	ctx := context.Background()

	// 20 units already held at 50,000.
	_, err := inventory.ApplyMovement(ctx, repo.stock, inventory.MovementInput{ProjectID: 1, ProductID: productID, Kind: inventory.MovementIn, Quantity: d("20"), ActorID: 1}, time.Now())
	require.NoError(t, err)

	po, _, err := svc.CreatePurchaseOrder(ctx, CreateInput{ProjectID: 1, SupplierID: 3, ActorID: 7,
		Lines: []LineInput{{ProductID: productID, Quantity: d("10"), UnitPrice: d("80000")}}})
	require.NoError(t, err)

	_, err = svc.ReceivePurchaseOrder(ctx, po.ID, 8, time.Time{})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	po, err = svc.ValidatePurchaseOrder(ctx, po.ID, 8)
	require.NoError(t, err)
	entries := repo.book.BySource(Module, po.ID)
	require.Len(t, entries, 1)
	require.Equal(t, LedgerCategory, entries[0].Category)
	require.Equal(t, ledger.KindExpense, entries[0].Kind)
	require.True(t, d("800000").Equal(entries[0].Amount))

	po, err = svc.ReceivePurchaseOrder(ctx, po.ID, 8, time.Time{})
	require.NoError(t, err)
	require.Equal(t, StatusReceived, po.Status)
	require.NotNil(t, po.ReceivedDate)

	stock, ok := repo.stock.Stock(1, productID)
	require.True(t, ok)
	require.True(t, d("30").Equal(stock.Quantity))
	require.True(t, d("60000").Equal(repo.stock.Products[productID].AverageCost))
	require.True(t, d("1800000").Equal(stock.ValuedAmount))
	require.Len(t, repo.book.Entries, 1)

	_, err = svc.CancelPurchaseOrder(ctx, po.ID, 8, "late")
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.Equal(t, []approval.Action{approval.ActionSubmit, approval.ActionApprove, approval.ActionReceive}, repo.logs.Actions(Module, po.ID))
}

func TestBornValidatedChargesOnce(t *testing.T) {
	repo := newMemoryProcRepo()
	svc := newService(repo)
	ctx := context.Background()

	po, _, err := svc.CreatePurchaseOrder(ctx, CreateInput{ProjectID: 1, SupplierID: 3, ActorID: 7, Status: StatusValidated,
		Lines: []LineInput{{ProductID: 10, Quantity: d("2"), UnitPrice: d("100")}}})
	require.NoError(t, err)
	require.Equal(t, StatusValidated, po.Status)
	require.Len(t, repo.book.BySource(Module, po.ID), 1)

	_, err = svc.ValidatePurchaseOrder(ctx, po.ID, 8)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.Len(t, repo.book.Entries, 1)
}

func TestValidateEmptyOrderRejected(t *testing.T) {
	repo := newMemoryProcRepo()
	svc := newService(repo)
	ctx := context.Background()

	po, _, err := svc.CreatePurchaseOrder(ctx, CreateInput{ProjectID: 1, SupplierID: 3, ActorID: 7})
	require.NoError(t, err)
	_, err = svc.ValidatePurchaseOrder(ctx, po.ID, 8)
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	stored, _, err := repo.GetOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, stored.Status)
}

func TestReceiveRollsBackOnUnknownProduct(t *testing.T) {
	repo := newMemoryProcRepo()
	svc := newService(repo)
	ctx := context.Background()

	po, _, err := svc.CreatePurchaseOrder(ctx, CreateInput{ProjectID: 1, SupplierID: 3, ActorID: 7,
		Lines: []LineInput{{ProductID: 404, Quantity: d("1"), UnitPrice: d("10")}}})
	require.NoError(t, err)
	_, err = svc.ValidatePurchaseOrder(ctx, po.ID, 8)
	require.NoError(t, err)

	_, err = svc.ReceivePurchaseOrder(ctx, po.ID, 8, time.Time{})
	require.ErrorIs(t, err, shared.ErrNotFound)
	stored, _, _ := repo.GetOrder(ctx, po.ID)
	require.Equal(t, StatusValidated, stored.Status)
	require.Empty(t, repo.stock.Movements)
}

func TestCancelDraft(t *testing.T) {
	repo := newMemoryProcRepo()
	svc := newService(repo)
	ctx := context.Background()

	po, _, err := svc.CreatePurchaseOrder(ctx, CreateInput{ProjectID: 1, SupplierID: 3, ActorID: 7,
		Lines: []LineInput{{ProductID: 10, Quantity: d("1"), UnitPrice: d("10")}}})
	require.NoError(t, err)
	po, err = svc.CancelPurchaseOrder(ctx, po.ID, 8, "supplier out of stock")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, po.Status)
	require.Empty(t, repo.book.Entries)

	_, err = svc.ValidatePurchaseOrder(ctx, po.ID, 8)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

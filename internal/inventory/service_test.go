package inventory

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

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
	products  map[int64]Product
	stocks    map[string]Stock
	movements []Movement
	counter   memoryCounter
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[int64]Product), stocks: make(map[string]Stock), counter: memoryCounter{}}
}

func key(projectID, productID int64) string {
	return fmt.Sprintf("%d:%d", projectID, productID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	products := make(map[int64]Product, len(r.products))
	for k, v := range r.products {
		products[k] = v
	}
	stocks := make(map[string]Stock, len(r.stocks))
	for k, v := range r.stocks {
		stocks[k] = v
	}
	moves := len(r.movements)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.products, r.stocks, r.movements = products, stocks, r.movements[:moves]
		return err
	}
	return nil
}

func (r *memoryRepo) GetProduct(_ context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) ListProducts(context.Context) ([]Product, error) {
	var out []Product
	for _, p := range r.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) GetStock(_ context.Context, projectID, productID int64) (Stock, error) {
	s, ok := r.stocks[key(projectID, productID)]
	if !ok {
		return Stock{}, shared.ErrNotFound
	}
	return s, nil
}

func (r *memoryRepo) ListStocks(_ context.Context, projectID int64) ([]Stock, error) {
	var out []Stock
	for _, s := range r.stocks {
		if s.ProjectID == projectID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListProductStocks(_ context.Context, productID int64) ([]Stock, error) {
	var out []Stock
	for _, s := range r.stocks {
		if s.ProductID == productID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) ListMovements(_ context.Context, stockID int64, _ int) ([]Movement, error) {
	var out []Movement
	for _, m := range r.movements {
		if m.StockID == stockID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListLowStock(context.Context) ([]LowStockRow, error) {
	var out []LowStockRow
	for _, s := range r.stocks {
		p := r.products[s.ProductID]
		if p.Active && IsLowStock(s, p) {
			out = append(out, LowStockRow{Stock: s, Product: p, Shortfall: p.ReorderThreshold.Sub(s.Quantity)})
		}
	}
	return out, nil
}

func (tx *memoryTx) Counter() sequence.Counter { return tx.repo.counter }

func (tx *memoryTx) InsertProduct(_ context.Context, p Product) (int64, error) {
	tx.repo.nextID++
	p.ID = tx.repo.nextID
	tx.repo.products[p.ID] = p
	return p.ID, nil
}

func (tx *memoryTx) GetProductForUpdate(ctx context.Context, id int64) (Product, error) {
	return tx.repo.GetProduct(ctx, id)
}

func (tx *memoryTx) UpdateProductCost(_ context.Context, id int64, avg decimal.Decimal) error {
	p := tx.repo.products[id]
	p.AverageCost = avg
	tx.repo.products[id] = p
	return nil
}

func (tx *memoryTx) EnsureStockForUpdate(_ context.Context, projectID, productID int64) (Stock, error) {
	k := key(projectID, productID)
	if s, ok := tx.repo.stocks[k]; ok {
		return s, nil
	}
	tx.repo.nextID++
	s := Stock{ID: tx.repo.nextID, ProjectID: projectID, ProductID: productID, Quantity: decimal.Zero, ValuedAmount: decimal.Zero}
	tx.repo.stocks[k] = s
	return s, nil
}

func (tx *memoryTx) ListProductStocksForUpdate(ctx context.Context, productID int64) ([]Stock, error) {
	return tx.repo.ListProductStocks(ctx, productID)
}

func (tx *memoryTx) UpdateStock(_ context.Context, s Stock) error {
	tx.repo.stocks[key(s.ProjectID, s.ProductID)] = s
	return nil
}

func (tx *memoryTx) InsertMovement(_ context.Context, m Movement) (int64, error) {
	tx.repo.nextID++
	m.ID = tx.repo.nextID
	tx.repo.movements = append(tx.repo.movements, m)
	return m.ID, nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(repo *memoryRepo) *Service {
	clock := func() time.Time { return time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC) }
	return NewService(repo, sequence.NewGenerator(clock), nil)
}

func seedProduct(t *testing.T, svc *Service, avg, threshold string) Product {
	t.Helper()
	p, err := svc.CreateProduct(context.Background(), ProductInput{Name: "Ciment CPJ 45", Unit: "sac", AverageCost: d(avg), ReorderThreshold: d(threshold)})
	require.NoError(t, err)
	return p
}

func TestCreateProductCode(t *testing.T) {
	svc := newService(newMemoryRepo())
	p := seedProduct(t, svc, "0", "0")
	require.Equal(t, "PROD-2024-0001", p.Code)
	p = seedProduct(t, svc, "0", "0")
	require.Equal(t, "PROD-2024-0002", p.Code)
}

func TestWeightedAverageOnReceive(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)
	ctx := context.Background()
	p := seedProduct(t, svc, "0", "0")

	_, err := svc.Receive(ctx, ReceiveInput{ProjectID: 1, ProductID: p.ID, Quantity: d("20"), UnitPrice: d("50000"), ActorID: 1})
	require.NoError(t, err)
	product, _ := repo.GetProduct(ctx, p.ID)
	require.True(t, d("50000").Equal(product.AverageCost), product.AverageCost.String())

	res, err := svc.Receive(ctx, ReceiveInput{ProjectID: 1, ProductID: p.ID, Quantity: d("10"), UnitPrice: d("80000"), ActorID: 1})
	require.NoError(t, err)
	product, _ = repo.GetProduct(ctx, p.ID)
	require.True(t, d("60000").Equal(product.AverageCost), product.AverageCost.String())
	require.True(t, d("30").Equal(res.Stock.Quantity))
	require.True(t, d("1800000").Equal(res.Stock.ValuedAmount), res.Stock.ValuedAmount.String())
}

func TestReceiveRevaluesEveryProject(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)
	ctx := context.Background()
	p := seedProduct(t, svc, "0", "0")

	_, err := svc.Receive(ctx, ReceiveInput{ProjectID: 1, ProductID: p.ID, Quantity: d("10"), UnitPrice: d("100"), ActorID: 1})
	require.NoError(t, err)
	_, err = svc.Receive(ctx, ReceiveInput{ProjectID: 2, ProductID: p.ID, Quantity: d("10"), UnitPrice: d("200"), ActorID: 1})
	require.NoError(t, err)

	first, err := repo.GetStock(ctx, 1, p.ID)
	require.NoError(t, err)
	require.True(t, d("1500").Equal(first.ValuedAmount), first.ValuedAmount.String())

	totals, err := svc.Totals(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, d("20").Equal(totals.Quantity))
	require.True(t, d("3000").Equal(totals.Value))
}

func TestMovementRoundTrip(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)
	ctx := context.Background()
	p := seedProduct(t, svc, "1000", "0")

	_, err := svc.Move(ctx, MovementInput{ProjectID: 1, ProductID: p.ID, Kind: MovementIn, Quantity: d("12"), ActorID: 1})
	require.NoError(t, err)
	res, err := svc.Move(ctx, MovementInput{ProjectID: 1, ProductID: p.ID, Kind: MovementOut, Quantity: d("5"), ActorID: 1})
	require.NoError(t, err)
	require.True(t, d("12").Equal(res.Movement.QuantityBefore))
	require.True(t, d("7").Equal(res.Movement.QuantityAfter))
	require.True(t, d("7000").Equal(res.Stock.ValuedAmount))
	require.NotNil(t, res.Stock.LastOutAt)

	res, err = svc.Move(ctx, MovementInput{ProjectID: 1, ProductID: p.ID, Kind: MovementAdjustment, Quantity: d("9"), ActorID: 1})
	require.NoError(t, err)
	require.True(t, d("7").Equal(res.Movement.QuantityBefore))
	require.True(t, d("9").Equal(res.Stock.Quantity))

	res, err = svc.Move(ctx, MovementInput{ProjectID: 1, ProductID: p.ID, Kind: MovementAdjustment, Quantity: d("0"), ActorID: 1})
	require.NoError(t, err)
	require.True(t, res.Stock.Quantity.IsZero())

	moves, err := svc.Movements(ctx, res.Stock.ID, 0)
	require.NoError(t, err)
	require.Len(t, moves, 4)
	for i := 1; i < len(moves); i++ {
		require.True(t, moves[i-1].QuantityAfter.Equal(moves[i].QuantityBefore))
	}
}

func TestInsufficientStockLeavesRowUntouched(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)
	ctx := context.Background()
	p := seedProduct(t, svc, "1000", "0")

	_, err := svc.Move(ctx, MovementInput{ProjectID: 1, ProductID: p.ID, Kind: MovementIn, Quantity: d("3"), ActorID: 1})
	require.NoError(t, err)

	_, err = svc.Move(ctx, MovementInput{ProjectID: 1, ProductID: p.ID, Kind: MovementOut, Quantity: d("4"), ActorID: 1})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	_, err = svc.Move(ctx, MovementInput{ProjectID: 1, ProductID: p.ID, Kind: MovementTransfer, Quantity: d("4"), DestinationProjectID: 2, ActorID: 1})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	stock, err := repo.GetStock(ctx, 1, p.ID)
	require.NoError(t, err)
	require.True(t, d("3").Equal(stock.Quantity))
	require.Len(t, repo.movements, 1)
	_, err = repo.GetStock(ctx, 2, p.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestTransferPairsMovements(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)
	ctx := context.Background()
	p := seedProduct(t, svc, "500", "0")

	_, err := svc.Move(ctx, MovementInput{ProjectID: 1, ProductID: p.ID, Kind: MovementIn, Quantity: d("20"), ActorID: 1})
	require.NoError(t, err)

	res, err := svc.Move(ctx, MovementInput{ProjectID: 1, ProductID: p.ID, Kind: MovementTransfer, Quantity: d("5"), DestinationProjectID: 2, ActorID: 1})
	require.NoError(t, err)
	require.True(t, d("15").Equal(res.Stock.Quantity))
	require.NotNil(t, res.Paired)
	require.Equal(t, MovementIn, res.Paired.Kind)
	require.True(t, d("5").Equal(res.PairedStock.Quantity))
	require.True(t, d("2500").Equal(res.PairedStock.ValuedAmount))
	require.EqualValues(t, 2, *res.Movement.DestinationProjectID)

	totals, err := svc.Totals(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, d("20").Equal(totals.Quantity))
}

func TestMovementValidation(t *testing.T) {
	svc := newService(newMemoryRepo())
	ctx := context.Background()
	p := seedProduct(t, svc, "1", "0")

	cases := []struct {
		in  MovementInput
		err error
	}{
		{MovementInput{ProjectID: 1, ProductID: p.ID, Kind: MovementIn, Quantity: d("0")}, shared.ErrInvalidAmount},
		{MovementInput{ProjectID: 1, ProductID: p.ID, Kind: MovementOut, Quantity: d("-1")}, shared.ErrInvalidAmount},
		{MovementInput{ProjectID: 1, ProductID: p.ID, Kind: MovementAdjustment, Quantity: d("-1")}, shared.ErrInvalidAmount},
		{MovementInput{ProjectID: 1, ProductID: p.ID, Kind: MovementTransfer, Quantity: d("1")}, shared.ErrValidation},
		{MovementInput{ProjectID: 1, ProductID: p.ID, Kind: MovementTransfer, Quantity: d("1"), DestinationProjectID: 1}, shared.ErrValidation},
		{MovementInput{ProjectID: 1, ProductID: p.ID, Kind: "LOSS", Quantity: d("1")}, shared.ErrValidation},
		{MovementInput{ProjectID: 1, ProductID: 99, Kind: MovementIn, Quantity: d("1")}, shared.ErrNotFound},
	}
	for _, tc := range cases {
		_, err := svc.Move(ctx, tc.in)
		require.ErrorIs(t, err, tc.err, "%+v", tc.in)
	}
}

func TestLowStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)
	ctx := context.Background()
	p := seedProduct(t, svc, "10", "8")

	_, err := svc.Move(ctx, MovementInput{ProjectID: 1, ProductID: p.ID, Kind: MovementIn, Quantity: d("5"), ActorID: 1})
	require.NoError(t, err)
	_, err = svc.Move(ctx, MovementInput{ProjectID: 2, ProductID: p.ID, Kind: MovementIn, Quantity: d("8"), ActorID: 1})
	require.NoError(t, err)

	rows, err := svc.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.EqualValues(t, 1, rows[0].Stock.ProjectID)
	require.True(t, d("3").Equal(rows[0].Shortfall))

	stock, _ := repo.GetStock(ctx, 2, p.ID)
	require.False(t, IsLowStock(stock, p))
}

func TestRevalueAll(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)
	ctx := context.Background()
	p := seedProduct(t, svc, "10", "0")
	_, err := svc.Move(ctx, MovementInput{ProjectID: 1, ProductID: p.ID, Kind: MovementIn, Quantity: d("4"), ActorID: 1})
	require.NoError(t, err)

	prod := repo.products[p.ID]
	prod.AverageCost = d("12.5")
	repo.products[p.ID] = prod

	n, err := svc.RevalueAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	stock, _ := repo.GetStock(ctx, 1, p.ID)
	require.True(t, d("50").Equal(stock.ValuedAmount))
}

func TestWeightedAverageGuard(t *testing.T) {
	require.True(t, d("7").Equal(WeightedAverage(d("0"), d("7"), d("0"), d("9"))))
	require.True(t, d("9").Equal(WeightedAverage(d("0"), d("7"), d("2"), d("9"))))
}

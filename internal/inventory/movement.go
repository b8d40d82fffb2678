package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/projectledger/internal/sequence"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// TxRepository exposes transactional operations used by the movement engine. Rows
// are locked product first, then stock rows.
type TxRepository interface {
	Counter() sequence.Counter
	InsertProduct(ctx context.Context, p Product) (int64, error)
	GetProductForUpdate(ctx context.Context, id int64) (Product, error)
	UpdateProductCost(ctx context.Context, id int64, avg decimal.Decimal) error
	// EnsureStockForUpdate returns the locked (project, product) row, creating it empty if absent.
	EnsureStockForUpdate(ctx context.Context, projectID, productID int64) (Stock, error)
	ListProductStocksForUpdate(ctx context.Context, productID int64) ([]Stock, error)
	UpdateStock(ctx context.Context, s Stock) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
}

// ApplyMovement records a movement and updates the stock row in the caller's
// transaction. Out and Transfer fail with ErrInsufficientStock without touching the row.
func ApplyMovement(ctx context.Context, tx TxRepository, in MovementInput, now time.Time) (MovementResult, error) {
	if err := validateMovement(in); err != nil {
		return MovementResult{}, err
	}
	product, err := tx.GetProductForUpdate(ctx, in.ProductID)
	if err != nil {
		return MovementResult{}, err
	}
	stock, err := tx.EnsureStockForUpdate(ctx, in.ProjectID, in.ProductID)
	if err != nil {
		return MovementResult{}, err
	}
	mv, stock, err := move(ctx, tx, product, stock, in, now)
	if err != nil {
		return MovementResult{}, err
	}
	result := MovementResult{Movement: mv, Stock: stock}
	if in.Kind != MovementTransfer {
		return result, nil
	}
	dest, err := tx.EnsureStockForUpdate(ctx, in.DestinationProjectID, in.ProductID)
	if err != nil {
		return MovementResult{}, err
	}
	paired, dest, err := move(ctx, tx, product, dest, MovementInput{
		ProjectID: in.DestinationProjectID,
		ProductID: in.ProductID,
		Kind:      MovementIn,
		Quantity:  in.Quantity,
		Note:      fmt.Sprintf("transfer from project %d: %s", in.ProjectID, in.Note),
		ActorID:   in.ActorID,
	}, now)
	if err != nil {
		return MovementResult{}, err
	}
	result.Paired, result.PairedStock = &paired, &dest
	return result, nil
}

func validateMovement(in MovementInput) error {
	if in.ProjectID == 0 || in.ProductID == 0 {
		return fmt.Errorf("inventory: project and product required: %w", shared.ErrValidation)
	}
	if !in.Kind.Valid() {
		return fmt.Errorf("inventory: unknown movement %q: %w", in.Kind, shared.ErrValidation)
	}
	if in.Quantity.IsNegative() {
		return fmt.Errorf("inventory: quantity %s: %w", in.Quantity, shared.ErrInvalidAmount)
	}
	if in.Kind != MovementAdjustment && !in.Quantity.IsPositive() {
		return fmt.Errorf("inventory: quantity %s: %w", in.Quantity, shared.ErrInvalidAmount)
	}
	if in.Kind == MovementTransfer {
		if in.DestinationProjectID == 0 {
			return fmt.Errorf("inventory: transfer destination required: %w", shared.ErrValidation)
		}
		if in.DestinationProjectID == in.ProjectID {
			return fmt.Errorf("inventory: transfer to the same project: %w", shared.ErrValidation)
		}
	}
	return nil
}

func move(ctx context.Context, tx TxRepository, product Product, stock Stock, in MovementInput, now time.Time) (Movement, Stock, error) {
	before := stock.Quantity
	var after decimal.Decimal
	switch in.Kind {
	case MovementIn:
		after = before.Add(in.Quantity)
		stock.LastInAt = &now
	case MovementOut, MovementTransfer:
		if in.Quantity.GreaterThan(before) {
			return Movement{}, Stock{}, fmt.Errorf("inventory: %s %s of product %d with %s on hand: %w",
				in.Kind, in.Quantity, in.ProductID, before, shared.ErrInsufficientStock)
		}
		after = before.Sub(in.Quantity)
		stock.LastOutAt = &now
	case MovementAdjustment:
		after = in.Quantity
	}
	stock.Quantity = after
	stock.ValuedAmount = Valuation(after, product.AverageCost)
	if err := tx.UpdateStock(ctx, stock); err != nil {
		return Movement{}, Stock{}, err
	}
	mv := Movement{
		StockID:         stock.ID,
		Kind:            in.Kind,
		Quantity:        in.Quantity,
		QuantityBefore:  before,
		QuantityAfter:   after,
		PurchaseOrderID: in.PurchaseOrderID,
		Note:            in.Note,
		ActorID:         in.ActorID,
		MovedAt:         now,
	}
	if in.Kind == MovementTransfer {
		dest := in.DestinationProjectID
		mv.DestinationProjectID = &dest
	}
	id, err := tx.InsertMovement(ctx, mv)
	if err != nil {
		return Movement{}, Stock{}, err
	}
	mv.ID = id
	return mv, stock, nil
}

// Receive books purchased goods: it applies an In movement on the (project, product)
// row, recomputes the product's weighted-average cost over every project's stock and
// revalues all rows of the product.
func Receive(ctx context.Context, tx TxRepository, in ReceiveInput, now time.Time) (MovementResult, error) {
	if in.ProjectID == 0 || in.ProductID == 0 {
		return MovementResult{}, fmt.Errorf("inventory: project and product required: %w", shared.ErrValidation)
	}
	if !in.Quantity.IsPositive() {
		return MovementResult{}, fmt.Errorf("inventory: quantity %s: %w", in.Quantity, shared.ErrInvalidAmount)
	}
	if in.UnitPrice.IsNegative() {
		return MovementResult{}, fmt.Errorf("inventory: unit price %s: %w", in.UnitPrice, shared.ErrInvalidAmount)
	}
	product, err := tx.GetProductForUpdate(ctx, in.ProductID)
	if err != nil {
		return MovementResult{}, err
	}
	rows, err := tx.ListProductStocksForUpdate(ctx, in.ProductID)
	if err != nil {
		return MovementResult{}, err
	}
	held := decimal.Zero
	for _, s := range rows {
		held = held.Add(s.Quantity)
	}
	stock, err := tx.EnsureStockForUpdate(ctx, in.ProjectID, in.ProductID)
	if err != nil {
		return MovementResult{}, err
	}
	mv, stock, err := move(ctx, tx, product, stock, MovementInput{
		ProjectID:       in.ProjectID,
		ProductID:       in.ProductID,
		Kind:            MovementIn,
		Quantity:        in.Quantity,
		PurchaseOrderID: in.PurchaseOrderID,
		Note:            in.Note,
		ActorID:         in.ActorID,
	}, now)
	if err != nil {
		return MovementResult{}, err
	}
	avg := WeightedAverage(held, product.AverageCost, in.Quantity, in.UnitPrice)
	if err := tx.UpdateProductCost(ctx, product.ID, avg); err != nil {
		return MovementResult{}, err
	}
	product.AverageCost = avg
	revalued, err := revalue(ctx, tx, product)
	if err != nil {
		return MovementResult{}, err
	}
	for _, s := range revalued {
		if s.ID == stock.ID {
			stock = s
		}
	}
	return MovementResult{Movement: mv, Stock: stock}, nil
}

// revalue sets valued_amount = quantity x average cost on every row of product.
func revalue(ctx context.Context, tx TxRepository, product Product) ([]Stock, error) {
	rows, err := tx.ListProductStocksForUpdate(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		value := Valuation(rows[i].Quantity, product.AverageCost)
		if value.Equal(rows[i].ValuedAmount) {
			continue
		}
		rows[i].ValuedAmount = value
		if err := tx.UpdateStock(ctx, rows[i]); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

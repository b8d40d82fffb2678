// Package inventory keeps per-project stock of products, the movement history of each
// stock row and the weighted-average cost used to value it.
package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/projectledger/internal/sequence"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	GetStock(ctx context.Context, projectID, productID int64) (Stock, error)
	ListStocks(ctx context.Context, projectID int64) ([]Stock, error)
	ListProductStocks(ctx context.Context, productID int64) ([]Stock, error)
	ListMovements(ctx context.Context, stockID int64, limit int) ([]Movement, error)
	ListLowStock(ctx context.Context) ([]LowStockRow, error)
}

// Service coordinates inventory operations.
type Service struct {
	repo   RepositoryPort
	codes  *sequence.Generator
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, codes *sequence.Generator, logger *slog.Logger) *Service {
	if codes == nil {
		codes = sequence.NewGenerator(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, codes: codes, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// CreateProduct registers a product with a fresh PROD code.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	if strings.TrimSpace(in.Name) == "" {
		return Product{}, fmt.Errorf("inventory: product name required: %w", shared.ErrValidation)
	}
	if in.AverageCost.IsNegative() || in.ReorderThreshold.IsNegative() {
		return Product{}, fmt.Errorf("inventory: negative cost or threshold: %w", shared.ErrInvalidAmount)
	}
	p := Product{
		Name:             strings.TrimSpace(in.Name),
		Category:         in.Category,
		Unit:             in.Unit,
		AverageCost:      in.AverageCost,
		ReorderThreshold: in.ReorderThreshold,
		Active:           true,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		code, err := s.codes.Next(ctx, tx.Counter(), sequence.KindProduct)
		if err != nil {
			return err
		}
		p.Code = code
		p.ID, err = tx.InsertProduct(ctx, p)
		return err
	})
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

// Move applies a standalone stock movement.
func (s *Service) Move(ctx context.Context, in MovementInput) (MovementResult, error) {
	var result MovementResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = ApplyMovement(ctx, tx, in, s.now())
		return err
	})
	if err != nil {
		return MovementResult{}, err
	}
	return result, nil
}

// Receive books goods outside of a purchase order.
func (s *Service) Receive(ctx context.Context, in ReceiveInput) (MovementResult, error) {
	var result MovementResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = Receive(ctx, tx, in, s.now())
		return err
	})
	if err != nil {
		return MovementResult{}, err
	}
	return result, nil
}

// GetProduct returns a product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts returns all products.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.repo.ListProducts(ctx)
}

// GetStock returns the (project, product) row.
func (s *Service) GetStock(ctx context.Context, projectID, productID int64) (Stock, error) {
	return s.repo.GetStock(ctx, projectID, productID)
}

// ListStocks returns the stock rows of a project.
func (s *Service) ListStocks(ctx context.Context, projectID int64) ([]Stock, error) {
	return s.repo.ListStocks(ctx, projectID)
}

// Movements returns the history of a stock row, newest first.
func (s *Service) Movements(ctx context.Context, stockID int64, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 200
	}
	return s.repo.ListMovements(ctx, stockID, limit)
}

// Totals aggregates a product across projects.
func (s *Service) Totals(ctx context.Context, productID int64) (ProductTotals, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return ProductTotals{}, err
	}
	rows, err := s.repo.ListProductStocks(ctx, productID)
	if err != nil {
		return ProductTotals{}, err
	}
	totals := ProductTotals{ProductID: productID, Quantity: decimal.Zero, Value: decimal.Zero}
	for _, r := range rows {
		totals.Quantity = totals.Quantity.Add(r.Quantity)
		totals.Value = totals.Value.Add(r.ValuedAmount)
	}
	totals.LowStock = totals.Quantity.LessThan(product.ReorderThreshold)
	return totals, nil
}

// LowStock lists stock rows under their product's reorder threshold.
func (s *Service) LowStock(ctx context.Context) ([]LowStockRow, error) {
	return s.repo.ListLowStock(ctx)
}

// RevalueAll recomputes the valued amount of every stock row from its product's
// current average cost. It returns the number of products processed.
func (s *Service) RevalueAll(ctx context.Context) (int, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, p := range products {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			locked, err := tx.GetProductForUpdate(ctx, p.ID)
			if err != nil {
				return err
			}
			_, err = revalue(ctx, tx, locked)
			return err
		})
		if err != nil {
			s.logger.Error("revalue product", slog.Int64("product_id", p.ID), slog.Any("error", err))
			return count, err
		}
		count++
	}
	return count, nil
}

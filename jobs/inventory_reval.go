package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/projectledger/internal/inventory"
)

// StockService is the slice of inventory.Service the stock jobs use.
type StockService interface {
	RevalueAll(ctx context.Context) (int, error)
	LowStock(ctx context.Context) ([]inventory.LowStockRow, error)
}

// StockJobs hosts the revaluation and low-stock handlers.
type StockJobs struct {
	stock  StockService
	guard  *Guard
	logger *slog.Logger
}

// NewStockJobs wires the stock handlers.
func NewStockJobs(stock StockService, guard *Guard, logger *slog.Logger) *StockJobs {
	if logger == nil {
		logger = slog.Default()
	}
	return &StockJobs{stock: stock, guard: guard, logger: logger}
}

// HandleRevaluation processes TaskStockRevaluation.
func (j *StockJobs) HandleRevaluation(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.stock == nil {
		return errors.New("stock revaluation: handler not configured")
	}
	if _, err := decodePayload(t); err != nil {
		return err
	}
	return j.guard.Run(ctx, TaskStockRevaluation, j.stock.RevalueAll)
}

// HandleLowStockScan processes TaskLowStockScan.
func (j *StockJobs) HandleLowStockScan(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.stock == nil {
		return errors.New("low stock scan: handler not configured")
	}
	if _, err := decodePayload(t); err != nil {
		return err
	}
	return j.guard.Run(ctx, TaskLowStockScan, func(ctx context.Context) (int, error) {
		rows, err := j.stock.LowStock(ctx)
		if err != nil {
			return 0, err
		}
		for _, row := range rows {
			j.logger.Warn("stock under reorder threshold",
				slog.String("product", row.Product.Code),
				slog.Int64("project_id", row.Stock.ProjectID),
				slog.String("quantity", row.Stock.Quantity.String()),
				slog.String("shortfall", row.Shortfall.String()),
			)
		}
		return len(rows), nil
	})
}

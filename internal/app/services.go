package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/projectledger/internal/expenses"
	"github.com/odyssey-erp/projectledger/internal/inventory"
	"github.com/odyssey-erp/projectledger/internal/invoicing"
	"github.com/odyssey-erp/projectledger/internal/ledger"
	"github.com/odyssey-erp/projectledger/internal/personnel"
	"github.com/odyssey-erp/projectledger/internal/procurement"
	"github.com/odyssey-erp/projectledger/internal/projects"
	"github.com/odyssey-erp/projectledger/internal/sequence"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// Services holds every domain service bound to one connection pool.
type Services struct {
	Projects    *projects.Service
	Ledger      *ledger.Service
	Expenses    *expenses.Service
	Personnel   *personnel.Service
	Inventory   *inventory.Service
	Procurement *procurement.Service
	Invoicing   *invoicing.Service
	Idempotency *shared.IdempotencyStore
}

// NewServices builds repositories and services over pool.
func NewServices(pool *pgxpool.Pool, cfg *Config, logger *slog.Logger) *Services {
	codes := sequence.NewGenerator(nil)
	ledgerRepo := ledger.NewRepository(pool)
	return &Services{
		Projects:    projects.NewService(projects.NewRepository(pool), codes),
		Ledger:      ledger.NewService(ledgerRepo),
		Expenses:    expenses.NewService(expenses.NewRepository(pool)),
		Personnel:   personnel.NewService(personnel.NewRepository(pool)),
		Inventory:   inventory.NewService(inventory.NewRepository(pool), codes, logger),
		Procurement: procurement.NewService(procurement.NewRepository(pool), codes),
		Invoicing:   invoicing.NewService(invoicing.NewRepository(pool), codes, cfg.DefaultTaxRate, logger),
		Idempotency: shared.NewIdempotencyStore(pool),
	}
}

// Handlers builds the HTTP adapters for s.
func (s *Services) Handlers(cfg *Config, logger *slog.Logger) APIHandlers {
	retries := cfg.CodeRetryAttempts
	return APIHandlers{
		Projects:    projects.NewHandler(logger, s.Projects, retries),
		Ledger:      ledger.NewHandler(logger, s.Ledger, s.Idempotency),
		Expenses:    expenses.NewHandler(logger, s.Expenses),
		Personnel:   personnel.NewHandler(logger, s.Personnel, s.Idempotency),
		Inventory:   inventory.NewHandler(logger, s.Inventory, retries),
		Procurement: procurement.NewHandler(logger, s.Procurement, retries),
		Invoicing:   invoicing.NewHandler(logger, s.Invoicing, s.Idempotency, retries),
	}
}

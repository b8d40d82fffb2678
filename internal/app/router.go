package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/projectledger/internal/expenses"
	"github.com/odyssey-erp/projectledger/internal/inventory"
	"github.com/odyssey-erp/projectledger/internal/invoicing"
	"github.com/odyssey-erp/projectledger/internal/ledger"
	"github.com/odyssey-erp/projectledger/internal/observability"
	"github.com/odyssey-erp/projectledger/internal/personnel"
	"github.com/odyssey-erp/projectledger/internal/platform/httpx"
	"github.com/odyssey-erp/projectledger/internal/procurement"
	"github.com/odyssey-erp/projectledger/internal/projects"
	"github.com/odyssey-erp/projectledger/jobs"
)

// APIHandlers lists the domain handlers mounted under /api/v1.
type APIHandlers struct {
	Projects    *projects.Handler
	Ledger      *ledger.Handler
	Expenses    *expenses.Handler
	Personnel   *personnel.Handler
	Inventory   *inventory.Handler
	Procurement *procurement.Handler
	Invoicing   *invoicing.Handler
}

// Pinger reports database reachability for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger     *slog.Logger
	Config     *Config
	Handlers   APIHandlers
	JobHandler *jobs.Handler
	Metrics    *observability.Metrics
	DB         Pinger
}

// NewRouter constructs the chi.Router with API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if params.DB == nil {
			httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := params.DB.Ping(ctx); err != nil {
			params.Logger.Warn("readiness ping", slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "database unavailable", "")
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httpx.RequireActor)
		h := params.Handlers
		if h.Projects != nil {
			h.Projects.MountRoutes(r)
		}
		if h.Ledger != nil {
			h.Ledger.MountRoutes(r)
		}
		if h.Expenses != nil {
			h.Expenses.MountRoutes(r)
		}
		if h.Personnel != nil {
			h.Personnel.MountRoutes(r)
		}
		if h.Inventory != nil {
			h.Inventory.MountRoutes(r)
		}
		if h.Procurement != nil {
			h.Procurement.MountRoutes(r)
		}
		if h.Invoicing != nil {
			h.Invoicing.MountRoutes(r)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}

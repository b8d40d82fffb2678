package inventory

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/projectledger/internal/platform/httpx"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// Handler exposes product and stock endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	retries   int
}

// NewHandler builds Handler. retries bounds replays of product creation and stock
// movements after a code collision or a serialization conflict.
func NewHandler(logger *slog.Logger, service *Service, retries int) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), retries: retries}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/products/low-stock", h.lowStock)
	r.Get("/products/{id}", h.getProduct)
	r.Get("/products/{id}/totals", h.totals)
	r.Get("/projects/{id}/stocks", h.listStocks)
	r.Get("/stocks/{id}/movements", h.movements)
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/products", h.createProduct)
		r.Post("/movements", h.move)
	})
}

type productForm struct {
	Name             string `json:"name" validate:"required,max=200"`
	Category         string `json:"category" validate:"max=100"`
	Unit             string `json:"unit" validate:"max=20"`
	AverageCost      string `json:"average_cost"`
	ReorderThreshold string `json:"reorder_threshold"`
}

type movementForm struct {
	ProjectID            int64  `json:"project_id" validate:"required,gt=0"`
	ProductID            int64  `json:"product_id" validate:"required,gt=0"`
	Kind                 string `json:"kind" validate:"required,oneof=IN OUT ADJUSTMENT TRANSFER"`
	Quantity             string `json:"quantity" validate:"required"`
	DestinationProjectID int64  `json:"destination_project_id" validate:"required_if=Kind TRANSFER"`
	Note                 string `json:"note" validate:"max=500"`
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var form productForm
	if err := httpx.Decode(r, h.validator, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	cost, err := httpx.ParseDecimal(form.AverageCost)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	threshold, err := httpx.ParseDecimal(form.ReorderThreshold)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := ProductInput{Name: form.Name, Category: form.Category, Unit: form.Unit, AverageCost: cost, ReorderThreshold: threshold}
	product, err := httpx.RetryDuplicate(r.Context(), h.retries, func(ctx context.Context) (Product, error) {
		return h.service.CreateProduct(ctx, in)
	})
	if err != nil {
		h.logger.Error("create product", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request) {
	var form movementForm
	if err := httpx.Decode(r, h.validator, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	qty, err := httpx.ParseDecimal(form.Quantity)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := MovementInput{
		ProjectID:            form.ProjectID,
		ProductID:            form.ProductID,
		Kind:                 MovementKind(form.Kind),
		Quantity:             qty,
		DestinationProjectID: form.DestinationProjectID,
		Note:                 form.Note,
		ActorID:              shared.ActorFromContext(r.Context()),
	}
	result, err := httpx.RetryDuplicate(r.Context(), h.retries, func(ctx context.Context) (MovementResult, error) {
		return h.service.Move(ctx, in)
	})
	if err != nil {
		h.logger.Warn("stock movement", slog.Any("error", err), slog.Int64("product_id", form.ProductID), slog.String("kind", form.Kind))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) totals(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	totals, err := h.service.Totals(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, totals)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.LowStock(r.Context())
	if err != nil {
		h.logger.Error("low stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) listStocks(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	stocks, err := h.service.ListStocks(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stocks)
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.service.Movements(r.Context(), id, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

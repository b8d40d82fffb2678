package expenses

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/projectledger/internal/approval"
	"github.com/odyssey-erp/projectledger/internal/platform/httpx"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// Handler exposes expense endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers expense routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/expenses", h.list)
	r.Get("/expenses/{id}", h.get)
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(60, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/expenses", h.create)
		r.Put("/expenses/{id}", h.update)
		r.Post("/expenses/{id}/transition", h.transition)
	})
}

type expenseForm struct {
	ProjectID         int64  `json:"project_id" validate:"required,gt=0"`
	Category          string `json:"category" validate:"required,max=100"`
	SupplierID        *int64 `json:"supplier_id"`
	Date              string `json:"date"`
	Amount            string `json:"amount" validate:"required"`
	PaymentMethod     string `json:"payment_method"`
	SupplierInvoiceNo string `json:"supplier_invoice_no" validate:"max=100"`
	Description       string `json:"description"`
	Status            string `json:"status" validate:"omitempty,oneof=PENDING VALIDATED REJECTED"`
}

func (h *Handler) parse(r *http.Request) (expenseForm, UpdateInput, error) {
	var form expenseForm
	if err := httpx.Decode(r, h.validator, &form); err != nil {
		return form, UpdateInput{}, err
	}
	amount, err := httpx.ParseDecimal(form.Amount)
	if err != nil {
		return form, UpdateInput{}, err
	}
	date, err := httpx.ParseDate(form.Date)
	if err != nil {
		return form, UpdateInput{}, err
	}
	return form, UpdateInput{
		Category:          form.Category,
		SupplierID:        form.SupplierID,
		Date:              date,
		Amount:            amount,
		PaymentMethod:     shared.PaymentMethod(form.PaymentMethod),
		SupplierInvoiceNo: form.SupplierInvoiceNo,
		Description:       form.Description,
	}, nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	form, fields, err := h.parse(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	exp, err := h.service.Create(r.Context(), CreateInput{
		ProjectID:         form.ProjectID,
		Category:          fields.Category,
		SupplierID:        fields.SupplierID,
		Date:              fields.Date,
		Amount:            fields.Amount,
		PaymentMethod:     fields.PaymentMethod,
		SupplierInvoiceNo: fields.SupplierInvoiceNo,
		Description:       fields.Description,
		Status:            approval.State(form.Status),
		ActorID:           shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Error("create expense", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, exp)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	_, fields, err := h.parse(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	exp, err := h.service.Update(r.Context(), id, fields)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, exp)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var form httpx.TransitionForm
	if err := httpx.Decode(r, h.validator, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	exp, err := h.service.Transition(r.Context(), id, approval.State(form.Status), shared.ActorFromContext(r.Context()), form.Note)
	if err != nil {
		h.logger.Warn("expense transition", slog.Any("error", err), slog.Int64("expense_id", id), slog.String("to", form.Status))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, exp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	exp, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, exp)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.QueryID(r, "project_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.service.List(r.Context(), ListFilter{
		ProjectID: projectID,
		Status:    approval.State(r.URL.Query().Get("status")),
		Limit:     limit,
	})
	if err != nil {
		h.logger.Error("list expenses", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

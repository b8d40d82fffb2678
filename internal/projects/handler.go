package projects

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

// Handler exposes project endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	retries   int
}

// NewHandler builds Handler. retries bounds how often a create is replayed after a code collision.
func NewHandler(logger *slog.Logger, service *Service, retries int) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), retries: retries}
}

// MountRoutes registers project routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/projects", h.list)
	r.Get("/projects/{id}", h.get)
	r.Get("/projects/{id}/summary", h.summary)
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/projects", h.create)
		r.Post("/projects/{id}/status", h.setStatus)
	})
}

type createForm struct {
	Name           string  `json:"name" validate:"required,max=200"`
	ClientID       *int64  `json:"client_id"`
	PlannedBudget  string  `json:"planned_budget" validate:"required"`
	Status         string  `json:"status" validate:"omitempty,oneof=PLANNED ACTIVE SUSPENDED COMPLETED CANCELLED"`
	StartDate      string  `json:"start_date" validate:"required"`
	PlannedEndDate *string `json:"planned_end_date"`
}

type statusForm struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form createForm
	if err := httpx.Decode(r, h.validator, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	budget, err := httpx.ParseDecimal(form.PlannedBudget)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	start, err := httpx.ParseDate(form.StartDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := CreateInput{
		Name:          form.Name,
		ClientID:      form.ClientID,
		PlannedBudget: budget,
		Status:        Status(form.Status),
		StartDate:     start,
		CreatedBy:     shared.ActorFromContext(r.Context()),
	}
	if form.PlannedEndDate != nil {
		if in.PlannedEndDate, err = httpx.ParseOptionalDate(*form.PlannedEndDate); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	project, err := httpx.RetryDuplicate(r.Context(), h.retries, func(ctx context.Context) (Project, error) {
		return h.service.Create(ctx, in)
	})
	if err != nil {
		h.logger.Error("create project", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, project)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.service.List(r.Context(), ListFilter{Status: Status(r.URL.Query().Get("status")), Limit: limit})
	if err != nil {
		h.logger.Error("list projects", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	project, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, project)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var form statusForm
	if err := httpx.Decode(r, h.validator, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	project, err := h.service.SetStatus(r.Context(), id, Status(form.Status))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, project)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.service.Summary(r.Context(), id)
	if err != nil {
		h.logger.Error("project summary", slog.Any("error", err), slog.Int64("project_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

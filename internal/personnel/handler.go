package personnel

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/projectledger/internal/approval"
	"github.com/odyssey-erp/projectledger/internal/platform/httpx"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// Handler exposes worker and salary payment endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	idem      *shared.IdempotencyStore
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, idem *shared.IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), idem: idem}
}

// MountRoutes registers personnel routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/workers", h.registerWorker)
	r.Get("/workers/{id}", h.getWorker)
	r.Get("/workers/{id}/balance", h.balance)
	r.Get("/workers/{id}/payments", h.listPayments)
	r.With(httpx.Idempotent(h.idem, Module)).Post("/personnel-payments", h.createPayment)
	r.Get("/personnel-payments/{id}", h.getPayment)
	r.Put("/personnel-payments/{id}", h.updatePayment)
	r.Post("/personnel-payments/{id}/transition", h.transition)
}

type workerForm struct {
	FirstName    string  `json:"first_name" validate:"max=100"`
	LastName     string  `json:"last_name" validate:"required,max=100"`
	Role         string  `json:"role" validate:"max=100"`
	ContractType string  `json:"contract_type" validate:"max=50"`
	DailySalary  string  `json:"daily_salary"`
	AgreedSalary *string `json:"agreed_salary"`
}

type paymentForm struct {
	WorkerID      int64  `json:"worker_id" validate:"required,gt=0"`
	ProjectID     int64  `json:"project_id" validate:"required,gt=0"`
	Date          string `json:"date"`
	Amount        string `json:"amount" validate:"required"`
	Days          int    `json:"days" validate:"gte=0"`
	PaymentMethod string `json:"payment_method"`
	Description   string `json:"description"`
	Status        string `json:"status" validate:"omitempty,oneof=PENDING VALIDATED REJECTED"`
}

func (h *Handler) registerWorker(w http.ResponseWriter, r *http.Request) {
	var form workerForm
	if err := httpx.Decode(r, h.validator, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	daily, err := httpx.ParseDecimal(form.DailySalary)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := WorkerInput{
		FirstName:    form.FirstName,
		LastName:     form.LastName,
		Role:         form.Role,
		ContractType: form.ContractType,
		DailySalary:  daily,
	}
	if form.AgreedSalary != nil {
		agreed, err := httpx.ParseDecimal(*form.AgreedSalary)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		in.AgreedSalary = &agreed
	}
	worker, err := h.service.RegisterWorker(r.Context(), in)
	if err != nil {
		h.logger.Error("register worker", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, worker)
}

func (h *Handler) getWorker(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	worker, err := h.service.GetWorker(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, worker)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	balance, err := h.service.Balance(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payments, err := h.service.ListPayments(r.Context(), id)
	if err != nil {
		h.logger.Error("list personnel payments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payments)
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var form paymentForm
	if err := httpx.Decode(r, h.validator, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	amount, err := httpx.ParseDecimal(form.Amount)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := httpx.ParseDate(form.Date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payment, err := h.service.CreatePayment(r.Context(), PaymentInput{
		WorkerID:      form.WorkerID,
		ProjectID:     form.ProjectID,
		Date:          date,
		Amount:        amount,
		Days:          form.Days,
		PaymentMethod: shared.PaymentMethod(form.PaymentMethod),
		Description:   form.Description,
		Status:        approval.State(form.Status),
		ActorID:       shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Error("create personnel payment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payment, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

type paymentUpdateForm struct {
	Date          string `json:"date"`
	Amount        string `json:"amount" validate:"required"`
	Days          int    `json:"days" validate:"gte=0"`
	PaymentMethod string `json:"payment_method"`
	Description   string `json:"description"`
}

func (h *Handler) updatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var form paymentUpdateForm
	if err := httpx.Decode(r, h.validator, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	amount, err := httpx.ParseDecimal(form.Amount)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := httpx.ParseDate(form.Date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payment, err := h.service.UpdatePayment(r.Context(), id, PaymentUpdate{
		Date:          date,
		Amount:        amount,
		Days:          form.Days,
		PaymentMethod: shared.PaymentMethod(form.PaymentMethod),
		Description:   form.Description,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
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
	payment, err := h.service.Transition(r.Context(), id, approval.State(form.Status), shared.ActorFromContext(r.Context()), form.Note)
	if err != nil {
		h.logger.Warn("personnel payment transition", slog.Any("error", err), slog.Int64("payment_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

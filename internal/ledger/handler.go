package ledger

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/projectledger/internal/platform/httpx"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// IdempotencyModule scopes Idempotency-Key values of manual ledger records.
const IdempotencyModule = "LEDGER_RECORD"

var exportLanguages = language.NewMatcher([]language.Tag{language.French, language.English})

// Handler exposes ledger endpoints.
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

// MountRoutes registers ledger routes under a project.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/projects/{id}/ledger", h.list)
	r.Get("/projects/{id}/ledger/export", h.export)
	r.With(httpx.Idempotent(h.idem, IdempotencyModule)).Post("/projects/{id}/ledger", h.record)
}

type recordForm struct {
	Kind          string `json:"kind" validate:"required,oneof=DEPOSIT WITHDRAWAL EXPENSE"`
	Amount        string `json:"amount" validate:"required"`
	Date          string `json:"date"`
	Category      string `json:"category" validate:"max=100"`
	PaymentMethod string `json:"payment_method"`
	Reference     string `json:"reference" validate:"max=100"`
	Description   string `json:"description"`
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var form recordForm
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
	if form.PaymentMethod != "" && !shared.PaymentMethod(form.PaymentMethod).Valid() {
		httpx.RespondError(w, fmt.Errorf("ledger: payment method %q: %w", form.PaymentMethod, shared.ErrValidation))
		return
	}
	entry, err := h.service.Record(r.Context(), AppendInput{
		ProjectID:     projectID,
		Kind:          Kind(form.Kind),
		Amount:        amount,
		Date:          date,
		Category:      form.Category,
		PaymentMethod: form.PaymentMethod,
		Reference:     form.Reference,
		Description:   form.Description,
		CreatedBy:     shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Error("record ledger entry", slog.Any("error", err), slog.Int64("project_id", projectID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) filter(r *http.Request) (ListFilter, error) {
	projectID, err := httpx.IDParam(r, "id")
	if err != nil {
		return ListFilter{}, err
	}
	q := r.URL.Query()
	filter := ListFilter{ProjectID: projectID, Kind: Kind(q.Get("kind"))}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return ListFilter{}, fmt.Errorf("ledger: kind %q: %w", filter.Kind, shared.ErrValidation)
	}
	if filter.From, err = httpx.ParseDate(q.Get("from")); err != nil {
		return ListFilter{}, err
	}
	if filter.To, err = httpx.ParseDate(q.Get("to")); err != nil {
		return ListFilter{}, err
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	return filter, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := h.filter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list ledger entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filter, err := h.filter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("export ledger entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	tag, _ := language.MatchStrings(exportLanguages, r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=ledger-project-%d.csv", filter.ProjectID))
	if err := WriteCSV(w, entries, tag); err != nil {
		h.logger.Error("write ledger csv", slog.Any("error", err))
	}
}

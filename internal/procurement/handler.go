package procurement

import (
	"context"
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

// Handler manages procurement endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	retries   int
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, retries int) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), retries: retries}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/purchase-orders", h.list)
	r.Get("/purchase-orders/{id}", h.get)
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(60, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/purchase-orders", h.create)
		r.Post("/purchase-orders/{id}/lines", h.addLine)
		r.Put("/purchase-orders/{id}/lines/{lineID}", h.updateLine)
		r.Post("/purchase-orders/{id}/transition", h.transition)
		r.Post("/purchase-orders/{id}/receive", h.receive)
	})
}

type lineForm struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  string `json:"quantity" validate:"required"`
	UnitPrice string `json:"unit_price" validate:"required"`
	Notes     string `json:"notes"`
}

type orderForm struct {
	ProjectID         int64      `json:"project_id" validate:"required,gt=0"`
	SupplierID        int64      `json:"supplier_id" validate:"required,gt=0"`
	OrderDate         string     `json:"order_date"`
	SupplierInvoiceNo string     `json:"supplier_invoice_no" validate:"max=100"`
	PaymentMethod     string     `json:"payment_method"`
	Notes             string     `json:"notes"`
	Status            string     `json:"status" validate:"omitempty,oneof=DRAFT VALIDATED"`
	Lines             []lineForm `json:"lines" validate:"dive"`
}

type receiveForm struct {
	ReceivedDate string `json:"received_date"`
}

func (f lineForm) input() (LineInput, error) {
	qty, err := httpx.ParseDecimal(f.Quantity)
	if err != nil {
		return LineInput{}, err
	}
	price, err := httpx.ParseDecimal(f.UnitPrice)
	if err != nil {
		return LineInput{}, err
	}
	return LineInput{ProductID: f.ProductID, Quantity: qty, UnitPrice: price, Notes: f.Notes}, nil
}

type orderView struct {
	PurchaseOrder
	Lines []Line `json:"lines"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form orderForm
	if err := httpx.Decode(r, h.validator, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	orderDate, err := httpx.ParseDate(form.OrderDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := CreateInput{
		ProjectID:         form.ProjectID,
		SupplierID:        form.SupplierID,
		OrderDate:         orderDate,
		SupplierInvoiceNo: form.SupplierInvoiceNo,
		PaymentMethod:     shared.PaymentMethod(form.PaymentMethod),
		Notes:             form.Notes,
		Status:            approval.State(form.Status),
		ActorID:           shared.ActorFromContext(r.Context()),
	}
	for _, lf := range form.Lines {
		li, err := lf.input()
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		in.Lines = append(in.Lines, li)
	}
	view, err := httpx.RetryDuplicate(r.Context(), h.retries, func(ctx context.Context) (orderView, error) {
		po, lines, err := h.service.CreatePurchaseOrder(ctx, in)
		return orderView{PurchaseOrder: po, Lines: lines}, err
	})
	if err != nil {
		h.logger.Error("create purchase order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, view)
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var form lineForm
	if err := httpx.Decode(r, h.validator, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	li, err := form.input()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, line, err := h.service.AddLine(r.Context(), id, li)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, orderView{PurchaseOrder: po, Lines: []Line{line}})
}

func (h *Handler) updateLine(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	lineID, err := httpx.IDParam(r, "lineID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var form lineForm
	if err := httpx.Decode(r, h.validator, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	li, err := form.input()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, line, err := h.service.UpdateLine(r.Context(), id, lineID, li)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderView{PurchaseOrder: po, Lines: []Line{line}})
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
	po, err := h.service.Transition(r.Context(), id, approval.State(form.Status), shared.ActorFromContext(r.Context()), form.Note)
	if err != nil {
		h.logger.Warn("purchase order transition", slog.Any("error", err), slog.Int64("po_id", id), slog.String("to", form.Status))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var form receiveForm
	if r.ContentLength != 0 {
		if err := httpx.Decode(r, h.validator, &form); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	date, err := httpx.ParseDate(form.ReceivedDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.ReceivePurchaseOrder(r.Context(), id, shared.ActorFromContext(r.Context()), date)
	if err != nil {
		h.logger.Warn("receive purchase order", slog.Any("error", err), slog.Int64("po_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, lines, err := h.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderView{PurchaseOrder: po, Lines: lines})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.QueryID(r, "project_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.service.ListPurchaseOrders(r.Context(), ListFilter{
		ProjectID: projectID,
		Status:    approval.State(r.URL.Query().Get("status")),
		Limit:     limit,
	})
	if err != nil {
		h.logger.Error("list purchase orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

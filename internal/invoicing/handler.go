package invoicing

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/projectledger/internal/approval"
	"github.com/odyssey-erp/projectledger/internal/platform/httpx"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// Handler exposes quote, invoice and payment endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	idem      *shared.IdempotencyStore
	retries   int
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, idem *shared.IdempotencyStore, retries int) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), idem: idem, retries: retries}
}

// MountRoutes registers invoicing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/quotes", h.listQuotes)
	r.Get("/quotes/{id}", h.getQuote)
	r.Get("/invoices", h.listInvoices)
	r.Get("/invoices/aging", h.aging)
	r.Get("/invoices/{id}", h.getInvoice)
	r.Get("/invoices/{id}/payments", h.listPayments)
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(60, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/quotes", h.createQuote)
		r.Post("/quotes/{id}/lines", h.addQuoteLine)
		r.Put("/quotes/{id}/lines/{lineID}", h.updateQuoteLine)
		r.Post("/quotes/{id}/transition", h.transitionQuote)
		r.Post("/quotes/{id}/invoice", h.invoiceQuote)
		r.Post("/invoices", h.createInvoice)
		r.Post("/invoices/{id}/lines", h.addInvoiceLine)
		r.Put("/invoices/{id}/lines/{lineID}", h.updateInvoiceLine)
		r.With(httpx.Idempotent(h.idem, InvoiceModule)).Post("/invoices/{id}/payments", h.recordPayment)
	})
}

type lineForm struct {
	Description string `json:"description" validate:"required,max=500"`
	Unit        string `json:"unit" validate:"max=20"`
	Quantity    string `json:"quantity" validate:"required"`
	UnitPrice   string `json:"unit_price" validate:"required"`
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
	return LineInput{Description: f.Description, Unit: f.Unit, Quantity: qty, UnitPrice: price}, nil
}

func lineInputs(forms []lineForm) ([]LineInput, error) {
	out := make([]LineInput, 0, len(forms))
	for _, f := range forms {
		li, err := f.input()
		if err != nil {
			return nil, err
		}
		out = append(out, li)
	}
	return out, nil
}

// documentForm is shared by quotes and invoices; EndDate is the validity or due date.
type documentForm struct {
	ProjectID    *int64     `json:"project_id"`
	CustomerID   int64      `json:"customer_id" validate:"required,gt=0"`
	IssueDate    string     `json:"issue_date"`
	EndDate      string     `json:"end_date"`
	AppliesTax   *bool      `json:"applies_tax"`
	TaxRate      *string    `json:"tax_rate"`
	PaymentTerms string     `json:"payment_terms"`
	Notes        string     `json:"notes"`
	Lines        []lineForm `json:"lines" validate:"dive"`
}

type parsedDocument struct {
	issue, end time.Time
	rate       *decimal.Decimal
	lines      []LineInput
}

func (f documentForm) parse() (parsedDocument, error) {
	var p parsedDocument
	var err error
	if p.issue, err = httpx.ParseDate(f.IssueDate); err != nil {
		return p, err
	}
	if p.end, err = httpx.ParseDate(f.EndDate); err != nil {
		return p, err
	}
	if f.TaxRate != nil {
		rate, err := httpx.ParseDecimal(*f.TaxRate)
		if err != nil {
			return p, err
		}
		p.rate = &rate
	}
	p.lines, err = lineInputs(f.Lines)
	return p, err
}

type quoteView struct {
	Quote
	Totals Totals `json:"totals"`
	Lines  []Line `json:"lines,omitempty"`
}

type invoiceView struct {
	Invoice
	Totals      Totals          `json:"totals"`
	Remaining   decimal.Decimal `json:"remaining"`
	DaysOverdue int             `json:"days_overdue"`
	Lines       []Line          `json:"lines,omitempty"`
}

func (h *Handler) quoteView(q Quote, lines []Line) quoteView {
	q.Expired = q.IsExpired(h.service.now())
	return quoteView{Quote: q, Totals: q.Totals(), Lines: lines}
}

func (h *Handler) invoiceView(inv Invoice, lines []Line) invoiceView {
	return invoiceView{Invoice: inv, Totals: inv.Totals(), Remaining: inv.Remaining(), DaysOverdue: inv.DaysOverdue(h.service.now()), Lines: lines}
}

func (h *Handler) createQuote(w http.ResponseWriter, r *http.Request) {
	var form documentForm
	if err := httpx.Decode(r, h.validator, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := form.parse()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := QuoteInput{
		ProjectID:    form.ProjectID,
		CustomerID:   form.CustomerID,
		IssueDate:    doc.issue,
		ValidityDate: doc.end,
		AppliesTax:   form.AppliesTax,
		TaxRate:      doc.rate,
		PaymentTerms: form.PaymentTerms,
		Notes:        form.Notes,
		Lines:        doc.lines,
		ActorID:      shared.ActorFromContext(r.Context()),
	}
	view, err := httpx.RetryDuplicate(r.Context(), h.retries, func(ctx context.Context) (quoteView, error) {
		q, lines, err := h.service.CreateQuote(ctx, in)
		return h.quoteView(q, lines), err
	})
	if err != nil {
		h.logger.Error("create quote", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, view)
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var form documentForm
	if err := httpx.Decode(r, h.validator, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := form.parse()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := InvoiceInput{
		ProjectID:    form.ProjectID,
		CustomerID:   form.CustomerID,
		IssueDate:    doc.issue,
		DueDate:      doc.end,
		AppliesTax:   form.AppliesTax,
		TaxRate:      doc.rate,
		PaymentTerms: form.PaymentTerms,
		Notes:        form.Notes,
		Lines:        doc.lines,
		ActorID:      shared.ActorFromContext(r.Context()),
	}
	view, err := httpx.RetryDuplicate(r.Context(), h.retries, func(ctx context.Context) (invoiceView, error) {
		inv, lines, err := h.service.CreateInvoice(ctx, in)
		return h.invoiceView(inv, lines), err
	})
	if err != nil {
		h.logger.Error("create invoice", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, view)
}

type fromQuoteForm struct {
	IssueDate string `json:"issue_date"`
	DueDate   string `json:"due_date"`
}

func (h *Handler) invoiceQuote(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var form fromQuoteForm
	if err := httpx.Decode(r, h.validator, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := FromQuoteInput{ActorID: shared.ActorFromContext(r.Context())}
	if in.IssueDate, err = httpx.ParseDate(form.IssueDate); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if in.DueDate, err = httpx.ParseDate(form.DueDate); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := httpx.RetryDuplicate(r.Context(), h.retries, func(ctx context.Context) (invoiceView, error) {
		inv, lines, err := h.service.CreateInvoiceFromQuote(ctx, id, in)
		return h.invoiceView(inv, lines), err
	})
	if err != nil {
		h.logger.Warn("invoice quote", slog.Any("error", err), slog.Int64("quote_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, view)
}

func (h *Handler) lineRequest(w http.ResponseWriter, r *http.Request, withLine bool) (docID, lineID int64, in LineInput, ok bool) {
	var err error
	if docID, err = httpx.IDParam(r, "id"); err != nil {
		httpx.RespondError(w, err)
		return 0, 0, LineInput{}, false
	}
	if withLine {
		if lineID, err = httpx.IDParam(r, "lineID"); err != nil {
			httpx.RespondError(w, err)
			return 0, 0, LineInput{}, false
		}
	}
	var form lineForm
	if err := httpx.Decode(r, h.validator, &form); err != nil {
		httpx.RespondError(w, err)
		return 0, 0, LineInput{}, false
	}
	if in, err = form.input(); err != nil {
		httpx.RespondError(w, err)
		return 0, 0, LineInput{}, false
	}
	return docID, lineID, in, true
}

func (h *Handler) addQuoteLine(w http.ResponseWriter, r *http.Request) {
	id, _, in, ok := h.lineRequest(w, r, false)
	if !ok {
		return
	}
	q, line, err := h.service.AddQuoteLine(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, h.quoteView(q, []Line{line}))
}

func (h *Handler) updateQuoteLine(w http.ResponseWriter, r *http.Request) {
	id, lineID, in, ok := h.lineRequest(w, r, true)
	if !ok {
		return
	}
	q, line, err := h.service.UpdateQuoteLine(r.Context(), id, lineID, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.quoteView(q, []Line{line}))
}

func (h *Handler) addInvoiceLine(w http.ResponseWriter, r *http.Request) {
	id, _, in, ok := h.lineRequest(w, r, false)
	if !ok {
		return
	}
	inv, line, err := h.service.AddInvoiceLine(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, h.invoiceView(inv, []Line{line}))
}

func (h *Handler) updateInvoiceLine(w http.ResponseWriter, r *http.Request) {
	id, lineID, in, ok := h.lineRequest(w, r, true)
	if !ok {
		return
	}
	inv, line, err := h.service.UpdateInvoiceLine(r.Context(), id, lineID, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.invoiceView(inv, []Line{line}))
}

func (h *Handler) transitionQuote(w http.ResponseWriter, r *http.Request) {
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
	q, err := h.service.TransitionQuote(r.Context(), id, approval.State(form.Status), shared.ActorFromContext(r.Context()), form.Note)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.quoteView(q, nil))
}

type paymentForm struct {
	Date      string `json:"date"`
	Amount    string `json:"amount" validate:"required"`
	Method    string `json:"method" validate:"required,oneof=CASH CHEQUE TRANSFER MOBILE_MONEY"`
	Reference string `json:"reference" validate:"max=100"`
	Notes     string `json:"notes"`
}

type paymentView struct {
	Invoice invoiceView `json:"invoice"`
	Payment Payment     `json:"payment"`
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
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
	inv, payment, err := h.service.RecordPayment(r.Context(), id, PaymentInput{
		Date:      date,
		Amount:    amount,
		Method:    shared.PaymentMethod(form.Method),
		Reference: form.Reference,
		Notes:     form.Notes,
		ActorID:   shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Error("record invoice payment", slog.Any("error", err), slog.Int64("invoice_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, paymentView{Invoice: h.invoiceView(inv, nil), Payment: payment})
}

func (h *Handler) getQuote(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, lines, err := h.service.GetQuote(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.quoteView(q, lines))
}

func (h *Handler) listQuotes(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.QueryID(r, "project_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.service.ListQuotes(r.Context(), QuoteFilter{ProjectID: projectID, Status: approval.State(r.URL.Query().Get("status")), Limit: limit})
	if err != nil {
		h.logger.Error("list quotes", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]quoteView, 0, len(items))
	for _, q := range items {
		views = append(views, h.quoteView(q, nil))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, lines, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.invoiceView(inv, lines))
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.QueryID(r, "project_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.service.ListInvoices(r.Context(), InvoiceFilter{ProjectID: projectID, Status: InvoiceStatus(r.URL.Query().Get("status")), Limit: limit})
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]invoiceView, 0, len(items))
	for _, inv := range items {
		views = append(views, h.invoiceView(inv, nil))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payments, err := h.service.ListPayments(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payments)
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	asOf, err := httpx.ParseDate(r.URL.Query().Get("as_of"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bucket, err := h.service.Aging(r.Context(), asOf)
	if err != nil {
		h.logger.Error("invoice aging", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bucket)
}

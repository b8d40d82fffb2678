// Package invoicing issues quotes and invoices and reconciles customer payments.
package invoicing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/projectledger/internal/approval"
	"github.com/odyssey-erp/projectledger/internal/sequence"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// RepositoryPort defines data access methods for invoicing.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetQuote(ctx context.Context, id int64) (Quote, []Line, error)
	ListQuotes(ctx context.Context, filter QuoteFilter) ([]Quote, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, []Line, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
	// ListOverdueCandidates returns unpaid invoices due before today.
	ListOverdueCandidates(ctx context.Context, today time.Time) ([]int64, error)
	ListOutstanding(ctx context.Context) ([]Invoice, error)
}

// TxRepository exposes transactional operations used by Service.
type TxRepository interface {
	Counter() sequence.Counter
	Approvals() approval.Recorder
	InsertQuote(ctx context.Context, q Quote) (int64, error)
	GetQuoteForUpdate(ctx context.Context, id int64) (Quote, []Line, error)
	UpdateQuote(ctx context.Context, q Quote) error
	InsertQuoteLine(ctx context.Context, l Line) (int64, error)
	UpdateQuoteLine(ctx context.Context, l Line) error
	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, []Line, error)
	// UpdateInvoiceAmounts persists amount_excl_tax, amount_paid and status.
	UpdateInvoiceAmounts(ctx context.Context, inv Invoice) error
	InsertInvoiceLine(ctx context.Context, l Line) (int64, error)
	UpdateInvoiceLine(ctx context.Context, l Line) error
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	SumPayments(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
}

// Service handles quotes, invoices and payments.
type Service struct {
	repo    RepositoryPort
	codes   *sequence.Generator
	taxRate decimal.Decimal
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds Service. defaultTaxRate is a percentage applied when inputs omit one.
func NewService(repo RepositoryPort, codes *sequence.Generator, defaultTaxRate decimal.Decimal, logger *slog.Logger) *Service {
	if codes == nil {
		codes = sequence.NewGenerator(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, codes: codes, taxRate: defaultTaxRate, logger: logger, now: time.Now}
}

func validateLine(in LineInput) error {
	if in.Description == "" {
		return fmt.Errorf("invoicing: line description required: %w", shared.ErrValidation)
	}
	if !in.Quantity.IsPositive() {
		return fmt.Errorf("invoicing: line quantity %s: %w", in.Quantity, shared.ErrInvalidAmount)
	}
	if in.UnitPrice.IsNegative() {
		return fmt.Errorf("invoicing: line unit price %s: %w", in.UnitPrice, shared.ErrInvalidAmount)
	}
	return nil
}

func (s *Service) tax(applies *bool, rate *decimal.Decimal) (bool, decimal.Decimal, error) {
	a, r := true, s.taxRate
	if applies != nil {
		a = *applies
	}
	if rate != nil {
		r = *rate
	}
	if r.IsNegative() || r.GreaterThan(hundred) {
		return false, decimal.Zero, fmt.Errorf("invoicing: tax rate %s: %w", r, shared.ErrValidation)
	}
	return a, r, nil
}

func newLine(docID int64, in LineInput) Line {
	return RecomputeLine(Line{DocumentID: docID, Description: in.Description, Unit: in.Unit, Quantity: in.Quantity, UnitPrice: in.UnitPrice})
}

// CreateQuote opens a draft quote with a fresh DEV code.
func (s *Service) CreateQuote(ctx context.Context, in QuoteInput) (Quote, []Line, error) {
	if in.CustomerID == 0 || in.ActorID == 0 {
		return Quote{}, nil, fmt.Errorf("invoicing: customer and actor required: %w", shared.ErrValidation)
	}
	for _, l := range in.Lines {
		if err := validateLine(l); err != nil {
			return Quote{}, nil, err
		}
	}
	applies, rate, err := s.tax(in.AppliesTax, in.TaxRate)
	if err != nil {
		return Quote{}, nil, err
	}
	issue := in.IssueDate
	if issue.IsZero() {
		issue = s.now()
	}
	validity := in.ValidityDate
	if validity.IsZero() {
		validity = issue.AddDate(0, 0, 30)
	}
	if validity.Before(issue) {
		return Quote{}, nil, fmt.Errorf("invoicing: validity before issue date: %w", shared.ErrValidation)
	}
	q := Quote{
		ProjectID:    in.ProjectID,
		CustomerID:   in.CustomerID,
		IssueDate:    issue,
		ValidityDate: validity,
		AppliesTax:   applies,
		TaxRate:      rate,
		Status:       QuoteDraft,
		PaymentTerms: in.PaymentTerms,
		Notes:        in.Notes,
		CreatedBy:    in.ActorID,
	}
	var lines []Line
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		code, err := s.codes.Next(ctx, tx.Counter(), sequence.KindQuote)
		if err != nil {
			return err
		}
		q.Code = code
		if q.ID, err = tx.InsertQuote(ctx, q); err != nil {
			return err
		}
		for _, li := range in.Lines {
			line := newLine(q.ID, li)
			if line.ID, err = tx.InsertQuoteLine(ctx, line); err != nil {
				return err
			}
			lines = append(lines, line)
		}
		q.AmountExclTax = ComputeTotals(lines, q.AppliesTax, q.TaxRate).ExclTax
		if err := tx.UpdateQuote(ctx, q); err != nil {
			return err
		}
		submit := approval.Step{From: QuoteDraft, To: QuoteDraft, Action: approval.ActionSubmit}
		return tx.Approvals().RecordApproval(ctx, approval.NewLog(QuoteModule, q.ID, submit, in.ActorID, ""))
	})
	if err != nil {
		return Quote{}, nil, err
	}
	return q, lines, nil
}

// AddQuoteLine appends a line to an open quote and recomputes its totals.
func (s *Service) AddQuoteLine(ctx context.Context, quoteID int64, in LineInput) (Quote, Line, error) {
	return s.editQuote(ctx, quoteID, 0, in)
}

// UpdateQuoteLine rewrites a line of an open quote and recomputes its totals.
func (s *Service) UpdateQuoteLine(ctx context.Context, quoteID, lineID int64, in LineInput) (Quote, Line, error) {
	return s.editQuote(ctx, quoteID, lineID, in)
}

func (s *Service) editQuote(ctx context.Context, quoteID, lineID int64, in LineInput) (Quote, Line, error) {
	if err := validateLine(in); err != nil {
		return Quote{}, Line{}, err
	}
	var q Quote
	var line Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var lines []Line
		var err error
		q, lines, err = tx.GetQuoteForUpdate(ctx, quoteID)
		if err != nil {
			return err
		}
		if q.Status != QuoteDraft && q.Status != QuoteSent {
			return fmt.Errorf("invoicing: edit %s quote: %w", q.Status, shared.ErrInvalidTransition)
		}
		lines, line, err = upsertLine(ctx, lines, quoteID, lineID, in, tx.InsertQuoteLine, tx.UpdateQuoteLine)
		if err != nil {
			return err
		}
		q.AmountExclTax = ComputeTotals(lines, q.AppliesTax, q.TaxRate).ExclTax
		q.UpdatedAt = s.now()
		return tx.UpdateQuote(ctx, q)
	})
	if err != nil {
		return Quote{}, Line{}, err
	}
	return q, line, nil
}

// upsertLine inserts a new line when lineID is zero, otherwise replaces the matching line.
func upsertLine(ctx context.Context, lines []Line, docID, lineID int64, in LineInput, insert func(context.Context, Line) (int64, error), update func(context.Context, Line) error) ([]Line, Line, error) {
	line := newLine(docID, in)
	if lineID == 0 {
		id, err := insert(ctx, line)
		if err != nil {
			return nil, Line{}, err
		}
		line.ID = id
		return append(lines, line), line, nil
	}
	for i := range lines {
		if lines[i].ID == lineID {
			line.ID = lineID
			lines[i] = line
			return lines, line, update(ctx, line)
		}
	}
	return nil, Line{}, fmt.Errorf("invoicing: line %d: %w", lineID, shared.ErrNotFound)
}

// TransitionQuote moves a quote along its commercial lifecycle.
func (s *Service) TransitionQuote(ctx context.Context, id int64, to approval.State, actor int64, note string) (Quote, error) {
	if actor == 0 {
		return Quote{}, fmt.Errorf("invoicing: actor required: %w", shared.ErrValidation)
	}
	var q Quote
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		q, _, err = tx.GetQuoteForUpdate(ctx, id)
		if err != nil {
			return err
		}
		q, err = s.moveQuote(ctx, tx, q, to, actor, note)
		return err
	})
	if err != nil {
		return Quote{}, err
	}
	return q, nil
}

func (s *Service) moveQuote(ctx context.Context, tx TxRepository, q Quote, to approval.State, actor int64, note string) (Quote, error) {
	step, err := QuoteWorkflow.Step(q.Status, to)
	if err != nil {
		return Quote{}, err
	}
	if to == QuoteAccepted && q.IsExpired(s.now()) {
		return Quote{}, fmt.Errorf("invoicing: accept expired quote %s: %w", q.Code, shared.ErrInvalidTransition)
	}
	q.Status = to
	q.UpdatedAt = s.now()
	if err := tx.UpdateQuote(ctx, q); err != nil {
		return Quote{}, err
	}
	if err := tx.Approvals().RecordApproval(ctx, approval.NewLog(QuoteModule, q.ID, step, actor, note)); err != nil {
		return Quote{}, err
	}
	return q, nil
}

// CreateInvoice issues an invoice with a fresh FACT code.
func (s *Service) CreateInvoice(ctx context.Context, in InvoiceInput) (Invoice, []Line, error) {
	if in.CustomerID == 0 || in.ActorID == 0 {
		return Invoice{}, nil, fmt.Errorf("invoicing: customer and actor required: %w", shared.ErrValidation)
	}
	for _, l := range in.Lines {
		if err := validateLine(l); err != nil {
			return Invoice{}, nil, err
		}
	}
	applies, rate, err := s.tax(in.AppliesTax, in.TaxRate)
	if err != nil {
		return Invoice{}, nil, err
	}
	inv, err := s.newInvoice(in.ProjectID, in.CustomerID, in.IssueDate, in.DueDate, applies, rate, in.ActorID)
	if err != nil {
		return Invoice{}, nil, err
	}
	inv.PaymentTerms, inv.Notes = in.PaymentTerms, in.Notes
	var lines []Line
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, lines, err = s.insertInvoice(ctx, tx, inv, in.Lines)
		return err
	})
	if err != nil {
		return Invoice{}, nil, err
	}
	return inv, lines, nil
}

// CreateInvoiceFromQuote issues an invoice copying the lines and tax settings of an
// accepted quote. The quote is marked won.
func (s *Service) CreateInvoiceFromQuote(ctx context.Context, quoteID int64, in FromQuoteInput) (Invoice, []Line, error) {
	if in.ActorID == 0 {
		return Invoice{}, nil, fmt.Errorf("invoicing: actor required: %w", shared.ErrValidation)
	}
	var inv Invoice
	var lines []Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, qLines, err := tx.GetQuoteForUpdate(ctx, quoteID)
		if err != nil {
			return err
		}
		if q.Status != QuoteAccepted {
			return fmt.Errorf("invoicing: invoice %s quote: %w", q.Status, shared.ErrInvalidTransition)
		}
		inv, err = s.newInvoice(q.ProjectID, q.CustomerID, in.IssueDate, in.DueDate, q.AppliesTax, q.TaxRate, in.ActorID)
		if err != nil {
			return err
		}
		inv.QuoteID = &q.ID
		inv.PaymentTerms = q.PaymentTerms
		inv.Notes = fmt.Sprintf("Devis %s", q.Code)
		copied := make([]LineInput, 0, len(qLines))
		for _, l := range qLines {
			copied = append(copied, LineInput{Description: l.Description, Unit: l.Unit, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
		}
		if inv, lines, err = s.insertInvoice(ctx, tx, inv, copied); err != nil {
			return err
		}
		_, err = s.moveQuote(ctx, tx, q, QuoteWon, in.ActorID, inv.Code)
		return err
	})
	if err != nil {
		return Invoice{}, nil, err
	}
	return inv, lines, nil
}

func (s *Service) newInvoice(projectID *int64, customerID int64, issue, due time.Time, applies bool, rate decimal.Decimal, actor int64) (Invoice, error) {
	if issue.IsZero() {
		issue = s.now()
	}
	if due.IsZero() {
		due = issue.AddDate(0, 0, 30)
	}
	if due.Before(issue) {
		return Invoice{}, fmt.Errorf("invoicing: due before issue date: %w", shared.ErrValidation)
	}
	return Invoice{
		ProjectID:  projectID,
		CustomerID: customerID,
		IssueDate:  issue,
		DueDate:    due,
		AppliesTax: applies,
		TaxRate:    rate,
		AmountPaid: decimal.Zero,
		CreatedBy:  actor,
	}, nil
}

func (s *Service) insertInvoice(ctx context.Context, tx TxRepository, inv Invoice, in []LineInput) (Invoice, []Line, error) {
	code, err := s.codes.Next(ctx, tx.Counter(), sequence.KindInvoice)
	if err != nil {
		return Invoice{}, nil, err
	}
	inv.Code = code
	inv.Status = InvoiceUnpaid
	if inv.ID, err = tx.InsertInvoice(ctx, inv); err != nil {
		return Invoice{}, nil, err
	}
	lines := make([]Line, 0, len(in))
	for _, li := range in {
		line := newLine(inv.ID, li)
		if line.ID, err = tx.InsertInvoiceLine(ctx, line); err != nil {
			return Invoice{}, nil, err
		}
		lines = append(lines, line)
	}
	inv, err = s.persistAmounts(ctx, tx, inv, lines, inv.AmountPaid)
	return inv, lines, err
}

// persistAmounts re-derives the excl-tax amount and the status and writes them.
func (s *Service) persistAmounts(ctx context.Context, tx TxRepository, inv Invoice, lines []Line, paid decimal.Decimal) (Invoice, error) {
	totals := ComputeTotals(lines, inv.AppliesTax, inv.TaxRate)
	inv.AmountExclTax = totals.ExclTax
	inv.AmountPaid = paid
	inv.Status = DeriveStatus(paid, totals.InclTax, inv.DueDate, s.now())
	inv.UpdatedAt = s.now()
	if err := tx.UpdateInvoiceAmounts(ctx, inv); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// AddInvoiceLine appends a line and re-derives the invoice amounts and status.
func (s *Service) AddInvoiceLine(ctx context.Context, invoiceID int64, in LineInput) (Invoice, Line, error) {
	return s.editInvoice(ctx, invoiceID, 0, in)
}

// UpdateInvoiceLine rewrites a line and re-derives the invoice amounts and status.
func (s *Service) UpdateInvoiceLine(ctx context.Context, invoiceID, lineID int64, in LineInput) (Invoice, Line, error) {
	return s.editInvoice(ctx, invoiceID, lineID, in)
}

func (s *Service) editInvoice(ctx context.Context, invoiceID, lineID int64, in LineInput) (Invoice, Line, error) {
	if err := validateLine(in); err != nil {
		return Invoice{}, Line{}, err
	}
	var inv Invoice
	var line Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var lines []Line
		var err error
		inv, lines, err = tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if lines, line, err = upsertLine(ctx, lines, invoiceID, lineID, in, tx.InsertInvoiceLine, tx.UpdateInvoiceLine); err != nil {
			return err
		}
		inv, err = s.persistAmounts(ctx, tx, inv, lines, inv.AmountPaid)
		return err
	})
	if err != nil {
		return Invoice{}, Line{}, err
	}
	return inv, line, nil
}

// RecordPayment stores a payment and re-derives amount paid and status from all payments.
func (s *Service) RecordPayment(ctx context.Context, invoiceID int64, in PaymentInput) (Invoice, Payment, error) {
	if !in.Amount.IsPositive() {
		return Invoice{}, Payment{}, fmt.Errorf("invoicing: payment amount %s: %w", in.Amount, shared.ErrInvalidAmount)
	}
	if !in.Method.Valid() {
		return Invoice{}, Payment{}, fmt.Errorf("invoicing: payment method %q: %w", in.Method, shared.ErrValidation)
	}
	date := in.Date
	if date.IsZero() {
		date = s.now()
	}
	p := Payment{
		InvoiceID: invoiceID,
		Date:      date,
		Amount:    in.Amount,
		Method:    in.Method,
		Reference: in.Reference,
		Notes:     in.Notes,
		CreatedBy: in.ActorID,
	}
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var lines []Line
		var err error
		inv, lines, err = tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if p.ID, err = tx.InsertPayment(ctx, p); err != nil {
			return err
		}
		paid, err := tx.SumPayments(ctx, invoiceID)
		if err != nil {
			return err
		}
		inv, err = s.persistAmounts(ctx, tx, inv, lines, paid)
		return err
	})
	if err != nil {
		return Invoice{}, Payment{}, err
	}
	return inv, p, nil
}

// RefreshOverdue re-derives the status of unpaid invoices past their due date. It
// returns how many invoices were checked.
func (s *Service) RefreshOverdue(ctx context.Context) (int, error) {
	ids, err := s.repo.ListOverdueCandidates(ctx, s.now())
	if err != nil {
		return 0, err
	}
	for i, id := range ids {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			inv, lines, err := tx.GetInvoiceForUpdate(ctx, id)
			if err != nil {
				return err
			}
			_, err = s.persistAmounts(ctx, tx, inv, lines, inv.AmountPaid)
			return err
		})
		if err != nil {
			s.logger.Error("refresh invoice status", slog.Int64("invoice_id", id), slog.Any("error", err))
			return i, err
		}
	}
	return len(ids), nil
}

// GetQuote returns a quote with its lines and its expiry as of today.
func (s *Service) GetQuote(ctx context.Context, id int64) (Quote, []Line, error) {
	q, lines, err := s.repo.GetQuote(ctx, id)
	if err != nil {
		return Quote{}, nil, err
	}
	q.Expired = q.IsExpired(s.now())
	return q, lines, nil
}

// ListQuotes returns quotes with their expiry as of today.
func (s *Service) ListQuotes(ctx context.Context, filter QuoteFilter) ([]Quote, error) {
	if filter.Limit <= 0 {
		filter.Limit = 200
	}
	items, err := s.repo.ListQuotes(ctx, filter)
	if err != nil {
		return nil, err
	}
	today := s.now()
	for i := range items {
		items[i].Expired = items[i].IsExpired(today)
	}
	return items, nil
}

// GetInvoice returns an invoice with its lines.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, []Line, error) {
	return s.repo.GetInvoice(ctx, id)
}

// ListInvoices returns invoices.
func (s *Service) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	if filter.Limit <= 0 {
		filter.Limit = 200
	}
	return s.repo.ListInvoices(ctx, filter)
}

// ListPayments returns the payments of an invoice.
func (s *Service) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	return s.repo.ListPayments(ctx, invoiceID)
}

// Aging buckets the outstanding amounts of all open invoices as of asOf.
func (s *Service) Aging(ctx context.Context, asOf time.Time) (AgingBucket, error) {
	invoices, err := s.repo.ListOutstanding(ctx)
	if err != nil {
		return AgingBucket{}, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	return CalculateAging(invoices, asOf), nil
}

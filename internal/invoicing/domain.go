package invoicing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/projectledger/internal/approval"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// QuoteModule identifies quotes in approval logs.
const QuoteModule = "QUOTE"

// InvoiceModule scopes payment idempotency keys.
const InvoiceModule = "INVOICE"

// Quote statuses.
const (
	QuoteDraft    approval.State = "DRAFT"
	QuoteSent     approval.State = "SENT"
	QuoteAccepted approval.State = "ACCEPTED"
	QuoteRejected approval.State = "REJECTED"
	QuoteExpired  approval.State = "EXPIRED"
	QuoteWon      approval.State = "WON"
	QuoteLost     approval.State = "LOST"
)

// QuoteWorkflow is the commercial lifecycle of a quote.
var QuoteWorkflow = approval.NewMachine(approval.Definition{
	Module:   QuoteModule,
	Initial:  QuoteDraft,
	Approved: QuoteAccepted,
	Edges: map[approval.State][]approval.State{
		QuoteDraft:    {QuoteSent, QuoteAccepted, QuoteRejected},
		QuoteSent:     {QuoteAccepted, QuoteRejected, QuoteExpired},
		QuoteAccepted: {QuoteWon, QuoteLost},
	},
	Actions: map[approval.State]approval.Action{QuoteRejected: approval.ActionReject},
})

// InvoiceStatus is derived from payments and the due date, never set directly.
type InvoiceStatus string

const (
	InvoiceUnpaid  InvoiceStatus = "UNPAID"
	InvoicePartial InvoiceStatus = "PARTIAL"
	InvoicePaid    InvoiceStatus = "PAID"
	InvoiceOverdue InvoiceStatus = "OVERDUE"
)

// Line is a billed item of a quote or invoice.
type Line struct {
	ID          int64           `json:"id"`
	DocumentID  int64           `json:"document_id"`
	Description string          `json:"description"`
	Unit        string          `json:"unit"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// LineInput describes a billed item.
type LineInput struct {
	Description string
	Unit        string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// Totals are the excl-tax, tax and incl-tax amounts of a document.
type Totals struct {
	ExclTax decimal.Decimal `json:"amount_excl_tax"`
	Tax     decimal.Decimal `json:"tax_amount"`
	InclTax decimal.Decimal `json:"amount_incl_tax"`
}

// Quote is a priced proposal to a customer.
type Quote struct {
	ID            int64           `json:"id"`
	Code          string          `json:"code"`
	ProjectID     *int64          `json:"project_id,omitempty"`
	CustomerID    int64           `json:"customer_id"`
	IssueDate     time.Time       `json:"issue_date"`
	ValidityDate  time.Time       `json:"validity_date"`
	AmountExclTax decimal.Decimal `json:"amount_excl_tax"`
	AppliesTax    bool            `json:"applies_tax"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	Status        approval.State  `json:"status"`
	// Expired is computed on read and never persisted; Status stays as stored.
	Expired      bool      `json:"is_expired"`
	PaymentTerms string    `json:"payment_terms"`
	Notes        string    `json:"notes"`
	CreatedBy    int64     `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Totals derives tax amounts from the stored excl-tax amount.
func (q Quote) Totals() Totals {
	return applyTax(q.AmountExclTax, q.AppliesTax, q.TaxRate)
}

// IsExpired reports whether today is past the validity date.
func (q Quote) IsExpired(today time.Time) bool {
	return dateOnly(today).After(dateOnly(q.ValidityDate))
}

// Invoice bills a customer. AmountPaid is the sum of its payments.
type Invoice struct {
	ID            int64           `json:"id"`
	Code          string          `json:"code"`
	ProjectID     *int64          `json:"project_id,omitempty"`
	CustomerID    int64           `json:"customer_id"`
	QuoteID       *int64          `json:"quote_id,omitempty"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       time.Time       `json:"due_date"`
	AmountExclTax decimal.Decimal `json:"amount_excl_tax"`
	AppliesTax    bool            `json:"applies_tax"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	Status        InvoiceStatus   `json:"status"`
	PaymentTerms  string          `json:"payment_terms"`
	Notes         string          `json:"notes"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Totals derives tax amounts from the stored excl-tax amount.
func (inv Invoice) Totals() Totals {
	return applyTax(inv.AmountExclTax, inv.AppliesTax, inv.TaxRate)
}

// Remaining is incl-tax minus paid. It is negative on overpayment.
func (inv Invoice) Remaining() decimal.Decimal {
	return inv.Totals().InclTax.Sub(inv.AmountPaid)
}

// DaysOverdue counts whole days past the due date of an invoice not fully paid.
func (inv Invoice) DaysOverdue(today time.Time) int {
	if inv.AmountPaid.GreaterThanOrEqual(inv.Totals().InclTax) {
		return 0
	}
	d, due := dateOnly(today), dateOnly(inv.DueDate)
	if !d.After(due) {
		return 0
	}
	return int(d.Sub(due).Hours() / 24)
}

// Payment is money received against an invoice.
type Payment struct {
	ID        int64                `json:"id"`
	InvoiceID int64                `json:"invoice_id"`
	Date      time.Time            `json:"date"`
	Amount    decimal.Decimal      `json:"amount"`
	Method    shared.PaymentMethod `json:"method"`
	Reference string               `json:"reference"`
	Notes     string               `json:"notes"`
	CreatedBy int64                `json:"created_by"`
	CreatedAt time.Time            `json:"created_at"`
}

// QuoteInput opens a quote. A nil TaxRate means the service default; a nil AppliesTax means true.
type QuoteInput struct {
	ProjectID    *int64
	CustomerID   int64
	IssueDate    time.Time
	ValidityDate time.Time
	AppliesTax   *bool
	TaxRate      *decimal.Decimal
	PaymentTerms string
	Notes        string
	Lines        []LineInput
	ActorID      int64
}

// InvoiceInput opens an invoice.
type InvoiceInput struct {
	ProjectID    *int64
	CustomerID   int64
	IssueDate    time.Time
	DueDate      time.Time
	AppliesTax   *bool
	TaxRate      *decimal.Decimal
	PaymentTerms string
	Notes        string
	Lines        []LineInput
	ActorID      int64
}

// FromQuoteInput carries the invoice fields a quote does not provide.
type FromQuoteInput struct {
	IssueDate time.Time
	DueDate   time.Time
	ActorID   int64
}

// PaymentInput records a payment.
type PaymentInput struct {
	Date      time.Time
	Amount    decimal.Decimal
	Method    shared.PaymentMethod
	Reference string
	Notes     string
	ActorID   int64
}

// QuoteFilter narrows quote listings.
type QuoteFilter struct {
	ProjectID int64
	Status    approval.State
	Limit     int
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	ProjectID int64
	Status    InvoiceStatus
	Limit     int
}

// AgingBucket sums outstanding amounts by days past due.
type AgingBucket struct {
	Current   decimal.Decimal `json:"current"`
	Bucket30  decimal.Decimal `json:"bucket_30"`
	Bucket60  decimal.Decimal `json:"bucket_60"`
	Bucket90  decimal.Decimal `json:"bucket_90"`
	Bucket120 decimal.Decimal `json:"bucket_120"`
}

var hundred = decimal.NewFromInt(100)

// RecomputeLine sets amount = quantity x unit price.
func RecomputeLine(l Line) Line {
	l.Amount = l.Quantity.Mul(l.UnitPrice).Round(2)
	return l
}

// ComputeTotals sums line amounts and applies tax at rate percent when appliesTax.
func ComputeTotals(lines []Line, appliesTax bool, rate decimal.Decimal) Totals {
	excl := decimal.Zero
	for _, l := range lines {
		excl = excl.Add(l.Amount)
	}
	return applyTax(excl, appliesTax, rate)
}

func applyTax(excl decimal.Decimal, appliesTax bool, rate decimal.Decimal) Totals {
	tax := decimal.Zero
	if appliesTax {
		tax = excl.Mul(rate).Div(hundred).Round(2)
	}
	return Totals{ExclTax: excl, Tax: tax, InclTax: excl.Add(tax)}
}

// DeriveStatus classifies an invoice from what was paid against what is owed.
func DeriveStatus(paid, inclTax decimal.Decimal, due, today time.Time) InvoiceStatus {
	switch {
	case paid.GreaterThanOrEqual(inclTax):
		return InvoicePaid
	case paid.IsPositive():
		return InvoicePartial
	case dateOnly(today).After(dateOnly(due)):
		return InvoiceOverdue
	default:
		return InvoiceUnpaid
	}
}

// CalculateAging groups the remaining amount of unpaid invoices by days overdue.
func CalculateAging(invoices []Invoice, asOf time.Time) AgingBucket {
	b := AgingBucket{Current: decimal.Zero, Bucket30: decimal.Zero, Bucket60: decimal.Zero, Bucket90: decimal.Zero, Bucket120: decimal.Zero}
	for _, inv := range invoices {
		remaining := inv.Remaining()
		if !remaining.IsPositive() {
			continue
		}
		switch days := inv.DaysOverdue(asOf); {
		case days <= 0:
			b.Current = b.Current.Add(remaining)
		case days <= 30:
			b.Bucket30 = b.Bucket30.Add(remaining)
		case days <= 60:
			b.Bucket60 = b.Bucket60.Add(remaining)
		case days <= 90:
			b.Bucket90 = b.Bucket90.Add(remaining)
		default:
			b.Bucket120 = b.Bucket120.Add(remaining)
		}
	}
	return b
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

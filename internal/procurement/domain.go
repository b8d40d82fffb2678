package procurement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/projectledger/internal/approval"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// Module identifies purchase orders in ledger sources and approval logs.
const Module = "PURCHASE_ORDER"

// LedgerCategory is the expense category charged when an order is validated.
const LedgerCategory = "Achat Matériaux"

// Purchase order lifecycle statuses.
const (
	StatusDraft     approval.State = "DRAFT"
	StatusValidated approval.State = "VALIDATED"
	StatusReceived  approval.State = "RECEIVED"
	StatusCancelled approval.State = "CANCELLED"
)

// Workflow is the purchase order machine. Validation charges the project; reception
// books the goods into stock.
var Workflow = approval.NewMachine(approval.Definition{
	Module:   Module,
	Initial:  StatusDraft,
	Approved: StatusValidated,
	Edges: map[approval.State][]approval.State{
		StatusDraft:     {StatusValidated, StatusCancelled},
		StatusValidated: {StatusReceived, StatusCancelled},
	},
	Actions: map[approval.State]approval.Action{
		StatusReceived:  approval.ActionReceive,
		StatusCancelled: approval.ActionCancel,
	},
})

// PurchaseOrder domain model.
type PurchaseOrder struct {
	ID                int64                `json:"id"`
	Code              string               `json:"code"`
	ProjectID         int64                `json:"project_id"`
	SupplierID        int64                `json:"supplier_id"`
	OrderDate         time.Time            `json:"order_date"`
	ReceivedDate      *time.Time           `json:"received_date,omitempty"`
	SupplierInvoiceNo string               `json:"supplier_invoice_no"`
	PaymentMethod     shared.PaymentMethod `json:"payment_method"`
	Total             decimal.Decimal      `json:"total"`
	Status            approval.State       `json:"status"`
	Notes             string               `json:"notes"`
	CreatedBy         int64                `json:"created_by"`
	ApprovedBy        *int64               `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time           `json:"approved_at,omitempty"`
}

// Line represents an ordered product.
type Line struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
	Notes     string          `json:"notes"`
}

// LineInput describes an order line.
type LineInput struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Notes     string          `json:"notes"`
}

// CreateInput describes a new order. An empty status means draft.
type CreateInput struct {
	ProjectID         int64                `json:"project_id"`
	SupplierID        int64                `json:"supplier_id"`
	OrderDate         time.Time            `json:"order_date"`
	SupplierInvoiceNo string               `json:"supplier_invoice_no"`
	PaymentMethod     shared.PaymentMethod `json:"payment_method"`
	Notes             string               `json:"notes"`
	Lines             []LineInput          `json:"lines,omitempty"`
	Status            approval.State       `json:"status"`
	ActorID           int64                `json:"-"`
}

// ListFilter narrows listings.
type ListFilter struct {
	ProjectID int64          `json:"project_id"`
	Status    approval.State `json:"status"`
	Limit     int            `json:"limit"`
}

// RecomputeLine sets amount = quantity x unit price.
func RecomputeLine(l Line) Line {
	l.Amount = l.Quantity.Mul(l.UnitPrice).Round(2)
	return l
}

// OrderTotal sums line amounts.
func OrderTotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}

package expenses

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/projectledger/internal/approval"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// Module identifies expenses in ledger sources and approval logs.
const Module = "EXPENSE"

const (
	StatusPending   approval.State = "PENDING"
	StatusValidated approval.State = "VALIDATED"
	StatusRejected  approval.State = "REJECTED"
)

// Workflow is the expense approval machine.
var Workflow = approval.NewMachine(approval.Definition{
	Module:   Module,
	Initial:  StatusPending,
	Approved: StatusValidated,
	Edges: map[approval.State][]approval.State{
		StatusPending: {StatusValidated, StatusRejected},
	},
	Actions: map[approval.State]approval.Action{StatusRejected: approval.ActionReject},
})

// Expense is a spending request on a project.
type Expense struct {
	ID                int64                `json:"id"`
	ProjectID         int64                `json:"project_id"`
	Category          string               `json:"category"`
	SupplierID        *int64               `json:"supplier_id,omitempty"`
	Date              time.Time            `json:"date"`
	Amount            decimal.Decimal      `json:"amount"`
	PaymentMethod     shared.PaymentMethod `json:"payment_method"`
	SupplierInvoiceNo string               `json:"supplier_invoice_no"`
	Description       string               `json:"description"`
	Status            approval.State       `json:"status"`
	CreatedBy         int64                `json:"created_by"`
	ApprovedBy        *int64               `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time           `json:"approved_at,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// CreateInput registers an expense. An empty status means pending.
type CreateInput struct {
	ProjectID         int64                `json:"project_id"`
	Category          string               `json:"category"`
	SupplierID        *int64               `json:"supplier_id,omitempty"`
	Date              time.Time            `json:"date"`
	Amount            decimal.Decimal      `json:"amount"`
	PaymentMethod     shared.PaymentMethod `json:"payment_method"`
	SupplierInvoiceNo string               `json:"supplier_invoice_no"`
	Description       string               `json:"description"`
	Status            approval.State       `json:"status"`
	ActorID           int64                `json:"-"`
}

// UpdateInput edits a pending expense.
type UpdateInput struct {
	Category          string               `json:"category"`
	SupplierID        *int64               `json:"supplier_id,omitempty"`
	Date              time.Time            `json:"date"`
	Amount            decimal.Decimal      `json:"amount"`
	PaymentMethod     shared.PaymentMethod `json:"payment_method"`
	SupplierInvoiceNo string               `json:"supplier_invoice_no"`
	Description       string               `json:"description"`
}

// ListFilter narrows listings.
type ListFilter struct {
	ProjectID int64          `json:"project_id"`
	Status    approval.State `json:"status"`
	Limit     int            `json:"limit"`
}

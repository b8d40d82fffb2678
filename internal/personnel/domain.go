package personnel

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/projectledger/internal/approval"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// Module identifies personnel payments in ledger sources and approval logs.
const Module = "PERSONNEL_PAYMENT"

// LedgerCategory is the expense category of validated payments.
const LedgerCategory = "Paiement Personnel"

const (
	StatusPending   approval.State = "PENDING"
	StatusValidated approval.State = "VALIDATED"
	StatusRejected  approval.State = "REJECTED"
)

// Workflow is the personnel payment approval machine.
var Workflow = approval.NewMachine(approval.Definition{
	Module:   Module,
	Initial:  StatusPending,
	Approved: StatusValidated,
	Edges: map[approval.State][]approval.State{
		StatusPending: {StatusValidated, StatusRejected},
	},
	Actions: map[approval.State]approval.Action{StatusRejected: approval.ActionReject},
})

// Worker is a member of site personnel.
type Worker struct {
	ID           int64            `json:"id"`
	FirstName    string           `json:"first_name"`
	LastName     string           `json:"last_name"`
	Role         string           `json:"role"`
	ContractType string           `json:"contract_type"`
	DailySalary  decimal.Decimal  `json:"daily_salary"`
	// AgreedSalary is the total negotiated for the engagement, if any.
	AgreedSalary *decimal.Decimal `json:"agreed_salary,omitempty"`
	Active       bool             `json:"active"`
	CreatedAt    time.Time        `json:"created_at"`
}

// FullName returns "First Last".
func (w Worker) FullName() string {
	if w.FirstName == "" {
		return w.LastName
	}
	return w.FirstName + " " + w.LastName
}

// WorkerInput registers a worker.
type WorkerInput struct {
	FirstName    string           `json:"first_name"`
	LastName     string           `json:"last_name"`
	Role         string           `json:"role"`
	ContractType string           `json:"contract_type"`
	DailySalary  decimal.Decimal  `json:"daily_salary"`
	AgreedSalary *decimal.Decimal `json:"agreed_salary,omitempty"`
}

// Payment is a salary payment request charged to a project.
type Payment struct {
	ID            int64                `json:"id"`
	WorkerID      int64                `json:"worker_id"`
	ProjectID     int64                `json:"project_id"`
	Date          time.Time            `json:"date"`
	Amount        decimal.Decimal      `json:"amount"`
	Days          int                  `json:"days"`
	PaymentMethod shared.PaymentMethod `json:"payment_method"`
	Description   string               `json:"description"`
	Status        approval.State       `json:"status"`
	CreatedBy     int64                `json:"created_by"`
	ApprovedBy    *int64               `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time           `json:"approved_at,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

// PaymentInput registers a payment. An empty status means pending.
type PaymentInput struct {
	WorkerID      int64                `json:"worker_id"`
	ProjectID     int64                `json:"project_id"`
	Date          time.Time            `json:"date"`
	Amount        decimal.Decimal      `json:"amount"`
	Days          int                  `json:"days"`
	PaymentMethod shared.PaymentMethod `json:"payment_method"`
	Description   string               `json:"description"`
	Status        approval.State       `json:"status"`
	ActorID       int64                `json:"-"`
}

// PaymentUpdate carries the editable fields of a pending payment.
type PaymentUpdate struct {
	Date          time.Time
	Amount        decimal.Decimal
	Days          int
	PaymentMethod shared.PaymentMethod
	Description   string
}

// SalaryBalance is what remains owed against an agreed salary.
type SalaryBalance struct {
	WorkerID  int64           `json:"worker_id"`
	Agreed    decimal.Decimal `json:"agreed"`
	Paid      decimal.Decimal `json:"paid"`
	Remaining decimal.Decimal `json:"remaining"`
	PaidPct   decimal.Decimal `json:"paid_pct"`
}

var hundred = decimal.NewFromInt(100)

// ComputeBalance derives the balance from the agreed salary and validated payments.
// Without an agreed salary everything is zero.
func ComputeBalance(agreed *decimal.Decimal, paid decimal.Decimal) SalaryBalance {
	if agreed == nil {
		return SalaryBalance{Agreed: decimal.Zero, Paid: paid, Remaining: decimal.Zero, PaidPct: decimal.Zero}
	}
	pct := decimal.Zero
	if agreed.IsPositive() {
		pct = paid.Div(*agreed).Mul(hundred).Round(2)
	}
	return SalaryBalance{Agreed: *agreed, Paid: paid, Remaining: agreed.Sub(paid), PaidPct: pct}
}

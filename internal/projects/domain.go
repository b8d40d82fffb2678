package projects

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status of a project.
type Status string

const (
	StatusPlanned   Status = "PLANNED"
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPlanned, StatusActive, StatusSuspended, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Project is a construction job with an immutable planned budget.
type Project struct {
	ID             int64           `json:"id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	ClientID       *int64          `json:"client_id,omitempty"`
	PlannedBudget  decimal.Decimal `json:"planned_budget"`
	Status         Status          `json:"status"`
	StartDate      time.Time       `json:"start_date"`
	PlannedEndDate *time.Time      `json:"planned_end_date,omitempty"`
	ActualEndDate  *time.Time      `json:"actual_end_date,omitempty"`
	CreatedBy      int64           `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CreateInput is used to open a project.
type CreateInput struct {
	Name           string          `json:"name"`
	ClientID       *int64          `json:"client_id,omitempty"`
	PlannedBudget  decimal.Decimal `json:"planned_budget"`
	Status         Status          `json:"status"`
	StartDate      time.Time       `json:"start_date"`
	PlannedEndDate *time.Time      `json:"planned_end_date,omitempty"`
	CreatedBy      int64           `json:"-"`
}

// ListFilter narrows project listings.
type ListFilter struct {
	Status Status `json:"status"`
	Limit  int    `json:"limit"`
}

// Summary is the budget position of a project computed from validated ledger entries.
type Summary struct {
	ProjectID         int64           `json:"project_id"`
	PlannedBudget     decimal.Decimal `json:"planned_budget"`
	TotalDeposits     decimal.Decimal `json:"total_deposits"`
	TotalWithdrawals  decimal.Decimal `json:"total_withdrawals"`
	TotalExpenses     decimal.Decimal `json:"total_expenses"`
	CashBalance       decimal.Decimal `json:"cash_balance"`
	AvailableBudget   decimal.Decimal `json:"available_budget"`
	BudgetConsumedPct decimal.Decimal `json:"budget_consumed_pct"`
	IsOverBudget      bool            `json:"is_over_budget"`
}

var hundred = decimal.NewFromInt(100)

// Aggregate derives the budget figures from the stored baseline and ledger totals.
func Aggregate(planned, deposits, withdrawals, expenses decimal.Decimal) Summary {
	available := planned.Add(deposits).Sub(expenses)
	funded := planned.Add(deposits)
	pct := decimal.Zero
	if !funded.IsZero() {
		pct = expenses.Div(funded).Mul(hundred).Round(2)
	}
	return Summary{
		PlannedBudget:     planned,
		TotalDeposits:     deposits,
		TotalWithdrawals:  withdrawals,
		TotalExpenses:     expenses,
		CashBalance:       deposits.Sub(withdrawals),
		AvailableBudget:   available,
		BudgetConsumedPct: pct,
		IsOverBudget:      available.IsNegative(),
	}
}

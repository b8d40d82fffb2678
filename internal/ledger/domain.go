package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies money movement on a project.
type Kind string

const (
	// KindDeposit is money entering the project.
	KindDeposit Kind = "DEPOSIT"
	// KindWithdrawal is cash taken out of the project.
	KindWithdrawal Kind = "WITHDRAWAL"
	// KindExpense is money spent on the project.
	KindExpense Kind = "EXPENSE"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindExpense:
		return true
	}
	return false
}

// Status of an entry. Only validated entries count toward aggregates.
type Status string

const (
	StatusValidated Status = "VALIDATED"
	StatusPending   Status = "PENDING"
	StatusRejected  Status = "REJECTED"
)

// Entry is an immutable record of money movement.
type Entry struct {
	ID            int64           `json:"id"`
	ProjectID     int64           `json:"project_id"`
	Kind          Kind            `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	Category      string          `json:"category"`
	PaymentMethod string          `json:"payment_method"`
	Reference     string          `json:"reference"`
	Description   string          `json:"description"`
	Status        Status          `json:"status"`
	SourceModule  string          `json:"source_module"`
	SourceID      int64           `json:"source_id"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// AppendInput describes a new entry.
type AppendInput struct {
	ProjectID     int64           `json:"project_id"`
	Kind          Kind            `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	Category      string          `json:"category"`
	PaymentMethod string          `json:"payment_method"`
	Reference     string          `json:"reference"`
	Description   string          `json:"description"`
	// SourceModule and SourceID identify the request that emitted the entry.
	SourceModule  string          `json:"source_module"`
	SourceID      int64           `json:"source_id"`
	CreatedBy     int64           `json:"-"`
}

// ListFilter narrows entry listings.
type ListFilter struct {
	ProjectID int64     `json:"project_id"`
	Kind      Kind      `json:"kind"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Limit     int       `json:"limit"`
}

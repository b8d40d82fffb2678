// Package ledger records deposits, withdrawals and expenses per project.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/projectledger/internal/shared"
)

// Writer appends entries. Transaction-bound implementations let request workflows
// emit entries atomically with their own state change.
type Writer interface {
	InsertEntry(ctx context.Context, entry Entry) (int64, error)
}

// Reader sums entries.
type Reader interface {
	SumEntries(ctx context.Context, projectID int64, kind Kind, status Status) (decimal.Decimal, error)
}

// Append validates and writes a validated entry.
func Append(ctx context.Context, w Writer, in AppendInput) (Entry, error) {
	if in.ProjectID == 0 {
		return Entry{}, fmt.Errorf("ledger: project required: %w", shared.ErrValidation)
	}
	if !in.Kind.Valid() {
		return Entry{}, fmt.Errorf("ledger: unknown kind %q: %w", in.Kind, shared.ErrValidation)
	}
	if !in.Amount.IsPositive() {
		return Entry{}, fmt.Errorf("ledger: amount %s: %w", in.Amount, shared.ErrInvalidAmount)
	}
	date := in.Date
	if date.IsZero() {
		date = time.Now()
	}
	entry := Entry{
		ProjectID:     in.ProjectID,
		Kind:          in.Kind,
		Amount:        in.Amount,
		Date:          date,
		Category:      in.Category,
		PaymentMethod: in.PaymentMethod,
		Reference:     in.Reference,
		Description:   in.Description,
		Status:        StatusValidated,
		SourceModule:  in.SourceModule,
		SourceID:      in.SourceID,
		CreatedBy:     in.CreatedBy,
	}
	id, err := w.InsertEntry(ctx, entry)
	if err != nil {
		return Entry{}, err
	}
	entry.ID = id
	return entry, nil
}

// Sum totals the validated entries of kind for a project.
func Sum(ctx context.Context, r Reader, projectID int64, kind Kind) (decimal.Decimal, error) {
	return r.SumEntries(ctx, projectID, kind, StatusValidated)
}

package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
)

// OverdueRefresher is satisfied by invoicing.Service.
type OverdueRefresher interface {
	RefreshOverdue(ctx context.Context) (int, error)
}

// InvoiceOverdueJob flags unpaid invoices past their due date.
type InvoiceOverdueJob struct {
	invoices OverdueRefresher
	guard    *Guard
}

// NewInvoiceOverdueJob wires the job.
func NewInvoiceOverdueJob(invoices OverdueRefresher, guard *Guard) *InvoiceOverdueJob {
	return &InvoiceOverdueJob{invoices: invoices, guard: guard}
}

// Handle processes TaskInvoiceOverdue.
func (j *InvoiceOverdueJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.invoices == nil {
		return errors.New("invoice overdue: handler not configured")
	}
	if _, err := decodePayload(t); err != nil {
		return err
	}
	return j.guard.Run(ctx, TaskInvoiceOverdue, j.invoices.RefreshOverdue)
}

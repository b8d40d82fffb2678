// Package personnel tracks site workers and their salary payments. A validated payment
// is charged to its project as one ledger expense.
package personnel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/projectledger/internal/approval"
	"github.com/odyssey-erp/projectledger/internal/ledger"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetWorker(ctx context.Context, id int64) (Worker, error)
	GetPayment(ctx context.Context, id int64) (Payment, error)
	ListPayments(ctx context.Context, workerID int64) ([]Payment, error)
	SumValidatedPayments(ctx context.Context, workerID int64) (decimal.Decimal, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	Ledger() ledger.TxRepository
	Approvals() approval.Recorder
	InsertWorker(ctx context.Context, w Worker) (int64, error)
	GetWorker(ctx context.Context, id int64) (Worker, error)
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	GetPaymentForUpdate(ctx context.Context, id int64) (Payment, error)
	UpdatePayment(ctx context.Context, p Payment) error
	UpdatePaymentStatus(ctx context.Context, id int64, status approval.State, decision approval.Decision) error
}

// Service coordinates personnel operations.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// RegisterWorker adds a worker.
func (s *Service) RegisterWorker(ctx context.Context, in WorkerInput) (Worker, error) {
	if strings.TrimSpace(in.LastName) == "" {
		return Worker{}, fmt.Errorf("personnel: last name required: %w", shared.ErrValidation)
	}
	if in.DailySalary.IsNegative() || (in.AgreedSalary != nil && in.AgreedSalary.IsNegative()) {
		return Worker{}, fmt.Errorf("personnel: salary: %w", shared.ErrInvalidAmount)
	}
	w := Worker{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         in.Role,
		ContractType: in.ContractType,
		DailySalary:  in.DailySalary,
		AgreedSalary: in.AgreedSalary,
		Active:       true,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertWorker(ctx, w)
		w.ID = id
		return err
	})
	if err != nil {
		return Worker{}, err
	}
	return w, nil
}

// CreatePayment registers a payment. A payment created as validated is charged once.
func (s *Service) CreatePayment(ctx context.Context, in PaymentInput) (Payment, error) {
	if in.WorkerID == 0 || in.ProjectID == 0 || in.ActorID == 0 {
		return Payment{}, fmt.Errorf("personnel: worker, project and actor required: %w", shared.ErrValidation)
	}
	if !in.Amount.IsPositive() {
		return Payment{}, fmt.Errorf("personnel: amount %s: %w", in.Amount, shared.ErrInvalidAmount)
	}
	if in.Days < 0 {
		return Payment{}, fmt.Errorf("personnel: days %d: %w", in.Days, shared.ErrValidation)
	}
	if in.PaymentMethod != "" && !in.PaymentMethod.Valid() {
		return Payment{}, fmt.Errorf("personnel: payment method %q: %w", in.PaymentMethod, shared.ErrValidation)
	}
	step, err := Workflow.Birth(in.Status)
	if err != nil {
		return Payment{}, err
	}
	date := in.Date
	if date.IsZero() {
		date = s.now()
	}
	p := Payment{
		WorkerID:      in.WorkerID,
		ProjectID:     in.ProjectID,
		Date:          date,
		Amount:        in.Amount,
		Days:          in.Days,
		PaymentMethod: in.PaymentMethod,
		Description:   in.Description,
		Status:        step.To,
		CreatedBy:     in.ActorID,
	}
	decision := approval.Decide(step, in.ActorID, s.now())
	p.ApprovedBy, p.ApprovedAt = decision.By, decision.At
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		worker, err := tx.GetWorker(ctx, p.WorkerID)
		if err != nil {
			return err
		}
		if err := tx.Ledger().LockProject(ctx, p.ProjectID); err != nil {
			return err
		}
		id, err := tx.InsertPayment(ctx, p)
		if err != nil {
			return err
		}
		p.ID = id
		submit := approval.Step{From: Workflow.Initial(), To: Workflow.Initial(), Action: approval.ActionSubmit}
		if err := tx.Approvals().RecordApproval(ctx, approval.NewLog(Module, id, submit, in.ActorID, "")); err != nil {
			return err
		}
		if !step.Decides {
			return nil
		}
		return s.apply(ctx, tx, worker, p, step, in.ActorID, "")
	})
	if err != nil {
		return Payment{}, err
	}
	return p, nil
}

// Transition moves a payment to status to.
func (s *Service) Transition(ctx context.Context, id int64, to approval.State, actor int64, note string) (Payment, error) {
	if actor == 0 {
		return Payment{}, fmt.Errorf("personnel: actor required: %w", shared.ErrValidation)
	}
	var p Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		p, err = tx.GetPaymentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		step, err := Workflow.Step(p.Status, to)
		if err != nil {
			return err
		}
		worker, err := tx.GetWorker(ctx, p.WorkerID)
		if err != nil {
			return err
		}
		decision := approval.Decide(step, actor, s.now())
		if err := tx.UpdatePaymentStatus(ctx, id, step.To, decision); err != nil {
			return err
		}
		p.Status = step.To
		if decision.By != nil {
			p.ApprovedBy, p.ApprovedAt = decision.By, decision.At
		}
		return s.apply(ctx, tx, worker, p, step, actor, note)
	})
	if err != nil {
		return Payment{}, err
	}
	return p, nil
}

// UpdatePayment edits a pending payment. Edits never charge the project.
func (s *Service) UpdatePayment(ctx context.Context, id int64, in PaymentUpdate) (Payment, error) {
	if !in.Amount.IsPositive() {
		return Payment{}, fmt.Errorf("personnel: amount %s: %w", in.Amount, shared.ErrInvalidAmount)
	}
	if in.Days < 0 || (in.PaymentMethod != "" && !in.PaymentMethod.Valid()) {
		return Payment{}, fmt.Errorf("personnel: days or payment method: %w", shared.ErrValidation)
	}
	var p Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		p, err = tx.GetPaymentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != Workflow.Initial() {
			return fmt.Errorf("personnel: edit %s payment: %w", p.Status, shared.ErrInvalidTransition)
		}
		if !in.Date.IsZero() {
			p.Date = in.Date
		}
		p.Amount = in.Amount
		p.Days = in.Days
		p.PaymentMethod = in.PaymentMethod
		p.Description = in.Description
		return tx.UpdatePayment(ctx, p)
	})
	if err != nil {
		return Payment{}, err
	}
	return p, nil
}

// ValidatePayment approves a pending payment.
func (s *Service) ValidatePayment(ctx context.Context, id, actor int64) (Payment, error) {
	return s.Transition(ctx, id, StatusValidated, actor, "")
}

// RejectPayment refuses a pending payment.
func (s *Service) RejectPayment(ctx context.Context, id, actor int64, reason string) (Payment, error) {
	return s.Transition(ctx, id, StatusRejected, actor, reason)
}

// Balance reports the remaining agreed salary of a worker.
func (s *Service) Balance(ctx context.Context, workerID int64) (SalaryBalance, error) {
	w, err := s.repo.GetWorker(ctx, workerID)
	if err != nil {
		return SalaryBalance{}, err
	}
	paid, err := s.repo.SumValidatedPayments(ctx, workerID)
	if err != nil {
		return SalaryBalance{}, err
	}
	b := ComputeBalance(w.AgreedSalary, paid)
	b.WorkerID = workerID
	return b, nil
}

// GetWorker returns a worker.
func (s *Service) GetWorker(ctx context.Context, id int64) (Worker, error) {
	return s.repo.GetWorker(ctx, id)
}

// GetPayment returns a payment.
func (s *Service) GetPayment(ctx context.Context, id int64) (Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

// ListPayments returns the payments of a worker.
func (s *Service) ListPayments(ctx context.Context, workerID int64) ([]Payment, error) {
	return s.repo.ListPayments(ctx, workerID)
}

func (s *Service) apply(ctx context.Context, tx TxRepository, w Worker, p Payment, step approval.Step, actor int64, note string) error {
	if step.Approves {
		_, err := ledger.Append(ctx, tx.Ledger(), ledger.AppendInput{
			ProjectID:     p.ProjectID,
			Kind:          ledger.KindExpense,
			Amount:        p.Amount,
			Date:          p.Date,
			Category:      LedgerCategory,
			PaymentMethod: string(p.PaymentMethod),
			Description:   fmt.Sprintf("Paiement %s (%d jours)", w.FullName(), p.Days),
			SourceModule:  Module,
			SourceID:      p.ID,
			CreatedBy:     actor,
		})
		if err != nil {
			return err
		}
	}
	return tx.Approvals().RecordApproval(ctx, approval.NewLog(Module, p.ID, step, actor, note))
}

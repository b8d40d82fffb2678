// Package expenses handles project expense requests. Validating an expense records
// exactly one ledger expense entry.
package expenses

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
	Get(ctx context.Context, id int64) (Expense, error)
	List(ctx context.Context, filter ListFilter) ([]Expense, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	Ledger() ledger.TxRepository
	Approvals() approval.Recorder
	Insert(ctx context.Context, e Expense) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (Expense, error)
	Update(ctx context.Context, e Expense) error
	UpdateStatus(ctx context.Context, id int64, status approval.State, decision approval.Decision) error
}

// Service coordinates expense workflows.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

func validateFields(category string, amount decimal.Decimal, method shared.PaymentMethod) error {
	if strings.TrimSpace(category) == "" {
		return fmt.Errorf("expenses: category required: %w", shared.ErrValidation)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("expenses: amount: %w", shared.ErrInvalidAmount)
	}
	if method != "" && !method.Valid() {
		return fmt.Errorf("expenses: payment method %q: %w", method, shared.ErrValidation)
	}
	return nil
}

// Create registers an expense. An expense created directly as validated emits its
// ledger entry once, as if it had been approved from pending.
func (s *Service) Create(ctx context.Context, in CreateInput) (Expense, error) {
	if in.ProjectID == 0 || in.ActorID == 0 {
		return Expense{}, fmt.Errorf("expenses: project and actor required: %w", shared.ErrValidation)
	}
	if err := validateFields(in.Category, in.Amount, in.PaymentMethod); err != nil {
		return Expense{}, err
	}
	step, err := Workflow.Birth(in.Status)
	if err != nil {
		return Expense{}, err
	}
	date := in.Date
	if date.IsZero() {
		date = s.now()
	}
	exp := Expense{
		ProjectID:         in.ProjectID,
		Category:          strings.TrimSpace(in.Category),
		SupplierID:        in.SupplierID,
		Date:              date,
		Amount:            in.Amount,
		PaymentMethod:     in.PaymentMethod,
		SupplierInvoiceNo: in.SupplierInvoiceNo,
		Description:       in.Description,
		Status:            step.To,
		CreatedBy:         in.ActorID,
	}
	decision := approval.Decide(step, in.ActorID, s.now())
	exp.ApprovedBy, exp.ApprovedAt = decision.By, decision.At
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.Ledger().LockProject(ctx, exp.ProjectID); err != nil {
			return err
		}
		id, err := tx.Insert(ctx, exp)
		if err != nil {
			return err
		}
		exp.ID = id
		submit := approval.Step{From: Workflow.Initial(), To: Workflow.Initial(), Action: approval.ActionSubmit}
		if err := tx.Approvals().RecordApproval(ctx, approval.NewLog(Module, id, submit, in.ActorID, "")); err != nil {
			return err
		}
		if !step.Decides {
			return nil
		}
		return s.apply(ctx, tx, exp, step, in.ActorID, "")
	})
	if err != nil {
		return Expense{}, err
	}
	return exp, nil
}

// Transition moves an expense to status to.
func (s *Service) Transition(ctx context.Context, id int64, to approval.State, actor int64, note string) (Expense, error) {
	if actor == 0 {
		return Expense{}, fmt.Errorf("expenses: actor required: %w", shared.ErrValidation)
	}
	var exp Expense
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		exp, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		step, err := Workflow.Step(exp.Status, to)
		if err != nil {
			return err
		}
		decision := approval.Decide(step, actor, s.now())
		if err := tx.UpdateStatus(ctx, id, step.To, decision); err != nil {
			return err
		}
		exp.Status = step.To
		if decision.By != nil {
			exp.ApprovedBy, exp.ApprovedAt = decision.By, decision.At
		}
		return s.apply(ctx, tx, exp, step, actor, note)
	})
	if err != nil {
		return Expense{}, err
	}
	return exp, nil
}

// Validate approves a pending expense.
func (s *Service) Validate(ctx context.Context, id, actor int64) (Expense, error) {
	return s.Transition(ctx, id, StatusValidated, actor, "")
}

// Reject refuses a pending expense.
func (s *Service) Reject(ctx context.Context, id, actor int64, reason string) (Expense, error) {
	return s.Transition(ctx, id, StatusRejected, actor, reason)
}

// Update edits a pending expense. It never emits ledger entries.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Expense, error) {
	if err := validateFields(in.Category, in.Amount, in.PaymentMethod); err != nil {
		return Expense{}, err
	}
	var exp Expense
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		exp, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if exp.Status != Workflow.Initial() {
			return fmt.Errorf("expenses: edit %s expense: %w", exp.Status, shared.ErrInvalidTransition)
		}
		exp.Category = strings.TrimSpace(in.Category)
		exp.SupplierID = in.SupplierID
		if !in.Date.IsZero() {
			exp.Date = in.Date
		}
		exp.Amount = in.Amount
		exp.PaymentMethod = in.PaymentMethod
		exp.SupplierInvoiceNo = in.SupplierInvoiceNo
		exp.Description = in.Description
		return tx.Update(ctx, exp)
	})
	if err != nil {
		return Expense{}, err
	}
	return exp, nil
}

// Get returns an expense.
func (s *Service) Get(ctx context.Context, id int64) (Expense, error) {
	return s.repo.Get(ctx, id)
}

// List returns expenses.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Expense, error) {
	if filter.Limit <= 0 {
		filter.Limit = 200
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) apply(ctx context.Context, tx TxRepository, exp Expense, step approval.Step, actor int64, note string) error {
	if step.Approves {
		_, err := ledger.Append(ctx, tx.Ledger(), ledger.AppendInput{
			ProjectID:     exp.ProjectID,
			Kind:          ledger.KindExpense,
			Amount:        exp.Amount,
			Date:          exp.Date,
			Category:      exp.Category,
			PaymentMethod: string(exp.PaymentMethod),
			Reference:     exp.SupplierInvoiceNo,
			Description:   exp.Description,
			SourceModule:  Module,
			SourceID:      exp.ID,
			CreatedBy:     actor,
		})
		if err != nil {
			return err
		}
	}
	return tx.Approvals().RecordApproval(ctx, approval.NewLog(Module, exp.ID, step, actor, note))
}

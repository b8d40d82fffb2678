// Package projects manages construction projects and their budget position.
package projects

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/projectledger/internal/ledger"
	"github.com/odyssey-erp/projectledger/internal/sequence"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Project, error)
	List(ctx context.Context, filter ListFilter) ([]Project, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	Counter() sequence.Counter
	Ledger() ledger.Reader
	Get(ctx context.Context, id int64) (Project, error)
	Insert(ctx context.Context, p Project) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (Project, error)
	UpdateStatus(ctx context.Context, id int64, status Status, actualEnd *time.Time) error
}

// Service coordinates project operations.
type Service struct {
	repo  RepositoryPort
	codes *sequence.Generator
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, codes *sequence.Generator) *Service {
	if codes == nil {
		codes = sequence.NewGenerator(nil)
	}
	return &Service{repo: repo, codes: codes, now: time.Now}
}

// Create opens a project with a fresh PROJ code.
func (s *Service) Create(ctx context.Context, in CreateInput) (Project, error) {
	if strings.TrimSpace(in.Name) == "" {
		return Project{}, fmt.Errorf("projects: name required: %w", shared.ErrValidation)
	}
	if in.PlannedBudget.IsNegative() {
		return Project{}, fmt.Errorf("projects: planned budget %s: %w", in.PlannedBudget, shared.ErrInvalidAmount)
	}
	if in.Status == "" {
		in.Status = StatusPlanned
	}
	if !in.Status.Valid() {
		return Project{}, fmt.Errorf("projects: unknown status %q: %w", in.Status, shared.ErrValidation)
	}
	if in.StartDate.IsZero() {
		in.StartDate = s.now()
	}
	if in.PlannedEndDate != nil && in.PlannedEndDate.Before(in.StartDate) {
		return Project{}, fmt.Errorf("projects: planned end before start: %w", shared.ErrValidation)
	}
	project := Project{
		Name:           strings.TrimSpace(in.Name),
		ClientID:       in.ClientID,
		PlannedBudget:  in.PlannedBudget,
		Status:         in.Status,
		StartDate:      in.StartDate,
		PlannedEndDate: in.PlannedEndDate,
		CreatedBy:      in.CreatedBy,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		code, err := s.codes.Next(ctx, tx.Counter(), sequence.KindProject)
		if err != nil {
			return err
		}
		project.Code = code
		id, err := tx.Insert(ctx, project)
		if err != nil {
			return err
		}
		project.ID = id
		return nil
	})
	if err != nil {
		return Project{}, err
	}
	return project, nil
}

// Get returns a project.
func (s *Service) Get(ctx context.Context, id int64) (Project, error) {
	return s.repo.Get(ctx, id)
}

// List returns projects.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Project, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}

// SetStatus changes the lifecycle status. Completing a project stamps its actual end date.
func (s *Service) SetStatus(ctx context.Context, id int64, status Status) (Project, error) {
	if !status.Valid() {
		return Project{}, fmt.Errorf("projects: unknown status %q: %w", status, shared.ErrValidation)
	}
	var project Project
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		project, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if project.Status == StatusCompleted || project.Status == StatusCancelled {
			return fmt.Errorf("projects: %s project is closed: %w", project.Status, shared.ErrInvalidTransition)
		}
		var actualEnd *time.Time
		if status == StatusCompleted {
			now := s.now()
			actualEnd = &now
		}
		if err := tx.UpdateStatus(ctx, id, status, actualEnd); err != nil {
			return err
		}
		project.Status = status
		if actualEnd != nil {
			project.ActualEndDate = actualEnd
		}
		return nil
	})
	if err != nil {
		return Project{}, err
	}
	return project, nil
}

// Summary computes the budget position of a project. The project row and the three
// ledger sums are read in one repeatable-read transaction, so they share a snapshot.
func (s *Service) Summary(ctx context.Context, id int64) (Summary, error) {
	var summary Summary
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		project, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		var totals [3]decimal.Decimal
		for i, kind := range []ledger.Kind{ledger.KindDeposit, ledger.KindWithdrawal, ledger.KindExpense} {
			totals[i], err = ledger.Sum(ctx, tx.Ledger(), id, kind)
			if err != nil {
				return err
			}
		}
		summary = Aggregate(project.PlannedBudget, totals[0], totals[1], totals[2])
		summary.ProjectID = id
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	return summary, nil
}

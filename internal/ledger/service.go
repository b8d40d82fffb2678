package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Reader
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListEntries(ctx context.Context, filter ListFilter) ([]Entry, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	Writer
	LockProject(ctx context.Context, projectID int64) error
}

// Service records manual ledger movements.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Record appends a manual deposit, withdrawal or expense.
func (s *Service) Record(ctx context.Context, in AppendInput) (Entry, error) {
	in.SourceModule, in.SourceID = "", 0
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockProject(ctx, in.ProjectID); err != nil {
			return err
		}
		var err error
		entry, err = Append(ctx, tx, in)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Total returns the validated sum of kind for a project.
func (s *Service) Total(ctx context.Context, projectID int64, kind Kind) (decimal.Decimal, error) {
	if !kind.Valid() {
		return decimal.Zero, fmt.Errorf("ledger: unknown kind %q", kind)
	}
	return Sum(ctx, s.repo, projectID, kind)
}

// List returns entries matching filter, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	if filter.Limit <= 0 {
		filter.Limit = 200
	}
	return s.repo.ListEntries(ctx, filter)
}

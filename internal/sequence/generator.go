package sequence

import (
	"context"
	"fmt"
	"time"
)

// Counter is a per-(prefix, year) atomic counter. Implementations bound to a
// transaction make allocation part of the caller's unit of work.
type Counter interface {
	Increment(ctx context.Context, prefix string, year int) (int64, error)
	Raise(ctx context.Context, prefix string, year int, floor int64) error
}

// Generator allocates codes from a Counter.
type Generator struct {
	now func() time.Time
}

// NewGenerator builds a Generator. A nil clock defaults to time.Now.
func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// Next allocates the next code of kind for the current year.
func (g *Generator) Next(ctx context.Context, counter Counter, kind Kind) (string, error) {
	year := g.now().Year()
	n, err := counter.Increment(ctx, kind.Prefix, year)
	if err != nil {
		return "", fmt.Errorf("sequence: allocate %s: %w", kind.Prefix, err)
	}
	return kind.Format(year, n), nil
}

// Seed raises the counter so that the next allocation follows the last existing code.
func (g *Generator) Seed(ctx context.Context, counter Counter, kind Kind, year int, existing []string) (int64, error) {
	last, err := kind.LastFromExisting(year, existing)
	if err != nil {
		return 0, err
	}
	if last == 0 {
		return 0, nil
	}
	if err := counter.Raise(ctx, kind.Prefix, year, last); err != nil {
		return 0, fmt.Errorf("sequence: seed %s: %w", kind.Prefix, err)
	}
	return last, nil
}

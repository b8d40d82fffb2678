// Package ledgertest provides an in-memory ledger for service tests.
package ledgertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/projectledger/internal/ledger"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// Book stores entries in memory. It enforces one entry per source like the
// ledger_entries_source_key index does.
type Book struct {
	mu       sync.Mutex
	Entries  []ledger.Entry
	Projects map[int64]bool
	nextID   int64
}

// NewBook returns a Book knowing the given projects. With no projects every id exists.
func NewBook(projects ...int64) *Book {
	b := &Book{}
	if len(projects) > 0 {
		b.Projects = make(map[int64]bool)
		for _, id := range projects {
			b.Projects[id] = true
		}
	}
	return b
}

// InsertEntry implements ledger.Writer.
func (b *Book) InsertEntry(_ context.Context, e ledger.Entry) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e.SourceModule != "" {
		for _, existing := range b.Entries {
			if existing.SourceModule == e.SourceModule && existing.SourceID == e.SourceID {
				return 0, fmt.Errorf("ledgertest: duplicate source %s/%d: %w", e.SourceModule, e.SourceID, shared.ErrInvalidTransition)
			}
		}
	}
	b.nextID++
	e.ID = b.nextID
	b.Entries = append(b.Entries, e)
	return e.ID, nil
}

// LockProject implements ledger.TxRepository.
func (b *Book) LockProject(_ context.Context, projectID int64) error {
	if b.Projects != nil && !b.Projects[projectID] {
		return shared.ErrNotFound
	}
	return nil
}

// SumEntries implements ledger.Reader.
func (b *Book) SumEntries(_ context.Context, projectID int64, kind ledger.Kind, status ledger.Status) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := decimal.Zero
	for _, e := range b.Entries {
		if e.ProjectID == projectID && e.Kind == kind && e.Status == status {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

// BySource returns the entries emitted by a request.
func (b *Book) BySource(module string, id int64) []ledger.Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []ledger.Entry
	for _, e := range b.Entries {
		if e.SourceModule == module && e.SourceID == id {
			out = append(out, e)
		}
	}
	return out
}

// Snapshot returns a restore point for emulating a rolled back transaction.
func (b *Book) Snapshot() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Entries)
}

// Restore truncates entries written after snapshot n.
func (b *Book) Restore(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Entries = b.Entries[:n]
}

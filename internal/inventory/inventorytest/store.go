// Package inventorytest provides an in-memory inventory.TxRepository.
package inventorytest

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/projectledger/internal/inventory"
	"github.com/odyssey-erp/projectledger/internal/sequence"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// Store keeps products, stock rows and movements in memory.
type Store struct {
	Products  map[int64]inventory.Product
	Stocks    map[string]inventory.Stock
	Movements []inventory.Movement
	codes     map[string]int64
	nextID    int64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{Products: make(map[int64]inventory.Product), Stocks: make(map[string]inventory.Stock), codes: make(map[string]int64)}
}

// AddProduct registers a product directly and returns its id.
func (s *Store) AddProduct(p inventory.Product) int64 {
	s.nextID++
	p.ID = s.nextID
	s.Products[p.ID] = p
	return p.ID
}

// Stock returns the (project, product) row.
func (s *Store) Stock(projectID, productID int64) (inventory.Stock, bool) {
	st, ok := s.Stocks[stockKey(projectID, productID)]
	return st, ok
}

func stockKey(projectID, productID int64) string {
	return fmt.Sprintf("%d:%d", projectID, productID)
}

// Clone copies the store for rollback emulation.
func (s *Store) Clone() *Store {
	c := &Store{
		Products:  make(map[int64]inventory.Product, len(s.Products)),
		Stocks:    make(map[string]inventory.Stock, len(s.Stocks)),
		Movements: append([]inventory.Movement(nil), s.Movements...),
		codes:     make(map[string]int64, len(s.codes)),
		nextID:    s.nextID,
	}
	for k, v := range s.Products {
		c.Products[k] = v
	}
	for k, v := range s.Stocks {
		c.Stocks[k] = v
	}
	for k, v := range s.codes {
		c.codes[k] = v
	}
	return c
}

func (s *Store) Counter() sequence.Counter { return counter{s} }

type counter struct{ s *Store }

func (c counter) Increment(_ context.Context, prefix string, year int) (int64, error) {
	key := fmt.Sprintf("%s:%d", prefix, year)
	c.s.codes[key]++
	return c.s.codes[key], nil
}

func (c counter) Raise(_ context.Context, prefix string, year int, floor int64) error {
	key := fmt.Sprintf("%s:%d", prefix, year)
	if c.s.codes[key] < floor {
		c.s.codes[key] = floor
	}
	return nil
}

func (s *Store) InsertProduct(_ context.Context, p inventory.Product) (int64, error) {
	return s.AddProduct(p), nil
}

func (s *Store) GetProductForUpdate(_ context.Context, id int64) (inventory.Product, error) {
	p, ok := s.Products[id]
	if !ok {
		return inventory.Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (s *Store) UpdateProductCost(_ context.Context, id int64, avg decimal.Decimal) error {
	p := s.Products[id]
	p.AverageCost = avg
	s.Products[id] = p
	return nil
}

func (s *Store) EnsureStockForUpdate(_ context.Context, projectID, productID int64) (inventory.Stock, error) {
	k := stockKey(projectID, productID)
	if st, ok := s.Stocks[k]; ok {
		return st, nil
	}
	s.nextID++
	st := inventory.Stock{ID: s.nextID, ProjectID: projectID, ProductID: productID, Quantity: decimal.Zero, ValuedAmount: decimal.Zero}
	s.Stocks[k] = st
	return st, nil
}

func (s *Store) ListProductStocksForUpdate(_ context.Context, productID int64) ([]inventory.Stock, error) {
	var out []inventory.Stock
	for _, st := range s.Stocks {
		if st.ProductID == productID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateStock(_ context.Context, st inventory.Stock) error {
	s.Stocks[stockKey(st.ProjectID, st.ProductID)] = st
	return nil
}

func (s *Store) InsertMovement(_ context.Context, m inventory.Movement) (int64, error) {
	s.nextID++
	m.ID = s.nextID
	s.Movements = append(s.Movements, m)
	return m.ID, nil
}

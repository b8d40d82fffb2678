package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind enumerates supported stock movements.
type MovementKind string

const (
	// MovementIn adds quantity to a stock row.
	MovementIn MovementKind = "IN"
	// MovementOut removes quantity from a stock row.
	MovementOut MovementKind = "OUT"
	// MovementAdjustment sets the counted quantity of a stock row.
	MovementAdjustment MovementKind = "ADJUSTMENT"
	// MovementTransfer moves quantity to the same product on another project.
	MovementTransfer MovementKind = "TRANSFER"
)

// Valid reports whether k is a known kind.
func (k MovementKind) Valid() bool {
	switch k {
	case MovementIn, MovementOut, MovementAdjustment, MovementTransfer:
		return true
	}
	return false
}

// Product is a stocked material valued at its weighted-average unit cost.
type Product struct {
	ID               int64           `json:"id"`
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	Unit             string          `json:"unit"`
	AverageCost      decimal.Decimal `json:"average_cost"`
	ReorderThreshold decimal.Decimal `json:"reorder_threshold"`
	Active           bool            `json:"active"`
}

// Stock is the quantity of one product held for one project.
type Stock struct {
	ID           int64           `json:"id"`
	ProjectID    int64           `json:"project_id"`
	ProductID    int64           `json:"product_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	ValuedAmount decimal.Decimal `json:"valued_amount"`
	Location     string          `json:"location"`
	LastInAt     *time.Time      `json:"last_in_at,omitempty"`
	LastOutAt    *time.Time      `json:"last_out_at,omitempty"`
}

// Movement is an immutable stock change with its before and after quantities.
type Movement struct {
	ID                   int64           `json:"id"`
	StockID              int64           `json:"stock_id"`
	Kind                 MovementKind    `json:"kind"`
	Quantity             decimal.Decimal `json:"quantity"`
	QuantityBefore       decimal.Decimal `json:"quantity_before"`
	QuantityAfter        decimal.Decimal `json:"quantity_after"`
	PurchaseOrderID      *int64          `json:"purchase_order_id,omitempty"`
	DestinationProjectID *int64          `json:"destination_project_id,omitempty"`
	Note                 string          `json:"note"`
	ActorID              int64           `json:"actor_id"`
	MovedAt              time.Time       `json:"moved_at"`
}

// MovementInput describes a movement on the (project, product) row.
type MovementInput struct {
	ProjectID            int64           `json:"project_id"`
	ProductID            int64           `json:"product_id"`
	Kind                 MovementKind    `json:"kind"`
	Quantity             decimal.Decimal `json:"quantity"`
	DestinationProjectID int64           `json:"destination_project_id"`
	PurchaseOrderID      *int64          `json:"purchase_order_id,omitempty"`
	Note                 string          `json:"note"`
	ActorID              int64           `json:"-"`
}

// MovementResult reports the rows touched by a movement. Transfers also carry the
// paired inbound movement on the destination row.
type MovementResult struct {
	Movement    Movement  `json:"movement"`
	Stock       Stock     `json:"stock"`
	Paired      *Movement `json:"paired,omitempty"`
	PairedStock *Stock    `json:"paired_stock,omitempty"`
}

// ReceiveInput books purchased goods into a project's stock.
type ReceiveInput struct {
	ProjectID       int64           `json:"project_id"`
	ProductID       int64           `json:"product_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	PurchaseOrderID *int64          `json:"purchase_order_id,omitempty"`
	Note            string          `json:"note"`
	ActorID         int64           `json:"-"`
}

// ProductInput registers a product.
type ProductInput struct {
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	Unit             string          `json:"unit"`
	AverageCost      decimal.Decimal `json:"average_cost"`
	ReorderThreshold decimal.Decimal `json:"reorder_threshold"`
}

// ProductTotals aggregates a product over every project.
type ProductTotals struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Value     decimal.Decimal `json:"value"`
	LowStock  bool            `json:"low_stock"`
}

// LowStockRow is a stock row under its product's reorder threshold.
type LowStockRow struct {
	Stock     Stock           `json:"stock"`
	Product   Product         `json:"product"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

// IsLowStock reports whether stock is under the product's reorder threshold.
func IsLowStock(stock Stock, product Product) bool {
	return stock.Quantity.LessThan(product.ReorderThreshold)
}

// Valuation is quantity times unit cost, rounded to cents.
func Valuation(quantity, unitCost decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitCost).Round(2)
}

// WeightedAverage computes the average cost after receiving qty at price on top of
// oldQty held at oldAvg. A zero resulting quantity keeps oldAvg.
func WeightedAverage(oldQty, oldAvg, qty, price decimal.Decimal) decimal.Decimal {
	total := oldQty.Add(qty)
	if !total.IsPositive() {
		return oldAvg
	}
	return oldQty.Mul(oldAvg).Add(qty.Mul(price)).Div(total).Round(2)
}

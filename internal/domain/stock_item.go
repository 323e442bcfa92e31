package domain

import (
	"time"
)

// Thresholds used when a product is stocked without explicit levels.
const (
	DefaultMinStockLevel   = 10
	DefaultReorderPoint    = 20
	DefaultReorderQuantity = 50
)

// StockItem is the ledger row of a single product. Available is always
// derived from OnHand and Reserved and is never persisted.
type StockItem struct {
	ProductID       string
	OnHand          int
	Reserved        int
	MinStockLevel   int
	ReorderPoint    int
	ReorderQuantity int
	LastRestockAt   *time.Time
	CreatedAtUtc    time.Time
	UpdatedAtUtc    time.Time
}

func NewStockItem(productID string, onHand int) *StockItem {
	now := time.Now().UTC()
	return &StockItem{
		ProductID:       productID,
		OnHand:          onHand,
		Reserved:        0,
		MinStockLevel:   DefaultMinStockLevel,
		ReorderPoint:    DefaultReorderPoint,
		ReorderQuantity: DefaultReorderQuantity,
		CreatedAtUtc:    now,
		UpdatedAtUtc:    now,
	}
}

func (s StockItem) Available() int {
	return s.OnHand - s.Reserved
}

func (s StockItem) CanReserve(qty int) bool {
	return qty > 0 && s.Available() >= qty
}

// Valid reports whether the row satisfies 0 <= Reserved <= OnHand.
func (s StockItem) Valid() bool {
	return s.Reserved >= 0 && s.Reserved <= s.OnHand
}

// ReplenishmentLevel is the highest threshold that can make the item show
// up in a replenishment scan.
func (s StockItem) ReplenishmentLevel() int {
	level := 0
	if s.MinStockLevel > level {
		level = s.MinStockLevel
	}
	if s.ReorderPoint > level {
		level = s.ReorderPoint
	}
	return level
}

package products

import "time"

// StockLevel classifies a quantity against the product thresholds. The
// classification is advisory only and never blocks a movement.
type StockLevel string

const (
	StockLow       StockLevel = "low"
	StockOK        StockLevel = "ok"
	StockOverstock StockLevel = "overstocked"
)

// Product represents a product entity.
type Product struct {
	ID           int64     `json:"id"`
	SKU          string    `json:"sku"`
	Name         string    `json:"name"`
	UOM          string    `json:"uom"`
	UnitPrice    float64   `json:"unit_price"`
	UnitCost     float64   `json:"unit_cost"`
	MinThreshold *int64    `json:"min_threshold,omitempty"`
	MaxThreshold *int64    `json:"max_threshold,omitempty"`
	LotTracked   bool      `json:"lot_tracked"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StockStatus classifies qty against the optional min/max thresholds.
func (p Product) StockStatus(qty int64) StockLevel {
	if p.MinThreshold != nil && qty < *p.MinThreshold {
		return StockLow
	}
	if p.MaxThreshold != nil && qty > *p.MaxThreshold {
		return StockOverstock
	}
	return StockOK
}

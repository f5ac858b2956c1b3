package products

// ProductForm is the create/update payload.
type ProductForm struct {
	SKU          string  `json:"sku" validate:"required,max=64"`
	Name         string  `json:"name" validate:"required,max=200"`
	UOM          string  `json:"uom" validate:"required,max=16"`
	UnitPrice    float64 `json:"unit_price" validate:"gte=0"`
	UnitCost     float64 `json:"unit_cost" validate:"gte=0"`
	MinThreshold *int64  `json:"min_threshold"`
	MaxThreshold *int64  `json:"max_threshold"`
	LotTracked   bool    `json:"lot_tracked"`
	IsActive     bool    `json:"is_active"`
}

func (f ProductForm) model() Product {
	return Product{
		SKU:          f.SKU,
		Name:         f.Name,
		UOM:          f.UOM,
		UnitPrice:    f.UnitPrice,
		UnitCost:     f.UnitCost,
		MinThreshold: f.MinThreshold,
		MaxThreshold: f.MaxThreshold,
		LotTracked:   f.LotTracked,
		IsActive:     f.IsActive,
	}
}

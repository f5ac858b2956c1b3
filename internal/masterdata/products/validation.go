package products

import (
	"fmt"
	"strings"

	"github.com/meridian-ops/meridian-ops/internal/shared"
)

func (s *Service) validate(p Product) error {
	if strings.TrimSpace(p.SKU) == "" {
		return fmt.Errorf("products: sku is required: %w", shared.ErrValidation)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("products: name is required: %w", shared.ErrValidation)
	}
	if strings.TrimSpace(p.UOM) == "" {
		return fmt.Errorf("products: uom is required: %w", shared.ErrValidation)
	}
	if p.UnitPrice < 0 || p.UnitCost < 0 {
		return fmt.Errorf("products: price and cost must be >= 0: %w", shared.ErrValidation)
	}
	if p.MinThreshold != nil && *p.MinThreshold < 0 {
		return fmt.Errorf("products: min threshold must be >= 0: %w", shared.ErrValidation)
	}
	if p.MinThreshold != nil && p.MaxThreshold != nil && *p.MaxThreshold < *p.MinThreshold {
		return fmt.Errorf("products: max threshold below min: %w", shared.ErrValidation)
	}
	return nil
}

package locations

import (
	"fmt"
	"strings"

	"github.com/meridian-ops/meridian-ops/internal/shared"
)

func (s *Service) validate(loc Location) error {
	if strings.TrimSpace(loc.Code) == "" {
		return fmt.Errorf("locations: code is required: %w", shared.ErrValidation)
	}
	if strings.TrimSpace(loc.Name) == "" {
		return fmt.Errorf("locations: name is required: %w", shared.ErrValidation)
	}
	if !ValidType(loc.Type) {
		return fmt.Errorf("locations: unknown type %q: %w", loc.Type, shared.ErrValidation)
	}
	// Sub-addresses only make sense inside a warehouse.
	if loc.Type != TypeWarehouse && (loc.Zone != "" || loc.Aisle != "" || loc.Shelf != "" || loc.Position != "") {
		return fmt.Errorf("locations: sub-address requires warehouse type: %w", shared.ErrValidation)
	}
	return nil
}

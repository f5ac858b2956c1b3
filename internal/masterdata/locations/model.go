package locations

import "time"

// LocationType enumerates the kinds of stock-holding endpoints.
type LocationType string

const (
	TypeWarehouse LocationType = "warehouse"
	TypeStore     LocationType = "store"
	TypeVan       LocationType = "van"
	TypeSupplier  LocationType = "supplier"
	TypeCustomer  LocationType = "customer"
)

// ValidType reports whether t is a known location type.
func ValidType(t LocationType) bool {
	switch t {
	case TypeWarehouse, TypeStore, TypeVan, TypeSupplier, TypeCustomer:
		return true
	}
	return false
}

// Location represents a stock-holding endpoint. Inactive locations are not
// selectable as transfer endpoints or receiving destinations.
type Location struct {
	ID        int64        `json:"id"`
	Code      string       `json:"code"`
	Name      string       `json:"name"`
	Type      LocationType `json:"type"`
	IsActive  bool         `json:"is_active"`
	Zone      string       `json:"zone,omitempty"`
	Aisle     string       `json:"aisle,omitempty"`
	Shelf     string       `json:"shelf,omitempty"`
	Position  string       `json:"position,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

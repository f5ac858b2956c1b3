package locations

// LocationForm is the create/update payload.
type LocationForm struct {
	Code     string `json:"code" validate:"required,max=64"`
	Name     string `json:"name" validate:"required,max=200"`
	Type     string `json:"type" validate:"required"`
	IsActive bool   `json:"is_active"`
	Zone     string `json:"zone" validate:"max=32"`
	Aisle    string `json:"aisle" validate:"max=32"`
	Shelf    string `json:"shelf" validate:"max=32"`
	Position string `json:"position" validate:"max=32"`
}

func (f LocationForm) model() Location {
	return Location{
		Code:     f.Code,
		Name:     f.Name,
		Type:     LocationType(f.Type),
		IsActive: f.IsActive,
		Zone:     f.Zone,
		Aisle:    f.Aisle,
		Shelf:    f.Shelf,
		Position: f.Position,
	}
}

package locations

import (
	"context"
	"fmt"

	mdshared "github.com/meridian-ops/meridian-ops/internal/masterdata/shared"
	"github.com/meridian-ops/meridian-ops/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]Location, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Location, error) {
	if id <= 0 {
		return Location{}, fmt.Errorf("locations: invalid location id: %w", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// Active reports whether the location exists and is active. Transfer and
// receiving endpoint checks go through here.
func (s *Service) Active(ctx context.Context, id int64) (bool, error) {
	loc, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return loc.IsActive, nil
}

func (s *Service) Create(ctx context.Context, location Location) (Location, error) {
	if err := s.validate(location); err != nil {
		return Location{}, err
	}
	return s.repo.Create(ctx, location)
}

func (s *Service) Update(ctx context.Context, id int64, location Location) error {
	if id <= 0 {
		return fmt.Errorf("locations: invalid location id: %w", shared.ErrValidation)
	}
	if err := s.validate(location); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, location)
}

// Deactivate retires a location. Existing stock and history stay untouched;
// the location just stops being selectable as an endpoint.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("locations: invalid location id: %w", shared.ErrValidation)
	}
	return s.repo.SetActive(ctx, id, false)
}

// Activate re-enables a location.
func (s *Service) Activate(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("locations: invalid location id: %w", shared.ErrValidation)
	}
	return s.repo.SetActive(ctx, id, true)
}

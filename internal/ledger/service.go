package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridian-ops/meridian-ops/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	AppendBatch(ctx context.Context, inputs []EntryInput) ([]Entry, error)
	Quantity(ctx context.Context, key PositionKey) (int64, error)
	History(ctx context.Context, filter HistoryFilter) ([]Entry, error)
	ListPositions(ctx context.Context, locationID int64) ([]Position, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort records movement counters.
type MetricsPort interface {
	CountMovement(kind string)
	CountRejection(reason string)
}

// InvalidatorPort invalidates read-side caches after a successful append.
type InvalidatorPort interface {
	Bump(ctx context.Context) error
}

// Service coordinates ledger appends and projection reads.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	metrics     MetricsPort
	invalidator InvalidatorPort
}

// NewService builds Service. Audit, idempotency, metrics and invalidator
// are optional.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, metrics MetricsPort, invalidator InvalidatorPort) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, metrics: metrics, invalidator: invalidator}
}

// Append validates and appends a single entry, atomically updating the
// corresponding position.
func (s *Service) Append(ctx context.Context, input EntryInput) (Entry, error) {
	entries, err := s.AppendBatch(ctx, []EntryInput{input})
	if err != nil {
		return Entry{}, err
	}
	return entries[0], nil
}

// AppendBatch appends all entries or none of them.
func (s *Service) AppendBatch(ctx context.Context, inputs []EntryInput) ([]Entry, error) {
	for _, in := range inputs {
		if err := ValidateInput(in); err != nil {
			s.countRejection(err)
			return nil, err
		}
	}
	entries, err := s.repo.AppendBatch(ctx, inputs)
	if err != nil {
		s.countRejection(err)
		return nil, err
	}
	if s.metrics != nil {
		for _, e := range entries {
			s.metrics.CountMovement(string(e.Kind))
		}
	}
	if s.invalidator != nil {
		_ = s.invalidator.Bump(ctx)
	}
	return entries, nil
}

// AdjustmentInput describes a manual stock correction.
type AdjustmentInput struct {
	Code       string
	ProductID  int64
	LocationID int64
	Lot        string
	Delta      int64
	UnitCost   float64
	Note       string
	ActorID    int64
	ExpiresAt  *time.Time
}

// PostAdjustment appends an adjustment entry. Adjustments bypass workflow
// status tracking, so each one is audit-logged separately.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (Entry, error) {
	code := input.Code
	if code == "" {
		code = fmt.Sprintf("ADJ-%d", time.Now().UnixNano())
	}
	key := fmt.Sprintf("adjustment:%s:%d:%d", code, input.ProductID, input.LocationID)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "ledger"); err != nil {
			return Entry{}, err
		}
		insertedKey = true
	}
	entry, err := s.Append(ctx, EntryInput{
		ProductID:  input.ProductID,
		LocationID: input.LocationID,
		Lot:        input.Lot,
		Delta:      input.Delta,
		Kind:       KindAdjustment,
		UnitCost:   input.UnitCost,
		ActorID:    input.ActorID,
		Ref:        code,
		ExpiresAt:  input.ExpiresAt,
		Note:       input.Note,
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Entry{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "stock:adjustment",
			Entity:   "stock_entries",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"product_id":  input.ProductID,
				"location_id": input.LocationID,
				"lot":         input.Lot,
				"qty_delta":   input.Delta,
				"note":        input.Note,
			},
		})
	}
	return entry, nil
}

// Quantity returns the live projection for (product, location, lot).
func (s *Service) Quantity(ctx context.Context, productID, locationID int64, lot string) (int64, error) {
	if productID == 0 || locationID == 0 {
		return 0, fmt.Errorf("ledger: product and location required: %w", shared.ErrValidation)
	}
	return s.repo.Quantity(ctx, PositionKey{ProductID: productID, LocationID: locationID, Lot: lot})
}

// History lists entries for audit and reporting. Never used for control flow.
func (s *Service) History(ctx context.Context, filter HistoryFilter) ([]Entry, error) {
	if filter.ProductID == 0 || filter.LocationID == 0 {
		return nil, fmt.Errorf("ledger: product and location required: %w", shared.ErrValidation)
	}
	return s.repo.History(ctx, filter)
}

// Positions lists all positions at a location.
func (s *Service) Positions(ctx context.Context, locationID int64) ([]Position, error) {
	if locationID == 0 {
		return nil, fmt.Errorf("ledger: location required: %w", shared.ErrValidation)
	}
	return s.repo.ListPositions(ctx, locationID)
}

func (s *Service) countRejection(err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case errors.Is(err, shared.ErrInsufficientStock):
		s.metrics.CountRejection("insufficient-stock")
	case errors.Is(err, shared.ErrInvalidLocation):
		s.metrics.CountRejection("invalid-location")
	case errors.Is(err, shared.ErrValidation):
		s.metrics.CountRejection("validation")
	}
}

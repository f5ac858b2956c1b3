package transfers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/meridian-ops/meridian-ops/internal/ledger"
	"github.com/meridian-ops/meridian-ops/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Transfer, error)
	List(ctx context.Context, filter ListFilter) ([]Transfer, error)
}

// LocationPort answers whether a location exists and is active.
type LocationPort interface {
	Active(ctx context.Context, id int64) (bool, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort records movement counters.
type MetricsPort interface {
	CountMovement(kind string)
	CountRejection(reason string)
}

// InvalidatorPort invalidates read-side caches after stock changes.
type InvalidatorPort interface {
	Bump(ctx context.Context) error
}

// Service orchestrates the transfer workflow.
type Service struct {
	repo        RepositoryPort
	locations   LocationPort
	audit       AuditPort
	metrics     MetricsPort
	invalidator InvalidatorPort
}

// NewService constructs the transfer service. Audit, metrics and invalidator
// are optional.
func NewService(repo RepositoryPort, locations LocationPort, audit AuditPort, metrics MetricsPort, invalidator InvalidatorPort) *Service {
	return &Service{repo: repo, locations: locations, audit: audit, metrics: metrics, invalidator: invalidator}
}

// CreateCommand describes a new transfer.
type CreateCommand struct {
	Ref            string
	FromLocationID int64
	ToLocationID   int64
	Note           string
	CreatedBy      int64
	Lines          []LineCommand
}

// LineCommand is one requested product movement.
type LineCommand struct {
	ProductID int64
	Lot       string
	Qty       int64
	UnitCost  float64
}

// Create validates endpoints and lines and persists a pending transfer.
// Creation has no ledger effect.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (Transfer, error) {
	if cmd.FromLocationID == 0 || cmd.ToLocationID == 0 {
		return Transfer{}, fmt.Errorf("transfers: both endpoints required: %w", shared.ErrValidation)
	}
	if cmd.FromLocationID == cmd.ToLocationID {
		return Transfer{}, fmt.Errorf("transfers: source and destination must differ: %w", shared.ErrInvalidLocation)
	}
	if len(cmd.Lines) == 0 {
		return Transfer{}, fmt.Errorf("transfers: at least one line required: %w", shared.ErrValidation)
	}
	for i, line := range cmd.Lines {
		if line.ProductID == 0 {
			return Transfer{}, fmt.Errorf("transfers: line %d missing product: %w", i+1, shared.ErrValidation)
		}
		if line.Qty <= 0 {
			return Transfer{}, fmt.Errorf("transfers: line %d qty must be positive: %w", i+1, shared.ErrValidation)
		}
	}
	for _, locID := range []int64{cmd.FromLocationID, cmd.ToLocationID} {
		if err := s.requireActive(ctx, locID); err != nil {
			return Transfer{}, err
		}
	}
	ref := cmd.Ref
	if ref == "" {
		ref = "TRF-" + uuid.NewString()
	}
	tr := Transfer{
		Ref:            ref,
		FromLocationID: cmd.FromLocationID,
		ToLocationID:   cmd.ToLocationID,
		Status:         StatusPending,
		Note:           cmd.Note,
		CreatedBy:      cmd.CreatedBy,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateTransfer(ctx, tr)
		if err != nil {
			return err
		}
		tr.ID = id
		for _, line := range cmd.Lines {
			l := Line{TransferID: id, ProductID: line.ProductID, Lot: line.Lot, Qty: line.Qty, UnitCost: line.UnitCost}
			if err := tx.InsertLine(ctx, l); err != nil {
				return err
			}
			tr.Lines = append(tr.Lines, l)
		}
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	return tr, nil
}

// Start moves a pending transfer to in progress. No ledger effect and no
// reservation: availability is only settled at completion.
func (s *Service) Start(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tr, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !ValidTransition(tr.Status, StatusInProgress) {
			return fmt.Errorf("transfers: cannot start transfer in status %s: %w", tr.Status, shared.ErrInvalidState)
		}
		ok, err := tx.SetStatus(ctx, id, tr.Status, StatusInProgress)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("transfers: cannot start transfer %d: %w", id, shared.ErrInvalidState)
		}
		return nil
	})
}

// Complete re-validates availability per line under row locks, appends one
// transfer-out at the source and one transfer-in at the destination per line
// and flips the status, all in one transaction. On shortfall the whole call
// fails and the transfer stays in progress. Completing an already-completed
// transfer is a no-op success.
func (s *Service) Complete(ctx context.Context, id int64) error {
	var appliedKinds []string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tr, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if tr.Status == StatusCompleted {
			return nil
		}
		if tr.Status != StatusInProgress {
			return fmt.Errorf("transfers: cannot complete transfer in status %s: %w", tr.Status, shared.ErrInvalidState)
		}
		lines, err := tx.Lines(ctx, id)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return fmt.Errorf("transfers: transfer %d has no lines: %w", id, shared.ErrValidation)
		}
		inputs := make([]ledger.EntryInput, 0, len(lines)*2)
		for _, line := range lines {
			inputs = append(inputs,
				ledger.EntryInput{
					ProductID:  line.ProductID,
					LocationID: tr.FromLocationID,
					Lot:        line.Lot,
					Delta:      -line.Qty,
					Kind:       ledger.KindTransferOut,
					UnitCost:   line.UnitCost,
					ActorID:    tr.CreatedBy,
					Ref:        tr.Ref,
				},
				ledger.EntryInput{
					ProductID:  line.ProductID,
					LocationID: tr.ToLocationID,
					Lot:        line.Lot,
					Delta:      line.Qty,
					Kind:       ledger.KindTransferIn,
					UnitCost:   line.UnitCost,
					ActorID:    tr.CreatedBy,
					Ref:        tr.Ref,
				},
			)
		}
		entries, err := tx.ApplyLedger(ctx, inputs)
		if err != nil {
			return err
		}
		for _, e := range entries {
			appliedKinds = append(appliedKinds, string(e.Kind))
		}
		ok, err := tx.SetStatus(ctx, id, StatusInProgress, StatusCompleted)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("transfers: transfer %d changed concurrently: %w", id, shared.ErrInvalidState)
		}
		return nil
	})
	if err != nil {
		if s.metrics != nil && errors.Is(err, shared.ErrInsufficientStock) {
			s.metrics.CountRejection("insufficient-stock")
		}
		return err
	}
	if s.metrics != nil {
		for _, kind := range appliedKinds {
			s.metrics.CountMovement(kind)
		}
	}
	if len(appliedKinds) > 0 {
		if s.invalidator != nil {
			_ = s.invalidator.Bump(ctx)
		}
		if s.audit != nil {
			_ = s.audit.Record(ctx, shared.AuditLog{
				Action:   "transfer:complete",
				Entity:   "transfers",
				EntityID: fmt.Sprintf("%d", id),
				Meta:     map[string]any{"entries": len(appliedKinds)},
			})
		}
	}
	return nil
}

// Cancel abandons a pending or in-progress transfer. No ledger effect.
func (s *Service) Cancel(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tr, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !ValidTransition(tr.Status, StatusCancelled) {
			return fmt.Errorf("transfers: cannot cancel transfer in status %s: %w", tr.Status, shared.ErrInvalidState)
		}
		ok, err := tx.SetStatus(ctx, id, tr.Status, StatusCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("transfers: cannot cancel transfer %d: %w", id, shared.ErrInvalidState)
		}
		return nil
	})
}

// Get loads a transfer with lines.
func (s *Service) Get(ctx context.Context, id int64) (Transfer, error) {
	return s.repo.Get(ctx, id)
}

// List returns transfers, optionally filtered by status.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Transfer, error) {
	if filter.Status != "" {
		switch filter.Status {
		case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		default:
			return nil, fmt.Errorf("transfers: unknown status %q: %w", filter.Status, shared.ErrValidation)
		}
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) requireActive(ctx context.Context, locationID int64) error {
	if s.locations == nil {
		return nil
	}
	active, err := s.locations.Active(ctx, locationID)
	if err != nil {
		return err
	}
	if !active {
		return fmt.Errorf("transfers: location %d is not an active endpoint: %w", locationID, shared.ErrInvalidLocation)
	}
	return nil
}

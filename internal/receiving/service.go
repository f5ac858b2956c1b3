package receiving

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-ops/meridian-ops/internal/ledger"
	"github.com/meridian-ops/meridian-ops/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, error)
}

// LocationPort answers whether a location exists and is active.
type LocationPort interface {
	Active(ctx context.Context, id int64) (bool, error)
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

// Service orchestrates the receiving workflow.
type Service struct {
	repo        RepositoryPort
	locations   LocationPort
	idempotency *shared.IdempotencyStore
	metrics     MetricsPort
	invalidator InvalidatorPort
}

// NewService constructs the receiving service. Idempotency, metrics and
// invalidator are optional.
func NewService(repo RepositoryPort, locations LocationPort, idem *shared.IdempotencyStore, metrics MetricsPort, invalidator InvalidatorPort) *Service {
	return &Service{repo: repo, locations: locations, idempotency: idem, metrics: metrics, invalidator: invalidator}
}

// CreateOrderCommand describes a new expected delivery.
type CreateOrderCommand struct {
	Ref          string
	SupplierRef  string
	LocationID   int64
	ExpectedDate *time.Time
	CreatedBy    int64
	Lines        []LineCommand
}

// LineCommand is one expected product line.
type LineCommand struct {
	ProductID  int64
	Lot        string
	OrderedQty int64
	UnitCost   float64
}

// CreateOrder validates the destination and lines and persists a pending
// order. Creation has no ledger effect.
func (s *Service) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if cmd.LocationID == 0 {
		return Order{}, fmt.Errorf("receiving: receiving location required: %w", shared.ErrValidation)
	}
	if len(cmd.Lines) == 0 {
		return Order{}, fmt.Errorf("receiving: at least one line required: %w", shared.ErrValidation)
	}
	for i, line := range cmd.Lines {
		if line.ProductID == 0 {
			return Order{}, fmt.Errorf("receiving: line %d missing product: %w", i+1, shared.ErrValidation)
		}
		if line.OrderedQty <= 0 {
			return Order{}, fmt.Errorf("receiving: line %d ordered qty must be positive: %w", i+1, shared.ErrValidation)
		}
		if line.UnitCost < 0 {
			return Order{}, fmt.Errorf("receiving: line %d unit cost must be >= 0: %w", i+1, shared.ErrValidation)
		}
	}
	if err := s.requireActive(ctx, cmd.LocationID); err != nil {
		return Order{}, err
	}
	ref := cmd.Ref
	if ref == "" {
		ref = "RCV-" + uuid.NewString()
	}
	order := Order{
		Ref:          ref,
		SupplierRef:  cmd.SupplierRef,
		LocationID:   cmd.LocationID,
		ExpectedDate: cmd.ExpectedDate,
		Status:       StatusPending,
		CreatedBy:    cmd.CreatedBy,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		for _, line := range cmd.Lines {
			l := Line{OrderID: id, ProductID: line.ProductID, Lot: line.Lot, OrderedQty: line.OrderedQty, UnitCost: line.UnitCost}
			if err := tx.InsertLine(ctx, l); err != nil {
				return err
			}
			order.Lines = append(order.Lines, l)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// RecordReceipt applies a batch of line receipts. Each receipt must fit the
// remaining ordered quantity; one bad line rejects the whole batch with no
// ledger effect. On success one inbound entry per line, the received
// counters and the re-derived status commit together. ReceiptRef
// deduplicates retried submissions when set.
func (s *Service) RecordReceipt(ctx context.Context, orderID int64, receipts []LineReceipt, receiptRef string) error {
	insertedKey := ""
	if s.idempotency != nil && receiptRef != "" {
		key := fmt.Sprintf("receipt:%d:%s", orderID, receiptRef)
		if err := s.idempotency.CheckAndInsert(ctx, key, "receiving"); err != nil {
			return err
		}
		insertedKey = key
	}
	var appliedKinds []string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		switch order.Status {
		case StatusPending, StatusPartial:
		case StatusCancelled:
			return fmt.Errorf("receiving: order %d is cancelled: %w", orderID, shared.ErrInvalidState)
		default:
			return fmt.Errorf("receiving: order %d is already fully received: %w", orderID, shared.ErrInvalidState)
		}
		lines, err := tx.LinesForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := ValidateReceipts(lines, receipts); err != nil {
			return err
		}
		byID := make(map[int64]Line, len(lines))
		for _, l := range lines {
			byID[l.ID] = l
		}
		inputs := make([]ledger.EntryInput, 0, len(receipts))
		for _, r := range receipts {
			line := byID[r.LineID]
			inputs = append(inputs, ledger.EntryInput{
				ProductID:  line.ProductID,
				LocationID: order.LocationID,
				Lot:        line.Lot,
				Delta:      r.Qty,
				Kind:       ledger.KindIn,
				UnitCost:   line.UnitCost,
				ActorID:    order.CreatedBy,
				Ref:        order.Ref,
			})
		}
		entries, err := tx.ApplyLedger(ctx, inputs)
		if err != nil {
			return err
		}
		for _, e := range entries {
			appliedKinds = append(appliedKinds, string(e.Kind))
		}
		for _, r := range receipts {
			if err := tx.AddReceived(ctx, r.LineID, r.Qty); err != nil {
				return err
			}
			line := byID[r.LineID]
			line.ReceivedQty += r.Qty
			byID[r.LineID] = line
		}
		updated := make([]Line, 0, len(lines))
		for _, l := range lines {
			updated = append(updated, byID[l.ID])
		}
		return tx.SetStatus(ctx, orderID, DeriveStatus(updated))
	})
	if err != nil {
		if insertedKey != "" {
			_ = s.idempotency.Delete(ctx, insertedKey)
		}
		if s.metrics != nil && errors.Is(err, shared.ErrOverReceipt) {
			s.metrics.CountRejection("over-receipt")
		}
		return err
	}
	if s.metrics != nil {
		for _, kind := range appliedKinds {
			s.metrics.CountMovement(kind)
		}
	}
	if s.invalidator != nil {
		_ = s.invalidator.Bump(ctx)
	}
	return nil
}

// Cancel abandons an order that is not yet fully received.
func (s *Service) Cancel(ctx context.Context, orderID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		switch order.Status {
		case StatusPending, StatusPartial:
			return tx.SetStatus(ctx, orderID, StatusCancelled)
		default:
			return fmt.Errorf("receiving: cannot cancel order in status %s: %w", order.Status, shared.ErrInvalidState)
		}
	})
}

// Status returns the order status re-derived from its lines. Cancelled
// orders stay cancelled regardless of line state.
func (s *Service) Status(ctx context.Context, orderID int64) (Status, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.Status == StatusCancelled {
		return StatusCancelled, nil
	}
	return DeriveStatus(order.Lines), nil
}

// Get loads an order with lines.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.Get(ctx, id)
}

// List returns orders, optionally filtered by status.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	if filter.Status != "" {
		switch filter.Status {
		case StatusPending, StatusPartial, StatusReceived, StatusCancelled:
		default:
			return nil, fmt.Errorf("receiving: unknown status %q: %w", filter.Status, shared.ErrValidation)
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
		return fmt.Errorf("receiving: location %d is not an active destination: %w", locationID, shared.ErrInvalidLocation)
	}
	return nil
}

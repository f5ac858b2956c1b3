package ledger

import (
	"fmt"

	"github.com/meridian-ops/meridian-ops/internal/shared"
)

// ValidateInput checks an entry input before it reaches the ledger.
func ValidateInput(in EntryInput) error {
	if in.ProductID == 0 || in.LocationID == 0 {
		return fmt.Errorf("ledger: product and location required: %w", shared.ErrValidation)
	}
	if in.UnitCost < 0 {
		return fmt.Errorf("ledger: unit cost must be >= 0: %w", shared.ErrValidation)
	}
	return ValidateKind(in.Kind, in.Delta)
}

// ValidateKind ensures the delta sign matches the movement kind.
func ValidateKind(kind MovementKind, delta int64) error {
	switch kind {
	case KindIn, KindTransferIn:
		if delta <= 0 {
			return fmt.Errorf("ledger: %s requires positive delta: %w", kind, shared.ErrValidation)
		}
	case KindOut, KindTransferOut:
		if delta >= 0 {
			return fmt.Errorf("ledger: %s requires negative delta: %w", kind, shared.ErrValidation)
		}
	case KindAdjustment:
		if delta == 0 {
			return fmt.Errorf("ledger: adjustment requires non-zero delta: %w", shared.ErrValidation)
		}
	default:
		return fmt.Errorf("ledger: unknown movement kind %q: %w", kind, shared.ErrValidation)
	}
	return nil
}

// ApplyDelta computes the new quantity for a position. It is the last-line
// defense against negative stock even when callers already checked
// availability.
func ApplyDelta(current, delta int64, key PositionKey) (int64, error) {
	next := current + delta
	if next < 0 {
		return current, fmt.Errorf("ledger: position %s has %d, requested %d: %w", key, current, -delta, shared.ErrInsufficientStock)
	}
	return next, nil
}

// EnsureAvailable checks availability before a debit is attempted.
func EnsureAvailable(current, requested int64, key PositionKey) error {
	if requested < 0 {
		requested = -requested
	}
	if current < requested {
		return fmt.Errorf("ledger: position %s has %d, requested %d: %w", key, current, requested, shared.ErrInsufficientStock)
	}
	return nil
}

// movingCost recomputes the moving unit cost after applying an entry. Cost
// never affects validation; it only feeds valuation reads.
func movingCost(pos Position, delta int64, unitCost float64, next int64) float64 {
	if delta > 0 {
		total := float64(pos.Qty)*pos.UnitCost + float64(delta)*unitCost
		if next != 0 {
			return total / float64(next)
		}
		return 0
	}
	if next == 0 {
		return 0
	}
	return pos.UnitCost
}

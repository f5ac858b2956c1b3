package receiving

import (
	"fmt"
	"time"

	"github.com/meridian-ops/meridian-ops/internal/shared"
)

// Status enumerates receiving order states. PENDING, PARTIAL and RECEIVED
// are derived from line quantities; CANCELLED only ever results from an
// explicit cancel.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPartial   Status = "PARTIAL"
	StatusReceived  Status = "RECEIVED"
	StatusCancelled Status = "CANCELLED"
)

// Order is an expected inbound delivery from a supplier.
type Order struct {
	ID           int64
	Ref          string
	SupplierRef  string
	LocationID   int64
	ExpectedDate *time.Time
	Status       Status
	CreatedBy    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Lines        []Line
}

// Line tracks ordered versus received quantity for one product.
type Line struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	Lot         string
	OrderedQty  int64
	ReceivedQty int64
	UnitCost    float64
}

// Remaining returns the quantity still expected on the line.
func (l Line) Remaining() int64 {
	return l.OrderedQty - l.ReceivedQty
}

// LineReceipt records goods arriving against one order line.
type LineReceipt struct {
	LineID int64
	Qty    int64
}

// DeriveStatus computes the order status from its lines. It never returns
// CANCELLED.
func DeriveStatus(lines []Line) Status {
	var received, full int
	for _, l := range lines {
		if l.ReceivedQty > 0 {
			received++
		}
		if l.ReceivedQty >= l.OrderedQty {
			full++
		}
	}
	switch {
	case received == 0:
		return StatusPending
	case full == len(lines):
		return StatusReceived
	default:
		return StatusPartial
	}
}

// ValidateReceipts checks every receipt against the current lines before
// anything is applied. A single bad receipt rejects the whole batch.
func ValidateReceipts(lines []Line, receipts []LineReceipt) error {
	if len(receipts) == 0 {
		return fmt.Errorf("receiving: at least one receipt line required: %w", shared.ErrValidation)
	}
	byID := make(map[int64]Line, len(lines))
	for _, l := range lines {
		byID[l.ID] = l
	}
	pending := make(map[int64]int64, len(receipts))
	for _, r := range receipts {
		if r.Qty <= 0 {
			return fmt.Errorf("receiving: receipt qty must be positive: %w", shared.ErrValidation)
		}
		line, ok := byID[r.LineID]
		if !ok {
			return fmt.Errorf("receiving: line %d: %w", r.LineID, shared.ErrNotFound)
		}
		pending[r.LineID] += r.Qty
		if line.ReceivedQty+pending[r.LineID] > line.OrderedQty {
			return fmt.Errorf("receiving: line %d ordered %d, already received %d, receipt %d: %w",
				r.LineID, line.OrderedQty, line.ReceivedQty, pending[r.LineID], shared.ErrOverReceipt)
		}
	}
	return nil
}

// ListFilter restricts order listing.
type ListFilter struct {
	Status Status
	Limit  int
}

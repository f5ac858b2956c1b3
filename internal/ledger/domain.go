package ledger

import (
	"fmt"
	"time"
)

// MovementKind enumerates supported stock movements.
type MovementKind string

const (
	// KindIn represents an inbound movement posted by the receiving workflow.
	KindIn MovementKind = "in"
	// KindOut represents an outbound movement (picking, issue).
	KindOut MovementKind = "out"
	// KindAdjustment indicates a manual correction; audit-logged separately.
	KindAdjustment MovementKind = "adjustment"
	// KindTransferIn is the credit half of a completed transfer.
	KindTransferIn MovementKind = "transfer-in"
	// KindTransferOut is the debit half of a completed transfer.
	KindTransferOut MovementKind = "transfer-out"
)

// PositionKey identifies one inventory position. Lot is empty for
// non-lot-tracked stock.
type PositionKey struct {
	ProductID  int64
	LocationID int64
	Lot        string
}

func (k PositionKey) String() string {
	return fmt.Sprintf("%d:%d:%s", k.ProductID, k.LocationID, k.Lot)
}

// Less orders keys so multi-key operations lock rows deterministically.
func (k PositionKey) Less(other PositionKey) bool {
	if k.ProductID != other.ProductID {
		return k.ProductID < other.ProductID
	}
	if k.LocationID != other.LocationID {
		return k.LocationID < other.LocationID
	}
	return k.Lot < other.Lot
}

// Entry is an immutable record of a single signed quantity change.
type Entry struct {
	ID         int64
	ProductID  int64
	LocationID int64
	Lot        string
	Delta      int64
	Kind       MovementKind
	OccurredAt time.Time
	ActorID    int64
	Ref        string
}

// Key returns the position key the entry applies to.
func (e Entry) Key() PositionKey {
	return PositionKey{ProductID: e.ProductID, LocationID: e.LocationID, Lot: e.Lot}
}

// EntryInput describes a movement to append.
type EntryInput struct {
	ProductID  int64
	LocationID int64
	Lot        string
	Delta      int64
	Kind       MovementKind
	UnitCost   float64
	ActorID    int64
	Ref        string
	ExpiresAt  *time.Time
	Note       string
}

// Key returns the position key the input applies to.
func (in EntryInput) Key() PositionKey {
	return PositionKey{ProductID: in.ProductID, LocationID: in.LocationID, Lot: in.Lot}
}

// Position is the current-quantity projection for a key. The sum of all
// entry deltas for the key must equal Qty at every point in time.
type Position struct {
	ProductID  int64
	LocationID int64
	Lot        string
	Qty        int64
	UnitCost   float64
	ExpiresAt  *time.Time
	UpdatedAt  time.Time
}

// Key returns the position key.
func (p Position) Key() PositionKey {
	return PositionKey{ProductID: p.ProductID, LocationID: p.LocationID, Lot: p.Lot}
}

// HistoryFilter restricts history listing. AfterID restarts the cursor.
type HistoryFilter struct {
	ProductID  int64
	LocationID int64
	Lot        *string
	AfterID    int64
	Limit      int
}

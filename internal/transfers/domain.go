package transfers

import "time"

// Status enumerates transfer workflow states.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// ValidTransition reports whether from may move to next. Completed and
// cancelled are terminal.
func ValidTransition(from, next Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transfer moves stock between two locations. It carries no quantity state
// of its own; the ledger entries appended at completion are the source of
// truth.
type Transfer struct {
	ID             int64
	Ref            string
	FromLocationID int64
	ToLocationID   int64
	Status         Status
	Note           string
	CreatedBy      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
	Lines          []Line
}

// Line is one product movement inside a transfer.
type Line struct {
	ID         int64
	TransferID int64
	ProductID  int64
	Lot        string
	Qty        int64
	UnitCost   float64
}

// ListFilter restricts transfer listing.
type ListFilter struct {
	Status Status
	Limit  int
}

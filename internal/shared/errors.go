package shared

import "errors"

// Error taxonomy shared by the stock engine. Workflow packages wrap these
// sentinels with context; callers test with errors.Is.
var (
	// ErrNotFound indicates an unknown product, location, transfer or order id.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a malformed command.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate indicates a unique constraint conflict.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInvalidLocation indicates an inactive location or equal transfer endpoints.
	ErrInvalidLocation = errors.New("invalid location")
	// ErrInsufficientStock indicates a debit that would drive a position negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOverReceipt indicates a receipt exceeding the remaining ordered quantity.
	ErrOverReceipt = errors.New("over receipt")
	// ErrInvalidState indicates an illegal workflow state transition.
	ErrInvalidState = errors.New("invalid state transition")
)

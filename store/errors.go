package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a point read finds no item.
	ErrNotFound = errors.New("chirp: item not found")

	// ErrTransactionConflict is returned when a transaction is cancelled
	// because a concurrent transaction touched one of its items.
	ErrTransactionConflict = errors.New("chirp: transaction conflict")
)

// ConditionFailedError reports that a transaction was cancelled because
// the condition on one of its items did not hold at commit time.
type ConditionFailedError struct {
	// Index is the position of the failing item in the submitted
	// transaction, matching DynamoDB's CancellationReasons ordering.
	Index int
}

func (e *ConditionFailedError) Error() string {
	return fmt.Sprintf("chirp: condition failed on transaction item %d", e.Index)
}

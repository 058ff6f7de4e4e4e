package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownStatus is returned for a status outside the enumeration.
	// Seeing it on a stored application means the data is corrupt or the
	// schema and the code disagree.
	ErrUnknownStatus = errors.New("unknown application status")

	// ErrInvalidTransition is the sentinel matched by *InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// InvalidTransitionError reports a transition missing from the table.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	if len(validTransitions[e.From]) == 0 {
		return fmt.Sprintf("transition %s → %s is not allowed: %s is terminal", e.From, e.To, e.From)
	}
	return fmt.Sprintf("transition %s → %s is not allowed", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

package tasks

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the quest id is not in the canonical collection.
	ErrNotFound = errors.New("task not found")
	// ErrAlreadyExists is returned by Create for a duplicate id.
	ErrAlreadyExists = errors.New("task already exists")
	// ErrConflict is returned by a Store when the stored version moved under us.
	ErrConflict = errors.New("task was modified concurrently")
)

// Reasons carried by InvalidStateError.
const (
	ReasonNotAvailable           = "Task is not available"
	ReasonNotInProgress          = "Task is not in progress"
	ReasonNotPendingVerification = "Task is not pending verification"
)

// InvalidStateError reports an operation attempted outside its required status.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string { return e.Reason }

// PersistenceError wraps a failure of the backing store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var ise *InvalidStateError
	return errors.As(err, &ise)
}

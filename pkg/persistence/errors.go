package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrNotFound indicates an entity was not found by the given identifier.
	ErrNotFound = errors.New("not found")

	// ErrTxDone indicates an operation on a transaction that was already committed or rolled back.
	ErrTxDone = errors.New("transaction has already been committed or rolled back")
)

// Entity names used in NotFoundError.
const (
	EntityProcessModel    = "process model"
	EntityProcessInstance = "process instance"
	EntitySubject         = "subject"
	EntitySubjectState    = "subject state"
)

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a not found error for the given entity.
func NewNotFoundError(entity string, id int64) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// StoreError wraps a backend failure with the operation that caused it.
type StoreError struct {
	Op  string // Operation being performed (e.g. "SaveProcessInstance")
	Err error  // Underlying error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a new store error with context.
func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}

// IsNotFound checks if an error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

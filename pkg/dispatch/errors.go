package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/sbpm/pkg/messages"
)

// ErrNoTask indicates that no registered factory accepts a message.
var ErrNoTask = errors.New("no task registered for message")

// ErrTaskPanicked is wrapped by the error returned for a task that panicked.
var ErrTaskPanicked = errors.New("task panicked")

// AmbiguousDispatchError reports a message accepted by more than one factory.
type AmbiguousDispatchError struct {
	Kind       messages.Kind
	Candidates []string
}

func (e *AmbiguousDispatchError) Error() string {
	return fmt.Sprintf("message %s matches %d tasks: %s", e.Kind, len(e.Candidates), strings.Join(e.Candidates, ", "))
}

// ExecutionError wraps a failure raised while a task executed or committed.
type ExecutionError struct {
	TaskID string        // Factory that created the failing task
	Kind   messages.Kind // Message being handled
	Err    error         // Underlying error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task %s failed handling %s: %v", e.TaskID, e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsAmbiguousDispatch checks if an error is an ambiguous routing failure.
func IsAmbiguousDispatch(err error) bool {
	var target *AmbiguousDispatchError

	return errors.As(err, &target)
}

// IsNoTask checks if an error indicates that no task accepts a message.
func IsNoTask(err error) bool {
	return errors.Is(err, ErrNoTask)
}

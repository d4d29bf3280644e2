package inference

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotReady is returned when Run is called without a loaded session.
	ErrSessionNotReady = errors.New("session not ready: load the model first")

	// ErrShapeMismatch matches any *ShapeMismatchError via errors.Is.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrNoBackends is wrapped when no candidate backend could be attempted.
	ErrNoBackends = errors.New("no backend candidates")
)

// ShapeMismatchError reports a buffer whose length does not equal the
// element count of its declared shape.
type ShapeMismatchError struct {
	Shape  []int64
	Want   int64
	Got    int64
	Reason string
}

func (e *ShapeMismatchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("shape mismatch for %v: %s", e.Shape, e.Reason)
	}
	return fmt.Sprintf("shape mismatch: shape %v needs %d elements, got %d", e.Shape, e.Want, e.Got)
}

func (e *ShapeMismatchError) Is(target error) bool {
	return target == ErrShapeMismatch
}

// Attempt records the outcome of building a session on one backend.
type Attempt struct {
	Backend Backend
	Err     error
}

// SessionCreationError is returned when every backend candidate failed.
// Err is the last underlying failure.
type SessionCreationError struct {
	Location string
	Attempts []Attempt
	Err      error
}

func (e *SessionCreationError) Error() string {
	msg := "<nil>"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("failed to create session for %q: %s", e.Location, msg)
}

func (e *SessionCreationError) Unwrap() error {
	return e.Err
}

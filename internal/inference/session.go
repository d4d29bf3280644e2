package inference

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Session is a loaded model bound to one backend. Its input name, output
// name and backend never change after creation.
//
// A Session is owned by a single caller; overlapping Run calls are serialized.
type Session struct {
	id         string
	location   string
	backend    Backend
	inputName  string
	outputName string
	attempts   []Attempt
	createdAt  time.Time

	mu     sync.Mutex
	model  Model
	closed bool
}

// ID returns the unique session identifier.
func (s *Session) ID() string { return s.id }

// Location returns the model location the session was built from.
func (s *Session) Location() string { return s.location }

// Backend returns the backend the session is bound to.
func (s *Session) Backend() Backend { return s.backend }

// InputName returns the name used for the input feed.
func (s *Session) InputName() string { return s.inputName }

// OutputName returns the name of the output tensor returned by Run.
func (s *Session) OutputName() string { return s.outputName }

// CreatedAt returns when the session finished loading.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Attempts returns the backend attempts made while creating the session,
// in order. The last entry is the successful one.
func (s *Session) Attempts() []Attempt {
	out := make([]Attempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}

// Loaded reports whether the session can still run.
func (s *Session) Loaded() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.model != nil
}

// Close releases the underlying model. Closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.model == nil {
		return nil
	}
	err := s.model.Close()
	s.model = nil
	return err
}

func (s *Session) run(ctx context.Context, input Tensor) (Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.model == nil {
		return Tensor{}, ErrSessionNotReady
	}

	out, err := s.model.Run(ctx, s.inputName, input, s.outputName)
	if err != nil {
		return Tensor{}, fmt.Errorf("running session on %s: %w", s.backend, err)
	}
	return out, nil
}

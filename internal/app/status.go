package app

import (
	"time"

	"github.com/ayusman/libra/internal/capture"
	"github.com/ayusman/libra/internal/inference"
)

// EventType classifies app events.
type EventType string

const (
	EventCamera    EventType = "camera"
	EventModel     EventType = "model"
	EventInference EventType = "inference"
)

// Event is published whenever camera, model or inference state changes.
type Event struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
	Status  Status    `json:"status"`
	Time    time.Time `json:"time"`
}

// CameraStatus describes the current capture handle.
type CameraStatus struct {
	Ready      bool               `json:"ready"`
	Error      string             `json:"error,omitempty"`
	Width      int                `json:"width"`
	Height     int                `json:"height"`
	FacingMode capture.FacingMode `json:"facingMode"`
}

// ModelStatus describes the inference manager and current session.
type ModelStatus struct {
	State     inference.State   `json:"state"`
	Runtime   string            `json:"runtime"`
	SessionID string            `json:"sessionId,omitempty"`
	Location  string            `json:"location,omitempty"`
	Backend   inference.Backend `json:"backend,omitempty"`
	Input     string            `json:"input,omitempty"`
	Output    string            `json:"output,omitempty"`
}

// Status is a snapshot of the application state.
type Status struct {
	Camera      CameraStatus `json:"camera"`
	Model       ModelStatus  `json:"model"`
	Accelerated bool         `json:"accelerated"`
	Message     string       `json:"message"`
}

// Status returns a snapshot of the current state.
func (a *App) Status() Status {
	var st Status

	if a.provider != nil {
		if h := a.provider.Current(); h != nil {
			cfg := h.Config()
			st.Camera = CameraStatus{
				Ready:      h.Ready(),
				Error:      h.Err(),
				Width:      cfg.Width,
				Height:     cfg.Height,
				FacingMode: cfg.FacingMode,
			}
		}
	}

	if a.manager != nil {
		st.Model.State = a.manager.State()
		st.Model.Runtime = a.manager.RuntimeName()
		st.Accelerated = a.manager.Accelerated()
	}

	a.mu.RLock()
	s := a.session
	st.Message = a.message
	a.mu.RUnlock()

	if s.Loaded() {
		st.Model.SessionID = s.ID()
		st.Model.Location = s.Location()
		st.Model.Backend = s.Backend()
		st.Model.Input = s.InputName()
		st.Model.Output = s.OutputName()
	}
	return st
}

// Package app ties the camera provider and the inference session manager
// together and owns the live capture handle and the loaded session.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/ayusman/libra/internal/capture"
	"github.com/ayusman/libra/internal/inference"
)

// Defaults for the dummy inference input.
const (
	DefaultSequenceLength = 30
	DefaultFeatureDim     = 150
	// HeadSize is the number of leading output values reported after a run.
	HeadSize = 5
)

// Config holds configuration options for the application.
type Config struct {
	Provider       *capture.Provider
	Manager        *inference.Manager
	Camera         capture.Config
	ModelLocation  string
	SequenceLength int
	FeatureDim     int
}

// RunResult is the outcome of one inference run.
type RunResult struct {
	SessionID string            `json:"sessionId"`
	Backend   inference.Backend `json:"backend"`
	Shape     []int64           `json:"shape"`
	Length    int               `json:"length"`
	Head      []float32         `json:"head"`
	Duration  time.Duration     `json:"duration"`
	Message   string            `json:"message"`
}

// App owns the camera handle and the current inference session.
type App struct {
	config   Config
	provider *capture.Provider
	manager  *inference.Manager

	mu          sync.RWMutex
	session     *inference.Session
	message     string
	subscribers []func(Event)
}

// New creates a new App with the given configuration.
func New(config Config) *App {
	if config.SequenceLength <= 0 {
		config.SequenceLength = DefaultSequenceLength
	}
	if config.FeatureDim <= 0 {
		config.FeatureDim = DefaultFeatureDim
	}
	return &App{
		config:   config,
		provider: config.Provider,
		manager:  config.Manager,
	}
}

// Subscribe registers fn to receive every event published by the app.
func (a *App) Subscribe(fn func(Event)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subscribers = append(a.subscribers, fn)
}

func (a *App) publish(kind EventType, message string) {
	a.mu.Lock()
	if message != "" {
		a.message = message
	}
	subs := make([]func(Event), len(a.subscribers))
	copy(subs, a.subscribers)
	a.mu.Unlock()

	ev := Event{Type: kind, Message: message, Status: a.Status(), Time: time.Now()}
	for _, fn := range subs {
		fn(ev)
	}
}

// StartCamera acquires the camera with the configured settings.
func (a *App) StartCamera(ctx context.Context) (*capture.Handle, error) {
	return a.ConfigureCamera(ctx, a.config.Camera)
}

// ConfigureCamera releases the current camera handle and acquires a new one.
func (a *App) ConfigureCamera(ctx context.Context, cfg capture.Config) (*capture.Handle, error) {
	if a.provider == nil {
		return nil, errors.New("no camera provider configured")
	}

	h, err := a.provider.Acquire(ctx, cfg)
	if err != nil {
		a.publish(EventCamera, "Camera error: "+h.Err())
		return h, err
	}
	a.publish(EventCamera, "Camera ready.")
	return h, nil
}

// StopCamera releases the camera.
func (a *App) StopCamera() error {
	if a.provider == nil {
		return nil
	}
	err := a.provider.Release()
	a.publish(EventCamera, "Camera released.")
	return err
}

// LoadModel creates a session for location, or the configured model when
// location is empty. The new session replaces and closes the previous one.
func (a *App) LoadModel(ctx context.Context, location string) (*inference.Session, error) {
	log := klog.FromContext(ctx)

	if a.manager == nil {
		return nil, errors.New("no inference manager configured")
	}
	if location == "" {
		location = a.config.ModelLocation
	}

	a.publish(EventModel, "Loading model...")

	s, err := a.manager.CreateSession(ctx, location)
	if err != nil {
		a.publish(EventModel, "Error loading model: "+err.Error())
		return nil, err
	}

	a.mu.Lock()
	prev := a.session
	a.session = s
	a.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			log.Error(err, "closing previous session", "id", prev.ID())
		}
	}

	a.publish(EventModel, fmt.Sprintf("Model loaded with %s.", strings.ToUpper(string(s.Backend()))))
	return s, nil
}

// Session returns the current session, or nil when no model is loaded.
func (a *App) Session() *inference.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}

// DummyShape returns the shape of the zero-filled test input.
func (a *App) DummyShape() []int64 {
	return []int64{1, int64(a.config.SequenceLength), int64(a.config.FeatureDim)}
}

// RunDummy runs the current session on a zero-filled input.
func (a *App) RunDummy(ctx context.Context) (*RunResult, error) {
	shape := a.DummyShape()
	n, err := inference.ElementCount(shape)
	if err != nil {
		return nil, err
	}
	return a.Run(ctx, make([]float32, n), shape)
}

// Run feeds data with the given shape into the current session.
func (a *App) Run(ctx context.Context, data []float32, shape []int64) (*RunResult, error) {
	s := a.Session()
	if s == nil {
		a.publish(EventInference, "Load the model first.")
		return nil, inference.ErrSessionNotReady
	}

	startedAt := time.Now()
	out, err := a.manager.Run(ctx, s, data, shape)
	if err != nil {
		a.publish(EventInference, "Inference failed: "+err.Error())
		return nil, err
	}

	head := out.Head(HeadSize)
	result := &RunResult{
		SessionID: s.ID(),
		Backend:   s.Backend(),
		Shape:     out.Shape,
		Length:    out.Len(),
		Head:      head,
		Duration:  time.Since(startedAt),
		Message:   "Inference OK. " + FormatHead(head),
	}

	klog.FromContext(ctx).V(1).Info("inference complete", "session", s.ID(), "backend", s.Backend(), "length", out.Len(), "duration", result.Duration)
	a.publish(EventInference, result.Message)
	return result, nil
}

// FormatHead renders values as "Output[0..n-1]= v0, v1, ..." with four decimals.
func FormatHead(values []float32) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%.4f", v)
	}
	last := len(values) - 1
	if last < 0 {
		last = 0
	}
	return fmt.Sprintf("Output[0..%d]= %s", last, strings.Join(parts, ", "))
}

// Close releases the camera and the current session.
func (a *App) Close() error {
	var errs []error
	if a.provider != nil {
		if err := a.provider.Release(); err != nil {
			errs = append(errs, err)
		}
	}

	a.mu.Lock()
	s := a.session
	a.session = nil
	a.mu.Unlock()

	if s != nil {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

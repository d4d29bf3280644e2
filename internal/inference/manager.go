package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// Default feed names used when a model declares none.
const (
	DefaultInputName  = "input"
	DefaultOutputName = "output"
)

// State is the lifecycle state of a Manager.
type State string

const (
	StateUnloaded   State = "unloaded"
	StateLoading    State = "loading"
	StateLoaded     State = "loaded"
	StateLoadFailed State = "load_failed"
	StateRunning    State = "running"
)

// Options configures a Manager.
type Options struct {
	// Runtime builds models. Required.
	Runtime Runtime

	// Probe decides whether the accelerated backend is attempted.
	// Defaults to HostProbe{}.
	Probe Probe

	// Fetcher resolves model locations to bytes. Defaults to LocationFetcher{}.
	Fetcher Fetcher

	// Strict rejects models that declare no input or output names instead
	// of falling back to DefaultInputName/DefaultOutputName.
	Strict bool
}

// Manager creates sessions and runs them.
type Manager struct {
	runtime Runtime
	probe   Probe
	fetcher Fetcher
	strict  bool

	mu      sync.Mutex
	state   State
	running int
}

// NewManager creates a Manager with the given options.
func NewManager(opts Options) *Manager {
	if opts.Probe == nil {
		opts.Probe = HostProbe{}
	}
	if opts.Fetcher == nil {
		opts.Fetcher = &LocationFetcher{}
	}
	return &Manager{
		runtime: opts.Runtime,
		probe:   opts.Probe,
		fetcher: opts.Fetcher,
		strict:  opts.Strict,
		state:   StateUnloaded,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running > 0 {
		return StateRunning
	}
	return m.state
}

// Accelerated reports whether the environment currently exposes acceleration.
func (m *Manager) Accelerated() bool {
	return m.probe.Accelerated()
}

// RuntimeName returns the name of the wrapped runtime.
func (m *Manager) RuntimeName() string {
	if m.runtime == nil {
		return ""
	}
	return m.runtime.Name()
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

// buildResult accumulates backend attempts. model is set only on success.
type buildResult struct {
	model    Model
	backend  Backend
	attempts []Attempt
	lastErr  error
}

func (r *buildResult) ok() bool {
	return r.model != nil
}

// CreateSession loads the model at location, trying each candidate backend
// in order and returning on the first success.
func (m *Manager) CreateSession(ctx context.Context, location string) (*Session, error) {
	log := klog.FromContext(ctx)

	m.setState(StateLoading)

	fail := func(err error) (*Session, error) {
		m.setState(StateLoadFailed)
		return nil, err
	}

	if m.runtime == nil {
		return fail(&SessionCreationError{Location: location, Err: errors.New("no inference runtime configured")})
	}

	data, err := m.fetcher.Fetch(ctx, location)
	if err != nil {
		return fail(&SessionCreationError{Location: location, Err: fmt.Errorf("fetching model: %w", err)})
	}

	candidates := Candidates(m.probe)
	log.Info("creating session", "location", location, "runtime", m.runtime.Name(), "candidates", candidates)

	result := m.build(ctx, data, candidates)
	if !result.ok() {
		lastErr := result.lastErr
		if lastErr == nil {
			lastErr = ErrNoBackends
		}
		return fail(&SessionCreationError{Location: location, Attempts: result.attempts, Err: lastErr})
	}

	inputName, outputName, err := m.resolveNames(ctx, result.model)
	if err != nil {
		result.model.Close()
		return fail(&SessionCreationError{Location: location, Attempts: result.attempts, Err: err})
	}

	s := &Session{
		id:         uuid.NewString(),
		location:   location,
		backend:    result.backend,
		inputName:  inputName,
		outputName: outputName,
		attempts:   result.attempts,
		createdAt:  time.Now(),
		model:      result.model,
	}

	log.Info("session created", "id", s.id, "backend", s.backend, "input", inputName, "output", outputName)
	m.setState(StateLoaded)
	return s, nil
}

func (m *Manager) build(ctx context.Context, data []byte, candidates []Backend) buildResult {
	log := klog.FromContext(ctx)

	var result buildResult
	for _, backend := range candidates {
		if err := ctx.Err(); err != nil {
			result.lastErr = err
			return result
		}

		model, err := m.runtime.Load(ctx, data, backend)
		result.attempts = append(result.attempts, Attempt{Backend: backend, Err: err})
		if err != nil {
			log.Info("backend attempt failed", "backend", backend, "err", err.Error())
			result.lastErr = err
			continue
		}

		result.model = model
		result.backend = backend
		return result
	}
	return result
}

func (m *Manager) resolveNames(ctx context.Context, model Model) (string, string, error) {
	log := klog.FromContext(ctx)

	inputName := firstName(model.InputNames())
	outputName := firstName(model.OutputNames())

	if inputName == "" {
		if m.strict {
			return "", "", errors.New("model declares no input names")
		}
		log.Info("model declares no input names, using default", "name", DefaultInputName)
		inputName = DefaultInputName
	}
	if outputName == "" {
		if m.strict {
			return "", "", errors.New("model declares no output names")
		}
		log.Info("model declares no output names, using default", "name", DefaultOutputName)
		outputName = DefaultOutputName
	}
	return inputName, outputName, nil
}

func firstName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// Run feeds data with the given shape into the session and returns the
// session's output tensor. The buffer length must equal the product of shape.
func (m *Manager) Run(ctx context.Context, s *Session, data []float32, shape []int64) (Tensor, error) {
	if !s.Loaded() {
		return Tensor{}, ErrSessionNotReady
	}

	input, err := NewTensor(data, shape)
	if err != nil {
		return Tensor{}, err
	}

	m.mu.Lock()
	m.running++
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running--
		m.mu.Unlock()
	}()

	return s.run(ctx, input)
}

package inference

import (
	"context"
	"errors"
	"sync"
)

// MockRuntime is a test implementation of the Runtime interface. It lets
// tests fail individual backends and count load attempts.
type MockRuntime struct {
	mu          sync.Mutex
	failures    map[Backend]error
	loads       map[Backend]int
	inputs      []string
	outputs     []string
	outputShape []int64
	lastInput   string
	lastFeed    Tensor
	onRun       func()
}

// NewMockRuntime creates a MockRuntime whose models declare "input" and
// "output" and produce a [1, 5] output.
func NewMockRuntime() *MockRuntime {
	return &MockRuntime{
		failures:    make(map[Backend]error),
		loads:       make(map[Backend]int),
		inputs:      []string{"input"},
		outputs:     []string{"output"},
		outputShape: []int64{1, 5},
	}
}

// OnRun sets a function every model run calls before computing its output.
// Tests use it to hold a run in progress.
func (r *MockRuntime) OnRun(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRun = fn
}

// SetFailure makes loads on backend fail with err. A nil err clears it.
func (r *MockRuntime) SetFailure(backend Backend, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, backend)
		return
	}
	r.failures[backend] = err
}

// SetNames sets the names declared by loaded models.
func (r *MockRuntime) SetNames(inputs, outputs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = inputs
	r.outputs = outputs
}

// SetOutputShape sets the shape of the tensor produced by Run.
func (r *MockRuntime) SetOutputShape(shape ...int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputShape = shape
}

// LoadCount returns how many times backend was attempted.
func (r *MockRuntime) LoadCount(backend Backend) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads[backend]
}

// LastFeed returns the input name and tensor of the most recent run.
func (r *MockRuntime) LastFeed() (string, Tensor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastInput, r.lastFeed
}

func (r *MockRuntime) Name() string { return "mock" }

func (r *MockRuntime) Load(ctx context.Context, model []byte, backend Backend) (Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.loads[backend]++
	if err := r.failures[backend]; err != nil {
		return nil, err
	}
	return &mockModel{runtime: r, inputs: r.inputs, outputs: r.outputs, shape: r.outputShape}, nil
}

type mockModel struct {
	runtime *MockRuntime
	inputs  []string
	outputs []string
	shape   []int64
	closed  bool
}

func (m *mockModel) InputNames() []string  { return m.inputs }
func (m *mockModel) OutputNames() []string { return m.outputs }

// Run returns mean(input) + i/10 for each output element i.
func (m *mockModel) Run(ctx context.Context, inputName string, input Tensor, outputName string) (Tensor, error) {
	if m.closed {
		return Tensor{}, errors.New("model closed")
	}

	m.runtime.mu.Lock()
	m.runtime.lastInput = inputName
	m.runtime.lastFeed = input
	hook := m.runtime.onRun
	m.runtime.mu.Unlock()

	if hook != nil {
		hook()
	}

	var sum float32
	for _, v := range input.Data {
		sum += v
	}
	var mean float32
	if len(input.Data) > 0 {
		mean = sum / float32(len(input.Data))
	}

	n, err := ElementCount(m.shape)
	if err != nil {
		return Tensor{}, err
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = mean + float32(i)/10
	}
	return NewTensor(out, m.shape)
}

func (m *mockModel) Close() error {
	m.closed = true
	return nil
}

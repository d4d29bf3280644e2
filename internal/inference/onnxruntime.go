package inference

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"k8s.io/klog/v2"
)

// ONNXRuntime runs models with ONNX Runtime. The accelerated backend uses
// the CUDA execution provider; the portable backend uses the default CPU
// provider.
type ONNXRuntime struct {
	// LibraryPath is the onnxruntime shared library. Empty uses the
	// platform default search path.
	LibraryPath string

	// Threads caps intra-op parallelism on the portable backend. Values <= 0
	// leave the runtime default.
	Threads int

	// CUDADevice selects the GPU used by the accelerated backend.
	CUDADevice int
}

var _ Runtime = (*ONNXRuntime)(nil)

var ortEnvMu sync.Mutex

func (r *ONNXRuntime) Name() string { return "onnxruntime" }

func (r *ONNXRuntime) ensureEnvironment() error {
	ortEnvMu.Lock()
	defer ortEnvMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if r.LibraryPath != "" {
		ort.SetSharedLibraryPath(r.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initializing onnxruntime environment: %w", err)
	}
	return nil
}

// Load builds a DynamicAdvancedSession bound to the first declared input
// and output of the model.
func (r *ONNXRuntime) Load(ctx context.Context, model []byte, backend Backend) (Model, error) {
	log := klog.FromContext(ctx)

	if err := r.ensureEnvironment(); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(model)
	if err != nil {
		return nil, fmt.Errorf("reading model inputs and outputs: %w", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("creating session options: %w", err)
	}
	defer opts.Destroy()

	switch backend {
	case BackendAccelerated:
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("creating CUDA provider options: %w", err)
		}
		defer cudaOpts.Destroy()

		if err := cudaOpts.Update(map[string]string{"device_id": strconv.Itoa(r.CUDADevice)}); err != nil {
			return nil, fmt.Errorf("configuring CUDA provider: %w", err)
		}
		if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
			return nil, fmt.Errorf("enabling CUDA execution provider: %w", err)
		}
	case BackendPortable:
		if r.Threads > 0 {
			if err := opts.SetIntraOpNumThreads(r.Threads); err != nil {
				return nil, fmt.Errorf("setting intra-op threads: %w", err)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported backend %q", backend)
	}

	m := &ortModel{}
	for _, info := range inputs {
		m.inputs = append(m.inputs, info.Name)
	}
	for _, info := range outputs {
		m.outputs = append(m.outputs, info.Name)
	}

	m.inputName, m.outputName = DefaultInputName, DefaultOutputName
	if len(m.inputs) > 0 {
		m.inputName = m.inputs[0]
	}
	if len(m.outputs) > 0 {
		m.outputName = m.outputs[0]
	}

	m.session, err = ort.NewDynamicAdvancedSessionWithONNXData(model, []string{m.inputName}, []string{m.outputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("creating onnxruntime session on %s: %w", backend, err)
	}

	log.V(2).Info("onnxruntime model loaded", "backend", backend, "inputs", m.inputs, "outputs", m.outputs)
	return m, nil
}

// ortModel is bound to one input and one output, chosen at load time.
type ortModel struct {
	inputs     []string
	outputs    []string
	inputName  string
	outputName string
	session    *ort.DynamicAdvancedSession
}

func (m *ortModel) InputNames() []string  { return m.inputs }
func (m *ortModel) OutputNames() []string { return m.outputs }

func (m *ortModel) Run(ctx context.Context, inputName string, input Tensor, outputName string) (Tensor, error) {
	if m.session == nil {
		return Tensor{}, ErrSessionNotReady
	}
	if inputName != m.inputName || outputName != m.outputName {
		return Tensor{}, fmt.Errorf("session is bound to input %q and output %q", m.inputName, m.outputName)
	}

	in, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return Tensor{}, fmt.Errorf("creating input tensor: %w", err)
	}
	defer in.Destroy()

	outputs := []ort.Value{nil}
	if err := m.session.Run([]ort.Value{in}, outputs); err != nil {
		return Tensor{}, err
	}
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return Tensor{}, fmt.Errorf("output %q is %T, want float32 tensor", outputName, outputs[0])
	}

	data := make([]float32, len(out.GetData()))
	copy(data, out.GetData())
	return NewTensor(data, []int64(out.GetShape()))
}

func (m *ortModel) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}

package inference

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"unsafe"

	"gocv.io/x/gocv"
	"k8s.io/klog/v2"
)

// OpenCVRuntime runs ONNX models with the OpenCV DNN module. The
// accelerated backend selects the CUDA backend and target; the portable
// backend uses OpenCV's default backend on the CPU.
//
// OpenCV builds without CUDA accept the CUDA preference and fall back to
// the CPU internally, so prefer ONNXRuntime when backend reporting matters.
type OpenCVRuntime struct{}

var _ Runtime = OpenCVRuntime{}

func (OpenCVRuntime) Name() string { return "opencv" }

func (OpenCVRuntime) Load(ctx context.Context, model []byte, backend Backend) (Model, error) {
	log := klog.FromContext(ctx)

	net, err := gocv.ReadNetFromONNXBytes(model)
	if err != nil {
		return nil, fmt.Errorf("reading ONNX model: %w", err)
	}
	if net.Empty() {
		net.Close()
		return nil, errors.New("failed to load network")
	}

	var (
		netBackend gocv.NetBackendType
		netTarget  gocv.NetTargetType
	)
	switch backend {
	case BackendAccelerated:
		netBackend, netTarget = gocv.NetBackendCUDA, gocv.NetTargetCUDA
	case BackendPortable:
		netBackend, netTarget = gocv.NetBackendDefault, gocv.NetTargetCPU
	default:
		net.Close()
		return nil, fmt.Errorf("unsupported backend %q", backend)
	}

	if err := net.SetPreferableBackend(netBackend); err != nil {
		net.Close()
		return nil, fmt.Errorf("setting preferable backend: %w", err)
	}
	if err := net.SetPreferableTarget(netTarget); err != nil {
		net.Close()
		return nil, fmt.Errorf("setting preferable target: %w", err)
	}

	m := &cvModel{net: net, outputs: outputLayers(net)}
	log.V(2).Info("opencv model loaded", "backend", backend, "outputs", m.outputs)
	return m, nil
}

// outputLayers returns the names of the layers with no consumers.
// Unconnected layer ids are 1-based; id 0 is the network input.
func outputLayers(net gocv.Net) []string {
	layerNames := net.GetLayerNames()

	var names []string
	for _, id := range net.GetUnconnectedOutLayers() {
		if id-1 >= 0 && id-1 < len(layerNames) {
			names = append(names, layerNames[id-1])
		}
	}
	return names
}

type cvModel struct {
	net     gocv.Net
	outputs []string
}

// InputNames is always empty: OpenCV does not expose graph input names.
func (m *cvModel) InputNames() []string  { return nil }
func (m *cvModel) OutputNames() []string { return m.outputs }

func (m *cvModel) Run(ctx context.Context, inputName string, input Tensor, outputName string) (Tensor, error) {
	if len(input.Data) == 0 {
		return Tensor{}, errors.New("empty input tensor")
	}

	sizes := make([]int, len(input.Shape))
	for i, d := range input.Shape {
		sizes[i] = int(d)
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&input.Data[0])), len(input.Data)*4)

	blob, err := gocv.NewMatWithSizesFromBytes(sizes, gocv.MatTypeCV32F, raw)
	if err != nil {
		return Tensor{}, fmt.Errorf("creating input blob: %w", err)
	}
	defer blob.Close()

	// An empty name binds the first network input.
	m.net.SetInput(blob, "")

	name := outputName
	if !slices.Contains(m.outputs, name) {
		name = ""
	}
	out := m.net.Forward(name)
	defer out.Close()

	if out.Empty() {
		return Tensor{}, fmt.Errorf("forward pass produced no output for %q", outputName)
	}

	values, err := out.DataPtrFloat32()
	if err != nil {
		return Tensor{}, fmt.Errorf("reading output: %w", err)
	}

	data := make([]float32, len(values))
	copy(data, values)

	var shape []int64
	for _, d := range out.Size() {
		shape = append(shape, int64(d))
	}
	return NewTensor(data, shape)
}

func (m *cvModel) Close() error {
	return m.net.Close()
}

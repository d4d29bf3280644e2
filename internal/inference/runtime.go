package inference

import "context"

// Runtime builds executable models from serialized graph bytes.
type Runtime interface {
	// Name identifies the runtime in logs and status output.
	Name() string

	// Load builds a model bound to the given backend. A backend the runtime
	// or host cannot provide must fail rather than silently degrade.
	Load(ctx context.Context, model []byte, backend Backend) (Model, error)
}

// Model is a loaded graph bound to one backend.
type Model interface {
	// InputNames returns the declared input names, possibly empty.
	InputNames() []string

	// OutputNames returns the declared output names, possibly empty.
	OutputNames() []string

	// Run feeds input under inputName and returns the tensor bound to outputName.
	Run(ctx context.Context, inputName string, input Tensor, outputName string) (Tensor, error)

	// Close releases any resources held by the model.
	Close() error
}

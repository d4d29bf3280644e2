package inference

import (
	"os"
)

// Backend identifies the execution strategy a session runs under.
type Backend string

const (
	// BackendAccelerated runs on a GPU (CUDA) when the host exposes one.
	BackendAccelerated Backend = "hardware-accelerated"
	// BackendPortable runs on the CPU and is always assumed available.
	BackendPortable Backend = "portable-fallback"
)

// Backends lists every recognized backend in preference order.
var Backends = []Backend{BackendAccelerated, BackendPortable}

func (b Backend) String() string {
	return string(b)
}

// Valid reports whether b is one of the recognized backends.
func (b Backend) Valid() bool {
	for _, known := range Backends {
		if b == known {
			return true
		}
	}
	return false
}

// Probe answers whether the current environment exposes hardware acceleration.
type Probe interface {
	Accelerated() bool
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func() bool

func (f ProbeFunc) Accelerated() bool { return f() }

// HostProbe detects a CUDA-capable device by looking for the NVIDIA driver
// interfaces the kernel exposes.
type HostProbe struct {
	// Disabled forces the probe to report no acceleration.
	Disabled bool
	// Paths overrides the device nodes checked. Any existing path counts.
	Paths []string
}

var defaultAcceleratorPaths = []string{
	"/proc/driver/nvidia/version",
	"/dev/nvidia0",
	"/dev/dxg",
}

func (p HostProbe) Accelerated() bool {
	if p.Disabled {
		return false
	}

	paths := p.Paths
	if paths == nil {
		paths = defaultAcceleratorPaths
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return false
}

// Candidates returns the ordered list of backends to try. The accelerated
// backend is only included when the probe reports it available.
func Candidates(probe Probe) []Backend {
	if probe != nil && probe.Accelerated() {
		return []Backend{BackendAccelerated, BackendPortable}
	}
	return []Backend{BackendPortable}
}

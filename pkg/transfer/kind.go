package transfer

import "fmt"

// Kind is a zero-copy transfer backend.
type Kind int

const (
	None Kind = iota
	// NativeCopyEngine is the vendor copy engine with CPU/GPU semaphores.
	NativeCopyEngine
	// PinnedBuffer is the generic pinned buffer object extension.
	PinnedBuffer
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case NativeCopyEngine:
		return "native-copy-engine"
	case PinnedBuffer:
		return "pinned-buffer"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseBackend maps the config names of the backends.
// Auto maps to None which means detect.
func ParseBackend(name string) (Kind, error) {
	switch name {
	case "", "auto":
		return None, nil
	case "dvp":
		return NativeCopyEngine, nil
	case "amd":
		return PinnedBuffer, nil
	}
	return None, fmt.Errorf("unknown backend %q", name)
}

// Direction of a frame transfer.
type Direction int

const (
	CPUtoGPU Direction = iota
	GPUtoCPU
)

func (d Direction) String() string {
	switch d {
	case CPUtoGPU:
		return "cpu-to-gpu"
	case GPUtoCPU:
		return "gpu-to-cpu"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

func (d Direction) valid() bool { return d == CPUtoGPU || d == GPUtoCPU }

package transfer

import "strings"

// DriverInfo is what the active graphics context reports about itself.
type DriverInfo interface {
	Renderer() string
	Extensions() string
}

type DetectOptions struct {
	// RendererMarkers select the native copy engine by renderer name.
	RendererMarkers []string
	// Extension selects the pinned buffer path.
	Extension string
}

func DefaultDetectOptions() DetectOptions {
	return DetectOptions{RendererMarkers: []string{"Quadro"}, Extension: "GL_AMD_pinned_memory"}
}

// Detect picks the fast path of the context.
// The native copy engine wins when both are present.
func Detect(info DriverInfo, opts DetectOptions) Kind {
	if info == nil {
		return None
	}
	switch {
	case HasNativeCopyEngine(info.Renderer(), opts.RendererMarkers):
		return NativeCopyEngine
	case HasExtension(info.Extensions(), opts.Extension):
		return PinnedBuffer
	}
	return None
}

func HasNativeCopyEngine(renderer string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(renderer, m) {
			return true
		}
	}
	return false
}

// HasExtension looks for a whole extension name in a space separated list.
func HasExtension(extensions, name string) bool {
	if name == "" {
		return false
	}
	for _, e := range strings.Fields(extensions) {
		if e == name {
			return true
		}
	}
	return false
}

package config

import (
	"fmt"
	"time"

	"github.com/nkusongzhichao/PlusLib/pkg/config/monitoring"
	"github.com/spf13/pflag"
)

type Config struct {
	Debug      bool
	LockFile   string
	Transfer   Transfer
	Graphics   Graphics
	Monitoring monitoring.Config
}

// Transfer holds the frame transfer engine settings.
type Transfer struct {
	// Width and Height of a frame in pixels, fixed for the process.
	Width  uint32 `default:"1920"`
	Height uint32 `default:"1080"`
	// Backend forces a fast path: auto, dvp or amd.
	Backend string `default:"auto"`
	// NoFallback fails instead of running the conventional copy
	// when auto detection finds no fast path.
	NoFallback bool
	// LockedFrames is how many frames of pinned memory
	// the working set is raised for.
	LockedFrames uint64 `default:"80"`
	// MaxLockedBytes caps the pinned memory budget, 0 is no cap.
	MaxLockedBytes uint64
	// FenceTimeout bounds the pinned buffer fence wait.
	FenceTimeout     time.Duration `default:"40ms"`
	RendererMarkers  []string      `default:"[Quadro]"`
	PinnedExtension  string        `default:"GL_AMD_pinned_memory"`
	Frames           int           `default:"300"`
	Simulate         bool
	SimulateRenderer string `default:"Quadro RTX 4000/PCIe/SSE2"`
}

type Graphics struct {
	GLVersionMajor uint `default:"3"`
	GLVersionMinor uint `default:"2"`
}

func (t Transfer) FrameBytes() uint64 { return uint64(t.Width) * uint64(t.Height) * 4 }

func (t Transfer) Validate() error {
	if t.Width == 0 || t.Height == 0 {
		return fmt.Errorf("bad frame size %vx%v", t.Width, t.Height)
	}
	switch t.Backend {
	case "auto", "dvp", "amd":
	default:
		return fmt.Errorf("unknown backend %q", t.Backend)
	}
	if t.FenceTimeout <= 0 {
		return fmt.Errorf("fence timeout should be positive, have %v", t.FenceTimeout)
	}
	return nil
}

// configPath allows custom config path
var configPath string

func NewConfig() (conf Config, err error) {
	err = LoadConfig(&conf, configPath)
	return
}

// WithFlags registers the command line overrides.
// Call it before flag parsing, values override the loaded config.
func (c *Config) WithFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&configPath, "conf", "c", configPath, "Set custom configuration file path")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "Verbose logging")
	fs.StringVar(&c.LockFile, "lock", c.LockFile, "Host device lock file")
	fs.Uint32Var(&c.Transfer.Width, "width", c.Transfer.Width, "Frame width")
	fs.Uint32Var(&c.Transfer.Height, "height", c.Transfer.Height, "Frame height")
	fs.StringVar(&c.Transfer.Backend, "backend", c.Transfer.Backend, "Fast path backend (auto, dvp, amd)")
	fs.BoolVar(&c.Transfer.NoFallback, "no-fallback", c.Transfer.NoFallback, "Fail without a fast path instead of copying conventionally")
	fs.IntVarP(&c.Transfer.Frames, "frames", "n", c.Transfer.Frames, "Frames to transfer")
	fs.DurationVar(&c.Transfer.FenceTimeout, "fence-timeout", c.Transfer.FenceTimeout, "Pinned buffer fence wait bound")
	fs.BoolVar(&c.Transfer.Simulate, "simulate", c.Transfer.Simulate, "Run against the in-memory copy engine")
	fs.IntVar(&c.Monitoring.Port, "monitoring.port", c.Monitoring.Port, "Monitoring server port")
}

// ConfigPath returns the directory set with --conf.
func ConfigPath() string { return configPath }

package transfer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nkusongzhichao/PlusLib/pkg/logger"
	"github.com/nkusongzhichao/PlusLib/pkg/memlock"
)

// Params of the process-wide initialization.
type Params struct {
	Width, Height uint32
	Textures      Textures
	Detect        DetectOptions
	// Force skips detection when set, the driver must still support it.
	Force    Kind
	Backends BackendFactory
	// Pinning is required by the native copy engine.
	Pinning *memlock.Manager
	Log     *logger.Logger
}

// BackendConfig is the immutable result of a successful initialization.
// Every session of the process is built from it.
type BackendConfig struct {
	kind      Kind
	width     uint32
	height    uint32
	textures  Textures
	constants Constants
	backend   Backend
	pinning   *memlock.Manager
	log       *logger.Logger

	live atomic.Int32
}

func (c *BackendConfig) Kind() Kind                { return c.kind }
func (c *BackendConfig) Width() uint32             { return c.width }
func (c *BackendConfig) Height() uint32            { return c.height }
func (c *BackendConfig) Textures() Textures        { return c.textures }
func (c *BackendConfig) Constants() Constants      { return c.constants }
func (c *BackendConfig) Backend() Backend          { return c.backend }
func (c *BackendConfig) Pinning() *memlock.Manager { return c.pinning }
func (c *BackendConfig) Sessions() int             { return int(c.live.Load()) }
func (c *BackendConfig) FrameBytes() uint64 {
	return uint64(c.width) * uint64(c.height) * BytesPerPixel
}

// Initializer selects and prepares the backend once.
// It fails closed: a second Initialize keeps the first configuration.
type Initializer struct {
	mu  sync.Mutex
	cfg *BackendConfig
}

// Initialize detects the backend of the context and prepares it.
// Nothing stays initialized when an error is returned.
func (i *Initializer) Initialize(info DriverInfo, p Params) (*BackendConfig, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.cfg != nil {
		return nil, ErrAlreadyInitialized
	}
	if p.Width == 0 || p.Height == 0 {
		return nil, fmt.Errorf("transfer: bad frame size %vx%v", p.Width, p.Height)
	}
	if p.Log == nil {
		p.Log = logger.Default()
	}

	kind, err := selectKind(info, p)
	if err != nil {
		return nil, err
	}
	if p.Backends == nil {
		return nil, errors.New("transfer: no backend factory")
	}
	if kind == NativeCopyEngine && p.Pinning == nil {
		return nil, errors.New("transfer: the native copy engine needs a pinning manager")
	}

	cfg := &BackendConfig{
		kind:     kind,
		width:    p.Width,
		height:   p.Height,
		textures: p.Textures,
		pinning:  p.Pinning,
		log:      p.Log,
	}

	var undo rollback
	if kind == NativeCopyEngine {
		// the copy engine pins memory at the OS level, not through the driver
		if err := p.Pinning.EnsureWorkingSetFor(cfg.FrameBytes()); err != nil {
			return nil, err
		}
		undo.push(p.Pinning.Restore)
	}
	undoLogged := func() {
		if err := undo.run(); err != nil {
			p.Log.Error().Err(err).Msg("Working set restore after a failed init")
		}
	}

	b, err := p.Backends(kind)
	if err != nil {
		undoLogged()
		return nil, fmt.Errorf("transfer: %v backend: %w", kind, err)
	}
	consts, err := b.Init(p.Textures)
	if err != nil {
		if terr := b.Teardown(); terr != nil {
			p.Log.Error().Err(terr).Msg("Backend teardown after a failed init")
		}
		undoLogged()
		return nil, err
	}
	cfg.backend = b
	cfg.constants = consts

	p.Log.Info().
		Stringer("backend", kind).
		Uint32("w", p.Width).
		Uint32("h", p.Height).
		Interface("constants", consts).
		Msg("Fast transfer path is ready")
	i.cfg = cfg
	return cfg, nil
}

func selectKind(info DriverInfo, p Params) (Kind, error) {
	detected := Detect(info, p.Detect)
	if p.Force == None {
		if detected == None {
			return None, ErrCapabilityUnavailable
		}
		return detected, nil
	}
	// a forced backend only has to be supported, not preferred
	var ok bool
	if info != nil {
		switch p.Force {
		case NativeCopyEngine:
			ok = HasNativeCopyEngine(info.Renderer(), p.Detect.RendererMarkers)
		case PinnedBuffer:
			ok = HasExtension(info.Extensions(), p.Detect.Extension)
		}
	}
	if !ok {
		return None, fmt.Errorf("%w: %v is forced but not reported by the driver", ErrCapabilityUnavailable, p.Force)
	}
	return p.Force, nil
}

// Config returns the current configuration, nil before Initialize.
func (i *Initializer) Config() *BackendConfig {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.cfg
}

// Shutdown tears the backend down once every session is closed
// and gives the working set back.
// A new Initialize is possible afterwards.
func (i *Initializer) Shutdown() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.cfg == nil {
		return ErrNotInitialized
	}
	if n := i.cfg.Sessions(); n > 0 {
		return fmt.Errorf("%w (%v)", ErrSessionsAlive, n)
	}
	err := i.cfg.backend.Teardown()
	if i.cfg.kind == NativeCopyEngine {
		err = errors.Join(err, i.cfg.pinning.Restore())
	}
	i.cfg = nil
	return err
}

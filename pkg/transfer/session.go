package transfer

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/nkusongzhichao/PlusLib/pkg/logger"
	"github.com/nkusongzhichao/PlusLib/pkg/memlock"
)

type State int

const (
	Uninitialized State = iota
	Constructed
	TransferInFlight
	Idle
	Destroyed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Constructed:
		return "constructed"
	case TransferInFlight:
		return "in-flight"
	case Idle:
		return "idle"
	case Destroyed:
		return "destroyed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Stats struct {
	Issued   uint64
	Failed   uint64
	Timeouts uint64
	Waits    uint64
}

// Session binds one host buffer to one texture for one direction.
//
// The buffer stays owned by the caller but must not be freed or moved
// until Close. Calls must come from a single goroutine.
type Session struct {
	id    uuid.UUID
	cfg   *BackendConfig
	buf   []byte
	dir   Direction
	desc  BufferDesc
	state State
	stats Stats
	log   *logger.Logger

	// native copy engine only
	pin      *memlock.Pin
	ext, gpu *SyncObject

	handle BufferHandle
}

// NewSession pins and registers buf for transfers in direction dir.
// Nothing stays acquired when an error is returned.
func NewSession(cfg *BackendConfig, buf []byte, dir Direction) (_ *Session, err error) {
	if cfg == nil || cfg.kind == None {
		return nil, ErrCapabilityUnavailable
	}
	if !dir.valid() {
		return nil, fmt.Errorf("transfer: unknown %v", dir)
	}

	desc := Describe(cfg, buf, dir)
	if err := validate(cfg, desc, dir); err != nil {
		return nil, err
	}

	id := uuid.Must(uuid.NewV4())
	s := &Session{
		id:   id,
		cfg:  cfg,
		buf:  buf,
		dir:  dir,
		desc: desc,
		log: cfg.log.Extend(cfg.log.With().
			Str("session", id.String()[:8]).
			Stringer("dir", dir)),
	}

	var undo rollback
	defer func() {
		if err == nil {
			return
		}
		if rerr := undo.run(); rerr != nil {
			s.log.Error().Err(rerr).Msg("Rollback of a failed session")
		}
	}()

	switch cfg.kind {
	case NativeCopyEngine:
		err = s.constructNative(&undo)
	case PinnedBuffer:
		err = s.constructPinned()
	default:
		err = ErrCapabilityUnavailable
	}
	if err != nil {
		return nil, err
	}

	s.state = Constructed
	cfg.live.Add(1)
	sessionsOpen.Inc()
	if cfg.pinning != nil {
		pinnedBytes.Set(float64(cfg.pinning.Pinned()))
	}
	s.log.Debug().Uint32("w", desc.Width).Uint32("stride", desc.Stride).Msg("Session is open")
	return s, nil
}

func (s *Session) constructNative(undo *rollback) error {
	b := s.cfg.backend

	pin, err := s.cfg.pinning.Pin(s.buf)
	if err != nil {
		var rle *ResourceLimitError
		if errors.As(err, &rle) {
			return err
		}
		return &PinningError{Op: "lock pages", Err: err}
	}
	s.pin = pin
	undo.push(pin.Release)

	c := s.cfg.constants
	if s.ext, err = NewSyncObject(b, c.SemaphoreAllocSize, c.SemaphoreAddrAlignment); err != nil {
		return err
	}
	undo.push(s.ext.Close)
	if s.gpu, err = NewSyncObject(b, c.SemaphoreAllocSize, c.SemaphoreAddrAlignment); err != nil {
		return err
	}
	undo.push(s.gpu.Close)

	if s.handle, err = b.RegisterBuffer(s.desc, s.dir); err != nil {
		return err
	}
	return nil
}

func (s *Session) constructPinned() (err error) {
	if s.handle, err = s.cfg.backend.RegisterBuffer(s.desc, s.dir); err != nil {
		return &PinningError{Op: "pin buffer object", Err: err}
	}
	return nil
}

// Describe builds the host buffer descriptor of a session.
// CPU to GPU frames travel as UYVY 4:2:2, two pixels per BGRA texel,
// so the width and the stride are halved.
func Describe(cfg *BackendConfig, buf []byte, dir Direction) BufferDesc {
	d := BufferDesc{
		Width:  cfg.width,
		Height: cfg.height,
		Stride: cfg.width * BytesPerPixel,
		Format: FormatBGRA,
		Type:   TypeUnsignedByte,
		Size:   uint64(len(buf)),
		Buffer: buf,
	}
	if dir == CPUtoGPU {
		d.Width /= 2
		d.Stride /= 2
	}
	return d
}

func validate(cfg *BackendConfig, d BufferDesc, dir Direction) error {
	if len(d.Buffer) == 0 {
		return fmt.Errorf("%w: empty", ErrBadBuffer)
	}
	if dir == CPUtoGPU && cfg.width%2 != 0 {
		return fmt.Errorf("%w: odd width %v can't hold 4:2:2 frames", ErrBadBuffer, cfg.width)
	}
	if need := uint64(d.Stride) * uint64(d.Height); d.Size < need {
		return fmt.Errorf("%w: %v bytes, a frame needs %v", ErrBadBuffer, d.Size, need)
	}
	align := PinnedBufferAlignment
	if cfg.kind == NativeCopyEngine {
		align = int(cfg.constants.BufferAddrAlignment)
	}
	if !memlock.Aligned(d.Buffer, align) {
		return fmt.Errorf("%w: address is not aligned to %v", ErrBadBuffer, align)
	}
	return nil
}

// TransferBegin issues the copy of one frame.
// The native copy engine returns once the copy is queued. The pinned buffer
// path blocks up to its fence timeout. A failure affects this frame only.
func (s *Session) TransferBegin() (err error) {
	if s.state == Uninitialized || s.state == Destroyed {
		return ErrSessionClosed
	}
	start := time.Now()
	defer func() { observeIssue(s.cfg.kind, s.dir, start, err) }()

	op := Op{Dir: s.dir, Buffer: s.handle, Width: s.desc.Width, Height: s.desc.Height}
	native := s.cfg.kind == NativeCopyEngine
	if native {
		// a new GPU buffer generation, the copy releases it when done
		v := s.gpu.Claim()
		if s.dir == CPUtoGPU {
			op.Src = s.ext.point(s.ext.Acquire())
		} else {
			op.Src = s.ext.point(s.ext.Release())
		}
		op.Dst = s.gpu.point(v)
	}

	if err = s.cfg.backend.BeginTransfer(op); err != nil {
		if native {
			s.gpu.unclaim()
		}
		s.stats.Failed++
		if errors.Is(err, ErrTransferTimeout) {
			s.stats.Timeouts++
			s.log.Debug().Err(err).Msg("Frame missed")
		} else {
			s.log.Warn().Err(err).Msg("Frame transfer failed")
		}
		return err
	}
	s.stats.Issued++
	if native {
		s.state = TransferInFlight
	} else {
		s.state = Idle
	}
	return nil
}

// WaitForCompletion blocks until the read back of the native copy engine
// has landed in the host buffer. It has no timeout.
// Other backends and directions return at once.
func (s *Session) WaitForCompletion() error {
	if s.state == Uninitialized || s.state == Destroyed {
		return ErrSessionClosed
	}
	if s.cfg.kind != NativeCopyEngine || s.dir != GPUtoCPU {
		return nil
	}
	if s.gpu.Pending() == 0 {
		s.state = Idle
		return nil
	}
	start := time.Now()
	if err := s.cfg.backend.Wait(s.gpu.point(s.gpu.Release())); err != nil {
		return err
	}
	waitSeconds.WithLabelValues(s.cfg.kind.String()).Observe(time.Since(start).Seconds())
	s.gpu.Consume()
	s.stats.Waits++
	s.state = Idle
	return nil
}

// BeginTextureInUse keeps copies off the texture of the direction
// while the caller renders with it. No-op for the pinned buffer path.
func (s *Session) BeginTextureInUse(dir Direction) error {
	if s.cfg.kind != NativeCopyEngine {
		return nil
	}
	return s.cfg.backend.LockTexture(dir)
}

// EndTextureInUse closes BeginTextureInUse.
func (s *Session) EndTextureInUse(dir Direction) error {
	if s.cfg.kind != NativeCopyEngine {
		return nil
	}
	return s.cfg.backend.UnlockTexture(dir)
}

// Close releases everything the session acquired, in reverse order.
// Every release is attempted, faults are logged and returned joined.
func (s *Session) Close() error {
	if s.state == Destroyed {
		return nil
	}
	var errs []error
	record := func(what string, err error) {
		if err == nil {
			return
		}
		s.log.Error().Err(err).Msgf("Couldn't release %v", what)
		errs = append(errs, err)
	}

	record("buffer", s.cfg.backend.UnregisterBuffer(s.handle))
	if s.cfg.kind == NativeCopyEngine {
		record("external sync", s.ext.Close())
		record("gpu sync", s.gpu.Close())
		record("pinned pages", s.pin.Release())
		pinnedBytes.Set(float64(s.cfg.pinning.Pinned()))
	}

	s.state = Destroyed
	s.cfg.live.Add(-1)
	sessionsOpen.Dec()
	s.log.Debug().
		Uint64("issued", s.stats.Issued).
		Uint64("failed", s.stats.Failed).
		Msg("Session is closed")
	return errors.Join(errs...)
}

func (s *Session) ID() string             { return s.id.String() }
func (s *Session) Direction() Direction   { return s.dir }
func (s *Session) Descriptor() BufferDesc { return s.desc }
func (s *Session) State() State           { return s.state }
func (s *Session) Stats() Stats           { return s.stats }

// GPUSync and ExternalSync expose the semaphores of the native copy engine,
// nil for the pinned buffer path.
func (s *Session) GPUSync() *SyncObject      { return s.gpu }
func (s *Session) ExternalSync() *SyncObject { return s.ext }

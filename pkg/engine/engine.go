// Package engine runs the capture and playback sessions of one process.
//
// A frame goes in through the capture session (CPU to GPU), is rendered
// from the capture texture to the playback texture and comes back out
// through the playback session (GPU to CPU).
//
// Without a fast path the same frame goes through the conventional
// upload and read back of a Copier platform.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nkusongzhichao/PlusLib/pkg/config"
	"github.com/nkusongzhichao/PlusLib/pkg/logger"
	"github.com/nkusongzhichao/PlusLib/pkg/memlock"
	"github.com/nkusongzhichao/PlusLib/pkg/transfer"
)

// Platform is the graphics side the engine runs on.
type Platform interface {
	transfer.DriverInfo
	Textures() transfer.Textures
	Backends() transfer.BackendFactory
	Pinning(opts memlock.Options) *memlock.Manager
	// Render draws the capture texture into the playback one.
	Render() error
	Close() error
}

// Copier is a platform that can move frames through the ordinary
// texture upload and read back.
type Copier interface {
	// UploadCapture writes a 4:2:2 frame to the capture texture.
	UploadCapture(src []byte) error
	// ReadPlayback reads the playback texture into dst.
	ReadPlayback(dst []byte) error
}

// Report sums up a run.
type Report struct {
	Frames  int
	Missed  int
	Failed  int
	Elapsed time.Duration
}

func (r Report) FPS() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Frames) / r.Elapsed.Seconds()
}

type Engine struct {
	conf config.Transfer
	p    Platform
	log  *logger.Logger

	init              transfer.Initializer
	cfg               *transfer.BackendConfig
	capture, playback *transfer.Session
	copier            Copier
	in, out           []byte
	mem               []*memlock.Block
}

func New(conf config.Transfer, p Platform, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Default()
	}
	return &Engine{conf: conf, p: p, log: log.Extend(log.With().Str("m", "engine"))}
}

// Open selects the backend and opens both sessions.
// When auto detection finds no fast path, a Copier platform runs
// the conventional copy unless NoFallback is set.
// Whatever was opened is closed again on error.
func (e *Engine) Open() (err error) {
	force, err := transfer.ParseBackend(e.conf.Backend)
	if err != nil {
		return err
	}
	markers := e.conf.RendererMarkers
	if len(markers) == 0 {
		markers = transfer.DefaultDetectOptions().RendererMarkers
	}
	e.cfg, err = e.init.Initialize(e.p, transfer.Params{
		Width:    e.conf.Width,
		Height:   e.conf.Height,
		Textures: e.p.Textures(),
		Detect:   transfer.DetectOptions{RendererMarkers: markers, Extension: e.conf.PinnedExtension},
		Force:    force,
		Backends: e.p.Backends(),
		Pinning:  e.p.Pinning(memlock.Options{LockedFrames: e.conf.LockedFrames, MaxLockedBytes: e.conf.MaxLockedBytes}),
		Log:      e.log,
	})
	if errors.Is(err, transfer.ErrCapabilityUnavailable) && force == transfer.None && !e.conf.NoFallback {
		if c, ok := e.p.(Copier); ok {
			return e.openConventional(c)
		}
	}
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, e.Close())
		}
	}()

	if e.capture, err = e.session(transfer.CPUtoGPU); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if e.playback, err = e.session(transfer.GPUtoCPU); err != nil {
		return fmt.Errorf("playback: %w", err)
	}
	e.in, e.out = e.capture.Descriptor().Buffer, e.playback.Descriptor().Buffer
	return nil
}

func (e *Engine) openConventional(c Copier) (err error) {
	defer func() {
		if err != nil {
			err = errors.Join(err, e.Close())
		}
	}()
	if e.in, err = e.alloc(); err != nil {
		return err
	}
	if e.out, err = e.alloc(); err != nil {
		return err
	}
	e.copier = c
	e.log.Warn().
		Str("renderer", e.p.Renderer()).
		Msg("No fast path, frames go through the conventional copy")
	return nil
}

func (e *Engine) alloc() ([]byte, error) {
	mem, err := memlock.Alloc(int(e.conf.FrameBytes()))
	if err != nil {
		return nil, err
	}
	e.mem = append(e.mem, mem)
	return mem.Bytes(), nil
}

func (e *Engine) session(dir transfer.Direction) (*transfer.Session, error) {
	mem, err := memlock.Alloc(int(e.cfg.FrameBytes()))
	if err != nil {
		return nil, err
	}
	s, err := transfer.NewSession(e.cfg, mem.Bytes(), dir)
	if err != nil {
		_ = mem.Free()
		return nil, err
	}
	e.mem = append(e.mem, mem)
	return s, nil
}

// Kind of the selected backend, None before Open.
func (e *Engine) Kind() transfer.Kind {
	if e.cfg == nil {
		return transfer.None
	}
	return e.cfg.Kind()
}

// Conventional reports whether frames go through the conventional copy.
func (e *Engine) Conventional() bool { return e.copier != nil }

// CaptureBuffer is the host memory of the incoming frames.
func (e *Engine) CaptureBuffer() []byte { return e.in }

// PlaybackBuffer is the host memory of the outgoing frames.
func (e *Engine) PlaybackBuffer() []byte { return e.out }

// Run moves frames until n are done or ctx is cancelled.
// A failed frame is counted and skipped.
func (e *Engine) Run(ctx context.Context, n int, fill func(frame int, buf []byte)) (r Report, err error) {
	if e.capture == nil && e.copier == nil {
		return r, transfer.ErrNotInitialized
	}
	start := time.Now()
	defer func() { r.Elapsed = time.Since(start) }()

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return r, ctx.Err()
		default:
		}
		if fill != nil {
			fill(i, e.CaptureBuffer())
		}
		switch err := e.frame(); {
		case err == nil:
			r.Frames++
		case errors.Is(err, transfer.ErrTransferTimeout):
			r.Missed++
		case errors.Is(err, transfer.ErrSessionClosed):
			return r, err
		default:
			r.Failed++
		}
		if (i+1)%100 == 0 {
			e.log.Debug().Int("frames", r.Frames).Int("missed", r.Missed).Int("failed", r.Failed).Msg("Progress")
		}
	}
	return r, nil
}

func (e *Engine) frame() error {
	if e.copier != nil {
		return e.copyFrame()
	}
	if err := e.capture.TransferBegin(); err != nil {
		return err
	}
	if err := e.render(); err != nil {
		return err
	}
	if err := e.playback.TransferBegin(); err != nil {
		return err
	}
	return e.playback.WaitForCompletion()
}

func (e *Engine) copyFrame() error {
	if err := e.copier.UploadCapture(e.in); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if err := e.p.Render(); err != nil {
		return err
	}
	if err := e.copier.ReadPlayback(e.out); err != nil {
		return fmt.Errorf("read back: %w", err)
	}
	return nil
}

func (e *Engine) render() (err error) {
	if err = e.capture.BeginTextureInUse(transfer.CPUtoGPU); err != nil {
		return err
	}
	defer func() { err = errors.Join(err, e.capture.EndTextureInUse(transfer.CPUtoGPU)) }()
	if err = e.playback.BeginTextureInUse(transfer.GPUtoCPU); err != nil {
		return err
	}
	defer func() { err = errors.Join(err, e.playback.EndTextureInUse(transfer.GPUtoCPU)) }()
	return e.p.Render()
}

// Stats of both sessions.
func (e *Engine) Stats() (capture, playback transfer.Stats) {
	if e.capture != nil {
		capture = e.capture.Stats()
	}
	if e.playback != nil {
		playback = e.playback.Stats()
	}
	return
}

// Close closes the sessions, the backend and frees the frame memory.
func (e *Engine) Close() error {
	var errs []error
	for _, s := range []*transfer.Session{e.playback, e.capture} {
		if s != nil {
			errs = append(errs, s.Close())
		}
	}
	e.capture, e.playback = nil, nil
	e.copier, e.in, e.out = nil, nil, nil
	if e.cfg != nil {
		errs = append(errs, e.init.Shutdown())
		e.cfg = nil
	}
	for _, m := range e.mem {
		errs = append(errs, m.Free())
	}
	e.mem = nil
	return errors.Join(errs...)
}

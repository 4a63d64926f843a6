package transfer_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/nkusongzhichao/PlusLib/pkg/logger"
	"github.com/nkusongzhichao/PlusLib/pkg/memlock"
	"github.com/nkusongzhichao/PlusLib/pkg/transfer"
	"github.com/nkusongzhichao/PlusLib/pkg/transfer/transfertest"
)

const (
	testW = 64
	testH = 16
	// one full BGRA frame
	frameBytes = testW * testH * transfer.BytesPerPixel
)

type env struct {
	init   transfer.Initializer
	cfg    *transfer.BackendConfig
	fake   *transfertest.Backend
	mgr    *memlock.Manager
	quota  *transfertest.Quota
	locker *transfertest.Locker
}

func newEnv(t *testing.T, kind transfer.Kind, lockedFrames uint64) *env {
	t.Helper()
	e := &env{fake: transfertest.New(kind)}
	e.mgr, e.quota, e.locker = transfertest.NewManager(0, lockedFrames)
	cfg, err := e.init.Initialize(transfertest.DriverOf(kind), e.params(testW))
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	e.cfg = cfg
	t.Cleanup(func() { _ = e.fake.Teardown() })
	return e
}

func (e *env) params(w uint32) transfer.Params {
	return transfer.Params{
		Width:    w,
		Height:   testH,
		Textures: transfer.Textures{Capture: 1, Playback: 2},
		Detect:   transfer.DefaultDetectOptions(),
		Backends: e.fake.Factory(),
		Pinning:  e.mgr,
		Log:      logger.Nop(),
	}
}

func buffer(t *testing.T, size int) []byte {
	t.Helper()
	b, err := memlock.Alloc(size)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	t.Cleanup(func() { _ = b.Free() })
	return b.Bytes()
}

func open(t *testing.T, cfg *transfer.BackendConfig, dir transfer.Direction) *transfer.Session {
	t.Helper()
	s, err := transfer.NewSession(cfg, buffer(t, frameBytes), dir)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %v", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDescriptor(t *testing.T) {
	tests := []struct {
		name          string
		kind          transfer.Kind
		w, h          uint32
		dir           transfer.Direction
		width, stride uint32
	}{
		{name: "native capture hd", kind: transfer.NativeCopyEngine, w: 1920, h: 1080, dir: transfer.CPUtoGPU, width: 960, stride: 3840},
		{name: "native playback hd", kind: transfer.NativeCopyEngine, w: 1920, h: 1080, dir: transfer.GPUtoCPU, width: 1920, stride: 7680},
		{name: "pinned capture hd", kind: transfer.PinnedBuffer, w: 1920, h: 1080, dir: transfer.CPUtoGPU, width: 960, stride: 3840},
		{name: "pinned playback hd", kind: transfer.PinnedBuffer, w: 1920, h: 1080, dir: transfer.GPUtoCPU, width: 1920, stride: 7680},
		{name: "native capture small", kind: transfer.NativeCopyEngine, w: 64, h: 16, dir: transfer.CPUtoGPU, width: 32, stride: 128},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in transfer.Initializer
			fake := transfertest.New(tt.kind)
			defer func() { _ = fake.Teardown() }()
			mgr, _, _ := transfertest.NewManager(0, 1)
			cfg, err := in.Initialize(transfertest.DriverOf(tt.kind), transfer.Params{
				Width: tt.w, Height: tt.h, Detect: transfer.DefaultDetectOptions(),
				Backends: fake.Factory(), Pinning: mgr, Log: logger.Nop(),
			})
			if err != nil {
				t.Fatal(err)
			}
			s, err := transfer.NewSession(cfg, buffer(t, int(tt.w*tt.h*transfer.BytesPerPixel)), tt.dir)
			if err != nil {
				t.Fatal(err)
			}
			defer s.Close()

			if len(fake.Descs) != 1 {
				t.Fatalf("registered %v buffers", len(fake.Descs))
			}
			d := fake.Descs[0]
			if d.Width != tt.width || d.Stride != tt.stride || d.Height != tt.h {
				t.Errorf("registered = %vx%v/%v, want %vx%v/%v", d.Width, d.Height, d.Stride, tt.width, tt.h, tt.stride)
			}
			if d.Format != transfer.FormatBGRA || d.Type != transfer.TypeUnsignedByte {
				t.Errorf("format = %v/%v", d.Format, d.Type)
			}
			if sd := s.Descriptor(); sd.Width != d.Width || sd.Stride != d.Stride || sd.Size != d.Size {
				t.Errorf("session descriptor %vx%v/%v differs from the registered one", sd.Width, sd.Height, sd.Stride)
			}
		})
	}
}

func TestInitializeNoCapability(t *testing.T) {
	var in transfer.Initializer
	fake := transfertest.New(transfer.PinnedBuffer)
	_, err := in.Initialize(transfertest.Software, transfer.Params{
		Width: testW, Height: testH, Detect: transfer.DefaultDetectOptions(), Backends: fake.Factory(), Log: logger.Nop(),
	})
	if !errors.Is(err, transfer.ErrCapabilityUnavailable) {
		t.Errorf("err = %v, want %v", err, transfer.ErrCapabilityUnavailable)
	}
	if in.Config() != nil {
		t.Errorf("config is set after a failure")
	}
	if _, err := transfer.NewSession(nil, make([]byte, frameBytes), transfer.GPUtoCPU); !errors.Is(err, transfer.ErrCapabilityUnavailable) {
		t.Errorf("session without config: %v", err)
	}
}

func TestInitializeOnce(t *testing.T) {
	e := newEnv(t, transfer.NativeCopyEngine, 4)
	if e.cfg.Kind() != transfer.NativeCopyEngine {
		t.Fatalf("kind = %v", e.cfg.Kind())
	}
	if e.fake.Tex != (transfer.Textures{Capture: 1, Playback: 2}) {
		t.Errorf("textures = %+v", e.fake.Tex)
	}
	if e.cfg.Constants() != transfertest.DefaultConstants {
		t.Errorf("constants = %+v", e.cfg.Constants())
	}
	if g := e.mgr.Granted(); g != 4*frameBytes {
		t.Errorf("working set = %v, want %v", g, 4*frameBytes)
	}

	if _, err := e.init.Initialize(transfertest.Quadro, e.params(testW)); !errors.Is(err, transfer.ErrAlreadyInitialized) {
		t.Errorf("second init: %v", err)
	}
	if e.init.Config() != e.cfg {
		t.Errorf("second init replaced the config")
	}

	s := open(t, e.cfg, transfer.GPUtoCPU)
	if err := e.init.Shutdown(); !errors.Is(err, transfer.ErrSessionsAlive) {
		t.Errorf("shutdown with a session: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := e.init.Shutdown(); err != nil {
		t.Errorf("shutdown: %v", err)
	}
	if err := e.init.Shutdown(); !errors.Is(err, transfer.ErrNotInitialized) {
		t.Errorf("second shutdown: %v", err)
	}
}

func TestInitializeFailure(t *testing.T) {
	tests := []struct {
		name     string
		backends func(*transfertest.Backend) transfer.BackendFactory
		fail     string
	}{
		{name: "init", fail: transfertest.OpInit},
		{
			name: "factory",
			backends: func(*transfertest.Backend) transfer.BackendFactory {
				return func(transfer.Kind) (transfer.Backend, error) { return nil, errors.New("no driver") }
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in transfer.Initializer
			fake := transfertest.New(transfer.NativeCopyEngine)
			mgr, quota, _ := transfertest.NewManager(0, 80)
			before, _ := quota.Limits()
			p := transfer.Params{
				Width: 1920, Height: 1080, Detect: transfer.DefaultDetectOptions(),
				Backends: fake.Factory(), Pinning: mgr, Log: logger.Nop(),
			}
			if tt.backends != nil {
				p.Backends = tt.backends(fake)
			}
			if tt.fail != "" {
				fake.FailOn(tt.fail, errors.New("no device"))
			}

			if _, err := in.Initialize(transfertest.Quadro, p); err == nil {
				t.Fatal("expected an error")
			}
			if in.Config() != nil {
				t.Errorf("config is set after a failure")
			}
			after, _ := quota.Limits()
			if mgr.Granted() != 0 || after != before {
				t.Errorf("working set kept: granted %v, limits %+v, want %+v", mgr.Granted(), after, before)
			}

			p.Backends = fake.Factory()
			fake.FailOn(transfertest.OpInit, nil)
			if _, err := in.Initialize(transfertest.Quadro, p); err != nil {
				t.Fatalf("init after a failure: %v", err)
			}
			if err := in.Shutdown(); err != nil {
				t.Fatal(err)
			}
			if after, _ := quota.Limits(); mgr.Granted() != 0 || after != before {
				t.Errorf("working set kept after shutdown: granted %v, limits %+v", mgr.Granted(), after)
			}
		})
	}
}

func TestInitializeFailureIsBackendFault(t *testing.T) {
	var in transfer.Initializer
	fake := transfertest.New(transfer.NativeCopyEngine)
	mgr, _, _ := transfertest.NewManager(0, 2)
	fake.FailOn(transfertest.OpInit, errors.New("no device"))
	_, err := in.Initialize(transfertest.Quadro, transfer.Params{
		Width: testW, Height: testH, Detect: transfer.DefaultDetectOptions(),
		Backends: fake.Factory(), Pinning: mgr, Log: logger.Nop(),
	})
	var bf *transfer.BackendFault
	if !errors.As(err, &bf) {
		t.Fatalf("err = %v, want a backend fault", err)
	}
}

func TestInitializeWorkingSetRefused(t *testing.T) {
	var in transfer.Initializer
	fake := transfertest.New(transfer.NativeCopyEngine)
	mgr, _, _ := transfertest.NewManager(frameBytes, 80)
	_, err := in.Initialize(transfertest.Quadro, transfer.Params{
		Width: testW, Height: testH, Detect: transfer.DefaultDetectOptions(),
		Backends: fake.Factory(), Pinning: mgr, Log: logger.Nop(),
	})
	var rle *transfer.ResourceLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("err = %v, want a resource limit", err)
	}
	if rle.Requested != 80*frameBytes {
		t.Errorf("requested = %v", rle.Requested)
	}
	if in.Config() != nil || mgr.Granted() != 0 {
		t.Errorf("state changed after a refused working set")
	}
}

func TestForcedBackend(t *testing.T) {
	both := transfertest.Driver{RendererName: "Quadro P5000", ExtensionList: "GL_AMD_pinned_memory"}
	tests := []struct {
		name  string
		info  transfer.DriverInfo
		force transfer.Kind
		want  transfer.Kind
		err   error
	}{
		{name: "pinned over native", info: both, force: transfer.PinnedBuffer, want: transfer.PinnedBuffer},
		{name: "auto prefers native", info: both, want: transfer.NativeCopyEngine},
		{name: "unsupported", info: transfertest.Quadro, force: transfer.PinnedBuffer, err: transfer.ErrCapabilityUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in transfer.Initializer
			mgr, _, _ := transfertest.NewManager(0, 1)
			cfg, err := in.Initialize(tt.info, transfer.Params{
				Width: testW, Height: testH, Detect: transfer.DefaultDetectOptions(), Force: tt.force,
				Backends: func(k transfer.Kind) (transfer.Backend, error) { return transfertest.New(k), nil },
				Pinning:  mgr, Log: logger.Nop(),
			})
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if err == nil {
				defer func() { _ = in.Shutdown() }()
				if cfg.Kind() != tt.want {
					t.Errorf("kind = %v, want %v", cfg.Kind(), tt.want)
				}
			}
		})
	}
}

func TestNativePlaybackCopy(t *testing.T) {
	e := newEnv(t, transfer.NativeCopyEngine, 4)
	frame := bytes.Repeat([]byte{0x10, 0x80, 0xeb, 0xff}, testW*testH)
	e.fake.SetTexture(transfer.GPUtoCPU, frame)

	s := open(t, e.cfg, transfer.GPUtoCPU)
	defer s.Close()
	if s.State() != transfer.Constructed {
		t.Errorf("state = %v", s.State())
	}
	if err := s.TransferBegin(); err != nil {
		t.Fatal(err)
	}
	if err := s.WaitForCompletion(); err != nil {
		t.Fatal(err)
	}
	if s.State() != transfer.Idle {
		t.Errorf("state = %v, want %v", s.State(), transfer.Idle)
	}
	if s.GPUSync().Semaphore() != 1 || s.GPUSync().Pending() != 0 {
		t.Errorf("gpu sync = %v, pending %v", s.GPUSync().Semaphore(), s.GPUSync().Pending())
	}
	op := e.fake.Ops[0]
	if op.Dst.Value != 1 || op.Src.Value != 0 || op.Src.Handle != s.ExternalSync().Handle() {
		t.Errorf("op = %+v", op)
	}
	if desc := e.fake.Descs[0]; !bytes.Equal(desc.Buffer, frame) {
		t.Errorf("playback buffer doesn't hold the frame")
	}
}

func TestNativeCaptureCopy(t *testing.T) {
	e := newEnv(t, transfer.NativeCopyEngine, 4)
	s := open(t, e.cfg, transfer.CPUtoGPU)
	defer s.Close()

	buf := e.fake.Descs[0].Buffer
	for i := range buf {
		buf[i] = byte(i)
	}
	if err := s.TransferBegin(); err != nil {
		t.Fatal(err)
	}
	eventually(t, "copy", func() bool { return s.GPUSync().Semaphore() == 1 })
	// the copy engine moves half a row of texels per row
	if got := e.fake.Texture(transfer.CPUtoGPU); !bytes.Equal(got, buf[:testW*2*testH]) {
		t.Errorf("texture has %v bytes", len(got))
	}
	// nothing to wait for in this direction
	if err := s.WaitForCompletion(); err != nil {
		t.Error(err)
	}
}

func TestNativeWaitCoversAllIssued(t *testing.T) {
	e := newEnv(t, transfer.NativeCopyEngine, 4)
	s := open(t, e.cfg, transfer.GPUtoCPU)
	defer s.Close()

	e.fake.Pause()
	for i := 0; i < 3; i++ {
		if err := s.TransferBegin(); err != nil {
			t.Fatal(err)
		}
	}
	if s.State() != transfer.TransferInFlight {
		t.Errorf("state = %v", s.State())
	}
	if v := s.GPUSync().Release(); v != 3 {
		t.Errorf("release = %v, want 3", v)
	}

	done := make(chan error, 1)
	go func() { done <- s.WaitForCompletion() }()
	select {
	case err := <-done:
		t.Fatalf("wait returned before the copies: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	e.fake.Resume()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wait never returned")
	}
	if e.fake.Completed() != 3 {
		t.Errorf("completed = %v, want 3", e.fake.Completed())
	}
	if st := s.Stats(); st.Issued != 3 || st.Waits != 1 {
		t.Errorf("stats = %+v", st)
	}
	if s.GPUSync().Acquire() != 3 {
		t.Errorf("acquire = %v", s.GPUSync().Acquire())
	}
}

func TestBeginFailureKeepsCounters(t *testing.T) {
	e := newEnv(t, transfer.NativeCopyEngine, 4)
	s := open(t, e.cfg, transfer.GPUtoCPU)
	defer s.Close()

	e.fake.FailOn(transfertest.OpBegin, errors.New("queue full"))
	var bf *transfer.BackendFault
	if err := s.TransferBegin(); !errors.As(err, &bf) {
		t.Fatalf("err = %v, want a backend fault", err)
	}
	if s.GPUSync().Release() != 0 {
		t.Errorf("failed begin kept its claim")
	}
	e.fake.FailOn(transfertest.OpBegin, nil)
	if err := s.TransferBegin(); err != nil {
		t.Fatal(err)
	}
	if err := s.WaitForCompletion(); err != nil {
		t.Fatal(err)
	}
	if st := s.Stats(); st.Issued != 1 || st.Failed != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	e := newEnv(t, transfer.NativeCopyEngine, 4)
	a := open(t, e.cfg, transfer.GPUtoCPU)
	b := open(t, e.cfg, transfer.CPUtoGPU)

	if r := e.fake.Live(); r.Syncs != 4 || r.Buffers != 2 {
		t.Errorf("live = %+v", r)
	}
	if e.locker.Locked() != 2 || e.mgr.Pinned() != 2*frameBytes || e.cfg.Sessions() != 2 {
		t.Errorf("locked = %v, pinned = %v", e.locker.Locked(), e.mgr.Pinned())
	}

	for _, s := range []*transfer.Session{a, b} {
		if err := s.Close(); err != nil {
			t.Fatal(err)
		}
		if s.State() != transfer.Destroyed {
			t.Errorf("state = %v", s.State())
		}
	}
	if r := e.fake.Live(); r != (transfertest.Resources{}) {
		t.Errorf("leaked %+v", r)
	}
	if e.locker.Locked() != 0 || e.mgr.Pinned() != 0 || e.cfg.Sessions() != 0 {
		t.Errorf("leaked pinned pages")
	}
	if err := a.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if err := a.TransferBegin(); !errors.Is(err, transfer.ErrSessionClosed) {
		t.Errorf("begin after close: %v", err)
	}
	if err := a.WaitForCompletion(); !errors.Is(err, transfer.ErrSessionClosed) {
		t.Errorf("wait after close: %v", err)
	}
}

func TestCloseAfterFaults(t *testing.T) {
	e := newEnv(t, transfer.NativeCopyEngine, 4)
	s := open(t, e.cfg, transfer.GPUtoCPU)

	e.fake.FailOn(transfertest.OpFreeSync, errors.New("device lost"))
	e.fake.FailOn(transfertest.OpUnregister, errors.New("device lost"))
	err := s.Close()
	var bf *transfer.BackendFault
	if !errors.As(err, &bf) {
		t.Fatalf("err = %v, want the faults", err)
	}
	if r := e.fake.Live(); r != (transfertest.Resources{}) {
		t.Errorf("leaked %+v", r)
	}
	if e.locker.Locked() != 0 || e.cfg.Sessions() != 0 {
		t.Errorf("pages or session count leaked")
	}
}

func TestConstructionRollback(t *testing.T) {
	tests := []struct {
		name string
		op   string
		as   any
	}{
		{name: "sync import", op: transfertest.OpImport, as: new(*transfer.SyncImportError)},
		{name: "buffer registration", op: transfertest.OpRegister, as: new(*transfer.BackendFault)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, transfer.NativeCopyEngine, 4)
			e.fake.FailOn(tt.op, errors.New("out of handles"))
			_, err := transfer.NewSession(e.cfg, buffer(t, frameBytes), transfer.GPUtoCPU)
			if !errors.As(err, tt.as) {
				t.Fatalf("err = %v, want %T", err, tt.as)
			}
			if r := e.fake.Live(); r != (transfertest.Resources{}) {
				t.Errorf("leaked %+v", r)
			}
			if e.locker.Locked() != 0 || e.mgr.Pinned() != 0 || e.cfg.Sessions() != 0 {
				t.Errorf("leaked pinned pages")
			}
		})
	}
}

func TestPinBudget(t *testing.T) {
	e := newEnv(t, transfer.NativeCopyEngine, 2)
	e.quota.Ceiling = 2 * frameBytes

	a := open(t, e.cfg, transfer.GPUtoCPU)
	b := open(t, e.cfg, transfer.CPUtoGPU)
	defer b.Close()

	_, err := transfer.NewSession(e.cfg, buffer(t, frameBytes), transfer.GPUtoCPU)
	var rle *transfer.ResourceLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("err = %v, want a resource limit", err)
	}
	if e.fake.Live().Buffers != 2 || e.mgr.Pinned() != 2*frameBytes {
		t.Errorf("the refused session kept resources")
	}

	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	c, err := transfer.NewSession(e.cfg, buffer(t, frameBytes), transfer.GPUtoCPU)
	if err != nil {
		t.Fatalf("after close: %v", err)
	}
	_ = c.Close()
}

func TestTextureInUse(t *testing.T) {
	e := newEnv(t, transfer.NativeCopyEngine, 4)
	s := open(t, e.cfg, transfer.CPUtoGPU)
	defer s.Close()

	if err := s.BeginTextureInUse(transfer.CPUtoGPU); err != nil {
		t.Fatal(err)
	}
	if e.fake.Live().Locks != 1 {
		t.Errorf("texture is not locked")
	}
	if err := s.EndTextureInUse(transfer.CPUtoGPU); err != nil {
		t.Fatal(err)
	}
	if e.fake.Live().Locks != 0 {
		t.Errorf("texture is still locked")
	}
}

func TestBadBuffers(t *testing.T) {
	e := newEnv(t, transfer.NativeCopyEngine, 4)
	page := buffer(t, 2*frameBytes)
	tests := []struct {
		name string
		buf  []byte
	}{
		{name: "empty"},
		{name: "short", buf: page[:frameBytes-1]},
		{name: "unaligned", buf: page[1 : frameBytes+1]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := transfer.NewSession(e.cfg, tt.buf, transfer.GPUtoCPU); !errors.Is(err, transfer.ErrBadBuffer) {
				t.Errorf("err = %v, want %v", err, transfer.ErrBadBuffer)
			}
		})
	}
	if r := e.fake.Live(); r != (transfertest.Resources{}) {
		t.Errorf("leaked %+v", r)
	}

	var in transfer.Initializer
	odd := transfertest.New(transfer.PinnedBuffer)
	cfg, err := in.Initialize(transfertest.Radeon, transfer.Params{
		Width: testW - 1, Height: testH, Detect: transfer.DefaultDetectOptions(), Backends: odd.Factory(), Log: logger.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := transfer.NewSession(cfg, page, transfer.CPUtoGPU); !errors.Is(err, transfer.ErrBadBuffer) {
		t.Errorf("odd width: %v", err)
	}
}

func TestPinnedTimeout(t *testing.T) {
	e := newEnv(t, transfer.PinnedBuffer, 0)
	frame := bytes.Repeat([]byte{1, 2, 3, 4}, testW*testH)
	e.fake.SetTexture(transfer.GPUtoCPU, frame)
	s := open(t, e.cfg, transfer.GPUtoCPU)
	defer s.Close()

	if s.GPUSync() != nil || s.ExternalSync() != nil {
		t.Errorf("pinned buffer sessions have no semaphores")
	}
	e.fake.TimeoutNext(1)
	if err := s.TransferBegin(); !errors.Is(err, transfer.ErrTransferTimeout) {
		t.Fatalf("err = %v, want %v", err, transfer.ErrTransferTimeout)
	}
	if err := s.TransferBegin(); err != nil {
		t.Fatalf("frame after a timeout: %v", err)
	}
	if s.State() != transfer.Idle {
		t.Errorf("state = %v", s.State())
	}
	if st := s.Stats(); st.Timeouts != 1 || st.Issued != 1 {
		t.Errorf("stats = %+v", st)
	}
	if !bytes.Equal(e.fake.Descs[0].Buffer, frame) {
		t.Errorf("playback buffer doesn't hold the frame")
	}
	// brackets are no-ops here
	if err := s.BeginTextureInUse(transfer.GPUtoCPU); err != nil || e.fake.Live().Locks != 0 {
		t.Errorf("texture lock: %v", err)
	}
	if err := s.EndTextureInUse(transfer.GPUtoCPU); err != nil {
		t.Error(err)
	}
}

func TestPinnedRegisterFailure(t *testing.T) {
	e := newEnv(t, transfer.PinnedBuffer, 0)
	e.fake.FailOn(transfertest.OpRegister, errors.New("GL_INVALID_OPERATION"))
	_, err := transfer.NewSession(e.cfg, buffer(t, frameBytes), transfer.CPUtoGPU)
	var pe *transfer.PinningError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want a pinning error", err)
	}
	if e.cfg.Sessions() != 0 || e.fake.Live().Buffers != 0 {
		t.Errorf("the failed session was counted")
	}
}

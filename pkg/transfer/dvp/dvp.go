// Package dvp drives the copy engine of workstation boards through
// the NVIDIA GPU Direct for Video (DVP) API.
//
// The cgo bindings are built with the dvp tag and need the DVP SDK,
// without it New returns transfer.ErrUnsupported.
// Every call must come from the thread that owns the GL context.
package dvp

import (
	"errors"
	"fmt"

	"github.com/nkusongzhichao/PlusLib/pkg/logger"
	"github.com/nkusongzhichao/PlusLib/pkg/transfer"
)

// handle of a DVP buffer or sync object
type handle = uint64

// api is the subset of the DVP entry points the backend needs.
// Calls return a DVP status, zero is success.
type api interface {
	initContext() int
	closeContext() int
	constants() (transfer.Constants, int)
	textureBuffer(texture uint32) (handle, int)
	freeBuffer(h handle) int
	importSync(sem *uint32) (handle, int)
	freeSync(h handle) int
	// createBuffer registers host memory and binds it to the GL context.
	createBuffer(desc transfer.BufferDesc) (handle, int)
	destroyBuffer(h handle) int
	// copyLined copies lines between a host buffer and a texture.
	copyLined(texture, src, srcSync handle, srcValue uint32, dst, dstSync handle, dstValue uint32, lines uint32) int
	waitPartial(sync handle, value uint32) int
	mapWaitAPI(texture handle) int
	mapEndAPI(texture handle) int
}

var _ transfer.Backend = (*Backend)(nil)

type Options struct {
	Log *logger.Logger
}

// Backend is the native copy engine backend.
type Backend struct {
	dvp  api
	log  *logger.Logger
	open bool

	// texture buffers by direction
	tex     [2]handle
	buffers map[transfer.BufferHandle]struct{}
	syncs   map[transfer.SyncHandle]struct{}
}

// New returns the backend over the current GL context.
func New(opts Options) (*Backend, error) {
	a, err := native()
	if err != nil {
		return nil, err
	}
	return newBackend(a, opts), nil
}

func newBackend(a api, opts Options) *Backend {
	if opts.Log == nil {
		opts.Log = logger.Default()
	}
	return &Backend{
		dvp:     a,
		log:     opts.Log.Extend(opts.Log.With().Str("backend", "dvp")),
		buffers: map[transfer.BufferHandle]struct{}{},
		syncs:   map[transfer.SyncHandle]struct{}{},
	}
}

func (b *Backend) Kind() transfer.Kind { return transfer.NativeCopyEngine }

// Init opens DVP on the shared GL context, reads the device constants
// and registers both textures.
func (b *Backend) Init(tex transfer.Textures) (c transfer.Constants, err error) {
	if b.open {
		return c, transfer.ErrAlreadyInitialized
	}
	if err = transfer.Fault("dvpInitGLContext", b.dvp.initContext()); err != nil {
		return c, err
	}
	b.open = true
	defer func() {
		if err != nil {
			err = errors.Join(err, b.Teardown())
		}
	}()

	var status int
	if c, status = b.dvp.constants(); status != 0 {
		return c, transfer.Fault("dvpGetRequiredConstantsGLCtx", status)
	}
	// capture textures receive frames, playback ones are read back
	for dir, name := range [2]uint32{transfer.CPUtoGPU: tex.Capture, transfer.GPUtoCPU: tex.Playback} {
		h, status := b.dvp.textureBuffer(name)
		if status != 0 {
			return c, &transfer.BackendFault{Op: fmt.Sprintf("dvpCreateGPUTextureGL(%v)", name), Status: status}
		}
		b.tex[dir] = h
	}
	b.log.Debug().
		Uint32("addr_align", c.BufferAddrAlignment).
		Uint32("stride_align", c.BufferGPUStrideAlignment).
		Uint32("sem_size", c.SemaphoreAllocSize).
		Msg("DVP is ready")
	return c, nil
}

func (b *Backend) ImportSync(sem *uint32) (transfer.SyncHandle, error) {
	h, status := b.dvp.importSync(sem)
	if status != 0 {
		return 0, transfer.Fault("dvpImportSyncObject", status)
	}
	b.syncs[transfer.SyncHandle(h)] = struct{}{}
	return transfer.SyncHandle(h), nil
}

func (b *Backend) FreeSync(h transfer.SyncHandle) error {
	if _, ok := b.syncs[h]; !ok {
		return fmt.Errorf("dvp: unknown sync %v", h)
	}
	delete(b.syncs, h)
	return transfer.Fault("dvpFreeSyncObject", b.dvp.freeSync(handle(h)))
}

func (b *Backend) RegisterBuffer(desc transfer.BufferDesc, _ transfer.Direction) (transfer.BufferHandle, error) {
	if len(desc.Buffer) == 0 {
		return 0, transfer.ErrBadBuffer
	}
	h, status := b.dvp.createBuffer(desc)
	if status != 0 {
		return 0, transfer.Fault("dvpCreateBuffer", status)
	}
	b.buffers[transfer.BufferHandle(h)] = struct{}{}
	return transfer.BufferHandle(h), nil
}

func (b *Backend) UnregisterBuffer(h transfer.BufferHandle) error {
	if _, ok := b.buffers[h]; !ok {
		return fmt.Errorf("dvp: unknown buffer %v", h)
	}
	delete(b.buffers, h)
	return transfer.Fault("dvpDestroyBuffer", b.dvp.destroyBuffer(handle(h)))
}

// BeginTransfer queues a lined copy. The copy starts once the source
// semaphore reaches Src.Value and sets the destination one to Dst.Value.
func (b *Backend) BeginTransfer(op transfer.Op) error {
	if _, ok := b.buffers[op.Buffer]; !ok {
		return fmt.Errorf("dvp: unknown buffer %v", op.Buffer)
	}
	tex := b.tex[op.Dir]
	src, dst := handle(op.Buffer), tex
	if op.Dir == transfer.GPUtoCPU {
		src, dst = tex, handle(op.Buffer)
	}
	status := b.dvp.copyLined(tex,
		src, handle(op.Src.Handle), op.Src.Value,
		dst, handle(op.Dst.Handle), op.Dst.Value,
		op.Height)
	return transfer.Fault("dvpMemcpyLined", status)
}

// Wait blocks without a timeout.
func (b *Backend) Wait(p transfer.SyncPoint) error {
	return transfer.Fault("dvpSyncObjClientWaitPartial", b.dvp.waitPartial(handle(p.Handle), p.Value))
}

func (b *Backend) LockTexture(d transfer.Direction) error {
	return transfer.Fault("dvpMapBufferWaitAPI", b.dvp.mapWaitAPI(b.tex[d]))
}

func (b *Backend) UnlockTexture(d transfer.Direction) error {
	return transfer.Fault("dvpMapBufferEndAPI", b.dvp.mapEndAPI(b.tex[d]))
}

// Teardown frees whatever sessions left behind, then the textures,
// then closes the context. Every step is attempted.
func (b *Backend) Teardown() error {
	if !b.open {
		return nil
	}
	var errs []error
	for h := range b.buffers {
		errs = append(errs, b.UnregisterBuffer(h))
	}
	for h := range b.syncs {
		errs = append(errs, b.FreeSync(h))
	}
	for i, h := range b.tex {
		if h != 0 {
			errs = append(errs, transfer.Fault("dvpFreeBuffer", b.dvp.freeBuffer(h)))
			b.tex[i] = 0
		}
	}
	errs = append(errs, transfer.Fault("dvpCloseGLContext", b.dvp.closeContext()))
	b.open = false
	if err := errors.Join(errs...); err != nil {
		b.log.Error().Err(err).Msg("DVP teardown")
		return err
	}
	return nil
}

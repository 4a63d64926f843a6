// Package glpin moves frames through host memory pinned with the
// GL_AMD_pinned_memory extension.
//
// Every call must come from the thread that owns the GL context.
package glpin

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/nkusongzhichao/PlusLib/pkg/logger"
	"github.com/nkusongzhichao/PlusLib/pkg/transfer"
)

const (
	// GL_EXTERNAL_VIRTUAL_MEMORY_BUFFER_AMD
	externalVirtualMemoryBuffer = 0x9160

	glNoError           = 0
	glPixelPackBuffer   = 0x88EB
	glPixelUnpackBuffer = 0x88EC

	glAlreadySignaled    = 0x911A
	glTimeoutExpired     = 0x911B
	glConditionSatisfied = 0x911C
	glWaitFailed         = 0x911D
)

var _ transfer.Backend = (*Backend)(nil)

const DefaultFenceTimeout = 40 * time.Millisecond

type api interface {
	pin(size int, addr unsafe.Pointer) (name uint32, status uint32)
	unpin(name uint32) uint32
	upload(name, texture uint32, w, h int32)
	download(name uint32, w, h int32)
	fence(timeout uint64) uint32
	unbind(target uint32)
	err() uint32
}

type Options struct {
	// FenceTimeout bounds the wait of one frame.
	FenceTimeout time.Duration
	Log          *logger.Logger
}

// Backend is the pinned buffer backend.
type Backend struct {
	gl      api
	opts    Options
	tex     transfer.Textures
	buffers map[transfer.BufferHandle]uint32
	log     *logger.Logger
}

// New returns the backend over the current GL context.
func New(opts Options) *Backend { return newBackend(glContext{}, opts) }

func newBackend(gl api, opts Options) *Backend {
	if opts.FenceTimeout <= 0 {
		opts.FenceTimeout = DefaultFenceTimeout
	}
	if opts.Log == nil {
		opts.Log = logger.Default()
	}
	return &Backend{
		gl:      gl,
		opts:    opts,
		buffers: map[transfer.BufferHandle]uint32{},
		log:     opts.Log.Extend(opts.Log.With().Str("backend", "glpin")),
	}
}

func (b *Backend) Kind() transfer.Kind { return transfer.PinnedBuffer }

// Init keeps the textures, the extension has no device constants.
func (b *Backend) Init(tex transfer.Textures) (transfer.Constants, error) {
	b.tex = tex
	b.log.Debug().Dur("fence", b.opts.FenceTimeout).Msg("Pinned memory is on")
	return transfer.Constants{}, nil
}

func (b *Backend) ImportSync(*uint32) (transfer.SyncHandle, error) { return 0, transfer.ErrUnsupported }
func (b *Backend) FreeSync(transfer.SyncHandle) error              { return transfer.ErrUnsupported }
func (b *Backend) Wait(transfer.SyncPoint) error                   { return transfer.ErrUnsupported }

// RegisterBuffer pins the host buffer behind a new buffer object.
// The address must be aligned to 4096 bytes.
func (b *Backend) RegisterBuffer(desc transfer.BufferDesc, _ transfer.Direction) (transfer.BufferHandle, error) {
	if len(desc.Buffer) == 0 || desc.Size > uint64(len(desc.Buffer)) {
		return 0, transfer.ErrBadBuffer
	}
	name, status := b.gl.pin(int(desc.Size), unsafe.Pointer(&desc.Buffer[0]))
	if status != glNoError {
		if name != 0 {
			b.gl.unpin(name)
		}
		return 0, &transfer.BackendFault{Op: "glBufferData(GL_EXTERNAL_VIRTUAL_MEMORY_BUFFER_AMD)", Status: int(status)}
	}
	h := transfer.BufferHandle(name)
	b.buffers[h] = name
	return h, nil
}

// UnregisterBuffer deletes the buffer object, which unpins the memory.
func (b *Backend) UnregisterBuffer(h transfer.BufferHandle) error {
	name, ok := b.buffers[h]
	if !ok {
		return fmt.Errorf("glpin: unknown buffer %v", h)
	}
	delete(b.buffers, h)
	return transfer.Fault("glDeleteBuffers", int(b.gl.unpin(name)))
}

// BeginTransfer runs the copy and waits on a fence for at most
// the fence timeout. A missed fence is ErrTransferTimeout.
func (b *Backend) BeginTransfer(op transfer.Op) error {
	name, ok := b.buffers[op.Buffer]
	if !ok {
		return fmt.Errorf("glpin: unknown buffer %v", op.Buffer)
	}
	w, h := int32(op.Width), int32(op.Height)

	target := uint32(glPixelPackBuffer)
	switch op.Dir {
	case transfer.CPUtoGPU:
		target = glPixelUnpackBuffer
		b.gl.upload(name, b.tex.Capture, w, h)
	case transfer.GPUtoCPU:
		// from the current read framebuffer
		b.gl.download(name, w, h)
	default:
		return fmt.Errorf("glpin: unknown %v", op.Dir)
	}
	status := b.gl.fence(uint64(b.opts.FenceTimeout.Nanoseconds()))
	b.gl.unbind(target)

	if e := b.gl.err(); e != glNoError {
		return &transfer.BackendFault{Op: "pinned " + op.Dir.String(), Status: int(e)}
	}
	switch status {
	case glAlreadySignaled, glConditionSatisfied:
		return nil
	case glTimeoutExpired:
		return transfer.ErrTransferTimeout
	}
	return &transfer.BackendFault{Op: "glClientWaitSync", Status: int(status)}
}

func (b *Backend) LockTexture(transfer.Direction) error   { return nil }
func (b *Backend) UnlockTexture(transfer.Direction) error { return nil }

// Teardown deletes the buffer objects sessions left behind.
func (b *Backend) Teardown() error {
	for h, name := range b.buffers {
		b.log.Warn().Uint32("buffer", name).Msg("Buffer object is still pinned")
		b.gl.unpin(name)
		delete(b.buffers, h)
	}
	return nil
}

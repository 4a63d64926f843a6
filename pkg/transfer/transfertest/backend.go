// Package transfertest provides an in-memory transfer backend.
//
// The fake behaves like the hardware it stands for: the native copy engine
// kind runs copies in order on its own goroutine and signals semaphores when
// a copy lands, the pinned buffer kind copies synchronously and can be told
// to miss fences. Every handle it hands out is counted so tests can check
// that sessions release exactly what they acquired.
package transfertest

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nkusongzhichao/PlusLib/pkg/transfer"
)

// Operation names accepted by FailOn.
const (
	OpInit       = "init"
	OpImport     = "import sync"
	OpFreeSync   = "free sync"
	OpRegister   = "register buffer"
	OpUnregister = "unregister buffer"
	OpBegin      = "begin transfer"
	OpWait       = "wait"
	OpLock       = "lock texture"
	OpUnlock     = "unlock texture"
	OpTeardown   = "teardown"
)

var errStopped = errors.New("transfertest: copy engine is stopped")

// Resources are the live handles of the fake.
type Resources struct {
	Syncs   int
	Buffers int
	Locks   int
}

type Backend struct {
	kind   transfer.Kind
	consts transfer.Constants

	// Latency of every copy.
	Latency time.Duration

	mu       sync.Mutex
	cond     *sync.Cond
	faults   map[string]error
	syncs    map[transfer.SyncHandle]*uint32
	buffers  map[transfer.BufferHandle]transfer.BufferDesc
	locks    map[transfer.Direction]int
	queued   map[transfer.Direction]int
	textures map[transfer.Direction][]byte
	nextID   uint64
	timeouts int
	paused   bool
	stopped  bool
	inited   bool

	queue     chan func()
	done      chan struct{}
	completed atomic.Int64
	conflicts atomic.Int64

	// history
	Descs []transfer.BufferDesc
	Ops   []transfer.Op
	Tex   transfer.Textures
}

// DefaultConstants look like what a workstation board reports.
var DefaultConstants = transfer.Constants{
	BufferAddrAlignment:      4096,
	BufferGPUStrideAlignment: 256,
	SemaphoreAddrAlignment:   64,
	SemaphoreAllocSize:       64,
	SemaphorePayloadOffset:   0,
	SemaphorePayloadSize:     4,
}

func New(kind transfer.Kind) *Backend {
	b := &Backend{
		kind:     kind,
		faults:   map[string]error{},
		syncs:    map[transfer.SyncHandle]*uint32{},
		buffers:  map[transfer.BufferHandle]transfer.BufferDesc{},
		locks:    map[transfer.Direction]int{},
		queued:   map[transfer.Direction]int{},
		textures: map[transfer.Direction][]byte{},
	}
	if kind == transfer.NativeCopyEngine {
		b.consts = DefaultConstants
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Factory hands out this backend for its own kind.
func (b *Backend) Factory() transfer.BackendFactory {
	return func(k transfer.Kind) (transfer.Backend, error) {
		if k != b.kind {
			return nil, fmt.Errorf("transfertest: %v is not %v", k, b.kind)
		}
		return b, nil
	}
}

// FailOn makes op fail with err until cleared with a nil err.
func (b *Backend) FailOn(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.faults, op)
		return
	}
	b.faults[op] = err
}

// TimeoutNext makes the next n pinned buffer transfers miss their fence.
func (b *Backend) TimeoutNext(n int) {
	b.mu.Lock()
	b.timeouts = n
	b.mu.Unlock()
}

// Pause holds the copy engine before its next copy.
func (b *Backend) Pause() {
	b.mu.Lock()
	b.paused = true
	b.mu.Unlock()
}

func (b *Backend) Resume() {
	b.mu.Lock()
	b.paused = false
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Completed returns the number of copies that landed.
func (b *Backend) Completed() int { return int(b.completed.Load()) }

// Conflicts counts copies issued while the caller held the texture.
func (b *Backend) Conflicts() int { return int(b.conflicts.Load()) }

func (b *Backend) Live() Resources {
	b.mu.Lock()
	defer b.mu.Unlock()
	locks := 0
	for _, n := range b.locks {
		locks += n
	}
	return Resources{Syncs: len(b.syncs), Buffers: len(b.buffers), Locks: locks}
}

// SetTexture sets the content of the texture of a direction.
func (b *Backend) SetTexture(d transfer.Direction, data []byte) {
	b.mu.Lock()
	b.textures[d] = append([]byte(nil), data...)
	b.mu.Unlock()
}

// Texture returns a copy of the texture content of a direction.
func (b *Backend) Texture(d transfer.Direction) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.textures[d]...)
}

func (b *Backend) fault(op string) error {
	if err, ok := b.faults[op]; ok {
		return &transfer.BackendFault{Op: op, Status: 1, Err: err}
	}
	return nil
}

func (b *Backend) Kind() transfer.Kind { return b.kind }

func (b *Backend) Init(tex transfer.Textures) (transfer.Constants, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fault(OpInit); err != nil {
		return transfer.Constants{}, err
	}
	b.Tex = tex
	b.inited = true
	b.stopped = false
	if b.kind == transfer.NativeCopyEngine {
		b.queue, b.done = make(chan func(), 64), make(chan struct{})
		go b.engine(b.queue, b.done)
	}
	return b.consts, nil
}

func (b *Backend) ImportSync(sem *uint32) (transfer.SyncHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.kind != transfer.NativeCopyEngine {
		return 0, transfer.ErrUnsupported
	}
	if err := b.fault(OpImport); err != nil {
		return 0, err
	}
	b.nextID++
	h := transfer.SyncHandle(b.nextID)
	b.syncs[h] = sem
	return h, nil
}

// FreeSync always releases the handle, an injected fault is reported after.
func (b *Backend) FreeSync(h transfer.SyncHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.syncs[h]; !ok {
		return fmt.Errorf("transfertest: unknown sync %v", h)
	}
	delete(b.syncs, h)
	return b.fault(OpFreeSync)
}

func (b *Backend) RegisterBuffer(desc transfer.BufferDesc, _ transfer.Direction) (transfer.BufferHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inited {
		return 0, errors.New("transfertest: not initialized")
	}
	if err := b.fault(OpRegister); err != nil {
		return 0, err
	}
	b.nextID++
	h := transfer.BufferHandle(b.nextID)
	b.buffers[h] = desc
	b.Descs = append(b.Descs, desc)
	return h, nil
}

func (b *Backend) UnregisterBuffer(h transfer.BufferHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.buffers[h]; !ok {
		return fmt.Errorf("transfertest: unknown buffer %v", h)
	}
	delete(b.buffers, h)
	return b.fault(OpUnregister)
}

func (b *Backend) BeginTransfer(op transfer.Op) error {
	b.mu.Lock()
	if err := b.fault(OpBegin); err != nil {
		b.mu.Unlock()
		return err
	}
	desc, ok := b.buffers[op.Buffer]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("transfertest: unknown buffer %v", op.Buffer)
	}
	if b.locks[op.Dir] > 0 {
		b.conflicts.Add(1)
	}
	b.Ops = append(b.Ops, op)

	if b.kind == transfer.PinnedBuffer {
		defer b.mu.Unlock()
		if b.timeouts > 0 {
			b.timeouts--
			return transfer.ErrTransferTimeout
		}
		b.copyFrame(op.Dir, desc)
		b.completed.Add(1)
		return nil
	}

	src, dst := b.syncs[op.Src.Handle], b.syncs[op.Dst.Handle]
	if src == nil || dst == nil {
		b.mu.Unlock()
		return errors.New("transfertest: unknown sync object")
	}
	if b.stopped || b.queue == nil {
		b.mu.Unlock()
		return errStopped
	}
	queue, done := b.queue, b.done
	b.queued[op.Dir]++
	b.mu.Unlock()

	copyOp := func() {
		b.mu.Lock()
		for !b.stopped && (b.paused || b.syncs[op.Src.Handle] != nil && atomic.LoadUint32(src) < op.Src.Value) {
			b.cond.Wait()
		}
		b.mu.Unlock()
		if b.Latency > 0 {
			time.Sleep(b.Latency)
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		// the session may have closed mid-flight, its memory is gone then
		if _, ok := b.buffers[op.Buffer]; ok && !b.stopped {
			b.copyFrame(op.Dir, desc)
		}
		if b.syncs[op.Dst.Handle] != nil {
			atomic.StoreUint32(dst, op.Dst.Value)
		}
		b.queued[op.Dir]--
		b.completed.Add(1)
		b.cond.Broadcast()
	}
	// the queue is never closed, a teardown in between only stops the engine
	select {
	case queue <- copyOp:
		return nil
	case <-done:
		b.mu.Lock()
		b.queued[op.Dir]--
		b.cond.Broadcast()
		b.mu.Unlock()
		return errStopped
	}
}

// copyFrame moves the bytes, b.mu must be held.
func (b *Backend) copyFrame(d transfer.Direction, desc transfer.BufferDesc) {
	n := int(desc.Stride) * int(desc.Height)
	if d == transfer.CPUtoGPU {
		b.textures[d] = append(b.textures[d][:0], desc.Buffer[:n]...)
		return
	}
	copy(desc.Buffer[:n], b.textures[d])
}

func (b *Backend) engine(queue <-chan func(), done <-chan struct{}) {
	for {
		select {
		case f := <-queue:
			f()
		case <-done:
			return
		}
	}
}

func (b *Backend) Wait(p transfer.SyncPoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fault(OpWait); err != nil {
		return err
	}
	sem, ok := b.syncs[p.Handle]
	if !ok {
		return fmt.Errorf("transfertest: unknown sync %v", p.Handle)
	}
	for atomic.LoadUint32(sem) < p.Value {
		if b.stopped {
			return errStopped
		}
		b.cond.Wait()
	}
	return nil
}

// LockTexture waits for the queued copies of the texture like the
// copy engine does before the application may use it.
func (b *Backend) LockTexture(d transfer.Direction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fault(OpLock); err != nil {
		return err
	}
	for b.queued[d] > 0 && !b.stopped {
		b.cond.Wait()
	}
	b.locks[d]++
	return nil
}

func (b *Backend) UnlockTexture(d transfer.Direction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fault(OpUnlock); err != nil {
		return err
	}
	if b.locks[d] == 0 {
		return fmt.Errorf("transfertest: %v texture is not locked", d)
	}
	b.locks[d]--
	return nil
}

// Teardown stops the copy engine, queued copies no longer touch memory.
func (b *Backend) Teardown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done != nil {
		close(b.done)
		b.queue, b.done = nil, nil
	}
	b.stopped = true
	b.inited = false
	b.cond.Broadcast()
	return b.fault(OpTeardown)
}

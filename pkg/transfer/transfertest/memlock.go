package transfertest

import (
	"errors"
	"sync"

	"github.com/nkusongzhichao/PlusLib/pkg/memlock"
	"github.com/nkusongzhichao/PlusLib/pkg/transfer"
)

var ErrQuota = errors.New("transfertest: working set quota exceeded")

// Quota is a process quota that refuses to go over Ceiling.
type Quota struct {
	mu      sync.Mutex
	limits  memlock.Limits
	Ceiling uint64
}

func (q *Quota) Limits() (memlock.Limits, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.limits, nil
}

func (q *Quota) SetLimits(l memlock.Limits) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Ceiling > 0 && l.Min > q.Ceiling {
		return ErrQuota
	}
	q.limits = l
	return nil
}

// Locker counts locked buffers instead of locking pages.
type Locker struct {
	mu     sync.Mutex
	locked map[*byte]int
}

func (l *Locker) Lock(b []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked == nil {
		l.locked = map[*byte]int{}
	}
	if _, ok := l.locked[&b[0]]; ok {
		return errors.New("transfertest: pages are locked already")
	}
	l.locked[&b[0]] = len(b)
	return nil
}

func (l *Locker) Unlock(b []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.locked[&b[0]]; !ok {
		return errors.New("transfertest: pages are not locked")
	}
	delete(l.locked, &b[0])
	return nil
}

// Locked returns the number of locked buffers.
func (l *Locker) Locked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locked)
}

// NewManager is a pinning manager over a fake quota and locker.
func NewManager(ceiling uint64, lockedFrames uint64) (*memlock.Manager, *Quota, *Locker) {
	q, l := &Quota{Ceiling: ceiling}, &Locker{}
	return memlock.NewManager(q, l, memlock.Options{LockedFrames: lockedFrames}), q, l
}

// Driver is a graphics context description.
type Driver struct {
	RendererName  string
	ExtensionList string
}

func (d Driver) Renderer() string   { return d.RendererName }
func (d Driver) Extensions() string { return d.ExtensionList }

var (
	Quadro   = Driver{RendererName: "Quadro RTX 4000/PCIe/SSE2", ExtensionList: "GL_ARB_sync GL_NV_copy_image"}
	Radeon   = Driver{RendererName: "AMD Radeon Pro W6800", ExtensionList: "GL_ARB_sync GL_AMD_pinned_memory GL_ARB_pixel_buffer_object"}
	Software = Driver{RendererName: "llvmpipe (LLVM 15.0.7, 256 bits)", ExtensionList: "GL_ARB_sync GL_ARB_pixel_buffer_object"}
)

// DriverOf returns a context that reports the kind.
func DriverOf(k transfer.Kind) Driver {
	switch k {
	case transfer.NativeCopyEngine:
		return Quadro
	case transfer.PinnedBuffer:
		return Radeon
	}
	return Software
}

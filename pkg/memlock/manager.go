package memlock

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// DefaultLockedFrames is how many frames of locked memory
// the working set is raised for.
const DefaultLockedFrames = 80

// ErrBudgetExceeded is reported when a request would go over MaxLockedBytes.
var ErrBudgetExceeded = errors.New("locked memory budget exceeded")

// Limits of the process resident memory.
// Min and Max are the working set bounds on Windows
// and the soft and hard RLIMIT_MEMLOCK on Unix.
type Limits struct {
	Min, Max uint64
}

// Quota reads and changes the process resident memory limits.
type Quota interface {
	Limits() (Limits, error)
	SetLimits(Limits) error
}

// Locker locks pages in physical memory.
type Locker interface {
	Lock(b []byte) error
	Unlock(b []byte) error
}

// ResourceLimitError means the OS declined to give more resident memory.
type ResourceLimitError struct {
	Op        string
	Requested uint64
	Err       error
}

func (e *ResourceLimitError) Error() string {
	return fmt.Sprintf("memlock: %v %v bytes: %v", e.Op, e.Requested, e.Err)
}

func (e *ResourceLimitError) Unwrap() error { return e.Err }

type Options struct {
	LockedFrames uint64
	// MaxLockedBytes caps the budget, 0 means the OS decides.
	MaxLockedBytes uint64
}

// Manager tracks the locked bytes of the process against its quota.
type Manager struct {
	mu     sync.Mutex
	quota  Quota
	locker Locker
	opts   Options

	// base limits as found before the first change
	base    *Limits
	granted uint64
	pinned  uint64
}

func NewManager(quota Quota, locker Locker, opts Options) *Manager {
	if opts.LockedFrames == 0 {
		opts.LockedFrames = DefaultLockedFrames
	}
	return &Manager{quota: quota, locker: locker, opts: opts}
}

// NewSystemManager manages the quota of the current process.
func NewSystemManager(opts Options) *Manager {
	return NewManager(systemQuota{}, systemLocker{}, opts)
}

// EnsureWorkingSetFor raises the quota so that LockedFrames frames of
// frameBytes each fit on top of what is pinned already.
// On failure the quota stays as it was.
func (m *Manager) EnsureWorkingSetFor(frameBytes uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grow("ensure working set", satAdd(m.pinned, satMul(frameBytes, m.opts.LockedFrames)))
}

func (m *Manager) grow(op string, target uint64) error {
	if target <= m.granted {
		return nil
	}
	if m.opts.MaxLockedBytes > 0 && target > m.opts.MaxLockedBytes {
		return &ResourceLimitError{Op: op, Requested: target, Err: ErrBudgetExceeded}
	}
	if m.base == nil {
		l, err := m.quota.Limits()
		if err != nil {
			return &ResourceLimitError{Op: op, Requested: target, Err: fmt.Errorf("query limits: %w", err)}
		}
		m.base = &l
	}
	next := Limits{Min: satAdd(m.base.Min, target), Max: satAdd(m.base.Max, target)}
	if err := m.quota.SetLimits(next); err != nil {
		return &ResourceLimitError{Op: op, Requested: target, Err: err}
	}
	m.granted = target
	return nil
}

// Restore puts the quota back to the limits found before the first
// change. It is refused while pages are pinned.
func (m *Manager) Restore() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pinned > 0 {
		return fmt.Errorf("memlock: restore with %v bytes pinned", m.pinned)
	}
	if m.base == nil || m.granted == 0 {
		return nil
	}
	if err := m.quota.SetLimits(*m.base); err != nil {
		return &ResourceLimitError{Op: "restore", Requested: 0, Err: err}
	}
	m.granted = 0
	return nil
}

// Pin locks the pages of b and accounts them in the budget.
// The quota is raised when b does not fit the current grant.
// Nothing is locked when an error is returned.
func (m *Manager) Pin(b []byte) (*Pin, error) {
	if len(b) == 0 {
		return nil, errors.New("memlock: pin of an empty buffer")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := uint64(len(b))
	if err := m.grow("pin", satAdd(m.pinned, n)); err != nil {
		return nil, err
	}
	if err := m.locker.Lock(b); err != nil {
		return nil, fmt.Errorf("memlock: lock %v bytes: %w", n, err)
	}
	m.pinned += n
	return &Pin{m: m, b: b}, nil
}

// Pinned returns the sum of currently locked bytes.
func (m *Manager) Pinned() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pinned
}

// Granted returns the bytes the quota was raised by.
func (m *Manager) Granted() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.granted
}

func (m *Manager) unpin(b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinned -= uint64(len(b))
	return m.locker.Unlock(b)
}

// Pin is a locked buffer.
type Pin struct {
	m    *Manager
	b    []byte
	once sync.Once
}

// Release unlocks the pages and returns them to the budget.
// Only the first call has an effect.
func (p *Pin) Release() (err error) {
	p.once.Do(func() { err = p.m.unpin(p.b) })
	return
}

func (p *Pin) Len() int { return len(p.b) }

func satAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func satMul(a, b uint64) uint64 {
	if a != 0 && b > math.MaxUint64/a {
		return math.MaxUint64
	}
	return a * b
}

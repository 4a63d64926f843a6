package transfer

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/nkusongzhichao/PlusLib/pkg/memlock"
)

const semaphoreWord = 4

// SyncObject is a semaphore shared by the CPU and the GPU.
// The producer claims increasing release values, the consumer
// side acknowledges them by moving the acquire value up.
type SyncObject struct {
	backend Backend
	mem     *memlock.Block
	sem     *uint32
	handle  SyncHandle

	release uint32
	acquire uint32
	closed  bool
}

// NewSyncObject allocates the semaphore memory and imports it.
// An import failure frees the memory and returns *SyncImportError.
func NewSyncObject(b Backend, allocSize, addrAlignment uint32) (*SyncObject, error) {
	if allocSize < semaphoreWord {
		allocSize = semaphoreWord
	}
	mem, err := memlock.AllocAligned(int(allocSize), int(addrAlignment))
	if err != nil {
		return nil, fmt.Errorf("transfer: semaphore memory: %w", err)
	}
	sem := (*uint32)(unsafe.Pointer(&mem.Bytes()[0]))
	atomic.StoreUint32(sem, 0)

	h, err := b.ImportSync(sem)
	if err != nil {
		if ferr := mem.Free(); ferr != nil {
			err = errors.Join(err, ferr)
		}
		return nil, &SyncImportError{Err: err}
	}
	return &SyncObject{backend: b, mem: mem, sem: sem, handle: h}, nil
}

// Claim takes the next release value.
func (s *SyncObject) Claim() uint32 {
	s.release++
	return s.release
}

// unclaim gives back a value that was never submitted.
func (s *SyncObject) unclaim() { s.release-- }

// Consume marks every claimed value as done.
func (s *SyncObject) Consume() { s.acquire = s.release }

func (s *SyncObject) Release() uint32    { return s.release }
func (s *SyncObject) Acquire() uint32    { return s.acquire }
func (s *SyncObject) Pending() uint32    { return s.release - s.acquire }
func (s *SyncObject) Handle() SyncHandle { return s.handle }

// Semaphore reads the value the backend last signalled.
func (s *SyncObject) Semaphore() uint32 { return atomic.LoadUint32(s.sem) }

func (s *SyncObject) point(v uint32) SyncPoint { return SyncPoint{Handle: s.handle, Value: v} }

// Close frees the backend handle and then the memory.
// The memory is freed even when the backend reports a fault.
func (s *SyncObject) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	if err := s.backend.FreeSync(s.handle); err != nil {
		errs = append(errs, err)
	}
	if err := s.mem.Free(); err != nil {
		errs = append(errs, fmt.Errorf("transfer: semaphore memory: %w", err))
	}
	s.sem = nil
	return errors.Join(errs...)
}

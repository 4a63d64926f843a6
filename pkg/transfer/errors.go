package transfer

import (
	"errors"
	"fmt"

	"github.com/nkusongzhichao/PlusLib/pkg/memlock"
)

var (
	// ErrCapabilityUnavailable means neither fast path is supported,
	// the caller should use a conventional copy.
	ErrCapabilityUnavailable = errors.New("transfer: no zero-copy backend available")
	ErrAlreadyInitialized    = errors.New("transfer: already initialized")
	ErrNotInitialized        = errors.New("transfer: not initialized")
	ErrSessionsAlive         = errors.New("transfer: sessions are still open")
	// ErrTransferTimeout is a missed frame, the session stays usable.
	ErrTransferTimeout = errors.New("transfer: fence wait timed out")
	ErrSessionClosed   = errors.New("transfer: session is closed")
	ErrUnsupported     = errors.New("transfer: not supported by the backend")
	ErrBadBuffer       = errors.New("transfer: bad buffer")
)

// ResourceLimitError is returned when the OS declines more resident memory.
type ResourceLimitError = memlock.ResourceLimitError

// BackendFault is a non-success status of a vendor call.
type BackendFault struct {
	Op     string
	Status int
	Err    error
}

// Fault returns a BackendFault for a non-zero status, nil otherwise.
func Fault(op string, status int) error {
	if status == 0 {
		return nil
	}
	return &BackendFault{Op: op, Status: status}
}

func (e *BackendFault) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transfer: %v failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transfer: %v failed (status 0x%x)", e.Op, e.Status)
}

func (e *BackendFault) Unwrap() error { return e.Err }

// SyncImportError means a semaphore could not be imported into the backend.
type SyncImportError struct {
	Err error
}

func (e *SyncImportError) Error() string { return "transfer: sync import: " + e.Err.Error() }
func (e *SyncImportError) Unwrap() error { return e.Err }

// PinningError means host memory could not be locked or pinned.
type PinningError struct {
	Op  string
	Err error
}

func (e *PinningError) Error() string { return fmt.Sprintf("transfer: %v: %v", e.Op, e.Err) }
func (e *PinningError) Unwrap() error { return e.Err }

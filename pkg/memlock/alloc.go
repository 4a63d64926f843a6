package memlock

import (
	"errors"
	"fmt"
	"os"
	"unsafe"
)

// PageSize of the host, the natural alignment of Alloc.
var PageSize = os.Getpagesize()

var ErrAlignment = errors.New("alignment should be a power of two")

// Block is an off-heap memory region with a guaranteed alignment.
type Block struct {
	mapping []byte
	b       []byte
}

// Alloc returns a zeroed page-aligned block of size bytes.
func Alloc(size int) (*Block, error) { return AllocAligned(size, PageSize) }

// AllocAligned returns a zeroed block of size bytes whose first byte
// is aligned to align. Zero align means page alignment.
func AllocAligned(size, align int) (*Block, error) {
	if size <= 0 {
		return nil, fmt.Errorf("bad block size %v", size)
	}
	if align == 0 {
		align = PageSize
	}
	if align&(align-1) != 0 {
		return nil, fmt.Errorf("%w, have %v", ErrAlignment, align)
	}

	n := size
	// the mapping is page aligned already
	if align > PageSize {
		n += align
	}
	mapping, err := mapAnon(n)
	if err != nil {
		return nil, fmt.Errorf("alloc %v bytes: %w", n, err)
	}
	off := alignUp(addrOf(mapping), uintptr(align)) - addrOf(mapping)
	return &Block{mapping: mapping, b: mapping[off : off+uintptr(size) : off+uintptr(size)]}, nil
}

// Bytes returns the aligned view of the block, nil once freed.
func (b *Block) Bytes() []byte { return b.b }

// Addr returns the address of the first aligned byte.
func (b *Block) Addr() uintptr { return addrOf(b.b) }

func (b *Block) Len() int { return len(b.b) }

// Free unmaps the block. Repeated calls are no-ops.
func (b *Block) Free() error {
	if b == nil || b.mapping == nil {
		return nil
	}
	m := b.mapping
	b.mapping, b.b = nil, nil
	return unmap(m)
}

// Aligned reports whether the buffer starts at a multiple of align.
func Aligned(buf []byte, align int) bool {
	if align <= 1 || len(buf) == 0 {
		return true
	}
	return addrOf(buf)%uintptr(align) == 0
}

func addrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

func alignUp(v, a uintptr) uintptr { return (v + a - 1) &^ (a - 1) }

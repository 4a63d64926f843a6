package memlock

import (
	"errors"
	"testing"
)

func TestAllocAligned(t *testing.T) {
	tests := []struct {
		size, align int
	}{
		{size: 4, align: 8},
		{size: 64, align: 4096},
		{size: 1920 * 1080 * 4, align: 0},
		{size: 100, align: 1 << 16},
	}
	for _, tt := range tests {
		b, err := AllocAligned(tt.size, tt.align)
		if err != nil {
			t.Fatalf("%+v: %v", tt, err)
		}
		align := tt.align
		if align == 0 {
			align = PageSize
		}
		if b.Len() != tt.size {
			t.Errorf("len = %v, want %v", b.Len(), tt.size)
		}
		if b.Addr()%uintptr(align) != 0 || !Aligned(b.Bytes(), align) {
			t.Errorf("address %x is not aligned to %v", b.Addr(), align)
		}
		for _, v := range b.Bytes()[:4] {
			if v != 0 {
				t.Errorf("block is not zeroed")
			}
		}
		if err := b.Free(); err != nil {
			t.Errorf("free: %v", err)
		}
		if err := b.Free(); err != nil {
			t.Errorf("second free: %v", err)
		}
		if b.Bytes() != nil {
			t.Errorf("freed block still has bytes")
		}
	}
}

func TestAllocBadAlignment(t *testing.T) {
	if _, err := AllocAligned(16, 24); !errors.Is(err, ErrAlignment) {
		t.Errorf("err = %v, want ErrAlignment", err)
	}
	if _, err := AllocAligned(0, 8); err == nil {
		t.Errorf("zero size should fail")
	}
}

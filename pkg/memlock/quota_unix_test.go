//go:build linux || darwin

package memlock

import (
	"math"
	"testing"

	"golang.org/x/sys/unix"
)

func TestRlimitFor(t *testing.T) {
	const mb = 1 << 20
	tests := []struct {
		name string
		cur  unix.Rlimit
		l    Limits
		want unix.Rlimit
	}{
		{
			name: "fits under hard",
			cur:  unix.Rlimit{Cur: 8 * mb, Max: 1024 * mb},
			l:    Limits{Min: 8*mb + 600*mb, Max: 1024*mb + 600*mb},
			want: unix.Rlimit{Cur: 608 * mb, Max: 1024 * mb},
		},
		{
			name: "over hard",
			cur:  unix.Rlimit{Cur: 8 * mb, Max: 64 * mb},
			l:    Limits{Min: 8*mb + 600*mb, Max: 64*mb + 600*mb},
			want: unix.Rlimit{Cur: 608 * mb, Max: 664 * mb},
		},
		{
			name: "unlimited hard",
			cur:  unix.Rlimit{Cur: 8 * mb, Max: math.MaxUint64},
			l:    Limits{Min: 608 * mb, Max: math.MaxUint64},
			want: unix.Rlimit{Cur: 608 * mb, Max: math.MaxUint64},
		},
		{
			name: "restore after a raise",
			cur:  unix.Rlimit{Cur: 608 * mb, Max: 664 * mb},
			l:    Limits{Min: 8 * mb, Max: 64 * mb},
			want: unix.Rlimit{Cur: 8 * mb, Max: 64 * mb},
		},
		{
			name: "restore without a raise",
			cur:  unix.Rlimit{Cur: 608 * mb, Max: 1024 * mb},
			l:    Limits{Min: 8 * mb, Max: 1024 * mb},
			want: unix.Rlimit{Cur: 8 * mb, Max: 1024 * mb},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rlimitFor(tt.cur, tt.l); got != tt.want {
				t.Errorf("rlimit = %+v, want %+v", got, tt.want)
			}
		})
	}
}

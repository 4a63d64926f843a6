//go:build linux || darwin

package memlock

import "golang.org/x/sys/unix"

type systemQuota struct{}

func (systemQuota) Limits() (Limits, error) {
	var r unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &r); err != nil {
		return Limits{}, err
	}
	return Limits{Min: uint64(r.Cur), Max: uint64(r.Max)}, nil
}

// SetLimits moves the soft memlock limit to l.Min.
// The hard limit is raised only when l.Min does not fit under it,
// that needs CAP_SYS_RESOURCE.
func (systemQuota) SetLimits(l Limits) error {
	var cur unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &cur); err != nil {
		return err
	}
	r := rlimitFor(cur, l)
	return unix.Setrlimit(unix.RLIMIT_MEMLOCK, &r)
}

func rlimitFor(cur unix.Rlimit, l Limits) unix.Rlimit {
	r := unix.Rlimit{Cur: l.Min, Max: cur.Max}
	switch {
	case l.Min > cur.Max:
		r.Max = l.Max
	case l.Max < cur.Max:
		// lowering is always allowed, it undoes an earlier raise
		r.Max = l.Max
	}
	if r.Max < r.Cur {
		r.Max = r.Cur
	}
	return r
}

type systemLocker struct{}

func (systemLocker) Lock(b []byte) error   { return unix.Mlock(b) }
func (systemLocker) Unlock(b []byte) error { return unix.Munlock(b) }

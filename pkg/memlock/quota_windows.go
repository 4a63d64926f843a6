//go:build windows

package memlock

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

const processSetQuota = 0x0100

var (
	kernel32                     = windows.NewLazySystemDLL("kernel32.dll")
	procGetProcessWorkingSetSize = kernel32.NewProc("GetProcessWorkingSetSize")
	procSetProcessWorkingSetSize = kernel32.NewProc("SetProcessWorkingSetSize")
)

type systemQuota struct{}

func openSelf() (windows.Handle, error) {
	return windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION|processSetQuota, false, windows.GetCurrentProcessId())
}

func (systemQuota) Limits() (Limits, error) {
	h, err := openSelf()
	if err != nil {
		return Limits{}, err
	}
	defer func() { _ = windows.CloseHandle(h) }()

	var lo, hi uintptr
	r, _, err := procGetProcessWorkingSetSize.Call(uintptr(h), uintptr(unsafe.Pointer(&lo)), uintptr(unsafe.Pointer(&hi)))
	if r == 0 {
		return Limits{}, err
	}
	return Limits{Min: uint64(lo), Max: uint64(hi)}, nil
}

func (systemQuota) SetLimits(l Limits) error {
	h, err := openSelf()
	if err != nil {
		return err
	}
	defer func() { _ = windows.CloseHandle(h) }()

	if r, _, err := procSetProcessWorkingSetSize.Call(uintptr(h), uintptr(l.Min), uintptr(l.Max)); r == 0 {
		return err
	}
	return nil
}

type systemLocker struct{}

func (systemLocker) Lock(b []byte) error {
	return windows.VirtualLock(addrOf(b), uintptr(len(b)))
}

func (systemLocker) Unlock(b []byte) error {
	return windows.VirtualUnlock(addrOf(b), uintptr(len(b)))
}

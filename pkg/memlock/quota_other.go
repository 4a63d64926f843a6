//go:build !linux && !darwin && !windows

package memlock

import "errors"

var errNoQuota = errors.New("memlock: page locking is not supported on this platform")

type systemQuota struct{}

func (systemQuota) Limits() (Limits, error) { return Limits{}, errNoQuota }
func (systemQuota) SetLimits(Limits) error  { return errNoQuota }

type systemLocker struct{}

func (systemLocker) Lock([]byte) error   { return errNoQuota }
func (systemLocker) Unlock([]byte) error { return errNoQuota }

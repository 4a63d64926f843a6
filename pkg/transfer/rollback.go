package transfer

import "errors"

// rollback collects the release steps of a partial construction.
type rollback []func() error

func (r *rollback) push(f func() error) { *r = append(*r, f) }

// run releases in reverse order, every step is attempted.
func (r *rollback) run() error {
	var errs []error
	for i := len(*r) - 1; i >= 0; i-- {
		errs = append(errs, (*r)[i]())
	}
	*r = nil
	return errors.Join(errs...)
}

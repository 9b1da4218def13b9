// Package sched applies optional scheduler hints to the calling goroutine's
// OS thread. Hints never affect correctness; failures are reported to the
// caller, which logs and continues.
package sched

// Hints is passed through worker and receiver configuration.
type Hints struct {
	// LockOSThread pins the goroutine to its OS thread for its lifetime.
	LockOSThread bool
	// Nice adjusts the thread's niceness (Linux only). Zero leaves it alone.
	// A non-zero value implies LockOSThread.
	Nice int
}

// Enabled reports whether any hint would be applied.
func (h Hints) Enabled() bool {
	return h.LockOSThread || h.Nice != 0
}

// Apply applies h to the current OS thread. The returned release func must be
// called from the same goroutine before it exits; it is never nil.
func (h Hints) Apply() (release func(), err error) {
	if !h.Enabled() {
		return func() {}, nil
	}
	return apply(h)
}

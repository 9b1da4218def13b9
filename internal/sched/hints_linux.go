//go:build linux

package sched

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

func apply(h Hints) (func(), error) {
	runtime.LockOSThread()
	if h.Nice == 0 {
		return runtime.UnlockOSThread, nil
	}
	tid := unix.Gettid()
	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, h.Nice); err != nil {
		runtime.UnlockOSThread()
		return func() {}, fmt.Errorf("sched: setpriority tid=%d nice=%d: %w", tid, h.Nice, err)
	}
	// The thread keeps its adjusted niceness, so it stays locked and the
	// runtime retires it when the goroutine exits.
	return func() {}, nil
}

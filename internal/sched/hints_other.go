//go:build !linux

package sched

import (
	"errors"
	"runtime"
)

var errNiceUnsupported = errors.New("sched: thread niceness is only supported on linux")

func apply(h Hints) (func(), error) {
	runtime.LockOSThread()
	if h.Nice != 0 {
		return runtime.UnlockOSThread, errNiceUnsupported
	}
	return runtime.UnlockOSThread, nil
}

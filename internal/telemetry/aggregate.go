package telemetry

import (
	"sync"

	"github.com/danmuck/cantelemetry/internal/protocol/can"
)

// Aggregate is the single snapshot shared by all workers of one manager.
// Writes and full reads happen under the same mutex.
type Aggregate struct {
	mu   sync.Mutex
	snap Snapshot
}

func NewAggregate() *Aggregate {
	return &Aggregate{}
}

// Apply overlays sample onto the snapshot. It returns false, leaving the
// snapshot untouched, for samples that are not part of the live view.
func (a *Aggregate) Apply(sample can.Sample) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap.apply(sample)
}

func (a *Aggregate) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap
}

// Reset restores every channel to its zero value.
func (a *Aggregate) Reset() {
	a.mu.Lock()
	a.snap = Snapshot{}
	a.mu.Unlock()
}

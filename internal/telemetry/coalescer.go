package telemetry

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultFlushInterval caps emissions at roughly 60 per second.
const DefaultFlushInterval = 16 * time.Millisecond

// Batch is one coalesced emission: every channel of the snapshot as read at
// flush time.
type Batch struct {
	Seq      uint64    `json:"seq" cbor:"seq"`
	At       time.Time `json:"at" cbor:"at"`
	Snapshot Snapshot  `json:"snapshot" cbor:"snapshot"`
	Changes  []Change  `json:"changes" cbor:"changes"`
}

// SnapshotReader is satisfied by Aggregate.
type SnapshotReader interface {
	Snapshot() Snapshot
}

// Coalescer merges any number of Mark calls between two ticks into a single
// Batch.
type Coalescer struct {
	source   SnapshotReader
	emit     func(Batch)
	interval time.Duration
	now      func() time.Time

	pending atomic.Bool
	seq     atomic.Uint64
}

func NewCoalescer(source SnapshotReader, interval time.Duration, emit func(Batch)) *Coalescer {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Coalescer{
		source:   source,
		emit:     emit,
		interval: interval,
		now:      time.Now,
	}
}

// Mark records that at least one change is pending.
func (c *Coalescer) Mark() {
	c.pending.Store(true)
}

// Reset discards a pending change without emitting it.
func (c *Coalescer) Reset() {
	c.pending.Store(false)
}

func (c *Coalescer) Pending() bool {
	return c.pending.Load()
}

// Flush emits one Batch if a change is pending and reports whether it did.
// The snapshot is read after the flag is cleared, so a Mark racing with the
// read is either included or left pending for the next tick.
func (c *Coalescer) Flush() bool {
	if !c.pending.Swap(false) {
		return false
	}
	snap := c.source.Snapshot()
	c.emit(Batch{
		Seq:      c.seq.Add(1),
		At:       c.now(),
		Snapshot: snap,
		Changes:  snap.Changes(),
	})
	return true
}

// Flushes returns the number of batches emitted so far.
func (c *Coalescer) Flushes() uint64 {
	return c.seq.Load()
}

// Run flushes on every tick until ctx is done.
func (c *Coalescer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Flush()
		}
	}
}

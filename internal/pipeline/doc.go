// Package pipeline provides the generic producer/consumer primitives shared by
// every transport: a per-worker FIFO work queue, a round-robin worker pool and
// a non-blocking fan-out hub.
//
// Ownership boundary:
//   - Queue owns its buffered items and the bounded drop-oldest policy.
//   - Pool owns worker goroutines, their queues and the dispatch cursor. Items
//     still queued at Stop are discarded and counted.
//   - Hub owns subscriber channels; slow subscribers miss events, never block.
//     Backlog subscribers queue without bound instead of missing events.
//   - Item decoding, aggregation and error reporting belong to callers.
package pipeline

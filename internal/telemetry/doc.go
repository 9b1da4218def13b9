// Package telemetry turns decoded CAN samples into the live vehicle snapshot.
//
// Ownership boundary:
//   - Aggregate owns the per-manager Snapshot and its mutex.
//   - Coalescer owns the dirty flag and the fixed-rate flush cadence.
//   - Parser is the worker body: frame validation, decode, routing to the data
//     logger and the aggregate sink.
//   - Transport receivers and the worker pool live elsewhere.
package telemetry

// Package datalog persists the log-only telemetry channels as append-only CSV
// files.
//
// Ownership boundary:
//   - Logger owns the IMU and SUSPENSION files and the single writer goroutine.
//   - Callers own the Logger lifecycle: Init once before any transport starts,
//     Shutdown once at exit. Both are idempotent.
//   - Operational diagnostics go through zerolog, never into these files.
package datalog

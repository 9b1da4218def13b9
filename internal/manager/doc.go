// Package manager runs one ingestion pipeline per transport.
//
// Ownership boundary:
//   - Manager owns the pool lifecycle, the aggregate, the coalescer loop and
//     the change and error hubs for one transport.
//   - Receivers own transport I/O (sockets, serial handles, broker sessions)
//     and only deliver frames and errors through Handler.
//   - The data logger is injected; its lifecycle belongs to the process.
package manager

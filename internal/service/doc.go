// Package service owns the telemetryd process lifecycle.
//
// Ownership boundary:
// - opening and closing the CSV data logger
// - building one manager per transport and starting the enabled ones
// - serving the HTTP surface and logging heartbeats
// - tearing everything down when the run context ends
package service

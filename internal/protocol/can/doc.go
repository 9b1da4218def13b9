// Package can owns the fixed 20-byte telemetry frame contract.
//
// Ownership boundary:
// - frame layout and identifier set
// - payload decoders producing physical-unit samples
// - fixture encoders used by the simulator and tests
//
// Wire layout (all multi-byte fields little-endian):
//
//	[0:4)   timestamp (not interpreted by decode)
//	[4:8)   identifier
//	[8]     length code (not interpreted)
//	[9:17)  payload
//	[17:20) padding
//
// The protocol is single-version; there is no version field to negotiate.
package can

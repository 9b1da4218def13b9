package can

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	FrameLen   = 20
	PayloadLen = 8

	idOffset      = 4
	dlcOffset     = 8
	payloadOffset = 9
)

var (
	ErrFrameSize         = errors.New("can: invalid frame size")
	ErrUnknownIdentifier = errors.New("can: unknown identifier")
)

// Identifier selects the decode rule for a frame payload.
type Identifier uint32

const (
	IDIMUAngle         Identifier = 0x071
	IDIMUAccel         Identifier = 0x072
	IDADC              Identifier = 0x073
	IDProximityEncoder Identifier = 0x074
	IDGPS              Identifier = 0x075
	IDTemperatures     Identifier = 0x076
)

var identifierNames = map[Identifier]string{
	IDIMUAngle:         "imu_angle",
	IDIMUAccel:         "imu_accel",
	IDADC:              "adc",
	IDProximityEncoder: "proximity_encoder",
	IDGPS:              "gps",
	IDTemperatures:     "temperatures",
}

// Known reports whether id belongs to the recognized identifier set.
func (id Identifier) Known() bool {
	_, ok := identifierNames[id]
	return ok
}

// Name returns the short channel-group name, or "unknown".
func (id Identifier) Name() string {
	if name, ok := identifierNames[id]; ok {
		return name
	}
	return "unknown"
}

func (id Identifier) String() string {
	return fmt.Sprintf("0x%03x", uint32(id))
}

// FrameSizeError reports a buffer whose length is not FrameLen.
type FrameSizeError struct {
	Got int
}

func (e *FrameSizeError) Error() string {
	return fmt.Sprintf("can: invalid frame size (expected %d bytes, got %d)", FrameLen, e.Got)
}

func (e *FrameSizeError) Is(target error) bool {
	return target == ErrFrameSize
}

// UnknownIdentifierError reports an identifier outside the recognized set.
type UnknownIdentifierError struct {
	ID Identifier
}

func (e *UnknownIdentifierError) Error() string {
	return fmt.Sprintf("can: unknown identifier %s", e.ID)
}

func (e *UnknownIdentifierError) Is(target error) bool {
	return target == ErrUnknownIdentifier
}

// Frame is one parsed wire frame.
type Frame struct {
	Timestamp uint32
	ID        Identifier
	DLC       uint8
	Payload   [PayloadLen]byte
}

// ParseFrame validates the buffer length and splits out header and payload.
// It does not check the identifier; Decode does.
func ParseFrame(b []byte) (Frame, error) {
	if len(b) != FrameLen {
		return Frame{}, &FrameSizeError{Got: len(b)}
	}
	f := Frame{
		Timestamp: binary.LittleEndian.Uint32(b[0:idOffset]),
		ID:        Identifier(binary.LittleEndian.Uint32(b[idOffset:dlcOffset])),
		DLC:       b[dlcOffset],
	}
	copy(f.Payload[:], b[payloadOffset:payloadOffset+PayloadLen])
	return f, nil
}

// EncodeFrame writes f in wire layout. Padding bytes are zero.
func EncodeFrame(f Frame) []byte {
	buf := make([]byte, FrameLen)
	binary.LittleEndian.PutUint32(buf[0:idOffset], f.Timestamp)
	binary.LittleEndian.PutUint32(buf[idOffset:dlcOffset], uint32(f.ID))
	buf[dlcOffset] = f.DLC
	copy(buf[payloadOffset:payloadOffset+PayloadLen], f.Payload[:])
	return buf
}

// DecodeFrame parses b and decodes its payload in one step.
func DecodeFrame(b []byte) (Sample, error) {
	f, err := ParseFrame(b)
	if err != nil {
		return nil, err
	}
	return Decode(f.ID, f.Payload[:])
}

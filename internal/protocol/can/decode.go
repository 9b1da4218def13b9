package can

import (
	"encoding/binary"
	"math"
)

const (
	// WheelCircumference is the rolling circumference of an 18in rim with a
	// 3.15 diameter factor, in meters.
	WheelCircumference = 0.0254 * 3.15 * 18 * 2
	GravityAccel       = 9.81
)

// Wheel positions used by the per-corner arrays.
const (
	WheelFL = iota
	WheelFR
	WheelRL
	WheelRR
)

// Sample is one decoded payload. The concrete type is selected by its
// Identifier; the set of variants is closed.
type Sample interface {
	Identifier() Identifier
	payload() [PayloadLen]byte
}

// IMUAngle carries raw angle readings (no scaling).
type IMUAngle struct {
	X, Y, Z int16
}

// IMUAccel carries raw accelerations and the derived G-forces.
type IMUAccel struct {
	X, Y, Z       int16
	LateralG      float64
	LongitudinalG float64
}

// ADC carries the six 10-bit analog channels.
type ADC struct {
	Suspension [4]uint16
	BrakePedal uint16
	AccelPedal uint16
}

// ProximityEncoder carries wheel RPM, derived wheel speeds, the steering
// encoder angle and the integer vehicle speed.
type ProximityEncoder struct {
	WheelRPM     [4]uint16
	WheelSpeed   [4]float64
	EncoderAngle uint16
	SpeedKmh     uint8
}

// GPS carries a position fix.
type GPS struct {
	Longitude float32
	Latitude  float32
}

// Temperatures carries the four corner temperatures.
type Temperatures struct {
	Corner [4]int16
}

func (IMUAngle) Identifier() Identifier         { return IDIMUAngle }
func (IMUAccel) Identifier() Identifier         { return IDIMUAccel }
func (ADC) Identifier() Identifier              { return IDADC }
func (ProximityEncoder) Identifier() Identifier { return IDProximityEncoder }
func (GPS) Identifier() Identifier              { return IDGPS }
func (Temperatures) Identifier() Identifier     { return IDTemperatures }

// Decode interprets an 8-byte payload according to id. Reads past the end of
// a short payload yield zero, so malformed input degrades to zero-valued
// fields instead of failing.
func Decode(id Identifier, payload []byte) (Sample, error) {
	switch id {
	case IDIMUAngle:
		return DecodeIMUAngle(payload), nil
	case IDIMUAccel:
		return DecodeIMUAccel(payload), nil
	case IDADC:
		return DecodeADC(payload), nil
	case IDProximityEncoder:
		return DecodeProximityEncoder(payload), nil
	case IDGPS:
		return DecodeGPS(payload), nil
	case IDTemperatures:
		return DecodeTemperatures(payload), nil
	default:
		return nil, &UnknownIdentifierError{ID: id}
	}
}

func DecodeIMUAngle(p []byte) IMUAngle {
	return IMUAngle{
		X: readInt16(p, 0),
		Y: readInt16(p, 2),
		Z: readInt16(p, 4),
	}
}

func DecodeIMUAccel(p []byte) IMUAccel {
	s := IMUAccel{
		X: readInt16(p, 0),
		Y: readInt16(p, 2),
		Z: readInt16(p, 4),
	}
	s.LongitudinalG = float64(s.X) / GravityAccel
	s.LateralG = float64(s.Y) / GravityAccel
	return s
}

func DecodeADC(p []byte) ADC {
	raw := readUint64(p, 0)
	return ADC{
		Suspension: [4]uint16{
			bits10(raw, 0),
			bits10(raw, 10),
			bits10(raw, 20),
			bits10(raw, 30),
		},
		BrakePedal: bits10(raw, 40),
		AccelPedal: bits10(raw, 50),
	}
}

func DecodeProximityEncoder(p []byte) ProximityEncoder {
	raw := readUint64(p, 0)
	var s ProximityEncoder
	for i := range s.WheelRPM {
		rpm := uint16((raw >> (11 * uint(i))) & 0x7FF)
		s.WheelRPM[i] = rpm
		s.WheelSpeed[i] = RPMToKmh(rpm)
	}
	s.EncoderAngle = bits10(raw, 44)
	s.SpeedKmh = uint8((raw >> 54) & 0xFF)
	return s
}

func DecodeGPS(p []byte) GPS {
	return GPS{
		Longitude: math.Float32frombits(readUint32(p, 0)),
		Latitude:  math.Float32frombits(readUint32(p, 4)),
	}
}

func DecodeTemperatures(p []byte) Temperatures {
	return Temperatures{Corner: [4]int16{
		readInt16(p, 0),
		readInt16(p, 2),
		readInt16(p, 4),
		readInt16(p, 6),
	}}
}

// RPMToKmh converts a wheel RPM to km/h: rpm * circumference * 60 / 1000.
func RPMToKmh(rpm uint16) float64 {
	return float64(rpm) * WheelCircumference * 60.0 / 1000.0
}

func bits10(raw uint64, offset uint) uint16 {
	return uint16((raw >> offset) & 0x3FF)
}

func readInt16(p []byte, off int) int16 {
	if off+2 > len(p) {
		return 0
	}
	return int16(binary.LittleEndian.Uint16(p[off:]))
}

func readUint32(p []byte, off int) uint32 {
	if off+4 > len(p) {
		return 0
	}
	return binary.LittleEndian.Uint32(p[off:])
}

func readUint64(p []byte, off int) uint64 {
	if off+8 > len(p) {
		return 0
	}
	return binary.LittleEndian.Uint64(p[off:])
}

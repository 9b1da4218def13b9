package can

import (
	"encoding/binary"
	"math"
)

// Encode builds a wire frame carrying s. Derived fields (G-forces, wheel
// speeds) are ignored; only the raw fields travel on the wire.
func Encode(s Sample, timestamp uint32) []byte {
	return EncodeFrame(Frame{
		Timestamp: timestamp,
		ID:        s.Identifier(),
		DLC:       PayloadLen,
		Payload:   s.payload(),
	})
}

func (s IMUAngle) payload() [PayloadLen]byte {
	var p [PayloadLen]byte
	putInt16(p[:], 0, s.X)
	putInt16(p[:], 2, s.Y)
	putInt16(p[:], 4, s.Z)
	return p
}

func (s IMUAccel) payload() [PayloadLen]byte {
	var p [PayloadLen]byte
	putInt16(p[:], 0, s.X)
	putInt16(p[:], 2, s.Y)
	putInt16(p[:], 4, s.Z)
	return p
}

func (s ADC) payload() [PayloadLen]byte {
	var raw uint64
	for i, v := range s.Suspension {
		raw |= uint64(v&0x3FF) << (10 * uint(i))
	}
	raw |= uint64(s.BrakePedal&0x3FF) << 40
	raw |= uint64(s.AccelPedal&0x3FF) << 50
	var p [PayloadLen]byte
	binary.LittleEndian.PutUint64(p[:], raw)
	return p
}

func (s ProximityEncoder) payload() [PayloadLen]byte {
	var raw uint64
	for i, rpm := range s.WheelRPM {
		raw |= uint64(rpm&0x7FF) << (11 * uint(i))
	}
	raw |= uint64(s.EncoderAngle&0x3FF) << 44
	raw |= uint64(s.SpeedKmh) << 54
	var p [PayloadLen]byte
	binary.LittleEndian.PutUint64(p[:], raw)
	return p
}

func (s GPS) payload() [PayloadLen]byte {
	var p [PayloadLen]byte
	binary.LittleEndian.PutUint32(p[0:], math.Float32bits(s.Longitude))
	binary.LittleEndian.PutUint32(p[4:], math.Float32bits(s.Latitude))
	return p
}

func (s Temperatures) payload() [PayloadLen]byte {
	var p [PayloadLen]byte
	for i, v := range s.Corner {
		putInt16(p[:], 2*i, v)
	}
	return p
}

func putInt16(p []byte, off int, v int16) {
	binary.LittleEndian.PutUint16(p[off:], uint16(v))
}

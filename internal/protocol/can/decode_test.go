package can

import (
	"encoding/binary"
	"math"
	"math/rand"
	"testing"
)

func TestDecodeADCExtractsTenBitFields(t *testing.T) {
	rng := rand.New(rand.NewSource(73))
	offsets := []uint{0, 10, 20, 30, 40, 50}
	for i := 0; i < 500; i++ {
		raw := rng.Uint64()
		var p [8]byte
		binary.LittleEndian.PutUint64(p[:], raw)

		s := DecodeADC(p[:])
		got := []uint16{s.Suspension[0], s.Suspension[1], s.Suspension[2], s.Suspension[3], s.BrakePedal, s.AccelPedal}
		for j, off := range offsets {
			want := uint16((raw >> off) & 0x3FF)
			if got[j] != want {
				t.Fatalf("raw=%#x field=%d: got %d want %d", raw, j, got[j], want)
			}
		}
	}
}

func TestDecodeProximityWheelSpeedFormula(t *testing.T) {
	for _, rpm := range []uint16{0, 1, 17, 1000, 2000, 2047} {
		for pos := WheelFL; pos <= WheelRR; pos++ {
			var in ProximityEncoder
			in.WheelRPM[pos] = rpm
			p := in.payload()

			s := DecodeProximityEncoder(p[:])
			if s.WheelRPM[pos] != rpm {
				t.Fatalf("pos=%d: rpm got %d want %d", pos, s.WheelRPM[pos], rpm)
			}
			want := float64(rpm) * (0.0254 * 3.15 * 18 * 2) * 60 / 1000
			if math.Abs(s.WheelSpeed[pos]-want) > 1e-9 {
				t.Fatalf("pos=%d rpm=%d: speed got %.12f want %.12f", pos, rpm, s.WheelSpeed[pos], want)
			}
		}
	}
}

func TestDecodeProximityEncoderAndSpeedFields(t *testing.T) {
	in := ProximityEncoder{
		WheelRPM:     [4]uint16{100, 200, 300, 400},
		EncoderAngle: 1023,
		SpeedKmh:     200,
	}
	p := in.payload()
	s := DecodeProximityEncoder(p[:])
	if s.WheelRPM != in.WheelRPM {
		t.Fatalf("rpm mismatch: %+v", s.WheelRPM)
	}
	if s.EncoderAngle != 1023 || s.SpeedKmh != 200 {
		t.Fatalf("unexpected encoder=%d speed=%d", s.EncoderAngle, s.SpeedKmh)
	}
}

func TestDecodeIMUAccelScenario(t *testing.T) {
	frame := make([]byte, FrameLen)
	copy(frame[0:4], []byte{0xDE, 0xAD, 0xBE, 0xEF})
	copy(frame[4:8], []byte{0x72, 0, 0, 0})
	frame[8] = 8
	x, y := int16(981), int16(-981)
	binary.LittleEndian.PutUint16(frame[9:], uint16(x))
	binary.LittleEndian.PutUint16(frame[11:], uint16(y))

	sample, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	accel, ok := sample.(IMUAccel)
	if !ok {
		t.Fatalf("unexpected sample type %T", sample)
	}
	if math.Abs(accel.LongitudinalG-100.0) > 1e-9 {
		t.Fatalf("unexpected longitudinal g: %v", accel.LongitudinalG)
	}
	if math.Abs(accel.LateralG+100.0) > 1e-9 {
		t.Fatalf("unexpected lateral g: %v", accel.LateralG)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	samples := []Sample{
		IMUAngle{X: -180, Y: 90, Z: 45},
		IMUAccel{X: 16, Y: -3, Z: 9},
		ADC{Suspension: [4]uint16{1, 511, 1022, 1023}, BrakePedal: 300, AccelPedal: 700},
		ProximityEncoder{WheelRPM: [4]uint16{2000, 1500, 10, 0}, EncoderAngle: 512, SpeedKmh: 88},
		GPS{Longitude: -122.4194, Latitude: 37.7749},
		Temperatures{Corner: [4]int16{-20, 0, 150, 300}},
	}
	for _, in := range samples {
		out, err := DecodeFrame(Encode(in, 1234))
		if err != nil {
			t.Fatalf("%s: decode: %v", in.Identifier(), err)
		}
		if out.Identifier() != in.Identifier() {
			t.Fatalf("identifier mismatch: got %s want %s", out.Identifier(), in.Identifier())
		}
		switch want := in.(type) {
		case IMUAccel:
			got := out.(IMUAccel)
			if got.X != want.X || got.Y != want.Y || got.Z != want.Z {
				t.Fatalf("accel mismatch: %+v", got)
			}
			if got.LongitudinalG != float64(want.X)/GravityAccel || got.LateralG != float64(want.Y)/GravityAccel {
				t.Fatalf("g-force mismatch: %+v", got)
			}
		case ProximityEncoder:
			got := out.(ProximityEncoder)
			if got.WheelRPM != want.WheelRPM || got.EncoderAngle != want.EncoderAngle || got.SpeedKmh != want.SpeedKmh {
				t.Fatalf("proximity mismatch: %+v", got)
			}
			for i, rpm := range want.WheelRPM {
				if got.WheelSpeed[i] != RPMToKmh(rpm) {
					t.Fatalf("wheel speed %d mismatch: %v", i, got.WheelSpeed[i])
				}
			}
		default:
			if out != in {
				t.Fatalf("%s: round trip mismatch: got=%+v want=%+v", in.Identifier(), out, in)
			}
		}
	}
}

func TestDecodeShortPayloadZeroFills(t *testing.T) {
	s := DecodeTemperatures([]byte{0x10, 0x00, 0x20})
	if s.Corner != [4]int16{16, 0, 0, 0} {
		t.Fatalf("unexpected zero-fill result: %+v", s.Corner)
	}
	if adc := DecodeADC(nil); adc != (ADC{}) {
		t.Fatalf("expected zero ADC for empty payload: %+v", adc)
	}
	if gps := DecodeGPS([]byte{1, 2, 3, 4}); gps.Latitude != 0 {
		t.Fatalf("expected zero latitude for short payload: %+v", gps)
	}
}

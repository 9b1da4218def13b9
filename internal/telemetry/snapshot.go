package telemetry

import "github.com/danmuck/cantelemetry/internal/protocol/can"

// Channel names one physical quantity in the snapshot.
type Channel string

const (
	ChannelSpeed         Channel = "speed"
	ChannelRPM           Channel = "rpm"
	ChannelAccPedal      Channel = "accPedal"
	ChannelBrakePedal    Channel = "brakePedal"
	ChannelEncoderAngle  Channel = "encoderAngle"
	ChannelTemperature   Channel = "temperature"
	ChannelBatteryLevel  Channel = "batteryLevel"
	ChannelGPSLongitude  Channel = "gpsLongitude"
	ChannelGPSLatitude   Channel = "gpsLatitude"
	ChannelSpeedFL       Channel = "speedFL"
	ChannelSpeedFR       Channel = "speedFR"
	ChannelSpeedBL       Channel = "speedBL"
	ChannelSpeedBR       Channel = "speedBR"
	ChannelLateralG      Channel = "lateralG"
	ChannelLongitudinalG Channel = "longitudinalG"
	ChannelTempFL        Channel = "tempFL"
	ChannelTempFR        Channel = "tempFR"
	ChannelTempBL        Channel = "tempBL"
	ChannelTempBR        Channel = "tempBR"
)

// Channels lists every snapshot channel in emission order.
var Channels = []Channel{
	ChannelSpeed, ChannelRPM, ChannelAccPedal, ChannelBrakePedal, ChannelEncoderAngle,
	ChannelTemperature, ChannelBatteryLevel, ChannelGPSLongitude, ChannelGPSLatitude,
	ChannelSpeedFL, ChannelSpeedFR, ChannelSpeedBL, ChannelSpeedBR,
	ChannelLateralG, ChannelLongitudinalG,
	ChannelTempFL, ChannelTempFR, ChannelTempBL, ChannelTempBR,
}

// Snapshot is the full set of live channels for one manager. Fields not
// touched by a sample keep their previous value.
type Snapshot struct {
	Speed         float64 `json:"speed" cbor:"speed"`
	RPM           int     `json:"rpm" cbor:"rpm"`
	AccPedal      int     `json:"accPedal" cbor:"accPedal"`
	BrakePedal    int     `json:"brakePedal" cbor:"brakePedal"`
	EncoderAngle  float64 `json:"encoderAngle" cbor:"encoderAngle"`
	Temperature   float64 `json:"temperature" cbor:"temperature"`
	BatteryLevel  int     `json:"batteryLevel" cbor:"batteryLevel"`
	GPSLongitude  float64 `json:"gpsLongitude" cbor:"gpsLongitude"`
	GPSLatitude   float64 `json:"gpsLatitude" cbor:"gpsLatitude"`
	SpeedFL       float64 `json:"speedFL" cbor:"speedFL"`
	SpeedFR       float64 `json:"speedFR" cbor:"speedFR"`
	SpeedBL       float64 `json:"speedBL" cbor:"speedBL"`
	SpeedBR       float64 `json:"speedBR" cbor:"speedBR"`
	LateralG      float64 `json:"lateralG" cbor:"lateralG"`
	LongitudinalG float64 `json:"longitudinalG" cbor:"longitudinalG"`
	TempFL        int     `json:"tempFL" cbor:"tempFL"`
	TempFR        int     `json:"tempFR" cbor:"tempFR"`
	TempBL        int     `json:"tempBL" cbor:"tempBL"`
	TempBR        int     `json:"tempBR" cbor:"tempBR"`
}

// Change is one per-channel notification emitted by a flush.
type Change struct {
	Channel Channel `json:"channel" cbor:"channel"`
	Value   float64 `json:"value" cbor:"value"`
}

// Value returns the channel's current value as float64.
func (s Snapshot) Value(ch Channel) (float64, bool) {
	switch ch {
	case ChannelSpeed:
		return s.Speed, true
	case ChannelRPM:
		return float64(s.RPM), true
	case ChannelAccPedal:
		return float64(s.AccPedal), true
	case ChannelBrakePedal:
		return float64(s.BrakePedal), true
	case ChannelEncoderAngle:
		return s.EncoderAngle, true
	case ChannelTemperature:
		return s.Temperature, true
	case ChannelBatteryLevel:
		return float64(s.BatteryLevel), true
	case ChannelGPSLongitude:
		return s.GPSLongitude, true
	case ChannelGPSLatitude:
		return s.GPSLatitude, true
	case ChannelSpeedFL:
		return s.SpeedFL, true
	case ChannelSpeedFR:
		return s.SpeedFR, true
	case ChannelSpeedBL:
		return s.SpeedBL, true
	case ChannelSpeedBR:
		return s.SpeedBR, true
	case ChannelLateralG:
		return s.LateralG, true
	case ChannelLongitudinalG:
		return s.LongitudinalG, true
	case ChannelTempFL:
		return float64(s.TempFL), true
	case ChannelTempFR:
		return float64(s.TempFR), true
	case ChannelTempBL:
		return float64(s.TempBL), true
	case ChannelTempBR:
		return float64(s.TempBR), true
	default:
		return 0, false
	}
}

// Changes returns one Change per channel, in Channels order.
func (s Snapshot) Changes() []Change {
	out := make([]Change, 0, len(Channels))
	for _, ch := range Channels {
		v, _ := s.Value(ch)
		out = append(out, Change{Channel: ch, Value: v})
	}
	return out
}

// apply overlays the fields carried by sample. It reports whether sample
// belongs to the live snapshot at all.
func (s *Snapshot) apply(sample can.Sample) bool {
	switch v := sample.(type) {
	case can.IMUAccel:
		s.LateralG = v.LateralG
		s.LongitudinalG = v.LongitudinalG
	case can.ADC:
		s.AccPedal = int(v.AccelPedal)
		s.BrakePedal = int(v.BrakePedal)
	case can.ProximityEncoder:
		s.Speed = float64(v.SpeedKmh)
		s.SpeedFL = v.WheelSpeed[can.WheelFL]
		s.SpeedFR = v.WheelSpeed[can.WheelFR]
		s.SpeedBL = v.WheelSpeed[can.WheelRL]
		s.SpeedBR = v.WheelSpeed[can.WheelRR]
		s.EncoderAngle = float64(v.EncoderAngle)
	case can.GPS:
		s.GPSLongitude = float64(v.Longitude)
		s.GPSLatitude = float64(v.Latitude)
	default:
		return false
	}
	return true
}

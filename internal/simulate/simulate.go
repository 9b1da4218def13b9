// Package simulate generates synthetic CAN frames for bench testing a
// telemetry pipeline without a vehicle attached.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/cantelemetry/internal/protocol/can"
)

const (
	DefaultRate  = 20
	DefaultSweep = 10 * time.Second
)

var ErrNoPublisher = errors.New("simulate: publisher required")

// Publisher sends one encoded frame.
type Publisher interface {
	Publish(frame []byte) error
}

// Samples maps a normalized level in [0,1] onto one sample per known
// identifier. Levels outside the range are clamped.
func Samples(norm float64) []can.Sample {
	norm = clamp(norm)
	adc := uint16(int(norm*1023) & 0x3FF)
	rpm := uint16(int(norm*2000) & 0x7FF)
	accel := int16(int(norm * 16))
	temp := int16(int(norm * 300))
	return []can.Sample{
		can.ADC{
			Suspension: [4]uint16{adc, adc, adc, adc},
			BrakePedal: adc,
			AccelPedal: adc,
		},
		can.ProximityEncoder{
			WheelRPM:     [4]uint16{rpm, rpm, rpm, rpm},
			EncoderAngle: adc,
			SpeedKmh:     uint8(int(norm*200) & 0xFF),
		},
		can.IMUAngle{
			X: int16(int(-180 + norm*360)),
			Y: int16(int(-90 + norm*180)),
			Z: int16(int(-180 + norm*360)),
		},
		can.IMUAccel{X: accel, Y: accel, Z: accel},
		can.GPS{
			Latitude:  float32(norm * 180),
			Longitude: float32(-180 + norm*180),
		},
		can.Temperatures{Corner: [4]int16{temp, temp, temp, temp}},
	}
}

// Packets encodes Samples(norm) as wire frames in send order.
func Packets(norm float64, timestamp uint32) [][]byte {
	samples := Samples(norm)
	out := make([][]byte, 0, len(samples))
	for _, s := range samples {
		out = append(out, can.Encode(s, timestamp))
	}
	return out
}

// Triangle returns the sweep level at elapsed time: 0 to 1 and back over
// one period.
func Triangle(elapsed, period time.Duration) float64 {
	if period <= 0 {
		return 0
	}
	phase := math.Mod(float64(elapsed), float64(period)) / float64(period)
	if phase < 0.5 {
		return phase * 2
	}
	return 2 - phase*2
}

type Config struct {
	Rate   int
	Sweep  time.Duration
	Level  float64
	Static bool
	Count  int
}

type Stats struct {
	Bursts int
	Sent   int
	Failed int
}

// Sender publishes one burst of frames per tick.
type Sender struct {
	cfg   Config
	pub   Publisher
	start time.Time
	now   func() time.Time
}

func NewSender(cfg Config, pub Publisher) (*Sender, error) {
	if pub == nil {
		return nil, ErrNoPublisher
	}
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRate
	}
	if cfg.Sweep <= 0 {
		cfg.Sweep = DefaultSweep
	}
	return &Sender{cfg: cfg, pub: pub, now: time.Now}, nil
}

// Burst sends every frame for level and reports how many were sent.
func (s *Sender) Burst(level float64, timestamp uint32) (sent int, err error) {
	var errs []error
	for _, frame := range Packets(level, timestamp) {
		if perr := s.pub.Publish(frame); perr != nil {
			errs = append(errs, perr)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

func (s *Sender) level(at time.Time) float64 {
	if s.cfg.Static {
		return clamp(s.cfg.Level)
	}
	return Triangle(at.Sub(s.start), s.cfg.Sweep)
}

// Run sends bursts until ctx ends or Count bursts have gone out.
func (s *Sender) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	s.start = s.now()
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.Rate))
	defer ticker.Stop()

	for {
		at := s.now()
		level := s.level(at)
		sent, err := s.Burst(level, uint32(at.Sub(s.start).Milliseconds()))
		stats.Bursts++
		stats.Sent += sent
		if err != nil {
			stats.Failed++
			log.Warn().Err(err).Float64("level", level).Msg("simulate burst failed")
		}
		if s.cfg.Count > 0 && stats.Bursts >= s.cfg.Count {
			return stats, nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return stats, nil
			}
			return stats, fmt.Errorf("simulate: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

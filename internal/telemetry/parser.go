package telemetry

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/cantelemetry/internal/protocol/can"
)

var ErrDecodeFault = errors.New("telemetry: decode fault")

// DecodeFaultError wraps a panic recovered while handling one frame.
type DecodeFaultError struct {
	Cause any
}

func (e *DecodeFaultError) Error() string {
	return fmt.Sprintf("telemetry: decode fault: %v", e.Cause)
}

func (e *DecodeFaultError) Is(target error) bool {
	return target == ErrDecodeFault
}

// Sink receives the results of frame handling. Implementations must be safe
// for concurrent use by every worker of a pool.
type Sink interface {
	// Apply receives a sample that belongs to the live snapshot.
	Apply(sample can.Sample)
	// Logged receives the identifier of a log-only frame once handled.
	Logged(id can.Identifier)
	// Report receives every error raised while handling a frame.
	Report(err error)
}

// DataLogger persists the log-only channels.
type DataLogger interface {
	LogIMU(x, y, z int16) error
	LogSuspension(sus [4]uint16) error
}

type ParserConfig struct {
	// Label prefixes error messages, e.g. "UDP" or "Serial".
	Label string
	Debug bool
}

// Parser is the worker body shared by every transport. It holds no channel
// state of its own.
type Parser struct {
	cfg    ParserConfig
	sink   Sink
	logger DataLogger
	log    zerolog.Logger
}

// NewParser builds a parser. logger may be nil, in which case log-only
// channels are decoded and discarded.
func NewParser(cfg ParserConfig, sink Sink, logger DataLogger) *Parser {
	return &Parser{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		log:    log.With().Str("transport", cfg.Label).Logger(),
	}
}

// Handle validates, decodes and routes one raw frame. It never panics.
func (p *Parser) Handle(worker int, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			p.report(&DecodeFaultError{Cause: r})
		}
	}()

	frame, err := can.ParseFrame(raw)
	if err != nil {
		if p.cfg.Debug {
			p.log.Debug().Int("worker", worker).Int("size", len(raw)).Msg("invalid frame size")
		}
		p.report(err)
		return
	}
	sample, err := can.Decode(frame.ID, frame.Payload[:])
	if err != nil {
		if p.cfg.Debug {
			p.log.Debug().Int("worker", worker).Stringer("can_id", frame.ID).Msg("unknown identifier")
		}
		p.report(err)
		return
	}
	p.route(worker, sample)
}

func (p *Parser) route(worker int, sample can.Sample) {
	switch s := sample.(type) {
	case can.IMUAngle:
		if p.logger != nil {
			if err := p.logger.LogIMU(s.X, s.Y, s.Z); err != nil {
				p.report(err)
				return
			}
		}
		p.sink.Logged(s.Identifier())
		if p.cfg.Debug {
			p.log.Debug().Int("worker", worker).
				Int16("x", s.X).Int16("y", s.Y).Int16("z", s.Z).
				Msg("logged imu angle")
		}
	case can.Temperatures:
		p.log.Debug().Int("worker", worker).
			Int16("fl", s.Corner[0]).Int16("fr", s.Corner[1]).
			Int16("rl", s.Corner[2]).Int16("rr", s.Corner[3]).
			Msg("temperatures")
		p.sink.Logged(s.Identifier())
	case can.ADC:
		if p.logger != nil {
			if err := p.logger.LogSuspension(s.Suspension); err != nil {
				p.report(err)
			}
		}
		p.sink.Apply(s)
	default:
		p.sink.Apply(s)
		if p.cfg.Debug {
			p.log.Debug().Int("worker", worker).Stringer("can_id", s.Identifier()).Msg("decoded")
		}
	}
}

func (p *Parser) report(err error) {
	if p.cfg.Label != "" {
		err = fmt.Errorf("%s: %w", p.cfg.Label, err)
	}
	p.sink.Report(err)
}

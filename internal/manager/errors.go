package manager

import (
	"errors"
	"time"

	"github.com/danmuck/cantelemetry/internal/protocol/can"
	"github.com/danmuck/cantelemetry/internal/telemetry"
)

var ErrTransport = errors.New("manager: transport error")

// TransportError carries a receiver error unmodified.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Error kinds used for metrics and the error event stream.
const (
	KindFrameSize   = "frame_size"
	KindUnknownID   = "unknown_id"
	KindDecodeFault = "decode_fault"
	KindTransport   = "transport"
	KindOther       = "other"
)

// Classify maps err onto one of the Kind constants.
func Classify(err error) string {
	switch {
	case errors.Is(err, can.ErrFrameSize):
		return KindFrameSize
	case errors.Is(err, can.ErrUnknownIdentifier):
		return KindUnknownID
	case errors.Is(err, telemetry.ErrDecodeFault):
		return KindDecodeFault
	case errors.Is(err, ErrTransport):
		return KindTransport
	default:
		return KindOther
	}
}

// ErrorEvent is published once per reported error.
type ErrorEvent struct {
	At        time.Time `json:"at"`
	Transport string    `json:"transport"`
	Session   string    `json:"session,omitempty"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Err       error     `json:"-"`
}

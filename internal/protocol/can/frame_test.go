package can

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseFrameRejectsWrongLength(t *testing.T) {
	for _, n := range []int{0, 1, 8, 17, 19, 21, 64} {
		_, err := ParseFrame(make([]byte, n))
		if !errors.Is(err, ErrFrameSize) {
			t.Fatalf("len=%d: expected ErrFrameSize, got %v", n, err)
		}
		var sizeErr *FrameSizeError
		if !errors.As(err, &sizeErr) || sizeErr.Got != n {
			t.Fatalf("len=%d: expected FrameSizeError{Got:%d}, got %v", n, n, err)
		}
	}
}

func TestParseFrameLayout(t *testing.T) {
	raw := []byte{
		0x01, 0x02, 0x03, 0x04, // timestamp
		0x75, 0x00, 0x00, 0x00, // id
		0x08,                                           // dlc
		0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5, 0xA6, 0xA7, // payload
		0xFF, 0xFF, 0xFF, // padding
	}
	f, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("parse frame: %v", err)
	}
	if f.ID != IDGPS {
		t.Fatalf("unexpected id: %s", f.ID)
	}
	if f.Timestamp != 0x04030201 {
		t.Fatalf("unexpected timestamp: %#x", f.Timestamp)
	}
	if f.DLC != 8 {
		t.Fatalf("unexpected dlc: %d", f.DLC)
	}
	if !bytes.Equal(f.Payload[:], raw[9:17]) {
		t.Fatalf("payload mismatch: %x", f.Payload)
	}
}

func TestEncodeFrameRoundTrip(t *testing.T) {
	in := Frame{Timestamp: 77, ID: IDADC, DLC: 8, Payload: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}}
	buf := EncodeFrame(in)
	if len(buf) != FrameLen {
		t.Fatalf("unexpected encoded length: %d", len(buf))
	}
	if !bytes.Equal(buf[17:], []byte{0, 0, 0}) {
		t.Fatalf("padding not zero: %x", buf[17:])
	}
	out, err := ParseFrame(buf)
	if err != nil {
		t.Fatalf("parse frame: %v", err)
	}
	if out != in {
		t.Fatalf("frame mismatch: got=%+v want=%+v", out, in)
	}
}

func TestDecodeFrameUnknownIdentifier(t *testing.T) {
	buf := EncodeFrame(Frame{ID: 0x123, DLC: 8})
	_, err := DecodeFrame(buf)
	if !errors.Is(err, ErrUnknownIdentifier) {
		t.Fatalf("expected ErrUnknownIdentifier, got %v", err)
	}
	var idErr *UnknownIdentifierError
	if !errors.As(err, &idErr) || idErr.ID != 0x123 {
		t.Fatalf("unexpected error detail: %v", err)
	}
}

func TestIdentifierNames(t *testing.T) {
	if !IDTemperatures.Known() || Identifier(0x077).Known() {
		t.Fatalf("unexpected known set")
	}
	if IDIMUAccel.String() != "0x072" {
		t.Fatalf("unexpected string: %q", IDIMUAccel.String())
	}
	if Identifier(0x999).Name() != "unknown" {
		t.Fatalf("unexpected name for unknown id")
	}
}

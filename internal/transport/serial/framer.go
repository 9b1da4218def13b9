package serial

import "github.com/danmuck/cantelemetry/internal/protocol/can"

// Framer cuts a byte stream into fixed-size frames. The stream carries no
// delimiter, so alignment is established by the first byte after a reset.
type Framer struct {
	buf []byte
}

// Feed appends p and calls emit once per complete frame. Emitted slices are
// owned by the callee.
func (f *Framer) Feed(p []byte, emit func([]byte)) {
	f.buf = append(f.buf, p...)
	for len(f.buf) >= can.FrameLen {
		frame := make([]byte, can.FrameLen)
		copy(frame, f.buf[:can.FrameLen])
		f.buf = f.buf[can.FrameLen:]
		emit(frame)
	}
	if len(f.buf) == 0 {
		f.buf = nil
	}
}

// Buffered returns the number of bytes waiting for a complete frame.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reset drops any partial frame.
func (f *Framer) Reset() {
	f.buf = nil
}

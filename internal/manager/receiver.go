package manager

// Handler is what a Receiver calls back into. OnFrame takes ownership of the
// slice. Both callbacks may be invoked from the receiver's own goroutine.
type Handler struct {
	OnFrame func(frame []byte)
	OnError func(err error)
}

// Receiver is the transport-specific collaborator parameterized by its
// address type.
type Receiver[A any] interface {
	// Initialize prepares the receiver once before its first start.
	Initialize() error
	// StartReceiving begins delivering frames to h. It must not block.
	StartReceiving(addr A, h Handler) error
	// StopReceiving stops delivery. It is safe to call when not receiving.
	StopReceiving() error
}

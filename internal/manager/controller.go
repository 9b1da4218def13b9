package manager

import "github.com/danmuck/cantelemetry/internal/telemetry"

// Controller is the address-free view of a manager used by the HTTP surface
// and the service. Start uses the address bound at construction.
type Controller interface {
	Name() string
	Start() bool
	Stop() bool
	Running() bool
	SetWorkerCount(n int) bool
	SetDebugMode(enabled bool)
	Snapshot() telemetry.Snapshot
	Status() Status
	SubscribeChanges(buffer int) (<-chan telemetry.Batch, func())
	SubscribeErrors(buffer int) (<-chan ErrorEvent, func())
}

type bound[A any] struct {
	*Manager[A]
	addr A
}

// Bind fixes the address m starts on.
func Bind[A any](m *Manager[A], addr A) Controller {
	return &bound[A]{Manager: m, addr: addr}
}

func (b *bound[A]) Start() bool {
	return b.Manager.Start(b.addr)
}

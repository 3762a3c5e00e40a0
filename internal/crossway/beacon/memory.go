package beacon

import (
	"context"
	"sync"

	"github.com/autopeer-io/crossway/internal/crossway/core"
)

// Bus is an in-process broadcast medium for simulations and tests.
// Delivery is asynchronous and lossy: a member whose inbox is full misses
// the payload, and a filter can cut links to simulate partitions.
type Bus struct {
	mu      sync.RWMutex
	members map[string]*MemoryTransport
	filter  func(from, to string) bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{members: make(map[string]*MemoryTransport)}
}

// Join attaches a new member named name.
func (b *Bus) Join(name string) *MemoryTransport {
	t := &MemoryTransport{
		bus:   b,
		name:  name,
		inbox: make(chan []byte, 64),
		done:  make(chan struct{}),
	}
	b.mu.Lock()
	b.members[name] = t
	b.mu.Unlock()
	return t
}

// SetFilter installs fn to decide per link whether a payload is delivered.
// A nil fn delivers everything.
func (b *Bus) SetFilter(fn func(from, to string) bool) {
	b.mu.Lock()
	b.filter = fn
	b.mu.Unlock()
}

func (b *Bus) publish(from string, payload []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for name, m := range b.members {
		if b.filter != nil && !b.filter(from, name) {
			continue
		}
		cp := append([]byte(nil), payload...)
		select {
		case m.inbox <- cp:
		default:
		}
	}
}

func (b *Bus) leave(name string) {
	b.mu.Lock()
	delete(b.members, name)
	b.mu.Unlock()
}

// MemoryTransport is one member of a Bus.
type MemoryTransport struct {
	bus   *Bus
	name  string
	inbox chan []byte

	once sync.Once
	done chan struct{}
}

var _ Transport = (*MemoryTransport)(nil)

func (m *MemoryTransport) Broadcast(ctx context.Context, payload []byte) error {
	select {
	case <-m.done:
		return core.ErrTransportClosed
	default:
	}
	m.bus.publish(m.name, payload)
	return nil
}

func (m *MemoryTransport) Receive(ctx context.Context, fn func(payload []byte)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.done:
			return core.ErrTransportClosed
		case p := <-m.inbox:
			fn(p)
		}
	}
}

func (m *MemoryTransport) Close() error {
	m.once.Do(func() {
		m.bus.leave(m.name)
		close(m.done)
	})
	return nil
}

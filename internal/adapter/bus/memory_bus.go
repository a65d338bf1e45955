package bus

import (
	"context"
	"sync"

	"github.com/rl1809/order-inventory/internal/port"
)

// MemoryBus is a channel-backed bus for tests and single-process demos. It
// is both a Publisher and a Subscriber; ordering is global, which trivially
// satisfies the per-key ordering contract. An uncommitted fetch is returned
// again by the next FetchMessage, matching the at-least-once contract of the
// Kafka adapter.
type MemoryBus struct {
	ch chan port.Message

	mu      sync.Mutex
	pending *port.Message
}

func NewMemoryBus(size int) *MemoryBus {
	return &MemoryBus{ch: make(chan port.Message, size)}
}

func (b *MemoryBus) Publish(ctx context.Context, msg port.Message) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case b.ch <- msg:
		return nil
	}
}

func (b *MemoryBus) FetchMessage(ctx context.Context) (port.Message, error) {
	b.mu.Lock()
	if b.pending != nil {
		msg := *b.pending
		b.mu.Unlock()
		return msg, nil
	}
	b.mu.Unlock()

	select {
	case <-ctx.Done():
		return port.Message{}, ctx.Err()
	case msg := <-b.ch:
		b.mu.Lock()
		b.pending = &msg
		b.mu.Unlock()
		return msg, nil
	}
}

func (b *MemoryBus) CommitMessage(ctx context.Context, msg port.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
	return nil
}

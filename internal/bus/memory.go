package bus

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryBus delivers published messages synchronously to in-process
// subscribers. It backs single-binary runs without Redis and keeps
// tests deterministic; the delivery contract (at-most-once, publish
// order per channel) matches RedisBus.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]Handler)}
}

func (b *MemoryBus) Publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[channel]...)
	b.mu.RUnlock()
	for _, h := range hs {
		h(ctx, data)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, channel string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channel] = append(b.handlers[channel], h)
	return nil
}

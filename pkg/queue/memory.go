package queue

import (
	"context"
	"sync"
	"time"
)

type scheduled struct {
	data []byte
	at   time.Time
}

// MemoryBackend is a bounded in-process Backend used when Redis is off.
// Messages do not survive a restart.
type MemoryBackend struct {
	items chan []byte

	mu      sync.Mutex
	retries []scheduled
	dead    [][]byte
}

func NewMemoryBackend(size int) *MemoryBackend {
	if size <= 0 {
		size = 256
	}
	return &MemoryBackend{items: make(chan []byte, size)}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Ping(context.Context) error { return nil }

func (m *MemoryBackend) Push(_ context.Context, data []byte) error {
	select {
	case m.items <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

func (m *MemoryBackend) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case data := <-m.items:
		return data, nil
	case <-t.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *MemoryBackend) Schedule(_ context.Context, data []byte, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries = append(m.retries, scheduled{data: data, at: at})
	return nil
}

func (m *MemoryBackend) Promote(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.retries[:0]
	moved := 0
	for _, r := range m.retries {
		if r.at.After(now) {
			kept = append(kept, r)
			continue
		}
		if err := m.Push(ctx, r.data); err != nil {
			kept = append(kept, r)
			continue
		}
		moved++
	}
	m.retries = kept
	return moved, nil
}

func (m *MemoryBackend) DeadLetter(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dead = append(m.dead, data)
	return nil
}

// DeadLetters returns a copy of the dead-lettered messages.
func (m *MemoryBackend) DeadLetters() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.dead...)
}

var _ Backend = (*MemoryBackend)(nil)

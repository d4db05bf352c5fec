package series

import (
	"sort"
	"sync"

	"MarketPulse/internal/domain/models"
)

// Registry owns one Buffer per asset. Buffers are created on first write.
type Registry struct {
	mu       sync.RWMutex
	capacity int
	buffers  map[string]*Buffer
}

func NewRegistry(capacity int) *Registry {
	return &Registry{capacity: capacity, buffers: make(map[string]*Buffer)}
}

// Record routes s to its asset's buffer.
func (r *Registry) Record(s models.Sample) error {
	return r.ensure(s.AssetID).Record(s)
}

// Seed bulk-loads history for one asset.
func (r *Registry) Seed(asset string, samples []models.Sample) int {
	return r.ensure(asset).Seed(samples)
}

// Buffer returns the buffer for asset, if one exists.
func (r *Registry) Buffer(asset string) (*Buffer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.buffers[asset]
	return b, ok
}

// Window is a shortcut for Buffer(asset).Window(n); unknown assets yield nil.
func (r *Registry) Window(asset string, n int) []models.Sample {
	b, ok := r.Buffer(asset)
	if !ok {
		return nil
	}
	return b.Window(n)
}

// Assets lists tracked assets in sorted order.
func (r *Registry) Assets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.buffers))
	for a := range r.buffers {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) ensure(asset string) *Buffer {
	r.mu.RLock()
	b, ok := r.buffers[asset]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.buffers[asset]; ok {
		return b
	}
	b = NewBuffer(asset, r.capacity)
	r.buffers[asset] = b
	return b
}

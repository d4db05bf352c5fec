package series

import (
	"sort"
	"sync"

	"MarketPulse/internal/domain/models"
)

const defaultCapacity = 1440

// Buffer is a fixed-capacity ring of samples for a single asset.
// Timestamps are strictly increasing; the oldest sample is evicted on overflow.
type Buffer struct {
	mu       sync.RWMutex
	asset    string
	data     []models.Sample
	capacity int
	index    int // next write position
	size     int
}

// NewBuffer creates a buffer with fixed capacity.
func NewBuffer(asset string, capacity int) *Buffer {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Buffer{
		asset:    asset,
		data:     make([]models.Sample, capacity),
		capacity: capacity,
	}
}

// Record appends s. A sample that does not advance the clock is rejected
// with an *models.OutOfOrderError and the buffer is left untouched.
func (b *Buffer) Record(s models.Sample) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recordLocked(s)
}

func (b *Buffer) recordLocked(s models.Sample) error {
	if b.size > 0 {
		latest := b.data[(b.index-1+b.capacity)%b.capacity]
		if !s.Timestamp.After(latest.Timestamp) {
			return &models.OutOfOrderError{AssetID: b.asset, Latest: latest.Timestamp, Rejected: s.Timestamp}
		}
	}

	b.data[b.index] = s
	b.index = (b.index + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
	return nil
}

// Seed bulk-loads historical samples. Input is sorted by time first; entries
// that still do not advance the clock are skipped. Returns how many were kept.
func (b *Buffer) Seed(samples []models.Sample) int {
	sorted := make([]models.Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	b.mu.Lock()
	defer b.mu.Unlock()

	kept := 0
	for _, s := range sorted {
		if b.recordLocked(s) == nil {
			kept++
		}
	}
	return kept
}

// Window returns a copy of the last n samples, oldest first.
// Fewer are returned when the buffer holds less than n.
func (b *Buffer) Window(n int) []models.Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 || n <= 0 {
		return []models.Sample{}
	}
	count := n
	if count > b.size {
		count = b.size
	}

	out := make([]models.Sample, count)
	start := (b.index - count + b.capacity) % b.capacity
	for i := 0; i < count; i++ {
		out[i] = b.data[(start+i)%b.capacity]
	}
	return out
}

// All returns every buffered sample, oldest first.
func (b *Buffer) All() []models.Sample {
	return b.Window(b.capacity)
}

// Latest returns the newest sample.
func (b *Buffer) Latest() (models.Sample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.size == 0 {
		return models.Sample{}, false
	}
	return b.data[(b.index-1+b.capacity)%b.capacity], true
}

// Len returns current number of elements
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns buffer capacity (fixed)
func (b *Buffer) Cap() int {
	return b.capacity
}

// IsReady reports whether at least min samples are buffered.
func (b *Buffer) IsReady(min int) bool {
	return b.Len() >= min
}

func (b *Buffer) Asset() string {
	return b.asset
}

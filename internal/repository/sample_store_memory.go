package repository

import (
	"context"
	"sort"
	"sync"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
)

// MemorySampleStore keeps up to limit samples per asset in process.
// It backs the "memory" storage backend and tests.
type MemorySampleStore struct {
	mu      sync.RWMutex
	limit   int
	samples map[string][]models.Sample
}

func NewMemorySampleStore(limit int) *MemorySampleStore {
	if limit <= 0 {
		limit = 10000
	}
	return &MemorySampleStore{limit: limit, samples: make(map[string][]models.Sample)}
}

func (s *MemorySampleStore) Store(ctx context.Context, smp models.Sample) error {
	return s.StoreBatch(ctx, []models.Sample{smp})
}

// StoreBatch keeps each asset sorted by time; a repeated timestamp is ignored.
func (s *MemorySampleStore) StoreBatch(_ context.Context, samples []models.Sample) error {
	for _, smp := range samples {
		if err := smp.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, smp := range samples {
		cur := s.samples[smp.AssetID]
		i := sort.Search(len(cur), func(i int) bool { return !cur[i].Timestamp.Before(smp.Timestamp) })
		if i < len(cur) && cur[i].Timestamp.Equal(smp.Timestamp) {
			continue
		}
		cur = append(cur, models.Sample{})
		copy(cur[i+1:], cur[i:])
		cur[i] = smp
		if len(cur) > s.limit {
			cur = append(cur[:0:0], cur[len(cur)-s.limit:]...)
		}
		s.samples[smp.AssetID] = cur
	}
	return nil
}

func (s *MemorySampleStore) LoadRecent(_ context.Context, asset string, n int) ([]models.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur := s.samples[asset]
	if n <= 0 || len(cur) == 0 {
		return nil, nil
	}
	if n > len(cur) {
		n = len(cur)
	}
	return append([]models.Sample(nil), cur[len(cur)-n:]...), nil
}

func (s *MemorySampleStore) Assets(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.samples))
	for a := range s.samples {
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemorySampleStore) Health(context.Context) error { return nil }
func (s *MemorySampleStore) Close() error                 { return nil }

var _ domrepo.SampleStore = (*MemorySampleStore)(nil)

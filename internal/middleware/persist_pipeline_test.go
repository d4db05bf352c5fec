package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/pkg/metrics"
)

type flakyStore struct {
	mu       sync.Mutex
	failures int
	stored   []models.Sample
}

func (s *flakyStore) Store(_ context.Context, smp models.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("store unavailable")
	}
	s.stored = append(s.stored, smp)
	return nil
}

func (s *flakyStore) StoreBatch(ctx context.Context, samples []models.Sample) error {
	for _, smp := range samples {
		if err := s.Store(ctx, smp); err != nil {
			return err
		}
	}
	return nil
}

func (s *flakyStore) LoadRecent(context.Context, string, int) ([]models.Sample, error) {
	return nil, nil
}

func (s *flakyStore) Assets(context.Context) ([]string, error) { return nil, nil }
func (s *flakyStore) Health(context.Context) error            { return nil }
func (s *flakyStore) Close() error                            { return nil }

func (s *flakyStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored)
}

var ts = time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)

func TestProcessWritesThrough(t *testing.T) {
	store := &flakyStore{}
	p := NewPersistPipeline(store, metrics.Nop{})
	if err := p.Process(context.Background(), models.Sample{AssetID: "KAITO", Timestamp: ts, Price: 1, Volume: 10}); err != nil {
		t.Fatal(err)
	}
	if store.count() != 1 || p.Pending() != 0 {
		t.Fatalf("stored=%d pending=%d", store.count(), p.Pending())
	}
}

func TestProcessRejectsInvalid(t *testing.T) {
	p := NewPersistPipeline(&flakyStore{}, metrics.Nop{})
	err := p.Process(context.Background(), models.Sample{AssetID: "KAITO", Timestamp: ts, Price: -1})
	if !errors.Is(err, models.ErrInvalidSample) {
		t.Fatalf("err = %v", err)
	}
}

func TestFailedWritesAreRetried(t *testing.T) {
	store := &flakyStore{failures: 2}
	p := NewPersistPipeline(store, metrics.Nop{}, WithBackoff(time.Millisecond, 4*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Process(ctx, models.Sample{AssetID: "KAITO", Timestamp: ts, Price: 1, Volume: 10}); err == nil {
		t.Fatal("expected downstream error on first write")
	}
	if p.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", p.Pending())
	}

	p.Start(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for store.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	p.Stop()
	if store.count() != 1 {
		t.Fatalf("stored = %d after retries, want 1", store.count())
	}
}

func TestBufferFullDrops(t *testing.T) {
	store := &flakyStore{failures: 10}
	p := NewPersistPipeline(store, metrics.Nop{}, WithBufferSize(1))
	for i := 0; i < 3; i++ {
		_ = p.Process(context.Background(), models.Sample{AssetID: "KAITO", Timestamp: ts.Add(time.Duration(i) * time.Minute), Price: 1})
	}
	if p.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", p.Pending())
	}
}

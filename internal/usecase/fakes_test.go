package usecase

import (
	"context"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
)

type countingMetrics struct {
	mu      sync.Mutex
	signals map[string]int
	guard   map[string]int
	errors  map[string]int
	latency map[string]int
	samples int
	cycles  int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{signals: map[string]int{}, guard: map[string]int{}, errors: map[string]int{}, latency: map[string]int{}}
}

func (m *countingMetrics) RecordSampleIngested(string) {
	m.mu.Lock()
	m.samples++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordSignal(kind, outcome string) {
	m.mu.Lock()
	m.signals[outcome]++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordGuardDecision(outcome string) {
	m.mu.Lock()
	m.guard[outcome]++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordLatency(op string, _ float64) {
	m.mu.Lock()
	m.latency[op]++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordCycle(float64, int) {
	m.mu.Lock()
	m.cycles++
	m.mu.Unlock()
}

type memorySampleStore struct {
	mu      sync.Mutex
	samples map[string][]models.Sample
	fail    error
}

func newMemorySampleStore() *memorySampleStore {
	return &memorySampleStore{samples: map[string][]models.Sample{}}
}

func (s *memorySampleStore) Store(ctx context.Context, smp models.Sample) error {
	return s.StoreBatch(ctx, []models.Sample{smp})
}

func (s *memorySampleStore) StoreBatch(_ context.Context, samples []models.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	for _, smp := range samples {
		s.samples[smp.AssetID] = append(s.samples[smp.AssetID], smp)
	}
	return nil
}

func (s *memorySampleStore) LoadRecent(_ context.Context, asset string, n int) ([]models.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.samples[asset]
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return append([]models.Sample(nil), all...), nil
}

func (s *memorySampleStore) Assets(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.samples))
	for a := range s.samples {
		out = append(out, a)
	}
	return out, nil
}

func (s *memorySampleStore) Health(context.Context) error { return nil }
func (s *memorySampleStore) Close() error                 { return nil }

type memoryHistory struct {
	mu      sync.Mutex
	records []models.PublishedContentRecord
}

func (h *memoryHistory) Append(_ context.Context, rec models.PublishedContentRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

func (h *memoryHistory) Since(_ context.Context, t time.Time) ([]models.PublishedContentRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []models.PublishedContentRecord
	for _, r := range h.records {
		if !r.Timestamp.Before(t) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (h *memoryHistory) Trim(context.Context, time.Time) error { return nil }
func (h *memoryHistory) Close() error                          { return nil }

type recordingSignalPublisher struct {
	mu      sync.Mutex
	batches [][]models.Signal
}

func (p *recordingSignalPublisher) PublishSignals(_ context.Context, sigs []models.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, sigs)
	return nil
}

func (p *recordingSignalPublisher) Close() error { return nil }

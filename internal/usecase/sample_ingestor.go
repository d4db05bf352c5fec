package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/services/series"
	applogger "MarketPulse/pkg/logger"
)

// Persister forwards accepted samples to durable storage.
type Persister interface {
	Process(ctx context.Context, s models.Sample) error
}

// SampleIngestor is the single entry point for new samples: HTTP, Kafka and
// history seeding all go through it.
type SampleIngestor struct {
	registry *series.Registry
	persist  Persister
	metrics  domrepo.Metrics
	log      *applogger.Logger
}

func NewSampleIngestor(registry *series.Registry, persist Persister, metrics domrepo.Metrics, log *applogger.Logger) *SampleIngestor {
	if log == nil {
		log = applogger.Nop()
	}
	return &SampleIngestor{registry: registry, persist: persist, metrics: nopIfNil(metrics), log: log}
}

// Ingest records s into its buffer. Out-of-order samples are returned as
// *models.OutOfOrderError; persistence failures are logged, not returned.
func (i *SampleIngestor) Ingest(ctx context.Context, s models.Sample) error {
	if err := s.Validate(); err != nil {
		i.metrics.RecordError("ingest_invalid")
		return err
	}
	if err := i.registry.Record(s); err != nil {
		if errors.Is(err, models.ErrOutOfOrderSample) {
			i.metrics.RecordError("ingest_out_of_order")
		}
		return err
	}
	i.metrics.RecordSampleIngested(s.AssetID)

	if i.persist != nil {
		if err := i.persist.Process(ctx, s); err != nil {
			i.log.Warn("sample persist deferred", applogger.String("asset", s.AssetID), applogger.Error(err))
		}
	}
	return nil
}

// Seed loads up to n recent samples per asset from store into the buffers.
func (i *SampleIngestor) Seed(ctx context.Context, store domrepo.SampleStore, assets []string, n int) (map[string]int, error) {
	if store == nil || n <= 0 {
		return map[string]int{}, nil
	}
	start := time.Now()
	out := make(map[string]int, len(assets))
	var errs []error
	for _, a := range assets {
		samples, err := store.LoadRecent(ctx, a, n)
		if err != nil {
			i.metrics.RecordError("seed_load")
			errs = append(errs, fmt.Errorf("seed %s: %w", a, err))
			continue
		}
		out[a] = i.registry.Seed(a, samples)
	}
	i.metrics.RecordLatency("seed_samples", time.Since(start).Seconds())
	return out, errors.Join(errs...)
}

// Registry exposes the buffers for read-only callers such as the HTTP layer.
func (i *SampleIngestor) Registry() *series.Registry { return i.registry }

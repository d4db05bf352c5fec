package repository

import (
	"context"
	"time"

	"MarketPulse/internal/domain/models"
)

// Metrics is the instrumentation surface used across the engine.
type Metrics interface {
	RecordSampleIngested(asset string)
	RecordSignal(kind, outcome string)
	RecordGuardDecision(outcome string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordCycle(seconds float64, approved int)
}

// SampleStore persists raw samples so buffers can be seeded after a restart.
type SampleStore interface {
	Store(ctx context.Context, s models.Sample) error
	StoreBatch(ctx context.Context, samples []models.Sample) error
	// LoadRecent returns up to n of the newest samples for asset, oldest first.
	LoadRecent(ctx context.Context, asset string, n int) ([]models.Sample, error)
	Assets(ctx context.Context) ([]string, error)
	Health(ctx context.Context) error
	Close() error
}

// ContentHistory keeps accepted analysis texts across restarts.
type ContentHistory interface {
	Append(ctx context.Context, rec models.PublishedContentRecord) error
	Since(ctx context.Context, t time.Time) ([]models.PublishedContentRecord, error)
	Trim(ctx context.Context, before time.Time) error
	Close() error
}

// SignalPublisher fans approved signals out to downstream consumers.
type SignalPublisher interface {
	PublishSignals(ctx context.Context, signals []models.Signal) error
	Close() error
}

// CooldownStore keeps aggregator last-fired stamps across restarts.
type CooldownStore interface {
	Save(ctx context.Context, stamps map[models.CooldownKey]time.Time) error
	Load(ctx context.Context) (map[models.CooldownKey]time.Time, error)
}

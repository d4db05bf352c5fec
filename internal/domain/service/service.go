package service

import (
	"context"

	"MarketPulse/internal/domain/models"
)

// ContentGenerator turns a signal into publishable analysis text.
// Generation happens outside this process.
type ContentGenerator interface {
	Generate(ctx context.Context, sig models.Signal, attempt int) (string, error)
}

// ContentPublisher hands accepted analysis text to the downstream poster.
type ContentPublisher interface {
	Publish(ctx context.Context, rec models.PublishedContentRecord) error
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	domsvc "MarketPulse/internal/domain/service"
	"MarketPulse/internal/services/content"
	applogger "MarketPulse/pkg/logger"
)

// ErrNoAcceptableContent is returned when every generation attempt was a near duplicate.
var ErrNoAcceptableContent = errors.New("no acceptable content after retries")

// AnalysisPublisher generates text for a signal, screens it with the
// duplicate guard and hands accepted text to the publisher.
type AnalysisPublisher struct {
	generator   domsvc.ContentGenerator
	guard       *content.Guard
	publisher   domsvc.ContentPublisher
	history     domrepo.ContentHistory
	maxAttempts int
	metrics     domrepo.Metrics
	log         *applogger.Logger
	clock       func() time.Time
}

func NewAnalysisPublisher(generator domsvc.ContentGenerator, guard *content.Guard, publisher domsvc.ContentPublisher,
	history domrepo.ContentHistory, maxAttempts int, metrics domrepo.Metrics, log *applogger.Logger) *AnalysisPublisher {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if log == nil {
		log = applogger.Nop()
	}
	return &AnalysisPublisher{
		generator:   generator,
		guard:       guard,
		publisher:   publisher,
		history:     history,
		maxAttempts: maxAttempts,
		metrics:     nopIfNil(metrics),
		log:         log,
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// Restore seeds the guard with history still inside its timeframe.
func (p *AnalysisPublisher) Restore(ctx context.Context) (int, error) {
	if p.history == nil {
		return 0, nil
	}
	recs, err := p.history.Since(ctx, p.clock().Add(-p.guard.Timeframe()))
	if err != nil {
		return 0, fmt.Errorf("load content history: %w", err)
	}
	p.guard.Seed(recs)
	return len(recs), nil
}

// Publish tries up to maxAttempts generations for sig. The first text the
// guard accepts is published and recorded; the returned decision is the
// last one taken.
func (p *AnalysisPublisher) Publish(ctx context.Context, sig models.Signal) (models.Decision, error) {
	var last models.Decision
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		text, err := p.generator.Generate(ctx, sig, attempt)
		if err != nil {
			p.metrics.RecordError("content_generate")
			return last, fmt.Errorf("generate content for %s: %w", sig.Key(), err)
		}

		now := p.clock()
		last = p.guard.Evaluate(text, []string{sig.AssetID}, now)
		if !last.Accepted {
			p.metrics.RecordGuardDecision("rejected")
			p.log.Info("content rejected",
				applogger.String("signal", sig.Key().String()),
				applogger.Int("attempt", attempt),
				applogger.String("reason", last.Reason),
				applogger.Float64("similarity", last.Similarity))
			continue
		}
		p.metrics.RecordGuardDecision("accepted")

		rec := *last.Record
		if err := p.publisher.Publish(ctx, rec); err != nil {
			p.metrics.RecordError("content_publish")
			return last, fmt.Errorf("publish content %s: %w", rec.ID, err)
		}
		p.remember(ctx, rec, now)
		p.log.Info("content published",
			applogger.String("signal", sig.Key().String()),
			applogger.String("record", rec.ID),
			applogger.Int("attempt", attempt))
		return last, nil
	}
	return last, ErrNoAcceptableContent
}

// PublishReport publishes analysis for the top approved signal of every asset.
func (p *AnalysisPublisher) PublishReport(ctx context.Context, report *models.CycleReport) {
	if report == nil {
		return
	}
	for _, asset := range sortedAssets(report) {
		top, ok := report.Assets[asset].Top()
		if !ok {
			continue
		}
		if _, err := p.Publish(ctx, top); err != nil {
			p.log.Warn("analysis not published", applogger.String("asset", asset), applogger.Error(err))
		}
	}
}

func (p *AnalysisPublisher) remember(ctx context.Context, rec models.PublishedContentRecord, now time.Time) {
	if p.history == nil {
		return
	}
	if err := p.history.Append(ctx, rec); err != nil {
		p.metrics.RecordError("content_history")
		p.log.Warn("content history append", applogger.String("record", rec.ID), applogger.Error(err))
		return
	}
	if err := p.history.Trim(ctx, now.Add(-p.guard.Timeframe())); err != nil {
		p.log.Warn("content history trim", applogger.Error(err))
	}
}

func sortedAssets(report *models.CycleReport) []string {
	out := make([]string, 0, len(report.Assets))
	for a := range report.Assets {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

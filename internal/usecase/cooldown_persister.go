package usecase

import (
	"context"
	"fmt"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	applogger "MarketPulse/pkg/logger"
)

// CooldownPersister mirrors aggregator cooldowns into a CooldownStore.
type CooldownPersister struct {
	aggregator *SignalAggregator
	store      domrepo.CooldownStore
	metrics    domrepo.Metrics
	log        *applogger.Logger
}

func NewCooldownPersister(aggregator *SignalAggregator, store domrepo.CooldownStore, metrics domrepo.Metrics, log *applogger.Logger) *CooldownPersister {
	if log == nil {
		log = applogger.Nop()
	}
	return &CooldownPersister{aggregator: aggregator, store: store, metrics: nopIfNil(metrics), log: log}
}

// Restore loads stored stamps into the aggregator.
func (p *CooldownPersister) Restore(ctx context.Context) (int, error) {
	stamps, err := p.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load cooldowns: %w", err)
	}
	p.aggregator.Restore(stamps)
	return len(stamps), nil
}

// HandleReport saves the stamps after a cycle that approved anything. The
// stored map is merged in first, newer stamps winning, so stamps written by
// other instances survive. Nothing is saved when the stored map cannot be read.
func (p *CooldownPersister) HandleReport(ctx context.Context, report *models.CycleReport) {
	if report == nil || report.ApprovedCount() == 0 {
		return
	}
	stored, err := p.store.Load(ctx)
	if err != nil {
		p.metrics.RecordError("cooldown_save")
		p.log.Warn("load cooldowns before save", applogger.Error(err))
		return
	}
	p.aggregator.Restore(stored)
	if err := p.store.Save(ctx, p.aggregator.LastFired("")); err != nil {
		p.metrics.RecordError("cooldown_save")
		p.log.Warn("save cooldowns", applogger.Error(err))
	}
}

package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/services/analytics"
	applogger "MarketPulse/pkg/logger"
)

// CycleRunner evaluates every focal asset once per call: detectors run per
// asset on a bounded worker group, then the aggregator filters the candidates.
type CycleRunner struct {
	mu         sync.Mutex
	source     analytics.WindowSource
	detectors  []analytics.Detector
	aggregator *SignalAggregator
	assets     []string
	workers    int
	publisher  domrepo.SignalPublisher
	metrics    domrepo.Metrics
	log        *applogger.Logger
	clock      func() time.Time

	lastMu sync.RWMutex
	last   *models.CycleReport
}

type CycleOption func(*CycleRunner)

// WithWorkers bounds how many assets are evaluated in parallel.
func WithWorkers(n int) CycleOption {
	return func(r *CycleRunner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithSignalPublisher forwards approved signals after each cycle.
func WithSignalPublisher(p domrepo.SignalPublisher) CycleOption {
	return func(r *CycleRunner) { r.publisher = p }
}

func WithClock(now func() time.Time) CycleOption {
	return func(r *CycleRunner) {
		if now != nil {
			r.clock = now
		}
	}
}

func WithCycleLogger(l *applogger.Logger) CycleOption {
	return func(r *CycleRunner) {
		if l != nil {
			r.log = l
		}
	}
}

func NewCycleRunner(source analytics.WindowSource, detectors []analytics.Detector, aggregator *SignalAggregator,
	assets []string, metrics domrepo.Metrics, opts ...CycleOption) *CycleRunner {
	r := &CycleRunner{
		source:     source,
		detectors:  detectors,
		aggregator: aggregator,
		assets:     append([]string(nil), assets...),
		workers:    4,
		metrics:    nopIfNil(metrics),
		log:        applogger.Nop(),
		clock:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one cycle at the current clock time.
func (r *CycleRunner) Run(ctx context.Context) (*models.CycleReport, error) {
	return r.RunAt(ctx, r.clock())
}

// RunAt executes one cycle with now as the evaluation time. Cycles never
// overlap; a second caller waits for the one in flight.
func (r *CycleRunner) RunAt(ctx context.Context, now time.Time) (*models.CycleReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	report := &models.CycleReport{
		Timestamp: now,
		Assets:    make(map[string]*models.AssetOutcome, len(r.assets)),
	}
	outcomes := make([]*models.AssetOutcome, len(r.assets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, asset := range r.assets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = r.evaluate(asset, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var approved []models.Signal
	for _, o := range outcomes {
		report.Assets[o.AssetID] = o
		approved = append(approved, o.Approved...)
	}
	report.Duration = time.Since(start)

	if r.publisher != nil && len(approved) > 0 {
		Rank(approved)
		if err := r.publisher.PublishSignals(ctx, approved); err != nil {
			r.metrics.RecordError("publish_signals")
			r.log.Error("publish approved signals", applogger.Int("count", len(approved)), applogger.Error(err))
		}
	}

	r.metrics.RecordCycle(report.Duration.Seconds(), len(approved))
	r.log.Info("cycle complete",
		applogger.Time("at", now),
		applogger.Int("assets", len(r.assets)),
		applogger.Int("approved", len(approved)),
		applogger.Duration("duration_ms", report.Duration))
	r.lastMu.Lock()
	r.last = report
	r.lastMu.Unlock()
	return report, nil
}

// evaluate runs every detector for asset and aggregates the candidates.
// A detector failure is recorded in Skipped and never affects other detectors.
func (r *CycleRunner) evaluate(asset string, now time.Time) *models.AssetOutcome {
	out := &models.AssetOutcome{AssetID: asset, Skipped: map[string]string{}}
	var candidates []models.Signal
	for _, d := range r.detectors {
		sigs, err := r.detect(d, asset, now)
		candidates = append(candidates, sigs...)
		if err == nil {
			continue
		}
		out.Skipped[d.Name()] = err.Error()
		if !models.IsDecline(err) {
			r.metrics.RecordError("detector_" + d.Name())
			r.log.Warn("detector failed",
				applogger.String("asset", asset),
				applogger.String("detector", d.Name()),
				applogger.Error(err))
		}
	}
	out.Candidates = len(candidates)
	out.Approved = r.aggregator.Aggregate(now, candidates)
	if len(out.Skipped) == 0 {
		out.Skipped = nil
	}
	return out
}

func (r *CycleRunner) detect(d analytics.Detector, asset string, now time.Time) (sigs []models.Signal, err error) {
	defer func() {
		if p := recover(); p != nil {
			sigs, err = nil, errors.New("detector panic")
			r.log.Error("detector panic", applogger.String("detector", d.Name()), applogger.Any("panic", p))
		}
	}()
	return d.Detect(r.source, asset, now)
}

// LastReport returns the most recent completed cycle, or nil.
func (r *CycleRunner) LastReport() *models.CycleReport {
	r.lastMu.RLock()
	defer r.lastMu.RUnlock()
	return r.last
}

// Assets returns the focal assets, sorted.
func (r *CycleRunner) Assets() []string {
	out := append([]string(nil), r.assets...)
	sort.Strings(out)
	return out
}

// Cooldowns proxies the aggregator's last-fired stamps.
func (r *CycleRunner) Cooldowns(asset string) map[models.CooldownKey]time.Time {
	return r.aggregator.LastFired(asset)
}

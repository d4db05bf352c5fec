package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	appmetrics "MarketPulse/pkg/metrics"
)

// PersistPipeline sits between ingestion and the sample store.
// Writes that fail are buffered and retried in the background so a slow or
// unavailable store never blocks the in-memory buffers.
type PersistPipeline struct {
	store   domrepo.SampleStore
	metrics domrepo.Metrics
	bufSize int
	bufCh   chan models.Sample
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex

	backoffMin time.Duration
	backoffMax time.Duration
}

type PipelineOption func(*PersistPipeline)

// WithBufferSize sets the retry buffer size used when the store is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *PersistPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithBackoff sets the retry backoff bounds.
func WithBackoff(min, max time.Duration) PipelineOption {
	return func(p *PersistPipeline) {
		if min > 0 {
			p.backoffMin = min
		}
		if max >= p.backoffMin {
			p.backoffMax = max
		}
	}
}

// NewPersistPipeline creates a new pipeline.
func NewPersistPipeline(store domrepo.SampleStore, metrics domrepo.Metrics, opts ...PipelineOption) *PersistPipeline {
	if metrics == nil {
		metrics = appmetrics.Nop{}
	}
	p := &PersistPipeline{
		store:      store,
		metrics:    metrics,
		bufSize:    1000,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan models.Sample, p.bufSize)
	return p
}

// Start launches background flushing of buffered samples.
func (p *PersistPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.doneCh)
		backoff := p.backoffMin
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case s := <-p.bufCh:
				if err := p.store.Store(ctx, s); err != nil {
					p.metrics.RecordError("pipeline_flush")
					if backoff < p.backoffMax {
						backoff *= 2
						if backoff > p.backoffMax {
							backoff = p.backoffMax
						}
					}
					select {
					case <-time.After(backoff):
					case <-p.stopCh:
						return
					case <-ctx.Done():
						return
					}
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- s:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
					continue
				}
				backoff = p.backoffMin
			}
		}
	}()
}

// Stop stops the background flushing and waits for the loop to exit.
func (p *PersistPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.doneCh
}

// Pending reports how many samples wait for a retry.
func (p *PersistPipeline) Pending() int { return len(p.bufCh) }

// Process validates s and writes it through, buffering on store errors.
func (p *PersistPipeline) Process(ctx context.Context, s models.Sample) error {
	start := time.Now()
	if err := s.Validate(); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}

	if err := p.store.Store(ctx, s); err != nil {
		p.metrics.RecordError("pipeline_store")
		select {
		case p.bufCh <- s:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_store", time.Since(start).Seconds())
	return nil
}

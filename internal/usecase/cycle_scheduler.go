package usecase

import (
	"context"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	applogger "MarketPulse/pkg/logger"
)

// ReportHandler is called after every scheduled cycle.
type ReportHandler func(ctx context.Context, report *models.CycleReport)

// CycleLock elects one instance per interval when several share a cache.
type CycleLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// SharedState reloads state other instances may have changed since the
// last cycle. CooldownPersister implements it.
type SharedState interface {
	Restore(ctx context.Context) (int, error)
}

const cycleLockKey = "cycle:lock"

// CycleScheduler runs the cycle runner on a fixed interval.
type CycleScheduler struct {
	runner   *CycleRunner
	interval time.Duration
	handlers []ReportHandler
	log      *applogger.Logger
	lock     CycleLock
	shared   SharedState

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewCycleScheduler(runner *CycleRunner, interval time.Duration, log *applogger.Logger, handlers ...ReportHandler) *CycleScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = applogger.Nop()
	}
	return &CycleScheduler{runner: runner, interval: interval, handlers: handlers, log: log}
}

// SetLock makes scheduled cycles take lock first and reload shared before
// running, so instances taking turns see each other's cooldowns. Must be
// called before Start. Manual cycles through RunNow ignore both.
func (s *CycleScheduler) SetLock(l CycleLock, shared SharedState) {
	s.lock = l
	s.shared = shared
}

// Start launches the ticker loop. Calling Start twice is a no-op.
func (s *CycleScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	s.log.Info("cycle scheduler started", applogger.Duration("interval_ms", s.interval))
}

// Shutdown stops the loop and waits for an in-flight cycle to finish or ctx to expire.
func (s *CycleScheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *CycleScheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *CycleScheduler) tick(ctx context.Context) {
	if s.lock != nil {
		// held for most of the interval so a slower replica's tick finds it taken
		ok, err := s.lock.TryLock(ctx, cycleLockKey, s.interval*9/10)
		switch {
		case err != nil:
			s.log.Warn("cycle lock unavailable, running anyway", applogger.Error(err))
		case !ok:
			s.log.Debug("cycle held by another instance")
			return
		}
		if s.shared != nil {
			if _, err := s.shared.Restore(ctx); err != nil {
				s.log.Warn("reload shared state", applogger.Error(err))
			}
		}
	}
	if _, err := s.RunNow(ctx); err != nil && ctx.Err() == nil {
		s.log.Error("scheduled cycle failed", applogger.Error(err))
		if s.lock != nil {
			_ = s.lock.Unlock(context.WithoutCancel(ctx), cycleLockKey)
		}
	}
}

// RunNow executes one cycle outside the ticker and hands the report to the
// same handlers a scheduled cycle would.
func (s *CycleScheduler) RunNow(ctx context.Context) (*models.CycleReport, error) {
	report, err := s.runner.Run(ctx)
	if err != nil {
		return nil, err
	}
	for _, h := range s.handlers {
		h(ctx, report)
	}
	return report, nil
}

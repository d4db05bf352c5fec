package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/middleware"
	"MarketPulse/internal/service/ratelimit"
	"MarketPulse/internal/service/stream"
	"MarketPulse/internal/usecase"
	"MarketPulse/pkg/config"
	xhttp "MarketPulse/pkg/http"
	pkgkafka "MarketPulse/pkg/kafka"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/queue"
)

// Deps are the components App drives. Queue, Consumer, Stream and
// Cooldowns are nil when their feature is switched off.
type Deps struct {
	Log       *applogger.Logger
	Store     domrepo.SampleStore
	Ingestor  *usecase.SampleIngestor
	Pipeline  *middleware.PersistPipeline
	Publisher *usecase.AnalysisPublisher
	Cooldowns *usecase.CooldownPersister
	Scheduler *usecase.CycleScheduler
	Queue     *queue.Queue
	Consumer  *pkgkafka.Consumer
	Stream    *stream.Client
	Limiter   *ratelimit.Limiter
	HTTP      *xhttp.Server
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg  *config.Config
	deps Deps
	log  *applogger.Logger

	cancel context.CancelFunc
	bg     sync.WaitGroup
}

func New(cfg *config.Config, deps Deps) *App {
	log := deps.Log
	if log == nil {
		log = applogger.Nop()
	}
	return &App{cfg: cfg, deps: deps, log: log}
}

// Run starts every component and blocks until SIGINT/SIGTERM or a fatal
// HTTP listen error, then shuts down in reverse order.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		a.Shutdown(context.Background())
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err := <-a.deps.HTTP.Err():
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	a.Shutdown(shutdownCtx)
	return runErr
}

// Start restores state and launches the background components.
func (a *App) Start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	a.cancel = cancel

	a.restore(ctx)

	a.deps.Pipeline.Start(ctx)
	if q := a.deps.Queue; q != nil {
		if err := q.Start(); err != nil {
			return fmt.Errorf("content queue: %w", err)
		}
	}
	if c := a.deps.Consumer; c != nil {
		if err := c.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
	}
	if s := a.deps.Stream; s != nil {
		a.bg.Add(1)
		go func() {
			defer a.bg.Done()
			if err := s.Run(ctx); err != nil {
				a.log.Error("stream stopped", applogger.Error(err))
			}
		}()
	}
	if l := a.deps.Limiter; l != nil {
		a.bg.Add(1)
		go a.sweep(ctx, l)
	}
	a.deps.Scheduler.Start(ctx)
	a.deps.HTTP.Start()

	a.log.Info("marketpulse started",
		applogger.Strings("assets", a.cfg.Engine.Assets),
		applogger.Strings("reference_assets", a.cfg.Engine.ReferenceAssets),
		applogger.String("storage", a.cfg.Storage.Backend),
		applogger.Bool("kafka", a.deps.Consumer != nil),
		applogger.Bool("stream", a.deps.Stream != nil),
		applogger.Bool("content_queue", a.deps.Queue != nil))
	return nil
}

// restore seeds buffers from the store and reloads guard history and
// cooldowns. Failures are logged; the engine starts cold instead.
func (a *App) restore(ctx context.Context) {
	if a.cfg.Engine.SeedOnStart && a.cfg.Storage.SeedSamples > 0 {
		assets := append(append([]string(nil), a.cfg.Engine.Assets...), a.cfg.Engine.ReferenceAssets...)
		seeded, err := a.deps.Ingestor.Seed(ctx, a.deps.Store, assets, a.cfg.Storage.SeedSamples)
		if err != nil {
			a.log.Warn("seed buffers", applogger.Error(err))
		}
		for asset, n := range seeded {
			a.log.Debug("seeded buffer", applogger.String("asset", asset), applogger.Int("samples", n))
		}
	}
	if a.deps.Publisher != nil {
		if n, err := a.deps.Publisher.Restore(ctx); err != nil {
			a.log.Warn("restore content history", applogger.Error(err))
		} else if n > 0 {
			a.log.Info("content history restored", applogger.Int("records", n))
		}
	}
	if a.deps.Cooldowns != nil {
		if n, err := a.deps.Cooldowns.Restore(ctx); err != nil {
			a.log.Warn("restore cooldowns", applogger.Error(err))
		} else if n > 0 {
			a.log.Info("cooldowns restored", applogger.Int("stamps", n))
		}
	}
}

func (a *App) sweep(ctx context.Context, l *ratelimit.Limiter) {
	defer a.bg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Shutdown stops intake first, then drains the workers.
func (a *App) Shutdown(ctx context.Context) {
	var errs []error
	if err := a.deps.HTTP.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if err := a.deps.Scheduler.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.bg.Wait()
	if c := a.deps.Consumer; c != nil {
		if err := c.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kafka consumer: %w", err))
		}
	}
	if q := a.deps.Queue; q != nil {
		if err := q.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("content queue: %w", err))
		}
	}
	a.deps.Pipeline.Stop()

	if err := errors.Join(errs...); err != nil {
		a.log.Error("shutdown incomplete", applogger.Error(err))
		return
	}
	a.log.Info("marketpulse stopped")
}

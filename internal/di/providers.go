package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	domsvc "MarketPulse/internal/domain/service"
	"MarketPulse/internal/handler/api"
	mid "MarketPulse/internal/middleware"
	internalrepo "MarketPulse/internal/repository"
	"MarketPulse/internal/service/ratelimit"
	"MarketPulse/internal/service/stream"
	"MarketPulse/internal/services/analytics"
	"MarketPulse/internal/services/content"
	"MarketPulse/internal/services/series"
	"MarketPulse/internal/usecase"
	"MarketPulse/pkg/cache"
	pkgch "MarketPulse/pkg/clickhouse"
	"MarketPulse/pkg/config"
	xhttp "MarketPulse/pkg/http"
	pkgkafka "MarketPulse/pkg/kafka"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"
	"MarketPulse/pkg/queue"
	"MarketPulse/pkg/server"
)

const sampleTable = "samples"

func noop() {}

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvidePrometheusRegistry returns a fresh registry with the runtime collectors.
func ProvidePrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func ProvideMetrics(reg *prometheus.Registry) *metrics.Recorder {
	return metrics.New(reg)
}

// ProvideSampleStore opens the configured durable store. The cleanup closes it.
func ProvideSampleStore(cfg *config.Config, log *applogger.Logger) (domrepo.SampleStore, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch cfg.Storage.Backend {
	case "clickhouse":
		ch := cfg.Storage.ClickHouse
		client, err := pkgch.NewClient(ctx, pkgch.Options{
			Addr:             net.JoinHostPort(ch.Host, strconv.Itoa(ch.Port)),
			Database:         ch.Database,
			User:             ch.User,
			Password:         ch.Password,
			HTTP:             ch.UseHTTP,
			AsyncInsert:      ch.AsyncInsert,
			WaitForAsync:     ch.WaitForAsync,
			DialTimeout:      ch.DialTimeout,
			ReadTimeout:      ch.ReadTimeout,
			MaxExecutionTime: ch.MaxExecutionTime,
			MaxOpenConns:     10,
			MaxIdleConns:     5,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		store := internalrepo.NewClickHouseSampleStore(client, sampleTable, log)
		if err := store.Init(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		log.Info("sample store ready", applogger.String("backend", "clickhouse"), applogger.String("database", ch.Database))
		return store, func() { _ = client.Close() }, nil
	case "sqlite":
		store, err := internalrepo.OpenSQLiteSampleStore(ctx, cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite store: %w", err)
		}
		log.Info("sample store ready", applogger.String("backend", "sqlite"), applogger.String("path", cfg.Storage.SQLite.Path))
		return store, func() { _ = store.Close() }, nil
	default:
		return internalrepo.NewMemorySampleStore(cfg.Engine.BufferCapacity), noop, nil
	}
}

// ProvideRedis connects when Redis is enabled and returns nil otherwise.
func ProvideRedis(cfg *config.Config) (*cache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, noop, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 30*time.Second),
		cache.WithRedisPrefix(cfg.Redis.KeyPrefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideCache prefers Redis and falls back to the in-process cache.
func ProvideCache(rc *cache.RedisCache) (cache.Service, func()) {
	if rc != nil {
		return rc, noop
	}
	mc := cache.NewMemoryCache()
	return mc, func() { _ = mc.Close() }
}

func ProvideContentHistory(rc *cache.RedisCache) domrepo.ContentHistory {
	if rc != nil {
		return internalrepo.NewRedisContentHistory(rc)
	}
	return internalrepo.NewMemoryContentHistory()
}

// ProvideCooldownStore keeps stamps for as long as the longest cooldown.
func ProvideCooldownStore(cfg *config.Config, c cache.Service) domrepo.CooldownStore {
	ttl := cfg.Aggregator.DefaultCooldown
	for _, d := range cfg.Aggregator.Cooldowns {
		if d > ttl {
			ttl = d
		}
	}
	return internalrepo.NewCacheCooldownStore(c, ttl)
}

// ProvideKafkaProducer returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, noop, nil
	}
	k := cfg.Kafka
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(k.Brokers),
		pkgkafka.WithCompression(k.Compression),
		pkgkafka.WithRequiredAcks(k.RequiredAcks),
		pkgkafka.WithMaxAttempts(k.Producer.MaxAttempts),
		pkgkafka.WithBatching(k.Producer.BatchSize, k.Producer.BatchBytes, k.Producer.Linger),
		pkgkafka.WithTimeouts(k.Producer.WriteTimeout, k.Producer.ReadTimeout),
		pkgkafka.WithAsync(k.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

func ProvideSignalPublisher(cfg *config.Config, producer *pkgkafka.Producer) domrepo.SignalPublisher {
	if producer == nil {
		return internalrepo.NopSignalPublisher{}
	}
	return internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.Topics.Signals)
}

func ProvideContentPublisher(cfg *config.Config, producer *pkgkafka.Producer, log *applogger.Logger) domsvc.ContentPublisher {
	if producer == nil {
		return internalrepo.NewLogContentPublisher(log)
	}
	return internalrepo.NewKafkaContentPublisher(producer, cfg.Kafka.Topics.Content)
}

func ProvideSeriesRegistry(cfg *config.Config) *series.Registry {
	return series.NewRegistry(cfg.Engine.BufferCapacity)
}

func ProvidePersistPipeline(store domrepo.SampleStore, m domrepo.Metrics) *mid.PersistPipeline {
	return mid.NewPersistPipeline(store, m)
}

func ProvideSampleIngestor(reg *series.Registry, pipeline *mid.PersistPipeline, m domrepo.Metrics, log *applogger.Logger) *usecase.SampleIngestor {
	return usecase.NewSampleIngestor(reg, pipeline, m, log)
}

// ProvideDetectors builds the detector set; divergence shares the volume scorer.
func ProvideDetectors(cfg *config.Config) []analytics.Detector {
	d := cfg.Detectors
	volume := analytics.NewVolumeAnomalyDetector(analytics.VolumeConfig{
		Window:      d.Volume.Window,
		MinSamples:  d.Volume.MinSamples,
		Moderate:    d.Volume.Moderate,
		Significant: d.Volume.Significant,
	})
	divergence := analytics.NewDivergenceDetector(analytics.DivergenceConfig{
		Window:              d.Divergence.Window,
		MinSamples:          d.Divergence.MinSamples,
		Stealth:             d.Divergence.Stealth,
		UnusualHour:         d.Divergence.UnusualHour,
		Clustering:          d.Divergence.Clustering,
		FlatPricePct:        d.Divergence.FlatPricePct,
		UnusualHourMultiple: d.Divergence.UnusualHourMultiple,
		MinActiveHours:      d.Divergence.MinActiveHours,
		ClusterMultiple:     d.Divergence.ClusterMultiple,
		MinClusterLength:    d.Divergence.MinClusterLength,
	}, volume)
	correlation := analytics.NewCorrelationEngine(analytics.CorrelationConfig{
		Window:                 d.Correlation.Window,
		MinOverlap:             d.Correlation.MinOverlap,
		CorrelationCheck:       d.Correlation.CorrelationCheck,
		RelativeStrengthCheck:  d.Correlation.RelativeStrengthCheck,
		CorrelationFloor:       d.Correlation.CorrelationFloor,
		RelativeStrengthSpread: d.Correlation.RelativeStrengthSpread,
		References:             cfg.Engine.ReferenceAssets,
	})
	return []analytics.Detector{volume, divergence, correlation}
}

func ProvideSignalAggregator(cfg *config.Config, m domrepo.Metrics) (*usecase.SignalAggregator, error) {
	perKind := make(map[models.SignalKind]time.Duration, len(cfg.Aggregator.Cooldowns))
	for name, d := range cfg.Aggregator.Cooldowns {
		kind, ok := models.ParseSignalKind(name)
		if !ok {
			return nil, fmt.Errorf("aggregator: unknown signal kind %q", name)
		}
		perKind[kind] = d
	}
	return usecase.NewSignalAggregator(usecase.CooldownPolicy{
		Default:     cfg.Aggregator.DefaultCooldown,
		PerKind:     perKind,
		MinSeverity: cfg.Aggregator.MinSeverity,
	}, m), nil
}

func ProvideCycleRunner(cfg *config.Config, reg *series.Registry, detectors []analytics.Detector, agg *usecase.SignalAggregator,
	pub domrepo.SignalPublisher, m domrepo.Metrics, log *applogger.Logger) *usecase.CycleRunner {
	return usecase.NewCycleRunner(reg, detectors, agg, cfg.Engine.Assets, m,
		usecase.WithWorkers(cfg.Engine.Workers),
		usecase.WithSignalPublisher(pub),
		usecase.WithCycleLogger(log.With(applogger.String("component", "cycle_runner"))),
	)
}

func ProvideGuard(cfg *config.Config) (*content.Guard, error) {
	g, err := content.NewGuard(content.Config{
		Threshold:   cfg.Guard.Threshold,
		Timeframe:   cfg.Guard.Timeframe,
		Similarity:  cfg.Guard.Similarity,
		ShingleSize: cfg.Guard.ShingleSize,
		MaxRecords:  cfg.Guard.MaxRecords,
	})
	if err != nil {
		return nil, fmt.Errorf("content guard: %w", err)
	}
	return g, nil
}

func ProvideContentGenerator(cfg *config.Config) domsvc.ContentGenerator {
	return content.NewHTTPGenerator(cfg.Content.ServiceURL, cfg.Content.Timeout, 2)
}

func ProvideAnalysisPublisher(cfg *config.Config, gen domsvc.ContentGenerator, guard *content.Guard, pub domsvc.ContentPublisher,
	history domrepo.ContentHistory, m domrepo.Metrics, log *applogger.Logger) *usecase.AnalysisPublisher {
	return usecase.NewAnalysisPublisher(gen, guard, pub, history, cfg.Content.MaxAttempts, m,
		log.With(applogger.String("component", "analysis_publisher")))
}

// ProvideContentQueue returns nil when content runs inline or is disabled.
func ProvideContentQueue(cfg *config.Config, rc *cache.RedisCache, publisher *usecase.AnalysisPublisher, log *applogger.Logger) (*queue.Queue, error) {
	qc := cfg.Content.Queue
	if !cfg.Content.Enabled || !qc.Enabled {
		return nil, nil
	}
	var backend queue.Backend
	switch qc.Backend {
	case "redis":
		if rc == nil {
			return nil, fmt.Errorf("content queue: redis backend needs redis.enabled")
		}
		backend = queue.NewRedisBackend(rc.Client(), queue.WithKeyPrefix(rc.Prefixed("queue")))
	default:
		backend = queue.NewMemoryBackend(qc.Size)
	}
	q := queue.New(backend, queue.Config{
		Workers:    qc.Workers,
		RetryLimit: qc.RetryLimit,
		RetryDelay: qc.RetryDelay,
	}, log)
	q.RegisterJob(usecase.NewContentJob(publisher, log))
	return q, nil
}

// ProvideCooldownPersister returns nil when cooldowns are memory only.
func ProvideCooldownPersister(cfg *config.Config, agg *usecase.SignalAggregator, store domrepo.CooldownStore,
	m domrepo.Metrics, log *applogger.Logger) *usecase.CooldownPersister {
	if !cfg.Aggregator.PersistCooldowns {
		return nil
	}
	return usecase.NewCooldownPersister(agg, store, m, log)
}

// ProvideCycleScheduler attaches the report handlers: content through the
// queue when present, inline otherwise, then cooldown persistence. With Redis
// and persisted cooldowns the replicas sharing them take turns per interval.
func ProvideCycleScheduler(cfg *config.Config, runner *usecase.CycleRunner, q *queue.Queue, publisher *usecase.AnalysisPublisher,
	persister *usecase.CooldownPersister, rc *cache.RedisCache, m domrepo.Metrics, log *applogger.Logger) *usecase.CycleScheduler {
	var handlers []usecase.ReportHandler
	if cfg.Content.Enabled {
		if q != nil {
			handlers = append(handlers, usecase.NewContentDispatcher(q, m, log).HandleReport)
		} else {
			handlers = append(handlers, publisher.PublishReport)
		}
	}
	if persister != nil {
		handlers = append(handlers, persister.HandleReport)
	}
	s := usecase.NewCycleScheduler(runner, cfg.Engine.CycleInterval, log, handlers...)
	// replicas only take turns when they also share cooldowns
	if rc != nil && persister != nil {
		s.SetLock(rc, persister)
	}
	return s
}

// ProvideKafkaConsumer returns nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, ingestor *usecase.SampleIngestor, m domrepo.Metrics,
	reg *prometheus.Registry, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	cc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cc.GroupID),
		pkgkafka.WithConsumerWorkers(cc.Workers),
		pkgkafka.WithConsumerRetry(cc.RetryMax, cc.BackoffMin, cc.BackoffMax),
		pkgkafka.WithConsumerDLQ(cc.DLQTopic),
		pkgkafka.WithConsumerFetch(cc.MinBytes, cc.MaxBytes),
		pkgkafka.WithConsumerBufferSize(cc.BufferSize),
		pkgkafka.WithConsumerRegisterer(reg),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewKafkaSamplesHandler(cfg.Kafka.Topics.Samples, ingestor, m))
	consumer.SetHook(usecase.NewSampleConsumerHook(m, log))
	return consumer, nil
}

// ProvideStreamClient returns nil unless a feed URL is configured.
func ProvideStreamClient(cfg *config.Config, ingestor *usecase.SampleIngestor, m domrepo.Metrics, log *applogger.Logger) *stream.Client {
	if !cfg.Stream.Enabled || cfg.Stream.URL == "" {
		return nil
	}
	assets := append(append([]string(nil), cfg.Engine.Assets...), cfg.Engine.ReferenceAssets...)
	return stream.New(stream.Config{
		URL:            cfg.Stream.URL,
		Assets:         assets,
		ReconnectDelay: cfg.Stream.ReconnectDelay,
		PingInterval:   cfg.Stream.PingInterval,
	}, ingestor, m, log.With(applogger.String("component", "stream")))
}

func ProvideIngestLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Server.IngestRate, cfg.Server.IngestBurst)
}

func ProvideHTTPHandler(cfg *config.Config, log *applogger.Logger, ingestor *usecase.SampleIngestor, runner *usecase.CycleRunner,
	scheduler *usecase.CycleScheduler, guard *content.Guard, limiter *ratelimit.Limiter,
	store domrepo.SampleStore, rc *cache.RedisCache) xhttp.Handler {
	opts := []api.Option{
		api.WithCycleTrigger(scheduler),
		api.WithIngestLimiter(limiter),
		api.WithReadiness(cfg.Detectors.Volume.MinSamples),
		api.WithHealthCheck("store", store.Health),
	}
	if cfg.Content.Enabled {
		opts = append(opts, api.WithGuard(guard))
	}
	if rc != nil {
		opts = append(opts, api.WithHealthCheck("redis", func(ctx context.Context) error {
			return rc.Client().Ping(ctx).Err()
		}))
	}
	return api.NewEngineHandler(log, ingestor, runner, opts...)
}

func ProvideHTTPServer(cfg *config.Config, handler xhttp.Handler, log *applogger.Logger, reg *prometheus.Registry) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, reg, reg))
	}
	return xhttp.NewServer(handler, log, opts...)
}

func ProvideApp(cfg *config.Config, deps server.Deps) *server.App {
	return server.New(cfg, deps)
}

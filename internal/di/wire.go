//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/config"
	"MarketPulse/pkg/metrics"
	"MarketPulse/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// The cleanup closes stores and clients in reverse construction order.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvidePrometheusRegistry,
		ProvideMetrics,
		wire.Bind(new(domrepo.Metrics), new(*metrics.Recorder)),

		// Infrastructure
		ProvideSampleStore,
		ProvideRedis,
		ProvideCache,
		ProvideContentHistory,
		ProvideCooldownStore,
		ProvideKafkaProducer,
		ProvideSignalPublisher,
		ProvideContentPublisher,

		// Engine
		ProvideSeriesRegistry,
		ProvidePersistPipeline,
		ProvideSampleIngestor,
		ProvideDetectors,
		ProvideSignalAggregator,
		ProvideCycleRunner,

		// Content
		ProvideGuard,
		ProvideContentGenerator,
		ProvideAnalysisPublisher,
		ProvideContentQueue,
		ProvideCooldownPersister,
		ProvideCycleScheduler,

		// Inputs and HTTP
		ProvideKafkaConsumer,
		ProvideStreamClient,
		ProvideIngestLimiter,
		ProvideHTTPHandler,
		ProvideHTTPServer,

		wire.Struct(new(server.Deps), "*"),
		ProvideApp,
	)
	return nil, nil, nil
}

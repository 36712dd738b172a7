//go:build wireinject
// +build wireinject

package di

import (
	"QuantPulse/pkg/config"
	"QuantPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideCacheService,
		ProvideBytesCache,
		ProvideKafkaProducer,

		// Stores and adapters
		ProvideCandleStore,
		ProvideScoreStore,
		ProvideNotifier,
		ProvideKillSwitch,
		ProvideMarketClient,
		ProvideMarketSource,
		ProvideMarketStream,

		// Price path
		ProvidePriceTable,
		ProvideQuoter,
		ProvideTickProcessor,
		ProvidePriceCollector,

		// Trading
		ProvideTradingBackend,
		ProvideSizer,
		ProvideGateway,
		ProvideEdgeScorer,
		ProvideNetflowSource,
		ProvideScorer,

		// Jobs and control surface
		ProvideIngestJob,
		ProvideScanJob,
		ProvidePanicUseCase,
		ProvideScheduler,
		ProvideControlHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

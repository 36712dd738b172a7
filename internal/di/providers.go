package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	domrepo "QuantPulse/internal/domain/repository"
	domsvc "QuantPulse/internal/domain/service"
	"QuantPulse/internal/execution"
	"QuantPulse/internal/handler/api"
	mid "QuantPulse/internal/middleware"
	internalrepo "QuantPulse/internal/repository"
	"QuantPulse/internal/risk"
	"QuantPulse/internal/scheduler"
	"QuantPulse/internal/service/binance"
	icache "QuantPulse/internal/service/cache"
	"QuantPulse/internal/service/killswitch"
	"QuantPulse/internal/service/pricefeed"
	"QuantPulse/internal/services/analytics"
	"QuantPulse/internal/usecase"
	pkgcache "QuantPulse/pkg/cache"
	pkgch "QuantPulse/pkg/clickhouse"
	"QuantPulse/pkg/config"
	xhttp "QuantPulse/pkg/http"
	pkgkafka "QuantPulse/pkg/kafka"
	applogger "QuantPulse/pkg/logger"
	"QuantPulse/pkg/metrics"
	"QuantPulse/pkg/server"
)

// ProvideLogger creates the process logger. Production logs JSON and
// ships aggregated error logs to the event stream.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	format := "console"
	if cfg.Environment == "production" {
		format = "json"
	}
	l, err := applogger.New(&applogger.Config{Level: "info", Format: format, Output: "stdout"})
	if err != nil {
		return nil, err
	}
	if cfg.Environment == "production" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          "app-logs",
			Publisher:      kafkaLogPublisher{producer},
		})
	}
	return l, nil
}

type kafkaLogPublisher struct {
	p *pkgkafka.Producer
}

func (k kafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return k.p.Publish(ctx, topic, nil, payload)
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideCandleStore creates the candle store and runs its schema.
func ProvideCandleStore(chClient *pkgch.Client, log *applogger.Logger) (domrepo.CandleStore, error) {
	store := internalrepo.NewCHCandleStore(chClient)
	store.SetLogger(log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("candle store schema: %w", err)
	}
	return store, nil
}

// ProvideScoreStore creates the score history store.
func ProvideScoreStore(chClient *pkgch.Client) (domrepo.ScoreStore, error) {
	store := internalrepo.NewCHScoreStore(chClient)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("score store schema: %w", err)
	}
	return store, nil
}

// ProvideRedisCache connects the shared redis cache.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr %q: %w", cfg.Redis.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port %q: %w", portStr, err)
	}

	opts := []pkgcache.RedisOption{
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	}
	if cfg.Redis.Prefix != "" {
		opts = append(opts, pkgcache.WithRedisPrefix(cfg.Redis.Prefix))
	}
	return pkgcache.NewRedisCache(opts...)
}

// ProvideCacheService exposes the redis cache as the generic service.
func ProvideCacheService(rc *pkgcache.RedisCache) pkgcache.Service {
	return rc
}

// ProvideBytesCache is the raw-bytes cache used by the control API.
func ProvideBytesCache(rc *pkgcache.RedisCache) icache.BytesCache {
	return icache.NewRedisCache(rc.Client())
}

// ProvideKillSwitch creates the redis-backed trading switch.
func ProvideKillSwitch(cacheSvc pkgcache.Service, log *applogger.Logger, m domrepo.Metrics) domrepo.Switch {
	return killswitch.NewRedisSwitch(cacheSvc, log, m)
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideNotifier publishes order outcomes to the trade-events topic.
func ProvideNotifier(producer *pkgkafka.Producer, cfg *config.Config) domrepo.Notifier {
	return internalrepo.NewKafkaNotifier(producer, cfg.Kafka.Topic)
}

// ProvideMarketClient creates the rate-limited Binance REST client.
func ProvideMarketClient(cfg *config.Config, log *applogger.Logger) *binance.Client {
	return binance.NewClient(cfg.Binance.RESTBaseURL, cfg.Binance.RatePerSecond, cfg.Binance.RateBurst, log)
}

// ProvideMarketSource exposes the Binance client as the candle source.
func ProvideMarketSource(client *binance.Client) domrepo.MarketSource {
	return client
}

// ProvidePriceTable creates the in-process last-price table.
func ProvidePriceTable() *pricefeed.Table {
	return pricefeed.NewTable()
}

// ProvideQuoter resolves prices: stream table, then redis, then REST.
func ProvideQuoter(table *pricefeed.Table, cacheSvc pkgcache.Service, client *binance.Client) *pricefeed.Quoter {
	return pricefeed.NewQuoter(table, cacheSvc, client)
}

// ProvideMarketStream creates the Binance WebSocket trade stream.
func ProvideMarketStream(cfg *config.Config, log *applogger.Logger) domrepo.MarketStream {
	return pricefeed.New(
		cfg.Binance.WebSocketURL,
		cfg.Binance.Symbols,
		cfg.Binance.ReconnectDelay,
		cfg.Binance.PingInterval,
		log,
	)
}

// ProvideTickProcessor fans ticks into the table and redis.
func ProvideTickProcessor(table *pricefeed.Table, cacheSvc pkgcache.Service, m domrepo.Metrics) *usecase.TickProcessor {
	return usecase.NewTickProcessor(table, cacheSvc, m)
}

// ProvidePriceCollector builds the stream-to-table path with the
// validating pipeline in between.
func ProvidePriceCollector(
	stream domrepo.MarketStream,
	proc *usecase.TickProcessor,
	m domrepo.Metrics,
	log *applogger.Logger,
) *usecase.PriceCollector {
	pipe := mid.NewRealtimePipeline(proc, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
	return usecase.NewPriceCollector(stream, pipe, m, log)
}

// TradingBackend bundles the order backend with the paper ledger when
// running in paper mode. Paper is nil in live mode.
type TradingBackend struct {
	Backend domrepo.ExchangeBackend
	Paper   *execution.PaperExchange
}

// ProvideTradingBackend selects the paper ledger or the live adapter.
func ProvideTradingBackend(
	cfg *config.Config,
	quoter *pricefeed.Quoter,
	client *binance.Client,
	log *applogger.Logger,
) (*TradingBackend, error) {
	if cfg.Trading.Mode == "live" {
		account := binance.NewAccountClient(
			cfg.Binance.RESTBaseURL, cfg.Binance.APIKey, cfg.Binance.APISecret, log)
		live := execution.NewLiveExchange(account, client, cfg.Binance.Symbols, log)
		return &TradingBackend{Backend: live}, nil
	}

	paper, err := execution.NewPaperExchange(
		cfg.Trading.Paper.InitialBalance, cfg.Trading.Paper.SnapshotPath, quoter, log)
	if err != nil {
		return nil, fmt.Errorf("paper exchange: %w", err)
	}
	return &TradingBackend{Backend: paper, Paper: paper}, nil
}

// ProvideSizer creates the fractional Kelly sizer.
func ProvideSizer(cfg *config.Config) *risk.Sizer {
	return risk.NewSizer(cfg.Trading.Kelly.Fraction, cfg.Trading.Kelly.MaxFraction)
}

// ProvideGateway creates the order gateway.
func ProvideGateway(
	backend *TradingBackend,
	killSw domrepo.Switch,
	sizer *risk.Sizer,
	notifier domrepo.Notifier,
	m domrepo.Metrics,
	log *applogger.Logger,
) *execution.Gateway {
	return execution.NewGateway(backend.Backend, killSw, sizer, notifier, m, log)
}

// ProvideEdgeScorer creates the ML edge service client, nil when no
// service is configured.
func ProvideEdgeScorer(cfg *config.Config) domsvc.EdgeScorer {
	if cfg.Analytics.EdgeServiceURL == "" {
		return nil
	}
	return analytics.NewHTTPEdgeScorer(cfg)
}

// ProvideNetflowSource creates the on-chain netflow client, nil when no
// service is configured.
func ProvideNetflowSource(cfg *config.Config) domsvc.NetflowSource {
	if cfg.Analytics.NetflowServiceURL == "" {
		return nil
	}
	return analytics.NewHTTPNetflowSource(cfg)
}

// ProvideScorer creates the composite scorer.
func ProvideScorer(cfg *config.Config, netflow domsvc.NetflowSource, log *applogger.Logger) *analytics.Scorer {
	return analytics.NewScorer(cfg.Scoring.Window, cfg.Ingestion.Timeframe, netflow, log)
}

// ProvideIngestJob creates the candle ingestion job.
func ProvideIngestJob(
	source domrepo.MarketSource,
	store domrepo.CandleStore,
	cfg *config.Config,
	m domrepo.Metrics,
	log *applogger.Logger,
) *usecase.IngestJob {
	return usecase.NewIngestJob(
		source,
		store,
		cfg.Binance.Symbols,
		domrepo.NormalizeTimeframe(cfg.Ingestion.Timeframe),
		cfg.Ingestion.LookbackBars,
		cfg.Ingestion.MaxRetries,
		m,
		log,
	)
}

// ProvideScanJob creates the scoring and decision job.
func ProvideScanJob(
	store domrepo.CandleStore,
	scoreStore domrepo.ScoreStore,
	scorer *analytics.Scorer,
	edge domsvc.EdgeScorer,
	gateway *execution.Gateway,
	backend *TradingBackend,
	cfg *config.Config,
	m domrepo.Metrics,
	log *applogger.Logger,
) *usecase.ScanJob {
	var positions usecase.PositionSource
	if backend.Paper != nil {
		positions = backend.Paper
	} else if ps, ok := backend.Backend.(usecase.PositionSource); ok {
		// live mode: exits run against the live fill book
		positions = ps
	}
	return usecase.NewScanJob(
		store,
		scoreStore,
		scorer,
		edge,
		gateway,
		positions,
		cfg.Binance.Symbols,
		domrepo.NormalizeTimeframe(cfg.Ingestion.Timeframe),
		usecase.ScanConfig{
			Window:        cfg.Scoring.Window,
			BuyThreshold:  cfg.Trading.BuyThreshold,
			SellThreshold: cfg.Trading.SellThreshold,
			StopLossPct:   cfg.Trading.StopLossPct,
			TakeProfitPct: cfg.Trading.TakeProfitPct,
			MLGateEnabled: cfg.Trading.MLGateEnabled,
			MLGateMin:     cfg.Trading.MLGateMinProba,
			Horizon:       cfg.Analytics.Horizon,
		},
		m,
		log,
	)
}

// ProvidePanicUseCase creates the emergency stop.
func ProvidePanicUseCase(killSw domrepo.Switch, gateway *execution.Gateway, log *applogger.Logger) *usecase.PanicUseCase {
	return usecase.NewPanicUseCase(killSw, gateway, log)
}

// ProvideScheduler creates the job scheduler, with the cross-process
// fire lock when configured.
func ProvideScheduler(
	cfg *config.Config,
	cacheSvc pkgcache.Service,
	m domrepo.Metrics,
	log *applogger.Logger,
) *scheduler.Scheduler {
	opts := []scheduler.Option{scheduler.WithMetrics(m)}
	if cfg.Scheduler.DistributedLock {
		opts = append(opts, scheduler.WithFireLock(cacheSvc, cfg.Scheduler.LockTTL))
	}
	return scheduler.New(log, opts...)
}

// ProvideControlHandler creates the operator API handler.
func ProvideControlHandler(
	log *applogger.Logger,
	killSw domrepo.Switch,
	panicUC *usecase.PanicUseCase,
	sched *scheduler.Scheduler,
	store domrepo.CandleStore,
	scorer *analytics.Scorer,
	backend *TradingBackend,
	bytesCache icache.BytesCache,
) xhttp.Handler {
	var portfolio api.PortfolioSource
	if backend.Paper != nil {
		portfolio = backend.Paper
	}
	return api.NewControlHandler(log, killSw, panicUC, sched, store, scorer, portfolio, bytesCache)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.PriceCollector,
	sched *scheduler.Scheduler,
	ingest *usecase.IngestJob,
	scan *usecase.ScanJob,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	notifier domrepo.Notifier,
) *server.App {
	return server.New(cfg, log, collector, sched, ingest, scan, handler, chClient, notifier)
}

package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	domrepo "QuantPulse/internal/domain/repository"
	"QuantPulse/internal/scheduler"
	"QuantPulse/internal/usecase"
	pkgch "QuantPulse/pkg/clickhouse"
	"QuantPulse/pkg/config"
	xhttp "QuantPulse/pkg/http"
	applogger "QuantPulse/pkg/logger"
)

// JobIngest and JobScan are the registered job names, addressable over
// the control API.
const (
	JobIngest = "ingest"
	JobScan   = "scan"
)

// App owns the process lifecycle: start the price feed, register and
// start the scheduled jobs, serve the control API, then tear everything
// down in reverse order on SIGINT/SIGTERM.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	collector  *usecase.PriceCollector
	sched      *scheduler.Scheduler
	ingest     *usecase.IngestJob
	scan       *usecase.ScanJob
	handler    xhttp.Handler
	chClient   *pkgch.Client
	notifier   domrepo.Notifier
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.PriceCollector,
	sched *scheduler.Scheduler,
	ingest *usecase.IngestJob,
	scan *usecase.ScanJob,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	notifier domrepo.Notifier,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		collector: collector,
		sched:     sched,
		ingest:    ingest,
		scan:      scan,
		handler:   handler,
		chClient:  chClient,
		notifier:  notifier,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ingest fires before scan inside the same minute, so every scan
	// sees the bar that just closed
	if err := a.sched.Register(JobIngest,
		scheduler.CronTrigger{Second: a.cfg.Scheduler.IngestSecond, Minute: -1},
		a.ingest.Run); err != nil {
		return err
	}
	if err := a.sched.Register(JobScan,
		scheduler.CronTrigger{Second: a.cfg.Scheduler.ScanSecond, Minute: -1},
		a.scan.Run); err != nil {
		return err
	}

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	if err := a.collector.Start(ctx); err != nil {
		// the scan path falls back to cached and REST quotes
		a.log.Error("price collector failed to start", applogger.Error(err))
	} else {
		a.log.Info("price collector started", applogger.Strings("symbols", a.cfg.Binance.Symbols))
	}

	if err := a.sched.Start(ctx); err != nil {
		return err
	}
	a.log.Info("scheduler started",
		applogger.Int("ingest_second", a.cfg.Scheduler.IngestSecond),
		applogger.Int("scan_second", a.cfg.Scheduler.ScanSecond))

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("control api listening", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops services in reverse start order: jobs first so no new
// orders are produced, then the API, then the feed and clients.
func (a *App) shutdown(ctx context.Context) error {
	a.sched.Shutdown(true)
	a.log.Info("scheduler stopped")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if err := a.collector.Shutdown(); err != nil {
		a.log.Warn("price collector stop error", applogger.Error(err))
	}

	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.log.Warn("notifier close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"QuantPulse/internal/domain/models"
	domrepo "QuantPulse/internal/domain/repository"
	applogger "QuantPulse/pkg/logger"
	"QuantPulse/pkg/util"
)

// IngestJob pulls new candles from the market source and upserts them
// into the candle store. The checkpoint is the newest stored open time;
// the store's replacing key makes re-ingestion idempotent, so the job
// always re-requests from the checkpoint without tracking anything else.
type IngestJob struct {
	source     domrepo.MarketSource
	store      domrepo.CandleStore
	symbols    []string
	exchange   string
	tf         domrepo.Timeframe
	lookback   int
	maxRetries int
	metrics    domrepo.Metrics
	log        *applogger.Logger
}

func NewIngestJob(
	source domrepo.MarketSource,
	store domrepo.CandleStore,
	symbols []string,
	tf domrepo.Timeframe,
	lookback, maxRetries int,
	metrics domrepo.Metrics,
	log *applogger.Logger,
) *IngestJob {
	return &IngestJob{
		source:     source,
		store:      store,
		symbols:    symbols,
		exchange:   "binance",
		tf:         tf,
		lookback:   lookback,
		maxRetries: maxRetries,
		metrics:    metrics,
		log:        log,
	}
}

// Run ingests every configured symbol. A failing symbol is logged and
// skipped; its checkpoint stays put so the next fire retries the same
// range.
func (j *IngestJob) Run(ctx context.Context) error {
	var errs []error
	for _, symbol := range j.symbols {
		if err := j.ingestSymbol(ctx, symbol); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
		}
	}
	return errors.Join(errs...)
}

func (j *IngestJob) ingestSymbol(ctx context.Context, symbol string) error {
	checkpoint, err := j.store.LatestOpenTime(ctx, j.exchange, symbol, j.tf)
	if err != nil {
		j.metrics.RecordError("ingest_checkpoint")
		return fmt.Errorf("checkpoint: %w", err)
	}

	step := domrepo.TimeframeDuration(j.tf)
	since := checkpoint
	if since.IsZero() {
		// first run: bounded lookback instead of full history
		since = time.Now().UTC().Add(-time.Duration(j.lookback) * step)
		since, _ = util.AlignFromTo(since, since, string(j.tf))
	}

	var candles []models.Candle
	fetch := func() error {
		var ferr error
		candles, ferr = j.source.FetchSince(ctx, symbol, j.tf, since, j.lookback)
		return ferr
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(j.maxRetries)), ctx)
	if err := backoff.Retry(fetch, policy); err != nil {
		// transient failure: drop this fire, checkpoint untouched
		j.metrics.RecordError("ingest_fetch")
		j.log.Error("ingest fetch failed, will retry next fire",
			applogger.String("symbol", symbol), applogger.Error(err))
		return fmt.Errorf("fetch since %s: %w", since.Format(time.RFC3339), err)
	}
	if len(candles) == 0 {
		j.log.Info("ingest up to date", applogger.String("symbol", symbol))
		return nil
	}

	if !checkpoint.IsZero() {
		if gap := candles[0].OpenTime.Sub(checkpoint); gap > step {
			j.log.Warn("gap in candle series",
				applogger.String("symbol", symbol),
				applogger.Int("missing_buckets", int(gap/step)-1),
				applogger.String("from", checkpoint.Format(time.RFC3339)),
				applogger.String("to", candles[0].OpenTime.Format(time.RFC3339)))
			j.metrics.RecordError("ingest_gap")
		}
	}

	if err := j.store.Upsert(ctx, candles); err != nil {
		j.metrics.RecordError("ingest_store")
		return fmt.Errorf("upsert: %w", err)
	}
	j.metrics.RecordCandlesStored(symbol, len(candles))
	j.log.Info("ingested candles",
		applogger.String("symbol", symbol),
		applogger.Int("count", len(candles)),
		applogger.String("latest", candles[len(candles)-1].OpenTime.Format(time.RFC3339)))
	return nil
}

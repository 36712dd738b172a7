package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantPulse/internal/domain/models"
	domrepo "QuantPulse/internal/domain/repository"
	applogger "QuantPulse/pkg/logger"
)

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)
	return l
}

type fakeMetrics struct {
	mu      sync.Mutex
	errors  map[string]int
	candles map[string]int
	orders  []string
	scores  map[string]float64
	prices  map[string]float64
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		errors:  make(map[string]int),
		candles: make(map[string]int),
		scores:  make(map[string]float64),
		prices:  make(map[string]float64),
	}
}

func (m *fakeMetrics) RecordJobRun(job, outcome string) {}
func (m *fakeMetrics) RecordCandlesStored(symbol string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles[symbol] += n
}
func (m *fakeMetrics) RecordOrder(status, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, status+"/"+reason)
}
func (m *fakeMetrics) RecordLastPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
}
func (m *fakeMetrics) RecordScore(symbol string, score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[symbol] = score
}
func (m *fakeMetrics) RecordTradingEnabled(enabled bool)        {}
func (m *fakeMetrics) RecordLatency(op string, seconds float64) {}
func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *fakeMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

type candleKey struct {
	exchange, symbol string
	tf               domrepo.Timeframe
	openTime         time.Time
}

// memCandleStore mimics the replacing-key semantics of the real store.
type memCandleStore struct {
	mu      sync.Mutex
	rows    map[candleKey]models.Candle
	upserts int
}

func newMemCandleStore() *memCandleStore {
	return &memCandleStore{rows: make(map[candleKey]models.Candle)}
}

func (s *memCandleStore) Init(ctx context.Context) error { return nil }

func (s *memCandleStore) Upsert(ctx context.Context, candles []models.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	for _, c := range candles {
		k := candleKey{c.Exchange, c.Symbol, domrepo.Timeframe(c.Timeframe), c.OpenTime}
		s.rows[k] = c
	}
	return nil
}

func (s *memCandleStore) LatestOpenTime(ctx context.Context, exchange, symbol string, tf domrepo.Timeframe) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest time.Time
	for k := range s.rows {
		if k.exchange == exchange && k.symbol == symbol && k.tf == tf && k.openTime.After(latest) {
			latest = k.openTime
		}
	}
	return latest, nil
}

func (s *memCandleStore) GetLatestN(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Candle, 0, len(s.rows))
	for k, c := range s.rows {
		if k.symbol == symbol && k.tf == tf {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memCandleStore) Health(ctx context.Context) error { return nil }
func (s *memCandleStore) Close() error                     { return nil }

func (s *memCandleStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type fakeSource struct {
	mu     sync.Mutex
	series []models.Candle
	err    error
	sinces []time.Time
}

func (f *fakeSource) FetchSince(ctx context.Context, symbol string, tf domrepo.Timeframe, since time.Time, limit int) ([]models.Candle, error) {
	f.mu.Lock()
	f.sinces = append(f.sinces, since)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Candle, 0, len(f.series))
	for _, c := range f.series {
		if c.Symbol == symbol && c.OpenTime.After(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func mkCandles(symbol string, start time.Time, step time.Duration, n int) []models.Candle {
	out := make([]models.Candle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Candle{
			Exchange:  "binance",
			Symbol:    symbol,
			Timeframe: "1m",
			OpenTime:  start.Add(time.Duration(i) * step),
			Open:      100, High: 101, Low: 99, Close: 100.5, Volume: 10,
		})
	}
	return out
}

func TestIngestReingestionIsIdempotent(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{series: mkCandles("BTCUSDT", start, time.Minute, 5)}
	store := newMemCandleStore()
	metrics := newFakeMetrics()

	job := NewIngestJob(src, store, []string{"BTCUSDT"}, domrepo.TF1m, 500, 2, metrics, testLogger(t))

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 5, store.count())

	// same series again: the replacing key absorbs the overlap
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 5, store.count())
	assert.Equal(t, 5, metrics.candles["BTCUSDT"])
}

func TestIngestResumesFromCheckpoint(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{series: mkCandles("BTCUSDT", start, time.Minute, 3)}
	store := newMemCandleStore()
	metrics := newFakeMetrics()

	job := NewIngestJob(src, store, []string{"BTCUSDT"}, domrepo.TF1m, 500, 2, metrics, testLogger(t))
	require.NoError(t, job.Run(context.Background()))

	src.mu.Lock()
	src.series = mkCandles("BTCUSDT", start, time.Minute, 6)
	src.sinces = nil
	src.mu.Unlock()

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 6, store.count())

	src.mu.Lock()
	defer src.mu.Unlock()
	require.Len(t, src.sinces, 1)
	assert.Equal(t, start.Add(2*time.Minute), src.sinces[0], "second fire requests from the checkpoint")
}

func TestIngestFetchFailureLeavesCheckpoint(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{series: mkCandles("BTCUSDT", start, time.Minute, 3)}
	store := newMemCandleStore()
	metrics := newFakeMetrics()

	job := NewIngestJob(src, store, []string{"BTCUSDT"}, domrepo.TF1m, 500, 1, metrics, testLogger(t))
	require.NoError(t, job.Run(context.Background()))

	src.mu.Lock()
	src.err = errors.New("rate limited")
	src.mu.Unlock()

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, store.count())
	assert.GreaterOrEqual(t, metrics.errorCount("ingest_fetch"), 1)

	cp, cerr := store.LatestOpenTime(context.Background(), "binance", "BTCUSDT", domrepo.TF1m)
	require.NoError(t, cerr)
	assert.Equal(t, start.Add(2*time.Minute), cp)
}

func TestIngestDetectsGap(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{series: mkCandles("BTCUSDT", start, time.Minute, 2)}
	store := newMemCandleStore()
	metrics := newFakeMetrics()

	job := NewIngestJob(src, store, []string{"BTCUSDT"}, domrepo.TF1m, 500, 1, metrics, testLogger(t))
	require.NoError(t, job.Run(context.Background()))

	// next batch starts three buckets past the checkpoint
	src.mu.Lock()
	src.series = mkCandles("BTCUSDT", start.Add(4*time.Minute), time.Minute, 2)
	src.mu.Unlock()

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, metrics.errorCount("ingest_gap"))
	assert.Equal(t, 4, store.count())
}

func TestIngestFailingSymbolDoesNotBlockOthers(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &onlySymbolSource{ok: "ETHUSDT", series: mkCandles("ETHUSDT", start, time.Minute, 2)}
	store := newMemCandleStore()
	metrics := newFakeMetrics()

	job := NewIngestJob(src, store, []string{"BTCUSDT", "ETHUSDT"}, domrepo.TF1m, 500, 0, metrics, testLogger(t))
	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BTCUSDT")
	assert.Equal(t, 2, store.count())
}

type onlySymbolSource struct {
	ok     string
	series []models.Candle
}

func (f *onlySymbolSource) FetchSince(ctx context.Context, symbol string, tf domrepo.Timeframe, since time.Time, limit int) ([]models.Candle, error) {
	if symbol != f.ok {
		return nil, errors.New("upstream down")
	}
	return f.series, nil
}

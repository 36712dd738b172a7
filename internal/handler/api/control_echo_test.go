package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantPulse/internal/domain/models"
	domrepo "QuantPulse/internal/domain/repository"
	"QuantPulse/internal/execution"
	"QuantPulse/internal/risk"
	"QuantPulse/internal/scheduler"
	icache "QuantPulse/internal/service/cache"
	"QuantPulse/internal/service/killswitch"
	"QuantPulse/internal/services/analytics"
	"QuantPulse/internal/usecase"
	applogger "QuantPulse/pkg/logger"
)

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)
	return l
}

type fixedQuoter float64

func (q fixedQuoter) Quote(ctx context.Context, symbol string) (float64, error) {
	return float64(q), nil
}

// countingStore serves a canned candle series and counts reads so score
// cache hits are observable.
type countingStore struct {
	mu      sync.Mutex
	candles []models.Candle
	reads   int
}

func (s *countingStore) Init(ctx context.Context) error { return nil }
func (s *countingStore) Upsert(ctx context.Context, candles []models.Candle) error {
	return nil
}
func (s *countingStore) LatestOpenTime(ctx context.Context, exchange, symbol string, tf domrepo.Timeframe) (time.Time, error) {
	return time.Time{}, nil
}
func (s *countingStore) GetLatestN(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	return s.candles, nil
}
func (s *countingStore) Health(ctx context.Context) error { return nil }
func (s *countingStore) Close() error                     { return nil }

func (s *countingStore) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func trendCandles(n int) []models.Candle {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, 0, n)
	price := 100.0
	for i := 0; i < n; i++ {
		out = append(out, models.Candle{
			Exchange:  "binance",
			Symbol:    "BTCUSDT",
			Timeframe: "1m",
			OpenTime:  start.Add(time.Duration(i) * time.Minute),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price + 0.5,
			Volume:    10,
		})
		price += 0.5
	}
	return out
}

type handlerFixture struct {
	h     *ControlHandler
	sw    *killswitch.MemorySwitch
	paper *execution.PaperExchange
	store *countingStore
	fired chan string
}

func newFixture(t *testing.T) *handlerFixture {
	t.Helper()
	log := testLogger(t)

	sw := killswitch.NewMemorySwitch(true)
	paper, err := execution.NewPaperExchange(10000, filepath.Join(t.TempDir(), "paper.json"), fixedQuoter(50000), log)
	require.NoError(t, err)
	gw := execution.NewGateway(paper, sw, risk.NewSizer(0.25, 0.3), nil, nil, log)
	panicUC := usecase.NewPanicUseCase(sw, gw, log)

	fired := make(chan string, 4)
	sched := scheduler.New(log)
	require.NoError(t, sched.Register("ingest", scheduler.CronTrigger{Second: 5, Minute: -1}, func(ctx context.Context) error {
		fired <- "ingest"
		return nil
	}))

	store := &countingStore{candles: trendCandles(150)}
	scorer := analytics.NewScorer(120, "1m", nil, log)

	h := NewControlHandler(log, sw, panicUC, sched, store, scorer, paper, icache.NewTTLCache())
	return &handlerFixture{h: h, sw: sw, paper: paper, store: store, fired: fired}
}

func doRequest(t *testing.T, h func(echo.Context) error, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestStopAndStartFlipTheSwitch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doRequest(t, f.h.Stop, http.MethodPost, "/control/stop")
	assert.False(t, f.sw.Check(ctx))

	doRequest(t, f.h.Start, http.MethodPost, "/control/start")
	assert.True(t, f.sw.Check(ctx))
}

func TestStatusReportsFlagJobsAndPortfolio(t *testing.T) {
	f := newFixture(t)

	rec := doRequest(t, f.h.Status, http.MethodGet, "/control/status")
	body := decodeBody(t, rec)
	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok)

	assert.Equal(t, true, data["trading_enabled"])
	jobs, ok := data["jobs"].([]interface{})
	require.True(t, ok)
	assert.Len(t, jobs, 1)
	assert.Contains(t, data, "portfolio")
}

func TestRunJobFiresRegisteredJob(t *testing.T) {
	f := newFixture(t)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/control/jobs/ingest/run", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("name")
	c.SetParamValues("ingest")
	require.NoError(t, f.h.RunJob(c))

	select {
	case name := <-f.fired:
		assert.Equal(t, "ingest", name)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not fire")
	}
}

func TestRunJobUnknownNameIsNotFound(t *testing.T) {
	f := newFixture(t)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/control/jobs/nope/run", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("name")
	c.SetParamValues("nope")
	require.NoError(t, f.h.RunJob(c))

	body := decodeBody(t, rec)
	assert.Equal(t, float64(http.StatusNotFound), body["status"])
}

func TestScoreIsServedFromCacheWithinTTL(t *testing.T) {
	f := newFixture(t)

	first := doRequest(t, f.h.Score, http.MethodGet, "/api/score?symbol=BTCUSDT")
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, 1, f.store.readCount())

	second := doRequest(t, f.h.Score, http.MethodGet, "/api/score?symbol=BTCUSDT")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, 1, f.store.readCount(), "second read within TTL must hit the cache")
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestScoreRequiresSymbol(t *testing.T) {
	f := newFixture(t)

	rec := doRequest(t, f.h.Score, http.MethodGet, "/api/score")
	body := decodeBody(t, rec)
	assert.Equal(t, float64(http.StatusBadRequest), body["status"])
}

func TestPanicStopsTradingAndFlattens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.paper.CreateOrder(ctx, "BTCUSDT", models.SideBuy, 0.1, 50000)
	require.NoError(t, err)

	doRequest(t, f.h.Panic, http.MethodPost, "/control/panic")

	assert.False(t, f.sw.Check(ctx))
	p, err := f.paper.Portfolio(ctx)
	require.NoError(t, err)
	assert.Empty(t, p.Positions)
}

func TestPortfolioUnavailableInLiveMode(t *testing.T) {
	f := newFixture(t)
	f.h.portfolio = nil

	rec := doRequest(t, f.h.Portfolio, http.MethodGet, "/api/portfolio")
	body := decodeBody(t, rec)
	assert.Equal(t, float64(http.StatusNotFound), body["status"])
}

package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantPulse/internal/domain/models"
	"QuantPulse/internal/execution"
	"QuantPulse/internal/risk"
	"QuantPulse/internal/service/killswitch"
)

// both trading backends must give the scan loop position visibility
var (
	_ PositionSource = (*execution.PaperExchange)(nil)
	_ PositionSource = (*execution.LiveExchange)(nil)
)

type staticPositions map[string]models.Position

func (s staticPositions) Position(symbol string) (models.Position, bool) {
	p, ok := s[symbol]
	return p, ok
}

type stubEdge struct {
	probaUp float64
	err     error
	calls   int
}

func (s *stubEdge) Predict(ctx context.Context, symbol string, features map[string]float64, horizon string) (models.EdgeScore, error) {
	s.calls++
	if s.err != nil {
		return models.EdgeScore{}, s.err
	}
	return models.EdgeScore{Symbol: symbol, ProbaUp: s.probaUp, Horizon: horizon}, nil
}

func scanJobForDecide(t *testing.T, positions PositionSource, cfg ScanConfig) *ScanJob {
	t.Helper()
	return &ScanJob{
		positions: positions,
		cfg:       cfg,
		metrics:   newFakeMetrics(),
		log:       testLogger(t),
	}
}

func defaultScanConfig() ScanConfig {
	return ScanConfig{
		Window:        120,
		BuyThreshold:  70,
		SellThreshold: 30,
		StopLossPct:   0.05,
		TakeProfitPct: 0.10,
	}
}

func scoreOf(v float64) models.CompositeScore {
	return models.CompositeScore{
		Symbol:    "BTCUSDT",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Value:     v,
	}
}

func TestDecideThresholds(t *testing.T) {
	j := scanJobForDecide(t, nil, defaultScanConfig())

	cases := []struct {
		name  string
		score float64
		want  models.SignalAction
	}{
		{"strong score buys", 75, models.ActionBuy},
		{"weak score sells", 25, models.ActionSell},
		{"middling score holds", 50, models.ActionHold},
		{"buy threshold is exclusive", 70, models.ActionHold},
		{"sell threshold is exclusive", 30, models.ActionHold},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig := j.decide("BTCUSDT", 50000, scoreOf(tc.score))
			assert.Equal(t, tc.want, sig.Action)
			assert.Equal(t, "score", sig.Reason)
		})
	}
}

func TestDecideStopLossOverridesScore(t *testing.T) {
	positions := staticPositions{
		"BTCUSDT": {Symbol: "BTCUSDT", Quantity: 0.1, AvgEntryPrice: 50000},
	}
	j := scanJobForDecide(t, positions, defaultScanConfig())

	// price down 5% from entry while the score still says buy
	sig := j.decide("BTCUSDT", 47500, scoreOf(80))
	assert.Equal(t, models.ActionSell, sig.Action)
	assert.Equal(t, "stop_loss", sig.Reason)
}

func TestDecideTakeProfitOverridesScore(t *testing.T) {
	positions := staticPositions{
		"BTCUSDT": {Symbol: "BTCUSDT", Quantity: 0.1, AvgEntryPrice: 50000},
	}
	j := scanJobForDecide(t, positions, defaultScanConfig())

	sig := j.decide("BTCUSDT", 55000, scoreOf(80))
	assert.Equal(t, models.ActionSell, sig.Action)
	assert.Equal(t, "take_profit", sig.Reason)
}

func TestDecideExitRulesIgnoreFlatSymbols(t *testing.T) {
	positions := staticPositions{}
	j := scanJobForDecide(t, positions, defaultScanConfig())

	sig := j.decide("BTCUSDT", 47500, scoreOf(80))
	assert.Equal(t, models.ActionBuy, sig.Action)
}

func TestGateBuyDisabledUsesScoreProxy(t *testing.T) {
	cfg := defaultScanConfig()
	cfg.MLGateEnabled = false
	j := scanJobForDecide(t, nil, cfg)

	p, ok := j.gateBuy(context.Background(), "BTCUSDT", scoreOf(70), mkCandles("BTCUSDT", time.Now().UTC(), time.Minute, 1))
	require.True(t, ok)
	assert.InDelta(t, 0.6, p, 1e-9)
}

func TestGateBuyOpensAboveMinimum(t *testing.T) {
	cfg := defaultScanConfig()
	cfg.MLGateEnabled = true
	cfg.MLGateMin = 0.6
	cfg.Horizon = "1h"
	edge := &stubEdge{probaUp: 0.72}
	j := scanJobForDecide(t, nil, cfg)
	j.edge = edge

	p, ok := j.gateBuy(context.Background(), "BTCUSDT", scoreOf(80), mkCandles("BTCUSDT", time.Now().UTC(), time.Minute, 1))
	require.True(t, ok)
	assert.Equal(t, 0.72, p)
	assert.Equal(t, 1, edge.calls)
}

func TestGateBuyClosedBelowMinimum(t *testing.T) {
	cfg := defaultScanConfig()
	cfg.MLGateEnabled = true
	cfg.MLGateMin = 0.6
	j := scanJobForDecide(t, nil, cfg)
	j.edge = &stubEdge{probaUp: 0.55}

	_, ok := j.gateBuy(context.Background(), "BTCUSDT", scoreOf(80), mkCandles("BTCUSDT", time.Now().UTC(), time.Minute, 1))
	assert.False(t, ok)
}

func TestGateBuyUnreachableSuppressesBuy(t *testing.T) {
	cfg := defaultScanConfig()
	cfg.MLGateEnabled = true
	cfg.MLGateMin = 0.6
	metrics := newFakeMetrics()
	j := scanJobForDecide(t, nil, cfg)
	j.metrics = metrics
	j.edge = &stubEdge{err: errors.New("edge service down")}

	_, ok := j.gateBuy(context.Background(), "BTCUSDT", scoreOf(80), mkCandles("BTCUSDT", time.Now().UTC(), time.Minute, 1))
	assert.False(t, ok)
	assert.Equal(t, 1, metrics.errorCount("scan_edge"))
}

func scanJobWithPaperGateway(t *testing.T, positions PositionSource) (*ScanJob, *execution.PaperExchange) {
	t.Helper()
	log := testLogger(t)
	paper, err := execution.NewPaperExchange(10000, filepath.Join(t.TempDir(), "paper.json"), fixedQuoter(50000), log)
	require.NoError(t, err)
	gw := execution.NewGateway(paper, killswitch.NewMemorySwitch(true), risk.NewSizer(0.25, 0.3), nil, nil, log)
	j := &ScanJob{
		gateway:   gw,
		positions: positions,
		cfg:       defaultScanConfig(),
		metrics:   newFakeMetrics(),
		log:       log,
	}
	return j, paper
}

func sellSignal(price float64) models.Signal {
	return models.Signal{
		Symbol:    "BTCUSDT",
		Action:    models.ActionSell,
		Score:     scoreOf(25),
		Price:     price,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Reason:    "score",
	}
}

func TestSellSignalClosesVisibleInventory(t *testing.T) {
	j, paper := scanJobWithPaperGateway(t, nil)
	j.positions = paper
	ctx := context.Background()

	_, err := paper.CreateOrder(ctx, "BTCUSDT", models.SideBuy, 0.1, 50000)
	require.NoError(t, err)

	require.NoError(t, j.execute(ctx, sellSignal(50000), scoreOf(25), nil))

	orders := paper.Orders(10)
	require.Len(t, orders, 2)
	sell := orders[len(orders)-1]
	assert.Equal(t, models.SideSell, sell.Side)
	assert.Equal(t, models.OrderFilled, sell.Status)
	assert.InDelta(t, 0.1, sell.Quantity, 1e-9)

	_, held := paper.Position("BTCUSDT")
	assert.False(t, held)
}

func TestSellSignalWithoutPositionVisibilityIsCounted(t *testing.T) {
	j, paper := scanJobWithPaperGateway(t, nil)
	ctx := context.Background()

	_, err := paper.CreateOrder(ctx, "BTCUSDT", models.SideBuy, 0.1, 50000)
	require.NoError(t, err)

	metrics := newFakeMetrics()
	j.metrics = metrics
	require.NoError(t, j.execute(ctx, sellSignal(47000), scoreOf(25), nil))

	// the buy is still the only order: the sell never reached the gateway
	assert.Len(t, paper.Orders(10), 1)
	assert.Equal(t, 1, metrics.errorCount("scan_drop_sell"))
}

func TestSellQuantityIgnoresFlatInventory(t *testing.T) {
	j := scanJobForDecide(t, staticPositions{}, defaultScanConfig())

	_, ok := j.sellQuantity("BTCUSDT")
	assert.False(t, ok)
	assert.Equal(t, 0, j.metrics.(*fakeMetrics).errorCount("scan_drop_sell"))
}

func TestPayoffRatio(t *testing.T) {
	j := scanJobForDecide(t, nil, defaultScanConfig())
	assert.InDelta(t, 2.0, j.payoffRatio(), 1e-9)

	j.cfg.StopLossPct = 0
	assert.Equal(t, 1.0, j.payoffRatio())
}

package usecase

import (
	"context"
	"errors"
	"fmt"

	"QuantPulse/internal/domain/models"
	domrepo "QuantPulse/internal/domain/repository"
	domsvc "QuantPulse/internal/domain/service"
	"QuantPulse/internal/execution"
	"QuantPulse/internal/services/analytics"
	applogger "QuantPulse/pkg/logger"
)

// PositionSource exposes held positions for exit checks and sell
// sizing. Both the paper ledger and the live exchange satisfy it.
type PositionSource interface {
	Position(symbol string) (models.Position, bool)
}

// ScanConfig carries the decision thresholds.
type ScanConfig struct {
	Window        int
	BuyThreshold  float64
	SellThreshold float64
	StopLossPct   float64
	TakeProfitPct float64
	MLGateEnabled bool
	MLGateMin     float64
	Horizon       string
}

// ScanJob scores every symbol and routes buy/sell decisions to the
// gateway. Hold decisions never leave this job.
type ScanJob struct {
	store      domrepo.CandleStore
	scoreStore domrepo.ScoreStore
	scorer     *analytics.Scorer
	edge       domsvc.EdgeScorer
	gateway    *execution.Gateway
	positions  PositionSource
	symbols    []string
	tf         domrepo.Timeframe
	cfg        ScanConfig
	metrics    domrepo.Metrics
	log        *applogger.Logger
}

func NewScanJob(
	store domrepo.CandleStore,
	scoreStore domrepo.ScoreStore,
	scorer *analytics.Scorer,
	edge domsvc.EdgeScorer,
	gateway *execution.Gateway,
	positions PositionSource,
	symbols []string,
	tf domrepo.Timeframe,
	cfg ScanConfig,
	metrics domrepo.Metrics,
	log *applogger.Logger,
) *ScanJob {
	return &ScanJob{
		store:      store,
		scoreStore: scoreStore,
		scorer:     scorer,
		edge:       edge,
		gateway:    gateway,
		positions:  positions,
		symbols:    symbols,
		tf:         tf,
		cfg:        cfg,
		metrics:    metrics,
		log:        log,
	}
}

func (j *ScanJob) Run(ctx context.Context) error {
	var errs []error
	for _, symbol := range j.symbols {
		if err := j.scanSymbol(ctx, symbol); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
		}
	}
	return errors.Join(errs...)
}

func (j *ScanJob) scanSymbol(ctx context.Context, symbol string) error {
	candles, err := j.store.GetLatestN(ctx, symbol, j.cfg.Window, j.tf)
	if err != nil {
		j.metrics.RecordError("scan_load")
		return fmt.Errorf("load candles: %w", err)
	}
	if len(candles) == 0 {
		j.log.Warn("no candles yet, skipping scan", applogger.String("symbol", symbol))
		return nil
	}
	price := candles[len(candles)-1].Close

	score := j.scorer.Score(ctx, symbol, candles)
	j.metrics.RecordScore(symbol, score.Value)
	j.metrics.RecordLastPrice(symbol, price)
	if j.scoreStore != nil {
		if err := j.scoreStore.Insert(ctx, score); err != nil {
			// score history is an audit concern, never blocks trading
			j.log.Warn("score persist failed",
				applogger.String("symbol", symbol), applogger.Error(err))
		}
	}
	j.log.Info("scored symbol",
		applogger.String("symbol", symbol),
		applogger.Any("score", score.Value),
		applogger.Bool("degraded", score.Degraded))

	sig := j.decide(symbol, price, score)
	if sig.Action == models.ActionHold {
		return nil
	}
	return j.execute(ctx, sig, score, candles)
}

// execute routes a non-hold signal to the gateway. Sells need visible
// inventory to size against; buys pass the ML gate first.
func (j *ScanJob) execute(ctx context.Context, sig models.Signal, score models.CompositeScore, candles []models.Candle) error {
	d := execution.Decision{
		Signal: sig,
		Payoff: j.payoffRatio(),
	}
	if sig.Action == models.ActionSell {
		qty, ok := j.sellQuantity(sig.Symbol)
		if !ok {
			return nil
		}
		d.SellQuantity = qty
	} else {
		winProb, ok := j.gateBuy(ctx, sig.Symbol, score, candles)
		if !ok {
			return nil
		}
		d.WinProb = winProb
	}

	order, err := j.gateway.Submit(ctx, d)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	j.log.Info("decision executed",
		applogger.String("symbol", sig.Symbol),
		applogger.String("action", string(sig.Action)),
		applogger.String("signal_reason", sig.Reason),
		applogger.String("order_status", string(order.Status)),
		applogger.String("order_reason", order.Reason))
	return nil
}

// sellQuantity resolves the inventory a sell closes. A missing position
// source means sells cannot be sized and must not reach the gateway;
// that is a wiring defect worth counting, not a quiet hold.
func (j *ScanJob) sellQuantity(symbol string) (float64, bool) {
	if j.positions == nil {
		j.metrics.RecordError("scan_drop_sell")
		j.log.Warn("sell signal dropped, no position visibility",
			applogger.String("symbol", symbol))
		return 0, false
	}
	pos, ok := j.positions.Position(symbol)
	if !ok || pos.Quantity <= 0 {
		// nothing to close; a sell with no inventory is a hold
		return 0, false
	}
	return pos.Quantity, true
}

// decide turns a score plus exit rules into a signal. Exit rules on a
// held position win over the score.
func (j *ScanJob) decide(symbol string, price float64, score models.CompositeScore) models.Signal {
	sig := models.Signal{
		Symbol:    symbol,
		Action:    models.ActionHold,
		Score:     score,
		Price:     price,
		Timestamp: score.Timestamp,
		Reason:    "score",
	}

	if j.positions != nil {
		if pos, ok := j.positions.Position(symbol); ok && pos.Quantity > 0 {
			switch {
			case price <= pos.AvgEntryPrice*(1-j.cfg.StopLossPct):
				sig.Action = models.ActionSell
				sig.Reason = "stop_loss"
				return sig
			case price >= pos.AvgEntryPrice*(1+j.cfg.TakeProfitPct):
				sig.Action = models.ActionSell
				sig.Reason = "take_profit"
				return sig
			}
		}
	}

	switch {
	case score.Value > j.cfg.BuyThreshold:
		sig.Action = models.ActionBuy
	case score.Value < j.cfg.SellThreshold:
		sig.Action = models.ActionSell
	}
	return sig
}

// gateBuy consults the ML edge scorer. Only buys are gated; a closed or
// unreachable gate suppresses the buy for this scan.
func (j *ScanJob) gateBuy(ctx context.Context, symbol string, score models.CompositeScore, candles []models.Candle) (float64, bool) {
	if !j.cfg.MLGateEnabled || j.edge == nil {
		// probability proxy from the score: 70 maps to 0.6, 100 to 0.75
		return 0.5 + (score.Value-50)/200, true
	}

	feats := map[string]float64{
		"score":      score.Value,
		"last_close": candles[len(candles)-1].Close,
	}
	for k, v := range score.Components {
		feats["factor_"+k] = v
	}
	es, err := j.edge.Predict(ctx, symbol, feats, j.cfg.Horizon)
	if err != nil {
		j.metrics.RecordError("scan_edge")
		j.log.Warn("edge scorer unavailable, suppressing buy",
			applogger.String("symbol", symbol), applogger.Error(err))
		return 0, false
	}
	if es.ProbaUp < j.cfg.MLGateMin {
		j.log.Info("ml gate closed",
			applogger.String("symbol", symbol),
			applogger.Any("proba_up", es.ProbaUp))
		return 0, false
	}
	return es.ProbaUp, true
}

// payoffRatio is the reward-to-risk of the bracket exits.
func (j *ScanJob) payoffRatio() float64 {
	if j.cfg.StopLossPct <= 0 {
		return 1
	}
	return j.cfg.TakeProfitPct / j.cfg.StopLossPct
}

package analytics

import (
	"context"
	"math"
	"time"

	"QuantPulse/internal/domain/models"
	domsvc "QuantPulse/internal/domain/service"
	"QuantPulse/internal/services/features"
	applogger "QuantPulse/pkg/logger"
)

// Factor weights of the technical composite.
const (
	WeightRSI        = 0.3
	WeightTrend      = 0.3
	WeightVolatility = 0.2
	WeightVolume     = 0.2
)

// Indicator parameters.
const (
	rsiPeriod        = 14
	macdFast         = 12
	macdSlow         = 26
	macdSignal       = 9
	volatilityWindow = 30
	volumeWindow     = 5
)

// On-chain netflow adjustment: heavy inflow to exchanges (high z) is
// sell pressure, heavy outflow (low z) mildly bullish.
const (
	netflowHighZ       = 2.0
	netflowLowZ        = -2.0
	netflowHighPenalty = -20.0
	netflowLowBonus    = 10.0
)

// Scorer computes the weighted multi-factor composite score on a 0-100
// scale. A factor without enough history contributes zero and flags the
// result Degraded instead of failing the scan.
type Scorer struct {
	window  int
	tf      string
	netflow domsvc.NetflowSource
	log     *applogger.Logger
}

// NewScorer creates a composite scorer. netflow may be nil, which
// disables the on-chain adjustment.
func NewScorer(window int, tf string, netflow domsvc.NetflowSource, log *applogger.Logger) *Scorer {
	return &Scorer{window: window, tf: tf, netflow: netflow, log: log}
}

// Score computes the composite for one symbol from its candle window,
// oldest candle first.
func (s *Scorer) Score(ctx context.Context, symbol string, candles []models.Candle) models.CompositeScore {
	out := models.CompositeScore{
		Symbol:     symbol,
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]float64),
	}

	closes := features.Closes(candles)
	vols := features.Volumes(candles)

	rsiScore, ok := s.rsiScore(closes)
	if !ok {
		out.Degraded = true
	}
	trendScore, ok := s.trendScore(closes)
	if !ok {
		out.Degraded = true
	}
	volScore, ok := s.volatilityScore(candles)
	if !ok {
		out.Degraded = true
	}
	volumeScore, ok := s.volumeScore(vols)
	if !ok {
		out.Degraded = true
	}

	out.Components["rsi"] = rsiScore
	out.Components["trend"] = trendScore
	out.Components["volatility"] = volScore
	out.Components["volume"] = volumeScore

	technical := clampScore(WeightRSI*rsiScore +
		WeightTrend*trendScore +
		WeightVolatility*volScore +
		WeightVolume*volumeScore)
	out.Value = technical

	if s.netflow != nil {
		flows, err := s.netflow.RecentNetflows(ctx, symbol, s.window)
		if err != nil {
			s.log.Warn("netflow source unavailable, skipping on-chain adjustment",
				applogger.String("symbol", symbol), applogger.Error(err))
			out.Degraded = true
			return out
		}
		z, ok := features.ZScore(flows)
		if !ok {
			out.Degraded = true
			return out
		}
		out.Components["netflow_z"] = z
		adjusted := AdjustForNetflow(technical, z)
		out.Components["netflow_adjustment"] = adjusted - technical
		out.Value = adjusted
	}
	return out
}

// AdjustForNetflow applies the on-chain adjustment to a technical score
// and re-clamps to [0, 100].
func AdjustForNetflow(score, z float64) float64 {
	switch {
	case z > netflowHighZ:
		score += netflowHighPenalty
	case z < netflowLowZ:
		score += netflowLowBonus
	}
	return clampScore(score)
}

// rsiScore maps RSI to a buy-side score: oversold (30) scores 100,
// overbought (70) scores 0, linear in between.
func (s *Scorer) rsiScore(closes []float64) (float64, bool) {
	rsi, ok := features.RSI(closes, rsiPeriod)
	if !ok {
		return 0, false
	}
	return clampScore((70 - rsi) / 40 * 100), true
}

// trendScore maps the MACD histogram, normalized by price, into a
// 0-100 score centered at 50 for a flat trend.
func (s *Scorer) trendScore(closes []float64) (float64, bool) {
	macd, signal, ok := features.MACD(closes, macdFast, macdSlow, macdSignal)
	if !ok {
		return 0, false
	}
	price := closes[len(closes)-1]
	if price <= 0 {
		return 0, false
	}
	hist := (macd - signal) / price
	return clampScore(50 + 50*math.Tanh(hist*1000)), true
}

// volatilityScore favors calm markets: annualized sigma of 0 scores
// 100, sigma of 2 (200% annualized) scores 0.
func (s *Scorer) volatilityScore(candles []models.Candle) (float64, bool) {
	rets := features.ComputeLogReturns(candles)
	if len(rets) < volatilityWindow {
		return 0, false
	}
	sigma := features.RealizedVolatility(rets, volatilityWindow, features.BarsPerYearForTF(s.tf))
	return clampScore(100 - 50*sigma), true
}

// volumeScore compares recent volume with the window average: rising
// participation scores above 50.
func (s *Scorer) volumeScore(vols []float64) (float64, bool) {
	recent, ok := features.SMA(vols, volumeWindow)
	if !ok {
		return 0, false
	}
	base, ok := features.SMA(vols, len(vols))
	if !ok || base <= 0 {
		return 0, false
	}
	return clampScore(50 * recent / base), true
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

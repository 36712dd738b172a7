package features

import (
	"math"

	"QuantPulse/internal/domain/models"
)

// Closes extracts the close series from candles in given order.
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Volumes extracts the volume series from candles in given order.
func Volumes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// ComputeLogReturns computes log returns r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(candles)-1, or nil if insufficient data.
func ComputeLogReturns(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		cur := candles[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RSI computes Wilder's relative strength index over the close series.
// Needs at least period+1 closes; ok reports whether there was enough
// history.
func RSI(closes []float64, period int) (rsi float64, ok bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		var g, l float64
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}
	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// EMA computes an exponential moving average seeded with the SMA of the
// first period values. Entries before index period-1 are zero.
func EMA(xs []float64, period int) []float64 {
	if period <= 0 || len(xs) < period {
		return nil
	}
	out := make([]float64, len(xs))
	var sum float64
	for i := 0; i < period; i++ {
		sum += xs[i]
	}
	out[period-1] = sum / float64(period)
	k := 2.0 / float64(period+1)
	for i := period; i < len(xs); i++ {
		out[i] = xs[i]*k + out[i-1]*(1-k)
	}
	return out
}

// MACD returns the latest MACD line and signal line values.
// Needs at least slow+signalPeriod closes.
func MACD(closes []float64, fast, slow, signalPeriod int) (macd, signal float64, ok bool) {
	if fast <= 0 || slow <= fast || signalPeriod <= 0 || len(closes) < slow+signalPeriod {
		return 0, 0, false
	}
	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)
	diff := make([]float64, 0, len(closes)-slow+1)
	for i := slow - 1; i < len(closes); i++ {
		diff = append(diff, emaFast[i]-emaSlow[i])
	}
	sig := EMA(diff, signalPeriod)
	if sig == nil {
		return 0, 0, false
	}
	return diff[len(diff)-1], sig[len(sig)-1], true
}

// RealizedVolatility computes annualized realized volatility over a rolling window
// using the provided number of bars per year. Returns the latest window sigma.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sum := 0.0
	sum2 := 0.0
	for i := len(logReturns) - window; i < len(logReturns); i++ {
		r := logReturns[i]
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	// annualize
	return math.Sqrt(variance * barsPerYear)
}

// BarsPerYearForTF returns the approximate number of bars per year for a timeframe.
func BarsPerYearForTF(tf string) float64 {
	switch tf {
	case "5m":
		return 365 * 24 * 12
	case "1h":
		return 365 * 24
	default: // 1m
		return 365 * 24 * 60
	}
}

// ZScore returns how many standard deviations the last value sits from
// the series mean. ok is false when the series is too short or flat.
func ZScore(xs []float64) (z float64, ok bool) {
	if len(xs) < 2 {
		return 0, false
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sum2 float64
	for _, x := range xs {
		d := x - mean
		sum2 += d * d
	}
	std := math.Sqrt(sum2 / float64(len(xs)-1))
	if std == 0 {
		return 0, false
	}
	return (xs[len(xs)-1] - mean) / std, true
}

// SMA returns the simple average of the last window values.
func SMA(xs []float64, window int) (float64, bool) {
	if window <= 0 || len(xs) < window {
		return 0, false
	}
	var sum float64
	for i := len(xs) - window; i < len(xs); i++ {
		sum += xs[i]
	}
	return sum / float64(window), true
}

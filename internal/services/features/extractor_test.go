package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantPulse/internal/domain/models"
)

func candlesFromCloses(closes []float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = models.Candle{
			Symbol:   "BTCUSDT",
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Close:    c,
			Volume:   100,
		}
	}
	return out
}

func TestComputeLogReturns(t *testing.T) {
	cs := candlesFromCloses([]float64{100, 110, 99})
	rets := ComputeLogReturns(cs)
	require.Len(t, rets, 2)
	assert.InDelta(t, math.Log(1.1), rets[0], 1e-12)
	assert.InDelta(t, math.Log(0.9), rets[1], 1e-12)

	assert.Nil(t, ComputeLogReturns(cs[:1]))
}

func TestRSIInsufficientHistory(t *testing.T) {
	closes := []float64{1, 2, 3}
	_, ok := RSI(closes, 14)
	assert.False(t, ok)
}

func TestRSIAllGains(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	rsi, ok := RSI(closes, 14)
	require.True(t, ok)
	assert.InDelta(t, 100, rsi, 1e-9)
}

func TestRSIMidrange(t *testing.T) {
	// alternating gains and losses of equal size keep RSI near 50
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100
		if i%2 == 1 {
			closes[i] = 101
		}
	}
	rsi, ok := RSI(closes, 14)
	require.True(t, ok)
	assert.InDelta(t, 50, rsi, 5)
}

func TestMACDNeedsSlowPlusSignal(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	_, _, ok := MACD(closes, 12, 26, 9)
	assert.False(t, ok)

	closes = make([]float64, 40)
	for i := range closes {
		closes[i] = 100
	}
	macd, signal, ok := MACD(closes, 12, 26, 9)
	require.True(t, ok)
	assert.Zero(t, macd)
	assert.Zero(t, signal)
}

func TestMACDUptrendPositive(t *testing.T) {
	closes := make([]float64, 60)
	price := 100.0
	for i := range closes {
		closes[i] = price
		price *= 1.01
	}
	macd, _, ok := MACD(closes, 12, 26, 9)
	require.True(t, ok)
	assert.Positive(t, macd)
}

func TestZScore(t *testing.T) {
	z, ok := ZScore([]float64{1, 2, 3, 4, 5})
	require.True(t, ok)
	assert.InDelta(t, 1.2649, z, 1e-3)

	_, ok = ZScore([]float64{7})
	assert.False(t, ok)

	// flat series has no dispersion
	_, ok = ZScore([]float64{3, 3, 3, 3})
	assert.False(t, ok)
}

func TestSMA(t *testing.T) {
	avg, ok := SMA([]float64{1, 2, 3, 4}, 2)
	require.True(t, ok)
	assert.InDelta(t, 3.5, avg, 1e-12)

	_, ok = SMA([]float64{1}, 2)
	assert.False(t, ok)
}

func TestRealizedVolatilityInsufficient(t *testing.T) {
	assert.Zero(t, RealizedVolatility([]float64{0.01}, 30, BarsPerYearForTF("1m")))
}

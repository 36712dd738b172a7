package usecase

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantPulse/internal/domain/models"
	"QuantPulse/internal/execution"
	"QuantPulse/internal/risk"
	"QuantPulse/internal/service/killswitch"
)

type fixedQuoter float64

func (q fixedQuoter) Quote(ctx context.Context, symbol string) (float64, error) {
	return float64(q), nil
}

func TestPanicDisablesTradingAndFlattens(t *testing.T) {
	ctx := context.Background()
	paper, err := execution.NewPaperExchange(10000, filepath.Join(t.TempDir(), "ledger.json"), fixedQuoter(50000), testLogger(t))
	require.NoError(t, err)

	_, err = paper.CreateOrder(ctx, "BTCUSDT", models.SideBuy, 0.1, 50000)
	require.NoError(t, err)
	_, err = paper.CreateOrder(ctx, "ETHUSDT", models.SideBuy, 1, 3000)
	require.NoError(t, err)

	sw := killswitch.NewMemorySwitch(true)
	sizer := &risk.Sizer{Fraction: 0.25, MaxFraction: 0.3}
	gw := execution.NewGateway(paper, sw, sizer, nil, newFakeMetrics(), testLogger(t))

	u := NewPanicUseCase(sw, gw, testLogger(t))
	orders, err := u.Execute(ctx)
	require.NoError(t, err)

	assert.False(t, sw.Check(ctx), "trading must be disabled")
	assert.Len(t, orders, 2)
	for _, o := range orders {
		assert.Equal(t, models.SideSell, o.Side)
		assert.Equal(t, models.OrderFilled, o.Status)
	}
	_, held := paper.Position("BTCUSDT")
	assert.False(t, held)
	_, held = paper.Position("ETHUSDT")
	assert.False(t, held)
}

func TestPanicFlattensEvenWhenFlagWriteFails(t *testing.T) {
	ctx := context.Background()
	paper, err := execution.NewPaperExchange(10000, filepath.Join(t.TempDir(), "ledger.json"), fixedQuoter(50000), testLogger(t))
	require.NoError(t, err)
	_, err = paper.CreateOrder(ctx, "BTCUSDT", models.SideBuy, 0.1, 50000)
	require.NoError(t, err)

	sw := &failingSwitch{}
	sizer := &risk.Sizer{Fraction: 0.25, MaxFraction: 0.3}
	gw := execution.NewGateway(paper, sw, sizer, nil, newFakeMetrics(), testLogger(t))

	u := NewPanicUseCase(sw, gw, testLogger(t))
	orders, err := u.Execute(ctx)
	require.Error(t, err)
	assert.Len(t, orders, 1, "positions are flattened despite the flag failure")
}

type failingSwitch struct{}

func (s *failingSwitch) Check(ctx context.Context) bool { return true }
func (s *failingSwitch) Set(ctx context.Context, enabled bool) error {
	return assert.AnError
}

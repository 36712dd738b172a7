package execution

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantPulse/internal/domain/models"
	applogger "QuantPulse/pkg/logger"
)

type stubQuoter struct {
	prices map[string]float64
}

func (q *stubQuoter) Quote(ctx context.Context, symbol string) (float64, error) {
	return q.prices[symbol], nil
}

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)
	return l
}

func newPaper(t *testing.T, balance float64, prices map[string]float64) *PaperExchange {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.json")
	p, err := NewPaperExchange(balance, path, &stubQuoter{prices: prices}, testLogger(t))
	require.NoError(t, err)
	return p
}

func TestLedgerBuySellRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newPaper(t, 10000, map[string]float64{"BTCUSDT": 50000})

	// buy 0.1 at 50000: cash 10000 -> 5000
	o, err := p.CreateOrder(ctx, "BTCUSDT", models.SideBuy, 0.1, 50000)
	require.NoError(t, err)
	assert.Equal(t, models.OrderFilled, o.Status)
	assert.NotEmpty(t, o.ID)

	cash, err := p.FetchBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 5000, cash, 1e-9)

	pos, ok := p.Position("BTCUSDT")
	require.True(t, ok)
	assert.InDelta(t, 0.1, pos.Quantity, 1e-12)
	assert.InDelta(t, 50000, pos.AvgEntryPrice, 1e-9)

	// sell 0.1 at 51000: cash 5000 -> 10100, position removed
	_, err = p.CreateOrder(ctx, "BTCUSDT", models.SideSell, 0.1, 51000)
	require.NoError(t, err)

	cash, err = p.FetchBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10100, cash, 1e-9)

	_, ok = p.Position("BTCUSDT")
	assert.False(t, ok)
}

func TestBuyInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	p := newPaper(t, 100, map[string]float64{"BTCUSDT": 50000})

	_, err := p.CreateOrder(ctx, "BTCUSDT", models.SideBuy, 1, 50000)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// nothing changed
	cash, _ := p.FetchBalance(ctx)
	assert.InDelta(t, 100, cash, 1e-9)
	assert.Empty(t, p.Orders(0))
}

func TestSellWithoutHoldings(t *testing.T) {
	ctx := context.Background()
	p := newPaper(t, 10000, map[string]float64{"BTCUSDT": 50000})

	_, err := p.CreateOrder(ctx, "BTCUSDT", models.SideSell, 0.5, 50000)
	assert.ErrorIs(t, err, ErrInsufficientHoldings)
}

func TestAverageEntryPrice(t *testing.T) {
	ctx := context.Background()
	p := newPaper(t, 10000, map[string]float64{"ETHUSDT": 100})

	_, err := p.CreateOrder(ctx, "ETHUSDT", models.SideBuy, 1, 100)
	require.NoError(t, err)
	_, err = p.CreateOrder(ctx, "ETHUSDT", models.SideBuy, 1, 200)
	require.NoError(t, err)

	pos, ok := p.Position("ETHUSDT")
	require.True(t, ok)
	assert.InDelta(t, 2, pos.Quantity, 1e-12)
	assert.InDelta(t, 150, pos.AvgEntryPrice, 1e-9)
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.json")
	quoter := &stubQuoter{prices: map[string]float64{"BTCUSDT": 50000}}

	p, err := NewPaperExchange(10000, path, quoter, testLogger(t))
	require.NoError(t, err)
	_, err = p.CreateOrder(ctx, "BTCUSDT", models.SideBuy, 0.1, 50000)
	require.NoError(t, err)

	// snapshot exists and parses
	_, err = os.Stat(path)
	require.NoError(t, err)

	restored, err := NewPaperExchange(10000, path, quoter, testLogger(t))
	require.NoError(t, err)

	cash, _ := restored.FetchBalance(ctx)
	assert.InDelta(t, 5000, cash, 1e-9)
	pos, ok := restored.Position("BTCUSDT")
	require.True(t, ok)
	assert.InDelta(t, 0.1, pos.Quantity, 1e-12)
	assert.Len(t, restored.Orders(0), 1)
}

func TestCloseAllPositions(t *testing.T) {
	ctx := context.Background()
	p := newPaper(t, 10000, map[string]float64{"BTCUSDT": 100, "ETHUSDT": 10})

	_, err := p.CreateOrder(ctx, "BTCUSDT", models.SideBuy, 10, 100)
	require.NoError(t, err)
	_, err = p.CreateOrder(ctx, "ETHUSDT", models.SideBuy, 100, 10)
	require.NoError(t, err)

	orders, err := p.CloseAllPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	_, ok := p.Position("BTCUSDT")
	assert.False(t, ok)
	_, ok = p.Position("ETHUSDT")
	assert.False(t, ok)

	// all cash back at unchanged prices
	cash, _ := p.FetchBalance(ctx)
	assert.InDelta(t, 10000, cash, 1e-9)
}

func TestPortfolioUnrealizedPnL(t *testing.T) {
	ctx := context.Background()
	quoter := &stubQuoter{prices: map[string]float64{"BTCUSDT": 50000}}
	path := filepath.Join(t.TempDir(), "ledger.json")
	p, err := NewPaperExchange(10000, path, quoter, testLogger(t))
	require.NoError(t, err)

	_, err = p.CreateOrder(ctx, "BTCUSDT", models.SideBuy, 0.1, 50000)
	require.NoError(t, err)

	// price moves up 1000
	quoter.prices["BTCUSDT"] = 51000

	pf, err := p.Portfolio(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 5000, pf.Cash, 1e-9)
	assert.InDelta(t, 10100, pf.Equity, 1e-9)
	assert.InDelta(t, 100, pf.UnrealizedPnL, 1e-9)
}

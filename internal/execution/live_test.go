package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantPulse/internal/domain/models"
	"QuantPulse/internal/service/binance"
)

// fakeVenue answers the signed endpoints the live exchange uses: it
// fills market orders in full at its current price and serves spot
// balances.
type fakeVenue struct {
	mu       sync.Mutex
	price    float64
	balances map[string]string
	orders   []string // "SIDE symbol qty"
}

func (v *fakeVenue) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/api/v3/order":
			qty, err := strconv.ParseFloat(q.Get("quantity"), 64)
			if err != nil || qty <= 0 {
				http.Error(w, "bad quantity", http.StatusBadRequest)
				return
			}
			v.mu.Lock()
			price := v.price
			v.orders = append(v.orders, fmt.Sprintf("%s %s %s", q.Get("side"), q.Get("symbol"), q.Get("quantity")))
			v.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"orderId":             1,
				"executedQty":         q.Get("quantity"),
				"cummulativeQuoteQty": strconv.FormatFloat(qty*price, 'f', -1, 64),
				"status":              "FILLED",
			})
		case "/api/v3/account":
			v.mu.Lock()
			balances := make([]map[string]string, 0, len(v.balances))
			for asset, free := range v.balances {
				balances = append(balances, map[string]string{"asset": asset, "free": free})
			}
			v.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"balances": balances})
		default:
			http.NotFound(w, r)
		}
	}
}

func (v *fakeVenue) orderCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.orders)
}

func newLiveFixture(t *testing.T, symbols []string) (*LiveExchange, *fakeVenue) {
	t.Helper()
	venue := &fakeVenue{price: 50000, balances: map[string]string{}}
	srv := httptest.NewServer(venue.handler())
	t.Cleanup(srv.Close)

	account := binance.NewAccountClient(srv.URL, "test-key", "test-secret", testLogger(t))
	return NewLiveExchange(account, nil, symbols, testLogger(t)), venue
}

func TestLiveFillsBuildThePositionBook(t *testing.T) {
	live, venue := newLiveFixture(t, []string{"BTCUSDT"})
	ctx := context.Background()

	_, err := live.CreateOrder(ctx, "BTCUSDT", models.SideBuy, 0.1, 0)
	require.NoError(t, err)

	pos, ok := live.Position("BTCUSDT")
	require.True(t, ok)
	assert.InDelta(t, 0.1, pos.Quantity, 1e-9)
	assert.InDelta(t, 50000, pos.AvgEntryPrice, 1e-6)

	// a second buy at a higher price averages into the entry
	venue.mu.Lock()
	venue.price = 60000
	venue.mu.Unlock()
	_, err = live.CreateOrder(ctx, "BTCUSDT", models.SideBuy, 0.1, 0)
	require.NoError(t, err)

	pos, ok = live.Position("BTCUSDT")
	require.True(t, ok)
	assert.InDelta(t, 0.2, pos.Quantity, 1e-9)
	assert.InDelta(t, 55000, pos.AvgEntryPrice, 1e-6)

	_, err = live.CreateOrder(ctx, "BTCUSDT", models.SideSell, 0.2, 0)
	require.NoError(t, err)
	_, ok = live.Position("BTCUSDT")
	assert.False(t, ok, "fully sold position must leave the book")
}

func TestLiveRejectedOrderLeavesBookUntouched(t *testing.T) {
	live, _ := newLiveFixture(t, []string{"BTCUSDT"})

	_, err := live.CreateOrder(context.Background(), "BTCUSDT", models.SideBuy, -1, 0)
	require.Error(t, err)
	_, ok := live.Position("BTCUSDT")
	assert.False(t, ok)
}

func TestLiveCloseAllSellsVenueBalances(t *testing.T) {
	live, venue := newLiveFixture(t, []string{"BTCUSDT", "ETHUSDT"})
	venue.mu.Lock()
	// BTC held from before this process started, nothing in ETH
	venue.balances["BTC"] = "0.5"
	venue.balances["ETH"] = "0"
	venue.mu.Unlock()

	orders, err := live.CloseAllPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "BTCUSDT", orders[0].Symbol)
	assert.Equal(t, models.SideSell, orders[0].Side)
	assert.InDelta(t, 0.5, orders[0].Quantity, 1e-9)
	assert.Equal(t, 1, venue.orderCount())

	_, ok := live.Position("BTCUSDT")
	assert.False(t, ok)
}

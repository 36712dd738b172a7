package execution

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"QuantPulse/internal/domain/models"
	"QuantPulse/internal/domain/repository"
	"QuantPulse/internal/service/binance"
	applogger "QuantPulse/pkg/logger"
)

const quoteAsset = "USDT"

// LiveExchange routes orders to the real venue through the signed
// Binance client. It keeps an in-memory position book built from the
// fills this process makes, so the scan loop can run its stop-loss and
// take-profit exits against live inventory. Balances held before
// startup have no known entry price and are not exit-managed; /panic
// still flattens them via the venue balances.
type LiveExchange struct {
	account *binance.AccountClient
	market  *binance.Client
	symbols []string
	log     *applogger.Logger

	mu        sync.Mutex
	positions map[string]models.Position
}

var _ repository.ExchangeBackend = (*LiveExchange)(nil)

func NewLiveExchange(account *binance.AccountClient, market *binance.Client, symbols []string, log *applogger.Logger) *LiveExchange {
	return &LiveExchange{
		account:   account,
		market:    market,
		symbols:   symbols,
		log:       log,
		positions: make(map[string]models.Position),
	}
}

func (l *LiveExchange) FetchBalance(ctx context.Context) (float64, error) {
	return l.account.FreeBalance(ctx, quoteAsset)
}

func (l *LiveExchange) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	return l.market.TickerPrice(ctx, symbol)
}

func (l *LiveExchange) CreateOrder(ctx context.Context, symbol string, side models.OrderSide, quantity, price float64) (models.Order, error) {
	res, err := l.account.CreateMarketOrder(ctx, symbol, string(side), quantity)
	if err != nil {
		return models.Order{}, fmt.Errorf("live order: %w", err)
	}
	filledPrice := res.AvgPrice
	if filledPrice <= 0 {
		filledPrice = price
	}
	l.recordFill(symbol, side, res.ExecutedQty, filledPrice)
	return models.Order{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Quantity:  res.ExecutedQty,
		Price:     filledPrice,
		Status:    models.OrderFilled,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Position reports the inventory this process has accumulated in a
// symbol, with its average entry price.
func (l *LiveExchange) Position(symbol string) (models.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbol]
	return pos, ok
}

// recordFill folds a fill into the position book: buys average into the
// entry price, sells draw the position down to zero.
func (l *LiveExchange) recordFill(symbol string, side models.OrderSide, quantity, price float64) {
	if quantity <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.positions[symbol]
	pos.Symbol = symbol
	switch side {
	case models.SideBuy:
		total := pos.Quantity + quantity
		pos.AvgEntryPrice = (pos.AvgEntryPrice*pos.Quantity + price*quantity) / total
		pos.Quantity = total
		l.positions[symbol] = pos
	case models.SideSell:
		pos.Quantity -= quantity
		if pos.Quantity < qtyEpsilon {
			delete(l.positions, symbol)
		} else {
			l.positions[symbol] = pos
		}
	}
}

// CloseAllPositions market-sells the full base balance of every traded
// symbol, tracked or not.
func (l *LiveExchange) CloseAllPositions(ctx context.Context) ([]models.Order, error) {
	orders := make([]models.Order, 0, len(l.symbols))
	var firstErr error
	for _, symbol := range l.symbols {
		base := baseAsset(symbol)
		free, err := l.account.FreeBalance(ctx, base)
		if err != nil {
			l.log.Error("live flatten balance lookup failed",
				applogger.String("symbol", symbol), applogger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if free <= 0 {
			l.clearPosition(symbol)
			continue
		}
		o, err := l.CreateOrder(ctx, symbol, models.SideSell, free, 0)
		if err != nil {
			l.log.Error("live flatten sell failed",
				applogger.String("symbol", symbol), applogger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		l.clearPosition(symbol)
		orders = append(orders, o)
	}
	return orders, firstErr
}

func (l *LiveExchange) clearPosition(symbol string) {
	l.mu.Lock()
	delete(l.positions, symbol)
	l.mu.Unlock()
}

func baseAsset(symbol string) string {
	return strings.TrimSuffix(symbol, quoteAsset)
}

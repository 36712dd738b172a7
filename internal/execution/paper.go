package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"QuantPulse/internal/domain/models"
	"QuantPulse/internal/domain/repository"
	applogger "QuantPulse/pkg/logger"
)

var (
	ErrInsufficientBalance  = errors.New("paper: insufficient cash balance")
	ErrInsufficientHoldings = errors.New("paper: insufficient held quantity")
)

// dust below which a position is considered closed
const qtyEpsilon = 1e-9

// Quoter resolves the current market price for the simulated fills.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (float64, error)
}

// PaperExchange is the simulated venue. All mutations happen under one
// mutex and every mutation is followed by an atomic snapshot write
// (temp file + rename), so a crash can lose at most the in-flight
// mutation, never corrupt the file.
type PaperExchange struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]models.Position
	orders    []models.Order

	path   string
	quoter Quoter
	log    *applogger.Logger
}

var _ repository.ExchangeBackend = (*PaperExchange)(nil)

// NewPaperExchange restores state from the snapshot at path, or starts
// fresh with initialBalance when no snapshot exists.
func NewPaperExchange(initialBalance float64, path string, quoter Quoter, log *applogger.Logger) (*PaperExchange, error) {
	p := &PaperExchange{
		cash:      initialBalance,
		positions: make(map[string]models.Position),
		path:      path,
		quoter:    quoter,
		log:       log,
	}
	if err := p.restore(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PaperExchange) restore() error {
	b, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("paper: read snapshot: %w", err)
	}
	var snap models.LedgerSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("paper: parse snapshot: %w", err)
	}
	p.cash = snap.Cash
	if snap.Positions != nil {
		p.positions = snap.Positions
	}
	p.orders = snap.Orders
	p.log.Info("paper ledger restored",
		applogger.Any("cash", p.cash),
		applogger.Int("positions", len(p.positions)),
		applogger.Int("orders", len(p.orders)))
	return nil
}

// snapshotLocked writes the ledger atomically. Callers hold p.mu.
func (p *PaperExchange) snapshotLocked() error {
	snap := models.LedgerSnapshot{
		Cash:      p.cash,
		Positions: p.positions,
		Orders:    p.orders,
		UpdatedAt: time.Now().UTC(),
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("paper: marshal snapshot: %w", err)
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("paper: snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "ledger-*.json")
	if err != nil {
		return fmt.Errorf("paper: snapshot temp: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("paper: snapshot write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("paper: snapshot close: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("paper: snapshot rename: %w", err)
	}
	return nil
}

func (p *PaperExchange) FetchBalance(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash, nil
}

func (p *PaperExchange) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	return p.quoter.Quote(ctx, symbol)
}

// CreateOrder fills a market order against the ledger. price <= 0 means
// "at market": the quoter resolves it.
func (p *PaperExchange) CreateOrder(ctx context.Context, symbol string, side models.OrderSide, quantity, price float64) (models.Order, error) {
	if quantity <= 0 {
		return models.Order{}, fmt.Errorf("paper: quantity must be positive")
	}
	if price <= 0 {
		quoted, err := p.quoter.Quote(ctx, symbol)
		if err != nil {
			return models.Order{}, fmt.Errorf("paper: price lookup: %w", err)
		}
		price = quoted
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch side {
	case models.SideBuy:
		cost := quantity * price
		if cost > p.cash {
			return models.Order{}, fmt.Errorf("%w: need %.8f, have %.8f", ErrInsufficientBalance, cost, p.cash)
		}
		p.cash -= cost
		pos := p.positions[symbol]
		pos.Symbol = symbol
		total := pos.Quantity + quantity
		pos.AvgEntryPrice = (pos.AvgEntryPrice*pos.Quantity + price*quantity) / total
		pos.Quantity = total
		p.positions[symbol] = pos

	case models.SideSell:
		pos, ok := p.positions[symbol]
		if !ok || pos.Quantity+qtyEpsilon < quantity {
			return models.Order{}, fmt.Errorf("%w: %s", ErrInsufficientHoldings, symbol)
		}
		p.cash += quantity * price
		pos.Quantity -= quantity
		if math.Abs(pos.Quantity) < qtyEpsilon {
			delete(p.positions, symbol)
		} else {
			p.positions[symbol] = pos
		}

	default:
		return models.Order{}, fmt.Errorf("paper: unknown side %q", side)
	}

	order := models.Order{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Price:     price,
		Status:    models.OrderFilled,
		CreatedAt: time.Now().UTC(),
	}
	p.orders = append(p.orders, order)

	if err := p.snapshotLocked(); err != nil {
		// state is already mutated in memory; losing the snapshot is
		// recoverable on the next successful write, but say so loudly
		p.log.Error("paper snapshot write failed", applogger.Error(err))
	}
	p.log.Info("paper order filled",
		applogger.String("symbol", symbol),
		applogger.String("side", string(side)),
		applogger.Any("quantity", quantity),
		applogger.Any("price", price),
		applogger.Any("cash", p.cash))
	return order, nil
}

// CloseAllPositions market-sells every held position.
func (p *PaperExchange) CloseAllPositions(ctx context.Context) ([]models.Order, error) {
	p.mu.Lock()
	symbols := make([]string, 0, len(p.positions))
	quantities := make(map[string]float64, len(p.positions))
	for sym, pos := range p.positions {
		symbols = append(symbols, sym)
		quantities[sym] = pos.Quantity
	}
	p.mu.Unlock()

	orders := make([]models.Order, 0, len(symbols))
	var firstErr error
	for _, sym := range symbols {
		o, err := p.CreateOrder(ctx, sym, models.SideSell, quantities[sym], 0)
		if err != nil {
			p.log.Error("paper flatten failed",
				applogger.String("symbol", sym), applogger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		orders = append(orders, o)
	}
	return orders, firstErr
}

// Portfolio is a read-only view with unrealized PnL at current quotes.
func (p *PaperExchange) Portfolio(ctx context.Context) (models.Portfolio, error) {
	p.mu.Lock()
	out := models.Portfolio{
		Cash:      p.cash,
		Positions: make(map[string]models.Position, len(p.positions)),
	}
	for sym, pos := range p.positions {
		out.Positions[sym] = pos
	}
	p.mu.Unlock()

	out.Equity = out.Cash
	for sym, pos := range out.Positions {
		price, err := p.quoter.Quote(ctx, sym)
		if err != nil {
			return models.Portfolio{}, fmt.Errorf("paper portfolio: %w", err)
		}
		out.Equity += pos.Quantity * price
		out.UnrealizedPnL += (price - pos.AvgEntryPrice) * pos.Quantity
	}
	return out, nil
}

// Position returns the held position for symbol, if any.
func (p *PaperExchange) Position(symbol string) (models.Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[symbol]
	return pos, ok
}

// Orders returns up to limit most recent orders, newest first.
func (p *PaperExchange) Orders(limit int) []models.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.orders)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.Order, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, p.orders[i])
	}
	return out
}

// SnapshotPath exposes the ledger file location, used by tests and the
// status endpoint.
func (p *PaperExchange) SnapshotPath() string { return p.path }

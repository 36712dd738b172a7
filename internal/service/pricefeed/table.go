package pricefeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"QuantPulse/pkg/cache"
)

// Table is the in-process last-price view fed by the trade stream.
type Table struct {
	mu     sync.RWMutex
	prices map[string]float64
}

func NewTable() *Table {
	return &Table{prices: make(map[string]float64)}
}

func (t *Table) Set(symbol string, price float64) {
	t.mu.Lock()
	t.prices[symbol] = price
	t.mu.Unlock()
}

func (t *Table) LastPrice(symbol string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.prices[symbol]
	return p, ok
}

// RESTSource is the fallback quote fetch when the stream has not seen a
// symbol yet.
type RESTSource interface {
	TickerPrice(ctx context.Context, symbol string) (float64, error)
}

const priceCacheTTL = 30 * time.Second

// Quoter resolves the current price of a symbol: live stream table
// first, then the shared redis cache, then the REST API. REST hits are
// written back to the cache.
type Quoter struct {
	table *Table
	cache cache.Service
	rest  RESTSource
}

func NewQuoter(table *Table, cacheSvc cache.Service, rest RESTSource) *Quoter {
	return &Quoter{table: table, cache: cacheSvc, rest: rest}
}

func (q *Quoter) Quote(ctx context.Context, symbol string) (float64, error) {
	if q.table != nil {
		if p, ok := q.table.LastPrice(symbol); ok && p > 0 {
			return p, nil
		}
	}
	if q.cache != nil {
		var p float64
		if err := q.cache.Get(ctx, cache.GenerateKey("price", symbol), &p); err == nil && p > 0 {
			return p, nil
		}
	}
	if q.rest == nil {
		return 0, fmt.Errorf("quote %s: no price source", symbol)
	}
	p, err := q.rest.TickerPrice(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if q.cache != nil {
		_ = q.cache.Set(ctx, cache.GenerateKey("price", symbol), p, priceCacheTTL)
	}
	return p, nil
}

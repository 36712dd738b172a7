package usecase

import (
	"context"
	"fmt"
	"time"

	"QuantPulse/internal/domain/models"
	domrepo "QuantPulse/internal/domain/repository"
	"QuantPulse/internal/service/pricefeed"
	"QuantPulse/pkg/cache"
)

const tickCacheTTL = 30 * time.Second

// TickProcessor fans a validated tick out to the in-process price
// table and the shared redis price cache.
type TickProcessor struct {
	table   *pricefeed.Table
	cache   cache.Service
	metrics domrepo.Metrics
}

func NewTickProcessor(table *pricefeed.Table, cacheSvc cache.Service, metrics domrepo.Metrics) *TickProcessor {
	return &TickProcessor{table: table, cache: cacheSvc, metrics: metrics}
}

func (p *TickProcessor) Process(ctx context.Context, t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick is nil")
	}
	start := time.Now()

	p.table.Set(t.Symbol, t.Price)
	p.metrics.RecordLastPrice(t.Symbol, t.Price)

	if p.cache != nil {
		if err := p.cache.Set(ctx, cache.GenerateKey("price", t.Symbol), t.Price, tickCacheTTL); err != nil {
			p.metrics.RecordError("tick_cache")
			return fmt.Errorf("cache price: %w", err)
		}
	}
	p.metrics.RecordLatency("tick_process", time.Since(start).Seconds())
	return nil
}

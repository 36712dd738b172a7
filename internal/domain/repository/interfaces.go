package repository

import (
	"context"

	"QuantPulse/internal/domain/models"
)

type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Switch is the process-external trading kill switch. Check is consulted
// on every decision and fails open: when the flag store is unreachable,
// trading stays enabled.
type Switch interface {
	Check(ctx context.Context) bool
	Set(ctx context.Context, enabled bool) error
}

// ExchangeBackend abstracts the venue orders are routed to. Both the
// paper ledger and the live adapter implement it.
type ExchangeBackend interface {
	FetchBalance(ctx context.Context) (float64, error)
	FetchPrice(ctx context.Context, symbol string) (float64, error)
	CreateOrder(ctx context.Context, symbol string, side models.OrderSide, quantity, price float64) (models.Order, error)
	CloseAllPositions(ctx context.Context) ([]models.Order, error)
}

// Notifier publishes order outcomes to the event stream.
type Notifier interface {
	NotifyOrder(ctx context.Context, o *models.Order) error
	Close() error
}

type Metrics interface {
	RecordJobRun(job, outcome string)
	RecordCandlesStored(symbol string, n int)
	RecordOrder(status, reason string)
	RecordLastPrice(symbol string, price float64)
	RecordScore(symbol string, score float64)
	RecordTradingEnabled(enabled bool)
	RecordLatency(op string, seconds float64)
	RecordError(kind string)
}

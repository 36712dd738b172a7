package usecase

import (
	"context"
	"fmt"

	"QuantPulse/internal/domain/models"
	domrepo "QuantPulse/internal/domain/repository"
	"QuantPulse/internal/middleware"
	applogger "QuantPulse/pkg/logger"
)

// PriceCollector drives the WebSocket price feed: it owns the stream
// lifecycle and pushes every tick through the realtime pipeline into
// the price table. Losing a tick is acceptable, losing the stream is
// not, so read errors trigger a reconnect rather than a shutdown.
type PriceCollector struct {
	stream  domrepo.MarketStream
	pipe    *middleware.RealtimePipeline
	metrics domrepo.Metrics
	log     *applogger.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewPriceCollector(
	stream domrepo.MarketStream,
	pipe *middleware.RealtimePipeline,
	metrics domrepo.Metrics,
	log *applogger.Logger,
) *PriceCollector {
	return &PriceCollector{
		stream:  stream,
		pipe:    pipe,
		metrics: metrics,
		log:     log,
		done:    make(chan struct{}),
	}
}

// Start connects, subscribes, and launches the consume loop.
func (c *PriceCollector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	if err := c.stream.Connect(ctx); err != nil {
		return fmt.Errorf("collector connect: %w", err)
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return fmt.Errorf("collector subscribe: %w", err)
	}
	c.pipe.Start(ctx)

	ticks, errs := c.stream.Read(ctx)
	go c.consume(ctx, ticks, errs)

	c.log.Info("price collector started")
	return nil
}

func (c *PriceCollector) consume(ctx context.Context, ticks <-chan *models.Tick, errs <-chan error) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				return
			}
			c.log.Error("price stream error, reconnecting", applogger.Error(err))
			c.metrics.RecordError("collector_stream")
			if rerr := c.stream.Reconnect(ctx); rerr != nil {
				c.log.Error("price stream reconnect failed", applogger.Error(rerr))
				c.metrics.RecordError("collector_reconnect")
				return
			}
			ticks, errs = c.stream.Read(ctx)
		case t, ok := <-ticks:
			if !ok {
				return
			}
			if err := c.pipe.Process(ctx, t); err != nil {
				c.log.Debug("tick dropped", applogger.Error(err))
			}
		}
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *PriceCollector) Shutdown() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.pipe.Stop()
	err := c.stream.Close()
	select {
	case <-c.done:
	default:
	}
	c.log.Info("price collector stopped")
	return err
}

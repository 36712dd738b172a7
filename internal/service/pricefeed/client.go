package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"QuantPulse/internal/domain/models"
	drepo "QuantPulse/internal/domain/repository"
	applogger "QuantPulse/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client implements a MarketStream backed by the Binance trade stream.
type Client struct {
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *applogger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// New creates a new Binance MarketStream.
func New(websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, log *applogger.Logger) drepo.MarketStream {
	return &Client{
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.websocketURL, nil)
	if err != nil {
		return fmt.Errorf("pricefeed connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("price feed connected", applogger.String("url", c.websocketURL))
	return nil
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Subscribe subscribes to the trade stream of every configured symbol.
func (c *Client) Subscribe(ctx context.Context) error {
	conn := c.current()
	if conn == nil {
		return fmt.Errorf("pricefeed not connected")
	}
	params := make([]string, 0, len(c.symbols))
	for _, s := range c.symbols {
		params = append(params, strings.ToLower(s)+"@trade")
	}
	msg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     1,
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("pricefeed subscribe: %w", err)
	}
	c.log.Info("price feed subscribed", applogger.Strings("streams", params))
	return nil
}

type wsTrade struct {
	Event    string `json:"e"`
	Symbol   string `json:"s"`
	Price    string `json:"p"`
	Quantity string `json:"q"`
	TradeMs  int64  `json:"T"`
}

// Read streams Tick events and errors for the current connection. The
// connection is captured once: after a Reconnect the caller gets fresh
// channels by calling Read again. The ping loop lives exactly as long
// as this connection's read loop.
func (c *Client) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, 1024)
	errs := make(chan error, 1)
	conn := c.current()
	done := make(chan struct{})

	go func() {
		if conn == nil {
			return
		}
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}()

	go func() {
		defer close(ticks)
		defer close(errs)
		defer close(done)
		if conn == nil {
			errs <- fmt.Errorf("pricefeed conn nil")
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			default:
				_, b, err := conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("pricefeed read: %w", err)
					return
				}
				var m wsTrade
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-trade frames
					continue
				}
				if m.Event != "trade" {
					continue
				}
				price, err := strconv.ParseFloat(m.Price, 64)
				if err != nil {
					continue
				}
				qty, _ := strconv.ParseFloat(m.Quantity, 64)
				tick := &models.Tick{
					Symbol:    m.Symbol,
					Price:     price,
					Volume:    qty,
					Timestamp: time.UnixMilli(m.TradeMs).UTC(),
				}
				select {
				case ticks <- tick:
				default:
					// drop on backpressure
				}
			}
		}
	}()

	return ticks, errs
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.reconnectDelay):
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

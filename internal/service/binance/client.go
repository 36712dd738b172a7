package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"QuantPulse/internal/domain/models"
	"QuantPulse/internal/domain/repository"
	"QuantPulse/internal/service/ratelimit"
	xhttp "QuantPulse/pkg/http"
	applogger "QuantPulse/pkg/logger"
)

const klinesMaxLimit = 1000

// Client fetches market data from the Binance REST API. Requests pass
// through a token bucket (Binance weighs endpoints per minute) and a
// circuit breaker so a flapping API does not hammer every job fire.
type Client struct {
	baseURL string
	http    *xhttp.Client
	breaker *gobreaker.CircuitBreaker
	limiter *ratelimit.Limiter
	rate    float64
	burst   float64
	log     *applogger.Logger
}

var _ repository.MarketSource = (*Client)(nil)

// NewClient creates a Binance market data client.
func NewClient(baseURL string, ratePerSec float64, burst int, log *applogger.Logger) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "binance-rest",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		baseURL: baseURL,
		http:    xhttp.NewClient(xhttp.WithTimeout(10 * time.Second)),
		breaker: cb,
		limiter: ratelimit.New(),
		rate:    ratePerSec,
		burst:   float64(burst),
		log:     log,
	}
}

// FetchSince returns klines with open time strictly after since, oldest
// first, up to limit bars.
func (c *Client) FetchSince(ctx context.Context, symbol string, tf repository.Timeframe, since time.Time, limit int) ([]models.Candle, error) {
	if limit <= 0 || limit > klinesMaxLimit {
		limit = klinesMaxLimit
	}
	if !c.limiter.Allow("klines", c.burst, c.rate) {
		return nil, fmt.Errorf("binance klines: rate limited")
	}

	// startTime is inclusive on Binance, step one bucket forward
	start := since.Add(repository.TimeframeDuration(tf)).UnixMilli()

	raw, err := c.breaker.Execute(func() (interface{}, error) {
		var rows [][]interface{}
		err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
			Method: xhttp.MethodGet,
			URL:    c.baseURL + "/api/v3/klines",
			QueryParams: map[string][]string{
				"symbol":    {symbol},
				"interval":  {string(tf)},
				"startTime": {strconv.FormatInt(start, 10)},
				"limit":     {strconv.Itoa(limit)},
			},
		}, &rows)
		if err != nil {
			return nil, err
		}
		return rows, nil
	})
	if err != nil {
		return nil, fmt.Errorf("binance klines %s: %w", symbol, err)
	}

	rows := raw.([][]interface{})
	candles := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		candle, err := parseKline(symbol, tf, row)
		if err != nil {
			c.log.Warn("skipping malformed kline",
				applogger.String("symbol", symbol), applogger.Error(err))
			continue
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// TickerPrice returns the latest traded price for symbol.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	if !c.limiter.Allow("ticker", c.burst, c.rate) {
		return 0, fmt.Errorf("binance ticker: rate limited")
	}
	raw, err := c.breaker.Execute(func() (interface{}, error) {
		var resp struct {
			Symbol string `json:"symbol"`
			Price  string `json:"price"`
		}
		err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
			Method:      xhttp.MethodGet,
			URL:         c.baseURL + "/api/v3/ticker/price",
			QueryParams: map[string][]string{"symbol": {symbol}},
		}, &resp)
		if err != nil {
			return nil, err
		}
		return resp.Price, nil
	})
	if err != nil {
		return 0, fmt.Errorf("binance ticker %s: %w", symbol, err)
	}
	price, err := strconv.ParseFloat(raw.(string), 64)
	if err != nil {
		return 0, fmt.Errorf("binance ticker %s: parse price: %w", symbol, err)
	}
	return price, nil
}

// parseKline converts one klines row, which Binance serves as a mixed
// array: [openTime, open, high, low, close, volume, ...].
func parseKline(symbol string, tf repository.Timeframe, row []interface{}) (models.Candle, error) {
	var c models.Candle
	if len(row) < 6 {
		return c, fmt.Errorf("kline row too short: %d fields", len(row))
	}
	openMs, ok := row[0].(float64)
	if !ok {
		return c, fmt.Errorf("kline open time not numeric")
	}
	fields := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		s, ok := row[i].(string)
		if !ok {
			return c, fmt.Errorf("kline field %d not a string", i)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return c, fmt.Errorf("kline field %d: %w", i, err)
		}
		fields[i-1] = v
	}
	return models.Candle{
		Exchange:  "binance",
		Symbol:    symbol,
		Timeframe: string(tf),
		OpenTime:  time.UnixMilli(int64(openMs)).UTC(),
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
	}, nil
}

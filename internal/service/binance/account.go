package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	xhttp "QuantPulse/pkg/http"
	applogger "QuantPulse/pkg/logger"
)

// AccountClient performs signed Binance requests for live trading.
// Every request carries a recvWindow-bounded timestamp and an
// HMAC-SHA256 signature over the query string.
type AccountClient struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *xhttp.Client
	log       *applogger.Logger
}

func NewAccountClient(baseURL, apiKey, apiSecret string, log *applogger.Logger) *AccountClient {
	return &AccountClient{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      xhttp.NewClient(xhttp.WithTimeout(10 * time.Second)),
		log:       log,
	}
}

// FreeBalance returns the free amount of one asset on the spot account.
func (a *AccountClient) FreeBalance(ctx context.Context, asset string) (float64, error) {
	var resp struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := a.signedRequest(ctx, xhttp.MethodGet, "/api/v3/account", url.Values{}, &resp); err != nil {
		return 0, fmt.Errorf("binance account: %w", err)
	}
	for _, b := range resp.Balances {
		if b.Asset == asset {
			free, err := strconv.ParseFloat(b.Free, 64)
			if err != nil {
				return 0, fmt.Errorf("binance account: parse balance: %w", err)
			}
			return free, nil
		}
	}
	return 0, nil
}

// MarketOrderResult is the filled outcome of a market order.
type MarketOrderResult struct {
	OrderID     int64
	ExecutedQty float64
	AvgPrice    float64
}

// CreateMarketOrder submits a market order and returns its fill.
func (a *AccountClient) CreateMarketOrder(ctx context.Context, symbol, side string, quantity float64) (MarketOrderResult, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", strings.ToUpper(side))
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(quantity, 'f', -1, 64))

	var resp struct {
		OrderID     int64  `json:"orderId"`
		ExecutedQty string `json:"executedQty"`
		CumQuoteQty string `json:"cummulativeQuoteQty"`
		Status      string `json:"status"`
	}
	if err := a.signedRequest(ctx, xhttp.MethodPost, "/api/v3/order", params, &resp); err != nil {
		return MarketOrderResult{}, fmt.Errorf("binance order %s %s: %w", side, symbol, err)
	}

	qty, err := strconv.ParseFloat(resp.ExecutedQty, 64)
	if err != nil {
		return MarketOrderResult{}, fmt.Errorf("binance order: parse executedQty: %w", err)
	}
	quote, err := strconv.ParseFloat(resp.CumQuoteQty, 64)
	if err != nil {
		return MarketOrderResult{}, fmt.Errorf("binance order: parse quote qty: %w", err)
	}
	out := MarketOrderResult{OrderID: resp.OrderID, ExecutedQty: qty}
	if qty > 0 {
		out.AvgPrice = quote / qty
	}
	a.log.Info("live order filled",
		applogger.String("symbol", symbol),
		applogger.String("side", side),
		applogger.Any("order_id", resp.OrderID))
	return out, nil
}

func (a *AccountClient) signedRequest(ctx context.Context, method, path string, params url.Values, dest interface{}) error {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")
	query := params.Encode()

	mac := hmac.New(sha256.New, []byte(a.apiSecret))
	mac.Write([]byte(query))
	query += "&signature=" + hex.EncodeToString(mac.Sum(nil))

	return a.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  method,
		URL:     a.baseURL + path + "?" + query,
		Headers: map[string]string{"X-MBX-APIKEY": a.apiKey},
	}, dest)
}

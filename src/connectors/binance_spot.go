// REST client for Binance spot: market data, signed order endpoints, filters.
package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const (
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second

	defaultBinanceBaseURL = "https://api.binance.com"
	defaultRecvWindow     = 5000
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	TimeInForceGTC = "GTC"
	TimeInForceIOC = "IOC"
)

// Binance order statuses.
const (
	OrderStatusNew             = "NEW"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusFilled          = "FILLED"
	OrderStatusCanceled        = "CANCELED"
	OrderStatusPendingCancel   = "PENDING_CANCEL"
	OrderStatusRejected        = "REJECTED"
	OrderStatusExpired         = "EXPIRED"
	OrderStatusExpiredInMatch  = "EXPIRED_IN_MATCH"
)

// APIError is the error envelope Binance returns with non-2xx responses.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Code       int    `json:"code"`
	Msg        string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance HTTP %d: %s (code=%d) msg=%s", e.HTTPStatus, GetErrorMsg(e.Code), e.Code, e.Msg)
}

// OrderResult is the subset of the order payload the engine reads.
type OrderResult struct {
	Symbol              string          `json:"symbol"`
	OrderID             int64           `json:"orderId"`
	ClientOrderID       string          `json:"clientOrderId"`
	Price               decimal.Decimal `json:"price"`
	OrigQty             decimal.Decimal `json:"origQty"`
	ExecutedQty         decimal.Decimal `json:"executedQty"`
	CummulativeQuoteQty decimal.Decimal `json:"cummulativeQuoteQty"`
	Status              string          `json:"status"`
	Type                string          `json:"type"`
	Side                string          `json:"side"`
}

func (o *OrderResult) ID() string { return strconv.FormatInt(o.OrderID, 10) }

// AvgPrice is quote spent over base filled, zero when nothing filled.
func (o *OrderResult) AvgPrice() decimal.Decimal {
	if !o.ExecutedQty.IsPositive() {
		return decimal.Zero
	}
	return o.CummulativeQuoteQty.Div(o.ExecutedQty)
}

// SymbolFilters are the LOT_SIZE, PRICE_FILTER and NOTIONAL constraints of a symbol.
type SymbolFilters struct {
	Symbol      string
	StepSize    decimal.Decimal
	MinQty      decimal.Decimal
	TickSize    decimal.Decimal
	MinNotional decimal.Decimal
}

// RoundQty floors qty to the lot step.
func (f SymbolFilters) RoundQty(qty decimal.Decimal) decimal.Decimal {
	if !f.StepSize.IsPositive() {
		return qty
	}
	return qty.Div(f.StepSize).Floor().Mul(f.StepSize)
}

// RoundPrice floors price to the tick size.
func (f SymbolFilters) RoundPrice(price decimal.Decimal) decimal.Decimal {
	if !f.TickSize.IsPositive() {
		return price
	}
	return price.Div(f.TickSize).Floor().Mul(f.TickSize)
}

type BinanceSpotClient struct {
	apiKey    string
	apiSecret string
	baseURL   string
	http      *resty.Client
	now       func() time.Time

	filtersMu sync.Mutex
	filters   map[string]SymbolFilters
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}

	code := r.StatusCode()
	if code >= 500 && code <= 599 {
		return true
	}
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

func NewBinanceSpotClient(apiKey, apiSecret, baseURL string) *BinanceSpotClient {
	if baseURL == "" {
		baseURL = defaultBinanceBaseURL
		logger.WithField("baseURL", baseURL).Warn("No base URL provided, using default")
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &BinanceSpotClient{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		http:      httpClient,
		now:       time.Now,
		filters:   make(map[string]SymbolFilters),
	}
}

func signQuery(query, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func newClientOrderID() string {
	return "me-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

func (c *BinanceSpotClient) doRequest(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}

	req := c.http.R().SetContext(ctx)
	query := params.Encode()
	if signed {
		params.Set("recvWindow", strconv.Itoa(defaultRecvWindow))
		params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		query = params.Encode()
		query += "&signature=" + signQuery(query, c.apiSecret)
		req = req.SetHeader("X-MBX-APIKEY", c.apiKey)
	}
	// The query goes on the URL verbatim: re-encoding would reorder it and
	// put the signature out of place.
	target := path
	if query != "" {
		target += "?" + query
	}

	resp, err := req.Execute(method, target)
	if err != nil {
		return nil, err
	}

	raw := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		apiErr := &APIError{HTTPStatus: resp.StatusCode()}
		if jsonErr := json.Unmarshal(raw, apiErr); jsonErr != nil || apiErr.Msg == "" {
			apiErr.Msg = string(raw)
		}
		return nil, apiErr
	}
	return raw, nil
}

// LatestPrice returns the last traded price from /api/v3/ticker/price.
func (c *BinanceSpotClient) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	raw, err := c.doRequest(ctx, http.MethodGet, "/api/v3/ticker/price", url.Values{"symbol": {symbol}}, false)
	if err != nil {
		return decimal.Zero, err
	}

	var ticker struct {
		Symbol string          `json:"symbol"`
		Price  decimal.Decimal `json:"price"`
	}
	if err := json.Unmarshal(raw, &ticker); err != nil {
		return decimal.Zero, fmt.Errorf("decode ticker %s: %w", symbol, err)
	}
	if !ticker.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("ticker %s returned non-positive price %s", symbol, ticker.Price)
	}
	return ticker.Price, nil
}

// FreeBalance returns the unlocked balance of asset (e.g. "USDT").
func (c *BinanceSpotClient) FreeBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	raw, err := c.doRequest(ctx, http.MethodGet, "/api/v3/account", nil, true)
	if err != nil {
		return decimal.Zero, err
	}

	var account struct {
		Balances []struct {
			Asset  string          `json:"asset"`
			Free   decimal.Decimal `json:"free"`
			Locked decimal.Decimal `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(raw, &account); err != nil {
		return decimal.Zero, fmt.Errorf("decode account: %w", err)
	}
	for _, b := range account.Balances {
		if b.Asset == asset {
			return b.Free, nil
		}
	}
	return decimal.Zero, nil
}

// SymbolFilters fetches and caches exchangeInfo filters for symbol.
func (c *BinanceSpotClient) SymbolFilters(ctx context.Context, symbol string) (SymbolFilters, error) {
	c.filtersMu.Lock()
	cached, ok := c.filters[symbol]
	c.filtersMu.Unlock()
	if ok {
		return cached, nil
	}

	raw, err := c.doRequest(ctx, http.MethodGet, "/api/v3/exchangeInfo", url.Values{"symbol": {symbol}}, false)
	if err != nil {
		return SymbolFilters{}, err
	}

	var info struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType  string          `json:"filterType"`
				StepSize    decimal.Decimal `json:"stepSize"`
				MinQty      decimal.Decimal `json:"minQty"`
				TickSize    decimal.Decimal `json:"tickSize"`
				MinNotional decimal.Decimal `json:"minNotional"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return SymbolFilters{}, fmt.Errorf("decode exchangeInfo %s: %w", symbol, err)
	}
	if len(info.Symbols) == 0 {
		return SymbolFilters{}, fmt.Errorf("symbol %s not listed", symbol)
	}

	out := SymbolFilters{Symbol: symbol}
	for _, f := range info.Symbols[0].Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			out.StepSize = f.StepSize
			out.MinQty = f.MinQty
		case "PRICE_FILTER":
			out.TickSize = f.TickSize
		case "NOTIONAL", "MIN_NOTIONAL":
			out.MinNotional = f.MinNotional
		}
	}

	c.filtersMu.Lock()
	c.filters[symbol] = out
	c.filtersMu.Unlock()
	return out, nil
}

func (c *BinanceSpotClient) placeOrder(ctx context.Context, params url.Values) (*OrderResult, error) {
	params.Set("newClientOrderId", newClientOrderID())
	params.Set("newOrderRespType", "RESULT")

	raw, err := c.doRequest(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		return nil, err
	}

	var order OrderResult
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"symbol":   order.Symbol,
		"side":     order.Side,
		"type":     order.Type,
		"status":   order.Status,
		"orderId":  order.OrderID,
		"executed": order.ExecutedQty.String(),
	}).Info("binance order placed")
	return &order, nil
}

// SubmitMarket sends a MARKET order for a base quantity.
func (c *BinanceSpotClient) SubmitMarket(ctx context.Context, symbol, side string, qty decimal.Decimal) (*OrderResult, error) {
	if !qty.IsPositive() {
		return nil, errors.New("market order quantity must be positive")
	}
	return c.placeOrder(ctx, url.Values{
		"symbol":   {symbol},
		"side":     {side},
		"type":     {"MARKET"},
		"quantity": {qty.String()},
	})
}

// SubmitLimit sends a LIMIT order; tif is GTC for resting orders or IOC for
// slippage-bounded takers.
func (c *BinanceSpotClient) SubmitLimit(ctx context.Context, symbol, side string, qty, price decimal.Decimal, tif string) (*OrderResult, error) {
	if !qty.IsPositive() || !price.IsPositive() {
		return nil, errors.New("limit order quantity and price must be positive")
	}
	if tif == "" {
		tif = TimeInForceGTC
	}
	return c.placeOrder(ctx, url.Values{
		"symbol":      {symbol},
		"side":        {side},
		"type":        {"LIMIT"},
		"timeInForce": {tif},
		"quantity":    {qty.String()},
		"price":       {price.String()},
	})
}

func (c *BinanceSpotClient) OrderStatus(ctx context.Context, symbol, orderID string) (*OrderResult, error) {
	raw, err := c.doRequest(ctx, http.MethodGet, "/api/v3/order", url.Values{
		"symbol":  {symbol},
		"orderId": {orderID},
	}, true)
	if err != nil {
		return nil, err
	}

	var order OrderResult
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("decode order status: %w", err)
	}
	return &order, nil
}

func (c *BinanceSpotClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/api/v3/order", url.Values{
		"symbol":  {symbol},
		"orderId": {orderID},
	}, true)
	return err
}

package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(baseURL string) *BinanceSpotClient {
	restyClient := resty.New()
	restyClient.SetBaseURL(baseURL)

	return &BinanceSpotClient{
		apiKey:    "test-key",
		apiSecret: "test-secret",
		baseURL:   baseURL,
		http:      restyClient,
		now:       func() time.Time { return fixedNow },
		filters:   make(map[string]SymbolFilters),
	}
}

func TestIsRetryableResp(t *testing.T) {
	cases := []struct {
		name string
		resp *resty.Response
		err  error
		want bool
	}{
		{name: "error present", err: errors.New("boom"), want: true},
		{name: "server error", resp: fakeResponse(500), want: true},
		{name: "too many requests", resp: fakeResponse(429), want: true},
		{name: "timeout", resp: fakeResponse(408), want: true},
		{name: "bad request", resp: fakeResponse(400), want: false},
		{name: "ok response", resp: fakeResponse(200), want: false},
		{name: "nil resp", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isRetryableResp(tc.resp, tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func fakeResponse(code int) *resty.Response {
	return &resty.Response{RawResponse: &http.Response{StatusCode: code}}
}

func TestSignQuery(t *testing.T) {
	query := "symbol=BTCUSDT&side=BUY&timestamp=1"
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(query))
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, signQuery(query, "secret"))
}

func TestLatestPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Empty(t, r.Header.Get("X-MBX-APIKEY"), "public endpoint must not be signed")
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"64123.45000000"}`))
	}))
	defer server.Close()

	price, err := newTestClient(server.URL).LatestPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, price.Equal(d("64123.45")))
}

func TestSubmitMarketSignsRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/order", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-MBX-APIKEY"))

		q := r.URL.Query()
		assert.Equal(t, "MARKET", q.Get("type"))
		assert.Equal(t, "BUY", q.Get("side"))
		assert.Equal(t, "0.015", q.Get("quantity"))
		assert.Equal(t, "1740830400000", q.Get("timestamp"))
		assert.True(t, strings.HasPrefix(q.Get("newClientOrderId"), "me-"))

		raw := r.URL.RawQuery
		idx := strings.LastIndex(raw, "&signature=")
		require.Greater(t, idx, 0)
		assert.Equal(t, signQuery(raw[:idx], "test-secret"), raw[idx+len("&signature="):])

		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","orderId":77,"clientOrderId":"me-x","price":"0.00000000",
			"origQty":"0.01500000","executedQty":"0.01500000","cummulativeQuoteQty":"960.00000000",
			"status":"FILLED","type":"MARKET","side":"BUY"}`))
	}))
	defer server.Close()

	order, err := newTestClient(server.URL).SubmitMarket(context.Background(), "BTCUSDT", SideBuy, d("0.015"))
	require.NoError(t, err)
	assert.Equal(t, "77", order.ID())
	assert.Equal(t, OrderStatusFilled, order.Status)
	assert.True(t, order.AvgPrice().Equal(d("64000")))
}

func TestSubmitLimitValidation(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1")
	_, err := c.SubmitLimit(context.Background(), "BTCUSDT", SideBuy, d("0"), d("100"), TimeInForceGTC)
	require.Error(t, err)
	_, err = c.SubmitMarket(context.Background(), "BTCUSDT", SideBuy, d("-1"))
	require.Error(t, err)
}

func TestOrderStatusAndCancel(t *testing.T) {
	var cancelled bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "42", r.URL.Query().Get("orderId"))
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","orderId":42,"status":"PARTIALLY_FILLED",
				"executedQty":"0.25","cummulativeQuoteQty":"500","origQty":"1","price":"2000"}`))
		case http.MethodDelete:
			cancelled = true
			_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","orderId":42,"status":"CANCELED"}`))
		}
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	order, err := c.OrderStatus(context.Background(), "ETHUSDT", "42")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPartiallyFilled, order.Status)
	assert.True(t, order.AvgPrice().Equal(d("2000")))

	require.NoError(t, c.CancelOrder(context.Background(), "ETHUSDT", "42"))
	assert.True(t, cancelled)
}

func TestAPIErrorDecoding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-2013,"msg":"Order does not exist."}`))
	}))
	defer server.Close()

	err := newTestClient(server.URL).CancelOrder(context.Background(), "ETHUSDT", "1")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, -2013, apiErr.Code)
	assert.Equal(t, "NO_SUCH_ORDER", GetErrorMsg(apiErr.Code))
	assert.True(t, IsOrderGone(err))
	assert.False(t, IsOrderGone(errors.New("other")))
}

func TestSymbolFiltersAreCached(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"symbols":[{"symbol":"SOLUSDT","filters":[
			{"filterType":"PRICE_FILTER","minPrice":"0.01","maxPrice":"10000","tickSize":"0.01"},
			{"filterType":"LOT_SIZE","minQty":"0.001","maxQty":"9000","stepSize":"0.001"},
			{"filterType":"NOTIONAL","minNotional":"5.00000000","applyMinToMarket":true},
			{"filterType":"MAX_NUM_ORDERS","maxNumOrders":200}]}]}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	f, err := c.SymbolFilters(context.Background(), "SOLUSDT")
	require.NoError(t, err)
	_, err = c.SymbolFilters(context.Background(), "SOLUSDT")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.True(t, f.RoundQty(d("1.23456")).Equal(d("1.234")))
	assert.True(t, f.RoundPrice(d("101.239")).Equal(d("101.23")))
	assert.True(t, f.MinNotional.Equal(d("5")))
}

func TestFreeBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/account", r.URL.Path)
		_, _ = w.Write([]byte(`{"balances":[{"asset":"BTC","free":"0.1","locked":"0"},{"asset":"USDT","free":"1234.5","locked":"10"}]}`))
	}))
	defer server.Close()

	bal, err := newTestClient(server.URL).FreeBalance(context.Background(), "USDT")
	require.NoError(t, err)
	assert.True(t, bal.Equal(d("1234.5")))
}

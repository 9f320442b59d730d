package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentumengine/src/model"
	"momentumengine/src/pending"
	"momentumengine/src/portfolio"
	"momentumengine/src/position"
)

var t0 = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

type fakeBook struct {
	status    portfolio.Status
	positions []position.View
	orders    []pending.Order
	trades    []model.TradeRecord
	snapshots []model.PortfolioSnapshot
	seenNow   time.Time
}

func (f *fakeBook) Status() portfolio.Status { return f.status }
func (f *fakeBook) Positions(now time.Time) []position.View {
	f.seenNow = now
	return f.positions
}
func (f *fakeBook) PendingOrders() []pending.Order       { return f.orders }
func (f *fakeBook) Trades() []model.TradeRecord          { return f.trades }
func (f *fakeBook) Snapshots() []model.PortfolioSnapshot { return f.snapshots }

func serve(h http.Handler, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestPortfolioHandler(t *testing.T) {
	book := &fakeBook{status: portfolio.Status{
		InitialCash:   decimal.NewFromInt(1000),
		TotalValue:    decimal.NewFromInt(1100),
		PositionCount: 2,
	}}

	rr := serve(PortfolioHandler(book), "/portfolio")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "1100", got["total_value"])
	assert.EqualValues(t, 2, got["position_count"])
}

func TestPositionsHandlerUsesClock(t *testing.T) {
	book := &fakeBook{positions: []position.View{{Instrument: "ETHUSDT", HoldingHours: 3}}}

	rr := serve(PositionsHandler(book, func() time.Time { return t0 }), "/positions")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	assert.Equal(t, t0, book.seenNow)

	var got []position.View
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "ETHUSDT", got[0].Instrument)
}

func TestPendingHandler(t *testing.T) {
	order := pending.NewOrder("SOLUSDT", "42", decimal.NewFromInt(20), decimal.NewFromInt(5), decimal.NewFromInt(1), "Breakout", t0, time.Hour)
	book := &fakeBook{orders: []pending.Order{*order}}

	rr := serve(PendingHandler(book), "/pending")
	var got []pending.Order
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "42", got[0].OrderID)
	assert.Equal(t, pending.StatusOpen, got[0].Status)
}

func TestTradesHandlerLimit(t *testing.T) {
	book := &fakeBook{trades: []model.TradeRecord{
		{Symbol: "AUSDT", Side: model.TradeSideBuy},
		{Symbol: "BUSDT", Side: model.TradeSideBuy},
		{Symbol: "AUSDT", Side: model.TradeSideSell},
	}}
	h := TradesHandler(book)

	rr := serve(h, "/trades?limit=2")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var got []model.TradeRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "BUSDT", got[0].Symbol)
	assert.Equal(t, model.TradeSideSell, got[1].Side)

	rr = serve(h, "/trades")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Len(t, got, 3)

	for _, bad := range []string{"abc", "0", "-1", "1001"} {
		rr = serve(h, "/trades?limit="+bad)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("limit %q: expected status 400, got %d", bad, rr.Code)
		}
	}
}

func TestSnapshotsHandlerEmpty(t *testing.T) {
	rr := serve(SnapshotsHandler(&fakeBook{}), "/snapshots?limit=5")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	assert.JSONEq(t, "[]", rr.Body.String())

	rr = serve(SnapshotsHandler(&fakeBook{}), "/snapshots?limit=x")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

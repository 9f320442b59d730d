package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentumengine/src/model"
	"momentumengine/src/pending"
	"momentumengine/src/portfolio"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var at = time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC)

func exitTrade() model.TradeRecord {
	return model.TradeRecord{
		Time:         at,
		Symbol:       "SOLUSDT",
		Side:         model.TradeSideSell,
		Price:        d("57500"),
		Quantity:     d("0.1"),
		Value:        d("5750"),
		PnLPct:       d("0.15"),
		PnLValue:     d("750"),
		HoldingHours: 12.5,
		Reason:       "trailing stop",
	}
}

func TestEventRendering(t *testing.T) {
	e := TradeEvent(exitTrade(), true)
	require.Equal(t, KindPositionClosed, e.Kind)

	md := e.Markdown()
	assert.Contains(t, md, "### [SIM] Position closed SOLUSDT")
	assert.Contains(t, md, "- **PnL**: 750.00 (15.00%)")
	assert.Contains(t, md, "2025-05-02 08:00:00 UTC")

	text := TradeEvent(model.TradeRecord{Symbol: "ETHUSDT", Side: model.TradeSideBuy, Value: d("500")}, false).Text()
	assert.True(t, strings.HasPrefix(text, "[LIVE] Position opened ETHUSDT"))
	assert.Contains(t, text, "Cost: 500.00")

	order := pending.Order{Instrument: "ARBUSDT", OrderID: "42", LimitPrice: d("1.618"), Quantity: d("6"), Status: pending.StatusOpen, ExpiresAt: at}
	placed := OrderEvent(KindOrderPlaced, order, false, at)
	assert.Contains(t, placed.Text(), "Expires: 2025-05-02T08:00:00Z")

	summary := SummaryEvent(portfolio.Status{TotalValue: d("10140"), Exposure: d("0.25"), PendingCount: 1, Reserved: d("970.8")}, false, at)
	assert.Contains(t, summary.Text(), "Exposure: 25.00%")
	assert.Contains(t, summary.Text(), "Pending: 1 (970.80 reserved)")
}

func TestDingTalkPostsMarkdownWithKeyword(t *testing.T) {
	var got dingTalkMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	err := NewDingTalk(srv.URL+"/robot/send?access_token=x", []string{"momentum"}).Notify(context.Background(), TradeEvent(exitTrade(), false))
	require.NoError(t, err)

	assert.Equal(t, "markdown", got.MsgType)
	assert.Equal(t, "[LIVE] Position closed SOLUSDT", got.Markdown.Title)
	assert.True(t, strings.HasSuffix(got.Markdown.Text, "\n\nmomentum"))
}

func TestDingTalkErrCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"errcode":310000,"errmsg":"keywords not in content"}`))
	}))
	defer srv.Close()

	err := NewDingTalk(srv.URL, nil).Notify(context.Background(), StatusEvent("started", "", false, at))
	if !errors.Is(err, ErrDingTalk) {
		t.Fatalf("expected ErrDingTalk, got %v", err)
	}
	assert.Contains(t, err.Error(), "310000")
}

func TestTelegramSendsText(t *testing.T) {
	var chatID, text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"engine","username":"engine_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			assert.NoError(t, r.ParseForm())
			chatID, text = r.PostForm.Get("chat_id"), r.PostForm.Get("text")
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":99,"type":"private"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tg, err := NewTelegram("token", 99, srv.URL+"/bot%s/%s")
	require.NoError(t, err)
	require.NoError(t, tg.Notify(context.Background(), AlertEvent("ledger halted", errors.New("cash -1"), false, at)))

	assert.Equal(t, "99", chatID)
	assert.Contains(t, text, "[LIVE] ledger halted")
	assert.Contains(t, text, "Error: cash -1")
}

type countingSink struct {
	calls int
	err   error
}

func (c *countingSink) Notify(context.Context, Event) error {
	c.calls++
	return c.err
}

func TestMultiAndSafe(t *testing.T) {
	ok := &countingSink{}
	broken := &countingSink{err: errors.New("down")}

	err := Multi{broken, ok}.Notify(context.Background(), Event{})
	require.Error(t, err)
	assert.Equal(t, 1, ok.calls, "a failing sink must not stop the others")

	logger, hook := logrustest.NewNullLogger()
	n := Safe(Multi{broken}, logrus.NewEntry(logger))
	require.NoError(t, n.Notify(context.Background(), Event{Kind: KindRiskAlert, Title: "x"}))
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestFromConfigWithoutSinks(t *testing.T) {
	n, err := FromConfig(Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, n.Notify(context.Background(), Event{}))
}

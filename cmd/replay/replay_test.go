package replay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentumengine/src/backtest"
	"momentumengine/src/feed"
	"momentumengine/src/model"
	"momentumengine/src/risk"
)

var t0 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

type fakeLoader struct {
	candles  []model.Candle
	err      error
	symbols  []string
	interval string
}

func (f *fakeLoader) LoadRange(_ context.Context, symbols []string, interval string, _, _ time.Time) ([]model.Candle, error) {
	f.symbols = symbols
	f.interval = interval
	return f.candles, f.err
}

func bars(symbol string, n int) []model.Candle {
	out := make([]model.Candle, 0, n)
	for i := 0; i < n; i++ {
		c := decimal.NewFromInt(100)
		out = append(out, model.Candle{
			Symbol: symbol, Interval: "15m", Datetime: t0.Add(time.Duration(i) * 15 * time.Minute),
			Open: c, High: c, Low: c, Close: c,
		})
	}
	return out
}

func newReplay(loader *fakeLoader, cash string) *Replay {
	log, _ := logrustest.NewNullLogger()
	return &Replay{
		Log:     logrus.NewEntry(log),
		Config:  backtest.Config{InitialCash: cash, Interval: "15m", Symbols: []string{" ethusdt", "", "BTCUSDT"}, RebalanceEvery: 4},
		Policy:  risk.DefaultBacktestPolicy(),
		Candles: loader,
		Signals: feed.Static{},
	}
}

func TestParseWindow(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	from, to, err := ParseWindow("", "", 0, now)
	require.NoError(t, err)
	assert.Equal(t, now, to)
	assert.Equal(t, now.AddDate(0, 0, -30), from)

	from, to, err = ParseWindow("2025-06-01T00:00:00Z", "2025-06-02T00:00:00Z", 7, now)
	require.NoError(t, err)
	assert.Equal(t, t0, from)
	assert.Equal(t, t0.Add(24*time.Hour), to)

	_, _, err = ParseWindow("yesterday", "", 0, now)
	assert.ErrorIs(t, err, ErrWindow)

	_, _, err = ParseWindow("2025-06-02T00:00:00Z", "2025-06-01T00:00:00Z", 0, now)
	assert.ErrorIs(t, err, ErrWindow)
}

func TestReplayStart(t *testing.T) {
	loader := &fakeLoader{candles: bars("ETHUSDT", 8)}

	report, err := newReplay(loader, "5000").Start(context.Background(), t0, t0.Add(2*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, []string{"ETHUSDT", "BTCUSDT"}, loader.symbols)
	assert.Equal(t, "15m", loader.interval)
	assert.Equal(t, 8, report.Ticks)
	assert.Empty(t, report.Trades)
	assert.True(t, report.Summary.FinalValue.Equal(decimal.NewFromInt(5000)))
}

func TestReplayStartErrors(t *testing.T) {
	_, err := newReplay(&fakeLoader{}, "zero").Start(context.Background(), t0, t0.Add(time.Hour))
	require.Error(t, err)

	_, err = newReplay(&fakeLoader{err: errors.New("db down")}, "100").Start(context.Background(), t0, t0.Add(time.Hour))
	require.ErrorContains(t, err, "db down")

	_, err = newReplay(&fakeLoader{}, "100").Start(context.Background(), t0, t0.Add(time.Hour))
	assert.ErrorIs(t, err, backtest.ErrNoData)
}

package executors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentumengine/src/execution"
	"momentumengine/src/exitrule"
	"momentumengine/src/model"
	"momentumengine/src/notify"
	"momentumengine/src/portfolio"
	"momentumengine/src/risk"
	"momentumengine/src/signal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var t0 = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

type quotes struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
}

func (q *quotes) set(instrument, price string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prices[instrument] = d(price)
}

func (q *quotes) unset(instrument string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.prices, instrument)
}

func (q *quotes) LatestPrice(_ context.Context, instrument string) (decimal.Decimal, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.prices[instrument]
	if !ok {
		return decimal.Zero, fmt.Errorf("no quote for %s", instrument)
	}
	return p, nil
}

type scriptedPoller struct {
	batches [][]signal.Signal
	err     error
}

func (s *scriptedPoller) Poll(context.Context) ([]signal.Signal, error) {
	if len(s.batches) == 0 {
		return nil, s.err
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, s.err
}

type tradeSink struct {
	batches [][]model.TradeRecord
	fail    bool
}

func (s *tradeSink) CreateBatch(_ context.Context, trades []model.TradeRecord) error {
	if s.fail {
		return errors.New("db down")
	}
	s.batches = append(s.batches, trades)
	return nil
}

type snapshotSink struct{ n int }

func (s *snapshotSink) Create(context.Context, *model.PortfolioSnapshot) error {
	s.n++
	return nil
}

type exceptionSink struct{ rows []*model.Exception }

func (s *exceptionSink) Create(_ context.Context, exc *model.Exception) error {
	s.rows = append(s.rows, exc)
	return nil
}

type eventLog struct {
	events []notify.Event
	onKind map[notify.Kind]func()
}

func (e *eventLog) Notify(_ context.Context, ev notify.Event) error {
	e.events = append(e.events, ev)
	if fn := e.onKind[ev.Kind]; fn != nil {
		fn()
	}
	return nil
}

func (e *eventLog) kinds() []notify.Kind {
	out := make([]notify.Kind, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Kind)
	}
	return out
}

func breakout(instrument string, open, close, ratio string) signal.Signal {
	return signal.VolumeBreakout{
		Base: signal.Base{
			Symbol:    instrument,
			Price:     d(close),
			SignalBar: signal.Bar{OpenTime: t0, Open: d(open), Close: d(close)},
			At:        t0,
		},
		VolumeRatio: d(ratio),
	}
}

type harness struct {
	loop       *Loop
	book       *portfolio.Portfolio
	quotes     *quotes
	poller     *scriptedPoller
	trades     *tradeSink
	snapshots  *snapshotSink
	exceptions *exceptionSink
	events     *eventLog
	now        time.Time
}

func newHarness(t *testing.T, cfg Config, policy risk.Policy, exec func(*quotes) execution.Executor) *harness {
	t.Helper()
	logger, _ := logrustest.NewNullLogger()
	h := &harness{
		quotes:     &quotes{prices: map[string]decimal.Decimal{}},
		poller:     &scriptedPoller{},
		trades:     &tradeSink{},
		snapshots:  &snapshotSink{},
		exceptions: &exceptionSink{},
		events:     &eventLog{onKind: map[notify.Kind]func(){}},
		now:        t0,
	}
	if exec == nil {
		exec = func(q *quotes) execution.Executor { return execution.NewPaper(q) }
	}
	h.book = portfolio.New(d("1000"), policy, exec(h.quotes), logrus.NewEntry(logger)).WithRun("run-1", cfg.Mode())
	h.loop = NewLoop(cfg, Deps{
		Book:       h.book,
		Signals:    h.poller,
		Quoter:     h.quotes,
		Trades:     h.trades,
		Snapshots:  h.snapshots,
		Exceptions: h.exceptions,
		Notifier:   h.events,
		Log:        logrus.NewEntry(logger),
		Now:        func() time.Time { return h.now },
	})
	return h
}

func simConfig() Config {
	return Config{
		StrategyPeriod:  time.Hour,
		RiskPeriod:      time.Hour,
		DataPeriod:      time.Hour,
		Simulation:      true,
		ShutdownTimeout: time.Second,
	}
}

func TestStrategyTickOpensAndPersists(t *testing.T) {
	h := newHarness(t, simConfig(), risk.DefaultLivePolicy(), nil)
	h.poller.batches = [][]signal.Signal{{breakout("SOLUSDT", "100", "100", "10")}}
	h.quotes.set("SOLUSDT", "100")

	require.NoError(t, h.loop.StrategyTick(context.Background()))

	require.True(t, h.book.Holds("SOLUSDT"))
	require.Len(t, h.trades.batches, 1)
	buy := h.trades.batches[0][0]
	assert.Equal(t, model.TradeSideBuy, buy.Side)
	assert.Equal(t, ModePaper, buy.Mode)
	assert.True(t, buy.Value.Equal(d("100")), "live cap 2 sizes a strength 10 signal at a tenth of capital")
	assert.Equal(t, 1, h.snapshots.n)
	assert.Equal(t, []notify.Kind{notify.KindPositionOpened, notify.KindPortfolioSummary}, h.events.kinds())
	assert.True(t, h.events.events[0].Simulation)
}

func TestStrategyTickRequotesEntries(t *testing.T) {
	h := newHarness(t, simConfig(), risk.DefaultLivePolicy(), nil)
	h.poller.batches = [][]signal.Signal{{
		breakout("SOLUSDT", "100", "100", "10"),
		breakout("ETHUSDT", "3000", "3000", "8"),
	}}
	h.quotes.set("SOLUSDT", "120")

	require.NoError(t, h.loop.StrategyTick(context.Background()))

	trades := h.book.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "SOLUSDT", trades[0].Symbol)
	assert.True(t, trades[0].Price.Equal(d("120")), "entry must trade the current quote, got %s", trades[0].Price)
	assert.False(t, h.book.Holds("ETHUSDT"), "no quote, no entry")
	require.Len(t, h.exceptions.rows, 1)
	assert.Equal(t, "Enter", h.exceptions.rows[0].Method)
}

func TestRiskTickClosesOnStopLoss(t *testing.T) {
	h := newHarness(t, simConfig(), risk.DefaultLivePolicy(), nil)
	h.poller.batches = [][]signal.Signal{{breakout("SOLUSDT", "100", "100", "10")}}
	h.quotes.set("SOLUSDT", "100")
	require.NoError(t, h.loop.StrategyTick(context.Background()))

	h.quotes.set("SOLUSDT", "90")
	h.now = t0.Add(30 * time.Minute)
	require.NoError(t, h.loop.RiskTick(context.Background()))

	assert.False(t, h.book.Holds("SOLUSDT"))
	require.Len(t, h.trades.batches, 2, "each tick persists only the new ledger tail")
	sell := h.trades.batches[1][0]
	assert.Equal(t, string(exitrule.ReasonStopLoss), sell.Reason)
	assert.True(t, sell.PnLValue.Equal(d("-10")))
	assert.Equal(t, notify.KindPositionClosed, h.events.events[len(h.events.events)-1].Kind)
}

func TestRiskTickRecordsMissingQuote(t *testing.T) {
	h := newHarness(t, simConfig(), risk.DefaultLivePolicy(), nil)
	h.poller.batches = [][]signal.Signal{{breakout("SOLUSDT", "100", "100", "10")}}
	h.quotes.set("SOLUSDT", "100")
	require.NoError(t, h.loop.StrategyTick(context.Background()))
	require.Empty(t, h.exceptions.rows)
	h.quotes.unset("SOLUSDT")

	require.NoError(t, h.loop.RiskTick(context.Background()))
	require.Len(t, h.exceptions.rows, 1)
	exc := h.exceptions.rows[0]
	assert.Equal(t, "LatestPrice", exc.Method)
	assert.Equal(t, "SOLUSDT", exc.Instrument)
	assert.Equal(t, "live", exc.Service)
	assert.True(t, h.book.Holds("SOLUSDT"))
}

func TestTradesRetriedAfterSinkFailure(t *testing.T) {
	h := newHarness(t, simConfig(), risk.DefaultLivePolicy(), nil)
	h.trades.fail = true
	h.poller.batches = [][]signal.Signal{{breakout("SOLUSDT", "100", "100", "10")}}
	h.quotes.set("SOLUSDT", "100")
	require.NoError(t, h.loop.StrategyTick(context.Background()))
	require.Empty(t, h.trades.batches)

	h.trades.fail = false
	h.quotes.set("SOLUSDT", "101")
	require.NoError(t, h.loop.RiskTick(context.Background()))
	require.Len(t, h.trades.batches, 1)
	assert.Len(t, h.trades.batches[0], 1)
}

func TestPivotOrderFillsOnPaper(t *testing.T) {
	policy := risk.DefaultLivePolicy()
	policy.EntryMode = risk.EntryPivot
	h := newHarness(t, simConfig(), policy, nil)
	h.poller.batches = [][]signal.Signal{{breakout("ARBUSDT", "1", "2", "10")}}
	h.quotes.set("ARBUSDT", "1.9")

	require.NoError(t, h.loop.StrategyTick(context.Background()))
	require.Len(t, h.book.PendingOrders(), 1)
	assert.True(t, h.book.PendingOrders()[0].LimitPrice.Equal(d("1.618")))
	assert.Contains(t, h.events.kinds(), notify.KindOrderPlaced)

	h.quotes.set("ARBUSDT", "1.6")
	h.now = t0.Add(time.Hour)
	require.NoError(t, h.loop.RiskTick(context.Background()))

	assert.Empty(t, h.book.PendingOrders())
	require.True(t, h.book.Holds("ARBUSDT"))
	trades := h.book.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "pivot filled", trades[0].Reason)
	assert.True(t, trades[0].Price.Equal(d("1.618")))
}

func TestRunLiquidatesOnShutdown(t *testing.T) {
	cfg := simConfig()
	cfg.LiquidateOnShutdown = true
	h := newHarness(t, cfg, risk.DefaultLivePolicy(), nil)
	h.poller.batches = [][]signal.Signal{{breakout("SOLUSDT", "100", "100", "10")}}
	h.quotes.set("SOLUSDT", "100")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.events.onKind[notify.KindPortfolioSummary] = cancel

	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("loop did not stop after cancel")
	}

	assert.False(t, h.book.Holds("SOLUSDT"))
	trades := h.book.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, string(exitrule.ReasonShutdown), trades[1].Reason)
	kinds := h.events.kinds()
	assert.Equal(t, notify.KindSystemStatus, kinds[0])
	assert.Equal(t, notify.KindSystemStatus, kinds[len(kinds)-1])
}

type overpayingBuyer struct{ execution.Immediate }

func (overpayingBuyer) Buy(_ context.Context, _ string, qty, price decimal.Decimal) (execution.Fill, error) {
	return execution.Fill{Quantity: qty.Mul(decimal.NewFromInt(100)), Price: price}, nil
}

func TestRunHaltsOnLedgerViolation(t *testing.T) {
	h := newHarness(t, simConfig(), risk.DefaultLivePolicy(), func(*quotes) execution.Executor { return overpayingBuyer{} })
	h.poller.batches = [][]signal.Signal{{breakout("SOLUSDT", "100", "100", "10")}}
	h.quotes.set("SOLUSDT", "100")

	err := h.loop.Run(context.Background())
	require.ErrorIs(t, err, portfolio.ErrLedgerCorrupted)

	last := h.exceptions.rows[len(h.exceptions.rows)-1]
	assert.Equal(t, model.ExceptionLevelFatal, last.Level)
	assert.Equal(t, notify.KindRiskAlert, h.events.events[len(h.events.events)-1].Kind)
}

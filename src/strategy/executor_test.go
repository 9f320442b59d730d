package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"

	"momentumengine/src/execution"
	"momentumengine/src/portfolio"
	"momentumengine/src/risk"
	"momentumengine/src/signal"
)

var t0 = time.Date(2025, 3, 1, 4, 0, 0, 0, time.UTC)

func breakout(instrument string, price, ratio int64) signal.Signal {
	return signal.VolumeBreakout{
		Base: signal.Base{
			Symbol:    instrument,
			Price:     decimal.NewFromInt(price),
			SignalBar: signal.Bar{OpenTime: t0, Open: decimal.NewFromInt(price), Close: decimal.NewFromInt(price)},
			At:        t0,
		},
		VolumeRatio: decimal.NewFromInt(ratio),
	}
}

func newExecutor(t *testing.T, policy risk.Policy) (*Executor, *portfolio.Portfolio, *logrustest.Hook) {
	t.Helper()
	logger, hook := logrustest.NewNullLogger()
	book := portfolio.New(decimal.NewFromInt(10000), policy, execution.Immediate{}, logrus.NewEntry(logger))
	exec := NewExecutor(logrus.NewEntry(logger), book, policy).WithClock(func() time.Time { return t0 })
	return exec, book, hook
}

func TestExecutorOpensStrongestFirst(t *testing.T) {
	exec, book, hook := newExecutor(t, risk.DefaultBacktestPolicy())

	result := exec.Execute(context.Background(), []signal.Signal{
		breakout("ETHUSDT", 3000, 5),
		breakout("SOLUSDT", 100, 20),
		breakout("SOLUSDT", 100, 6),
	})

	if len(result.Errors) != 0 {
		t.Fatalf("expected no execution errors, got %v", result.Errors)
	}
	if len(result.Opened) != 2 {
		t.Fatalf("expected two positions, got %d", len(result.Opened))
	}
	if result.Opened[0].Symbol != "SOLUSDT" || result.Opened[1].Symbol != "ETHUSDT" {
		t.Fatalf("positions not opened strongest first: %+v", result.Opened)
	}
	// SOL at strength 20 takes the 15% cap.
	if !result.Opened[0].Value.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("expected 1500 notional for SOLUSDT, got %s", result.Opened[0].Value)
	}
	if book.Status().PositionCount != 2 {
		t.Fatalf("expected 2 open positions, got %d", book.Status().PositionCount)
	}
	if !result.Opened[0].Time.Equal(t0) {
		t.Fatalf("expected entry at the pinned clock, got %s", result.Opened[0].Time)
	}
	if len(hook.AllEntries()) == 0 {
		t.Fatalf("expected executor to emit logrus entries")
	}
}

func TestExecutorSkipsBenchmarkAndCollectsRejections(t *testing.T) {
	exec, book, _ := newExecutor(t, risk.DefaultBacktestPolicy())

	first := exec.Execute(context.Background(), []signal.Signal{breakout("BTCUSDT", 50000, 10), breakout("ETHUSDT", 3000, 10)})
	if len(first.Opened) != 1 || first.Opened[0].Symbol != "ETHUSDT" {
		t.Fatalf("expected only ETHUSDT to open, got %+v", first.Opened)
	}

	second := exec.Execute(context.Background(), []signal.Signal{breakout("ETHUSDT", 3100, 10)})
	if len(second.Rejected) != 1 || second.Rejected[0].Rejection.Code != portfolio.RejectAlreadyHeld {
		t.Fatalf("expected already held rejection, got %+v", second.Rejected)
	}
	if book.Status().PositionCount != 1 {
		t.Fatalf("expected 1 open position")
	}
}

func TestExecutorStopsAtExposureCap(t *testing.T) {
	policy := risk.DefaultBacktestPolicy()
	policy.MaxTotalExposure = decimal.RequireFromString("0.3")
	exec, _, _ := newExecutor(t, policy)

	result := exec.Execute(context.Background(), []signal.Signal{
		breakout("AAAUSDT", 100, 50),
		breakout("BBBUSDT", 100, 49),
		breakout("CCCUSDT", 100, 48),
	})

	if len(result.Opened) != 2 {
		t.Fatalf("expected two 15%% positions under a 30%% cap, got %d", len(result.Opened))
	}
	if len(result.Rejected) != 0 {
		t.Fatalf("expected the pass to stop rather than reject, got %+v", result.Rejected)
	}
	last := result.Logs[len(result.Logs)-1]
	if last.Instrument != "CCCUSDT" || last.Level != "info" {
		t.Fatalf("expected exposure stop log for CCCUSDT, got %+v", last)
	}
}

type failingBook struct {
	calls int
}

func (f *failingBook) Enter(context.Context, signal.Signal, time.Time) (portfolio.EntryOutcome, error) {
	f.calls++
	return portfolio.EntryOutcome{}, errors.New("boom")
}

func (f *failingBook) Status() portfolio.Status { return portfolio.Status{} }

func TestExecutorContinuesAfterErrors(t *testing.T) {
	book := &failingBook{}
	exec := NewExecutor(nil, book, risk.DefaultBacktestPolicy())

	result := exec.Execute(context.Background(), []signal.Signal{breakout("AAAUSDT", 1, 5), breakout("BBBUSDT", 1, 5)})

	if len(result.Errors) != 2 || book.calls != 2 {
		t.Fatalf("expected both entries attempted and failed, got %d errors / %d calls", len(result.Errors), book.calls)
	}
	if result.Logs[0].Level != "error" {
		t.Fatalf("expected error log entry, got %+v", result.Logs[0])
	}
}

func TestExecutorHonoursCancellation(t *testing.T) {
	book := &failingBook{}
	exec := NewExecutor(nil, book, risk.DefaultBacktestPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := exec.Execute(ctx, []signal.Signal{breakout("AAAUSDT", 1, 5)})

	if book.calls != 0 || len(result.Errors) != 1 {
		t.Fatalf("expected cancellation before any entry, got %d calls / %v", book.calls, result.Errors)
	}
}

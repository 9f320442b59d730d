package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"momentumengine/src/backtest"
	"momentumengine/src/model"
	"momentumengine/src/risk"
	"momentumengine/src/signal"
)

// CandleLoader is satisfied by *repository.CandleRepository.
type CandleLoader interface {
	LoadRange(ctx context.Context, symbols []string, interval string, from, to time.Time) ([]model.Candle, error)
}

var ErrWindow = errors.New("invalid backtest window")

// Replay runs one backtest over stored candles and signals.
type Replay struct {
	Log     *logrus.Entry
	Config  backtest.Config
	Policy  risk.Policy
	Candles CandleLoader
	Signals signal.Source
	Store   backtest.Store // nil keeps the run in memory
}

// ParseWindow reads RFC3339 bounds. An empty to means now, an empty from
// means days before to.
func ParseWindow(from, to string, days int, now time.Time) (time.Time, time.Time, error) {
	end := now.UTC()
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: to: %v", ErrWindow, err)
		}
		end = t.UTC()
	}
	if days <= 0 {
		days = 30
	}
	start := end.AddDate(0, 0, -days)
	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: from: %v", ErrWindow, err)
		}
		start = t.UTC()
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from %s is not before to %s", ErrWindow, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return start, end, nil
}

func (r *Replay) symbols() []string {
	out := make([]string, 0, len(r.Config.Symbols))
	for _, s := range r.Config.Symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (r *Replay) Start(ctx context.Context, from, to time.Time) (*backtest.Report, error) {
	cash, err := decimal.NewFromString(r.Config.InitialCash)
	if err != nil || !cash.IsPositive() {
		return nil, fmt.Errorf("invalid BACKTEST_INITIAL_CASH %q", r.Config.InitialCash)
	}

	candles, err := r.Candles.LoadRange(ctx, r.symbols(), r.Config.Interval, from, to)
	if err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}
	r.Log.WithFields(logrus.Fields{
		"from":     from.Format(time.RFC3339),
		"to":       to.Format(time.RFC3339),
		"interval": r.Config.Interval,
		"candles":  len(candles),
	}).Info("starting backtest")

	runner := backtest.NewRunner(backtest.NewSeries(candles), r.Signals, r.Policy, cash, r.Log).
		WithRebalanceEvery(r.Config.RebalanceEvery)
	if r.Store != nil {
		runner = runner.WithStore(r.Store)
	}
	return runner.Run(ctx)
}

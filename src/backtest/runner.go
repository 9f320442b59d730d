// Package backtest replays stored candles and signals through the same
// portfolio, exit rules and entry executor the live driver uses.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"momentumengine/src/execution"
	"momentumengine/src/exitrule"
	"momentumengine/src/model"
	"momentumengine/src/portfolio"
	"momentumengine/src/risk"
	"momentumengine/src/signal"
	"momentumengine/src/strategy"
)

const ModeBacktest = "backtest"

var ErrNoData = errors.New("no candles to replay")

// Store persists a finished run. Satisfied by RepositoryStore.
type Store interface {
	SaveRun(ctx context.Context, trades []model.TradeRecord, snapshots []model.PortfolioSnapshot) error
}

type Runner struct {
	series         *Series
	source         signal.Source
	policy         risk.Policy
	initialCash    decimal.Decimal
	rebalanceEvery int
	store          Store
	log            *logrus.Entry
}

func NewRunner(series *Series, source signal.Source, policy risk.Policy, initialCash decimal.Decimal, log *logrus.Entry) *Runner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Runner{
		series:         series,
		source:         source,
		policy:         policy,
		initialCash:    initialCash,
		rebalanceEvery: 4,
		log:            log.WithField("component", "Backtest"),
	}
}

// WithRebalanceEvery consumes signals only on every nth tick.
func (r *Runner) WithRebalanceEvery(n int) *Runner {
	if n > 0 {
		r.rebalanceEvery = n
	}
	return r
}

func (r *Runner) WithStore(store Store) *Runner {
	r.store = store
	return r
}

type Report struct {
	RunID     string
	Start     time.Time
	End       time.Time
	Ticks     int
	Signals   int
	Discarded []string
	Trades    []model.TradeRecord
	Snapshots []model.PortfolioSnapshot
	Summary   Summary
}

// Run replays every timestamp of the series. Exits are evaluated on every
// tick; signals detected in (previous signal tick, t] are offered every
// rebalanceEvery ticks, priced at the bar in force at t. Whatever is still open at the end is closed at its
// last price.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	timestamps := r.series.Timestamps()
	if len(timestamps) == 0 {
		return nil, ErrNoData
	}

	report := &Report{
		RunID: uuid.NewString(),
		Start: timestamps[0],
		End:   timestamps[len(timestamps)-1],
		Ticks: len(timestamps),
	}
	log := r.log.WithField("runId", report.RunID)

	book := portfolio.New(r.initialCash, r.policy, execution.NewReplay(r.series), log).WithRun(report.RunID, ModeBacktest)
	entries := strategy.NewExecutor(log, book, r.policy).WithPricer(r.series)

	log.WithFields(map[string]interface{}{
		"instruments": len(r.series.Instruments()),
		"ticks":       len(timestamps),
		"from":        report.Start.Format(time.RFC3339),
		"to":          report.End.Format(time.RFC3339),
		"entryMode":   string(r.policy.EntryMode),
	}).Info("backtest started")

	// Signals detected before the first bar have no price to trade against.
	signalCursor := timestamps[0].Add(-time.Nanosecond)

	for i, t := range timestamps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest canceled at %s: %w", t.Format(time.RFC3339), err)
		}

		if _, err := book.MarkToMarket(ctx, r.series.PricesAt(t), t); err != nil {
			return nil, err
		}

		if i%r.rebalanceEvery != 0 {
			continue
		}

		signals, err := r.source.Signals(ctx, signalCursor, t)
		if err != nil {
			log.WithError(err).WithField("tick", t.Format(time.RFC3339)).Warn("signal load failed, retrying next rebalance")
		} else {
			signalCursor = t
			report.Signals += len(signals)

			tick := t
			result := entries.WithClock(func() time.Time { return tick }).Execute(ctx, signals)
			report.Discarded = append(report.Discarded, result.Discarded...)
			if err := book.Err(); err != nil {
				return nil, err
			}
		}

		book.Snapshot(t)
	}

	if _, err := book.CloseAll(ctx, r.series.PricesAt(report.End), report.End, exitrule.ReasonBacktestEnd); err != nil {
		return nil, err
	}
	book.Snapshot(report.End)

	report.Trades = book.Trades()
	report.Snapshots = book.Snapshots()
	report.Summary = Summarize(r.initialCash, book.Status().TotalValue, report.Trades, report.Snapshots)
	report.Summary.Log(log)

	if r.store != nil {
		if err := r.store.SaveRun(ctx, report.Trades, report.Snapshots); err != nil {
			return report, fmt.Errorf("persist backtest %s: %w", report.RunID, err)
		}
		log.Info("backtest persisted")
	}
	return report, nil
}

// Package executors drives the portfolio against the live venue: one select
// loop owns the strategy, risk and data tickers.
package executors

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"momentumengine/src/connectors"
	"momentumengine/src/exitrule"
	"momentumengine/src/model"
	"momentumengine/src/notify"
	"momentumengine/src/portfolio"
	"momentumengine/src/signal"
	"momentumengine/src/strategy"
)

const (
	ModeLive  = "live"
	ModePaper = "paper"

	serviceName = "live"
)

type SignalPoller interface {
	Poll(ctx context.Context) ([]signal.Signal, error)
}

type CandleRefresher interface {
	Refresh(ctx context.Context) (int64, error)
}

type TradeSink interface {
	CreateBatch(ctx context.Context, trades []model.TradeRecord) error
}

type SnapshotSink interface {
	Create(ctx context.Context, snap *model.PortfolioSnapshot) error
}

type ExceptionSink interface {
	Create(ctx context.Context, exc *model.Exception) error
}

// Deps are the collaborators of the loop. Book, Signals and Quoter are
// required; the sinks and the refresher may be nil.
type Deps struct {
	Book       *portfolio.Portfolio
	Signals    SignalPoller
	Quoter     connectors.PriceQuoter
	Refresher  CandleRefresher
	Trades     TradeSink
	Snapshots  SnapshotSink
	Exceptions ExceptionSink
	Notifier   notify.Notifier
	Log        *logrus.Entry
	Now        func() time.Time
}

// Book is the portfolio the loop trades, for the status API.
func (l *Loop) Book() *portfolio.Portfolio { return l.deps.Book }

type Loop struct {
	cfg     Config
	deps    Deps
	entries *strategy.Executor
	log     *logrus.Entry
	sim     bool

	persisted int
}

func NewLoop(cfg Config, deps Deps) *Loop {
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := deps.Log.WithFields(map[string]interface{}{"component": "LiveLoop", "mode": cfg.Mode()})
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	return &Loop{
		cfg:     cfg,
		deps:    deps,
		entries: strategy.NewExecutor(log, deps.Book, deps.Book.Policy()).
			WithClock(deps.Now).
			WithPricer(strategy.QuotePricer{Quoter: deps.Quoter}),
		log:     log,
		sim:     cfg.Simulation,
	}
}

// Run executes a strategy pass immediately, then serves the tickers until ctx
// is done. A ledger violation stops the loop and is returned.
func (l *Loop) Run(ctx context.Context) error {
	strategyTicker := time.NewTicker(l.cfg.StrategyPeriod)
	defer strategyTicker.Stop()
	riskTicker := time.NewTicker(l.cfg.RiskPeriod)
	defer riskTicker.Stop()
	dataTicker := time.NewTicker(l.cfg.DataPeriod)
	defer dataTicker.Stop()

	l.log.WithFields(map[string]interface{}{
		"strategyPeriod": l.cfg.StrategyPeriod.String(),
		"riskPeriod":     l.cfg.RiskPeriod.String(),
		"dataPeriod":     l.cfg.DataPeriod.String(),
	}).Info("loop started")
	l.notify(ctx, notify.StatusEvent("engine started", l.cfg.Mode(), l.sim, l.deps.Now()))

	if err := l.StrategyTick(ctx); err != nil {
		return l.halt(err)
	}

	for {
		var err error
		select {
		case <-ctx.Done():
			l.log.Info("loop stopped")
			l.shutdown()
			return nil
		case <-strategyTicker.C:
			err = l.StrategyTick(ctx)
		case <-riskTicker.C:
			err = l.RiskTick(ctx)
		case <-dataTicker.C:
			l.DataTick(ctx)
		}
		if err != nil {
			return l.halt(err)
		}
	}
}

// StrategyTick runs a risk pass, takes the new signals and offers them to
// the portfolio at freshly quoted prices.
func (l *Loop) StrategyTick(ctx context.Context) error {
	if err := l.RiskTick(ctx); err != nil {
		return err
	}

	signals, err := l.deps.Signals.Poll(ctx)
	if err != nil {
		l.recordException(ctx, "strategy_tick", "Poll", "", model.ExceptionLevelWarn, err)
	}

	result := l.entries.Execute(ctx, signals)
	if err := l.deps.Book.Err(); err != nil {
		return err
	}
	for _, e := range result.Errors {
		l.recordException(ctx, "strategy_tick", "Enter", "", model.ExceptionLevelWarn, e)
	}
	for _, t := range result.Opened {
		l.notify(ctx, notify.TradeEvent(t, l.sim))
	}
	for _, o := range result.Placed {
		l.notify(ctx, notify.OrderEvent(notify.KindOrderPlaced, o, l.sim, l.deps.Now()))
	}

	l.persistTrades(ctx)
	l.notify(ctx, notify.SummaryEvent(l.deps.Book.Status(), l.sim, l.deps.Now()))

	l.log.WithFields(map[string]interface{}{
		"signals":   len(signals),
		"opened":    len(result.Opened),
		"placed":    len(result.Placed),
		"rejected":  len(result.Rejected),
		"discarded": len(result.Discarded),
		"errors":    len(result.Errors),
	}).Info("strategy tick done")
	return nil
}

// RiskTick reconciles resting orders, marks every position to the latest
// price and applies the exit rules.
func (l *Loop) RiskTick(ctx context.Context) error {
	now := l.deps.Now()
	book := l.deps.Book

	rec, err := book.ReconcilePending(ctx, now)
	if err != nil && !errors.Is(err, portfolio.ErrNotContingent) {
		return err
	}
	for _, e := range rec.Errors {
		l.recordException(ctx, "risk_tick", "ReconcilePending", "", model.ExceptionLevelWarn, e)
	}
	for _, t := range rec.Filled {
		l.notify(ctx, notify.TradeEvent(t, l.sim))
	}
	for _, o := range rec.Cancelled {
		l.notify(ctx, notify.OrderEvent(notify.KindOrderCancelled, o, l.sim, now))
	}

	mark, err := book.MarkToMarket(ctx, l.latestPrices(ctx, now), now)
	if err != nil {
		return err
	}
	for _, closed := range mark.Closed {
		l.notify(ctx, notify.TradeEvent(closed.Trade, l.sim))
	}
	for _, e := range mark.Errors {
		l.recordException(ctx, "risk_tick", "Close", "", model.ExceptionLevelError, e)
		l.notify(ctx, notify.AlertEvent("exit failed, position kept", e, l.sim, now))
	}

	snap := book.Snapshot(now)
	if l.deps.Snapshots != nil {
		if err := l.deps.Snapshots.Create(ctx, &snap); err != nil {
			l.log.WithError(err).Warn("snapshot not persisted")
		}
	}
	l.persistTrades(ctx)

	l.log.WithFields(map[string]interface{}{
		"closed":     len(mark.Closed),
		"skipped":    len(mark.Skipped),
		"filled":     len(rec.Filled),
		"cancelled":  len(rec.Cancelled),
		"totalValue": snap.TotalValue.StringFixed(2),
		"exposure":   snap.Exposure.StringFixed(4),
	}).Info("risk tick done")
	return nil
}

// DataTick refreshes candles. Failures are recorded and never stop the loop.
func (l *Loop) DataTick(ctx context.Context) {
	if l.deps.Refresher == nil {
		return
	}
	if _, err := l.deps.Refresher.Refresh(ctx); err != nil {
		l.recordException(ctx, "data_tick", "Refresh", "", model.ExceptionLevelWarn, err)
	}
}

func (l *Loop) latestPrices(ctx context.Context, now time.Time) map[string]decimal.Decimal {
	views := l.deps.Book.Positions(now)
	prices := make(map[string]decimal.Decimal, len(views))
	for _, v := range views {
		price, err := l.deps.Quoter.LatestPrice(ctx, v.Instrument)
		if err != nil {
			l.recordException(ctx, "risk_tick", "LatestPrice", v.Instrument, model.ExceptionLevelWarn, err)
			continue
		}
		prices[v.Instrument] = price
	}
	return prices
}

// persistTrades writes the ledger tail. A failed write is retried on the next tick.
func (l *Loop) persistTrades(ctx context.Context) {
	trades := l.deps.Book.TradesSince(l.persisted)
	if len(trades) == 0 {
		return
	}
	if l.deps.Trades != nil {
		if err := l.deps.Trades.CreateBatch(ctx, trades); err != nil {
			l.log.WithError(err).WithField("count", len(trades)).Warn("trades not persisted, retrying next tick")
			return
		}
	}
	l.persisted += len(trades)
}

func (l *Loop) shutdownTimeout() time.Duration {
	if l.cfg.ShutdownTimeout <= 0 {
		return 30 * time.Second
	}
	return l.cfg.ShutdownTimeout
}

func (l *Loop) halt(err error) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.shutdownTimeout())
	defer cancel()

	l.log.WithError(err).Error("ledger violation, trading halted")
	l.recordException(ctx, "loop", "Run", "", model.ExceptionLevelFatal, err)
	l.notify(ctx, notify.AlertEvent("trading halted", err, l.sim, l.deps.Now()))
	return err
}

// shutdown runs on a fresh context since the loop context is already done.
func (l *Loop) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), l.shutdownTimeout())
	defer cancel()
	now := l.deps.Now()

	if l.cfg.LiquidateOnShutdown {
		cancelled := l.deps.Book.CancelPending(ctx, now, string(exitrule.ReasonShutdown))
		for _, o := range cancelled.Cancelled {
			l.notify(ctx, notify.OrderEvent(notify.KindOrderCancelled, o, l.sim, now))
		}
		res, err := l.deps.Book.CloseAll(ctx, l.latestPrices(ctx, now), now, exitrule.ReasonShutdown)
		if err != nil {
			l.log.WithError(err).Error("liquidation aborted")
		}
		for _, closed := range res.Closed {
			l.notify(ctx, notify.TradeEvent(closed.Trade, l.sim))
		}
		for _, e := range res.Errors {
			l.recordException(ctx, "shutdown", "CloseAll", "", model.ExceptionLevelError, e)
		}
	}

	l.persistTrades(ctx)
	l.notify(ctx, notify.SummaryEvent(l.deps.Book.Status(), l.sim, now))
	l.notify(ctx, notify.StatusEvent("engine stopped", l.cfg.Mode(), l.sim, now))
}

func (l *Loop) notify(ctx context.Context, e notify.Event) {
	_ = l.deps.Notifier.Notify(ctx, e)
}

func (l *Loop) recordException(ctx context.Context, module, method, instrument, level string, err error) {
	l.log.WithError(err).WithFields(map[string]interface{}{
		"module":     module,
		"method":     method,
		"instrument": instrument,
	}).Warn("tick step failed")

	if l.deps.Exceptions == nil {
		return
	}
	if perr := l.deps.Exceptions.Create(ctx, model.NewException(serviceName, module, method, instrument, level, err)); perr != nil {
		l.log.WithError(perr).Warn("exception not persisted")
	}
}

package executors

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"momentumengine/src/connectors"
	"momentumengine/src/execution"
	"momentumengine/src/feed"
	"momentumengine/src/marketdata"
	"momentumengine/src/notify"
	"momentumengine/src/portfolio"
	"momentumengine/src/repository"
	"momentumengine/src/risk"
)

// NewFromEnv wires a loop from the environment. The databases must already
// be initialized; the ticker stream, when enabled, runs until ctx ends.
func NewFromEnv(ctx context.Context) (*Loop, error) {
	config := GetConfig()
	log := logger.WithField("service", serviceName)

	policy, err := risk.LoadPolicy(risk.DefaultLivePolicy(), risk.GetConfig())
	if err != nil {
		return nil, err
	}
	cash, err := decimal.NewFromString(config.InitialCash)
	if err != nil || !cash.IsPositive() {
		return nil, fmt.Errorf("invalid LIVE_INITIAL_CASH %q", config.InitialCash)
	}

	connCfg := connectors.GetConfig()
	rest := connectors.NewBinanceSpotClient(connCfg.BinanceAPIKey, connCfg.BinanceAPISecret, connCfg.BinanceBaseURL)
	quoter := connectors.FallbackQuoter{rest}
	if connCfg.EnableStream {
		stream := connectors.NewTickerStream(connCfg.TickerStreamURL, connCfg.QuoteMaxAge, log)
		go func() {
			if err := stream.Run(ctx); err != nil {
				log.WithError(err).Error("ticker stream stopped")
			}
		}()
		quoter = connectors.FallbackQuoter{stream, rest}
	}

	var exec execution.Executor
	if config.Simulation {
		exec = execution.NewPaper(quoter)
	} else {
		if connCfg.BinanceAPIKey == "" || connCfg.BinanceAPISecret == "" {
			return nil, errors.New("BINANCE_API_KEY and BINANCE_API_SECRET are required unless LIVE_SIMULATION is set")
		}
		if cash, err = capToBalance(ctx, rest, config.QuoteAsset, cash, log); err != nil {
			return nil, err
		}
		exec = execution.NewExchange(rest, policy.SlippageLimit, log)
	}

	book := portfolio.New(cash, policy, exec, log).WithRun(uuid.NewString(), config.Mode())

	signals := repository.NewMomentumSignalRepository()
	var startID uint
	if config.SkipSignalBacklog {
		if startID, err = signals.MaxID(ctx); err != nil {
			return nil, fmt.Errorf("signal cursor: %w", err)
		}
	}

	notifier, err := notify.FromConfig(notify.GetConfig(), log)
	if err != nil {
		return nil, err
	}

	deps := Deps{
		Book:       book,
		Signals:    feed.NewPoller(signals, startID, config.SignalBatch, log),
		Quoter:     quoter,
		Trades:     repository.NewTradeRepository(),
		Snapshots:  repository.NewSnapshotRepository(),
		Exceptions: repository.NewExceptionRepository(),
		Notifier:   notifier,
		Log:        log,
	}
	if config.RefreshCandles {
		deps.Refresher = marketdata.NewRefresher(marketdata.GetConfig(), repository.NewCandleRepository(), log)
	}

	log.WithFields(logger.Fields{
		"mode":        config.Mode(),
		"cash":        cash.String(),
		"entryMode":   string(policy.EntryMode),
		"signalStart": startID,
	}).Info("live loop configured")
	return NewLoop(config, deps), nil
}

// BalanceReader is satisfied by *connectors.BinanceSpotClient.
type BalanceReader interface {
	FreeBalance(ctx context.Context, asset string) (decimal.Decimal, error)
}

// capToBalance never lets the ledger start with more cash than the account
// holds in asset.
func capToBalance(ctx context.Context, balances BalanceReader, asset string, configured decimal.Decimal, log *logger.Entry) (decimal.Decimal, error) {
	free, err := balances.FreeBalance(ctx, asset)
	if err != nil {
		return decimal.Zero, fmt.Errorf("read %s balance: %w", asset, err)
	}
	if !free.IsPositive() {
		return decimal.Zero, fmt.Errorf("no free %s balance to trade", asset)
	}
	if configured.GreaterThan(free) {
		log.WithFields(logger.Fields{
			"asset":      asset,
			"configured": configured.String(),
			"free":       free.String(),
		}).Warn("LIVE_INITIAL_CASH exceeds the free balance, trading the balance")
		return free, nil
	}
	return configured, nil
}

func StartLoop(ctx context.Context) error {
	loop, err := NewFromEnv(ctx)
	if err != nil {
		return err
	}
	return loop.Run(ctx)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"momentumengine/cmd/live"
	"momentumengine/cmd/ohlcvcrypto"
	"momentumengine/cmd/replay"
	"momentumengine/src/auth"
	"momentumengine/src/backtest"
	"momentumengine/src/database"
	"momentumengine/src/feed"
	"momentumengine/src/marketdata"
	"momentumengine/src/repository"
	"momentumengine/src/risk"
)

var Version string

func SetupLogger() {
	level, err := logrus.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL")))
	if err != nil {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()

	app := cli.NewApp()
	app.Name = "momentumengine"
	app.Usage = "Position and risk management engine for the spot momentum bot"
	app.Version = Version

	app.Commands = []cli.Command{
		liveCMD,
		backtestCMD,
		ohlcvCryptoCMD,
		hashTokenCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	liveCMD = cli.Command{
		Name:        "live",
		Usage:       "run the live loop",
		Action:      liveAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Trade detector signals in paper or live mode and serve the status API`,
	}
	backtestCMD = cli.Command{
		Name:   "backtest",
		Usage:  "replay stored candles and signals",
		Action: backtestAction,
		Flags: []cli.Flag{
			cli.StringFlag{Name: "from", Usage: "window start (RFC3339)"},
			cli.StringFlag{Name: "to", Usage: "window end (RFC3339), defaults to now"},
			cli.IntFlag{Name: "days", Usage: "window length when --from is not set", Value: 30},
			cli.BoolFlag{Name: "persist", Usage: "save trades and snapshots (also BACKTEST_PERSIST)"},
		},
		Description: `Run the momentum backtest over the candle table`,
	}
	ohlcvCryptoCMD = cli.Command{
		Name:        "ohlcv_crypto",
		Usage:       "fetch OHLCV candles from Binance",
		Action:      ohlcvCryptoAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Backfill START_DATE..END_DATE, or resume from the latest bar with AUTO_MODE`,
	}
	hashTokenCMD = cli.Command{
		Name:        "hash_token",
		Usage:       "print the bcrypt hash of a status API token",
		Action:      hashTokenAction,
		ArgsUsage:   "<token>",
		Description: `Set the output as STATUS_TOKEN_HASH`,
	}
)

func liveAction(_ *cli.Context) error {
	logrus.Info("Starting live CMD")

	l := &live.Live{Log: logrus.WithField("cmd", "live")}
	if err := l.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

func backtestAction(c *cli.Context) error {
	log := logrus.WithField("cmd", "backtest")
	log.Info("Starting backtest CMD")

	from, to, err := replay.ParseWindow(c.String("from"), c.String("to"), c.Int("days"), time.Now())
	if err != nil {
		return err
	}
	policy, err := risk.LoadPolicy(risk.DefaultBacktestPolicy(), risk.GetConfig())
	if err != nil {
		return err
	}

	if err := database.InitMainDB(); err != nil {
		log.WithError(err).Error("Failed to connect to main database")
		return err
	}
	if err := database.InitReadOnlyDB(); err != nil {
		log.WithError(err).Error("Failed to connect to read-only database")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config := backtest.GetConfig()
	job := &replay.Replay{
		Log:     log,
		Config:  config,
		Policy:  policy,
		Candles: repository.NewCandleRepository(),
		Signals: feed.NewRepositoryFeed(repository.NewMomentumSignalRepository()),
	}
	if config.Persist || c.Bool("persist") {
		job.Store = backtest.NewRepositoryStore()
	}

	report, err := job.Start(ctx, from, to)
	if err != nil {
		log.WithError(err).Error("Backtest failed")
		return err
	}
	log.WithFields(logrus.Fields{
		"runId":     report.RunID,
		"signals":   report.Signals,
		"discarded": len(report.Discarded),
	}).Info("Backtest finished")
	return nil
}

// ohlcvCryptoAction fetches Binance klines into the candle table.
func ohlcvCryptoAction(_ *cli.Context) error {
	log := logrus.WithField("cmd", "ohlcv_crypto")
	log.Info("Starting OHLCV crypto CMD")
	if err := database.InitMainDB(); err != nil {
		log.WithError(err).Error("Failed to connect to database")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mdConfig := marketdata.GetConfig()
	job := &ohlcvcrypto.OHLCVCrypto{
		Log:     log,
		Config:  ohlcvcrypto.GetConfig(),
		Symbols: mdConfig.Symbols,
		Data:    marketdata.NewRefresher(mdConfig, repository.NewCandleRepository(), log),
	}
	if _, err := job.Start(ctx); err != nil {
		log.WithError(err).Error("Starting OHLCV cmd")
		return err
	}
	return nil
}

func hashTokenAction(c *cli.Context) error {
	token := c.Args().First()
	if token == "" {
		return errors.New("usage: hash_token <token>")
	}
	hash, err := auth.HashToken(token)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, hash)
	return err
}

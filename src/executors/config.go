package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	StrategyPeriod      time.Duration `envconfig:"STRATEGY_PERIOD" default:"4h"`
	RiskPeriod          time.Duration `envconfig:"RISK_PERIOD" default:"30m"`
	DataPeriod          time.Duration `envconfig:"DATA_PERIOD" default:"1h"`
	InitialCash         string        `envconfig:"LIVE_INITIAL_CASH" default:"1000"`
	QuoteAsset          string        `envconfig:"LIVE_QUOTE_ASSET" default:"USDT"`
	Simulation          bool          `envconfig:"LIVE_SIMULATION" default:"true"`
	LiquidateOnShutdown bool          `envconfig:"LIQUIDATE_ON_SHUTDOWN" default:"false"`
	ShutdownTimeout     time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	SignalBatch         int           `envconfig:"SIGNAL_BATCH" default:"100"`
	SkipSignalBacklog   bool          `envconfig:"SIGNAL_SKIP_BACKLOG" default:"true"`
	RefreshCandles      bool          `envconfig:"REFRESH_CANDLES" default:"true"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

func (c Config) Mode() string {
	if c.Simulation {
		return ModePaper
	}
	return ModeLive
}

package backtest

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	InitialCash    string   `envconfig:"BACKTEST_INITIAL_CASH" default:"10000"`
	Interval       string   `envconfig:"BACKTEST_INTERVAL" default:"15m"`
	Symbols        []string `envconfig:"BACKTEST_SYMBOLS"`
	RebalanceEvery int      `envconfig:"BACKTEST_REBALANCE_EVERY" default:"4"`
	Persist        bool     `envconfig:"BACKTEST_PERSIST" default:"false"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

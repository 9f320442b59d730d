package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BinanceAPIKey    string        `envconfig:"BINANCE_API_KEY"`
	BinanceAPISecret string        `envconfig:"BINANCE_API_SECRET"`
	BinanceBaseURL   string        `envconfig:"BINANCE_BASE_URL" default:"https://api.binance.com"`
	TickerStreamURL  string        `envconfig:"BINANCE_TICKER_STREAM_URL" default:"wss://stream.binance.com:9443/ws/!miniTicker@arr"`
	EnableStream     bool          `envconfig:"BINANCE_ENABLE_STREAM" default:"true"`
	QuoteMaxAge      time.Duration `envconfig:"BINANCE_QUOTE_MAX_AGE" default:"2m"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

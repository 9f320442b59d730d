package marketdata

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Symbols  []string      `envconfig:"MARKETDATA_SYMBOLS" default:"BTC,ETH,SOL,BNB,XRP,DOGE,ADA,AVAX,LINK,ARB"`
	Quote    string        `envconfig:"MARKETDATA_QUOTE" default:"USDT"`
	Interval string        `envconfig:"MARKETDATA_INTERVAL" default:"15m"`
	Limit    int           `envconfig:"MARKETDATA_LIMIT" default:"1000"`
	Lookback time.Duration `envconfig:"MARKETDATA_LOOKBACK" default:"72h"`
	Endpoint string        `envconfig:"MARKETDATA_ENDPOINT" default:"https://api.binance.com"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

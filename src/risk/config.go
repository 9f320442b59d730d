package risk

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	PolicyFile string `envconfig:"POLICY_FILE" default:""`
	EntryMode  string `envconfig:"ENTRY_MODE" default:""` // overrides the file when set: "immediate" or "pivot"
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

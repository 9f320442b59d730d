package notify

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

type Config struct {
	DingTalkWebhook  string   `envconfig:"DINGTALK_WEBHOOK"`
	DingTalkKeywords []string `envconfig:"DINGTALK_KEYWORDS"`
	TelegramToken    string   `envconfig:"TELEGRAM_TOKEN"`
	TelegramChatID   int64    `envconfig:"TELEGRAM_CHAT_ID"`
	TelegramEndpoint string   `envconfig:"TELEGRAM_ENDPOINT"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// FromConfig builds the configured sinks wrapped in Safe. With nothing
// configured every event is dropped.
func FromConfig(cfg Config, log *logrus.Entry) (Notifier, error) {
	var sinks Multi
	if cfg.DingTalkWebhook != "" {
		sinks = append(sinks, NewDingTalk(cfg.DingTalkWebhook, cfg.DingTalkKeywords))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, cfg.TelegramEndpoint)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, tg)
	}
	if len(sinks) == 0 {
		return Safe(Nop{}, log), nil
	}
	return Safe(sinks, log), nil
}

package alerts

import (
	"kraken-auto-trader-go/internal/config"

	"go.uber.org/zap"
)

// NewFromConfig builds a manager with the channels enabled in cfg.
// A Telegram channel that cannot be authorised is logged and left out.
func NewFromConfig(cfg config.Alerts, logger *zap.Logger) *Manager {
	var channels []Channel
	if cfg.WebhookURL != "" {
		channels = append(channels, NewWebhookChannel(cfg.WebhookURL))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := NewTelegramChannel(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			logger.Warn("Telegram alerts unavailable", zap.Error(err))
		} else {
			channels = append(channels, tg)
		}
	}
	return NewManager(cfg.Enabled, cfg.Cooldown, logger, channels...)
}

package bot

import (
	"MusicDownloader/internal/config"
)

// NewBotConfig создает конфигурацию бота из настроек приложения
func NewBotConfig(cfg config.Config) *BotConfig {
	return &BotConfig{
		Token:          cfg.BotToken,
		AdminID:        cfg.AdminID,
		TelegramAPIURL: cfg.TelegramAPIURL,
		WebAppURL:      cfg.WebAppURL,
		HTTPTimeout:    DefaultHTTPTimeout,
		UserRateLimit:  cfg.UserRateLimit,
		UserRateBurst:  cfg.UserRateBurst,
	}
}

// IsAdmin проверяет, является ли пользователь администратором
func (c *BotConfig) IsAdmin(userID int64) bool {
	return c.AdminID != 0 && c.AdminID == userID
}

// GetAPISettings возвращает настройки для Telegram API
func (c *BotConfig) GetAPISettings() map[string]interface{} {
	return map[string]interface{}{
		"url":     c.TelegramAPIURL,
		"timeout": c.HTTPTimeout,
		"poller":  DefaultPollerTimeout,
		"web_app": c.WebAppURL,
	}
}

package bot

import (
	"context"
	"errors"
	"time"

	tele "gopkg.in/telebot.v4"

	"MusicDownloader/internal/logger"
	"MusicDownloader/internal/telemetry"
)

// NewBot создает бота и проверяет токен запросом getMe
func NewBot(cfg *BotConfig, deps Deps) (*Bot, error) {
	log := logger.New("BOT")
	if err := deps.validate(); err != nil {
		return nil, err
	}

	settings := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: DefaultPollerTimeout},
		OnError: func(err error, c tele.Context) {
			if c != nil && c.Sender() != nil {
				log.LogErrorWithContext("Ошибка обработчика", err, c.Sender().Recipient())
				return
			}
			log.LogErrorWithContext("Ошибка обработчика", err)
		},
	}
	// Таймаут HTTP-клиента покрывает загрузку аудио в Telegram
	client := telemetry.HTTPClient()
	client.Timeout = cfg.HTTPTimeout
	settings.Client = client

	if cfg.TelegramAPIURL != "" {
		settings.URL = cfg.TelegramAPIURL
		log.Info("URL API: %s", settings.URL)
	} else {
		log.Info("Используем официальный Telegram Bot API")
	}

	api, err := tele.NewBot(settings)
	if err != nil {
		return nil, err
	}

	startedAt := deps.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	log.Info("Бот успешно инициализирован: @%s", api.Me.Username)
	log.Zap().Sugar().Infow("Настройки API", "settings", cfg.GetAPISettings())

	return &Bot{
		api:             api,
		config:          cfg,
		downloadManager: NewDownloadManager(deps.Queue),
		searcher:        deps.Searcher,
		audio:           deps.Audio,
		searches:        deps.Searches,
		repo:            deps.Repo,
		cache:           deps.Cache,
		i18nManager:     deps.I18n,
		userLimiter:     newUserLimiter(cfg.UserRateLimit, cfg.UserRateBurst),
		startedAt:       startedAt,
		logger:          log,
	}, nil
}

func (d Deps) validate() error {
	switch {
	case d.Searcher == nil:
		return errors.New("bot: searcher is required")
	case d.Audio == nil:
		return errors.New("bot: audio source is required")
	case d.Queue == nil:
		return errors.New("bot: download queue is required")
	case d.Searches == nil:
		return errors.New("bot: search store is required")
	case d.Repo == nil:
		return errors.New("bot: repository is required")
	case d.Cache == nil:
		return errors.New("bot: audio cache is required")
	case d.I18n == nil:
		return errors.New("bot: i18n manager is required")
	}
	return nil
}

// Run регистрирует обработчики и принимает апдейты до отмены ctx
func (b *Bot) Run(ctx context.Context) {
	b.setupMiddleware()

	b.api.Handle(tele.OnText, b.handleMessage)
	b.api.Handle(tele.OnCallback, b.handleCallback)
	b.api.Handle(tele.OnWebApp, b.handleWebAppData)

	go func() {
		<-ctx.Done()
		b.logger.Info("Останавливаем получение апдейтов")
		b.api.Stop()
	}()

	b.logger.Info("Бот запущен")
	b.api.Start()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	apihttp "MusicDownloader/internal/api/http"
	"MusicDownloader/internal/bot"
	"MusicDownloader/internal/config"
	"MusicDownloader/internal/downloader"
	"MusicDownloader/internal/i18n"
	"MusicDownloader/internal/logger"
	"MusicDownloader/internal/metrics"
	"MusicDownloader/internal/scraper"
	"MusicDownloader/internal/searchstore"
	"MusicDownloader/internal/storage"
	"MusicDownloader/internal/storage/memory"
	"MusicDownloader/internal/storage/mongo"
	"MusicDownloader/internal/storage/postgres"
	"MusicDownloader/internal/storage/redis"
	"MusicDownloader/internal/telemetry"
	"MusicDownloader/internal/utils"
)

const (
	serviceName     = "music-bot"
	shutdownTimeout = 10 * time.Second
	connectTimeout  = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка конфигурации: %v", err)
	}

	base, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Ошибка инициализации логгера: %v", err)
	}
	logger.SetBase(base)
	defer func() { _ = base.Sync() }()

	if err := run(cfg); err != nil {
		base.Fatal("Сервис остановлен с ошибкой", zap.Error(err))
	}
}

func run(cfg config.Config) error {
	appLog := logger.New("APP")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			appLog.Warning("Ошибка остановки трассировки: %v", err)
		}
	}()

	metrics.Register(prometheus.DefaultRegisterer)

	repo, cache, closeStorage, err := openStorage(ctx, cfg, appLog)
	if err != nil {
		return err
	}
	defer closeStorage()

	if cfg.DebugHTML {
		if err := utils.EnsureWritableDir(cfg.DebugDir); err != nil {
			appLog.Warning("Отладочные страницы сохраняться не будут: %v", err)
		}
	}

	overrides, err := scraper.LoadHeaderOverrides(cfg.HeadersFile)
	if err != nil {
		appLog.Warning("Переопределения заголовков не загружены: %v", err)
	} else if len(overrides) > 0 {
		appLog.Info("Загружено %d заголовков из %s", len(overrides), cfg.HeadersFile)
	}
	headers := scraper.BuildHeaders(cfg.BaseHost, overrides)

	searcher := scraper.NewClient(scraper.Config{
		BaseHost:  cfg.BaseHost,
		Timeout:   cfg.RequestTimeout,
		Headers:   headers.Page,
		DebugHTML: cfg.DebugHTML,
		DebugDir:  cfg.DebugDir,
		Client:    telemetry.HTTPClient(),
	})
	fetcher := downloader.NewFetcher(downloader.Config{
		Timeout: cfg.RequestTimeout,
		Headers: headers.Audio,
		Client:  telemetry.HTTPClient(),
	})
	queue := downloader.NewQueue(cfg.MaxParallelDownloads, cfg.QueueWaitTimeout)

	searches := searchstore.New(
		searchstore.WithTTL(cfg.SearchTTL),
		searchstore.WithSweepInterval(cfg.SearchSweepInterval),
	)
	go searches.Run(ctx)

	translations, err := i18n.NewDefault()
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}

	tgBot, err := bot.NewBot(bot.NewBotConfig(cfg), bot.Deps{
		Searcher:  searcher,
		Audio:     fetcher,
		Queue:     queue,
		Searches:  searches,
		Repo:      repo,
		Cache:     cache,
		I18n:      translations,
		StartedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("bot: %w", err)
	}

	api := apihttp.NewServer(repo, searcher,
		apihttp.WithWebAppDir(cfg.WebAppDir),
		apihttp.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("HTTP сервер слушает %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go tgBot.Run(ctx)
	go keepAlive(ctx, cfg.BaseURL, cfg.KeepAliveInterval, appLog)

	appLog.Info("Бот запущен: загрузок параллельно %d, хранилище %s", cfg.MaxParallelDownloads, redactURI(cfg.DatabaseURI))

	var runErr error
	select {
	case <-ctx.Done():
		appLog.Info("Получен сигнал остановки")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Warning("Ошибка остановки HTTP сервера: %v", err)
	}
	return runErr
}

// openStorage выбирает репозиторий по DATABASE_URI и кэш аудио.
// При заданном REDIS_URL кэш file_id хранится в Redis.
func openStorage(ctx context.Context, cfg config.Config, log *logger.Logger) (storage.Repository, storage.AudioCache, func(), error) {
	backend, err := cfg.StorageBackend()
	if err != nil {
		return nil, nil, nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	var (
		repo  storage.Repository
		cache storage.AudioCache
	)
	switch backend {
	case "memory":
		store := memory.New()
		repo, cache = store, store
		log.Warning("Используется хранилище в памяти, данные не переживут перезапуск")
	case "mongo":
		store, err := mongo.Open(connectCtx, cfg.DatabaseURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("mongo: %w", err)
		}
		repo, cache = store, store
	case "postgres":
		store, err := postgres.Open(connectCtx, cfg.DatabaseURI)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("postgres: %w", err)
		}
		repo, cache = store, store
	}
	log.Info("Хранилище: %s", backend)

	closers := []func(){func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := repo.Close(closeCtx); err != nil {
			log.Warning("Ошибка закрытия хранилища: %v", err)
		}
	}}

	if cfg.RedisURL != "" {
		redisCache, err := redis.Open(connectCtx, cfg.RedisURL, cfg.AudioCacheTTL)
		if err != nil {
			log.Warning("Redis недоступен, кэш аудио остается в %s: %v", backend, err)
		} else {
			cache = redisCache
			closers = append(closers, func() {
				if err := redisCache.Close(); err != nil {
					log.Warning("Ошибка закрытия Redis: %v", err)
				}
			})
			log.Info("Кэш аудио: redis")
		}
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return repo, cache, closeAll, nil
}

// keepAlive периодически дергает /api/ac, чтобы хостинг не усыплял сервис
func keepAlive(ctx context.Context, baseURL string, interval time.Duration, log *logger.Logger) {
	if baseURL == "" || interval <= 0 {
		return
	}
	client := telemetry.HTTPClient()
	client.Timeout = 30 * time.Second
	target := baseURL + "/api/ac"

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				log.Warning("keep-alive: %v", err)
				return
			}
			resp, err := client.Do(req)
			if err != nil {
				log.Warning("keep-alive %s: %v", target, err)
				continue
			}
			resp.Body.Close()
			log.Debug("keep-alive %s: %d", target, resp.StatusCode)
		}
	}
}

// redactURI убирает пароль из строки подключения для логов
func redactURI(uri string) string {
	at := strings.LastIndex(uri, "@")
	scheme := strings.Index(uri, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return uri
	}
	return uri[:scheme+3] + "***" + uri[at:]
}

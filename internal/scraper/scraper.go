package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"MusicDownloader/internal/domain"
	"MusicDownloader/internal/logger"
	"MusicDownloader/internal/metrics"
	"MusicDownloader/internal/utils"
)

const (
	DefaultBaseHost = "vuxo7.com"
	DefaultTimeout  = 15 * time.Second

	maxPageBytes   = 8 << 20
	debugPrefix    = "page_"
	debugRetention = time.Hour
)

// Config настройки клиента сайта
type Config struct {
	BaseHost string
	// TopURL и SearchURLFormat по умолчанию строятся из BaseHost
	TopURL          string
	SearchURLFormat string
	Timeout         time.Duration
	Retry           RetryConfig
	Headers         http.Header
	DebugHTML       bool
	DebugDir        string
	Client          *http.Client
}

// Client получает и разбирает страницы со списками треков
type Client struct {
	cfg    Config
	client *http.Client
	sleep  sleepFunc
	logger *logger.Logger
}

// NewClient создает клиента с заполненными значениями по умолчанию
func NewClient(cfg Config) *Client {
	if cfg.BaseHost == "" {
		cfg.BaseHost = DefaultBaseHost
	}
	if cfg.TopURL == "" {
		cfg.TopURL = "https://" + cfg.BaseHost
	}
	if cfg.SearchURLFormat == "" {
		cfg.SearchURLFormat = "https://%s." + cfg.BaseHost
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Headers == nil {
		cfg.Headers = BuildHeaders(cfg.BaseHost, nil).Page
	}
	if cfg.DebugDir == "" {
		cfg.DebugDir = "./tmp"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		cfg:    cfg,
		client: client,
		sleep:  sleepContext,
		logger: logger.New("SCRAPER"),
	}
}

// TopHits возвращает треки с главной страницы
func (c *Client) TopHits(ctx context.Context) ([]domain.Track, error) {
	return c.fetch(ctx, "top", c.cfg.TopURL)
}

// Search ищет треки по ключевому слову
func (c *Client) Search(ctx context.Context, keyword string) ([]domain.Track, error) {
	pageURL, err := c.SearchURL(keyword)
	if err != nil {
		metrics.ScraperRequestsTotal.WithLabelValues("search", domain.KindInvalidQuery.String()).Inc()
		return nil, err
	}
	return c.fetch(ctx, "search", pageURL)
}

// SearchURL строит адрес страницы поиска
func (c *Client) SearchURL(keyword string) (string, error) {
	cleaned := SanitizeKeyword(keyword)
	if cleaned == "" {
		return "", domain.ErrInvalidQuery
	}
	return fmt.Sprintf(c.cfg.SearchURLFormat, cleaned), nil
}

// FetchTracks загружает и разбирает страницу с повторными попытками
func (c *Client) FetchTracks(ctx context.Context, pageURL string) ([]domain.Track, error) {
	return c.fetch(ctx, "page", pageURL)
}

func (c *Client) fetch(ctx context.Context, kind, pageURL string) ([]domain.Track, error) {
	start := time.Now()
	var tracks []domain.Track

	err := retryWithBackoff(ctx, c.cfg.Retry, c.sleep, func(attempt int) error {
		body, err := c.fetchPage(ctx, pageURL)
		if err != nil {
			c.logger.Warning("Попытка %d для %s не удалась: %v", attempt+1, pageURL, err)
			return err
		}
		parsed, err := ParseTracks(bytes.NewReader(body))
		if err != nil {
			c.logger.Warning("Попытка %d для %s: %v", attempt+1, pageURL, err)
			return err
		}
		tracks = parsed
		return nil
	})

	metrics.ScraperRequestDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ScraperRequestsTotal.WithLabelValues(kind, domain.KindOf(err).String()).Inc()
		return nil, err
	}
	metrics.ScraperRequestsTotal.WithLabelValues(kind, "ok").Inc()
	c.logger.Debug("Получено %d треков с %s", len(tracks), pageURL)
	return tracks, nil
}

// fetchPage выполняет одну попытку GET с собственным таймаутом
func (c *Client) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header = c.cfg.Headers.Clone()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.wrapTimeout(ctx, pageURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, c.wrapTimeout(ctx, pageURL, err)
	}

	if c.cfg.DebugHTML {
		c.dumpDebug(body)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.HTTPStatusError{StatusCode: resp.StatusCode, URL: pageURL}
	}
	return body, nil
}

func (c *Client) wrapTimeout(ctx context.Context, pageURL string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return domain.Errorf(domain.ErrTimeout, "GET %s after %s", pageURL, c.cfg.Timeout)
	}
	return fmt.Errorf("GET %s: %w", pageURL, err)
}

// dumpDebug сохраняет сырую страницу; ошибки только логируются
func (c *Client) dumpDebug(body []byte) {
	if err := os.MkdirAll(c.cfg.DebugDir, 0o755); err != nil {
		c.logger.Warning("Отладочная папка недоступна: %v", err)
		return
	}
	if removed := utils.CleanupTempFiles(c.cfg.DebugDir, debugPrefix, debugRetention); removed > 0 {
		c.logger.Debug("Удалено %d старых отладочных страниц", removed)
	}
	name := debugPrefix + strconv.FormatInt(time.Now().UnixNano(), 10) + "_" + uuid.NewString()[:8] + ".html"
	path := filepath.Join(c.cfg.DebugDir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		c.logger.Warning("Не удалось сохранить отладочную страницу %s: %v", path, err)
	}
}

package bot

import (
	"context"
	"time"

	tele "gopkg.in/telebot.v4"

	"MusicDownloader/internal/domain"
	"MusicDownloader/internal/downloader"
	"MusicDownloader/internal/i18n"
	"MusicDownloader/internal/logger"
	"MusicDownloader/internal/searchstore"
	"MusicDownloader/internal/storage"
)

// BotConfig содержит конфигурацию бота
type BotConfig struct {
	Token          string
	AdminID        int64
	TelegramAPIURL string
	WebAppURL      string
	HTTPTimeout    time.Duration
	UserRateLimit  float64
	UserRateBurst  int
}

// Searcher источник списков треков
type Searcher interface {
	TopHits(ctx context.Context) ([]domain.Track, error)
	Search(ctx context.Context, keyword string) ([]domain.Track, error)
}

// AudioSource открывает поток аудио по прямой ссылке
type AudioSource interface {
	Open(ctx context.Context, audioURL string) (*downloader.AudioStream, error)
}

// Deps зависимости бота
type Deps struct {
	Searcher  Searcher
	Audio     AudioSource
	Queue     *downloader.Queue
	Searches  *searchstore.Store
	Repo      storage.Repository
	Cache     storage.AudioCache
	I18n      *i18n.Manager
	StartedAt time.Time
}

// Bot представляет основную структуру бота
type Bot struct {
	api             *tele.Bot
	config          *BotConfig
	downloadManager *DownloadManager
	searcher        Searcher
	audio           AudioSource
	searches        *searchstore.Store
	repo            storage.Repository
	cache           storage.AudioCache
	i18nManager     *i18n.Manager
	userLimiter     *userLimiter
	startedAt       time.Time
	logger          *logger.Logger
}

// DownloadInfo содержит информацию об активном скачивании
type DownloadInfo struct {
	RequestID string
	UserID    int64
	URL       string
	StartTime time.Time
	Done      chan struct{}
	FileID    string
	Error     error
}

// Constants
const (
	DefaultHTTPTimeout   = 120 * time.Second
	DefaultPollerTimeout = 60 * time.Second

	MaxKeywordLength = 100
)

// Command constants
const (
	CmdStart           = "/start"
	CmdHelp            = "/help"
	CmdAbout           = "/about"
	CmdApp             = "/app"
	CmdLang            = "/lang"
	CmdTop             = "/top"
	CmdCacheStats      = "/cache_stats"
	CmdCacheClean      = "/cache_clean"
	CmdCacheClear      = "/cache_clear"
	CmdActiveDownloads = "/active_downloads"
	CmdStats           = "/stats"
)

// Callback constants
const (
	CallbackPage = "page"
	CallbackPick = "pick"
	CallbackAll  = "all"
	CallbackLang = "lang"
	CallbackNoop = "noop"
)

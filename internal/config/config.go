package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const DefaultDatabaseURI = "mongodb://localhost:27017/music-bot"

// Config настройки процесса из окружения
type Config struct {
	BotToken       string `envconfig:"BOT_TOKEN" required:"true"`
	AdminID        int64  `envconfig:"ADMIN_ID"`
	TelegramAPIURL string `envconfig:"TELEGRAM_API_URL"`

	DatabaseURI   string        `envconfig:"DATABASE_URI"`
	MongoDatabase string        `envconfig:"MONGO_DB"`
	RedisURL      string        `envconfig:"REDIS_URL"`
	AudioCacheTTL time.Duration `envconfig:"AUDIO_CACHE_TTL" default:"720h"`

	Port     string `envconfig:"PORT" default:"3000"`
	HTTPAddr string `envconfig:"HTTP_ADDR"`

	MaxParallelDownloads int           `envconfig:"MAX_PARALLEL_DOWNLOADS" default:"5"`
	QueueWaitTimeout     time.Duration `envconfig:"QUEUE_WAIT_TIMEOUT" default:"0s"`

	DebugHTML   bool   `envconfig:"DEBUG_HTML"`
	DebugDir    string `envconfig:"DEBUG_DIR" default:"./tmp"`
	HeadersFile string `envconfig:"HEADERS_FILE" default:"./header.json"`
	BaseHost    string `envconfig:"MUSIC_BASE_HOST" default:"vuxo7.com"`

	RequestTimeout      time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`
	SearchTTL           time.Duration `envconfig:"SEARCH_TTL" default:"1h"`
	SearchSweepInterval time.Duration `envconfig:"SEARCH_SWEEP_INTERVAL" default:"30m"`

	WebAppURL string `envconfig:"WEB_APP_URL" default:"https://your-domain.com"`
	WebAppDir string `envconfig:"WEB_APP_DIR" default:"./web-app"`

	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"50"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"100"`
	UserRateLimit  float64 `envconfig:"USER_RATE_LIMIT" default:"1"`
	UserRateBurst  int     `envconfig:"USER_RATE_BURST" default:"5"`

	BaseURL           string        `envconfig:"BASE_URL"`
	KeepAliveInterval time.Duration `envconfig:"KEEPALIVE_INTERVAL" default:"10m"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load читает .env (если есть) и переменные окружения
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv разбирает окружение без чтения .env
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.BotToken = strings.TrimSpace(cfg.BotToken)
	if cfg.BotToken == "" {
		return Config{}, errors.New("BOT_TOKEN is empty")
	}

	if cfg.DatabaseURI == "" {
		cfg.DatabaseURI = strings.TrimSpace(os.Getenv("MONGODB_URI"))
	}
	if cfg.DatabaseURI == "" {
		cfg.DatabaseURI = DefaultDatabaseURI
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":" + cfg.Port
	}
	if cfg.MaxParallelDownloads < 1 {
		cfg.MaxParallelDownloads = 1
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = databaseNameFromURI(cfg.DatabaseURI)
	}
	cfg.WebAppURL = strings.TrimRight(cfg.WebAppURL, "/")
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return cfg, nil
}

// StorageBackend возвращает "mongo", "postgres" или "memory" по схеме DATABASE_URI
func (c Config) StorageBackend() (string, error) {
	u, err := url.Parse(c.DatabaseURI)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URI: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "mongodb", "mongodb+srv":
		return "mongo", nil
	case "postgres", "postgresql":
		return "postgres", nil
	case "memory":
		return "memory", nil
	default:
		return "", fmt.Errorf("unsupported DATABASE_URI scheme %q", u.Scheme)
	}
}

func databaseNameFromURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "music-bot"
	}
	name := strings.Trim(u.Path, "/")
	if name == "" {
		return "music-bot"
	}
	return name
}

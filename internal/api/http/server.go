package apihttp

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"MusicDownloader/internal/domain"
	"MusicDownloader/internal/logger"
	"MusicDownloader/internal/storage"
)

const (
	maxBodyBytes = 1 << 20

	defaultRateLimitRPS   = 50
	defaultRateLimitBurst = 100
)

// Searcher источник треков для мини-приложения
type Searcher interface {
	TopHits(ctx context.Context) ([]domain.Track, error)
	Search(ctx context.Context, keyword string) ([]domain.Track, error)
}

type Server struct {
	repo           storage.Repository
	searcher       Searcher
	webAppDir      string
	allowedOrigins []string
	rateRPS        float64
	rateBurst      int
	metricsHandler http.Handler
	logger         *logger.Logger
	handler        http.Handler
}

type ServerOption func(*Server)

// WithWebAppDir раздает статику мини-приложения из dir, если каталог существует
func WithWebAppDir(dir string) ServerOption {
	return func(s *Server) {
		s.webAppDir = strings.TrimSpace(dir)
	}
}

// WithAllowedOrigins задает белый список CORS. Пустой список разрешает любой Origin.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.rateRPS = rps
		s.rateBurst = burst
	}
}

// WithMetricsHandler подменяет обработчик /metrics
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

func NewServer(repo storage.Repository, searcher Searcher, opts ...ServerOption) *Server {
	s := &Server{
		repo:      repo,
		searcher:  searcher,
		rateRPS:   defaultRateLimitRPS,
		rateBurst: defaultRateLimitBurst,
		logger:    logger.New("HTTP"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metricsHandler == nil {
		s.metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
		metricsMiddleware,
		corsMiddleware(s.allowedOrigins),
		securityHeadersMiddleware,
		rateLimitMiddleware(s.rateRPS, s.rateBurst),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metricsHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(bodyLimitMiddleware(maxBodyBytes))

		r.Get("/ac", s.handleAlive)
		r.Get("/user/{id}", s.handleGetUser)
		r.Get("/export/{id}", s.handleExport)

		r.Get("/favorites/{id}", s.handleGetFavorites)
		r.Post("/favorites/add", s.handleAddFavorite)
		r.Post("/favorites/remove", s.handleRemoveFavorite)

		r.Get("/recent/{id}", s.handleGetRecent)
		r.Post("/recent/add", s.handleAddRecent)

		r.Get("/playlists/{id}", s.handleGetPlaylists)
		r.Post("/playlists/create", s.handleCreatePlaylist)
		r.Post("/playlists/add", s.handleAddToPlaylist)
		r.Delete("/playlists/{id}/{name}", s.handleDeletePlaylist)

		r.Get("/top", s.handleTop)
		r.Get("/search", s.handleSearch)
	})

	if s.webAppDir != "" {
		if info, err := os.Stat(s.webAppDir); err == nil && info.IsDir() {
			r.Handle("/*", http.FileServer(http.Dir(s.webAppDir)))
			s.logger.Info("Статика мини-приложения: %s", s.webAppDir)
		} else {
			s.logger.Warning("Каталог мини-приложения %s недоступен, статика отключена", s.webAppDir)
		}
	}

	s.handler = otelhttp.NewHandler(r, "music-api",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/metrics" && r.URL.Path != "/health"
		}),
	)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := s.repo.Ping(ctx); err != nil {
		s.logger.Warning("Хранилище недоступно: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "storage": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "storage": "ok"})
}

func (s *Server) handleAlive(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Hello!"))
}

package searchstore

import (
	"context"
	"sync"
	"time"

	"MusicDownloader/internal/domain"
	"MusicDownloader/internal/logger"
	"MusicDownloader/internal/metrics"
)

const (
	DefaultTTL           = time.Hour
	DefaultSweepInterval = 30 * time.Minute
)

// Entry результаты одного поиска. После сохранения не меняется.
type Entry struct {
	ID        int64
	Keyword   string
	Tracks    []domain.Track
	CreatedAt time.Time
}

// Store хранит результаты поиска в памяти с ограниченным временем жизни
type Store struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]Entry

	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        *logger.Logger
}

type Option func(*Store)

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New создает пустое хранилище
func New(opts ...Option) *Store {
	s := &Store{
		entries:       make(map[int64]Entry),
		ttl:           DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
		logger:        logger.New("STORE"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save сохраняет копию треков и возвращает новый идентификатор
func (s *Store) Save(keyword string, tracks []domain.Track) int64 {
	copied := make([]domain.Track, len(tracks))
	copy(copied, tracks)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.entries[id] = Entry{
		ID:        id,
		Keyword:   keyword,
		Tracks:    copied,
		CreatedAt: s.now(),
	}
	metrics.SearchStoreEntries.Set(float64(len(s.entries)))
	return id
}

// Get возвращает запись, если она не старше TTL. Просроченная запись удаляется.
func (s *Store) Get(id int64) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	if s.expired(entry) {
		delete(s.entries, id)
		metrics.SearchStoreEvictionsTotal.WithLabelValues("expired_read").Inc()
		metrics.SearchStoreEntries.Set(float64(len(s.entries)))
		return Entry{}, false
	}
	return entry, true
}

// Len число записей, включая ещё не удалённые просроченные
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Purge удаляет все просроченные записи
func (s *Store) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.entries {
		if s.expired(entry) {
			delete(s.entries, id)
			removed++
		}
	}
	if removed > 0 {
		metrics.SearchStoreEvictionsTotal.WithLabelValues("sweep").Add(float64(removed))
	}
	metrics.SearchStoreEntries.Set(float64(len(s.entries)))
	return removed
}

// Run периодически чистит хранилище до отмены ctx
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Purge(); removed > 0 {
				s.logger.Info("Удалено %d просроченных результатов поиска", removed)
			}
		}
	}
}

func (s *Store) expired(entry Entry) bool {
	return s.now().Sub(entry.CreatedAt) > s.ttl
}

package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"MusicDownloader/internal/domain"
	"MusicDownloader/internal/storage"
)

// Store хранит пользователей и кэш file_id в памяти процесса.
// Используется в разработке (DATABASE_URI=memory://) и в тестах.
type Store struct {
	mu    sync.Mutex
	users map[int64]*domain.User
	cache map[string]storage.CachedAudio
	now   func() time.Time
}

var (
	_ storage.Repository = (*Store)(nil)
	_ storage.AudioCache = (*Store)(nil)
)

func New() *Store {
	return &Store{
		users: make(map[int64]*domain.User),
		cache: make(map[string]storage.CachedAudio),
		now:   time.Now,
	}
}

// SetClock подменяет источник времени
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) GetUser(_ context.Context, telegramID int64) (*domain.User, error) {
	if err := storage.ValidateTelegramID(telegramID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[telegramID]
	if !ok {
		return nil, nil
	}
	return cloneUser(u), nil
}

func (s *Store) CreateOrUpdateUser(_ context.Context, telegramID int64, patch domain.UserPatch) (*domain.User, error) {
	if err := storage.ValidateTelegramID(telegramID); err != nil {
		return nil, err
	}
	patch = storage.NormalizeLanguage(patch)

	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.ensureUser(telegramID)
	if patch.FirstName != nil {
		u.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		u.LastName = *patch.LastName
	}
	if patch.Username != nil {
		u.Username = *patch.Username
	}
	if patch.Language != nil {
		u.Language = *patch.Language
	}
	now := s.now().UTC()
	u.LastActive = now
	u.UpdatedAt = now
	return cloneUser(u), nil
}

func (s *Store) AddToFavorites(_ context.Context, telegramID int64, track domain.Track) ([]domain.StoredTrack, error) {
	stored, err := s.prepare(telegramID, track)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.ensureUser(telegramID)
	if indexOf(u.Favorites, stored.TrackID) < 0 {
		u.Favorites = append(u.Favorites, stored)
		u.UpdatedAt = stored.AddedAt
	}
	return cloneTracks(u.Favorites), nil
}

func (s *Store) RemoveFromFavorites(_ context.Context, telegramID int64, trackID string) ([]domain.StoredTrack, error) {
	if err := storage.ValidateTelegramID(telegramID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.ensureUser(telegramID)
	if i := indexOf(u.Favorites, trackID); i >= 0 {
		u.Favorites = append(u.Favorites[:i], u.Favorites[i+1:]...)
		u.UpdatedAt = s.now().UTC()
	}
	return cloneTracks(u.Favorites), nil
}

func (s *Store) AddToRecentlyPlayed(_ context.Context, telegramID int64, track domain.Track) ([]domain.StoredTrack, error) {
	stored, err := s.prepare(telegramID, track)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.ensureUser(telegramID)
	if i := indexOf(u.RecentlyPlayed, stored.TrackID); i >= 0 {
		u.RecentlyPlayed = append(u.RecentlyPlayed[:i], u.RecentlyPlayed[i+1:]...)
	}
	u.RecentlyPlayed = append([]domain.StoredTrack{stored}, u.RecentlyPlayed...)
	if len(u.RecentlyPlayed) > domain.MaxRecentlyPlayed {
		u.RecentlyPlayed = u.RecentlyPlayed[:domain.MaxRecentlyPlayed]
	}
	u.UpdatedAt = stored.AddedAt
	return cloneTracks(u.RecentlyPlayed), nil
}

func (s *Store) CreatePlaylist(_ context.Context, telegramID int64, name, description string) ([]domain.Playlist, error) {
	if err := storage.ValidateTelegramID(telegramID); err != nil {
		return nil, err
	}
	name, description, err := storage.NormalizePlaylist(name, description)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.ensureUser(telegramID)
	if playlistIndex(u.Playlists, name) >= 0 {
		return nil, domain.Errorf(domain.ErrPlaylistExists, "%q", name)
	}
	now := s.now().UTC()
	u.Playlists = append(u.Playlists, domain.Playlist{
		Name:        name,
		Description: description,
		Tracks:      []domain.StoredTrack{},
		CreatedAt:   now,
	})
	u.UpdatedAt = now
	return clonePlaylists(u.Playlists), nil
}

func (s *Store) AddToPlaylist(_ context.Context, telegramID int64, playlistName string, track domain.Track) ([]domain.Playlist, error) {
	stored, err := s.prepare(telegramID, track)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.ensureUser(telegramID)
	i := playlistIndex(u.Playlists, strings.TrimSpace(playlistName))
	if i < 0 {
		return nil, domain.Errorf(domain.ErrNoSuchPlaylist, "%q", playlistName)
	}
	if indexOf(u.Playlists[i].Tracks, stored.TrackID) < 0 {
		u.Playlists[i].Tracks = append(u.Playlists[i].Tracks, stored)
		u.UpdatedAt = stored.AddedAt
	}
	return clonePlaylists(u.Playlists), nil
}

func (s *Store) DeletePlaylist(_ context.Context, telegramID int64, name string) ([]domain.Playlist, error) {
	if err := storage.ValidateTelegramID(telegramID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.ensureUser(telegramID)
	if i := playlistIndex(u.Playlists, strings.TrimSpace(name)); i >= 0 {
		u.Playlists = append(u.Playlists[:i], u.Playlists[i+1:]...)
		u.UpdatedAt = s.now().UTC()
	}
	return clonePlaylists(u.Playlists), nil
}

func (s *Store) Ping(context.Context) error  { return nil }
func (s *Store) Close(context.Context) error { return nil }

func (s *Store) GetAudioFromCache(_ context.Context, audioURL string) (*storage.CachedAudio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[storage.CacheKey(audioURL)]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (s *Store) SaveAudioToCache(_ context.Context, audioURL, telegramFileID string) error {
	key := storage.CacheKey(audioURL)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = storage.CachedAudio{AudioURL: key, TelegramFileID: telegramFileID, CreatedAt: s.now().UTC()}
	return nil
}

func (s *Store) DeleteAudioFromCache(_ context.Context, audioURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, storage.CacheKey(audioURL))
	return nil
}

func (s *Store) CleanOldCache(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().UTC().Add(-olderThan)
	var removed int64
	for key, entry := range s.cache {
		if entry.CreatedAt.Before(cutoff) {
			delete(s.cache, key)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) ClearAudioCache(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.cache))
	s.cache = make(map[string]storage.CachedAudio)
	return n, nil
}

func (s *Store) GetCacheStats(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.cache)), nil
}

func (s *Store) prepare(telegramID int64, track domain.Track) (domain.StoredTrack, error) {
	if err := storage.ValidateTelegramID(telegramID); err != nil {
		return domain.StoredTrack{}, err
	}
	s.mu.Lock()
	now := s.now()
	s.mu.Unlock()
	return domain.NormalizeTrack(track, now)
}

// ensureUser вызывается под s.mu
func (s *Store) ensureUser(telegramID int64) *domain.User {
	if u, ok := s.users[telegramID]; ok {
		return u
	}
	now := s.now().UTC()
	u := &domain.User{
		TelegramID:     telegramID,
		Language:       domain.DefaultLanguage,
		Favorites:      []domain.StoredTrack{},
		RecentlyPlayed: []domain.StoredTrack{},
		Playlists:      []domain.Playlist{},
		LastActive:     now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.users[telegramID] = u
	return u
}

func indexOf(tracks []domain.StoredTrack, trackID string) int {
	for i, t := range tracks {
		if t.TrackID == trackID {
			return i
		}
	}
	return -1
}

func playlistIndex(playlists []domain.Playlist, name string) int {
	for i, p := range playlists {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func cloneTracks(tracks []domain.StoredTrack) []domain.StoredTrack {
	out := make([]domain.StoredTrack, len(tracks))
	copy(out, tracks)
	return out
}

func clonePlaylists(playlists []domain.Playlist) []domain.Playlist {
	out := make([]domain.Playlist, len(playlists))
	for i, p := range playlists {
		p.Tracks = cloneTracks(p.Tracks)
		out[i] = p
	}
	return out
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.Favorites = cloneTracks(u.Favorites)
	c.RecentlyPlayed = cloneTracks(u.RecentlyPlayed)
	c.Playlists = clonePlaylists(u.Playlists)
	return &c
}

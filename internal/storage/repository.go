package storage

import (
	"context"
	"strings"
	"unicode/utf8"

	"MusicDownloader/internal/domain"
)

// Repository библиотека пользователя: профиль, избранное, недавние и плейлисты.
// Все изменяющие методы создают пользователя, если его ещё нет.
type Repository interface {
	// GetUser возвращает nil, nil если пользователь не найден
	GetUser(ctx context.Context, telegramID int64) (*domain.User, error)
	CreateOrUpdateUser(ctx context.Context, telegramID int64, patch domain.UserPatch) (*domain.User, error)

	AddToFavorites(ctx context.Context, telegramID int64, track domain.Track) ([]domain.StoredTrack, error)
	RemoveFromFavorites(ctx context.Context, telegramID int64, trackID string) ([]domain.StoredTrack, error)
	AddToRecentlyPlayed(ctx context.Context, telegramID int64, track domain.Track) ([]domain.StoredTrack, error)

	// CreatePlaylist возвращает domain.ErrPlaylistExists, если имя занято
	CreatePlaylist(ctx context.Context, telegramID int64, name, description string) ([]domain.Playlist, error)
	// AddToPlaylist возвращает domain.ErrNoSuchPlaylist, если плейлиста нет
	AddToPlaylist(ctx context.Context, telegramID int64, playlistName string, track domain.Track) ([]domain.Playlist, error)
	DeletePlaylist(ctx context.Context, telegramID int64, name string) ([]domain.Playlist, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// ValidateTelegramID проверяет идентификатор пользователя
func ValidateTelegramID(telegramID int64) error {
	if telegramID <= 0 {
		return domain.Errorf(domain.ErrInvalidUser, "telegram id %d", telegramID)
	}
	return nil
}

// NormalizePlaylist проверяет имя и обрезает описание плейлиста
func NormalizePlaylist(name, description string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", domain.Errorf(domain.ErrInvalidInput, "playlist name is required")
	}
	if utf8.RuneCountInString(name) > domain.MaxPlaylistNameLen {
		return "", "", domain.Errorf(domain.ErrInvalidInput, "playlist name longer than %d characters", domain.MaxPlaylistNameLen)
	}
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > domain.MaxPlaylistDescriptionLen {
		description = string([]rune(description)[:domain.MaxPlaylistDescriptionLen])
	}
	return name, description, nil
}

// NormalizeLanguage возвращает язык из patch, если он поддерживается
func NormalizeLanguage(patch domain.UserPatch) domain.UserPatch {
	if patch.Language != nil && !domain.IsSupportedLanguage(*patch.Language) {
		patch.Language = nil
	}
	return patch
}

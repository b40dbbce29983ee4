package storage

import (
	"context"
	"strings"
	"time"
)

// CachedAudio запись в кэше: Telegram file_id уже отправленного аудио
type CachedAudio struct {
	AudioURL       string
	TelegramFileID string
	CreatedAt      time.Time
}

// AudioCache кэш file_id по адресу аудио
type AudioCache interface {
	// GetAudioFromCache возвращает nil, nil если записи нет
	GetAudioFromCache(ctx context.Context, audioURL string) (*CachedAudio, error)
	SaveAudioToCache(ctx context.Context, audioURL, telegramFileID string) error
	DeleteAudioFromCache(ctx context.Context, audioURL string) error
	// CleanOldCache удаляет записи старше olderThan и возвращает их число
	CleanOldCache(ctx context.Context, olderThan time.Duration) (int64, error)
	// ClearAudioCache удаляет все записи
	ClearAudioCache(ctx context.Context) (int64, error)
	GetCacheStats(ctx context.Context) (int64, error)
}

// CacheKey приводит адрес аудио к ключу кэша
func CacheKey(audioURL string) string {
	return strings.TrimSpace(audioURL)
}

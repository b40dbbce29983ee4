package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"MusicDownloader/internal/storage"
)

// GetAudioFromCache получает file_id аудио из кэша по URL
func (s *Store) GetAudioFromCache(ctx context.Context, audioURL string) (*storage.CachedAudio, error) {
	query := `SELECT url, telegram_file_id, created_at FROM audio_cache WHERE url = $1`

	var cache storage.CachedAudio
	err := s.db.QueryRowContext(ctx, query, storage.CacheKey(audioURL)).Scan(&cache.AudioURL, &cache.TelegramFileID, &cache.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения аудио из кэша: %w", err)
	}
	return &cache, nil
}

// SaveAudioToCache сохраняет file_id аудио в кэш
func (s *Store) SaveAudioToCache(ctx context.Context, audioURL, telegramFileID string) error {
	query := `INSERT INTO audio_cache (url, telegram_file_id) VALUES ($1, $2)
			  ON CONFLICT (url) DO UPDATE SET
			  telegram_file_id = EXCLUDED.telegram_file_id,
			  created_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, storage.CacheKey(audioURL), telegramFileID); err != nil {
		return fmt.Errorf("ошибка сохранения аудио в кэш: %w", err)
	}
	return nil
}

// DeleteAudioFromCache удаляет аудио из кэша
func (s *Store) DeleteAudioFromCache(ctx context.Context, audioURL string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM audio_cache WHERE url = $1`, storage.CacheKey(audioURL)); err != nil {
		return fmt.Errorf("ошибка удаления аудио из кэша: %w", err)
	}
	return nil
}

// CleanOldCache удаляет записи старше olderThan
func (s *Store) CleanOldCache(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := s.db.ExecContext(ctx, `DELETE FROM audio_cache WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки старого кэша: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	s.logger.Info("Удалено %d старых записей из кэша", rowsAffected)
	return rowsAffected, nil
}

// ClearAudioCache удаляет весь кэш
func (s *Store) ClearAudioCache(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM audio_cache`)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки кэша: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	return rowsAffected, nil
}

// GetCacheStats возвращает количество записей в кэше
func (s *Store) GetCacheStats(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audio_cache`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка получения статистики кэша: %w", err)
	}
	return count, nil
}

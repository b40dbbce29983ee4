package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"MusicDownloader/internal/storage"
)

const cachePrefix = "musicbot:audio:"

type cachedAudio struct {
	FileID    string    `json:"file_id"`
	CreatedAt time.Time `json:"created_at"`
}

// AudioCache кэш file_id в Redis. Записи истекают сами через TTL.
type AudioCache struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

var _ storage.AudioCache = (*AudioCache)(nil)

func NewAudioCache(client *redis.Client, ttl time.Duration) *AudioCache {
	return &AudioCache{client: client, ttl: ttl, now: time.Now}
}

// Open подключается по адресу вида redis://host:port/db
func Open(ctx context.Context, url string, ttl time.Duration) (*AudioCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("некорректный REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redis недоступен: %w", err)
	}
	return NewAudioCache(client, ttl), nil
}

func (c *AudioCache) GetAudioFromCache(ctx context.Context, audioURL string) (*storage.CachedAudio, error) {
	key := storage.CacheKey(audioURL)
	data, err := c.client.Get(ctx, cachePrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения аудио из кэша: %w", err)
	}
	var entry cachedAudio
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("повреждённая запись кэша: %w", err)
	}
	return &storage.CachedAudio{AudioURL: key, TelegramFileID: entry.FileID, CreatedAt: entry.CreatedAt}, nil
}

func (c *AudioCache) SaveAudioToCache(ctx context.Context, audioURL, telegramFileID string) error {
	data, err := json.Marshal(cachedAudio{FileID: telegramFileID, CreatedAt: c.now().UTC()})
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, cachePrefix+storage.CacheKey(audioURL), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("ошибка сохранения аудио в кэш: %w", err)
	}
	return nil
}

func (c *AudioCache) DeleteAudioFromCache(ctx context.Context, audioURL string) error {
	return c.client.Del(ctx, cachePrefix+storage.CacheKey(audioURL)).Err()
}

// CleanOldCache удаляет записи старше olderThan, не дожидаясь TTL
func (c *AudioCache) CleanOldCache(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := c.now().UTC().Add(-olderThan)
	var removed int64
	err := c.scan(ctx, func(key string) error {
		data, err := c.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		var entry cachedAudio
		if json.Unmarshal(data, &entry) != nil || entry.CreatedAt.Before(cutoff) {
			n, err := c.client.Del(ctx, key).Result()
			if err != nil {
				return err
			}
			removed += n
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("ошибка очистки старого кэша: %w", err)
	}
	return removed, nil
}

func (c *AudioCache) ClearAudioCache(ctx context.Context) (int64, error) {
	var removed int64
	err := c.scan(ctx, func(key string) error {
		n, err := c.client.Del(ctx, key).Result()
		removed += n
		return err
	})
	if err != nil {
		return removed, fmt.Errorf("ошибка очистки кэша: %w", err)
	}
	return removed, nil
}

func (c *AudioCache) GetCacheStats(ctx context.Context) (int64, error) {
	var count int64
	err := c.scan(ctx, func(string) error {
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("ошибка получения статистики кэша: %w", err)
	}
	return count, nil
}

func (c *AudioCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *AudioCache) Close() error {
	return c.client.Close()
}

func (c *AudioCache) scan(ctx context.Context, fn func(key string) error) error {
	iter := c.client.Scan(ctx, 0, cachePrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	return iter.Err()
}

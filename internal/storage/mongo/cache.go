package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"MusicDownloader/internal/storage"
)

type cachedAudioDoc struct {
	URL            string    `bson:"_id"`
	TelegramFileID string    `bson:"telegramFileId"`
	CreatedAt      time.Time `bson:"createdAt"`
}

func (s *Store) GetAudioFromCache(ctx context.Context, audioURL string) (*storage.CachedAudio, error) {
	var doc cachedAudioDoc
	err := s.cache.FindOne(ctx, bson.M{"_id": storage.CacheKey(audioURL)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения аудио из кэша: %w", err)
	}
	return &storage.CachedAudio{AudioURL: doc.URL, TelegramFileID: doc.TelegramFileID, CreatedAt: doc.CreatedAt}, nil
}

func (s *Store) SaveAudioToCache(ctx context.Context, audioURL, telegramFileID string) error {
	_, err := s.cache.UpdateOne(ctx,
		bson.M{"_id": storage.CacheKey(audioURL)},
		bson.M{"$set": bson.M{"telegramFileId": telegramFileID, "createdAt": s.now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения аудио в кэш: %w", err)
	}
	return nil
}

func (s *Store) DeleteAudioFromCache(ctx context.Context, audioURL string) error {
	if _, err := s.cache.DeleteOne(ctx, bson.M{"_id": storage.CacheKey(audioURL)}); err != nil {
		return fmt.Errorf("ошибка удаления аудио из кэша: %w", err)
	}
	return nil
}

func (s *Store) CleanOldCache(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-olderThan)
	res, err := s.cache.DeleteMany(ctx, bson.M{"createdAt": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки старого кэша: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) ClearAudioCache(ctx context.Context) (int64, error) {
	res, err := s.cache.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки кэша: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) GetCacheStats(ctx context.Context) (int64, error) {
	count, err := s.cache.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("ошибка получения статистики кэша: %w", err)
	}
	return count, nil
}

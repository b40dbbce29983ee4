package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"MusicDownloader/internal/storage/storagetest"
)

func setupTestCache(t *testing.T) *AudioCache {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return NewAudioCache(client, time.Hour)
}

func TestAudioCache(t *testing.T) {
	storagetest.RunAudioCacheSuite(t, setupTestCache(t))
}

func TestCleanOldCache(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if err := c.SaveAudioToCache(ctx, "https://cdn/old-entry.mp3", "old"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(48 * time.Hour)
	if err := c.SaveAudioToCache(ctx, "https://cdn/new-entry.mp3", "new"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _, _ = c.ClearAudioCache(context.Background()) })

	removed, err := c.CleanOldCache(ctx, 24*time.Hour)
	if err != nil || removed < 1 {
		t.Fatalf("CleanOldCache = %d, %v", removed, err)
	}
	if got, _ := c.GetAudioFromCache(ctx, "https://cdn/new-entry.mp3"); got == nil || got.TelegramFileID != "new" {
		t.Fatalf("fresh entry = %+v", got)
	}
	if got, _ := c.GetAudioFromCache(ctx, "https://cdn/old-entry.mp3"); got != nil {
		t.Fatal("old entry must be removed")
	}
}

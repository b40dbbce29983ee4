// Package storagetest общие проверки поведения хранилищ
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"MusicDownloader/internal/domain"
	"MusicDownloader/internal/storage"
)

var nextUser atomic.Int64

func init() {
	nextUser.Store(time.Now().UnixNano() % 1_000_000_000)
}

// UserID уникальный идентификатор, чтобы прогоны на общей базе не пересекались
func UserID() int64 {
	return nextUser.Add(1)
}

func track(performer, title string) domain.Track {
	return domain.NewTrack(0, performer, title, "https://cdn.example/"+strings.ToLower(title)+".mp3")
}

// RunRepositorySuite проверяет контракт storage.Repository
func RunRepositorySuite(t *testing.T, repo storage.Repository) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissingUser", func(t *testing.T) {
		u, err := repo.GetUser(ctx, UserID())
		if err != nil || u != nil {
			t.Fatalf("GetUser = %v, %v; want nil, nil", u, err)
		}
	})

	t.Run("InvalidUser", func(t *testing.T) {
		_, err := repo.AddToFavorites(ctx, 0, track("A", "B"))
		if !errors.Is(err, domain.ErrInvalidUser) {
			t.Fatalf("err = %v, want ErrInvalidUser", err)
		}
	})

	t.Run("CreateOrUpdateUser", func(t *testing.T) {
		id := UserID()
		u, err := repo.CreateOrUpdateUser(ctx, id, domain.UserPatch{FirstName: domain.StringPtr("Ali")})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if u.TelegramID != id || u.FirstName != "Ali" || u.Language != domain.DefaultLanguage {
			t.Fatalf("created user = %+v", u)
		}
		u, err = repo.CreateOrUpdateUser(ctx, id, domain.UserPatch{
			Username: domain.StringPtr("ali"),
			Language: domain.StringPtr(domain.LangRu),
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if u.FirstName != "Ali" || u.Username != "ali" || u.Language != domain.LangRu {
			t.Fatalf("patch must keep unset fields: %+v", u)
		}
		u, err = repo.CreateOrUpdateUser(ctx, id, domain.UserPatch{Language: domain.StringPtr("de")})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if u.Language != domain.LangRu {
			t.Fatalf("unsupported language must be ignored, got %q", u.Language)
		}
	})

	t.Run("FavoritesDeduplicate", func(t *testing.T) {
		id := UserID()
		if _, err := repo.AddToFavorites(ctx, id, track("Sting", "Desert Rose")); err != nil {
			t.Fatalf("add: %v", err)
		}
		favs, err := repo.AddToFavorites(ctx, id, track("  STING", "desert rose!"))
		if err != nil {
			t.Fatalf("add again: %v", err)
		}
		if len(favs) != 1 {
			t.Fatalf("favorites = %d, want 1", len(favs))
		}
		favs, err = repo.RemoveFromFavorites(ctx, id, favs[0].TrackID)
		if err != nil || len(favs) != 0 {
			t.Fatalf("remove = %d, %v", len(favs), err)
		}
		favs, err = repo.RemoveFromFavorites(ctx, id, "missing")
		if err != nil || len(favs) != 0 {
			t.Fatalf("remove missing = %d, %v", len(favs), err)
		}
	})

	t.Run("FavoritesRejectInvalidTrack", func(t *testing.T) {
		_, err := repo.AddToFavorites(ctx, UserID(), domain.Track{Title: "No performer"})
		if !errors.Is(err, domain.ErrInvalidTrack) {
			t.Fatalf("err = %v, want ErrInvalidTrack", err)
		}
	})

	t.Run("RecentlyPlayedOrderAndCap", func(t *testing.T) {
		id := UserID()
		for i := 0; i < domain.MaxRecentlyPlayed+5; i++ {
			if _, err := repo.AddToRecentlyPlayed(ctx, id, track("Artist", fmt.Sprintf("Song %d", i))); err != nil {
				t.Fatalf("add %d: %v", i, err)
			}
		}
		recent, err := repo.AddToRecentlyPlayed(ctx, id, track("Artist", "Song 10"))
		if err != nil {
			t.Fatalf("replay: %v", err)
		}
		if len(recent) != domain.MaxRecentlyPlayed {
			t.Fatalf("recent = %d, want %d", len(recent), domain.MaxRecentlyPlayed)
		}
		if recent[0].Title != "Song 10" {
			t.Fatalf("replayed track must be first, got %q", recent[0].Title)
		}
		if recent[1].Title != fmt.Sprintf("Song %d", domain.MaxRecentlyPlayed+4) {
			t.Fatalf("second = %q", recent[1].Title)
		}
		seen := map[string]bool{}
		for _, tr := range recent {
			if seen[tr.TrackID] {
				t.Fatalf("duplicate %q in recently played", tr.TrackID)
			}
			seen[tr.TrackID] = true
		}
	})

	t.Run("Playlists", func(t *testing.T) {
		id := UserID()
		lists, err := repo.CreatePlaylist(ctx, id, "  Road  ", "trip")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if len(lists) != 1 || lists[0].Name != "Road" || lists[0].Description != "trip" {
			t.Fatalf("playlists = %+v", lists)
		}
		if _, err := repo.CreatePlaylist(ctx, id, "Road", ""); !errors.Is(err, domain.ErrPlaylistExists) {
			t.Fatalf("duplicate create err = %v", err)
		}
		if _, err := repo.CreatePlaylist(ctx, id, "   ", ""); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("blank name err = %v", err)
		}
		if _, err := repo.AddToPlaylist(ctx, id, "Nope", track("A", "B")); !errors.Is(err, domain.ErrNoSuchPlaylist) {
			t.Fatalf("missing playlist err = %v", err)
		}

		if _, err := repo.AddToPlaylist(ctx, id, "Road", track("Queen", "Bicycle")); err != nil {
			t.Fatalf("add: %v", err)
		}
		lists, err = repo.AddToPlaylist(ctx, id, "Road", track("queen", "BICYCLE"))
		if err != nil {
			t.Fatalf("add again: %v", err)
		}
		if len(lists[0].Tracks) != 1 {
			t.Fatalf("playlist tracks = %d, want 1", len(lists[0].Tracks))
		}

		lists, err = repo.DeletePlaylist(ctx, id, "Road")
		if err != nil || len(lists) != 0 {
			t.Fatalf("delete = %+v, %v", lists, err)
		}
		lists, err = repo.DeletePlaylist(ctx, id, "Road")
		if err != nil || len(lists) != 0 {
			t.Fatalf("delete missing = %+v, %v", lists, err)
		}
	})

	t.Run("GetUserReturnsLibrary", func(t *testing.T) {
		id := UserID()
		if _, err := repo.AddToFavorites(ctx, id, track("Adele", "Hello")); err != nil {
			t.Fatalf("add: %v", err)
		}
		if _, err := repo.CreatePlaylist(ctx, id, "Mix", ""); err != nil {
			t.Fatalf("create: %v", err)
		}
		u, err := repo.GetUser(ctx, id)
		if err != nil || u == nil {
			t.Fatalf("GetUser = %v, %v", u, err)
		}
		if len(u.Favorites) != 1 || u.Favorites[0].TrackID != domain.BuildTrackID("Adele", "Hello") {
			t.Fatalf("favorites = %+v", u.Favorites)
		}
		if len(u.Playlists) != 1 || u.Playlists[0].Name != "Mix" {
			t.Fatalf("playlists = %+v", u.Playlists)
		}
	})
}

// RunAudioCacheSuite проверяет контракт storage.AudioCache
func RunAudioCacheSuite(t *testing.T, cache storage.AudioCache) {
	t.Helper()
	ctx := context.Background()
	url := fmt.Sprintf("https://cdn.example/%d.mp3", UserID())

	got, err := cache.GetAudioFromCache(ctx, url)
	if err != nil || got != nil {
		t.Fatalf("miss = %v, %v", got, err)
	}
	if err := cache.SaveAudioToCache(ctx, url, "file-1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := cache.SaveAudioToCache(ctx, url, "file-2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err = cache.GetAudioFromCache(ctx, url)
	if err != nil || got == nil || got.TelegramFileID != "file-2" {
		t.Fatalf("hit = %+v, %v", got, err)
	}
	count, err := cache.GetCacheStats(ctx)
	if err != nil || count < 1 {
		t.Fatalf("stats = %d, %v", count, err)
	}
	if err := cache.DeleteAudioFromCache(ctx, url); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = cache.GetAudioFromCache(ctx, url)
	if err != nil || got != nil {
		t.Fatalf("after delete = %v, %v", got, err)
	}

	if err := cache.SaveAudioToCache(ctx, url, "file-3"); err != nil {
		t.Fatalf("save: %v", err)
	}
	removed, err := cache.ClearAudioCache(ctx)
	if err != nil || removed < 1 {
		t.Fatalf("clear = %d, %v", removed, err)
	}
	if count, _ := cache.GetCacheStats(ctx); count != 0 {
		t.Fatalf("stats after clear = %d", count)
	}
}

package searchstore

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"MusicDownloader/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func makeTracks(n int) []domain.Track {
	tracks := make([]domain.Track, n)
	for i := range tracks {
		tracks[i] = domain.NewTrack(i, fmt.Sprintf("Artist %d", i), "Song", fmt.Sprintf("https://cdn/%d.mp3", i))
	}
	return tracks
}

func TestSaveAssignsMonotonicIDs(t *testing.T) {
	s := New()
	for want := int64(1); want <= 3; want++ {
		if got := s.Save("q", makeTracks(1)); got != want {
			t.Fatalf("Save id = %d, want %d", got, want)
		}
	}
}

func TestSaveCopiesTracks(t *testing.T) {
	s := New()
	tracks := makeTracks(2)
	id := s.Save("q", tracks)
	tracks[0].Name = "mutated"

	entry, ok := s.Get(id)
	if !ok {
		t.Fatal("entry missing")
	}
	if entry.Tracks[0].Name == "mutated" {
		t.Fatal("stored tracks must not alias the caller's slice")
	}
	if entry.Keyword != "q" || entry.ID != id {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestGetHonoursTTLWithoutSweep(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := New(WithClock(clock.Now), WithTTL(time.Hour))
	id := s.Save("piano", makeTracks(3))

	clock.Advance(time.Hour)
	if _, ok := s.Get(id); !ok {
		t.Fatal("entry must be retrievable at exactly T+TTL")
	}

	clock.Advance(time.Nanosecond)
	if _, ok := s.Get(id); ok {
		t.Fatal("entry must be absent after T+TTL")
	}
	if s.Len() != 0 {
		t.Fatal("expired entry must be deleted on read")
	}
}

func TestPurgeRemovesOnlyExpired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := New(WithClock(clock.Now))
	oldID := s.Save("old", makeTracks(1))
	clock.Advance(45 * time.Minute)
	newID := s.Save("new", makeTracks(1))
	clock.Advance(30 * time.Minute)

	if removed := s.Purge(); removed != 1 {
		t.Fatalf("Purge removed %d, want 1", removed)
	}
	if _, ok := s.Get(oldID); ok {
		t.Fatal("old entry should be gone")
	}
	if _, ok := s.Get(newID); !ok {
		t.Fatal("new entry should survive")
	}
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	s := New(WithClock(clock.Now), WithTTL(time.Minute), WithSweepInterval(5*time.Millisecond))
	s.Save("q", makeTracks(1))
	clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweep did not remove the expired entry")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestPaginate(t *testing.T) {
	s := New()
	tracks := makeTracks(25)
	id := s.Save("piano", tracks)
	entry, _ := s.Get(id)

	sizes := []int{10, 10, 5}
	for page, want := range sizes {
		p := Paginate(entry.Tracks, page)
		if len(p.Tracks) != want || p.Index != page || p.Total != 3 {
			t.Fatalf("page %d: %d tracks, index %d, total %d", page, len(p.Tracks), p.Index, p.Total)
		}
		if p.Start != page*PageSize || p.Tracks[0].Index != page*PageSize {
			t.Fatalf("page %d starts at %d", page, p.Start)
		}
	}

	last := Paginate(entry.Tracks, 5)
	if last.Index != 2 || len(last.Tracks) != 5 {
		t.Fatalf("page 5 should clamp to 2, got index %d with %d tracks", last.Index, len(last.Tracks))
	}
	if first := Paginate(entry.Tracks, -3); first.Index != 0 {
		t.Fatalf("negative page should clamp to 0, got %d", first.Index)
	}
}

func TestPaginateEmpty(t *testing.T) {
	p := Paginate(nil, 4)
	if p.Index != 0 || p.Total != 1 || len(p.Tracks) != 0 {
		t.Fatalf("empty page = %+v", p)
	}
}

func TestTrackAt(t *testing.T) {
	tracks := makeTracks(25)
	if tr, ok := TrackAt(tracks, 1, 3); !ok || tr.Index != 12 {
		t.Fatalf("TrackAt(1,3) = %+v, %v", tr, ok)
	}
	if _, ok := TrackAt(tracks, 2, 6); ok {
		t.Fatal("slot 6 on the last page is empty")
	}
	if _, ok := TrackAt(tracks, 0, 0); ok {
		t.Fatal("slot numbers start at 1")
	}
	if _, ok := TrackAt(tracks, 0, 11); ok {
		t.Fatal("slot numbers stop at 10")
	}
	if _, ok := TrackAt(tracks, 3, 1); ok {
		t.Fatal("page past the end")
	}
}

func TestTrackAtHugePage(t *testing.T) {
	tracks := makeTracks(1)
	for _, page := range []int{math.MaxInt/PageSize + 1, math.MaxInt} {
		if _, ok := TrackAt(tracks, page, 1); ok {
			t.Fatalf("TrackAt(%d, 1) must fail", page)
		}
	}
}

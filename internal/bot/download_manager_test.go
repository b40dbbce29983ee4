package bot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"MusicDownloader/internal/downloader"
)

func isActive(dm *DownloadManager, url string) bool {
	for _, info := range dm.GetActiveDownloads() {
		if info.URL == url {
			return true
		}
	}
	return false
}

func TestDoSharesInFlightDownload(t *testing.T) {
	dm := NewDownloadManager(downloader.NewQueue(2, 0))

	release := make(chan struct{})
	var calls atomic.Int32
	fn := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "file-1", nil
	}

	type result struct {
		fileID string
		shared bool
		err    error
	}
	results := make(chan result, 3)
	go func() {
		id, shared, err := dm.Do(context.Background(), "https://cdn/a.mp3", 1, fn)
		results <- result{id, shared, err}
	}()
	deadline := time.Now().Add(2 * time.Second)
	for !isActive(dm, "https://cdn/a.mp3") {
		if time.Now().After(deadline) {
			t.Fatal("download never started")
		}
		time.Sleep(time.Millisecond)
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			id, shared, err := dm.Do(context.Background(), "https://cdn/a.mp3", user, fn)
			results <- result{id, shared, err}
		}(int64(i + 2))
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	sharedCount := 0
	for i := 0; i < 3; i++ {
		r := <-results
		if r.err != nil || r.fileID != "file-1" {
			t.Fatalf("result = %+v", r)
		}
		if r.shared {
			sharedCount++
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("fn called %d times", calls.Load())
	}
	if sharedCount != 2 {
		t.Fatalf("shared = %d, want 2", sharedCount)
	}
	if isActive(dm, "https://cdn/a.mp3") {
		t.Fatal("download must be unregistered")
	}
}

func TestDoPropagatesLeaderError(t *testing.T) {
	dm := NewDownloadManager(downloader.NewQueue(1, 0))
	boom := errors.New("boom")

	info, started := dm.StartDownload("https://cdn/b.mp3", "req", 1)
	if !started {
		t.Fatal("first StartDownload must start")
	}
	done := make(chan error, 1)
	go func() {
		_, shared, err := dm.Do(context.Background(), "https://cdn/b.mp3", 2, func(context.Context) (string, error) {
			t.Error("waiter must not run fn")
			return "", nil
		})
		if !shared {
			t.Error("waiter must be shared")
		}
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	dm.FinishDownload(info.URL, "", boom)

	if err := <-done; !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestWaitForDownloadHonoursContext(t *testing.T) {
	dm := NewDownloadManager(downloader.NewQueue(1, 0))
	info, _ := dm.StartDownload("https://cdn/c.mp3", "req", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := dm.WaitForDownload(ctx, info); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	dm.FinishDownload(info.URL, "x", nil)
}

func TestDoReleasesOnPanic(t *testing.T) {
	dm := NewDownloadManager(downloader.NewQueue(1, 0))

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("panic must propagate")
			}
		}()
		_, _, _ = dm.Do(context.Background(), "https://cdn/d.mp3", 1, func(context.Context) (string, error) {
			panic("bad")
		})
	}()

	if isActive(dm, "https://cdn/d.mp3") {
		t.Fatal("download must be unregistered after panic")
	}
	active, _, _ := dm.QueueState()
	if active != 0 {
		t.Fatalf("active slots = %d", active)
	}
}

func TestGetActiveDownloadsSortedCopies(t *testing.T) {
	dm := NewDownloadManager(downloader.NewQueue(1, 0))
	first, _ := dm.StartDownload("https://cdn/1.mp3", "r1", 1)
	time.Sleep(2 * time.Millisecond)
	dm.StartDownload("https://cdn/2.mp3", "r2", 2)

	list := dm.GetActiveDownloads()
	if len(list) != 2 || list[0].RequestID != "r1" || list[1].RequestID != "r2" {
		t.Fatalf("list = %+v", list)
	}
	if list[0].Done != nil {
		t.Fatal("copies must not expose Done channel")
	}

	text := formatActiveDownloads(list, first.StartTime.Add(90*time.Second))
	if want := "📊 Активные скачивания (2):"; text[:len(want)] != want {
		t.Fatalf("text = %q", text)
	}
	if got := formatActiveDownloads(nil, time.Now()); got != "📊 Активных скачиваний нет" {
		t.Fatalf("empty = %q", got)
	}
}

func TestGenerateRequestID(t *testing.T) {
	a, b := GenerateRequestID(), GenerateRequestID()
	if len(a) != 8 || a == b {
		t.Fatalf("ids = %q, %q", a, b)
	}
}

func TestDoWaiterRetriesThroughQueueWhenLeaderHasNoFileID(t *testing.T) {
	queue := downloader.NewQueue(1, 0)
	dm := NewDownloadManager(queue)
	const url = "https://cdn/e.mp3"

	info, started := dm.StartDownload(url, "req", 1)
	if !started {
		t.Fatal("first StartDownload must start")
	}

	var activeInFn atomic.Int32
	type result struct {
		fileID string
		shared bool
		err    error
	}
	done := make(chan result, 1)
	go func() {
		id, shared, err := dm.Do(context.Background(), url, 2, func(context.Context) (string, error) {
			active, _, _ := dm.QueueState()
			activeInFn.Store(int32(active))
			return "file-2", nil
		})
		done <- result{id, shared, err}
	}()
	time.Sleep(10 * time.Millisecond)
	dm.FinishDownload(info.URL, "", nil)

	r := <-done
	if r.err != nil || r.fileID != "file-2" || r.shared {
		t.Fatalf("result = %+v", r)
	}
	if activeInFn.Load() != 1 {
		t.Fatalf("retry must hold a queue slot, active = %d", activeInFn.Load())
	}
	if active, _, _ := dm.QueueState(); active != 0 {
		t.Fatalf("slot not released, active = %d", active)
	}
}

func TestDoWaiterRetryWaitsForFreeSlot(t *testing.T) {
	queue := downloader.NewQueue(1, 0)
	dm := NewDownloadManager(queue)
	const url = "https://cdn/f.mp3"

	info, _ := dm.StartDownload(url, "req", 1)

	// слот занят другим скачиванием
	busy := make(chan struct{})
	holding := make(chan struct{})
	go func() {
		_ = queue.Run(context.Background(), func(context.Context) error {
			close(holding)
			<-busy
			return nil
		})
	}()
	<-holding

	var ran atomic.Bool
	done := make(chan error, 1)
	go func() {
		_, _, err := dm.Do(context.Background(), url, 2, func(context.Context) (string, error) {
			ran.Store(true)
			return "file-3", nil
		})
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	dm.FinishDownload(info.URL, "", nil)

	time.Sleep(30 * time.Millisecond)
	if ran.Load() {
		t.Fatal("retry ran without a free slot")
	}
	if _, waiting, _ := dm.QueueState(); waiting != 1 {
		t.Fatalf("waiting = %d, want 1", waiting)
	}

	close(busy)
	if err := <-done; err != nil {
		t.Fatalf("err = %v", err)
	}
	if !ran.Load() {
		t.Fatal("retry never ran")
	}
}

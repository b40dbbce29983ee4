package downloader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"MusicDownloader/internal/domain"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestQueueBoundsConcurrency(t *testing.T) {
	const limit, extra = 3, 7
	q := NewQueue(limit, 0)

	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < limit+extra; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Run(context.Background(), func(ctx context.Context) error {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if peak > limit {
		t.Fatalf("peak concurrency %d exceeds limit %d", peak, limit)
	}
	if q.Active() != 0 || q.Waiting() != 0 {
		t.Fatalf("queue not drained: active=%d waiting=%d", q.Active(), q.Waiting())
	}
}

func TestQueueReleasesWaitersInFIFOOrder(t *testing.T) {
	q := NewQueue(1, 0)
	gate := make(chan struct{})
	holderDone := make(chan struct{})
	go func() {
		defer close(holderDone)
		_ = q.Run(context.Background(), func(ctx context.Context) error {
			<-gate
			return nil
		})
	}()
	waitFor(t, func() bool { return q.Active() == 1 })

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 1; i <= 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_ = q.Run(context.Background(), func(ctx context.Context) error {
				mu.Lock()
				order = append(order, id)
				mu.Unlock()
				return nil
			})
		}(i)
		want := i
		waitFor(t, func() bool { return q.Waiting() == want })
	}

	close(gate)
	<-holderDone
	wg.Wait()

	for i, id := range order {
		if id != i+1 {
			t.Fatalf("order = %v, want 1..5", order)
		}
	}
}

func TestQueueReleasesOnErrorAndPanic(t *testing.T) {
	q := NewQueue(1, 0)
	boom := errors.New("boom")

	if err := q.Run(context.Background(), func(ctx context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Run error = %v", err)
	}
	if q.Active() != 0 {
		t.Fatalf("active after error = %d", q.Active())
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = q.Run(context.Background(), func(ctx context.Context) error { panic("task failed") })
	}()
	if q.Active() != 0 {
		t.Fatalf("active after panic = %d", q.Active())
	}

	done := make(chan struct{})
	go func() {
		_ = q.Run(context.Background(), func(ctx context.Context) error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("slot leaked after panic")
	}
}

func TestQueueWaitTimeout(t *testing.T) {
	q := NewQueue(1, 20*time.Millisecond)
	gate := make(chan struct{})
	defer close(gate)
	go func() {
		_ = q.Run(context.Background(), func(ctx context.Context) error {
			<-gate
			return nil
		})
	}()
	waitFor(t, func() bool { return q.Active() == 1 })

	ran := false
	err := q.Run(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	if !errors.Is(err, domain.ErrQueueTimeout) {
		t.Fatalf("expected ErrQueueTimeout, got %v", err)
	}
	if ran {
		t.Fatal("task must not run after timing out")
	}
	if q.Waiting() != 0 {
		t.Fatalf("waiter not withdrawn: %d", q.Waiting())
	}
}

func TestQueueContextCancelWhileWaiting(t *testing.T) {
	q := NewQueue(1, 0)
	gate := make(chan struct{})
	go func() {
		_ = q.Run(context.Background(), func(ctx context.Context) error {
			<-gate
			return nil
		})
	}()
	waitFor(t, func() bool { return q.Active() == 1 })

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Run(ctx, func(ctx context.Context) error { return nil })
	}()
	waitFor(t, func() bool { return q.Waiting() == 1 })
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(gate)
	waitFor(t, func() bool { return q.Active() == 0 })
}

func TestNewQueueClampsLimit(t *testing.T) {
	if q := NewQueue(0, 0); q.Limit() != 1 {
		t.Fatalf("limit = %d", q.Limit())
	}
}

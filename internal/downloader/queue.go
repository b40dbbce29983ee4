package downloader

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"MusicDownloader/internal/domain"
	"MusicDownloader/internal/metrics"
)

const DefaultMaxParallel = 5

// Queue ограничивает число одновременных скачиваний.
// Ожидающие получают слот строго в порядке прихода.
type Queue struct {
	mu          sync.Mutex
	limit       int
	active      int
	waiters     list.List
	waitTimeout time.Duration
}

// NewQueue создает очередь на maxParallel слотов.
// waitTimeout ограничивает ожидание слота; 0 ждёт без ограничения.
func NewQueue(maxParallel int, waitTimeout time.Duration) *Queue {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Queue{limit: maxParallel, waitTimeout: waitTimeout}
}

// Run выполняет task внутри слота. Слот освобождается ровно один раз, даже при панике.
func (q *Queue) Run(ctx context.Context, task func(ctx context.Context) error) error {
	if err := q.acquire(ctx); err != nil {
		return err
	}
	defer q.release()
	return task(ctx)
}

// Active число занятых слотов
func (q *Queue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Waiting число ожидающих
func (q *Queue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiters.Len()
}

// Limit максимальное число слотов
func (q *Queue) Limit() int {
	return q.limit
}

func (q *Queue) acquire(ctx context.Context) error {
	q.mu.Lock()
	if q.active < q.limit && q.waiters.Len() == 0 {
		q.active++
		q.publish()
		q.mu.Unlock()
		metrics.DownloadQueueWait.Observe(0)
		return nil
	}
	ready := make(chan struct{})
	elem := q.waiters.PushBack(ready)
	q.publish()
	q.mu.Unlock()

	start := time.Now()
	waitCtx := ctx
	if q.waitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, q.waitTimeout)
		defer cancel()
	}

	select {
	case <-ready:
		metrics.DownloadQueueWait.Observe(time.Since(start).Seconds())
		return nil
	case <-waitCtx.Done():
		q.mu.Lock()
		select {
		case <-ready:
			// слот уже передан нам, возвращаем его следующему
			q.mu.Unlock()
			q.release()
		default:
			q.waiters.Remove(elem)
			q.publish()
			q.mu.Unlock()
		}
		if ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return domain.Errorf(domain.ErrQueueTimeout, "waited %s", q.waitTimeout)
		}
		return ctx.Err()
	}
}

// release передает слот первому ожидающему или освобождает его
func (q *Queue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if front := q.waiters.Front(); front != nil {
		q.waiters.Remove(front)
		close(front.Value.(chan struct{}))
		q.publish()
		return
	}
	q.active--
	q.publish()
}

func (q *Queue) publish() {
	metrics.DownloadQueueActive.Set(float64(q.active))
	metrics.DownloadQueueWaiting.Set(float64(q.waiters.Len()))
}

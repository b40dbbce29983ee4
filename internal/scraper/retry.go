package scraper

import (
	"context"
	"errors"
	"time"

	"MusicDownloader/internal/domain"
	"MusicDownloader/internal/metrics"
)

// RetryConfig параметры экспоненциальной задержки между попытками
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig: 3 попытки, задержки 300ms и 600ms, потолок 1.5s
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 300 * time.Millisecond,
		MaxDelay:     1500 * time.Millisecond,
		Multiplier:   2,
	}
}

// Delay возвращает паузу после неудачной попытки attempt (с нуля)
func (cfg RetryConfig) Delay(attempt int) time.Duration {
	d := float64(cfg.InitialDelay)
	for i := 0; i < attempt; i++ {
		d *= cfg.Multiplier
		if cfg.MaxDelay > 0 && time.Duration(d) >= cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	if cfg.MaxDelay > 0 && time.Duration(d) > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return time.Duration(d)
}

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryWithBackoff повторяет fn, пока не кончатся попытки.
// Не повторяет пустой запрос и отмену родительского контекста.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, sleep sleepFunc, fn func(attempt int) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(ctx, lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}
		metrics.ScraperRetriesTotal.Inc()
		if err := sleep(ctx, cfg.Delay(attempt)); err != nil {
			return lastErr
		}
	}
	return lastErr
}

func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, domain.ErrInvalidQuery)
}

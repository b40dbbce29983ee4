package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"MusicDownloader/internal/domain"
	"MusicDownloader/internal/logger"
	"MusicDownloader/internal/metrics"
)

const (
	// MaxFileSize предельный размер аудиофайла
	MaxFileSize    = 50 * 1024 * 1024
	DefaultTimeout = 15 * time.Second
)

// Config настройки загрузчика аудио
type Config struct {
	Timeout  time.Duration
	MaxBytes int64
	Headers  http.Header
	Client   *http.Client
}

// Fetcher открывает аудиопотоки с сайта
type Fetcher struct {
	cfg    Config
	client *http.Client
	logger *logger.Logger
}

// NewFetcher создает загрузчик аудио
func NewFetcher(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = MaxFileSize
	}
	if cfg.Headers == nil {
		cfg.Headers = http.Header{}
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{cfg: cfg, client: client, logger: logger.New("DOWNLOADER")}
}

// AudioStream однократно читаемый поток аудио. Close прерывает запрос.
type AudioStream struct {
	body          io.ReadCloser
	limited       *limitReader
	cancel        context.CancelFunc
	closeOnce     sync.Once
	ContentLength int64
	ContentType   string
}

func (s *AudioStream) Read(p []byte) (int, error) {
	return s.limited.Read(p)
}

// Close закрывает тело ответа и отменяет запрос
func (s *AudioStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
		s.cancel()
		metrics.DownloadBytesTotal.Add(float64(s.limited.read))
	})
	return err
}

// BytesRead сколько байт уже прочитано
func (s *AudioStream) BytesRead() int64 {
	return s.limited.read
}

// Open выполняет GET и возвращает поток с ограничением размера.
// Таймаут действует до получения заголовков ответа.
func (f *Fetcher) Open(ctx context.Context, audioURL string) (*AudioStream, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(f.cfg.Timeout, cancel)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, audioURL, nil)
	if err != nil {
		timer.Stop()
		cancel()
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header = f.cfg.Headers.Clone()

	resp, err := f.client.Do(req)
	if !timer.Stop() {
		// таймер уже отменил запрос
		if err == nil {
			resp.Body.Close()
		}
		cancel()
		return nil, domain.Errorf(domain.ErrTimeout, "GET %s after %s", audioURL, f.cfg.Timeout)
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("GET %s: %w", audioURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		cancel()
		return nil, &domain.HTTPStatusError{StatusCode: resp.StatusCode, URL: audioURL}
	}

	if resp.ContentLength > f.cfg.MaxBytes {
		resp.Body.Close()
		cancel()
		return nil, domain.Errorf(domain.ErrFileTooLarge, "%d bytes declared, limit %d", resp.ContentLength, f.cfg.MaxBytes)
	}

	f.logger.Debug("Открыт поток %s (content-length=%d)", audioURL, resp.ContentLength)
	return &AudioStream{
		body:          resp.Body,
		limited:       &limitReader{r: resp.Body, max: f.cfg.MaxBytes},
		cancel:        cancel,
		ContentLength: resp.ContentLength,
		ContentType:   resp.Header.Get("Content-Type"),
	}, nil
}

// limitReader возвращает ErrFileTooLarge, как только прочитано больше max байт
type limitReader struct {
	r    io.Reader
	max  int64
	read int64
	err  error
}

func (l *limitReader) Read(p []byte) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.read > l.max {
		over := l.read - l.max
		n -= int(over)
		if n < 0 {
			n = 0
		}
		l.read = l.max
		l.err = domain.Errorf(domain.ErrFileTooLarge, "stream exceeded %d bytes", l.max)
		return n, l.err
	}
	return n, err
}

package downloader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"MusicDownloader/internal/domain"
)

func TestOpenRejectsDeclaredOversize(t *testing.T) {
	handlerDone := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(handlerDone)
		w.Header().Set("Content-Length", strconv.Itoa(60*1024*1024))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(make([]byte, 1024))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	f := NewFetcher(Config{Timeout: time.Second})
	start := time.Now()
	_, err := f.Open(context.Background(), srv.URL)
	if !errors.Is(err, domain.ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("oversize check should not wait for the body")
	}
	<-handlerDone
}

func TestOpenLimitsUndeclaredBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		for i := 0; i < 4; i++ {
			_, _ = w.Write(bytes.Repeat([]byte{'a'}, 1024))
			w.(http.Flusher).Flush()
		}
	}))
	defer srv.Close()

	f := NewFetcher(Config{MaxBytes: 1500})
	stream, err := f.Open(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if !errors.Is(err, domain.ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	if len(data) != 1500 {
		t.Fatalf("read %d bytes, want exactly the limit", len(data))
	}
	if _, err := stream.Read(make([]byte, 10)); !errors.Is(err, domain.ErrFileTooLarge) {
		t.Fatalf("stream should stay failed, got %v", err)
	}
}

func TestOpenStreamsBodyWithAudioHeaders(t *testing.T) {
	payload := bytes.Repeat([]byte{'x'}, 4096)
	var gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	headers := http.Header{}
	headers.Set("Referer", "https://vuxo7.com/")
	f := NewFetcher(Config{Headers: headers})
	stream, err := f.Open(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatal("payload mismatch")
	}
	if stream.ContentType != "audio/mpeg" || stream.BytesRead() != int64(len(payload)) {
		t.Fatalf("content type %q, read %d", stream.ContentType, stream.BytesRead())
	}
	if gotReferer != "https://vuxo7.com/" {
		t.Fatalf("referer = %q", gotReferer)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestOpenHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewFetcher(Config{}).Open(context.Background(), srv.URL)
	var statusErr *domain.HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected HTTPStatusError 404, got %v", err)
	}
}

func TestOpenTimeoutBeforeHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewFetcher(Config{Timeout: 50 * time.Millisecond}).Open(context.Background(), srv.URL)
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestOpenTimeoutDoesNotCutSlowBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("head"))
		w.(http.Flusher).Flush()
		time.Sleep(150 * time.Millisecond)
		_, _ = w.Write([]byte("tail"))
	}))
	defer srv.Close()

	stream, err := NewFetcher(Config{Timeout: 50 * time.Millisecond}).Open(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()
	data, err := io.ReadAll(stream)
	if err != nil || string(data) != "headtail" {
		t.Fatalf("ReadAll = %q, %v", data, err)
	}
}

package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("DATABASE_URI", "")
	t.Setenv("MONGODB_URI", "")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.DatabaseURI != DefaultDatabaseURI {
		t.Fatalf("DatabaseURI = %q", cfg.DatabaseURI)
	}
	if cfg.MongoDatabase != "music-bot" {
		t.Fatalf("MongoDatabase = %q", cfg.MongoDatabase)
	}
	if cfg.HTTPAddr != ":3000" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.MaxParallelDownloads != 5 {
		t.Fatalf("MaxParallelDownloads = %d", cfg.MaxParallelDownloads)
	}
	if cfg.SearchTTL != time.Hour || cfg.SearchSweepInterval != 30*time.Minute {
		t.Fatalf("search ttl/sweep = %v/%v", cfg.SearchTTL, cfg.SearchSweepInterval)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Fatalf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.QueueWaitTimeout != 0 {
		t.Fatalf("QueueWaitTimeout = %v", cfg.QueueWaitTimeout)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("DATABASE_URI", "")
	t.Setenv("MONGODB_URI", "mongodb://db:27017/tunes")
	t.Setenv("PORT", "8080")
	t.Setenv("MAX_PARALLEL_DOWNLOADS", "0")
	t.Setenv("DEBUG_HTML", "true")
	t.Setenv("WEB_APP_URL", "https://app.example.com/")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.DatabaseURI != "mongodb://db:27017/tunes" || cfg.MongoDatabase != "tunes" {
		t.Fatalf("database = %q / %q", cfg.DatabaseURI, cfg.MongoDatabase)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.MaxParallelDownloads != 1 {
		t.Fatalf("MaxParallelDownloads = %d", cfg.MaxParallelDownloads)
	}
	if !cfg.DebugHTML {
		t.Fatal("DebugHTML should be enabled")
	}
	if cfg.WebAppURL != "https://app.example.com" {
		t.Fatalf("WebAppURL = %q", cfg.WebAppURL)
	}
}

func TestFromEnvRequiresToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error without BOT_TOKEN")
	}
}

func TestStorageBackend(t *testing.T) {
	tests := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{uri: "mongodb://localhost:27017/music-bot", want: "mongo"},
		{uri: "mongodb+srv://cluster.example.net/db", want: "mongo"},
		{uri: "postgres://u:p@localhost:5432/music?sslmode=disable", want: "postgres"},
		{uri: "postgresql://localhost/music", want: "postgres"},
		{uri: "memory://", want: "memory"},
		{uri: "mysql://localhost/music", wantErr: true},
	}
	for _, tt := range tests {
		got, err := Config{DatabaseURI: tt.uri}.StorageBackend()
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.uri)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%s: got %q, %v; want %q", tt.uri, got, err, tt.want)
		}
	}
}

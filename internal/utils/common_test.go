package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCleanupTempFiles(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-2 * time.Hour)

	write := func(name string, mtime time.Time) {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
	write("page_old.html", old)
	write("page_new.html", time.Now())
	write("other_old.html", old)

	if n := CleanupTempFiles(dir, "page_", time.Hour); n != 1 {
		t.Fatalf("removed %d files, want 1", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "page_old.html")); !os.IsNotExist(err) {
		t.Fatal("old page dump should be removed")
	}
	for _, keep := range []string{"page_new.html", "other_old.html"} {
		if _, err := os.Stat(filepath.Join(dir, keep)); err != nil {
			t.Fatalf("%s should be kept: %v", keep, err)
		}
	}
}

func TestCleanupTempFilesMissingDir(t *testing.T) {
	if n := CleanupTempFiles(filepath.Join(t.TempDir(), "missing"), "page_", time.Hour); n != 0 {
		t.Fatalf("removed %d from missing dir", n)
	}
}

func TestEnsureWritableDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureWritableDir(dir); err != nil {
		t.Fatalf("EnsureWritableDir: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("probe file left behind: %v", entries)
	}
}

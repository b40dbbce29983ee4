package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CleanupTempFiles удаляет файлы с префиксом старше maxAge и возвращает число удалённых
func CleanupTempFiles(tmpDir, prefix string, maxAge time.Duration) int {
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return 0
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if os.Remove(filepath.Join(tmpDir, entry.Name())) == nil {
				removed++
			}
		}
	}
	return removed
}

// EnsureWritableDir создает папку и проверяет, что в неё можно писать
func EnsureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("не удалось создать папку %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".probe_*")
	if err != nil {
		return fmt.Errorf("нет прав на запись в %s: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

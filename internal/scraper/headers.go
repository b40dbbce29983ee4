package scraper

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
)

const (
	defaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	defaultAccept         = "*/*"
	defaultAcceptLanguage = "en-US,en;q=0.9"
)

// Headers заголовки для страниц и для аудио
type Headers struct {
	Page  http.Header
	Audio http.Header
}

// LoadHeaderOverrides читает JSON объект с заголовками. Отсутствующий файл не ошибка.
func LoadHeaderOverrides(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read headers file %s: %w", path, err)
	}
	var overrides map[string]string
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse headers file %s: %w", path, err)
	}
	return overrides, nil
}

// BuildHeaders собирает базовые заголовки поверх переопределений.
// Аудио запросы дополнительно несут referer и origin сайта, иначе он отдает 403.
func BuildHeaders(baseHost string, overrides map[string]string) Headers {
	page := http.Header{}
	page.Set("User-Agent", defaultUserAgent)
	page.Set("Accept", defaultAccept)
	page.Set("Accept-Language", defaultAcceptLanguage)
	for k, v := range overrides {
		page.Set(k, v)
	}

	audio := page.Clone()
	if audio.Get("Referer") == "" {
		audio.Set("Referer", "https://"+baseHost+"/")
	}
	if audio.Get("Origin") == "" {
		audio.Set("Origin", "https://"+baseHost)
	}
	return Headers{Page: page, Audio: audio}
}

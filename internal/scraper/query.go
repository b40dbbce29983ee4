package scraper

import (
	"regexp"
	"strings"
)

var (
	nonWordRe    = regexp.MustCompile(`[^\w\s\p{Z}]`)
	whitespaceRe = regexp.MustCompile(`[\s\p{Z}]+`)
)

// SanitizeKeyword превращает запрос в поддомен: без пунктуации, в нижнем регистре, пробелы в дефисы.
// \w здесь ASCII, поэтому запросы только из кириллицы дают пустую строку.
// Пробелами считаются и Unicode-разделители, например неразрывный пробел.
func SanitizeKeyword(keyword string) string {
	cleaned := nonWordRe.ReplaceAllString(keyword, "")
	cleaned = strings.ToLower(strings.TrimSpace(cleaned))
	return whitespaceRe.ReplaceAllString(cleaned, "-")
}

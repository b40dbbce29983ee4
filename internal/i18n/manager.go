package i18n

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"text/template"

	tele "gopkg.in/telebot.v4"

	"MusicDownloader/internal/domain"
	"MusicDownloader/internal/logger"
)

//go:embed locales/*.json
var locales embed.FS

// Manager управляет локализацией
type Manager struct {
	translations map[string]map[string]interface{}
	userLangs    map[int64]string
	mutex        sync.RWMutex
	defaultLang  string
	fallbackLang string
	logger       *logger.Logger
}

// NewManager создает менеджер: язык по умолчанию для новых пользователей
// и язык, из которого берутся отсутствующие ключи
func NewManager(defaultLang, fallbackLang string) *Manager {
	return &Manager{
		translations: make(map[string]map[string]interface{}),
		userLangs:    make(map[int64]string),
		defaultLang:  defaultLang,
		fallbackLang: fallbackLang,
		logger:       logger.New("I18N"),
	}
}

// NewDefault создает менеджер со встроенными переводами uz/ru/en
func NewDefault() (*Manager, error) {
	m := NewManager(domain.DefaultLanguage, domain.LangEn)
	if err := m.LoadTranslations(locales, "locales"); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadTranslations загружает переводы из файлов *.json каталога dir
func (m *Manager) LoadTranslations(fsys fs.FS, dir string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("ошибка чтения директории переводов: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		lang := strings.TrimSuffix(file.Name(), ".json")
		filePath := path.Join(dir, file.Name())

		data, err := fs.ReadFile(fsys, filePath)
		if err != nil {
			return fmt.Errorf("ошибка чтения файла %s: %w", filePath, err)
		}
		var translations map[string]interface{}
		if err := json.Unmarshal(data, &translations); err != nil {
			return fmt.Errorf("ошибка парсинга JSON в файле %s: %w", filePath, err)
		}
		m.translations[lang] = translations
		m.logger.Debug("Загружено %d переводов для языка %s", len(translations), lang)
	}

	m.logger.Info("Всего загружено языков: %d", len(m.translations))
	return nil
}

// SetUserLanguage запоминает выбор пользователя
func (m *Manager) SetUserLanguage(userID int64, lang string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.translations[lang]; !ok {
		return false
	}
	m.userLangs[userID] = lang
	return true
}

// UserLanguage язык пользователя или язык по умолчанию
func (m *Manager) UserLanguage(userID int64) string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if lang, ok := m.userLangs[userID]; ok {
		return lang
	}
	return m.defaultLang
}

// GetUserLanguage определяет язык пользователя Telegram
func (m *Manager) GetUserLanguage(user *tele.User) string {
	if user == nil {
		return m.defaultLang
	}
	return m.UserLanguage(user.ID)
}

// T возвращает переведенный текст для пользователя
func (m *Manager) T(user *tele.User, key string, args ...interface{}) string {
	return m.Translate(m.GetUserLanguage(user), key, args...)
}

// Translate возвращает текст на языке lang. Отсутствующий ключ берется из
// fallback языка, а если его нет и там, возвращается сам ключ.
func (m *Manager) Translate(lang, key string, args ...interface{}) string {
	m.mutex.RLock()
	textRaw, ok := m.translations[lang][key]
	if !ok {
		textRaw, ok = m.translations[m.fallbackLang][key]
	}
	m.mutex.RUnlock()
	if !ok {
		m.logger.Warning("Ключ '%s' не найден в языке %s и fallback %s", key, lang, m.fallbackLang)
		return key
	}

	var data map[string]interface{}
	if len(args) == 1 {
		data, _ = args[0].(map[string]interface{})
	}

	var text string
	switch v := textRaw.(type) {
	case string:
		text = v
	case []interface{}:
		lines := make([]string, 0, len(v))
		for _, line := range v {
			lines = append(lines, fmt.Sprintf("%v", line))
		}
		text = strings.Join(lines, "\n")
	default:
		return fmt.Sprintf("[I18N] Некорректный тип перевода для ключа %s", key)
	}

	if data != nil {
		return applyTemplate(text, data)
	}
	if len(args) > 0 {
		return fmt.Sprintf(text, args...)
	}
	return text
}

func applyTemplate(tmplStr string, data map[string]interface{}) string {
	tmpl, err := template.New("").Parse(tmplStr)
	if err != nil {
		return tmplStr
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return tmplStr
	}
	return buf.String()
}

// GetAvailableLanguages возвращает список доступных языков
func (m *Manager) GetAvailableLanguages() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	languages := make([]string, 0, len(m.translations))
	for lang := range m.translations {
		languages = append(languages, lang)
	}
	sort.Strings(languages)
	return languages
}

// HasLanguage проверяет, есть ли переводы для указанного языка
func (m *Manager) HasLanguage(lang string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	_, exists := m.translations[lang]
	return exists
}

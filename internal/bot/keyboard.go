package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	"MusicDownloader/internal/domain"
	"MusicDownloader/internal/searchstore"
)

const separator = "━━━━━━━━━━━━━━━━"

// Translator переводит ключ на язык текущего пользователя
type Translator func(key string, args ...interface{}) string

// BuildResultMessage собирает текст страницы результатов
func BuildResultMessage(t Translator, keyword string, tracks []domain.Track, page int, isTop bool) (string, searchstore.Page) {
	p := searchstore.Paginate(tracks, page)

	var b strings.Builder
	if isTop {
		fmt.Fprintf(&b, "⭐ <b>%s</b>\n", t("TOP_TITLE"))
	} else {
		fmt.Fprintf(&b, "🔍 <b>%s</b>\n", html.EscapeString(keyword))
	}
	b.WriteString(separator + "\n")
	b.WriteString(t("TRACK_COUNT", len(tracks), p.Index+1, p.Total) + "\n")
	b.WriteString(separator + "\n\n")
	for i, track := range p.Tracks {
		fmt.Fprintf(&b, "<b>%d.</b> %s\n", p.Start+i+1, html.EscapeString(track.Name))
	}
	b.WriteString("\n" + t("PICK_HINT"))
	return b.String(), p
}

// BuildKeyboard две строки с номерами треков и строка навигации
func BuildKeyboard(searchID int64, p searchstore.Page, allLabel string) *tele.ReplyMarkup {
	sid := strconv.FormatInt(searchID, 10)
	page := strconv.Itoa(p.Index)

	slot := func(n int) tele.InlineButton {
		if n <= len(p.Tracks) {
			return tele.InlineButton{Text: strconv.Itoa(n), Data: CallbackPick + ":" + sid + ":" + page + ":" + strconv.Itoa(n)}
		}
		return tele.InlineButton{Text: "·", Data: CallbackNoop}
	}

	row1 := make([]tele.InlineButton, 0, 5)
	row2 := make([]tele.InlineButton, 0, 5)
	for n := 1; n <= 5; n++ {
		row1 = append(row1, slot(n))
	}
	for n := 6; n <= searchstore.PageSize; n++ {
		row2 = append(row2, slot(n))
	}

	prev := CallbackNoop
	if p.Index > 0 {
		prev = CallbackPage + ":" + sid + ":" + strconv.Itoa(p.Index-1)
	}
	next := CallbackNoop
	if p.Index < p.Total-1 {
		next = CallbackPage + ":" + sid + ":" + strconv.Itoa(p.Index+1)
	}
	nav := []tele.InlineButton{
		{Text: "◀", Data: prev},
		{Text: allLabel, Data: CallbackAll + ":" + sid + ":" + page},
		{Text: "▶", Data: next},
	}

	return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{row1, row2, nav}}
}

// LanguageKeyboard кнопки выбора языка
func LanguageKeyboard() *tele.ReplyMarkup {
	row := make([]tele.InlineButton, 0, len(domain.Languages))
	for _, lang := range domain.Languages {
		row = append(row, tele.InlineButton{
			Text: languageFlags[lang] + " " + strings.ToUpper(lang),
			Data: CallbackLang + ":" + lang,
		})
	}
	return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{row}}
}

// WebAppKeyboard кнопка открытия мини-приложения
func WebAppKeyboard(label, webAppURL string, userID int64) *tele.ReplyMarkup {
	url := fmt.Sprintf("%s?user=%d", webAppURL, userID)
	return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{{
		{Text: label, WebApp: &tele.WebApp{URL: url}},
	}}}
}

var languageFlags = map[string]string{
	domain.LangUz: "🇺🇿",
	domain.LangRu: "🇷🇺",
	domain.LangEn: "🇬🇧",
}

var languageNames = map[string]string{
	domain.LangUz: "🇺🇿 O'zbek",
	domain.LangRu: "🇷🇺 Русский",
	domain.LangEn: "🇬🇧 English",
}

// Callback разобранные данные inline-кнопки
type Callback struct {
	Action   string
	SearchID int64
	Page     int
	N        int
	Lang     string
}

// maxCallbackPage верхняя граница номера страницы в callback data
const maxCallbackPage = 1 << 16

// ParseCallback разбирает строки вида page:<sid>:<page>, pick:<sid>:<page>:<n>,
// all:<sid>:<page>, lang:<code> и noop
func ParseCallback(data string) (Callback, error) {
	data = strings.TrimPrefix(data, "\f")
	parts := strings.Split(data, ":")
	cb := Callback{Action: parts[0]}

	nums := func(want int) ([]int64, error) {
		if len(parts) != want+1 {
			return nil, fmt.Errorf("callback %q: ожидалось %d параметров", data, want)
		}
		out := make([]int64, want)
		for i := range out {
			v, err := strconv.ParseInt(parts[i+1], 10, 64)
			if err != nil || v < 0 {
				return nil, fmt.Errorf("callback %q: некорректное число %q", data, parts[i+1])
			}
			out[i] = v
		}
		return out, nil
	}

	switch cb.Action {
	case CallbackNoop:
		if len(parts) != 1 {
			return Callback{}, fmt.Errorf("callback %q: лишние параметры", data)
		}
	case CallbackLang:
		if len(parts) != 2 || !domain.IsSupportedLanguage(parts[1]) {
			return Callback{}, fmt.Errorf("callback %q: неизвестный язык", data)
		}
		cb.Lang = parts[1]
	case CallbackPage, CallbackAll:
		v, err := nums(2)
		if err != nil {
			return Callback{}, err
		}
		if v[1] > maxCallbackPage {
			return Callback{}, fmt.Errorf("callback %q: страница вне диапазона", data)
		}
		cb.SearchID, cb.Page = v[0], int(v[1])
	case CallbackPick:
		v, err := nums(3)
		if err != nil {
			return Callback{}, err
		}
		if v[1] > maxCallbackPage {
			return Callback{}, fmt.Errorf("callback %q: страница вне диапазона", data)
		}
		cb.SearchID, cb.Page, cb.N = v[0], int(v[1]), int(v[2])
		if cb.N < 1 || cb.N > searchstore.PageSize {
			return Callback{}, fmt.Errorf("callback %q: номер вне страницы", data)
		}
	default:
		return Callback{}, fmt.Errorf("callback %q: неизвестное действие", data)
	}
	return cb, nil
}

// ValidateKeyword обрезает пробелы и проверяет поисковый запрос
func ValidateKeyword(text string) (string, bool) {
	keyword := strings.TrimSpace(text)
	if keyword == "" || strings.HasPrefix(keyword, "/") || utf8.RuneCountInString(keyword) > MaxKeywordLength {
		return "", false
	}
	return keyword, true
}

// TrackCaption подпись к отправленному аудио
func TrackCaption(name, botUsername string) string {
	return fmt.Sprintf("🎵 <b>%s</b>\n\n🔍 @%s", html.EscapeString(name), botUsername)
}

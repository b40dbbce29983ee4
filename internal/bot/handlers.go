package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"MusicDownloader/internal/domain"
	"MusicDownloader/internal/searchstore"
)

const searchTimeout = 60 * time.Second

// tr возвращает переводчик для отправителя апдейта
func (b *Bot) tr(c tele.Context) Translator {
	user := c.Sender()
	return func(key string, args ...interface{}) string {
		return b.i18nManager.T(user, key, args...)
	}
}

// handleMessage обрабатывает текстовые сообщения
func (b *Bot) handleMessage(c tele.Context) error {
	msg := c.Message()
	text := strings.TrimSpace(msg.Text)
	cmd := commandOf(text)

	if msg.Sender != nil && b.config.IsAdmin(msg.Sender.ID) {
		handled, err := b.handleAdminCommands(c, cmd, text)
		if handled {
			return err
		}
	}

	t := b.tr(c)
	switch cmd {
	case CmdStart:
		return b.handleStart(c)
	case CmdHelp:
		return c.Send(t("HELP"), tele.ModeHTML)
	case CmdAbout:
		return c.Send(t("ABOUT"), tele.ModeHTML)
	case CmdApp:
		return c.Send(t("APP_DESC"), tele.ModeHTML, WebAppKeyboard(t("OPEN_APP"), b.config.WebAppURL, c.Sender().ID))
	case CmdLang:
		return c.Send(t("LANG_PICK"), tele.ModeHTML, LanguageKeyboard())
	case CmdTop:
		return b.handleTop(c)
	}

	return b.handleSearch(c, text)
}

// commandOf выделяет команду без аргументов и суффикса @bot
func commandOf(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.Fields(text)[0]
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd)
}

func (b *Bot) handleStart(c tele.Context) error {
	user := c.Sender()
	t := b.tr(c)

	name := "User"
	if user.FirstName != "" {
		name = user.FirstName
	} else if user.Username != "" {
		name = user.Username
	}

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	if _, err := b.repo.CreateOrUpdateUser(ctx, user.ID, domain.UserPatch{
		FirstName: domain.StringPtr(user.FirstName),
		LastName:  domain.StringPtr(user.LastName),
		Username:  domain.StringPtr(user.Username),
	}); err != nil {
		b.logger.LogErrorWithContext("Ошибка сохранения пользователя", err, fmt.Sprintf("user_id=%d", user.ID))
	}

	welcome := t("WELCOME", map[string]interface{}{"Name": html.EscapeString(name)})
	return c.Send(welcome, tele.ModeHTML, WebAppKeyboard(t("OPEN_APP"), b.config.WebAppURL, user.ID))
}

func (b *Bot) handleTop(c tele.Context) error {
	t := b.tr(c)
	status, err := b.api.Send(c.Recipient(), t("LOADING_TOP"), tele.ModeHTML)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
	defer cancel()
	tracks, err := b.searcher.TopHits(ctx)
	if err != nil {
		b.logger.LogErrorWithContext("Ошибка получения топа", err)
		return b.editOrReply(c, status, t("FAILED_TOP"))
	}
	return b.showResults(c, status, "", tracks)
}

func (b *Bot) handleSearch(c tele.Context, text string) error {
	t := b.tr(c)
	keyword, ok := ValidateKeyword(text)
	if !ok {
		return c.Send(t("INVALID"), tele.ModeHTML)
	}

	status, err := b.api.Send(c.Recipient(), t("SEARCHING"), tele.ModeHTML)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
	defer cancel()
	tracks, err := b.searcher.Search(ctx, keyword)
	if errors.Is(err, domain.ErrInvalidQuery) {
		return b.editOrReply(c, status, t("NOT_FOUND"))
	}
	if err != nil {
		b.logger.LogErrorWithContext("Ошибка поиска", err, keyword)
		return b.editOrReply(c, status, t("FAILED_SEARCH"))
	}
	return b.showResults(c, status, keyword, tracks)
}

// showResults сохраняет результаты и выводит первую страницу.
// Пустой keyword означает топ.
func (b *Bot) showResults(c tele.Context, status *tele.Message, keyword string, tracks []domain.Track) error {
	t := b.tr(c)
	if len(tracks) == 0 {
		return b.editOrReply(c, status, t("NOT_FOUND"))
	}
	id := b.searches.Save(keyword, tracks)
	entry := searchstore.Entry{ID: id, Keyword: keyword, Tracks: tracks}
	text, markup := b.renderPage(t, entry, 0)
	return b.editOrReply(c, status, text, markup)
}

func (b *Bot) renderPage(t Translator, entry searchstore.Entry, page int) (string, *tele.ReplyMarkup) {
	text, p := BuildResultMessage(t, entry.Keyword, entry.Tracks, page, entry.Keyword == "")
	return text, BuildKeyboard(entry.ID, p, t("BTN_ALL"))
}

// editOrReply редактирует статусное сообщение, а если не вышло, отправляет новое
func (b *Bot) editOrReply(c tele.Context, status *tele.Message, text string, opts ...interface{}) error {
	opts = append(opts, tele.ModeHTML)
	if _, err := b.api.Edit(status, text, opts...); err == nil || errors.Is(err, tele.ErrSameMessageContent) {
		return nil
	}
	return c.Send(text, opts...)
}

// handleCallback обрабатывает нажатия inline-кнопок
func (b *Bot) handleCallback(c tele.Context) error {
	t := b.tr(c)
	cb, err := ParseCallback(c.Callback().Data)
	if err != nil {
		b.logger.Warning("Некорректный callback от %d: %v", c.Sender().ID, err)
		return c.Respond(&tele.CallbackResponse{Text: t("EXPIRED")})
	}

	switch cb.Action {
	case CallbackNoop:
		return c.Respond()
	case CallbackLang:
		return b.handleLangCallback(c, cb.Lang)
	}

	entry, ok := b.searches.Get(cb.SearchID)
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: t("EXPIRED")})
	}

	switch cb.Action {
	case CallbackPage:
		text, markup := b.renderPage(t, entry, cb.Page)
		if err := c.Edit(text, markup, tele.ModeHTML); err != nil && !errors.Is(err, tele.ErrSameMessageContent) {
			b.logger.Warning("Не удалось сменить страницу: %v", err)
		}
		return c.Respond(&tele.CallbackResponse{Text: fmt.Sprintf("📄 %d", searchstore.Paginate(entry.Tracks, cb.Page).Index+1)})

	case CallbackPick:
		track, ok := searchstore.TrackAt(entry.Tracks, cb.Page, cb.N)
		if !ok {
			return c.Respond(&tele.CallbackResponse{Text: t("EXPIRED")})
		}
		if err := c.Respond(&tele.CallbackResponse{Text: fmt.Sprintf("📥 %d", cb.N)}); err != nil {
			b.logger.Warning("Ошибка ответа на callback: %v", err)
		}
		b.safeGo("sendTrack", func() { _ = b.sendTrack(c, track) })
		return nil

	case CallbackAll:
		page := searchstore.Paginate(entry.Tracks, cb.Page)
		if err := c.Respond(&tele.CallbackResponse{Text: fmt.Sprintf("📥 %d", len(page.Tracks))}); err != nil {
			b.logger.Warning("Ошибка ответа на callback: %v", err)
		}
		b.safeGo("sendAll", func() { b.sendAll(c, page.Tracks) })
		return nil
	}
	return c.Respond()
}

func (b *Bot) handleLangCallback(c tele.Context, lang string) error {
	user := c.Sender()
	b.i18nManager.SetUserLanguage(user.ID, lang)

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	if _, err := b.repo.CreateOrUpdateUser(ctx, user.ID, domain.UserPatch{Language: domain.StringPtr(lang)}); err != nil {
		b.logger.LogErrorWithContext("Ошибка сохранения языка", err, fmt.Sprintf("user_id=%d", user.ID))
	}

	name := languageNames[lang]
	if err := c.Respond(&tele.CallbackResponse{Text: "✅ " + name}); err != nil {
		b.logger.Warning("Ошибка ответа на callback: %v", err)
	}
	return c.Edit(b.tr(c)("LANG_SET", name), tele.ModeHTML)
}

type webAppPayload struct {
	Action string       `json:"action"`
	Track  domain.Track `json:"track"`
}

// handleWebAppData принимает трек из мини-приложения
func (b *Bot) handleWebAppData(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.WebAppData == nil {
		return nil
	}
	var payload webAppPayload
	if err := json.Unmarshal([]byte(msg.WebAppData.Data), &payload); err != nil {
		b.logger.Warning("Некорректные данные web app от %d: %v", c.Sender().ID, err)
		return nil
	}
	if payload.Action != "send_track" || strings.TrimSpace(payload.Track.AudioURL) == "" {
		return nil
	}
	track := payload.Track
	if strings.TrimSpace(track.Name) == "" {
		track.Name = domain.DisplayName(track.Performer, track.Title)
	}
	b.safeGo("sendTrack", func() { _ = b.sendTrack(c, track) })
	return nil
}

package bot

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
	"gopkg.in/telebot.v4/middleware"

	"MusicDownloader/internal/domain"
	"MusicDownloader/internal/metrics"
)

// Структура для определения типа сообщения
type messageTypeChecker struct {
	condition func(*tele.Message) bool
	msgType   string
}

// Структура для определения типа апдейта
type updateTypeChecker struct {
	condition  func(*tele.Update) bool
	updateType string
}

// Middleware: перехват паник, логирование, метрики, ограничение частоты и lastActive
func (b *Bot) setupMiddleware() {
	b.api.Use(middleware.Recover())
	b.api.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			update := c.Update()
			b.logUpdate(&update)
			metrics.BotUpdatesTotal.WithLabelValues(getUpdateType(&update)).Inc()

			sender := c.Sender()
			if sender == nil {
				return next(c)
			}
			if !b.userLimiter.Allow(sender.ID) {
				b.logger.Warning("Превышен лимит запросов: user_id=%d", sender.ID)
				if update.Callback != nil {
					return c.Respond(&tele.CallbackResponse{Text: "⏳"})
				}
				return nil
			}

			b.touchUser(sender)
			return next(c)
		}
	})
}

// safeGo запускает fn в отдельной горутине. Паника логируется и не роняет процесс.
func (b *Bot) safeGo(name string, fn func()) {
	go func() {
		defer b.recoverPanic(name)
		fn()
	}()
}

// recoverPanic вызывается только через defer
func (b *Bot) recoverPanic(name string) {
	if r := recover(); r != nil {
		b.logger.Error("Паника в %s: %v\n%s", name, r, debug.Stack())
	}
}

// touchUser обновляет профиль и lastActive, подтягивает сохраненный язык
func (b *Bot) touchUser(sender *tele.User) {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	user, err := b.repo.CreateOrUpdateUser(ctx, sender.ID, domain.UserPatch{
		FirstName: domain.StringPtr(sender.FirstName),
		LastName:  domain.StringPtr(sender.LastName),
		Username:  domain.StringPtr(sender.Username),
	})
	if err != nil {
		b.logger.Warning("Не удалось обновить пользователя %d: %v", sender.ID, err)
		return
	}
	if user != nil && user.Language != "" {
		b.i18nManager.SetUserLanguage(sender.ID, user.Language)
	}
}

// Логирование апдейтов
func (b *Bot) logUpdate(update *tele.Update) {
	switch {
	case update.Message != nil && update.Message.Sender != nil:
		b.logger.Info("Message: user_id=%d, type=%s, text=%q", update.Message.Sender.ID, getMessageType(update.Message), update.Message.Text)
	case update.Callback != nil && update.Callback.Sender != nil:
		b.logger.Info("CallbackQuery: user_id=%d, data=%q", update.Callback.Sender.ID, update.Callback.Data)
	default:
		b.logger.Debug("Update %d: %s", update.ID, getUpdateType(update))
	}
}

func getMessageType(msg *tele.Message) string {
	checkers := []messageTypeChecker{
		{func(m *tele.Message) bool { return m.WebAppData != nil }, "web_app"},
		{func(m *tele.Message) bool { return m.Text != "" }, "text"},
		{func(m *tele.Message) bool { return m.Audio != nil }, "audio"},
		{func(m *tele.Message) bool { return m.Voice != nil }, "voice"},
		{func(m *tele.Message) bool { return m.Photo != nil }, "photo"},
		{func(m *tele.Message) bool { return m.Video != nil }, "video"},
		{func(m *tele.Message) bool { return m.Document != nil }, "document"},
		{func(m *tele.Message) bool { return m.Sticker != nil }, "sticker"},
	}

	for _, checker := range checkers {
		if checker.condition(msg) {
			return checker.msgType
		}
	}
	return "unknown"
}

func getUpdateType(update *tele.Update) string {
	checkers := []updateTypeChecker{
		{func(u *tele.Update) bool { return u.Message != nil }, "message"},
		{func(u *tele.Update) bool { return u.Callback != nil }, "callback_query"},
		{func(u *tele.Update) bool { return u.EditedMessage != nil }, "edited_message"},
		{func(u *tele.Update) bool { return u.ChannelPost != nil }, "channel_post"},
		{func(u *tele.Update) bool { return u.MyChatMember != nil }, "my_chat_member"},
		{func(u *tele.Update) bool { return u.ChatMember != nil }, "chat_member"},
	}

	for _, checker := range checkers {
		if checker.condition(update) {
			return checker.updateType
		}
	}
	return "unknown"
}

const limiterIdleTTL = 10 * time.Minute

// userLimiter token bucket на каждого пользователя. nil пропускает всех.
type userLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*limiterEntry
	limit    rate.Limit
	burst    int
	now      func() time.Time
	lastGC   time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newUserLimiter(rps float64, burst int) *userLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &userLimiter{
		limiters: make(map[int64]*limiterEntry),
		limit:    rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow расходует один токен пользователя
func (l *userLimiter) Allow(userID int64) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastGC) > limiterIdleTTL {
		l.sweep(now)
		l.lastGC = now
	}

	entry, ok := l.limiters[userID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[userID] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// sweep удаляет лимитеры пользователей, не писавших дольше limiterIdleTTL
func (l *userLimiter) sweep(now time.Time) int {
	removed := 0
	for id, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(l.limiters, id)
			removed++
		}
	}
	return removed
}

func (l *userLimiter) size() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

const (
	ErrInvalidDaysFormat = "Использование: /cache_clean <дни>"
	ErrInvalidDays       = "Количество дней должно быть положительным числом"
)

// handleAdminCommands обрабатывает админские команды
// Возвращает (обработана_ли_команда, ошибка)
func (b *Bot) handleAdminCommands(c tele.Context, cmd, text string) (bool, error) {
	switch cmd {
	case CmdCacheStats:
		return true, b.sendCacheStats(c)
	case CmdCacheClear:
		return true, b.clearAllCache(c)
	case CmdCacheClean:
		return true, b.handleCacheCleanCommand(c, text)
	case CmdActiveDownloads:
		return true, b.sendActiveDownloads(c)
	case CmdStats:
		return true, b.sendStats(c)
	}
	return false, nil
}

// handleCacheCleanCommand обрабатывает команду очистки кэша
func (b *Bot) handleCacheCleanCommand(c tele.Context, text string) error {
	days, err := parseCleanDays(text)
	if err != nil {
		return c.Send(err.Error())
	}
	return b.cleanOldCache(c, days)
}

func parseCleanDays(text string) (int, error) {
	parts := strings.Fields(text)
	if len(parts) < 2 {
		return 0, errors.New(ErrInvalidDaysFormat)
	}
	days, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || days <= 0 {
		return 0, errors.New(ErrInvalidDays)
	}
	return days, nil
}

// Функция для отправки статистики кэша
func (b *Bot) sendCacheStats(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	count, err := b.cache.GetCacheStats(ctx)
	if err != nil {
		return c.Send(fmt.Sprintf("Ошибка получения статистики кэша: %v", err))
	}

	info := fmt.Sprintf("📊 Статистика кэша:\n\n"+
		"📁 Всего записей в кэше: %d\n\n"+
		"🔧 Команды для управления:\n"+
		"/cache_clean <дни> - удалить записи старше N дней\n"+
		"/cache_clear - очистить весь кэш", count)

	return c.Send(info)
}

// Функция для очистки старого кэша
func (b *Bot) cleanOldCache(c tele.Context, days int) error {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	removed, err := b.cache.CleanOldCache(ctx, time.Duration(days)*24*time.Hour)
	if err != nil {
		return c.Send(fmt.Sprintf("Ошибка очистки кэша: %v", err))
	}
	return c.Send(fmt.Sprintf("✅ Удалено %d записей из кэша старше %d дней", removed, days))
}

// Функция для полной очистки кэша
func (b *Bot) clearAllCache(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	if _, err := b.cache.ClearAudioCache(ctx); err != nil {
		return c.Send(fmt.Sprintf("Ошибка очистки кэша: %v", err))
	}
	return c.Send("✅ Весь кэш очищен")
}

// Функция для отправки информации об активных скачиваниях
func (b *Bot) sendActiveDownloads(c tele.Context) error {
	return c.Send(formatActiveDownloads(b.downloadManager.GetActiveDownloads(), time.Now()))
}

func formatActiveDownloads(downloads []DownloadInfo, now time.Time) string {
	if len(downloads) == 0 {
		return "📊 Активных скачиваний нет"
	}

	var info strings.Builder
	info.WriteString(fmt.Sprintf("📊 Активные скачивания (%d):\n\n", len(downloads)))
	for _, d := range downloads {
		info.WriteString(fmt.Sprintf("🔗 URL: %s\n", d.URL))
		info.WriteString(fmt.Sprintf("👤 Пользователь: %d\n", d.UserID))
		info.WriteString(fmt.Sprintf("🆔 Request ID: %s\n", d.RequestID))
		info.WriteString(fmt.Sprintf("⏱️ Длительность: %s\n", now.Sub(d.StartTime).Round(time.Second)))
		info.WriteString("---\n")
	}
	return info.String()
}

// sendStats состояние очереди, хранилища поиска и кэша
func (b *Bot) sendStats(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	active, waiting, limit := b.downloadManager.QueueState()
	cached, err := b.cache.GetCacheStats(ctx)
	cacheLine := strconv.FormatInt(cached, 10)
	if err != nil {
		cacheLine = "ошибка: " + err.Error()
	}

	info := fmt.Sprintf("📈 Статистика:\n\n"+
		"⬇️ Очередь: %d/%d активно, %d ждут\n"+
		"🔍 Сохраненных поисков: %d\n"+
		"📁 Записей в кэше: %s\n"+
		"👥 Лимитеров пользователей: %d\n"+
		"⏱️ Аптайм: %s",
		active, limit, waiting,
		b.searches.Len(),
		cacheLine,
		b.userLimiter.size(),
		time.Since(b.startedAt).Round(time.Second))
	return c.Send(info)
}

package bot

import (
	"context"
	"fmt"
	"html"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	tele "gopkg.in/telebot.v4"

	"MusicDownloader/internal/domain"
	"MusicDownloader/internal/metrics"
)

const (
	// DownloadTimeout ожидание слота, скачивание и отправка одного трека
	DownloadTimeout = 10 * time.Minute
	storageTimeout  = 5 * time.Second
)

// sendTrack скачивает трек и отправляет его в чат. Статусное сообщение
// удаляется после успеха или заменяется текстом ошибки.
func (b *Bot) sendTrack(c tele.Context, track domain.Track) error {
	t := b.tr(c)
	chat := c.Chat()
	userID := c.Sender().ID
	name := html.EscapeString(track.Name)

	status, err := b.api.Send(chat, t("DOWNLOAD_START", name), tele.ModeHTML)
	if err != nil {
		b.logger.LogErrorWithContext("Не удалось отправить статус", err, track.AudioURL)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), DownloadTimeout)
	defer cancel()

	start := time.Now()
	fileID, shared, err := b.downloadManager.Do(ctx, track.AudioURL, userID, func(ctx context.Context) (string, error) {
		return b.deliverAudio(ctx, chat, track)
	})
	if shared && err == nil {
		// трек загрузил другой запрос, отправляем по его file_id
		_, err = b.sendAudio(chat, tele.File{FileID: fileID}, track)
	}
	if err != nil {
		metrics.DownloadsTotal.WithLabelValues("error").Inc()
		b.logger.LogErrorWithContext("Ошибка отправки трека", err, track.AudioURL)
		b.notifyAdmin(err, "[SEND_AUDIO] "+track.AudioURL, fmt.Sprintf("user_id=%d", userID))
		if _, editErr := b.api.Edit(status, t("DOWNLOAD_ERROR", name), tele.ModeHTML); editErr != nil {
			b.logger.Warning("Не удалось обновить статус: %v", editErr)
		}
		return err
	}

	metrics.DownloadsTotal.WithLabelValues("ok").Inc()
	b.logger.LogPerformance("отправка "+track.AudioURL, start)

	recentCtx, recentCancel := context.WithTimeout(context.Background(), storageTimeout)
	defer recentCancel()
	if _, err := b.repo.AddToRecentlyPlayed(recentCtx, userID, track); err != nil {
		b.logger.Warning("Не удалось записать недавний трек для %d: %v", userID, err)
	}

	if err := b.api.Delete(status); err != nil {
		b.logger.Debug("Не удалось удалить статус: %v", err)
	}
	return nil
}

// deliverAudio отправляет трек по file_id из кэша или загружает поток
// с сайта. Возвращает file_id отправленного аудио.
func (b *Bot) deliverAudio(ctx context.Context, chat *tele.Chat, track domain.Track) (string, error) {
	if err := b.api.Notify(chat, tele.UploadingDocument); err != nil {
		b.logger.Debug("Не удалось отправить chat action: %v", err)
	}

	cached, err := b.cache.GetAudioFromCache(ctx, track.AudioURL)
	if err != nil {
		b.logger.Warning("Ошибка проверки кэша: %v", err)
	} else if cached != nil {
		_, sendErr := b.sendAudio(chat, tele.File{FileID: cached.TelegramFileID}, track)
		if sendErr == nil {
			metrics.AudioCacheHitsTotal.Inc()
			b.logger.Info("Отправлено из кэша: %s", track.AudioURL)
			return cached.TelegramFileID, nil
		}
		// file_id мог устареть
		b.logger.Warning("Ошибка отправки из кэша, скачиваем заново: %v", sendErr)
		if err := b.cache.DeleteAudioFromCache(ctx, track.AudioURL); err != nil {
			b.logger.Warning("Не удалось удалить запись кэша: %v", err)
		}
	}
	metrics.AudioCacheMissesTotal.Inc()

	stream, err := b.audio.Open(ctx, track.AudioURL)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	sent, err := b.sendAudio(chat, tele.FromReader(stream), track)
	if err != nil {
		return "", err
	}
	if sent == nil || sent.Audio == nil || sent.Audio.FileID == "" {
		return "", nil
	}

	fileID := sent.Audio.FileID
	if err := b.cache.SaveAudioToCache(ctx, track.AudioURL, fileID); err != nil {
		b.logger.Warning("Ошибка сохранения в кэш: %v", err)
	}
	b.logger.Info("Загружено %d байт, file_id=%s", stream.BytesRead(), fileID)
	return fileID, nil
}

// sendAudio отправляет аудио с HTML-подписью
func (b *Bot) sendAudio(to tele.Recipient, file tele.File, track domain.Track) (*tele.Message, error) {
	return b.api.Send(to, b.audioMessage(file, track), tele.ModeHTML)
}

func (b *Bot) audioMessage(file tele.File, track domain.Track) *tele.Audio {
	return &tele.Audio{
		File:      file,
		FileName:  track.Name + ".mp3",
		Title:     track.Title,
		Performer: track.Performer,
		Caption:   TrackCaption(track.Name, b.api.Me.Username),
	}
}

// sendAll отправляет все треки страницы и сообщает, сколько дошло
func (b *Bot) sendAll(c tele.Context, tracks []domain.Track) {
	t := b.tr(c)
	status, err := b.api.Send(c.Chat(), t("SENDING_ALL", len(tracks)), tele.ModeHTML)
	if err != nil {
		b.logger.LogErrorWithContext("Не удалось отправить статус", err)
		return
	}

	var ok atomic.Int64
	var g errgroup.Group
	for _, track := range tracks {
		track := track
		g.Go(func() error {
			defer b.recoverPanic("sendAll")
			if err := b.sendTrack(c, track); err == nil {
				ok.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if _, err := b.api.Edit(status, t("SUCCESS", ok.Load(), len(tracks)), tele.ModeHTML); err != nil {
		b.logger.Warning("Не удалось обновить статус: %v", err)
	}
}

// notifyAdmin отправляет администратору подробности ошибки
func (b *Bot) notifyAdmin(err error, extraInfo ...string) {
	if b.config.AdminID == 0 {
		return
	}
	msg := "[ERROR] " + err.Error()
	for _, info := range extraInfo {
		msg += "\n" + info
	}
	if _, sendErr := b.api.Send(&tele.User{ID: b.config.AdminID}, msg); sendErr != nil {
		b.logger.Warning("Не удалось уведомить администратора: %v", sendErr)
	}
}

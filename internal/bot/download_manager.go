package bot

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"MusicDownloader/internal/downloader"
	"MusicDownloader/internal/logger"
)

var errPanic = errors.New("скачивание прервано паникой")

// DownloadManager управляет скачиваниями: общий лимит через очередь
// и одно скачивание на URL, остальные запросы ждут его результата
type DownloadManager struct {
	queue           *downloader.Queue
	activeDownloads map[string]*DownloadInfo
	downloadMutex   sync.RWMutex
	logger          *logger.Logger
}

// NewDownloadManager создает новый менеджер скачиваний
func NewDownloadManager(queue *downloader.Queue) *DownloadManager {
	return &DownloadManager{
		queue:           queue,
		activeDownloads: make(map[string]*DownloadInfo),
		logger:          logger.New("DOWNLOAD"),
	}
}

// GenerateRequestID генерирует короткий ID для запроса
func GenerateRequestID() string {
	return uuid.NewString()[:8]
}

// Do выполняет fn для url в слоте очереди. Если этот url уже скачивается,
// ждет завершения и возвращает его file_id с shared=true. Если ведущий
// запрос закончился без file_id, fn выполняется еще раз, тоже через очередь.
func (dm *DownloadManager) Do(ctx context.Context, url string, userID int64, fn func(ctx context.Context) (string, error)) (fileID string, shared bool, err error) {
	info, started := dm.StartDownload(url, GenerateRequestID(), userID)
	if !started {
		dm.logger.Info("Ожидание завершения скачивания URL: %s (начато пользователем %d)", url, info.UserID)
		waited, err := dm.WaitForDownload(ctx, info)
		if err != nil {
			return "", true, err
		}
		if waited.Error != nil || waited.FileID != "" {
			return waited.FileID, true, waited.Error
		}
		dm.logger.Info("Скачивание %s завершилось без file_id, загружаем для пользователя %d", url, userID)
		fileID, err = dm.runInSlot(ctx, fn)
		return fileID, false, err
	}

	defer func() {
		if r := recover(); r != nil {
			dm.FinishDownload(url, "", errPanic)
			panic(r)
		}
	}()
	fileID, err = dm.runInSlot(ctx, fn)
	dm.FinishDownload(url, fileID, err)
	return fileID, false, err
}

func (dm *DownloadManager) runInSlot(ctx context.Context, fn func(ctx context.Context) (string, error)) (fileID string, err error) {
	err = dm.queue.Run(ctx, func(ctx context.Context) error {
		var runErr error
		fileID, runErr = fn(ctx)
		return runErr
	})
	return fileID, err
}

// StartDownload регистрирует начало скачивания. Если url уже скачивается,
// возвращает существующую запись и false.
func (dm *DownloadManager) StartDownload(url, requestID string, userID int64) (*DownloadInfo, bool) {
	dm.downloadMutex.Lock()
	defer dm.downloadMutex.Unlock()

	if existing, ok := dm.activeDownloads[url]; ok {
		return existing, false
	}
	downloadInfo := &DownloadInfo{
		RequestID: requestID,
		UserID:    userID,
		URL:       url,
		StartTime: time.Now(),
		Done:      make(chan struct{}),
	}
	dm.activeDownloads[url] = downloadInfo
	dm.logger.LogDownload(requestID, url, userID, "Зарегистрировано активное скачивание")
	return downloadInfo, true
}

// FinishDownload регистрирует завершение скачивания
func (dm *DownloadManager) FinishDownload(url, fileID string, err error) {
	dm.downloadMutex.Lock()
	defer dm.downloadMutex.Unlock()

	if downloadInfo, exists := dm.activeDownloads[url]; exists {
		downloadInfo.FileID = fileID
		downloadInfo.Error = err
		close(downloadInfo.Done)
		delete(dm.activeDownloads, url)
		dm.logger.Info("[%s] Завершено скачивание для URL: %s (ошибка: %v)", downloadInfo.RequestID, url, err)
	}
}

// WaitForDownload ждет завершения скачивания info или отмены ctx
func (dm *DownloadManager) WaitForDownload(ctx context.Context, info *DownloadInfo) (*DownloadInfo, error) {
	select {
	case <-info.Done:
		return info, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetActiveDownloads возвращает копию списка активных скачиваний
func (dm *DownloadManager) GetActiveDownloads() []DownloadInfo {
	dm.downloadMutex.RLock()
	defer dm.downloadMutex.RUnlock()

	result := make([]DownloadInfo, 0, len(dm.activeDownloads))
	for _, info := range dm.activeDownloads {
		result = append(result, DownloadInfo{
			RequestID: info.RequestID,
			UserID:    info.UserID,
			URL:       info.URL,
			StartTime: info.StartTime,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime.Before(result[j].StartTime) })
	return result
}

// QueueState занятые слоты, ожидающие и лимит очереди
func (dm *DownloadManager) QueueState() (active, waiting, limit int) {
	return dm.queue.Active(), dm.queue.Waiting(), dm.queue.Limit()
}

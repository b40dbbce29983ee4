package logger

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	baseMu sync.RWMutex
	base   = zap.NewNop()
)

// Init настраивает общий zap логгер процесса
func Init(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if strings.EqualFold(format, "console") {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	SetBase(l)
	return l, nil
}

// SetBase подменяет общий логгер
func SetBase(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	baseMu.Lock()
	base = l
	baseMu.Unlock()
}

// L возвращает общий логгер
func L() *zap.Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return base
}

// Logger предоставляет логирование с префиксом компонента
type Logger struct {
	prefix string
	zl     *zap.Logger
}

// New создает новый логгер с префиксом
func New(prefix string) *Logger {
	return &Logger{prefix: prefix, zl: L().With(zap.String("component", prefix))}
}

// Info логирует информационное сообщение
func (l *Logger) Info(format string, args ...interface{}) {
	l.zl.Info(l.line(format, args...))
}

// Error логирует ошибку
func (l *Logger) Error(format string, args ...interface{}) {
	l.zl.Error(l.line(format, args...))
}

// Debug логирует отладочное сообщение
func (l *Logger) Debug(format string, args ...interface{}) {
	l.zl.Debug(l.line(format, args...))
}

// Warning логирует предупреждение
func (l *Logger) Warning(format string, args ...interface{}) {
	l.zl.Warn(l.line(format, args...))
}

// LogDownload логирует событие скачивания
func (l *Logger) LogDownload(requestID, url string, userID int64, action string) {
	l.zl.Info(l.line("Download [%s]: %s", action, requestID),
		zap.String("request_id", requestID),
		zap.String("url", url),
		zap.Int64("user_id", userID),
	)
}

// LogErrorWithContext логирует ошибку с контекстом
func (l *Logger) LogErrorWithContext(context string, err error, extraInfo ...string) {
	info := ""
	if len(extraInfo) > 0 {
		info = fmt.Sprintf(" [%s]", extraInfo[0])
	}
	l.zl.Error(l.line("%s%s", context, info), zap.Error(err))
}

// LogPerformance логирует длительность операции
func (l *Logger) LogPerformance(operation string, startTime time.Time) {
	duration := time.Since(startTime)
	l.zl.Info(l.line("Performance: %s took %v", operation, duration), zap.Duration("duration", duration))
}

// Zap возвращает структурированный логгер компонента
func (l *Logger) Zap() *zap.Logger {
	return l.zl
}

func (l *Logger) line(format string, args ...interface{}) string {
	return fmt.Sprintf("[%s] %s", l.prefix, fmt.Sprintf(format, args...))
}

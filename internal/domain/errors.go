package domain

import (
	"errors"
	"fmt"
)

// ErrorKind дискриминант ошибки, по которому транспорт выбирает ответ пользователю
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTimeout
	KindHTTPStatus
	KindPlaylistNotFound
	KindInvalidQuery
	KindFileTooLarge
	KindQueueTimeout
	KindPlaylistExists
	KindNoSuchPlaylist
	KindInvalidTrack
	KindInvalidUser
	KindInvalidInput
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindHTTPStatus:
		return "http_status"
	case KindPlaylistNotFound:
		return "playlist_not_found"
	case KindInvalidQuery:
		return "invalid_query"
	case KindFileTooLarge:
		return "file_too_large"
	case KindQueueTimeout:
		return "queue_timeout"
	case KindPlaylistExists:
		return "playlist_exists"
	case KindNoSuchPlaylist:
		return "no_such_playlist"
	case KindInvalidTrack:
		return "invalid_track"
	case KindInvalidUser:
		return "invalid_user"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

// Error ошибка с явным видом
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is сравнивает ошибки по виду, чтобы обёрнутые варианты совпадали с сентинелами
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

var (
	ErrTimeout          = &Error{Kind: KindTimeout, Message: "request timed out"}
	ErrPlaylistNotFound = &Error{Kind: KindPlaylistNotFound, Message: "playlist element not found in HTML"}
	ErrInvalidQuery     = &Error{Kind: KindInvalidQuery, Message: "empty keyword after sanitisation"}
	ErrFileTooLarge     = &Error{Kind: KindFileTooLarge, Message: "file too large"}
	ErrQueueTimeout     = &Error{Kind: KindQueueTimeout, Message: "timed out waiting for a download slot"}
	ErrPlaylistExists   = &Error{Kind: KindPlaylistExists, Message: "playlist already exists"}
	ErrNoSuchPlaylist   = &Error{Kind: KindNoSuchPlaylist, Message: "playlist not found"}
	ErrInvalidTrack     = &Error{Kind: KindInvalidTrack, Message: "track must have performer and title"}
	ErrInvalidUser      = &Error{Kind: KindInvalidUser, Message: "invalid telegram id"}
	ErrInvalidInput     = &Error{Kind: KindInvalidInput, Message: "invalid input"}
)

// Errorf оборачивает сентинел с дополнительным контекстом
func Errorf(kind *Error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// HTTPStatusError ответ внешнего сервиса с кодом вне 2xx
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// KindOf возвращает вид ошибки или KindUnknown
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return KindHTTPStatus
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return KindUnknown
}

package apihttp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"MusicDownloader/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

// telegramID принимает идентификатор и числом, и строкой
type telegramID int64

func (id *telegramID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}
	if len(data) == 0 || string(data) == "null" {
		*id = 0
		return nil
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return domain.Errorf(domain.ErrInvalidUser, "telegramId %q", string(data))
	}
	*id = telegramID(v)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusForError выбирает HTTP-код по виду доменной ошибки
func statusForError(err error) int {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return http.StatusRequestEntityTooLarge
	}
	switch domain.KindOf(err) {
	case domain.KindInvalidUser, domain.KindInvalidInput, domain.KindInvalidTrack, domain.KindInvalidQuery:
		return http.StatusBadRequest
	case domain.KindNoSuchPlaylist:
		return http.StatusNotFound
	case domain.KindPlaylistExists:
		return http.StatusConflict
	case domain.KindHTTPStatus, domain.KindPlaylistNotFound, domain.KindFileTooLarge:
		return http.StatusBadGateway
	case domain.KindTimeout, domain.KindQueueTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.LogErrorWithContext(r.Method+" "+r.URL.Path, err)
	}
	if status == http.StatusInternalServerError {
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// decodeJSON читает тело запроса. Неизвестные поля допускаются.
func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return domain.Errorf(domain.ErrInvalidInput, "request body is required")
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	var maxBytesErr *http.MaxBytesError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &maxBytesErr):
		return err
	case errors.Is(err, io.EOF):
		return domain.Errorf(domain.ErrInvalidInput, "request body is required")
	case domain.KindOf(err) != domain.KindUnknown:
		return err
	default:
		return domain.Errorf(domain.ErrInvalidInput, "invalid JSON: %v", err)
	}
}

// pathTelegramID разбирает {id} из пути
func pathTelegramID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Errorf(domain.ErrInvalidUser, "telegram id %q", raw)
	}
	return id, nil
}

// pathParam возвращает декодированный параметр пути
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return raw
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func exportFileName(id int64) string {
	return fmt.Sprintf("music-library-%d.json", id)
}

func nonNilTracks(tracks []domain.StoredTrack) []domain.StoredTrack {
	if tracks == nil {
		return []domain.StoredTrack{}
	}
	return tracks
}

func nonNilPlaylists(playlists []domain.Playlist) []domain.Playlist {
	if playlists == nil {
		return []domain.Playlist{}
	}
	for i := range playlists {
		playlists[i].Tracks = nonNilTracks(playlists[i].Tracks)
	}
	return playlists
}

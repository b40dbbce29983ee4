package apihttp

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"MusicDownloader/internal/domain"
)

const (
	healthTimeout  = 3 * time.Second
	storageTimeout = 10 * time.Second
	scraperTimeout = 60 * time.Second
)

type trackRequest struct {
	TelegramID telegramID   `json:"telegramId"`
	Track      domain.Track `json:"track"`
}

type removeFavoriteRequest struct {
	TelegramID telegramID `json:"telegramId"`
	TrackID    string     `json:"trackId"`
}

type createPlaylistRequest struct {
	TelegramID  telegramID `json:"telegramId"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
}

type addToPlaylistRequest struct {
	TelegramID   telegramID   `json:"telegramId"`
	PlaylistName string       `json:"playlistName"`
	Track        domain.Track `json:"track"`
}

// loadUser читает пользователя по {id}; nil без ошибки, если его нет
func (s *Server) loadUser(w http.ResponseWriter, r *http.Request) (*domain.User, int64, bool) {
	id, err := pathTelegramID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return nil, 0, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), storageTimeout)
	defer cancel()
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return nil, 0, false
	}
	return user, id, true
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	if user == nil {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	user, id, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFileName(id)+`"`)
	if user == nil {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleGetFavorites(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	var tracks []domain.StoredTrack
	if user != nil {
		tracks = user.Favorites
	}
	writeJSON(w, http.StatusOK, nonNilTracks(tracks))
}

func (s *Server) handleGetRecent(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	var tracks []domain.StoredTrack
	if user != nil {
		tracks = user.RecentlyPlayed
	}
	writeJSON(w, http.StatusOK, nonNilTracks(tracks))
}

func (s *Server) handleGetPlaylists(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	var playlists []domain.Playlist
	if user != nil {
		playlists = user.Playlists
	}
	writeJSON(w, http.StatusOK, nonNilPlaylists(playlists))
}

func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storageTimeout)
	defer cancel()
	tracks, err := s.repo.AddToFavorites(ctx, int64(req.TelegramID), req.Track)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilTracks(tracks))
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	var req removeFavoriteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storageTimeout)
	defer cancel()
	tracks, err := s.repo.RemoveFromFavorites(ctx, int64(req.TelegramID), req.TrackID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilTracks(tracks))
}

func (s *Server) handleAddRecent(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storageTimeout)
	defer cancel()
	tracks, err := s.repo.AddToRecentlyPlayed(ctx, int64(req.TelegramID), req.Track)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilTracks(tracks))
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req createPlaylistRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storageTimeout)
	defer cancel()
	playlists, err := s.repo.CreatePlaylist(ctx, int64(req.TelegramID), req.Name, req.Description)
	if errors.Is(err, domain.ErrPlaylistExists) {
		writeError(w, http.StatusConflict, "Playlist already exists")
		return
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilPlaylists(playlists))
}

func (s *Server) handleAddToPlaylist(w http.ResponseWriter, r *http.Request) {
	var req addToPlaylistRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storageTimeout)
	defer cancel()
	playlists, err := s.repo.AddToPlaylist(ctx, int64(req.TelegramID), req.PlaylistName, req.Track)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilPlaylists(playlists))
}

func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := pathTelegramID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storageTimeout)
	defer cancel()
	playlists, err := s.repo.DeletePlaylist(ctx, id, pathParam(r, "name"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilPlaylists(playlists))
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), scraperTimeout)
	defer cancel()
	tracks, err := s.searcher.TopHits(ctx)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeTracks(w, tracks)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeTracks(w, nil)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), scraperTimeout)
	defer cancel()
	tracks, err := s.searcher.Search(ctx, q)
	if errors.Is(err, domain.ErrInvalidQuery) {
		writeTracks(w, nil)
		return
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeTracks(w, tracks)
}

func writeTracks(w http.ResponseWriter, tracks []domain.Track) {
	if tracks == nil {
		tracks = []domain.Track{}
	}
	writeJSON(w, http.StatusOK, tracks)
}

package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"MusicDownloader/internal/domain"
	"MusicDownloader/internal/storage/memory"
)

type fakeSearcher struct {
	top       []domain.Track
	results   []domain.Track
	err       error
	lastQuery string
}

func (f *fakeSearcher) TopHits(context.Context) ([]domain.Track, error) {
	return f.top, f.err
}

func (f *fakeSearcher) Search(_ context.Context, keyword string) ([]domain.Track, error) {
	f.lastQuery = keyword
	return f.results, f.err
}

type failingRepo struct {
	*memory.Store
}

func (failingRepo) Ping(context.Context) error { return errors.New("connection refused") }

func newTestServer(t *testing.T, searcher *fakeSearcher, opts ...ServerOption) (*Server, *memory.Store) {
	t.Helper()
	repo := memory.New()
	if searcher == nil {
		searcher = &fakeSearcher{}
	}
	opts = append([]ServerOption{WithRateLimit(0, 0), WithMetricsHandler(http.NotFoundHandler())}, opts...)
	return NewServer(repo, searcher, opts...), repo
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

const trackJSON = `{"performer":"Eminem","title":"Lose Yourself","name":"Eminem - Lose Yourself","audio_url":"https://cdn.example/a.mp3"}`

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	degraded := NewServer(failingRepo{memory.New()}, &fakeSearcher{}, WithRateLimit(0, 0))
	rec = do(t, degraded, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "degraded" {
		t.Fatalf("body = %v", body)
	}
}

func TestAlive(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/api/ac", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "Hello!" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestGetUserUnknownReturnsEmptyObject(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/api/user/42", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "{}" {
		t.Fatalf("body = %s", got)
	}
}

func TestGetUserInvalidID(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	for _, id := range []string{"abc", "0", "-5"} {
		rec := do(t, srv, http.MethodGet, "/api/user/"+id, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("id %s: status = %d", id, rec.Code)
		}
	}
}

func TestFavoritesFlow(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/favorites/7", "")
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Fatalf("empty favorites = %s", got)
	}

	rec = do(t, srv, http.MethodPost, "/api/favorites/add", `{"telegramId":"7","track":`+trackJSON+`}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("add status = %d body = %s", rec.Code, rec.Body.String())
	}
	var favs []domain.StoredTrack
	decodeBody(t, rec, &favs)
	if len(favs) != 1 || favs[0].TrackID != "eminemloseyourself" {
		t.Fatalf("favorites = %+v", favs)
	}

	// повторное добавление не дублирует
	rec = do(t, srv, http.MethodPost, "/api/favorites/add", `{"telegramId":7,"track":`+trackJSON+`}`)
	decodeBody(t, rec, &favs)
	if len(favs) != 1 {
		t.Fatalf("duplicate added: %+v", favs)
	}

	rec = do(t, srv, http.MethodPost, "/api/favorites/remove", `{"telegramId":7,"trackId":"eminemloseyourself"}`)
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Fatalf("after remove = %s", got)
	}
}

func TestAddFavoriteInvalidTrack(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := do(t, srv, http.MethodPost, "/api/favorites/add", `{"telegramId":7,"track":{"title":"x"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDecodeErrors(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/api/recent/add", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json status = %d", rec.Code)
	}

	rec = do(t, srv, http.MethodPost, "/api/recent/add", `{"telegramId":"seven","track":`+trackJSON+`}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", rec.Code)
	}

	big := `{"telegramId":7,"track":{"performer":"` + strings.Repeat("a", maxBodyBytes) + `","title":"t"}}`
	rec = do(t, srv, http.MethodPost, "/api/recent/add", big)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("big body status = %d", rec.Code)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	do(t, srv, http.MethodPost, "/api/recent/add", `{"telegramId":9,"track":{"performer":"A","title":"One"}}`)
	rec := do(t, srv, http.MethodPost, "/api/recent/add", `{"telegramId":9,"track":{"performer":"B","title":"Two"}}`)

	var recent []domain.StoredTrack
	decodeBody(t, rec, &recent)
	if len(recent) != 2 || recent[0].Performer != "B" {
		t.Fatalf("recent = %+v", recent)
	}

	rec = do(t, srv, http.MethodGet, "/api/recent/9", "")
	decodeBody(t, rec, &recent)
	if len(recent) != 2 || recent[0].Name != "B - Two" {
		t.Fatalf("recent = %+v", recent)
	}
}

func TestPlaylistsFlow(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/api/playlists/create", `{"telegramId":5,"name":"  ","description":""}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "Name is required") {
		t.Fatalf("empty name: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodPost, "/api/playlists/create", `{"telegramId":5,"name":"Road Trip","description":"summer"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodPost, "/api/playlists/create", `{"telegramId":5,"name":"Road Trip"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: %d", rec.Code)
	}

	rec = do(t, srv, http.MethodPost, "/api/playlists/add", `{"telegramId":5,"playlistName":"Road Trip","track":`+trackJSON+`}`)
	var playlists []domain.Playlist
	decodeBody(t, rec, &playlists)
	if len(playlists) != 1 || len(playlists[0].Tracks) != 1 {
		t.Fatalf("playlists = %+v", playlists)
	}

	rec = do(t, srv, http.MethodPost, "/api/playlists/add", `{"telegramId":5,"playlistName":"Missing","track":`+trackJSON+`}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing playlist: %d", rec.Code)
	}

	rec = do(t, srv, http.MethodDelete, "/api/playlists/5/Road%20Trip", "")
	if got := strings.TrimSpace(rec.Body.String()); rec.Code != http.StatusOK || got != "[]" {
		t.Fatalf("delete: %d %s", rec.Code, got)
	}
}

func TestExportSetsAttachment(t *testing.T) {
	srv, repo := newTestServer(t, nil)
	if _, err := repo.CreateOrUpdateUser(context.Background(), 11, domain.UserPatch{FirstName: domain.StringPtr("Ali")}); err != nil {
		t.Fatal(err)
	}
	rec := do(t, srv, http.MethodGet, "/api/export/11", "")
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "music-library-11.json") {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	var user domain.User
	decodeBody(t, rec, &user)
	if user.TelegramID != 11 || user.FirstName != "Ali" {
		t.Fatalf("user = %+v", user)
	}
}

func TestSearch(t *testing.T) {
	searcher := &fakeSearcher{results: []domain.Track{domain.NewTrack(1, "Eminem", "Lose Yourself", "https://cdn.example/a.mp3")}}
	srv, _ := newTestServer(t, searcher)

	rec := do(t, srv, http.MethodGet, "/api/search?q=eminem", "")
	var tracks []domain.Track
	decodeBody(t, rec, &tracks)
	if len(tracks) != 1 || searcher.lastQuery != "eminem" {
		t.Fatalf("tracks = %+v, query = %q", tracks, searcher.lastQuery)
	}

	searcher.lastQuery = ""
	rec = do(t, srv, http.MethodGet, "/api/search?q=", "")
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" || searcher.lastQuery != "" {
		t.Fatalf("empty query: %s, searched %q", got, searcher.lastQuery)
	}

	searcher.err = domain.ErrInvalidQuery
	rec = do(t, srv, http.MethodGet, "/api/search?q=%21%21", "")
	if got := strings.TrimSpace(rec.Body.String()); rec.Code != http.StatusOK || got != "[]" {
		t.Fatalf("invalid query: %d %s", rec.Code, got)
	}
}

func TestTopUpstreamErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&domain.HTTPStatusError{StatusCode: 503, URL: "https://vuxo7.com/"}, http.StatusBadGateway},
		{domain.ErrTimeout, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		srv, _ := newTestServer(t, &fakeSearcher{err: tt.err})
		rec := do(t, srv, http.MethodGet, "/api/top", "")
		if rec.Code != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}

	srv, _ := newTestServer(t, &fakeSearcher{err: errors.New("secret dsn")})
	rec := do(t, srv, http.MethodGet, "/api/top", "")
	if strings.Contains(rec.Body.String(), "secret") {
		t.Fatalf("internal error leaked: %s", rec.Body.String())
	}
}

func TestNotFoundIsJSON(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/api/nope", "")
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("got %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
}

func TestStaticWebApp(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	srv, _ := newTestServer(t, nil, WithWebAppDir(dir))
	rec := do(t, srv, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "app") {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}

package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"MusicDownloader/internal/domain"
	"MusicDownloader/internal/logger"
	"MusicDownloader/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store реализация хранилища поверх PostgreSQL
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

var (
	_ storage.Repository = (*Store)(nil)
	_ storage.AudioCache = (*Store)(nil)
)

// Open подключается к базе и применяет миграции
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("база данных недоступна: %w", err)
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New оборачивает уже открытое соединение
func New(db *sql.DB) *Store {
	return &Store{db: db, logger: logger.New("POSTGRES")}
}

// Migrate применяет встроенные миграции goose
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{s.logger})
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

type gooseLogger struct {
	l *logger.Logger
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.l.Info(strings.TrimSuffix(format, "\n"), v...)
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	g.l.Error(strings.TrimSuffix(format, "\n"), v...)
	os.Exit(1)
}

// queryer общее для *sql.DB и *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func ensureUser(ctx context.Context, q queryer, telegramID int64) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO users (telegram_id, language) VALUES ($1, $2) ON CONFLICT (telegram_id) DO NOTHING`,
		telegramID, domain.DefaultLanguage)
	if err != nil {
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, telegramID int64) (*domain.User, error) {
	if err := storage.ValidateTelegramID(telegramID); err != nil {
		return nil, err
	}
	return loadUser(ctx, s.db, telegramID)
}

func loadUser(ctx context.Context, q queryer, telegramID int64) (*domain.User, error) {
	u := domain.User{TelegramID: telegramID}
	err := q.QueryRowContext(ctx,
		`SELECT first_name, last_name, username, language, last_active, created_at, updated_at
		 FROM users WHERE telegram_id = $1`, telegramID).
		Scan(&u.FirstName, &u.LastName, &u.Username, &u.Language, &u.LastActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	if u.Favorites, err = listFavorites(ctx, q, telegramID); err != nil {
		return nil, err
	}
	if u.RecentlyPlayed, err = listRecent(ctx, q, telegramID); err != nil {
		return nil, err
	}
	if u.Playlists, err = listPlaylists(ctx, q, telegramID); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateOrUpdateUser(ctx context.Context, telegramID int64, patch domain.UserPatch) (*domain.User, error) {
	if err := storage.ValidateTelegramID(telegramID); err != nil {
		return nil, err
	}
	patch = storage.NormalizeLanguage(patch)
	var user *domain.User
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (telegram_id, first_name, last_name, username, language)
			VALUES ($1, COALESCE($2::text, ''), COALESCE($3::text, ''), COALESCE($4::text, ''), COALESCE($5::text, $6))
			ON CONFLICT (telegram_id) DO UPDATE SET
				first_name = COALESCE($2::text, users.first_name),
				last_name = COALESCE($3::text, users.last_name),
				username = COALESCE($4::text, users.username),
				language = COALESCE($5::text, users.language),
				last_active = NOW(),
				updated_at = NOW()`,
			telegramID, patch.FirstName, patch.LastName, patch.Username, patch.Language, domain.DefaultLanguage)
		if err != nil {
			return fmt.Errorf("ошибка обновления пользователя: %w", err)
		}
		user, err = loadUser(ctx, tx, telegramID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) AddToFavorites(ctx context.Context, telegramID int64, track domain.Track) ([]domain.StoredTrack, error) {
	stored, err := prepare(telegramID, track)
	if err != nil {
		return nil, err
	}
	var favs []domain.StoredTrack
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureUser(ctx, tx, telegramID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO favorites (telegram_id, track_id, performer, title, name, audio_url, added_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (telegram_id, track_id) DO NOTHING`,
			telegramID, stored.TrackID, stored.Performer, stored.Title, stored.Name, stored.AudioURL, stored.AddedAt)
		if err != nil {
			return fmt.Errorf("ошибка добавления в избранное: %w", err)
		}
		if err := touch(ctx, tx, telegramID); err != nil {
			return err
		}
		favs, err = listFavorites(ctx, tx, telegramID)
		return err
	})
	return favs, err
}

func (s *Store) RemoveFromFavorites(ctx context.Context, telegramID int64, trackID string) ([]domain.StoredTrack, error) {
	if err := storage.ValidateTelegramID(telegramID); err != nil {
		return nil, err
	}
	var favs []domain.StoredTrack
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureUser(ctx, tx, telegramID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM favorites WHERE telegram_id = $1 AND track_id = $2`, telegramID, trackID); err != nil {
			return fmt.Errorf("ошибка удаления из избранного: %w", err)
		}
		if err := touch(ctx, tx, telegramID); err != nil {
			return err
		}
		var err error
		favs, err = listFavorites(ctx, tx, telegramID)
		return err
	})
	return favs, err
}

func (s *Store) AddToRecentlyPlayed(ctx context.Context, telegramID int64, track domain.Track) ([]domain.StoredTrack, error) {
	stored, err := prepare(telegramID, track)
	if err != nil {
		return nil, err
	}
	var recent []domain.StoredTrack
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureUser(ctx, tx, telegramID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM recently_played WHERE telegram_id = $1 AND track_id = $2`, telegramID, stored.TrackID); err != nil {
			return fmt.Errorf("ошибка обновления недавних: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO recently_played (telegram_id, track_id, performer, title, name, audio_url, added_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			telegramID, stored.TrackID, stored.Performer, stored.Title, stored.Name, stored.AudioURL, stored.AddedAt); err != nil {
			return fmt.Errorf("ошибка обновления недавних: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM recently_played WHERE telegram_id = $1 AND seq NOT IN (
				SELECT seq FROM recently_played WHERE telegram_id = $1 ORDER BY seq DESC LIMIT $2
			)`, telegramID, domain.MaxRecentlyPlayed); err != nil {
			return fmt.Errorf("ошибка обрезки недавних: %w", err)
		}
		if err := touch(ctx, tx, telegramID); err != nil {
			return err
		}
		var err error
		recent, err = listRecent(ctx, tx, telegramID)
		return err
	})
	return recent, err
}

func (s *Store) CreatePlaylist(ctx context.Context, telegramID int64, name, description string) ([]domain.Playlist, error) {
	if err := storage.ValidateTelegramID(telegramID); err != nil {
		return nil, err
	}
	name, description, err := storage.NormalizePlaylist(name, description)
	if err != nil {
		return nil, err
	}
	var lists []domain.Playlist
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureUser(ctx, tx, telegramID); err != nil {
			return err
		}
		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO playlists (telegram_id, name, description) VALUES ($1, $2, $3)
			ON CONFLICT (telegram_id, name) DO NOTHING RETURNING id`,
			telegramID, name, description).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Errorf(domain.ErrPlaylistExists, "%q", name)
		}
		if err != nil {
			return fmt.Errorf("ошибка создания плейлиста: %w", err)
		}
		if err := touch(ctx, tx, telegramID); err != nil {
			return err
		}
		lists, err = listPlaylists(ctx, tx, telegramID)
		return err
	})
	return lists, err
}

func (s *Store) AddToPlaylist(ctx context.Context, telegramID int64, playlistName string, track domain.Track) ([]domain.Playlist, error) {
	stored, err := prepare(telegramID, track)
	if err != nil {
		return nil, err
	}
	var lists []domain.Playlist
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var playlistID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM playlists WHERE telegram_id = $1 AND name = $2`, telegramID, strings.TrimSpace(playlistName)).Scan(&playlistID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Errorf(domain.ErrNoSuchPlaylist, "%q", playlistName)
		}
		if err != nil {
			return fmt.Errorf("ошибка поиска плейлиста: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO playlist_tracks (playlist_id, track_id, performer, title, name, audio_url, added_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (playlist_id, track_id) DO NOTHING`,
			playlistID, stored.TrackID, stored.Performer, stored.Title, stored.Name, stored.AudioURL, stored.AddedAt); err != nil {
			return fmt.Errorf("ошибка добавления в плейлист: %w", err)
		}
		if err := touch(ctx, tx, telegramID); err != nil {
			return err
		}
		lists, err = listPlaylists(ctx, tx, telegramID)
		return err
	})
	return lists, err
}

func (s *Store) DeletePlaylist(ctx context.Context, telegramID int64, name string) ([]domain.Playlist, error) {
	if err := storage.ValidateTelegramID(telegramID); err != nil {
		return nil, err
	}
	var lists []domain.Playlist
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureUser(ctx, tx, telegramID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM playlists WHERE telegram_id = $1 AND name = $2`, telegramID, strings.TrimSpace(name)); err != nil {
			return fmt.Errorf("ошибка удаления плейлиста: %w", err)
		}
		if err := touch(ctx, tx, telegramID); err != nil {
			return err
		}
		var err error
		lists, err = listPlaylists(ctx, tx, telegramID)
		return err
	})
	return lists, err
}

func prepare(telegramID int64, track domain.Track) (domain.StoredTrack, error) {
	if err := storage.ValidateTelegramID(telegramID); err != nil {
		return domain.StoredTrack{}, err
	}
	return domain.NormalizeTrack(track, time.Now())
}

func touch(ctx context.Context, q queryer, telegramID int64) error {
	if _, err := q.ExecContext(ctx, `UPDATE users SET updated_at = NOW() WHERE telegram_id = $1`, telegramID); err != nil {
		return fmt.Errorf("ошибка обновления пользователя: %w", err)
	}
	return nil
}

const trackColumns = `track_id, performer, title, name, audio_url, added_at`

func listFavorites(ctx context.Context, q queryer, telegramID int64) ([]domain.StoredTrack, error) {
	return queryTracks(ctx, q,
		`SELECT `+trackColumns+` FROM favorites WHERE telegram_id = $1 ORDER BY seq`, telegramID)
}

func listRecent(ctx context.Context, q queryer, telegramID int64) ([]domain.StoredTrack, error) {
	return queryTracks(ctx, q,
		`SELECT `+trackColumns+` FROM recently_played WHERE telegram_id = $1 ORDER BY seq DESC`, telegramID)
}

func queryTracks(ctx context.Context, q queryer, query string, args ...any) ([]domain.StoredTrack, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения треков: %w", err)
	}
	defer rows.Close()

	tracks := []domain.StoredTrack{}
	for rows.Next() {
		var t domain.StoredTrack
		if err := rows.Scan(&t.TrackID, &t.Performer, &t.Title, &t.Name, &t.AudioURL, &t.AddedAt); err != nil {
			return nil, fmt.Errorf("ошибка чтения треков: %w", err)
		}
		t.AddedAt = t.AddedAt.UTC()
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

func listPlaylists(ctx context.Context, q queryer, telegramID int64) ([]domain.Playlist, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM playlists WHERE telegram_id = $1 ORDER BY id`, telegramID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения плейлистов: %w", err)
	}

	var ids []int64
	lists := []domain.Playlist{}
	for rows.Next() {
		var (
			id int64
			p  domain.Playlist
		)
		if err := rows.Scan(&id, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("ошибка чтения плейлистов: %w", err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		ids = append(ids, id)
		lists = append(lists, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i, id := range ids {
		tracks, err := queryTracks(ctx, q,
			`SELECT `+trackColumns+` FROM playlist_tracks WHERE playlist_id = $1 ORDER BY seq`, id)
		if err != nil {
			return nil, err
		}
		lists[i].Tracks = tracks
	}
	return lists, nil
}

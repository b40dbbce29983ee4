package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	"MusicDownloader/internal/domain"
	"MusicDownloader/internal/storage"
)

const (
	usersCollection = "users"
	cacheCollection = "audio_cache"
)

// Store хранит пользователей одним документом на пользователя
type Store struct {
	client *mongo.Client
	users  *mongo.Collection
	cache  *mongo.Collection
	now    func() time.Time
}

var (
	_ storage.Repository = (*Store)(nil)
	_ storage.AudioCache = (*Store)(nil)
)

// Connect открывает клиента с трассировкой команд
func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{
		options.Client().ApplyURI(uri).SetMonitor(otelmongo.NewMonitor()),
	}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Open подключается, проверяет доступность и создает индексы
func Open(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := Connect(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("MongoDB недоступна: %w", err)
	}
	s := New(client, dbName)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func New(client *mongo.Client, dbName string) *Store {
	db := client.Database(dbName)
	return &Store{
		client: client,
		users:  db.Collection(usersCollection),
		cache:  db.Collection(cacheCollection),
		now:    time.Now,
	}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "telegramId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("ошибка создания индекса users: %w", err)
	}
	_, err = s.cache.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("ошибка создания индекса audio_cache: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) GetUser(ctx context.Context, telegramID int64) (*domain.User, error) {
	if err := storage.ValidateTelegramID(telegramID); err != nil {
		return nil, err
	}
	return s.findUser(ctx, telegramID)
}

func (s *Store) findUser(ctx context.Context, telegramID int64) (*domain.User, error) {
	var u domain.User
	err := s.users.FindOne(ctx, bson.M{"telegramId": telegramID}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	if u.Favorites == nil {
		u.Favorites = []domain.StoredTrack{}
	}
	if u.RecentlyPlayed == nil {
		u.RecentlyPlayed = []domain.StoredTrack{}
	}
	if u.Playlists == nil {
		u.Playlists = []domain.Playlist{}
	}
	for i := range u.Playlists {
		if u.Playlists[i].Tracks == nil {
			u.Playlists[i].Tracks = []domain.StoredTrack{}
		}
	}
	return &u, nil
}

// mustFindUser читает пользователя, созданного в той же операции
func (s *Store) mustFindUser(ctx context.Context, telegramID int64) (*domain.User, error) {
	u, err := s.findUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("пользователь %d исчез во время обновления", telegramID)
	}
	return u, nil
}

// insertDefaults поля нового документа, кроме перечисленных в skip
func (s *Store) insertDefaults(telegramID int64, skip bson.M) bson.M {
	now := s.now().UTC()
	defaults := bson.M{
		"telegramId":     telegramID,
		"firstName":      "",
		"lastName":       "",
		"username":       "",
		"language":       domain.DefaultLanguage,
		"favorites":      bson.A{},
		"recentlyPlayed": bson.A{},
		"playlists":      bson.A{},
		"lastActive":     now,
		"createdAt":      now,
		"updatedAt":      now,
	}
	for key := range skip {
		delete(defaults, key)
	}
	return defaults
}

func (s *Store) ensureUser(ctx context.Context, telegramID int64) error {
	_, err := s.users.UpdateOne(ctx,
		bson.M{"telegramId": telegramID},
		bson.M{"$setOnInsert": s.insertDefaults(telegramID, nil)},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

func (s *Store) CreateOrUpdateUser(ctx context.Context, telegramID int64, patch domain.UserPatch) (*domain.User, error) {
	if err := storage.ValidateTelegramID(telegramID); err != nil {
		return nil, err
	}
	patch = storage.NormalizeLanguage(patch)

	now := s.now().UTC()
	set := bson.M{"lastActive": now, "updatedAt": now}
	if patch.FirstName != nil {
		set["firstName"] = *patch.FirstName
	}
	if patch.LastName != nil {
		set["lastName"] = *patch.LastName
	}
	if patch.Username != nil {
		set["username"] = *patch.Username
	}
	if patch.Language != nil {
		set["language"] = *patch.Language
	}
	_, err := s.users.UpdateOne(ctx,
		bson.M{"telegramId": telegramID},
		bson.M{"$set": set, "$setOnInsert": s.insertDefaults(telegramID, set)},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка обновления пользователя: %w", err)
	}
	return s.mustFindUser(ctx, telegramID)
}

func (s *Store) AddToFavorites(ctx context.Context, telegramID int64, track domain.Track) ([]domain.StoredTrack, error) {
	stored, err := s.prepare(ctx, telegramID, track)
	if err != nil {
		return nil, err
	}
	_, err = s.users.UpdateOne(ctx,
		bson.M{"telegramId": telegramID, "favorites.trackId": bson.M{"$ne": stored.TrackID}},
		bson.M{"$push": bson.M{"favorites": stored}, "$set": bson.M{"updatedAt": stored.AddedAt}},
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка добавления в избранное: %w", err)
	}
	u, err := s.mustFindUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	return u.Favorites, nil
}

func (s *Store) RemoveFromFavorites(ctx context.Context, telegramID int64, trackID string) ([]domain.StoredTrack, error) {
	if err := storage.ValidateTelegramID(telegramID); err != nil {
		return nil, err
	}
	if err := s.ensureUser(ctx, telegramID); err != nil {
		return nil, err
	}
	_, err := s.users.UpdateOne(ctx,
		bson.M{"telegramId": telegramID},
		bson.M{"$pull": bson.M{"favorites": bson.M{"trackId": trackID}}, "$set": bson.M{"updatedAt": s.now().UTC()}},
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка удаления из избранного: %w", err)
	}
	u, err := s.mustFindUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	return u.Favorites, nil
}

func (s *Store) AddToRecentlyPlayed(ctx context.Context, telegramID int64, track domain.Track) ([]domain.StoredTrack, error) {
	stored, err := s.prepare(ctx, telegramID, track)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"telegramId": telegramID}
	if _, err := s.users.UpdateOne(ctx, filter,
		bson.M{"$pull": bson.M{"recentlyPlayed": bson.M{"trackId": stored.TrackID}}}); err != nil {
		return nil, fmt.Errorf("ошибка обновления недавних: %w", err)
	}
	_, err = s.users.UpdateOne(ctx, filter, bson.M{
		"$push": bson.M{"recentlyPlayed": bson.M{
			"$each":     bson.A{stored},
			"$position": 0,
			"$slice":    domain.MaxRecentlyPlayed,
		}},
		"$set": bson.M{"updatedAt": stored.AddedAt},
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка обновления недавних: %w", err)
	}
	u, err := s.mustFindUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	return u.RecentlyPlayed, nil
}

func (s *Store) CreatePlaylist(ctx context.Context, telegramID int64, name, description string) ([]domain.Playlist, error) {
	if err := storage.ValidateTelegramID(telegramID); err != nil {
		return nil, err
	}
	name, description, err := storage.NormalizePlaylist(name, description)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUser(ctx, telegramID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	playlist := domain.Playlist{Name: name, Description: description, Tracks: []domain.StoredTrack{}, CreatedAt: now}
	res, err := s.users.UpdateOne(ctx,
		bson.M{"telegramId": telegramID, "playlists.name": bson.M{"$ne": name}},
		bson.M{"$push": bson.M{"playlists": playlist}, "$set": bson.M{"updatedAt": now}},
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания плейлиста: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, domain.Errorf(domain.ErrPlaylistExists, "%q", name)
	}
	u, err := s.mustFindUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	return u.Playlists, nil
}

func (s *Store) AddToPlaylist(ctx context.Context, telegramID int64, playlistName string, track domain.Track) ([]domain.Playlist, error) {
	stored, err := s.prepare(ctx, telegramID, track)
	if err != nil {
		return nil, err
	}
	playlistName = strings.TrimSpace(playlistName)
	res, err := s.users.UpdateOne(ctx,
		bson.M{
			"telegramId": telegramID,
			"playlists": bson.M{"$elemMatch": bson.M{
				"name":           playlistName,
				"tracks.trackId": bson.M{"$ne": stored.TrackID},
			}},
		},
		bson.M{"$push": bson.M{"playlists.$.tracks": stored}, "$set": bson.M{"updatedAt": stored.AddedAt}},
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка добавления в плейлист: %w", err)
	}
	if res.MatchedCount == 0 {
		n, err := s.users.CountDocuments(ctx, bson.M{"telegramId": telegramID, "playlists.name": playlistName})
		if err != nil {
			return nil, fmt.Errorf("ошибка поиска плейлиста: %w", err)
		}
		if n == 0 {
			return nil, domain.Errorf(domain.ErrNoSuchPlaylist, "%q", playlistName)
		}
	}
	u, err := s.mustFindUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	return u.Playlists, nil
}

func (s *Store) DeletePlaylist(ctx context.Context, telegramID int64, name string) ([]domain.Playlist, error) {
	if err := storage.ValidateTelegramID(telegramID); err != nil {
		return nil, err
	}
	if err := s.ensureUser(ctx, telegramID); err != nil {
		return nil, err
	}
	_, err := s.users.UpdateOne(ctx,
		bson.M{"telegramId": telegramID},
		bson.M{"$pull": bson.M{"playlists": bson.M{"name": strings.TrimSpace(name)}}, "$set": bson.M{"updatedAt": s.now().UTC()}},
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка удаления плейлиста: %w", err)
	}
	u, err := s.mustFindUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	return u.Playlists, nil
}

// prepare проверяет входные данные и гарантирует наличие документа пользователя
func (s *Store) prepare(ctx context.Context, telegramID int64, track domain.Track) (domain.StoredTrack, error) {
	if err := storage.ValidateTelegramID(telegramID); err != nil {
		return domain.StoredTrack{}, err
	}
	stored, err := domain.NormalizeTrack(track, s.now())
	if err != nil {
		return domain.StoredTrack{}, err
	}
	if err := s.ensureUser(ctx, telegramID); err != nil {
		return domain.StoredTrack{}, err
	}
	return stored, nil
}

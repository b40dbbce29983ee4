package domain

import "time"

const (
	LangUz = "uz"
	LangRu = "ru"
	LangEn = "en"

	DefaultLanguage = LangUz

	MaxRecentlyPlayed         = 50
	MaxPlaylistNameLen        = 64
	MaxPlaylistDescriptionLen = 256
)

// Languages поддерживаемые языки в порядке показа
var Languages = []string{LangUz, LangRu, LangEn}

func IsSupportedLanguage(lang string) bool {
	for _, l := range Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// Playlist пользовательский плейлист
type Playlist struct {
	Name        string        `json:"name" bson:"name"`
	Description string        `json:"description" bson:"description"`
	Tracks      []StoredTrack `json:"tracks" bson:"tracks"`
	CreatedAt   time.Time     `json:"createdAt" bson:"createdAt"`
}

// User профиль и библиотека пользователя
type User struct {
	TelegramID     int64         `json:"telegramId" bson:"telegramId"`
	FirstName      string        `json:"firstName" bson:"firstName"`
	LastName       string        `json:"lastName" bson:"lastName"`
	Username       string        `json:"username" bson:"username"`
	Language       string        `json:"language" bson:"language"`
	Favorites      []StoredTrack `json:"favorites" bson:"favorites"`
	RecentlyPlayed []StoredTrack `json:"recentlyPlayed" bson:"recentlyPlayed"`
	Playlists      []Playlist    `json:"playlists" bson:"playlists"`
	LastActive     time.Time     `json:"lastActive" bson:"lastActive"`
	CreatedAt      time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// UserPatch частичное обновление профиля; nil поля не меняются
type UserPatch struct {
	FirstName *string
	LastName  *string
	Username  *string
	Language  *string
}

func StringPtr(s string) *string { return &s }

package domain

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Track трек, полученный со страницы сайта
type Track struct {
	Index     int    `json:"index"`
	Performer string `json:"performer"`
	Title     string `json:"title"`
	Name      string `json:"name"`
	AudioURL  string `json:"audio_url"`
}

// NewTrack создает трек с именем по умолчанию "исполнитель - название"
func NewTrack(index int, performer, title, audioURL string) Track {
	return Track{
		Index:     index,
		Performer: performer,
		Title:     title,
		Name:      DisplayName(performer, title),
		AudioURL:  audioURL,
	}
}

func DisplayName(performer, title string) string {
	return performer + " - " + title
}

// StoredTrack трек в том виде, в каком он хранится в списках пользователя
type StoredTrack struct {
	TrackID   string    `json:"trackId" bson:"trackId"`
	Performer string    `json:"performer" bson:"performer"`
	Title     string    `json:"title" bson:"title"`
	Name      string    `json:"name" bson:"name"`
	AudioURL  string    `json:"audio_url" bson:"audio_url"`
	AddedAt   time.Time `json:"addedAt" bson:"addedAt"`
}

// BuildTrackID строит ключ дедупликации из исполнителя и названия.
// Регистр, пунктуация и пробелы не учитываются.
func BuildTrackID(performer, title string) string {
	src := norm.NFC.String(performer + " " + title)
	var b strings.Builder
	b.Grow(len(src))
	for _, r := range strings.ToLower(src) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeTrack готовит трек к сохранению
func NormalizeTrack(t Track, now time.Time) (StoredTrack, error) {
	performer := strings.TrimSpace(t.Performer)
	title := strings.TrimSpace(t.Title)
	if performer == "" || title == "" {
		return StoredTrack{}, ErrInvalidTrack
	}
	name := strings.TrimSpace(t.Name)
	if name == "" {
		name = DisplayName(performer, title)
	}
	return StoredTrack{
		TrackID:   BuildTrackID(performer, title),
		Performer: performer,
		Title:     title,
		Name:      name,
		AudioURL:  strings.TrimSpace(t.AudioURL),
		AddedAt:   now.UTC(),
	}, nil
}

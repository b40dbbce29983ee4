package scraper

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"MusicDownloader/internal/domain"
)

const (
	playlistSelector  = "ul.playlist"
	itemSelector      = "li"
	performerSelector = ".playlist-name-artist"
	titleSelector     = ".playlist-name-title"
	playSelector      = ".playlist-play"
	audioURLAttr      = "data-url"
)

// ParseTracks разбирает страницу со списком треков.
// Неполные элементы пропускаются; отсутствие списка это ErrPlaylistNotFound.
func ParseTracks(r io.Reader) ([]domain.Track, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	playlist := doc.Find(playlistSelector)
	if playlist.Length() == 0 {
		return nil, domain.ErrPlaylistNotFound
	}

	tracks := make([]domain.Track, 0)
	playlist.Find(itemSelector).Each(func(i int, li *goquery.Selection) {
		performer := strings.TrimSpace(li.Find(performerSelector).First().Text())
		title := strings.TrimSpace(li.Find(titleSelector).First().Text())
		audioURL, _ := li.Find(playSelector).First().Attr(audioURLAttr)
		audioURL = strings.TrimSpace(audioURL)

		if performer == "" || title == "" || audioURL == "" {
			return
		}
		tracks = append(tracks, domain.NewTrack(i, performer, title, audioURL))
	})
	return tracks, nil
}

package searchstore

import "MusicDownloader/internal/domain"

const PageSize = 10

// Page одна страница результатов
type Page struct {
	Index  int
	Total  int
	Start  int
	Tracks []domain.Track
}

// Paginate режет список на страницы по PageSize. Номер страницы зажимается в допустимые границы.
func Paginate(tracks []domain.Track, page int) Page {
	total := (len(tracks) + PageSize - 1) / PageSize
	if total < 1 {
		total = 1
	}
	if page > total-1 {
		page = total - 1
	}
	if page < 0 {
		page = 0
	}
	start := page * PageSize
	end := start + PageSize
	if end > len(tracks) {
		end = len(tracks)
	}
	if start > end {
		start = end
	}
	return Page{Index: page, Total: total, Start: start, Tracks: tracks[start:end]}
}

// TrackAt возвращает n-й (с единицы) трек страницы
func TrackAt(tracks []domain.Track, page, n int) (domain.Track, bool) {
	if page < 0 || n < 1 || n > PageSize {
		return domain.Track{}, false
	}
	// граница до умножения, иначе огромный page переполняет индекс
	if page >= (len(tracks)+PageSize-1)/PageSize {
		return domain.Track{}, false
	}
	idx := page*PageSize + n - 1
	if idx >= len(tracks) {
		return domain.Track{}, false
	}
	return tracks[idx], true
}

// Package domain defines the core types and interfaces for aura.
// All other packages depend on domain; domain depends on nothing.
package domain

import (
	"strings"
	"time"
)

// Unknown is the placeholder for metadata the recognizer did not return.
const Unknown = "Unknown"

// Track is a single recognized song held in the history.
type Track struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	Album       string    `json:"album,omitempty"`
	Genre       string    `json:"genre,omitempty"`
	ReleaseDate string    `json:"release_date,omitempty"`
	Popularity  int       `json:"popularity"`
	DetectedAt  time.Time `json:"detected_at"`
}

// Key is the deduplication identity of a track: title and artist, ID excluded.
type Key struct {
	Title  string
	Artist string
}

// Key returns the (title, artist) identity.
func (t Track) Key() Key {
	return Key{Title: t.Title, Artist: t.Artist}
}

// Query returns the free-text search query for the track.
func (t Track) Query() string {
	return strings.TrimSpace(t.Title + " " + t.Artist)
}

// Year extracts the leading year of the release date, or "----".
func (t Track) Year() string {
	if len(t.ReleaseDate) >= 4 {
		return t.ReleaseDate[:4]
	}
	return "----"
}

// Match is a positive recognition result before it becomes a Track.
type Match struct {
	Title       string
	Artist      string
	Album       string
	Genre       string
	ReleaseDate string
	Popularity  int
}

// Track converts the match into an unsaved Track detected at the given time.
// Empty title or artist become [Unknown].
func (m Match) Track(at time.Time) Track {
	title, artist := m.Title, m.Artist
	if strings.TrimSpace(title) == "" {
		title = Unknown
	}
	if strings.TrimSpace(artist) == "" {
		artist = Unknown
	}
	return Track{
		Title:       title,
		Artist:      artist,
		Album:       m.Album,
		Genre:       m.Genre,
		ReleaseDate: m.ReleaseDate,
		Popularity:  m.Popularity,
		DetectedAt:  at,
	}
}

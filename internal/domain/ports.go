package domain

import (
	"context"
	"time"
)

// Capturer records ambient audio into a temporary WAV file. The caller owns
// the returned path and must remove it.
type Capturer interface {
	Capture(ctx context.Context, d time.Duration) (string, error)
	Probe(ctx context.Context) error
}

// Recognizer identifies the song in a captured sample. It returns ErrNoMatch
// when the service answered but found nothing.
type Recognizer interface {
	Recognize(ctx context.Context, audioPath string) (*Match, error)
	Ping(ctx context.Context) error
}

// Downloader fetches a track into the local music library.
type Downloader interface {
	Download(ctx context.Context, title, artist string) error
}

// Player searches for a free-text query and plays it outside aura.
type Player interface {
	Play(ctx context.Context, query string) error
}

// VoiceSearch runs a complete capture, transcribe, search and play sequence.
type VoiceSearch interface {
	Run(ctx context.Context) error
}

// Announcer speaks or otherwise surfaces a short line to the user.
// Implementations must not block on delivery.
type Announcer interface {
	Announce(text string)
}

// Archive keeps a permanent log of every positive recognition.
type Archive interface {
	Record(ctx context.Context, t Track, isNew bool) error
	Total(ctx context.Context) (int64, error)
}

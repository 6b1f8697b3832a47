// Package voice implements voice search: say a song name, hear it play.
package voice

import (
	"context"
	"fmt"
	"time"

	"github.com/hammamikhairi/aura/internal/domain"
	"github.com/hammamikhairi/aura/internal/logger"
	"github.com/hammamikhairi/aura/internal/youtube"
)

// DefaultDuration is how long the microphone stays open.
const DefaultDuration = 6 * time.Second

// queryPrefix biases results toward audio uploads over music videos.
const queryPrefix = "song audio "

// Listener records speech for d and returns the raw transcript.
type Listener interface {
	Listen(ctx context.Context, d time.Duration) (string, error)
}

// Finder maps a text query to a watch URL.
type Finder interface {
	Search(ctx context.Context, query string) (string, error)
}

// Launcher plays a resolved stream outside aura.
type Launcher interface {
	Play(s youtube.Stream) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDuration sets the recording length.
func WithDuration(d time.Duration) Option {
	return func(p *Pipeline) { p.duration = d }
}

// WithResolver replaces the yt-dlp stream resolver.
func WithResolver(fn func(ctx context.Context, watchURL string) (youtube.Stream, error)) Option {
	return func(p *Pipeline) { p.resolve = fn }
}

// WithHeard registers a callback that receives the cleaned transcript
// before the search starts.
func WithHeard(fn func(query string)) Option {
	return func(p *Pipeline) { p.heard = fn }
}

// Pipeline records, transcribes, searches and plays.
type Pipeline struct {
	listen   Listener
	find     Finder
	launch   Launcher
	resolve  func(ctx context.Context, watchURL string) (youtube.Stream, error)
	heard    func(query string)
	duration time.Duration
	log      *logger.Logger
}

var _ domain.VoiceSearch = (*Pipeline)(nil)

// New creates a voice search pipeline.
func New(listen Listener, find Finder, launch Launcher, log *logger.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		listen:   listen,
		find:     find,
		launch:   launch,
		resolve:  youtube.Resolve,
		duration: DefaultDuration,
		log:      log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run performs one voice search. It returns domain.ErrNotFound when
// nothing intelligible was said or no video matched.
func (p *Pipeline) Run(ctx context.Context) error {
	raw, err := p.listen.Listen(ctx, p.duration)
	if err != nil {
		return fmt.Errorf("listening: %w", err)
	}
	text := Clean(raw)
	if text == "" {
		return fmt.Errorf("no speech recognised: %w", domain.ErrNotFound)
	}
	p.log.Info("voice: heard %q", text)
	if p.heard != nil {
		p.heard(text)
	}

	watch, err := p.find.Search(ctx, queryPrefix+text)
	if err != nil {
		return fmt.Errorf("searching for %q: %w", text, err)
	}

	stream, err := p.resolve(ctx, watch)
	if err != nil {
		return err
	}
	if stream.Title == "" {
		stream.Title = text
	}
	return p.launch.Play(stream)
}

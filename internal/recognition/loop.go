// Package recognition runs the listen -> recognise -> record cycle until it
// is cancelled or the microphone keeps failing.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/hammamikhairi/aura/internal/domain"
	"github.com/hammamikhairi/aura/internal/logger"
	"github.com/hammamikhairi/aura/internal/render"
)

// Defaults.
const (
	DefaultRecordDuration     = 10 * time.Second
	DefaultMaxCaptureFailures = 5
	DefaultRetryDelay         = 500 * time.Millisecond
	DefaultErrorDelay         = time.Second
)

// Store receives recognized tracks.
type Store interface {
	Add(t domain.Track) (isNew bool, id int)
}

// View receives new rows and status updates.
type View interface {
	AddTrack(t domain.Track)
	SetStatus(status string)
}

// Option configures the Loop.
type Option func(*Loop)

// WithRecordDuration sets the length of each capture.
func WithRecordDuration(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.record = d
		}
	}
}

// WithMaxCaptureFailures sets how many consecutive capture failures stop
// the loop.
func WithMaxCaptureFailures(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxFailures = n
		}
	}
}

// WithRetryDelay sets the pause after a failed capture.
func WithRetryDelay(d time.Duration) Option {
	return func(l *Loop) { l.retryDelay = d }
}

// WithErrorDelay sets the pause after an unexpected recognition error.
func WithErrorDelay(d time.Duration) Option {
	return func(l *Loop) { l.errorDelay = d }
}

// WithArchive appends every positive recognition to a.
func WithArchive(a domain.Archive) Option {
	return func(l *Loop) { l.archive = a }
}

// WithAnnouncer announces newly recognized tracks.
func WithAnnouncer(a domain.Announcer) Option {
	return func(l *Loop) { l.announcer = a }
}

// WithClock overrides the detection timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// Loop is the recognition cycle.
type Loop struct {
	capturer   domain.Capturer
	recognizer domain.Recognizer
	store      Store
	view       View
	archive    domain.Archive
	announcer  domain.Announcer
	log        *logger.Logger

	record      time.Duration
	maxFailures int
	retryDelay  time.Duration
	errorDelay  time.Duration
	now         func() time.Time

	failures atomic.Int64 // consecutive capture failures
	misses   atomic.Int64 // consecutive recognitions without a match
}

// New creates a recognition loop.
func New(c domain.Capturer, r domain.Recognizer, store Store, view View, log *logger.Logger, opts ...Option) *Loop {
	l := &Loop{
		capturer:    c,
		recognizer:  r,
		store:       store,
		view:        view,
		log:         log,
		record:      DefaultRecordDuration,
		maxFailures: DefaultMaxCaptureFailures,
		retryDelay:  DefaultRetryDelay,
		errorDelay:  DefaultErrorDelay,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Failures returns the current run of capture failures.
func (l *Loop) Failures() int { return int(l.failures.Load()) }

// Misses returns the current run of recognitions without a match.
func (l *Loop) Misses() int { return int(l.misses.Load()) }

// Run cycles until ctx is cancelled (returns nil) or capture fails too many
// times in a row (returns an error wrapping domain.ErrCaptureFailed).
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("recognition: started (record=%s)", l.record)
	defer l.log.Info("recognition: stopped")

	for ctx.Err() == nil {
		if err := l.cycle(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) cycle(ctx context.Context) error {
	l.view.SetStatus(render.LineListening())

	path, err := l.capturer.Capture(ctx, l.record)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		n := int(l.failures.Add(1))
		l.log.Warn("recognition: capture failed (%d/%d): %v", n, l.maxFailures, err)
		if n >= l.maxFailures {
			l.view.SetStatus(render.LineCaptureFailed(l.maxFailures))
			return fmt.Errorf("%d consecutive failures: %w", n, domain.ErrCaptureFailed)
		}
		l.view.SetStatus(render.LineCaptureRetry(n, l.maxFailures))
		sleep(ctx, l.retryDelay)
		return nil
	}
	l.failures.Store(0)

	l.view.SetStatus(render.LineProcessing())
	match, err := l.recognize(ctx, path)
	switch {
	case ctx.Err() != nil:
		return nil
	case errors.Is(err, domain.ErrNoMatch):
		n := int(l.misses.Add(1))
		l.log.Debug("recognition: no match (%d in a row)", n)
		l.view.SetStatus(render.LineNoMatch(n))
		return nil
	case err != nil:
		l.log.Warn("recognition: %v", err)
		l.view.SetStatus(render.LineError(err))
		sleep(ctx, l.errorDelay)
		return nil
	}

	l.misses.Store(0)
	l.accept(ctx, match.Track(l.now()))
	return nil
}

// recognize sends the capture off and always removes the temporary file.
func (l *Loop) recognize(ctx context.Context, path string) (*domain.Match, error) {
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			l.log.Debug("recognition: removing %s: %v", path, err)
		}
	}()

	match, err := l.recognizer.Recognize(ctx, path)
	if err == nil && match == nil {
		err = domain.ErrNoMatch
	}
	return match, err
}

func (l *Loop) accept(ctx context.Context, t domain.Track) {
	isNew, id := l.store.Add(t)
	t.ID = id

	if l.archive != nil {
		if err := l.archive.Record(ctx, t, isNew); err != nil {
			l.log.Warn("recognition: archiving #%d: %v", id, err)
		}
	}

	if !isNew {
		l.log.Debug("recognition: already have #%d %q", id, t.Title)
		l.view.SetStatus(render.LineAlreadySeen(t.Title))
		return
	}

	l.log.Info("recognition: #%d %q by %q", id, t.Title, t.Artist)
	l.view.AddTrack(t)
	l.view.SetStatus(render.LineFound(t.Title))
	if l.announcer != nil {
		l.announcer.Announce(fmt.Sprintf("Now playing %s by %s", t.Title, t.Artist))
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

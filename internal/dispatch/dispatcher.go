// Package dispatch turns key presses into actions. Navigation happens
// inline; anything that talks to the network, a subprocess or a device is
// launched as a background task and never awaited.
package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hammamikhairi/aura/internal/domain"
	"github.com/hammamikhairi/aura/internal/logger"
	"github.com/hammamikhairi/aura/internal/render"
	"github.com/hammamikhairi/aura/internal/tasks"
)

// View is the UI state the dispatcher drives.
type View interface {
	MoveUp() bool
	MoveDown() bool
	Selected() (domain.Track, bool)
	RemoveSelected() (domain.Track, bool)
	ToggleHelp()
	SetStatus(status string)
}

// Store is the history the remove command edits.
type Store interface {
	Remove(id int) bool
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithDownloader enables the download command.
func WithDownloader(d domain.Downloader) Option {
	return func(x *Dispatcher) { x.downloader = d }
}

// WithPlayer enables external playback.
func WithPlayer(p domain.Player) Option {
	return func(x *Dispatcher) { x.player = p }
}

// WithVoiceSearch enables voice search.
func WithVoiceSearch(v domain.VoiceSearch) Option {
	return func(x *Dispatcher) { x.voice = v }
}

// Dispatcher processes commands in arrival order.
type Dispatcher struct {
	view  View
	store Store
	tasks *tasks.Registry
	log   *logger.Logger

	downloader domain.Downloader
	player     domain.Player
	voice      domain.VoiceSearch

	voiceBusy atomic.Bool
}

// New creates a dispatcher.
func New(view View, store Store, reg *tasks.Registry, log *logger.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{view: view, store: store, tasks: reg, log: log}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run handles keys until a quit key arrives or ctx is done. It never returns
// an error: failures are reported through the status line.
func (d *Dispatcher) Run(ctx context.Context, keys <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case k := <-keys:
			if !d.Handle(ctx, k) {
				d.log.Info("dispatch: quit requested (%q)", k)
				return nil
			}
		}
	}
}

// Handle executes one command and reports whether the loop should go on.
func (d *Dispatcher) Handle(ctx context.Context, key string) bool {
	switch key {
	case "q", "esc":
		return false
	case "up":
		d.view.MoveUp()
	case "down":
		d.view.MoveDown()
	case "d":
		d.download(ctx)
	case "y":
		d.play(ctx)
	case "v":
		d.voiceSearch(ctx)
	case "x":
		d.remove()
	case "?":
		d.view.ToggleHelp()
	default:
		d.log.Debug("dispatch: ignoring %q", key)
	}
	return true
}

func (d *Dispatcher) download(ctx context.Context) {
	t, ok := d.view.Selected()
	if !ok {
		d.reject("download", domain.ErrNoSelection, render.LineNothingSelected())
		return
	}
	if d.downloader == nil {
		d.reject("download", domain.ErrUnavailable, render.LineDownloadFailed(t.Title))
		return
	}

	d.view.SetStatus(render.LineDownloading(t.Title))
	d.spawn(ctx, "download "+t.Title, render.LineDownloadFailed(t.Title), func(ctx context.Context) error {
		if err := d.downloader.Download(ctx, t.Title, t.Artist); err != nil {
			return err
		}
		d.view.SetStatus(render.LineDownloaded(t.Title))
		return nil
	})
}

func (d *Dispatcher) play(ctx context.Context) {
	t, ok := d.view.Selected()
	if !ok {
		d.reject("play", domain.ErrNoSelection, render.LineNothingSelected())
		return
	}
	if d.player == nil {
		d.reject("play", domain.ErrUnavailable, render.LinePlayUnavailable())
		return
	}

	d.view.SetStatus(render.LinePlaying(t.Title))
	d.spawn(ctx, "play "+t.Title, render.LinePlayFailed(t.Title), func(ctx context.Context) error {
		return d.player.Play(ctx, t.Query())
	})
}

func (d *Dispatcher) voiceSearch(ctx context.Context) {
	if d.voice == nil {
		d.reject("voice search", domain.ErrUnavailable, render.LineVoiceUnavailable())
		return
	}
	if !d.voiceBusy.CompareAndSwap(false, true) {
		d.view.SetStatus(render.LineVoiceBusy())
		return
	}

	d.view.SetStatus(render.LineVoiceListening())
	d.spawn(ctx, "voice search", render.LineVoiceFailed(), func(ctx context.Context) error {
		defer d.voiceBusy.Store(false)
		if err := d.voice.Run(ctx); err != nil {
			return err
		}
		d.view.SetStatus(render.LineVoiceDone())
		return nil
	})
}

// reject refuses a command before anything is launched.
func (d *Dispatcher) reject(cmd string, err error, status string) {
	d.log.Debug("dispatch: %s: %v", cmd, err)
	d.view.SetStatus(status)
}

// spawn launches fn as a background task. A failure or panic shows failed
// in the status line unless the task was cancelled.
func (d *Dispatcher) spawn(ctx context.Context, name, failed string, fn func(ctx context.Context) error) {
	d.tasks.Go(ctx, name, func(ctx context.Context) (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic: %v", rec)
			}
			if err != nil && ctx.Err() == nil {
				d.view.SetStatus(failed)
			}
		}()
		return fn(ctx)
	})
}

func (d *Dispatcher) remove() {
	t, ok := d.view.RemoveSelected()
	if !ok {
		d.reject("remove", domain.ErrNoSelection, render.LineNothingSelected())
		return
	}
	if !d.store.Remove(t.ID) {
		d.log.Debug("dispatch: #%d was no longer in history", t.ID)
	}
	d.view.SetStatus(render.LineRemoved(t.Title))
}

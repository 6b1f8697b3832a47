// Package app wires the recognition loop, key dispatcher, input watcher and
// render loop together and owns their lifetime.
package app

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hammamikhairi/aura/internal/archive"
	"github.com/hammamikhairi/aura/internal/config"
	"github.com/hammamikhairi/aura/internal/dispatch"
	"github.com/hammamikhairi/aura/internal/display"
	"github.com/hammamikhairi/aura/internal/domain"
	"github.com/hammamikhairi/aura/internal/history"
	"github.com/hammamikhairi/aura/internal/input"
	"github.com/hammamikhairi/aura/internal/logger"
	"github.com/hammamikhairi/aura/internal/offload"
	"github.com/hammamikhairi/aura/internal/recognition"
	"github.com/hammamikhairi/aura/internal/render"
	"github.com/hammamikhairi/aura/internal/speech"
	"github.com/hammamikhairi/aura/internal/tasks"
)

// Shutdown budgets.
const (
	DefaultShutdownTimeout = 5 * time.Second
	taskCancelTimeout      = 2 * time.Second
	poolShutdownTimeout    = time.Second
	speakerStopTimeout     = time.Second
)

// Screen shows frames. display.UI is the production implementation.
type Screen interface {
	Show(l render.Layout)
	Run() error
	Quit()
	Ready() <-chan struct{}
}

// Speaker is an announcer with a worker lifecycle.
type Speaker interface {
	domain.Announcer
	Start(ctx context.Context)
	Stop(timeout time.Duration) bool
}

// Archive is a closable detection archive that can rank artists.
type Archive interface {
	domain.Archive
	TopArtists(ctx context.Context, n int) ([]archive.ArtistCount, error)
	Close() error
}

// Deps are the collaborators built by main. Capturer, Recognizer, History
// and Pool are required; the rest may be nil.
type Deps struct {
	Capturer   domain.Capturer
	Recognizer domain.Recognizer
	History    *history.Store
	Pool       *offload.Pool

	Archive    Archive
	Downloader domain.Downloader
	Player     domain.Player
	Voice      domain.VoiceSearch
	Speaker    Speaker
}

// Option configures the App.
type Option func(*App)

// WithScreen replaces the Bubble Tea screen. newScreen receives the resize
// callback the screen must report terminal sizes to.
func WithScreen(newScreen func(resize func(width, height int)) Screen) Option {
	return func(a *App) { a.newScreen = newScreen }
}

// WithInput sets the key source (default os.Stdin) and whether to switch
// it to raw mode.
func WithInput(in io.Reader, raw bool) Option {
	return func(a *App) {
		a.in = in
		a.raw = raw
	}
}

// WithShutdownTimeout bounds the whole shutdown sequence.
func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) { a.shutdownTimeout = d }
}

// App is the orchestrator.
type App struct {
	cfg  *config.Config
	deps Deps
	log  *logger.Logger

	in              io.Reader
	raw             bool
	newScreen       func(resize func(width, height int)) Screen
	shutdownTimeout time.Duration

	engine  *render.Engine
	tasks   *tasks.Registry
	allTime atomic.Int64

	topMu sync.Mutex
	top   [render.MaxTopArtists]render.ArtistPlays
}

// New creates the app.
func New(cfg *config.Config, deps Deps, log *logger.Logger, opts ...Option) *App {
	a := &App{
		cfg:             cfg,
		deps:            deps,
		log:             log,
		raw:             true,
		shutdownTimeout: DefaultShutdownTimeout,
		newScreen: func(resize func(width, height int)) Screen {
			return display.NewUI(resize)
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.in == nil {
		a.in = os.Stdin
	}
	a.engine = render.New(render.LineReady(), render.WithStats(a.stats))
	a.tasks = tasks.New(log)
	return a
}

// Engine exposes the render engine.
func (a *App) Engine() *render.Engine { return a.engine }

// Run blocks until the user quits, ctx is cancelled or the screen dies,
// then shuts everything down. A microphone that keeps failing does not end
// Run: the failure stays on the status line until the user quits.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.engine.SetTracks(a.deps.History.All())
	a.loadTotal(ctx)

	var announcer domain.Announcer = speech.NewNoOp(a.log)
	if a.deps.Speaker != nil {
		a.deps.Speaker.Start(ctx)
		announcer = a.deps.Speaker
	}

	screen := a.newScreen(a.engine.SetSize)
	screenDone := make(chan error, 1)
	go func() { screenDone <- screen.Run() }()
	select {
	case <-screen.Ready():
	case err := <-screenDone:
		a.log.Error("display: %v", err)
		a.shutdown(nil)
		if err == nil {
			err = errors.New("display exited before it started")
		}
		return err
	}

	watcher := input.New(a.in, a.log, input.WithRawMode(a.raw))
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		if err := watcher.Run(ctx); err != nil {
			a.log.Warn("input: %v", err)
		}
	}()

	dispatcher := dispatch.New(a.engine, a.deps.History, a.tasks, a.log, a.dispatchOptions()...)
	loop := recognition.New(a.deps.Capturer, a.deps.Recognizer, a.deps.History, a.engine, a.log,
		a.loopOptions(announcer)...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return dispatcher.Run(gctx, watcher.Keys())
	})
	g.Go(func() error {
		err := loop.Run(gctx)
		if errors.Is(err, domain.ErrCaptureFailed) {
			a.log.Error("recognition stopped: %v", err)
			return nil
		}
		return err
	})
	g.Go(func() error {
		a.engine.Run(gctx, a.cfg.FrameInterval, screen.Show)
		return nil
	})
	var screenErr error
	g.Go(func() error {
		select {
		case screenErr = <-screenDone:
			screenDone = nil
			cancel()
			return nil
		case <-gctx.Done():
			return nil
		}
	})

	err := g.Wait()
	a.log.Info("app: shutting down")
	a.engine.SetStatus(render.LineShuttingDown())

	a.shutdown(watcherDone)

	screen.Quit()
	if screenDone != nil {
		screenErr = <-screenDone
	}
	if screenErr != nil {
		a.log.Error("display: %v", screenErr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return screenErr
}

func (a *App) dispatchOptions() []dispatch.Option {
	var opts []dispatch.Option
	if a.deps.Downloader != nil {
		opts = append(opts, dispatch.WithDownloader(a.deps.Downloader))
	}
	if a.deps.Player != nil {
		opts = append(opts, dispatch.WithPlayer(a.deps.Player))
	}
	if a.deps.Voice != nil {
		opts = append(opts, dispatch.WithVoiceSearch(a.deps.Voice))
	}
	return opts
}

func (a *App) loopOptions(announcer domain.Announcer) []recognition.Option {
	opts := []recognition.Option{
		recognition.WithRecordDuration(a.cfg.RecordDuration),
	}
	if a.deps.Archive != nil {
		opts = append(opts, recognition.WithArchive(&countingArchive{Archive: a.deps.Archive, app: a}))
	}
	return append(opts, recognition.WithAnnouncer(announcer))
}

// shutdown releases resources in dependency order. Every step is bounded
// and the sequence as a whole stays within shutdownTimeout.
func (a *App) shutdown(watcherDone <-chan struct{}) {
	deadline := time.Now().Add(a.shutdownTimeout)
	budget := func(d time.Duration) time.Duration {
		return max(0, min(d, time.Until(deadline)))
	}

	if !a.tasks.CancelAll(budget(taskCancelTimeout)) {
		a.log.Warn("app: background tasks still running")
	}
	if err := a.deps.History.Close(); err != nil {
		a.log.Warn("app: saving history: %v", err)
	}
	if a.deps.Pool != nil && !a.deps.Pool.Shutdown(budget(poolShutdownTimeout)) {
		a.log.Warn("app: blocking calls still running")
	}
	if a.deps.Speaker != nil {
		a.deps.Speaker.Stop(budget(speakerStopTimeout))
	}
	if a.deps.Archive != nil {
		if err := a.deps.Archive.Close(); err != nil {
			a.log.Warn("app: closing archive: %v", err)
		}
	}

	if watcherDone == nil {
		return
	}
	select {
	case <-watcherDone:
	case <-time.After(budget(a.shutdownTimeout)):
		a.log.Warn("app: input reader abandoned")
	}
}

func (a *App) stats() render.Stats {
	s := a.deps.History.Stats()
	a.topMu.Lock()
	top := a.top
	a.topMu.Unlock()
	return render.Stats{
		Count:         s.Count,
		Artists:       s.Artists,
		AvgPopularity: s.AvgPopularity,
		AllTime:       a.allTime.Load(),
		TopArtists:    top,
	}
}

func (a *App) loadTotal(ctx context.Context) {
	if a.deps.Archive == nil {
		return
	}
	n, err := a.deps.Archive.Total(ctx)
	if err != nil {
		a.log.Warn("app: counting archived detections: %v", err)
		return
	}
	a.allTime.Store(n)
	a.loadTopArtists(ctx)
}

// loadTopArtists refreshes the cached ranking. The stats panel reads the
// cache so rendering never touches the database.
func (a *App) loadTopArtists(ctx context.Context) {
	rows, err := a.deps.Archive.TopArtists(ctx, render.MaxTopArtists)
	if err != nil {
		a.log.Warn("app: ranking artists: %v", err)
		return
	}
	var top [render.MaxTopArtists]render.ArtistPlays
	for i, r := range rows {
		if i == len(top) {
			break
		}
		top[i] = render.ArtistPlays{Artist: r.Artist, Plays: r.Plays}
	}
	a.topMu.Lock()
	a.top = top
	a.topMu.Unlock()
}

// countingArchive keeps the all-time counter and artist ranking in step
// with successful writes.
type countingArchive struct {
	Archive
	app *App
}

func (c *countingArchive) Record(ctx context.Context, t domain.Track, isNew bool) error {
	if err := c.Archive.Record(ctx, t, isNew); err != nil {
		return err
	}
	c.app.allTime.Add(1)
	c.app.loadTopArtists(ctx)
	return nil
}

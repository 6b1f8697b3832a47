package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/aura/internal/domain"
	"github.com/hammamikhairi/aura/internal/history"
	"github.com/hammamikhairi/aura/internal/logger"
	"github.com/hammamikhairi/aura/internal/render"
	"github.com/hammamikhairi/aura/internal/tasks"
)

// ── Mocks ────────────────────────────────────────────────────────

type mockDownloader struct {
	mu    sync.Mutex
	calls []string
	err   error
	panic bool
}

func (m *mockDownloader) Download(ctx context.Context, title, artist string) error {
	m.mu.Lock()
	m.calls = append(m.calls, title+" / "+artist)
	m.mu.Unlock()
	if m.panic {
		panic("yt-dlp exploded")
	}
	return m.err
}

type mockPlayer struct {
	mu      sync.Mutex
	queries []string
}

func (m *mockPlayer) Play(ctx context.Context, query string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	return nil
}

type mockVoice struct {
	release chan struct{}
	runs    int
	mu      sync.Mutex
}

func (m *mockVoice) Run(ctx context.Context) error {
	m.mu.Lock()
	m.runs++
	m.mu.Unlock()
	select {
	case <-m.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ── Helpers ──────────────────────────────────────────────────────

type fixture struct {
	view  *render.Engine
	store *history.Store
	reg   *tasks.Registry
	d     *Dispatcher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	f := &fixture{
		view:  render.New(render.LineReady()),
		store: history.New(log),
		reg:   tasks.New(log),
	}
	for _, title := range []string{"A", "B", "C"} {
		_, id := f.store.Add(domain.Track{Title: title, Artist: "x"})
		tr, _ := f.store.Get(id)
		f.view.AddTrack(tr)
	}
	f.d = New(f.view, f.store, f.reg, log, opts...)
	t.Cleanup(func() { f.reg.CancelAll(time.Second) })
	return f
}

func waitStatus(t *testing.T, v *render.Engine, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for v.Status() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected status %q, got %q", want, v.Status())
		}
		time.Sleep(time.Millisecond)
	}
}

// ── Tests ────────────────────────────────────────────────────────

func TestQuitKeysStopTheLoop(t *testing.T) {
	for _, k := range []string{"q", "esc"} {
		f := newFixture(t)
		keys := make(chan string, 1)
		keys <- k
		done := make(chan error, 1)
		go func() { done <- f.d.Run(context.Background(), keys) }()

		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("%q: unexpected error %v", k, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("%q did not stop the loop", k)
		}
	}
}

func TestNavigationAndUnknownKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, k := range []string{"up", "up", "z", "enter", "", "down"} {
		if !f.d.Handle(ctx, k) {
			t.Fatalf("%q must not end the loop", k)
		}
	}
	sel, _ := f.view.Selected()
	if sel.Title != "B" {
		t.Fatalf("expected B selected, got %q", sel.Title)
	}
}

func TestToggleHelp(t *testing.T) {
	f := newFixture(t)
	before := f.view.HelpVisible()
	f.d.Handle(context.Background(), "?")
	if f.view.HelpVisible() == before {
		t.Fatal("? must toggle help")
	}
}

func TestRemoveSelected(t *testing.T) {
	f := newFixture(t)
	f.d.Handle(context.Background(), "x")

	if f.view.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", f.view.Len())
	}
	if f.store.Len() != 2 {
		t.Fatalf("expected 2 stored tracks, got %d", f.store.Len())
	}
	if f.view.Status() != render.LineRemoved("C") {
		t.Fatalf("unexpected status %q", f.view.Status())
	}
}

func TestDownloadRunsInBackground(t *testing.T) {
	dl := &mockDownloader{}
	f := newFixture(t, WithDownloader(dl))

	f.d.Handle(context.Background(), "d")
	waitStatus(t, f.view, render.LineDownloaded("C"))

	dl.mu.Lock()
	defer dl.mu.Unlock()
	if len(dl.calls) != 1 || dl.calls[0] != "C / x" {
		t.Fatalf("unexpected download calls: %v", dl.calls)
	}
}

func TestFailingDownloadKeepsDispatcherAlive(t *testing.T) {
	for _, tc := range []struct {
		name string
		dl   *mockDownloader
	}{
		{"error", &mockDownloader{err: errors.New("network down")}},
		{"panic", &mockDownloader{panic: true}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, WithDownloader(tc.dl))
			keys := make(chan string, 8)
			done := make(chan error, 1)
			go func() { done <- f.d.Run(context.Background(), keys) }()

			keys <- "d"
			waitStatus(t, f.view, render.LineDownloadFailed("C"))

			// Still processing commands.
			keys <- "up"
			deadline := time.Now().Add(time.Second)
			for {
				if sel, _ := f.view.Selected(); sel.Title == "B" {
					break
				}
				if time.Now().After(deadline) {
					t.Fatal("dispatcher stopped handling keys after a failed download")
				}
				time.Sleep(time.Millisecond)
			}

			keys <- "q"
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("dispatcher did not quit")
			}
		})
	}
}

func TestPlayUsesTrackQuery(t *testing.T) {
	p := &mockPlayer{}
	f := newFixture(t, WithPlayer(p))

	f.d.Handle(context.Background(), "y")
	if f.view.Status() != render.LinePlaying("C") {
		t.Fatalf("unexpected status %q", f.view.Status())
	}

	deadline := time.Now().Add(time.Second)
	for {
		p.mu.Lock()
		n := len(p.queries)
		p.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("player never called")
		}
		time.Sleep(time.Millisecond)
	}
	if p.queries[0] != "C x" {
		t.Fatalf("unexpected query %q", p.queries[0])
	}
}

func TestUnavailableCapabilities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.d.Handle(ctx, "y")
	if f.view.Status() != render.LinePlayUnavailable() {
		t.Fatalf("unexpected status %q", f.view.Status())
	}
	f.d.Handle(ctx, "v")
	if f.view.Status() != render.LineVoiceUnavailable() {
		t.Fatalf("unexpected status %q", f.view.Status())
	}
}

func TestNothingSelected(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	view := render.New(render.LineReady())
	d := New(view, history.New(log), tasks.New(log), log, WithDownloader(&mockDownloader{}))

	for _, k := range []string{"d", "x"} {
		d.Handle(context.Background(), k)
		if view.Status() != render.LineNothingSelected() {
			t.Fatalf("%q: unexpected status %q", k, view.Status())
		}
	}
}

func TestVoiceSearchIsExclusive(t *testing.T) {
	v := &mockVoice{release: make(chan struct{})}
	f := newFixture(t, WithVoiceSearch(v))
	ctx := context.Background()

	f.d.Handle(ctx, "v")
	if f.view.Status() != render.LineVoiceListening() {
		t.Fatalf("unexpected status %q", f.view.Status())
	}
	f.d.Handle(ctx, "v")
	if f.view.Status() != render.LineVoiceBusy() {
		t.Fatalf("second voice search should be refused, status %q", f.view.Status())
	}

	close(v.release)
	waitStatus(t, f.view, render.LineVoiceDone())
}

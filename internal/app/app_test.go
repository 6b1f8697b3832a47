package app

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/aura/internal/archive"
	"github.com/hammamikhairi/aura/internal/config"
	"github.com/hammamikhairi/aura/internal/domain"
	"github.com/hammamikhairi/aura/internal/history"
	"github.com/hammamikhairi/aura/internal/logger"
	"github.com/hammamikhairi/aura/internal/offload"
	"github.com/hammamikhairi/aura/internal/render"
)

func quiet() *logger.Logger { return logger.New(logger.LevelOff, nil) }

func testConfig() *config.Config {
	return &config.Config{RecordDuration: 10 * time.Millisecond, FrameInterval: 5 * time.Millisecond}
}

// ── Mocks ────────────────────────────────────────────────────────

// onceCapturer succeeds once, then blocks until cancelled.
type onceCapturer struct {
	mu    sync.Mutex
	calls int
}

func (c *onceCapturer) Capture(ctx context.Context, d time.Duration) (string, error) {
	c.mu.Lock()
	c.calls++
	first := c.calls == 1
	c.mu.Unlock()
	if first {
		return filepath.Join("does", "not", "exist.wav"), nil
	}
	<-ctx.Done()
	return "", ctx.Err()
}

func (c *onceCapturer) Probe(ctx context.Context) error { return nil }

type stubRecognizer struct {
	match *domain.Match
}

func (r *stubRecognizer) Recognize(ctx context.Context, path string) (*domain.Match, error) {
	if r.match == nil {
		return nil, domain.ErrNoMatch
	}
	return r.match, nil
}

func (r *stubRecognizer) Ping(ctx context.Context) error { return nil }

type fakeScreen struct {
	mu      sync.Mutex
	frames  int
	last    string
	quit    chan struct{}
	once    sync.Once
	runErr  error
	resize  func(w, h int)
	quitted bool
	ready   chan struct{}
}

func newFakeScreen() *fakeScreen {
	s := &fakeScreen{quit: make(chan struct{}), ready: make(chan struct{})}
	close(s.ready)
	return s
}

func (s *fakeScreen) Show(l render.Layout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	s.last = l.String()
}

func (s *fakeScreen) Run() error {
	if s.runErr != nil {
		return s.runErr
	}
	if s.resize != nil {
		s.resize(100, 40)
	}
	<-s.quit
	return nil
}

func (s *fakeScreen) Quit() {
	s.once.Do(func() {
		s.mu.Lock()
		s.quitted = true
		s.mu.Unlock()
		close(s.quit)
	})
}

func (s *fakeScreen) Ready() <-chan struct{} { return s.ready }

func (s *fakeScreen) snapshot() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames, s.last
}

type fakeArchive struct {
	mu       sync.Mutex
	total    int64
	recorded int
	closed   bool
	fail     bool
}

func (a *fakeArchive) Record(ctx context.Context, t domain.Track, isNew bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return errors.New("disk full")
	}
	a.recorded++
	return nil
}

func (a *fakeArchive) Total(ctx context.Context) (int64, error) { return a.total, nil }

func (a *fakeArchive) TopArtists(ctx context.Context, n int) ([]archive.ArtistCount, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.recorded == 0 {
		return nil, nil
	}
	return []archive.ArtistCount{{Artist: "Daft Punk", Plays: int64(a.recorded)}}, nil
}

func (a *fakeArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

type fakeSpeaker struct {
	mu      sync.Mutex
	said    []string
	started bool
	stopped bool
}

func (s *fakeSpeaker) Announce(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.said = append(s.said, text)
}

func (s *fakeSpeaker) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
}

func (s *fakeSpeaker) Stop(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return true
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ── Tests ────────────────────────────────────────────────────────

func TestQuitKeyShutsEverythingDown(t *testing.T) {
	histPath := filepath.Join(t.TempDir(), "history.json")
	hist := history.New(quiet(), history.WithPath(histPath))
	screen := newFakeScreen()
	arch := &fakeArchive{total: 41}
	speaker := &fakeSpeaker{}
	pool := offload.New(2, quiet())
	pr, pw := io.Pipe()

	a := New(testConfig(), Deps{
		Capturer:   &onceCapturer{},
		Recognizer: &stubRecognizer{match: &domain.Match{Title: "Around the World", Artist: "Daft Punk"}},
		History:    hist,
		Pool:       pool,
		Archive:    arch,
		Speaker:    speaker,
	}, quiet(),
		WithScreen(func(resize func(w, h int)) Screen {
			screen.resize = resize
			return screen
		}),
		WithInput(pr, false),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(context.Background()) }()

	waitFor(t, func() bool { return a.Engine().Len() == 1 })
	waitFor(t, func() bool {
		_, last := screen.snapshot()
		return strings.Contains(last, "Around the World")
	})

	if _, err := pw.Write([]byte("q")); err != nil {
		t.Fatalf("writing key: %v", err)
	}
	pw.Close()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("app did not quit")
	}

	st := a.stats()
	if st.AllTime != 42 {
		t.Fatalf("expected all-time count 42, got %d", st.AllTime)
	}
	if st.TopArtists[0] != (render.ArtistPlays{Artist: "Daft Punk", Plays: 1}) {
		t.Fatalf("ranking not refreshed after a detection: %+v", st.TopArtists)
	}
	if arch.recorded != 1 || !arch.closed {
		t.Fatalf("archive recorded=%d closed=%v", arch.recorded, arch.closed)
	}
	if !speaker.started || !speaker.stopped {
		t.Fatal("speaker lifecycle not driven")
	}
	if len(speaker.said) != 1 || speaker.said[0] != "Now playing Around the World by Daft Punk" {
		t.Fatalf("unexpected announcements %v", speaker.said)
	}
	if !screen.quitted {
		t.Fatal("screen was not told to quit")
	}
	if rows := a.Engine().VisibleRows(); rows != 40-14 {
		t.Fatalf("resize not forwarded, visible rows %d", rows)
	}

	reloaded := history.New(quiet(), history.WithPath(histPath))
	if reloaded.Len() != 1 {
		t.Fatalf("history not flushed on shutdown, reloaded %d tracks", reloaded.Len())
	}
	if err := pool.Run(context.Background(), func(ctx context.Context) error { return nil }); !errors.Is(err, domain.ErrPoolClosed) {
		t.Fatalf("expected a closed pool, got %v", err)
	}
}

func TestContextCancelEndsRun(t *testing.T) {
	screen := newFakeScreen()
	pr, pw := io.Pipe()
	defer pw.Close()

	a := New(testConfig(), Deps{
		Capturer:   &onceCapturer{},
		Recognizer: &stubRecognizer{},
		History:    history.New(quiet()),
		Pool:       offload.New(1, quiet()),
	}, quiet(),
		WithScreen(func(func(w, h int)) Screen { return screen }),
		WithInput(pr, false),
		WithShutdownTimeout(100*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	waitFor(t, func() bool {
		n, _ := screen.snapshot()
		return n > 0
	})
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("expected nil on cancellation, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestScreenFailureEndsRun(t *testing.T) {
	screen := newFakeScreen()
	screen.runErr = errors.New("tty gone")
	pr, pw := io.Pipe()
	defer pw.Close()

	a := New(testConfig(), Deps{
		Capturer:   &onceCapturer{},
		Recognizer: &stubRecognizer{},
		History:    history.New(quiet()),
		Pool:       offload.New(1, quiet()),
	}, quiet(),
		WithScreen(func(func(w, h int)) Screen { return screen }),
		WithInput(pr, false),
		WithShutdownTimeout(100*time.Millisecond),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(context.Background()) }()

	select {
	case err := <-errCh:
		if err == nil || err.Error() != "tty gone" {
			t.Fatalf("expected the screen error, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestCountingArchiveSkipsFailures(t *testing.T) {
	a := &App{log: quiet()}
	arch := &fakeArchive{fail: true}
	c := &countingArchive{Archive: arch, app: a}

	if err := c.Record(context.Background(), domain.Track{Title: "x"}, true); err == nil {
		t.Fatal("expected the archive error")
	}
	if a.allTime.Load() != 0 {
		t.Fatal("a failed write must not count")
	}

	arch.fail = false
	c.Record(context.Background(), domain.Track{Title: "x"}, false)
	if a.allTime.Load() != 1 {
		t.Fatalf("expected 1, got %d", a.allTime.Load())
	}
	if a.top[0].Plays != 1 {
		t.Fatalf("expected the ranking to follow the write, got %+v", a.top)
	}
}

func TestScreenDyingBeforeReadyEndsRun(t *testing.T) {
	screen := newFakeScreen()
	screen.ready = make(chan struct{}) // never closed
	screen.runErr = errors.New("no tty")
	speaker := &fakeSpeaker{}
	pr, pw := io.Pipe()
	defer pw.Close()

	a := New(testConfig(), Deps{
		Capturer:   &onceCapturer{},
		Recognizer: &stubRecognizer{},
		History:    history.New(quiet()),
		Pool:       offload.New(1, quiet()),
		Speaker:    speaker,
	}, quiet(),
		WithScreen(func(func(w, h int)) Screen { return screen }),
		WithInput(pr, false),
		WithShutdownTimeout(100*time.Millisecond),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(context.Background()) }()

	select {
	case err := <-errCh:
		if err == nil || err.Error() != "no tty" {
			t.Fatalf("expected the screen error, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("app hung waiting for a screen that never started")
	}
	if !speaker.stopped {
		t.Fatal("speaker must be stopped on the early exit")
	}
}

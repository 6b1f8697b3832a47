// Package render owns the UI state (track list, selection, scroll, status,
// help) and turns it into a text layout. Regions whose inputs have not
// changed since the previous pass are reused instead of rebuilt.
package render

import (
	"sync"

	"github.com/hammamikhairi/aura/internal/domain"
)

// Defaults.
const (
	DefaultMaxRows     = 500
	DefaultVisibleRows = 15
	minVisibleRows     = 5
	chromeRows         = 14 // header, footer, borders, padding and table header
)

// MaxTopArtists is how many all-time artists the stats panel lists.
const MaxTopArtists = 3

// ArtistPlays is one row of the all-time artist ranking.
type ArtistPlays struct {
	Artist string
	Plays  int64
}

// Stats is the summary shown in the sidebar when help is hidden. Unused
// TopArtists slots are zero.
type Stats struct {
	Count         int
	Artists       int
	AvgPopularity float64
	AllTime       int64
	TopArtists    [MaxTopArtists]ArtistPlays
}

// Option configures the Engine.
type Option func(*Engine)

// WithMaxRows bounds the number of rows kept in the list.
func WithMaxRows(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRows = n
		}
	}
}

// WithStats sets the sidebar stats source. It is called on every render
// pass while help is hidden and must be cheap.
func WithStats(fn func() Stats) Option {
	return func(e *Engine) { e.statsFn = fn }
}

// WithHelp sets the initial help visibility (default visible).
func WithHelp(visible bool) Option {
	return func(e *Engine) { e.showHelp = visible }
}

// Engine holds the UI state and its memoized regions. Safe for concurrent
// use: list/selection state is guarded by mu, the status line by statusMu.
//
// Invariant after every selection change:
//
//	offset <= selected < offset + visibleRows
type Engine struct {
	mu       sync.Mutex
	tracks   []domain.Track
	selected int
	offset   int
	width    int
	height   int
	showHelp bool
	dirty    bool
	force    bool
	gen      uint64 // bumped by every mutation
	drawnGen uint64 // gen captured by the last Render
	maxRows  int
	statsFn  func() Stats

	statusMu sync.Mutex
	status   string

	kick chan struct{}
	memo memo
}

// New creates an engine with the given initial status line.
func New(status string, opts ...Option) *Engine {
	e := &Engine{
		status:   status,
		showHelp: true,
		dirty:    true,
		maxRows:  DefaultMaxRows,
		kick:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ── Queries ──────────────────────────────────────────────────────

// VisibleRows returns how many list rows fit in the current terminal.
func (e *Engine) VisibleRows() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visibleRowsLocked()
}

func (e *Engine) visibleRowsLocked() int {
	if e.height <= 0 {
		return DefaultVisibleRows
	}
	return max(minVisibleRows, e.height-chromeRows)
}

// Position returns the selected index and scroll offset.
func (e *Engine) Position() (selected, offset int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected, e.offset
}

// Len returns the number of rows in the list.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tracks)
}

// Selected returns the selected track.
func (e *Engine) Selected() (domain.Track, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.selected < 0 || e.selected >= len(e.tracks) {
		return domain.Track{}, false
	}
	return e.tracks[e.selected], true
}

// HelpVisible reports whether the help panel is shown.
func (e *Engine) HelpVisible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.showHelp
}

// Status returns the current status line.
func (e *Engine) Status() string {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return e.status
}

// ── Mutations ────────────────────────────────────────────────────

// SetTracks replaces the list (used once at startup with the loaded
// history) and selects the newest row.
func (e *Engine) SetTracks(tracks []domain.Track) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(tracks) > e.maxRows {
		tracks = tracks[len(tracks)-e.maxRows:]
	}
	e.tracks = append(e.tracks[:0:0], tracks...)
	e.selected = max(0, len(e.tracks)-1)
	e.offset = 0
	e.updateScrollLocked()
	e.dirty = true
	e.gen++
}

// AddTrack appends a row and moves the selection to it. When the list is
// over its row limit the oldest rows are dropped and positions shifted.
func (e *Engine) AddTrack(t domain.Track) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tracks = append(e.tracks, t)
	if over := len(e.tracks) - e.maxRows; over > 0 {
		e.tracks = append(e.tracks[:0:0], e.tracks[over:]...)
		e.selected = max(0, e.selected-over)
		e.offset = max(0, e.offset-over)
	}
	e.selected = len(e.tracks) - 1
	e.updateScrollLocked()
	e.dirty = true
	e.gen++
}

// MoveUp selects the previous row. It is a no-op at the top. Movement sets
// the force flag and wakes the render loop immediately.
func (e *Engine) MoveUp() bool {
	e.mu.Lock()
	if len(e.tracks) == 0 || e.selected == 0 {
		e.mu.Unlock()
		return false
	}
	e.selected--
	e.updateScrollLocked()
	e.dirty = true
	e.gen++
	e.force = true
	e.mu.Unlock()

	e.Kick()
	return true
}

// MoveDown selects the next row. It is a no-op at the bottom.
func (e *Engine) MoveDown() bool {
	e.mu.Lock()
	if len(e.tracks) == 0 || e.selected >= len(e.tracks)-1 {
		e.mu.Unlock()
		return false
	}
	e.selected++
	e.updateScrollLocked()
	e.dirty = true
	e.gen++
	e.force = true
	e.mu.Unlock()

	e.Kick()
	return true
}

// RemoveSelected drops the selected row and returns it.
func (e *Engine) RemoveSelected() (domain.Track, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.selected < 0 || e.selected >= len(e.tracks) {
		return domain.Track{}, false
	}
	removed := e.tracks[e.selected]
	e.tracks = append(e.tracks[:e.selected], e.tracks[e.selected+1:]...)
	if e.selected >= len(e.tracks) {
		e.selected = max(0, len(e.tracks)-1)
	}
	e.updateScrollLocked()
	e.dirty = true
	e.gen++
	return removed, true
}

// SetStatus replaces the status line. Unchanged text does not mark the
// engine dirty.
func (e *Engine) SetStatus(status string) {
	e.statusMu.Lock()
	changed := e.status != status
	e.status = status
	e.statusMu.Unlock()

	if changed {
		e.mu.Lock()
		e.dirty = true
		e.gen++
		e.mu.Unlock()
	}
}

// ToggleHelp flips help visibility.
func (e *Engine) ToggleHelp() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.showHelp = !e.showHelp
	e.dirty = true
	e.gen++
}

// SetSize records the terminal dimensions.
func (e *Engine) SetSize(width, height int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if width == e.width && height == e.height {
		return
	}
	e.width, e.height = width, height
	e.updateScrollLocked()
	e.dirty = true
	e.gen++
}

// updateScrollLocked moves the offset the minimum distance needed to keep
// the selected row visible.
func (e *Engine) updateScrollLocked() {
	if len(e.tracks) == 0 {
		e.selected, e.offset = 0, 0
		return
	}
	rows := e.visibleRowsLocked()
	if e.selected < e.offset {
		e.offset = e.selected
	} else if e.selected >= e.offset+rows {
		e.offset = e.selected - rows + 1
	}
}

// ── Render bookkeeping ───────────────────────────────────────────

// NeedsRender reports whether state changed since the last consumed frame.
func (e *Engine) NeedsRender() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty || e.force
}

// Forced reports whether a latency-sensitive change is pending.
func (e *Engine) Forced() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.force
}

// MarkRendered clears the redraw and force flags once the frame from the
// last Render has been shown. A mutation after that Render keeps them set.
func (e *Engine) MarkRendered() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != e.drawnGen {
		return
	}
	e.dirty = false
	e.force = false
}

// Kick wakes the render loop. The frame is drawn before the next tick only
// when the force flag is set.
func (e *Engine) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

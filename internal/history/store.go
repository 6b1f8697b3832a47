// Package history keeps the bounded, deduplicated list of recognized tracks
// and persists it to a JSON file with a debounced write-behind policy.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hammamikhairi/aura/internal/domain"
	"github.com/hammamikhairi/aura/internal/logger"
)

// Defaults.
const (
	DefaultCapacity   = 50
	DefaultFlushEvery = 10
	DefaultDebounce   = 500 * time.Millisecond
)

// Option configures the Store.
type Option func(*Store)

// WithCapacity sets the maximum number of tracks kept.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithPath enables persistence to the given JSON file.
func WithPath(path string) Option {
	return func(s *Store) { s.path = path }
}

// WithFlushEvery sets how many dirty mutations trigger a scheduled write.
func WithFlushEvery(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.flushEvery = n
		}
	}
}

// WithDebounce sets how long a scheduled write waits for further mutations.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) { s.debounce = d }
}

// Stats summarises the current history.
type Stats struct {
	Count         int
	Artists       int
	AvgPopularity float64
}

// Store is the bounded track history. Safe for concurrent use.
//
// Invariants: no two tracks share a (title, artist) key, and the number of
// tracks never exceeds the capacity; the oldest track is evicted first.
type Store struct {
	log        *logger.Logger
	path       string
	capacity   int
	flushEvery int
	debounce   time.Duration

	mu     sync.Mutex
	order  []int // ids, oldest first
	byID   map[int]domain.Track
	byKey  map[domain.Key]int
	nextID int

	dirty   int    // mutations since the last snapshot
	version uint64 // bumped on every mutation
	gen     uint64 // identifies the live scheduled write
	timer   *time.Timer
	closed  bool

	writeMu sync.Mutex
	written uint64 // version of the newest snapshot on disk
	writes  int
}

// New creates a store and loads any persisted history. A missing or corrupt
// file is logged and the store starts empty.
func New(log *logger.Logger, opts ...Option) *Store {
	s := &Store{
		log:        log,
		capacity:   DefaultCapacity,
		flushEvery: DefaultFlushEvery,
		debounce:   DefaultDebounce,
		byID:       make(map[int]domain.Track),
		byKey:      make(map[domain.Key]int),
		nextID:     1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.path != "" {
		if err := s.load(); err != nil {
			log.Warn("history: starting empty: %v", err)
		}
	}
	return s
}

// Add inserts the track. A track whose key is already stored is not inserted;
// Add returns false and the existing id instead.
func (s *Store) Add(t domain.Track) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[t.Key()]; ok {
		return false, id
	}

	t.ID = s.nextID
	s.nextID++
	if t.DetectedAt.IsZero() {
		t.DetectedAt = time.Now()
	}
	s.insertLocked(t)
	s.markDirtyLocked()

	s.log.Debug("history: added #%d %q by %q (size=%d)", t.ID, t.Title, t.Artist, len(s.order))
	return true, t.ID
}

// insertLocked appends t and evicts from the front while over capacity.
func (s *Store) insertLocked(t domain.Track) {
	s.order = append(s.order, t.ID)
	s.byID[t.ID] = t
	s.byKey[t.Key()] = t.ID

	for len(s.order) > s.capacity {
		oldest := s.byID[s.order[0]]
		s.order = s.order[1:]
		delete(s.byID, oldest.ID)
		delete(s.byKey, oldest.Key())
		s.log.Debug("history: evicted #%d %q", oldest.ID, oldest.Title)
	}
}

// Remove deletes the track with the given id and flushes synchronously.
// It reports whether a track was removed.
func (s *Store) Remove(id int) bool {
	s.mu.Lock()
	t, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.byID, id)
	delete(s.byKey, t.Key())
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.version++
	s.mu.Unlock()

	s.log.Debug("history: removed #%d %q", id, t.Title)
	if err := s.Flush(); err != nil {
		s.log.Warn("history: flush after remove: %v", err)
	}
	return true
}

// Get returns the track with the given id.
func (s *Store) Get(id int) (domain.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	return t, ok
}

// Len returns the number of stored tracks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// All returns every track, oldest first.
func (s *Store) All() []domain.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Recent returns up to n tracks, newest first.
func (s *Store) Recent(n int) []domain.Track {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n > len(s.order) || n < 0 {
		n = len(s.order)
	}
	out := make([]domain.Track, 0, n)
	for i := len(s.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.byID[s.order[i]])
	}
	return out
}

// Stats returns the count, distinct-artist count and average popularity.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Count: len(s.order)}
	if st.Count == 0 {
		return st
	}
	artists := make(map[string]struct{}, st.Count)
	total := 0
	for _, id := range s.order {
		t := s.byID[id]
		artists[t.Artist] = struct{}{}
		total += t.Popularity
	}
	st.Artists = len(artists)
	st.AvgPopularity = float64(total) / float64(st.Count)
	return st
}

func (s *Store) snapshotLocked() []domain.Track {
	out := make([]domain.Track, len(s.order))
	for i, id := range s.order {
		out[i] = s.byID[id]
	}
	return out
}

// ── Persistence ──────────────────────────────────────────────────

// markDirtyLocked records a mutation and schedules a write when the dirty
// threshold is reached. A write already scheduled is pushed back so a burst
// of inserts produces a single write.
func (s *Store) markDirtyLocked() {
	s.version++
	s.dirty++
	if s.path == "" || s.closed {
		return
	}
	if s.timer != nil || s.dirty >= s.flushEvery {
		s.scheduleLocked()
	}
}

func (s *Store) scheduleLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.debounce, func() { s.flushScheduled(gen) })
}

func (s *Store) flushScheduled(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.timer == nil {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	snap, version := s.snapshotLocked(), s.version
	s.dirty = 0
	s.mu.Unlock()

	if err := s.write(snap, version); err != nil {
		s.log.Warn("history: scheduled write: %v", err)
	}
}

// Flush writes the current snapshot now, cancelling any scheduled write.
func (s *Store) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	snap, version := s.snapshotLocked(), s.version
	s.dirty = 0
	s.mu.Unlock()

	if s.path == "" {
		return nil
	}
	return s.write(snap, version)
}

// Close flushes and stops scheduling further writes.
func (s *Store) Close() error {
	err := s.Flush()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}

// write replaces the history file atomically. Snapshots older than the one
// already on disk are skipped.
func (s *Store) write(snap []domain.Track, version uint64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if version < s.written {
		return nil
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating history dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing history: %w", err)
	}

	s.written = version
	s.writes++
	s.log.Debug("history: wrote %d track(s) to %s", len(snap), s.path)
	return nil
}

// load replaces the in-memory state with the persisted file. Only the newest
// tracks up to capacity survive, and duplicate keys keep their first entry.
func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", s.path, err)
	}

	var tracks []domain.Track
	if err := json.Unmarshal(data, &tracks); err != nil {
		return fmt.Errorf("decoding %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range tracks {
		if _, dup := s.byKey[t.Key()]; dup {
			continue
		}
		if t.ID <= 0 || s.byID[t.ID].ID != 0 {
			t.ID = s.nextID
		}
		if t.ID >= s.nextID {
			s.nextID = t.ID + 1
		}
		s.insertLocked(t)
	}
	s.log.Info("history: loaded %d track(s) from %s", len(s.order), s.path)
	return nil
}

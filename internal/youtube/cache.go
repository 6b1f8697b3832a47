package youtube

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hammamikhairi/aura/internal/logger"
)

// DefaultCacheSize bounds the query -> URL cache.
const DefaultCacheSize = 500

type cacheEntry struct {
	Query string `json:"query"`
	URL   string `json:"url"`
}

// Cache remembers search results, keyed by the lower-cased query. When full
// the oldest entry is dropped. Every insert rewrites the file.
type Cache struct {
	path string
	size int
	log  *logger.Logger

	mu      sync.Mutex
	order   []string
	entries map[string]string
	version uint64

	writeMu sync.Mutex
	written uint64 // version of the snapshot on disk
}

// NewCache loads the cache from path ("" keeps it in memory only). A
// corrupt file is logged and ignored.
func NewCache(path string, size int, log *logger.Logger) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c := &Cache{path: path, size: size, log: log, entries: make(map[string]string)}
	if path != "" {
		if err := c.load(); err != nil {
			log.Warn("youtube: ignoring cache: %v", err)
		}
	}
	return c
}

func cacheKey(query string) string { return strings.ToLower(strings.TrimSpace(query)) }

// Get returns the cached URL for query.
func (c *Cache) Get(query string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.entries[cacheKey(query)]
	return u, ok
}

// Len returns the number of cached queries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Put stores url for query and persists the cache.
func (c *Cache) Put(query, url string) {
	key := cacheKey(query)

	c.mu.Lock()
	if _, ok := c.entries[key]; !ok {
		c.order = append(c.order, key)
	}
	c.entries[key] = url
	for len(c.order) > c.size {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
	c.version++
	version := c.version
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if c.path == "" {
		return
	}
	if err := c.save(snap, version); err != nil {
		c.log.Warn("youtube: saving cache: %v", err)
	}
}

func (c *Cache) snapshotLocked() []cacheEntry {
	out := make([]cacheEntry, len(c.order))
	for i, k := range c.order {
		out[i] = cacheEntry{Query: k, URL: c.entries[k]}
	}
	return out
}

// save writes snap unless a newer snapshot already reached the disk.
func (c *Cache) save(snap []cacheEntry, version uint64) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if version < c.written {
		return nil
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".ytcache-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	c.written = version
	return nil
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var entries []cacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decoding %s: %w", c.path, err)
	}
	if len(entries) > c.size {
		entries = entries[len(entries)-c.size:]
	}
	for _, e := range entries {
		key := cacheKey(e.Query)
		if key == "" || e.URL == "" {
			continue
		}
		if _, ok := c.entries[key]; !ok {
			c.order = append(c.order, key)
		}
		c.entries[key] = e.URL
	}
	return nil
}

package youtube

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/lrstanley/go-ytdlp"

	"github.com/hammamikhairi/aura/internal/domain"
	"github.com/hammamikhairi/aura/internal/logger"
	"github.com/hammamikhairi/aura/internal/offload"
)

// Opener hands a URL to something that plays it.
type Opener func(ctx context.Context, url string) error

// Player implements domain.Player: search (through the cache), then open
// the watch page.
type Player struct {
	search *Searcher
	cache  *Cache
	pool   *offload.Pool
	open   Opener
	log    *logger.Logger
}

var _ domain.Player = (*Player)(nil)

// NewPlayer creates a player. open defaults to the system browser.
func NewPlayer(search *Searcher, cache *Cache, pool *offload.Pool, log *logger.Logger, open Opener) *Player {
	if open == nil {
		open = OpenBrowser
	}
	return &Player{search: search, cache: cache, pool: pool, open: open, log: log}
}

// Play looks query up and opens the first result.
func (p *Player) Play(ctx context.Context, query string) error {
	u, err := p.Lookup(ctx, query)
	if err != nil {
		return err
	}
	p.log.Info("youtube: opening %s", u)
	return p.pool.Run(ctx, func(ctx context.Context) error { return p.open(ctx, u) })
}

// Lookup returns the watch URL for query, from the cache when possible.
func (p *Player) Lookup(ctx context.Context, query string) (string, error) {
	if u, ok := p.cache.Get(query); ok {
		p.log.Debug("youtube: cache hit for %q", query)
		return u, nil
	}
	u, err := p.search.Search(ctx, query)
	if err != nil {
		return "", err
	}
	p.cache.Put(query, u)
	return u, nil
}

// OpenBrowser opens url with the platform's default handler.
func OpenBrowser(ctx context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("opening browser: %w", err)
	}
	return nil
}

// Stream is a directly playable audio URL.
type Stream struct {
	Title string
	URL   string
}

// Resolve asks yt-dlp for the best audio stream behind a watch URL.
func Resolve(ctx context.Context, watchURL string) (Stream, error) {
	res, err := ytdlp.New().
		NoPlaylist().
		Format("bestaudio").
		GetTitle().
		GetURL().
		Run(ctx, watchURL)
	if err != nil {
		return Stream{}, fmt.Errorf("resolving %s: %w", watchURL, err)
	}
	return parseResolved(res.Stdout)
}

// parseResolved reads yt-dlp's --get-title --get-url output: the title on
// the first line, the stream URL on the last.
func parseResolved(out string) (Stream, error) {
	var lines []string
	for _, l := range strings.Split(strings.TrimSpace(out), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < 2 {
		return Stream{}, fmt.Errorf("unexpected yt-dlp output: %w", domain.ErrNotFound)
	}
	return Stream{Title: lines[0], URL: lines[len(lines)-1]}, nil
}

// MPV launches the mpv player detached from aura.
type MPV struct {
	bin string
	log *logger.Logger
}

// NewMPV creates a launcher for the given binary (default "mpv").
func NewMPV(bin string, log *logger.Logger) *MPV {
	if bin == "" {
		bin = "mpv"
	}
	return &MPV{bin: bin, log: log}
}

// Available reports whether the binary is on PATH.
func (m *MPV) Available() bool {
	_, err := exec.LookPath(m.bin)
	return err == nil
}

// Play starts mpv on s and returns without waiting for playback to end.
func (m *MPV) Play(s Stream) error {
	cmd := exec.Command(m.bin, "--no-video", "--force-media-title="+s.Title, s.URL)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", m.bin, err)
	}
	m.log.Info("youtube: mpv playing %q (pid %d)", s.Title, cmd.Process.Pid)
	go func() {
		if err := cmd.Wait(); err != nil {
			m.log.Debug("youtube: mpv exited: %v", err)
		}
	}()
	return nil
}

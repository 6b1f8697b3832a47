// Package download saves recognized tracks into the local music folder by
// searching YouTube with yt-dlp and extracting the audio.
package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/lrstanley/go-ytdlp"

	"github.com/hammamikhairi/aura/internal/domain"
	"github.com/hammamikhairi/aura/internal/logger"
	"github.com/hammamikhairi/aura/internal/offload"
)

// AudioFormat is the container yt-dlp extracts to.
const AudioFormat = "m4a"

// fetchFunc downloads the first search hit for query into outputTemplate.
type fetchFunc func(ctx context.Context, query, outputTemplate string) error

// Downloader implements domain.Downloader on top of yt-dlp.
type Downloader struct {
	dir   string
	pool  *offload.Pool
	log   *logger.Logger
	fetch fetchFunc
}

var _ domain.Downloader = (*Downloader)(nil)

// New creates a downloader writing into dir.
func New(dir string, pool *offload.Pool, log *logger.Logger) *Downloader {
	return &Downloader{dir: dir, pool: pool, log: log, fetch: ytdlpFetch}
}

// Dir returns the download folder.
func (d *Downloader) Dir() string { return d.dir }

// Download fetches "<title> - <artist>.m4a". An existing file is left alone.
func (d *Downloader) Download(ctx context.Context, title, artist string) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("creating download dir: %w", err)
	}

	base := SanitizeFilename(fmt.Sprintf("%s - %s", title, artist))
	target := filepath.Join(d.dir, base+"."+AudioFormat)
	if info, err := os.Stat(target); err == nil {
		d.log.Info("download: %s already present (%s)", target, humanize.Bytes(uint64(info.Size())))
		return nil
	}

	query := strings.TrimSpace(title + " " + artist)
	d.log.Info("download: searching %q", query)

	err := d.pool.Run(ctx, func(ctx context.Context) error {
		return d.fetch(ctx, query, filepath.Join(d.dir, base+".%(ext)s"))
	})
	if err != nil {
		return fmt.Errorf("downloading %q: %w", query, err)
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("download finished but %s is missing: %w", target, err)
	}
	d.log.Info("download: saved %s (%s)", target, humanize.Bytes(uint64(info.Size())))
	return nil
}

func ytdlpFetch(ctx context.Context, query, outputTemplate string) error {
	_, err := ytdlp.New().
		NoPlaylist().
		ExtractAudio().
		AudioFormat(AudioFormat).
		Output(outputTemplate).
		Run(ctx, "ytsearch1:"+query)
	return err
}

// SanitizeFilename replaces characters that are invalid in file names on
// common filesystems with underscores.
func SanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
}

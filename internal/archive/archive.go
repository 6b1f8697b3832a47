// Package archive keeps a permanent SQLite log of every positive
// recognition, including repeats the history list deduplicates away.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hammamikhairi/aura/internal/domain"
	"github.com/hammamikhairi/aura/internal/logger"
)

// Detection is one archived recognition.
type Detection struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"`
	TrackID     int
	Title       string `gorm:"index:idx_detection_song,priority:1"`
	Artist      string `gorm:"index:idx_detection_song,priority:2;index:idx_detection_artist"`
	Album       string
	Genre       string
	ReleaseDate string
	Popularity  int
	IsNew       bool
	DetectedAt  time.Time `gorm:"index"`
	CreatedAt   time.Time
}

// ArtistCount is a row of TopArtists.
type ArtistCount struct {
	Artist string
	Plays  int64
}

// Store is the SQLite-backed archive.
type Store struct {
	db    *gorm.DB
	sqlDB *sql.DB
	log   *logger.Logger
}

var _ domain.Archive = (*Store)(nil)

// Open opens (creating if needed) the archive database at path.
func Open(path string, log *logger.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating archive dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	// One writer; SQLite serialises anyway.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Detection{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrating archive: %w", err)
	}

	log.Info("archive: opened %s", path)
	return &Store{db: db, sqlDB: sqlDB, log: log}, nil
}

// Record appends t.
func (s *Store) Record(ctx context.Context, t domain.Track, isNew bool) error {
	d := Detection{
		ID:          uuid.NewString(),
		TrackID:     t.ID,
		Title:       t.Title,
		Artist:      t.Artist,
		Album:       t.Album,
		Genre:       t.Genre,
		ReleaseDate: t.ReleaseDate,
		Popularity:  t.Popularity,
		IsNew:       isNew,
		DetectedAt:  t.DetectedAt,
	}
	if d.DetectedAt.IsZero() {
		d.DetectedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(&d).Error; err != nil {
		return fmt.Errorf("archiving %q: %w", t.Title, err)
	}
	s.log.Debug("archive: recorded %s %q", d.ID, d.Title)
	return nil
}

// Total returns the number of archived detections.
func (s *Store) Total(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Detection{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting detections: %w", err)
	}
	return n, nil
}

// TopArtists returns the n most detected artists, most frequent first.
func (s *Store) TopArtists(ctx context.Context, n int) ([]ArtistCount, error) {
	var out []ArtistCount
	err := s.db.WithContext(ctx).
		Model(&Detection{}).
		Select("artist, count(*) AS plays").
		Group("artist").
		Order("plays DESC, artist").
		Limit(n).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("querying top artists: %w", err)
	}
	return out, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

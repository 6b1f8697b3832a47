package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hammamikhairi/aura/internal/domain"
	"github.com/hammamikhairi/aura/internal/logger"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "archive.db"), logger.New(logger.LevelOff, nil))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndTotal(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if n, err := s.Total(ctx); err != nil || n != 0 {
		t.Fatalf("expected empty archive, got %d (%v)", n, err)
	}

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	plays := []struct {
		title, artist string
		isNew         bool
	}{
		{"One More Time", "Daft Punk", true},
		{"One More Time", "Daft Punk", false},
		{"Around the World", "Daft Punk", true},
		{"Windowlicker", "Aphex Twin", true},
	}
	for i, p := range plays {
		tr := domain.Track{ID: i + 1, Title: p.title, Artist: p.artist, DetectedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.Record(ctx, tr, p.isNew); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	n, err := s.Total(ctx)
	if err != nil || n != 4 {
		t.Fatalf("expected 4 detections, got %d (%v)", n, err)
	}

	top, err := s.TopArtists(ctx, 5)
	if err != nil {
		t.Fatalf("top artists: %v", err)
	}
	if len(top) != 2 || top[0].Artist != "Daft Punk" || top[0].Plays != 3 || top[1].Plays != 1 {
		t.Fatalf("unexpected top artists %+v", top)
	}

	var recent []Detection
	if err := s.db.Order("detected_at DESC").Limit(2).Find(&recent).Error; err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].Title != "Windowlicker" || recent[1].Title != "Around the World" {
		t.Fatalf("unexpected recent %+v", recent)
	}
	if recent[0].ID == "" || recent[0].ID == recent[1].ID {
		t.Fatal("detections need distinct ids")
	}
}

func TestReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "archive.db")
	log := logger.New(logger.LevelOff, nil)

	s, err := Open(path, log)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Record(context.Background(), domain.Track{Title: "A", Artist: "x"}, true); err != nil {
		t.Fatalf("record: %v", err)
	}
	s.Close()

	s, err = Open(path, log)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if n, _ := s.Total(context.Background()); n != 1 {
		t.Fatalf("expected 1 detection after reopen, got %d", n)
	}
}

func TestCloseNil(t *testing.T) {
	var s *Store
	if err := s.Close(); err != nil {
		t.Fatalf("closing a nil store: %v", err)
	}
}

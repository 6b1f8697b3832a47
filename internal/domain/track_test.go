package domain

import (
	"testing"
	"time"
)

func TestMatchTrackFillsUnknown(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tr := Match{Title: "  ", Artist: "Daft Punk", Popularity: 7}.Track(at)

	if tr.Title != Unknown {
		t.Fatalf("expected title %q, got %q", Unknown, tr.Title)
	}
	if tr.Artist != "Daft Punk" {
		t.Fatalf("unexpected artist %q", tr.Artist)
	}
	if !tr.DetectedAt.Equal(at) || tr.Popularity != 7 {
		t.Fatalf("metadata not carried over: %+v", tr)
	}
}

func TestTrackKeyIgnoresID(t *testing.T) {
	a := Track{ID: 1, Title: "One More Time", Artist: "Daft Punk"}
	b := Track{ID: 9, Title: "One More Time", Artist: "Daft Punk", Album: "Discovery"}
	if a.Key() != b.Key() {
		t.Fatal("expected equal keys for same title and artist")
	}
	if (Track{Title: "One More Time", Artist: "Other"}).Key() == a.Key() {
		t.Fatal("expected different keys for different artists")
	}
}

func TestTrackYear(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{"2001-03-12", "2001"},
		{"1999", "1999"},
		{"", "----"},
		{"99", "----"},
	}
	for _, tt := range tests {
		if got := (Track{ReleaseDate: tt.date}).Year(); got != tt.want {
			t.Fatalf("Year(%q) = %q, want %q", tt.date, got, tt.want)
		}
	}
}

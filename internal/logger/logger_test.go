package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"off", LevelOff, false},
		{"QUIET", LevelOff, false},
		{"", LevelNormal, false},
		{"normal", LevelNormal, false},
		{"verbose", LevelVerbose, false},
		{" debug ", LevelVerbose, false},
		{"loud", LevelNormal, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(LevelNormal, &buf)

	log.Debug("hidden %d", 1)
	log.Info("shown %d", 2)
	log.Warn("careful")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked at normal level: %q", out)
	}
	if !strings.Contains(out, "[INF]") || !strings.Contains(out, "shown 2") {
		t.Fatalf("missing info line: %q", out)
	}
	if !strings.Contains(out, "[WRN]") {
		t.Fatalf("missing warn line: %q", out)
	}

	buf.Reset()
	log.SetLevel(LevelOff)
	log.Error("nothing")
	if buf.Len() != 0 {
		t.Fatalf("expected no output when off, got %q", buf.String())
	}
}

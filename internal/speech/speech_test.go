package speech

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/aura/internal/logger"
)

func quiet() *logger.Logger { return logger.New(logger.LevelOff, nil) }

// ── Mocks ────────────────────────────────────────────────────────

type mockSynth struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (m *mockSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, text)
	if m.fail[text] {
		return nil, errors.New("synthesis down")
	}
	return []byte(text), nil
}

type mockSink struct {
	mu     sync.Mutex
	played []string
	stops  int
	gate   chan struct{} // when set, Play waits on it
}

func (m *mockSink) Play(wav []byte) error {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.played = append(m.played, string(wav))
	return nil
}

func (m *mockSink) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
}

func (m *mockSink) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.played...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ── Speaker ──────────────────────────────────────────────────────

func TestSpeakerPlaysInOrder(t *testing.T) {
	synth := &mockSynth{}
	sink := &mockSink{}
	s := NewSpeaker(synth, sink, quiet())

	s.Announce("Now playing A by X")
	s.Announce("  ")
	s.Announce("Now playing B by Y")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	waitFor(t, func() bool { return len(sink.snapshot()) == 2 })
	got := sink.snapshot()
	if got[0] != "Now playing A by X" || got[1] != "Now playing B by Y" {
		t.Fatalf("unexpected playback order %v", got)
	}
	if !s.Stop(time.Second) {
		t.Fatal("worker did not stop")
	}
}

func TestSpeakerDropsOldestWhenFull(t *testing.T) {
	s := NewSpeaker(&mockSynth{}, &mockSink{}, quiet(), WithQueueSize(2))
	s.Announce("one")
	s.Announce("two")
	s.Announce("three")

	if s.QueueLen() != 2 {
		t.Fatalf("expected 2 queued, got %d", s.QueueLen())
	}
	if first, _ := s.pop(); first != "two" {
		t.Fatalf("expected oldest line dropped, head is %q", first)
	}
}

func TestSpeakerSkipsFailedSynthesis(t *testing.T) {
	synth := &mockSynth{fail: map[string]bool{"bad": true}}
	sink := &mockSink{}
	s := NewSpeaker(synth, sink, quiet())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	s.Announce("bad")
	s.Announce("good")

	waitFor(t, func() bool { return len(sink.snapshot()) == 1 })
	if got := sink.snapshot(); got[0] != "good" {
		t.Fatalf("unexpected playback %v", got)
	}
	s.Stop(time.Second)
}

func TestSpeakerStopInterruptsPlayback(t *testing.T) {
	sink := &mockSink{gate: make(chan struct{})}
	s := NewSpeaker(&mockSynth{}, sink, quiet())
	s.Start(context.Background())

	s.Announce("long line")
	waitFor(t, s.IsSpeaking)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(sink.gate)
	}()
	if !s.Stop(time.Second) {
		t.Fatal("worker did not stop")
	}
	if sink.stops != 1 {
		t.Fatalf("expected sink.Stop once, got %d", sink.stops)
	}
}

func TestStopBeforeStart(t *testing.T) {
	s := NewSpeaker(&mockSynth{}, &mockSink{}, quiet())
	if !s.Stop(10 * time.Millisecond) {
		t.Fatal("stopping an idle speaker should succeed")
	}
}

func TestNoOpAnnounce(t *testing.T) {
	NewNoOp(quiet()).Announce("anything")
}

// ── Azure ────────────────────────────────────────────────────────

func TestAzureSynthesize(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "key" {
			t.Errorf("missing subscription key")
		}
		if r.Header.Get("X-Microsoft-OutputFormat") != DefaultAudioFormat {
			t.Errorf("unexpected format %q", r.Header.Get("X-Microsoft-OutputFormat"))
		}
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Write([]byte("RIFF-audio"))
	}))
	defer srv.Close()

	c := NewAzureClient("key", "westeurope", quiet(), WithEndpoint(srv.URL))
	audio, err := c.Synthesize(context.Background(), `Now playing "Rock & Roll" by <Led>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(audio) != "RIFF-audio" {
		t.Fatalf("unexpected audio %q", audio)
	}
	if !strings.Contains(body, "Rock &amp; Roll") || strings.Contains(body, "<Led>") {
		t.Fatalf("text was not escaped: %s", body)
	}
	if !strings.Contains(body, "name='"+DefaultVoice+"'") {
		t.Fatalf("voice missing from SSML: %s", body)
	}
}

func TestAzureErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewAzureClient("key", "x", quiet(), WithEndpoint(srv.URL))
	if _, err := c.Synthesize(context.Background(), "hi"); err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected a 429 error, got %v", err)
	}
}

// ── WAV ──────────────────────────────────────────────────────────

func riff(chunks ...[]byte) []byte {
	var body []byte
	body = append(body, "WAVE"...)
	for _, c := range chunks {
		body = append(body, c...)
	}
	out := []byte("RIFF")
	out = binary.LittleEndian.AppendUint32(out, uint32(len(body)))
	return append(out, body...)
}

func chunk(id string, payload []byte) []byte {
	out := []byte(id)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(payload)))
	out = append(out, payload...)
	if len(payload)%2 != 0 {
		out = append(out, 0)
	}
	return out
}

func TestExtractPCM(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	wav := riff(chunk("fmt ", make([]byte, 16)), chunk("LIST", []byte{9, 9, 9}), chunk("data", pcm))

	got, err := extractPCM(wav)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != string(pcm) {
		t.Fatalf("expected %v, got %v", pcm, got)
	}
}

func TestExtractPCMErrors(t *testing.T) {
	tests := []struct {
		name string
		wav  []byte
	}{
		{"short", []byte("RIFF")},
		{"not riff", append([]byte("RIFX0000WAVE"), make([]byte, 40)...)},
		{"no data", riff(chunk("fmt ", make([]byte, 16)), chunk("LIST", make([]byte, 16)))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := extractPCM(tt.wav); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

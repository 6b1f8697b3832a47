package speech

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/hammamikhairi/aura/internal/domain"
	"github.com/hammamikhairi/aura/internal/logger"
)

// Synthesizer turns text into WAV audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Sink plays WAV audio. Play blocks until playback ends; Stop cuts it short.
type Sink interface {
	Play(wav []byte) error
	Stop()
}

// SpeakerOption configures a Speaker.
type SpeakerOption func(*Speaker)

// WithQueueSize bounds pending lines.
func WithQueueSize(n int) SpeakerOption {
	return func(s *Speaker) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// Speaker speaks queued lines one at a time, in arrival order.
//
// Announce never blocks: it appends to the queue (dropping the oldest line
// when full) and pokes the worker. The worker synthesizes and plays each
// line; a failed line is logged and skipped.
type Speaker struct {
	synth Synthesizer
	sink  Sink
	log   *logger.Logger

	queueSize int

	mu     sync.Mutex
	queue  []string
	notify chan struct{}

	speaking atomic.Bool
	started  atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
}

var _ domain.Announcer = (*Speaker)(nil)

// NewSpeaker creates a speaker. Call Start to begin speaking.
func NewSpeaker(synth Synthesizer, sink Sink, log *logger.Logger, opts ...SpeakerOption) *Speaker {
	s := &Speaker{
		synth:     synth,
		sink:      sink,
		log:       log,
		queueSize: DefaultQueueSize,
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Announce queues text.
func (s *Speaker) Announce(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	text = runewidth.Truncate(text, maxSpokenWidth, "")

	s.mu.Lock()
	if len(s.queue) >= s.queueSize {
		s.log.Debug("speech: queue full, dropping %q", s.queue[0])
		s.queue = s.queue[1:]
	}
	s.queue = append(s.queue, text)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// QueueLen returns the number of lines waiting.
func (s *Speaker) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// IsSpeaking reports whether a line is being synthesized or played.
func (s *Speaker) IsSpeaking() bool { return s.speaking.Load() }

// Start launches the worker. It stops when ctx is cancelled or Stop is
// called. Calling Start twice is a no-op.
func (s *Speaker) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
	s.log.Info("speech: started")
}

// Stop cancels the worker, interrupts playback and waits up to timeout
// for the worker to exit. It reports whether the worker exited in time.
func (s *Speaker) Stop(timeout time.Duration) bool {
	if !s.started.Load() {
		return true
	}
	s.cancel()
	s.sink.Stop()

	select {
	case <-s.done:
		return true
	case <-time.After(timeout):
		s.log.Warn("speech: worker still busy after %s", timeout)
		return false
	}
}

func (s *Speaker) loop(ctx context.Context) {
	defer close(s.done)
	for {
		text, ok := s.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.notify:
				continue
			}
		}
		if ctx.Err() != nil {
			return
		}
		s.speak(ctx, text)
	}
}

func (s *Speaker) pop() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return "", false
	}
	text := s.queue[0]
	s.queue = s.queue[1:]
	return text, true
}

func (s *Speaker) speak(ctx context.Context, text string) {
	s.speaking.Store(true)
	defer s.speaking.Store(false)

	audio, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("speech: synthesis failed for %q: %v", text, err)
		}
		return
	}
	if err := s.sink.Play(audio); err != nil {
		s.log.Warn("speech: playback failed: %v", err)
		return
	}
	s.log.Debug("speech: said %q", text)
}

// Package input reads raw key presses from the terminal on a dedicated
// goroutine and relays them as short key names ("up", "down", "esc", "q",
// "d", ...) over a bounded channel. A full channel drops keys rather than
// blocking the reader.
package input

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/muesli/cancelreader"

	"github.com/hammamikhairi/aura/internal/logger"
)

// Defaults.
const (
	DefaultBuffer   = 64
	DefaultEscDelay = 50 * time.Millisecond // wait for the rest of a split sequence
)

// Key names produced by Decode besides single printable characters.
const (
	KeyUp    = "up"
	KeyDown  = "down"
	KeyEsc   = "esc"
	KeyEnter = "enter"
	KeyQuit  = "q"
)

// Option configures the Watcher.
type Option func(*Watcher)

// WithBuffer sets the key channel capacity.
func WithBuffer(n int) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.keys = make(chan string, n)
		}
	}
}

// WithEscDelay sets how long an incomplete escape sequence waits for the
// rest of its bytes before a lone ESC is taken as the escape key.
func WithEscDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.escDelay = d
		}
	}
}

// WithRawMode toggles switching a terminal input into raw mode (default on).
// Non-terminal inputs are never touched.
func WithRawMode(on bool) Option {
	return func(w *Watcher) { w.raw = on }
}

// Watcher owns the input stream.
type Watcher struct {
	in       io.Reader
	log      *logger.Logger
	keys     chan string
	raw      bool
	escDelay time.Duration
}

// New creates a watcher over in (usually os.Stdin).
func New(in io.Reader, log *logger.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		in:   in,
		log:  log,
		keys:     make(chan string, DefaultBuffer),
		raw:      true,
		escDelay: DefaultEscDelay,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Keys returns the channel decoded keys are relayed on. It is never closed.
func (w *Watcher) Keys() <-chan string { return w.keys }

// Run reads until ctx is cancelled or the input ends. The terminal state is
// restored before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	if f, ok := w.in.(*os.File); ok && w.raw && term.IsTerminal(f.Fd()) {
		state, err := term.MakeRaw(f.Fd())
		if err != nil {
			return err
		}
		defer func() {
			if err := term.Restore(f.Fd(), state); err != nil {
				w.log.Warn("input: restoring terminal: %v", err)
			}
		}()
	}

	r, err := cancelreader.NewReader(w.in)
	if err != nil {
		return err
	}
	defer r.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			r.Cancel()
		case <-stop:
		}
	}()

	type chunk struct {
		b   []byte
		err error
	}
	reads := make(chan chunk)
	go func() {
		for {
			buf := make([]byte, 256)
			n, err := r.Read(buf)
			reads <- chunk{buf[:n], err}
			if err != nil {
				return
			}
		}
	}()

	var (
		dec     Decoder
		escWait <-chan time.Time
	)
	for {
		select {
		case <-escWait:
			escWait = nil
			w.relayAll(dec.Flush())
		case c := <-reads:
			w.relayAll(dec.Feed(c.b))
			escWait = nil
			if dec.Pending() {
				escWait = time.After(w.escDelay)
			}
			if c.err == nil {
				continue
			}
			w.relayAll(dec.Flush())
			if errors.Is(c.err, cancelreader.ErrCanceled) || ctx.Err() != nil {
				return nil
			}
			if errors.Is(c.err, io.EOF) {
				w.log.Debug("input: end of input")
				return nil
			}
			return c.err
		}
	}
}

func (w *Watcher) relayAll(keys []string) {
	for _, k := range keys {
		w.relay(k)
	}
}

func (w *Watcher) relay(k string) {
	select {
	case w.keys <- k:
	default:
		w.log.Debug("input: queue full, dropped %q", k)
	}
}

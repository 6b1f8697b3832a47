package voice

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	audiotranscriber "github.com/sklyt/whisper/pkg"

	"github.com/hammamikhairi/aura/internal/logger"
)

// transcribeTimeout bounds how long whisper may take after recording stops.
const transcribeTimeout = 60 * time.Second

// Whisper records from the default microphone and transcribes the clip
// with a local whisper.cpp binary.
type Whisper struct {
	bin     string
	model   string
	tempDir string
	log     *logger.Logger
}

// NewWhisper creates a transcriber. tempDir holds the intermediate WAV.
func NewWhisper(bin, model, tempDir string, log *logger.Logger) *Whisper {
	return &Whisper{bin: bin, model: model, tempDir: tempDir, log: log}
}

// Available reports whether the binary is on PATH and the model exists.
func (w *Whisper) Available() bool {
	if _, err := exec.LookPath(w.bin); err != nil {
		return false
	}
	_, err := os.Stat(w.model)
	return err == nil
}

// Listen records for d and returns the raw transcript.
func (w *Whisper) Listen(ctx context.Context, d time.Duration) (string, error) {
	if err := os.MkdirAll(w.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("creating voice temp dir: %w", err)
	}

	result := make(chan string, 1)
	callback := func(text string) {
		select {
		case result <- text:
		default:
		}
	}

	verbose := w.log.GetLevel() >= logger.LevelVerbose
	t, err := audiotranscriber.NewTranscriber(w.bin, w.model, w.tempDir, "wav", callback, verbose)
	if err != nil {
		return "", fmt.Errorf("starting whisper: %w", err)
	}
	if err := t.Start(); err != nil {
		return "", fmt.Errorf("starting recording: %w", err)
	}
	w.log.Debug("voice: recording %s", d)

	select {
	case <-time.After(d):
	case <-ctx.Done():
		t.Stop()
		return "", ctx.Err()
	}
	t.Stop()

	select {
	case text := <-result:
		w.log.Debug("voice: whisper returned %q", text)
		return text, nil
	case <-time.After(transcribeTimeout):
		return "", fmt.Errorf("whisper gave no transcript within %s", transcribeTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

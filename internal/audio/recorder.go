// Package audio records microphone samples through miniaudio (malgo) and
// stores them as normalised WAV files for the recognizer.
package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/hammamikhairi/aura/internal/domain"
	"github.com/hammamikhairi/aura/internal/logger"
	"github.com/hammamikhairi/aura/internal/offload"
)

// Defaults.
const (
	DefaultSampleRate = 44100
	DefaultChannels   = 2
)

// Option configures the Recorder.
type Option func(*Recorder)

// WithSampleRate sets the capture rate in Hz.
func WithSampleRate(rate int) Option {
	return func(r *Recorder) {
		if rate > 0 {
			r.sampleRate = rate
		}
	}
}

// WithChannels sets the preferred channel count. Capture falls back to
// mono when the device refuses it.
func WithChannels(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.channels = n
		}
	}
}

// WithTempDir sets where capture files are written (default os.TempDir).
func WithTempDir(dir string) Option {
	return func(r *Recorder) { r.tempDir = dir }
}

// Recorder captures fixed-length takes from the default input device.
type Recorder struct {
	pool       *offload.Pool
	log        *logger.Logger
	sampleRate int
	channels   int
	tempDir    string
}

var _ domain.Capturer = (*Recorder)(nil)

// NewRecorder creates a recorder that runs device I/O on pool.
func NewRecorder(pool *offload.Pool, log *logger.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		pool:       pool,
		log:        log,
		sampleRate: DefaultSampleRate,
		channels:   DefaultChannels,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type take struct {
	pcm      []int16
	channels int
}

// Capture records for d and returns the path of a normalised WAV file. The
// caller removes the file.
func (r *Recorder) Capture(ctx context.Context, d time.Duration) (string, error) {
	tk, err := offload.Submit(ctx, r.pool, func(ctx context.Context) (take, error) {
		return r.record(ctx, d)
	})
	if err != nil {
		return "", err
	}
	if len(tk.pcm) == 0 {
		return "", fmt.Errorf("capture produced no samples")
	}

	if r.tempDir != "" {
		if err := os.MkdirAll(r.tempDir, 0o755); err != nil {
			return "", fmt.Errorf("creating temp dir: %w", err)
		}
	}
	f, err := os.CreateTemp(r.tempDir, "aura-*.wav")
	if err != nil {
		return "", fmt.Errorf("creating capture file: %w", err)
	}
	path := f.Name()
	f.Close()

	if err := WriteWAV(path, Normalize(tk.pcm), r.sampleRate, tk.channels); err != nil {
		os.Remove(path)
		return "", err
	}
	r.log.Debug("audio: captured %d samples (%d ch) -> %s", len(tk.pcm), tk.channels, path)
	return path, nil
}

// Probe opens and closes a capture device without recording.
func (r *Recorder) Probe(ctx context.Context) error {
	return r.pool.Run(ctx, func(ctx context.Context) error {
		mCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
		if err != nil {
			return fmt.Errorf("audio context: %w", err)
		}
		defer func() { _ = mCtx.Uninit(); mCtx.Free() }()

		cfg := r.deviceConfig(1)
		dev, err := malgo.InitDevice(mCtx.Context, cfg, malgo.DeviceCallbacks{
			Data: func(_, _ []byte, _ uint32) {},
		})
		if err != nil {
			return fmt.Errorf("opening microphone: %w", err)
		}
		dev.Uninit()
		return nil
	})
}

func (r *Recorder) deviceConfig(channels int) malgo.DeviceConfig {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.SampleRate = uint32(r.sampleRate)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(channels)
	cfg.Alsa.NoMMap = 1
	return cfg
}

// record blocks until d worth of samples arrived or ctx is done.
func (r *Recorder) record(ctx context.Context, d time.Duration) (take, error) {
	mCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return take{}, fmt.Errorf("audio context: %w", err)
	}
	defer func() { _ = mCtx.Uninit(); mCtx.Free() }()

	var (
		mu   sync.Mutex
		pcm  []int16
		want int
		done = make(chan struct{})
		once sync.Once
	)
	callbacks := malgo.DeviceCallbacks{
		Data: func(_ []byte, raw []byte, _ uint32) {
			mu.Lock()
			defer mu.Unlock()
			if len(pcm) >= want {
				return
			}
			for i := 0; i+1 < len(raw); i += 2 {
				pcm = append(pcm, int16(binary.LittleEndian.Uint16(raw[i:i+2])))
			}
			if len(pcm) >= want {
				pcm = pcm[:want]
				once.Do(func() { close(done) })
			}
		},
	}

	channels := r.channels
	dev, err := malgo.InitDevice(mCtx.Context, r.deviceConfig(channels), callbacks)
	if err != nil && channels > 1 {
		r.log.Debug("audio: %d-channel capture refused, falling back to mono: %v", channels, err)
		channels = 1
		dev, err = malgo.InitDevice(mCtx.Context, r.deviceConfig(channels), callbacks)
	}
	if err != nil {
		return take{}, fmt.Errorf("opening microphone: %w", err)
	}
	defer dev.Uninit()

	mu.Lock()
	want = int(d.Seconds()*float64(r.sampleRate)) * channels
	pcm = make([]int16, 0, want)
	mu.Unlock()

	if err := dev.Start(); err != nil {
		return take{}, fmt.Errorf("starting capture: %w", err)
	}
	defer dev.Stop()

	timeout := time.NewTimer(d + 5*time.Second)
	defer timeout.Stop()

	select {
	case <-ctx.Done():
		return take{}, ctx.Err()
	case <-timeout.C:
		return take{}, fmt.Errorf("capture timed out after %s", d+5*time.Second)
	case <-done:
	}

	mu.Lock()
	defer mu.Unlock()
	return take{pcm: pcm, channels: channels}, nil
}
